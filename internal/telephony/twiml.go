package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"sort"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// Only the verbs the bridge emits are modelled.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlConnect struct {
	XMLName xml.Name    `xml:"Connect"`
	Stream  twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter,omitempty"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// RenderTwiML maps a CallDirective to TwiML.
func RenderTwiML(d CallDirective) (string, error) {
	var r twimlResponse

	switch d.Action {
	case DirectiveHangup:
		if strings.TrimSpace(d.Apology) != "" {
			r.Verbs = append(r.Verbs, say(d.Apology))
		}
		r.Verbs = append(r.Verbs, twimlHangup{})
	case DirectiveStream:
		if strings.TrimSpace(d.StreamURL) == "" {
			return "", errors.New("telephony: stream_url required for stream action")
		}
		if strings.TrimSpace(d.Greeting) != "" {
			r.Verbs = append(r.Verbs, say(d.Greeting))
		}
		r.Verbs = append(r.Verbs, twimlConnect{Stream: twimlStream{
			URL:        d.StreamURL,
			Parameters: sortedParameters(d.StreamParameters),
		}})
		// Reached only if the stream closes while the caller is still connected.
		if strings.TrimSpace(d.Apology) != "" {
			r.Verbs = append(r.Verbs, say(d.Apology))
		}
		r.Verbs = append(r.Verbs, twimlHangup{})
	default:
		return "", errors.New("telephony: unknown directive action")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ApologyTwiML renders the apology + hangup document used for live call redirects.
func ApologyTwiML(message string) (string, error) {
	return RenderTwiML(CallDirective{Action: DirectiveHangup, Apology: message})
}

func say(text string) twimlSay {
	return twimlSay{Voice: sayVoice, Text: text}
}

func sortedParameters(m map[string]string) []twimlParameter {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]twimlParameter, 0, len(keys))
	for _, k := range keys {
		out = append(out, twimlParameter{Name: k, Value: m[k]})
	}
	return out
}
