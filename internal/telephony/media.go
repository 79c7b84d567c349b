package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Twilio Media Streams event names.
// Ref: https://www.twilio.com/docs/voice/media-streams/websocket-messages
const (
	MediaEventConnected = "connected"
	MediaEventStart     = "start"
	MediaEventMedia     = "media"
	MediaEventStop      = "stop"
	MediaEventMark      = "mark"
	MediaEventDTMF      = "dtmf"
)

var ErrMalformedFrame = errors.New("telephony: malformed media frame")

// MediaFrame is one JSON envelope on the carrier media socket, in either direction.
type MediaFrame struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSid      string        `json:"streamSid,omitempty"`
	Start          *StreamStart  `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Stop           *StreamStop   `json:"stop,omitempty"`
	Mark           *StreamMark   `json:"mark,omitempty"`
}

type StreamStart struct {
	AccountSid       string            `json:"accountSid,omitempty"`
	CallSid          string            `json:"callSid,omitempty"`
	StreamSid        string            `json:"streamSid,omitempty"`
	Tracks           []string          `json:"tracks,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
	MediaFormat      *MediaFormat      `json:"mediaFormat,omitempty"`
}

type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries base64 audio. The bridge never decodes it.
type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type StreamStop struct {
	AccountSid string `json:"accountSid,omitempty"`
	CallSid    string `json:"callSid,omitempty"`
}

type StreamMark struct {
	Name string `json:"name"`
}

// DecodeMediaFrame parses a carrier frame. Frames without an event, or media
// frames without a payload, are malformed.
func DecodeMediaFrame(data []byte) (MediaFrame, error) {
	var f MediaFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return MediaFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Event == "" {
		return MediaFrame{}, fmt.Errorf("%w: missing event", ErrMalformedFrame)
	}
	if f.Event == MediaEventMedia && (f.Media == nil || f.Media.Payload == "") {
		return MediaFrame{}, fmt.Errorf("%w: media without payload", ErrMalformedFrame)
	}
	if f.Event == MediaEventStart && f.Start == nil {
		return MediaFrame{}, fmt.Errorf("%w: start without body", ErrMalformedFrame)
	}
	if f.Start != nil && f.StreamSid == "" {
		f.StreamSid = f.Start.StreamSid
	}
	return f, nil
}

// OutboundMedia builds the frame that plays payload to the caller.
func OutboundMedia(streamSid, payload string) MediaFrame {
	return MediaFrame{
		Event:     MediaEventMedia,
		StreamSid: streamSid,
		Media:     &MediaPayload{Payload: payload},
	}
}
