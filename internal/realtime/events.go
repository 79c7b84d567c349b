package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client event types sent to the provider.
const (
	EventSessionUpdate          = "session.update"
	EventInputAudioBufferAppend = "input_audio_buffer.append"
)

// Server event types the bridge reacts to. Everything else is ignored.
const (
	EventResponseAudioDelta       = "response.audio.delta"
	EventResponseOutputAudioDelta = "response.output_audio.delta"
	EventError                    = "error"
	EventSessionCreated           = "session.created"
	EventSessionUpdated           = "session.updated"
)

// AudioFormatG711ULaw matches the carrier's 8kHz mu-law media, so payloads pass through untouched.
const AudioFormatG711ULaw = "g711_ulaw"

var ErrMalformedEvent = errors.New("realtime: malformed event")

type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

type SessionConfig struct {
	Instructions      string         `json:"instructions"`
	Voice             string         `json:"voice,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format,omitempty"`
	OutputAudioFormat string         `json:"output_audio_format,omitempty"`
	Modalities        []string       `json:"modalities,omitempty"`
	TurnDetection     *TurnDetection `json:"turn_detection,omitempty"`
}

type TurnDetection struct {
	Type string `json:"type"`
}

// NewSessionUpdate is the first message on every AI link.
func NewSessionUpdate(instructions, voice string) SessionUpdate {
	return SessionUpdate{
		Type: EventSessionUpdate,
		Session: SessionConfig{
			Instructions:      instructions,
			Voice:             voice,
			InputAudioFormat:  AudioFormatG711ULaw,
			OutputAudioFormat: AudioFormatG711ULaw,
			Modalities:        []string{"audio", "text"},
			TurnDetection:     &TurnDetection{Type: "server_vad"},
		},
	}
}

type InputAudioBufferAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

func NewInputAudioBufferAppend(audio string) InputAudioBufferAppend {
	return InputAudioBufferAppend{Type: EventInputAudioBufferAppend, Audio: audio}
}

// ServerEvent is the union of provider events the bridge inspects.
type ServerEvent struct {
	Type       string       `json:"type"`
	EventID    string       `json:"event_id,omitempty"`
	ResponseID string       `json:"response_id,omitempty"`
	ItemID     string       `json:"item_id,omitempty"`
	Delta      string       `json:"delta,omitempty"`
	Audio      string       `json:"audio,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
}

type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ServerEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Type == "" {
		return ServerEvent{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	return ev, nil
}

// IsAudioDelta reports whether the event carries synthesized audio for the caller.
func (e ServerEvent) IsAudioDelta() bool {
	return e.Type == EventResponseAudioDelta || e.Type == EventResponseOutputAudioDelta
}

// AudioPayload returns the base64 audio. Current API versions use "delta";
// some earlier builds sent "audio".
func (e ServerEvent) AudioPayload() string {
	if e.Delta != "" {
		return e.Delta
	}
	return e.Audio
}
