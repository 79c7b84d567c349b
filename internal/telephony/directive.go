package telephony

import (
	"context"
	"time"
)

// Caller-facing phrases. Keep them short; the carrier reads them with TTS.
const (
	MessageTenantUnavailable = "We are unable to connect your call at this time. Please try again later."
	MessageInternalError     = "An internal error occurred while processing your call. Please try again later."
	MessageAssistantLost     = "We are sorry, our assistant is unavailable right now. Please try again later."

	sayVoice = "alice"
)

// DirectiveAction selects the shape of the call-control document.
type DirectiveAction string

const (
	// DirectiveStream greets the caller and opens a media stream.
	DirectiveStream DirectiveAction = "stream"
	// DirectiveHangup apologises and ends the call.
	DirectiveHangup DirectiveAction = "hangup"
)

// CallDirective is the provider-agnostic answer to an inbound call.
type CallDirective struct {
	Action DirectiveAction

	// Greeting is spoken before the stream opens.
	Greeting string
	// StreamURL is required for DirectiveStream.
	StreamURL string
	// StreamParameters are echoed back by the carrier in the stream start frame.
	StreamParameters map[string]string

	// Apology is spoken before hanging up. For DirectiveStream it is the
	// fallback the carrier plays if the stream ends while the caller is still on the line.
	Apology string
}

// InboundCall is the subset of the carrier's call-setup request the bridge uses.
type InboundCall struct {
	TenantID   string
	CallSid    string
	AccountSid string
	From       string
	To         string
	ReceivedAt time.Time
}

// CallController acts on a live call out of band, through the carrier's REST API.
type CallController interface {
	// EndWithMessage replaces the live call's instructions with message + hangup.
	EndWithMessage(ctx context.Context, callSid, message string) error
}
