package bridge

import "fmt"

// State is the lifecycle position of a Session.
type State int

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// canTransition lists the only legal moves. Closing is reachable from any
// live state; Closed only from Closing.
func canTransition(from, to State) bool {
	switch from {
	case StateConnecting:
		return to == StateActive || to == StateClosing
	case StateActive:
		return to == StateClosing
	case StateClosing:
		return to == StateClosed
	default:
		return false
	}
}

// End reasons recorded on the call and in logs.
const (
	ReasonCarrierStop       = "carrier_stop"
	ReasonCarrierClosed     = "carrier_closed"
	ReasonCarrierIdle       = "carrier_idle"
	ReasonCarrierWrite      = "carrier_write_failed"
	ReasonAIConnectFailed   = "ai_connect_failed"
	ReasonAIConfigureFailed = "ai_configure_failed"
	ReasonAIClosed          = "ai_closed"
	ReasonAIWrite           = "ai_write_failed"
	ReasonMalformed         = "malformed_frames"
	ReasonOperator          = "operator"
	ReasonShutdown          = "shutdown"
	ReasonPanic             = "panic"
)

// upstreamFailure reports reasons where the caller should hear the apology.
func upstreamFailure(reason string) bool {
	switch reason {
	case ReasonAIConnectFailed, ReasonAIConfigureFailed, ReasonAIClosed, ReasonAIWrite:
		return true
	default:
		return false
	}
}

// cleanEnd reports reasons that end a call normally.
func cleanEnd(reason string) bool {
	switch reason {
	case ReasonCarrierStop, ReasonCarrierClosed, ReasonOperator, ReasonShutdown:
		return true
	default:
		return false
	}
}
