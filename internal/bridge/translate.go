package bridge

import (
	"merxus-voice-bridge/internal/realtime"
	"merxus-voice-bridge/internal/telephony"
)

// CarrierFrameToAIEvent maps inbound caller audio to the AI append event.
// Only media frames map; the payload is copied untouched.
func CarrierFrameToAIEvent(f telephony.MediaFrame) (realtime.InputAudioBufferAppend, bool) {
	if f.Event != telephony.MediaEventMedia || f.Media == nil || f.Media.Payload == "" {
		return realtime.InputAudioBufferAppend{}, false
	}
	return realtime.NewInputAudioBufferAppend(f.Media.Payload), true
}

// AIEventToCarrierFrame maps synthesized audio to an outbound carrier media
// frame. streamSid may be empty if the carrier has not announced one yet.
func AIEventToCarrierFrame(ev realtime.ServerEvent, streamSid string) (telephony.MediaFrame, bool) {
	if !ev.IsAudioDelta() {
		return telephony.MediaFrame{}, false
	}
	payload := ev.AudioPayload()
	if payload == "" {
		return telephony.MediaFrame{}, false
	}
	return telephony.OutboundMedia(streamSid, payload), true
}
