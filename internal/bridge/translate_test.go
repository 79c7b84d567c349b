package bridge

import (
	"testing"

	"merxus-voice-bridge/internal/realtime"
	"merxus-voice-bridge/internal/telephony"

	"github.com/stretchr/testify/assert"
)

func TestCarrierFrameToAIEvent(t *testing.T) {
	ev, ok := CarrierFrameToAIEvent(mediaFrame("AAAA"))
	assert.True(t, ok)
	assert.Equal(t, realtime.InputAudioBufferAppend{Type: realtime.EventInputAudioBufferAppend, Audio: "AAAA"}, ev)

	for _, f := range []telephony.MediaFrame{
		{Event: telephony.MediaEventStart, Start: &telephony.StreamStart{StreamSid: "MZ1"}},
		{Event: telephony.MediaEventMark, Mark: &telephony.StreamMark{Name: "m"}},
		stopFrame(),
		{Event: telephony.MediaEventMedia},
	} {
		_, ok := CarrierFrameToAIEvent(f)
		assert.False(t, ok, f.Event)
	}
}

func TestAIEventToCarrierFrame(t *testing.T) {
	frame, ok := AIEventToCarrierFrame(realtime.ServerEvent{Type: realtime.EventResponseAudioDelta, Delta: "BBBB"}, "MZ1")
	assert.True(t, ok)
	assert.Equal(t, telephony.OutboundMedia("MZ1", "BBBB"), frame)

	frame, ok = AIEventToCarrierFrame(realtime.ServerEvent{Type: realtime.EventResponseOutputAudioDelta, Audio: "CCCC"}, "MZ1")
	assert.True(t, ok)
	assert.Equal(t, "CCCC", frame.Media.Payload)

	_, ok = AIEventToCarrierFrame(realtime.ServerEvent{Type: realtime.EventSessionUpdated}, "MZ1")
	assert.False(t, ok)
	_, ok = AIEventToCarrierFrame(realtime.ServerEvent{Type: realtime.EventResponseAudioDelta}, "MZ1")
	assert.False(t, ok)
}
