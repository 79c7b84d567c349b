package bridge

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"merxus-voice-bridge/internal/telephony"

	"github.com/stretchr/testify/require"
)

// fakeLink is an in-memory Link. Closing in ends the peer's stream with io.EOF.
type fakeLink struct {
	in    chan []byte
	wrote chan []byte

	mu       sync.Mutex
	written  [][]byte
	writeErr error
	// gate, when set, holds every write after the first gateAfter until it
	// is closed or the link closes.
	gate        chan struct{}
	gateAfter   int
	attempts    int
	panicOnRead bool

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		in:     make(chan []byte, 64),
		wrote:  make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (l *fakeLink) ReadMessage() ([]byte, error) {
	if l.panicOnRead {
		panic("boom")
	}
	select {
	case m, ok := <-l.in:
		if !ok {
			return nil, io.EOF
		}
		return m, nil
	case <-l.closed:
		return nil, ErrLinkClosed
	}
}

func (l *fakeLink) WriteMessage(data []byte) error {
	l.mu.Lock()
	n := l.attempts
	l.attempts++
	gate := l.gate
	gated := gate != nil && n >= l.gateAfter
	l.mu.Unlock()
	if gated {
		select {
		case <-gate:
		case <-l.closed:
		}
	}
	select {
	case <-l.closed:
		return ErrLinkClosed
	default:
	}
	l.mu.Lock()
	err := l.writeErr
	if err == nil {
		l.written = append(l.written, data)
	}
	l.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case l.wrote <- data:
	default:
	}
	return nil
}

func (l *fakeLink) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *fakeLink) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

func (l *fakeLink) writes() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.written...)
}

func (l *fakeLink) send(t *testing.T, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	l.in <- b
}

func (l *fakeLink) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case b := <-l.wrote:
		var m map[string]any
		require.NoError(t, json.Unmarshal(b, &m))
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a write")
		return nil
	}
}

type dialFunc func(ctx context.Context, model string) (Link, error)

func (f dialFunc) Dial(ctx context.Context, model string) (Link, error) { return f(ctx, model) }

func dialTo(l Link) AIDialer {
	return dialFunc(func(context.Context, string) (Link, error) { return l, nil })
}

type redirect struct {
	callSid string
	message string
}

type fakeControl struct {
	mu    sync.Mutex
	calls []redirect
}

func (f *fakeControl) EndWithMessage(_ context.Context, callSid, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, redirect{callSid: callSid, message: message})
	return nil
}

func (f *fakeControl) redirects() []redirect {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]redirect(nil), f.calls...)
}

// blockingControl holds every redirect until release is closed.
type blockingControl struct {
	fakeControl
	entered chan struct{}
	release chan struct{}
}

func newBlockingControl() *blockingControl {
	return &blockingControl{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (b *blockingControl) EndWithMessage(ctx context.Context, callSid, message string) error {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.fakeControl.EndWithMessage(ctx, callSid, message)
}

func mediaFrame(payload string) telephony.MediaFrame {
	return telephony.MediaFrame{
		Event:     telephony.MediaEventMedia,
		StreamSid: "MZ1",
		Media:     &telephony.MediaPayload{Track: "inbound", Payload: payload},
	}
}

func stopFrame() telephony.MediaFrame {
	return telephony.MediaFrame{Event: telephony.MediaEventStop, StreamSid: "MZ1"}
}

// runSession starts s.Run and returns a channel that yields its result.
func runSession(ctx context.Context, s *Session) <-chan error {
	out := make(chan error, 1)
	go func() { out <- s.Run(ctx) }()
	return out
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish")
		return nil
	}
}
