package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"merxus-voice-bridge/internal/realtime"

	"github.com/gorilla/websocket"
)

var ErrLinkClosed = errors.New("bridge: link closed")

// Link is one duplex message stream, carrier- or AI-facing.
// ReadMessage is called from a single goroutine; WriteMessage may be called
// concurrently with ReadMessage but not with itself; Close is safe from any
// goroutine and unblocks pending reads.
type Link interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type wsLink struct {
	conn         wsConn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewWebSocketLink wraps a gorilla connection. Writes carry a deadline so a
// stalled peer cannot hold a pump forever.
func NewWebSocketLink(conn *websocket.Conn, writeTimeout time.Duration) Link {
	return newWSLink(conn, writeTimeout)
}

func newWSLink(conn wsConn, writeTimeout time.Duration) *wsLink {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &wsLink{conn: conn, writeTimeout: writeTimeout, closed: make(chan struct{})}
}

func (l *wsLink) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.closed:
				return nil, ErrLinkClosed
			default:
			}
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (l *wsLink) WriteMessage(data []byte) error {
	select {
	case <-l.closed:
		return ErrLinkClosed
	default:
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout)); err != nil {
		return err
	}
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

func (l *wsLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		deadline := time.Now().Add(l.writeTimeout)
		_ = l.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = l.conn.Close()
	})
	return err
}

// AIDialer opens the AI-facing link for a model.
type AIDialer interface {
	Dial(ctx context.Context, model string) (Link, error)
}

// RealtimeDialer adapts realtime.Dialer to AIDialer.
type RealtimeDialer struct {
	Dialer       realtime.Dialer
	WriteTimeout time.Duration
}

func (d RealtimeDialer) Dial(ctx context.Context, model string) (Link, error) {
	conn, err := d.Dialer.Dial(ctx, model)
	if err != nil {
		return nil, err
	}
	return NewWebSocketLink(conn, d.WriteTimeout), nil
}
