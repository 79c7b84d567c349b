package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const maxMessageBytes = 10 * 1024 * 1024

// Dialer opens provider websocket sessions.
type Dialer struct {
	BaseURL    string
	APIKey     string
	BetaHeader string

	// HandshakeTimeout bounds the websocket upgrade; the caller's context
	// bounds the whole dial.
	HandshakeTimeout time.Duration
}

// URLFor returns the session URL for a model.
func (d Dialer) URLFor(model string) (string, error) {
	u, err := url.Parse(d.BaseURL)
	if err != nil {
		return "", fmt.Errorf("realtime: parse base url: %w", err)
	}
	q := u.Query()
	if model != "" {
		q.Set("model", model)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial connects to the provider for model.
func (d Dialer) Dial(ctx context.Context, model string) (*websocket.Conn, error) {
	if d.APIKey == "" {
		return nil, errors.New("realtime: api key is required")
	}
	target, err := d.URLFor(model)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+d.APIKey)
	if d.BetaHeader != "" {
		headers.Set("OpenAI-Beta", d.BetaHeader)
	}

	hs := d.HandshakeTimeout
	if hs <= 0 {
		hs = 10 * time.Second
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: hs,
	}

	conn, resp, err := dialer.DialContext(ctx, target, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial %s: %w (status %d)", model, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("realtime: dial %s: %w", model, err)
	}
	conn.SetReadLimit(maxMessageBytes)
	return conn, nil
}
