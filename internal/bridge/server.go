package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"merxus-voice-bridge/internal/auth"
	"merxus-voice-bridge/internal/calls"
	"merxus-voice-bridge/internal/telephony"
	"merxus-voice-bridge/internal/tenant"
	"merxus-voice-bridge/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrNoStart      = errors.New("bridge: carrier stream ended before start")
	ErrNoTenant     = errors.New("bridge: stream carries no tenant id")
	ErrBadStreamTok = errors.New("bridge: stream token rejected")
)

// StreamTokenVerifier checks the correlation token issued at handshake.
type StreamTokenVerifier interface {
	Verify(tokenString string, expected auth.TokenType, now time.Time) (auth.Claims, error)
}

// MediaServer accepts carrier media connections and runs one Session per connection.
type MediaServer struct {
	Upgrader websocket.Upgrader
	Resolver tenant.Resolver
	Dialer   AIDialer
	Registry *Registry
	Config   Config

	// WriteTimeout is applied to every carrier write.
	WriteTimeout time.Duration

	// Optional collaborators.
	Limiter      CallLimiter
	Tokens       StreamTokenVerifier
	RequireToken bool
	Recorder     calls.Recorder
	Control      telephony.CallController

	Now func() time.Time
}

// correlation is what ties a media connection back to its handshake.
type correlation struct {
	TenantID string
	CallSid  string
	Token    string
}

// HandleMediaStream upgrades the carrier connection and bridges it until either side ends.
// Failures before the session exists close the carrier link; the carrier then
// plays the fallback verbs that follow <Connect> in the handshake TwiML.
func (m *MediaServer) HandleMediaStream(c *gin.Context) {
	log := logger.FromGin(c)
	ctx := c.Request.Context()

	conn, err := m.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("media stream upgrade failed", "err", err)
		return
	}
	carrier := NewWebSocketLink(conn, m.WriteTimeout)

	start, err := awaitStart(carrier, m.Config.withDefaults())
	if err != nil {
		log.Warn("media stream rejected", "err", err)
		_ = carrier.Close()
		return
	}

	corr := correlationFrom(c.Request, start)
	sess, release, err := m.admit(ctx, log, carrier, start, corr)
	if err != nil {
		log.Warn("media stream rejected", "tenant_id", corr.TenantID, "call_sid", corr.CallSid, "err", err)
		_ = carrier.Close()
		return
	}
	defer release()

	if err := sess.Run(ctx); err != nil {
		log.Error("session ended with error", "session_id", sess.ID(), "err", err)
	}
}

func (m *MediaServer) admit(ctx context.Context, log *slog.Logger, carrier Link, start *telephony.StreamStart, corr correlation) (*Session, func(), error) {
	noop := func() {}

	if err := m.verifyToken(&corr); err != nil {
		return nil, noop, err
	}
	if corr.TenantID == "" {
		return nil, noop, ErrNoTenant
	}

	profile, err := m.Resolver.Resolve(ctx, corr.TenantID)
	if err != nil {
		return nil, noop, fmt.Errorf("resolve tenant: %w", err)
	}

	release := noop
	if m.Limiter != nil {
		rel, err := m.Limiter.Acquire(ctx, profile.TenantID)
		if err != nil {
			return nil, noop, err
		}
		release = rel
	}

	id := corr.CallSid
	if id == "" {
		id = uuid.NewString()
	}

	sess, err := NewSession(SessionParams{
		ID:       id,
		Profile:  profile,
		Carrier:  carrier,
		Dialer:   m.Dialer,
		Config:   m.Config,
		Start:    start,
		CallSid:  corr.CallSid,
		Logger:   logger.ForSession(log, id, profile.TenantID),
		Recorder: m.Recorder,
		Control:  m.Control,
		OnClose:  m.Registry.Remove,
		Now:      m.Now,
	})
	if err != nil {
		release()
		return nil, noop, err
	}
	if err := m.Registry.Add(sess); err != nil {
		release()
		return nil, noop, err
	}
	return sess, release, nil
}

func (m *MediaServer) verifyToken(corr *correlation) error {
	if m.Tokens == nil {
		if m.RequireToken {
			return ErrBadStreamTok
		}
		return nil
	}
	if corr.Token == "" {
		if m.RequireToken {
			return ErrBadStreamTok
		}
		return nil
	}

	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	claims, err := m.Tokens.Verify(corr.Token, auth.TokenTypeStream, now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadStreamTok, err)
	}
	if corr.TenantID != "" && corr.TenantID != claims.TenantID {
		return fmt.Errorf("%w: tenant mismatch", ErrBadStreamTok)
	}
	corr.TenantID = claims.TenantID
	if corr.CallSid == "" {
		corr.CallSid = claims.CallSid
	}
	return nil
}

// awaitStart reads until the carrier announces the stream. Twilio always sends
// connected then start before any media, and outbound media needs the streamSid.
func awaitStart(carrier Link, cfg Config) (*telephony.StreamStart, error) {
	timer := time.AfterFunc(cfg.ConnectTimeout, func() { _ = carrier.Close() })
	defer timer.Stop()

	malformed := 0
	for {
		data, err := carrier.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoStart, err)
		}
		frame, err := telephony.DecodeMediaFrame(data)
		if err != nil {
			malformed++
			if malformed >= cfg.MaxMalformedFrames {
				return nil, err
			}
			continue
		}
		switch frame.Event {
		case telephony.MediaEventStart:
			start := *frame.Start
			if start.StreamSid == "" {
				start.StreamSid = frame.StreamSid
			}
			return &start, nil
		case telephony.MediaEventStop:
			return nil, ErrNoStart
		}
	}
}

// correlationFrom prefers the stream URL query and falls back to the stream
// parameters echoed in the start frame.
func correlationFrom(r *http.Request, start *telephony.StreamStart) correlation {
	q := r.URL.Query()
	pick := func(key string) string {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			return v
		}
		if start != nil && start.CustomParameters != nil {
			return strings.TrimSpace(start.CustomParameters[key])
		}
		return ""
	}

	corr := correlation{
		TenantID: pick(telephony.ParamTenantID),
		CallSid:  pick(telephony.ParamCallSid),
		Token:    pick(telephony.ParamToken),
	}
	if corr.CallSid == "" && start != nil {
		corr.CallSid = start.CallSid
	}
	return corr
}
