package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"merxus-voice-bridge/internal/calls"
	"merxus-voice-bridge/internal/realtime"
	"merxus-voice-bridge/internal/telephony"
	"merxus-voice-bridge/internal/tenant"

	"golang.org/x/sync/errgroup"
)

// Config bounds one session's timing and memory.
type Config struct {
	ConnectTimeout     time.Duration
	IdleTimeout        time.Duration
	QueueSize          int
	MaxMalformedFrames int

	// ControlTimeout bounds the out-of-band apology redirect and recorder writes.
	ControlTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.MaxMalformedFrames <= 0 {
		c.MaxMalformedFrames = 20
	}
	if c.ControlTimeout <= 0 {
		c.ControlTimeout = 5 * time.Second
	}
	return c
}

// SessionParams are the collaborators of one session.
type SessionParams struct {
	ID      string
	Profile tenant.Profile
	Carrier Link
	Dialer  AIDialer
	Config  Config

	// Start is the carrier start frame if it was consumed before the session existed.
	Start *telephony.StreamStart
	// CallSid is the carrier call id from the handshake, if known.
	CallSid string

	Logger   *slog.Logger
	Recorder calls.Recorder
	Control  telephony.CallController

	// OnClose runs once, after both links are released and before the state becomes Closed.
	OnClose func(*Session)

	Now func() time.Time
}

// Session relays audio between one carrier link and one AI link.
// All state changes go through transition; links are never shared.
type Session struct {
	id       string
	profile  tenant.Profile
	carrier  Link
	dialer   AIDialer
	cfg      Config
	log      *slog.Logger
	recorder calls.Recorder
	control  telephony.CallController
	onClose  func(*Session)
	now      func() time.Time

	mu        sync.Mutex
	state     State
	reason    string
	ai        Link
	streamSid string
	callSid   string
	startedAt time.Time
	endedAt   time.Time
	idle      *time.Timer

	// background tracks the apology redirect so Run returns after it.
	background sync.WaitGroup

	toAI      chan []byte
	toCarrier chan []byte
	closing   chan struct{}
	done      chan struct{}
	running   atomic.Bool

	framesToAI      atomic.Int64
	framesToCarrier atomic.Int64
	framesDropped   atomic.Int64
	framesMalformed atomic.Int64
}

func NewSession(p SessionParams) (*Session, error) {
	switch {
	case p.ID == "":
		return nil, errors.New("bridge: session id required")
	case p.Carrier == nil:
		return nil, errors.New("bridge: carrier link required")
	case p.Dialer == nil:
		return nil, errors.New("bridge: ai dialer required")
	case p.Profile.TenantID == "":
		return nil, errors.New("bridge: resolved tenant required")
	}
	cfg := p.Config.withDefaults()
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		id:        p.ID,
		profile:   p.Profile.WithDefaults(),
		carrier:   p.Carrier,
		dialer:    p.Dialer,
		cfg:       cfg,
		log:       log,
		recorder:  p.Recorder,
		control:   p.Control,
		onClose:   p.OnClose,
		now:       now,
		state:     StateConnecting,
		callSid:   p.CallSid,
		startedAt: now(),
		toAI:      make(chan []byte, cfg.QueueSize),
		toCarrier: make(chan []byte, cfg.QueueSize),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	if p.Start != nil {
		s.applyStart(p.Start, "")
	}
	return s, nil
}

func (s *Session) ID() string              { return s.id }
func (s *Session) TenantID() string        { return s.profile.TenantID }
func (s *Session) Done() <-chan struct{}   { return s.done }
func (s *Session) Profile() tenant.Profile { return s.profile }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EndReason is empty until the session starts closing.
func (s *Session) EndReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) StreamSid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSid
}

func (s *Session) Counters() calls.Counters {
	return calls.Counters{
		ToAI:      s.framesToAI.Load(),
		ToCarrier: s.framesToCarrier.Load(),
		Dropped:   s.framesDropped.Load(),
		Malformed: s.framesMalformed.Load(),
	}
}

// Run drives the session until both links are released. It blocks; call it
// from the goroutine that owns the carrier connection.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("bridge: session already running")
	}
	s.recordStart(ctx)

	s.mu.Lock()
	if s.state == StateConnecting {
		s.idle = time.AfterFunc(s.cfg.IdleTimeout, func() { s.Close(ReasonCarrierIdle) })
	}
	s.mu.Unlock()

	var g errgroup.Group
	s.spawn(&g, "carrier_reader", s.readCarrier)
	s.spawn(&g, "context_watch", func() error {
		select {
		case <-ctx.Done():
			s.Close(ReasonShutdown)
		case <-s.closing:
		}
		return nil
	})

	if s.connectAI(ctx) {
		ai := s.aiLink()
		s.spawn(&g, "ai_reader", s.readAI)
		s.spawn(&g, "ai_writer", func() error {
			return s.writePump(ai, s.toAI, &s.framesToAI, ReasonAIWrite)
		})
		s.spawn(&g, "carrier_writer", func() error {
			return s.writePump(s.carrier, s.toCarrier, &s.framesToCarrier, ReasonCarrierWrite)
		})
	}

	err := g.Wait()
	s.finish()
	return err
}

// Close begins teardown. Safe to call from any goroutine, any number of times;
// only the first reason is kept.
func (s *Session) Close(reason string) {
	s.mu.Lock()
	if !s.transitionLocked(StateClosing) {
		s.mu.Unlock()
		return
	}
	s.reason = reason
	close(s.closing)
	ai := s.ai
	callSid := s.callSid
	idle := s.idle
	redirect := upstreamFailure(reason) && s.control != nil && callSid != ""
	if redirect {
		// Added under s.mu so finish cannot pass background.Wait first.
		s.background.Add(1)
	}
	s.mu.Unlock()

	if idle != nil {
		idle.Stop()
	}

	if cleanEnd(reason) {
		s.log.Info("session closing", "reason", reason)
	} else {
		s.log.Warn("session closing", "reason", reason)
	}

	_ = s.carrier.Close()
	if ai != nil {
		_ = ai.Close()
	}

	// The redirect races the carrier hanging up on its own; it must never
	// hold the links open.
	if redirect {
		go func() {
			defer s.background.Done()
			s.redirectToApology(callSid)
		}()
	}
}

func (s *Session) transition(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to)
}

// transitionLocked is the single place state changes. Callers hold s.mu.
func (s *Session) transitionLocked(to State) bool {
	if !canTransition(s.state, to) {
		return false
	}
	s.log.Debug("session state", "from", s.state.String(), "to", to.String())
	s.state = to
	return true
}

func (s *Session) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

func (s *Session) aiLink() Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ai
}

// connectAI opens and configures the AI link. It reports whether the session became Active.
func (s *Session) connectAI(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-s.closing:
			cancel()
		case <-stop:
		}
	}()

	ai, err := s.dialer.Dial(dialCtx, s.profile.AIModel)
	if err != nil {
		if s.isClosing() {
			return false
		}
		s.log.Error("ai connect failed", "model", s.profile.AIModel, "err", err,
			"timed_out", errors.Is(dialCtx.Err(), context.DeadlineExceeded))
		s.Close(ReasonAIConnectFailed)
		return false
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		_ = ai.Close()
		return false
	}
	s.ai = ai
	s.mu.Unlock()

	update, err := json.Marshal(realtime.NewSessionUpdate(BuildInstructions(s.profile), s.profile.VoiceID))
	if err != nil {
		s.Close(ReasonAIConfigureFailed)
		return false
	}
	// Must precede any audio: writers are not running yet.
	if err := ai.WriteMessage(update); err != nil {
		s.log.Error("ai configure failed", "err", err)
		s.Close(ReasonAIConfigureFailed)
		return false
	}
	if !s.transition(StateActive) {
		return false
	}
	s.log.Info("session active", "model", s.profile.AIModel, "voice", s.profile.VoiceID)
	return true
}

func (s *Session) readCarrier() error {
	malformed := 0
	for {
		data, err := s.carrier.ReadMessage()
		if err != nil {
			if !s.isClosing() {
				s.log.Info("carrier link ended", "err", err)
			}
			s.Close(ReasonCarrierClosed)
			return nil
		}
		s.resetIdle()

		frame, err := telephony.DecodeMediaFrame(data)
		if err != nil {
			s.framesMalformed.Add(1)
			malformed++
			s.log.Warn("carrier frame dropped", "err", err, "consecutive", malformed)
			if malformed >= s.cfg.MaxMalformedFrames {
				s.Close(ReasonMalformed)
				return nil
			}
			continue
		}
		malformed = 0

		switch frame.Event {
		case telephony.MediaEventStart:
			s.applyStart(frame.Start, frame.StreamSid)
		case telephony.MediaEventMedia:
			if s.State() != StateActive {
				s.framesDropped.Add(1)
				continue
			}
			ev, ok := CarrierFrameToAIEvent(frame)
			if !ok {
				continue
			}
			buf, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("bridge: encode ai event: %w", err)
			}
			if !s.enqueue(s.toAI, buf) {
				return nil
			}
		case telephony.MediaEventStop:
			s.Close(ReasonCarrierStop)
			return nil
		default:
			// connected, mark, dtmf: nothing to relay.
		}
	}
}

func (s *Session) readAI() error {
	ai := s.aiLink()
	malformed := 0
	for {
		data, err := ai.ReadMessage()
		if err != nil {
			if !s.isClosing() {
				s.log.Warn("ai link ended", "err", err)
			}
			s.Close(ReasonAIClosed)
			return nil
		}

		ev, err := realtime.DecodeServerEvent(data)
		if err != nil {
			s.framesMalformed.Add(1)
			malformed++
			s.log.Warn("ai frame dropped", "err", err, "consecutive", malformed)
			if malformed >= s.cfg.MaxMalformedFrames {
				s.Close(ReasonMalformed)
				return nil
			}
			continue
		}
		malformed = 0

		if ev.Type == realtime.EventError && ev.Error != nil {
			s.log.Warn("ai reported error", "code", ev.Error.Code, "message", ev.Error.Message)
			continue
		}

		frame, ok := AIEventToCarrierFrame(ev, s.StreamSid())
		if !ok {
			continue
		}
		buf, err := json.Marshal(frame)
		if err != nil {
			return fmt.Errorf("bridge: encode carrier frame: %w", err)
		}
		if !s.enqueue(s.toCarrier, buf) {
			return nil
		}
	}
}

// enqueue blocks while the direction's queue is full, suspending only that
// direction. It gives up once the session is closing.
func (s *Session) enqueue(q chan<- []byte, msg []byte) bool {
	if s.isClosing() {
		return false
	}
	select {
	case q <- msg:
		return true
	case <-s.closing:
		return false
	}
}

func (s *Session) writePump(dst Link, q <-chan []byte, sent *atomic.Int64, failReason string) error {
	for {
		select {
		case <-s.closing:
			return nil
		case msg := <-q:
			if s.isClosing() {
				return nil
			}
			if err := dst.WriteMessage(msg); err != nil {
				if !s.isClosing() {
					s.log.Warn("link write failed", "reason", failReason, "err", err)
				}
				s.Close(failReason)
				return nil
			}
			sent.Add(1)
		}
	}
}

func (s *Session) spawn(g *errgroup.Group, name string, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("session goroutine panicked", "goroutine", name, "panic", r, "stack", string(debug.Stack()))
				err = fmt.Errorf("bridge: %s panicked: %v", name, r)
				s.Close(ReasonPanic)
			}
		}()
		return fn()
	})
}

func (s *Session) resetIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idle != nil && s.state != StateClosing && s.state != StateClosed {
		s.idle.Reset(s.cfg.IdleTimeout)
	}
}

func (s *Session) applyStart(start *telephony.StreamStart, streamSid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if streamSid != "" {
		s.streamSid = streamSid
	}
	if start == nil {
		return
	}
	if start.StreamSid != "" {
		s.streamSid = start.StreamSid
	}
	if start.CallSid != "" {
		s.callSid = start.CallSid
	}
}

func (s *Session) redirectToApology(callSid string) {
	if s.control == nil || callSid == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ControlTimeout)
	defer cancel()
	if err := s.control.EndWithMessage(ctx, callSid, telephony.MessageAssistantLost); err != nil {
		s.log.Warn("apology redirect failed", "call_sid", callSid, "err", err)
	}
}

func (s *Session) finish() {
	// Every pump exit path closes; this covers a pump returning an error first.
	s.Close(ReasonCarrierClosed)

	if s.onClose != nil {
		s.onClose(s)
	}

	s.mu.Lock()
	if s.transitionLocked(StateClosed) {
		s.endedAt = s.now()
	}
	s.mu.Unlock()
	s.background.Wait()
	close(s.done)

	c := s.Counters()
	s.log.Info("session closed",
		"reason", s.EndReason(),
		"frames_to_ai", c.ToAI,
		"frames_to_carrier", c.ToCarrier,
		"frames_dropped", c.Dropped,
		"frames_malformed", c.Malformed,
	)
	s.recordFinish()
}

func (s *Session) record() calls.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := calls.Record{
		SessionID: s.id,
		TenantID:  s.profile.TenantID,
		CallSid:   s.callSid,
		StreamSid: s.streamSid,
		Status:    calls.StatusInProgress,
		EndReason: s.reason,
		StartedAt: s.startedAt,
	}
	if s.state == StateClosed {
		ended := s.endedAt
		r.EndedAt = &ended
		r.Status = calls.StatusFailed
		if cleanEnd(s.reason) {
			r.Status = calls.StatusCompleted
		}
	}
	r.Counters = calls.Counters{
		ToAI:      s.framesToAI.Load(),
		ToCarrier: s.framesToCarrier.Load(),
		Dropped:   s.framesDropped.Load(),
		Malformed: s.framesMalformed.Load(),
	}
	return r
}

func (s *Session) recordStart(ctx context.Context) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ControlTimeout)
	defer cancel()
	if err := s.recorder.Start(ctx, s.record()); err != nil {
		s.log.Warn("call record start failed", "err", err)
	}
}

func (s *Session) recordFinish() {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ControlTimeout)
	defer cancel()
	if err := s.recorder.Finish(ctx, s.record()); err != nil {
		s.log.Warn("call record finish failed", "err", err)
	}
}

// Info is a point-in-time view of a session for operators.
type Info struct {
	SessionID  string         `json:"session_id"`
	TenantID   string         `json:"tenant_id"`
	CallSid    string         `json:"call_sid,omitempty"`
	StreamSid  string         `json:"stream_sid,omitempty"`
	State      string         `json:"state"`
	StartedAt  time.Time      `json:"started_at"`
	AgeSeconds float64        `json:"age_seconds"`
	Counters   calls.Counters `json:"counters"`
}

func (s *Session) Info() Info {
	r := s.record()
	return Info{
		SessionID:  r.SessionID,
		TenantID:   r.TenantID,
		CallSid:    r.CallSid,
		StreamSid:  r.StreamSid,
		State:      s.State().String(),
		StartedAt:  r.StartedAt,
		AgeSeconds: s.now().Sub(r.StartedAt).Seconds(),
		Counters:   r.Counters,
	}
}
