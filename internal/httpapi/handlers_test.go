package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"merxus-voice-bridge/internal/audit"
	"merxus-voice-bridge/internal/auth"
	"merxus-voice-bridge/internal/bridge"
	"merxus-voice-bridge/internal/config"
	"merxus-voice-bridge/internal/calls"
	"merxus-voice-bridge/internal/rbac"
	"merxus-voice-bridge/internal/reporting"
	"merxus-voice-bridge/internal/tenant"

	"github.com/gin-gonic/gin"
)

type idleLink struct {
	once   sync.Once
	closed chan struct{}
}

func newIdleLink() *idleLink { return &idleLink{closed: make(chan struct{})} }

func (l *idleLink) ReadMessage() ([]byte, error) {
	<-l.closed
	return nil, bridge.ErrLinkClosed
}
func (l *idleLink) WriteMessage([]byte) error { return nil }
func (l *idleLink) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

type noDialer struct{}

func (noDialer) Dial(context.Context, string) (bridge.Link, error) {
	return nil, errors.New("not dialed in handler tests")
}

func register(t *testing.T, reg *bridge.Registry, id, tenantID string) (*bridge.Session, *idleLink) {
	t.Helper()
	carrier := newIdleLink()
	s, err := bridge.NewSession(bridge.SessionParams{
		ID:      id,
		Profile: tenant.Profile{TenantID: tenantID},
		Carrier: carrier,
		Dialer:  noDialer{},
		CallSid: id,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := reg.Add(s); err != nil {
		t.Fatalf("register: %v", err)
	}
	return s, carrier
}

func router(h Handlers, role, scope string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	identity := func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "op1", role, scope))
		c.Next()
	}
	r.GET("/healthz", h.Healthz)
	v1 := r.Group("/v1", identity)
	v1.GET("/sessions", append(RequireTenantScopeAndAnyRole(rbac.RoleSupport, rbac.RoleTenantAdmin, rbac.RoleOperator), h.ListSessions)...)
	v1.DELETE("/sessions/:session_id", append(RequireTenantScopeAndAnyRole(rbac.RoleTenantAdmin, rbac.RoleOperator), h.EndSession)...)
	v1.GET("/reports/calls", append(RequireTenantScopeAndAnyRole(rbac.RoleSupport, rbac.RoleTenantAdmin, rbac.RoleOperator), h.CallsSummary)...)
	r.POST("/dev/token", h.IssueDevToken)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func expectCode(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestListSessions_FiltersByTenantScope(t *testing.T) {
	reg := bridge.NewRegistry()
	register(t, reg, "CA1", "t1")
	register(t, reg, "CA2", "t2")
	h := Handlers{Registry: reg}

	var body struct {
		Sessions []bridge.Info `json:"sessions"`
	}

	w := do(router(h, rbac.RoleTenantAdmin, "t1"), http.MethodGet, "/v1/sessions", "")
	expectCode(t, w, http.StatusOK)
	decode(t, w, &body)
	if len(body.Sessions) != 1 || body.Sessions[0].SessionID != "CA1" || body.Sessions[0].State != "connecting" {
		t.Fatalf("expected only CA1 connecting, got %+v", body.Sessions)
	}

	w = do(router(h, rbac.RoleOperator, ""), http.MethodGet, "/v1/sessions", "")
	expectCode(t, w, http.StatusOK)
	decode(t, w, &body)
	if len(body.Sessions) != 2 {
		t.Fatalf("expected operator to see 2 sessions, got %d", len(body.Sessions))
	}
}

func TestEndSession_ClosesAndAudits(t *testing.T) {
	reg := bridge.NewRegistry()
	sess, carrier := register(t, reg, "CA1", "t1")
	repo := audit.NewMemoryRepo()
	h := Handlers{Registry: reg, Audit: audit.NewService(repo)}

	w := do(router(h, rbac.RoleOperator, ""), http.MethodDelete, "/v1/sessions/CA1", "")
	expectCode(t, w, http.StatusAccepted)

	if sess.State() != bridge.StateClosing || sess.EndReason() != bridge.ReasonOperator {
		t.Fatalf("expected closing by operator, got %s %q", sess.State(), sess.EndReason())
	}
	select {
	case <-carrier.closed:
	case <-time.After(time.Second):
		t.Fatal("expected carrier link closed")
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(evs))
	}
	e := evs[0]
	if e.Type != audit.EventTypeOperatorEndCall || e.TenantID != "t1" || e.ActorOperatorID != "op1" {
		t.Fatalf("unexpected audit event %+v", e)
	}
}

func TestEndSession_OtherTenantIsNotFound(t *testing.T) {
	reg := bridge.NewRegistry()
	sess, _ := register(t, reg, "CA2", "t2")
	h := Handlers{Registry: reg}

	expectCode(t, do(router(h, rbac.RoleTenantAdmin, "t1"), http.MethodDelete, "/v1/sessions/CA2", ""), http.StatusNotFound)
	if sess.State() != bridge.StateConnecting {
		t.Fatalf("other tenant's session must be untouched, got %s", sess.State())
	}
	expectCode(t, do(router(h, rbac.RoleTenantAdmin, "t1"), http.MethodDelete, "/v1/sessions/missing", ""), http.StatusNotFound)
}

func TestEndSession_SupportCannotEnd(t *testing.T) {
	reg := bridge.NewRegistry()
	register(t, reg, "CA1", "t1")
	h := Handlers{Registry: reg}

	expectCode(t, do(router(h, rbac.RoleSupport, "t1"), http.MethodDelete, "/v1/sessions/CA1", ""), http.StatusForbidden)
}

func TestHealthz(t *testing.T) {
	h := Handlers{Registry: bridge.NewRegistry()}
	expectCode(t, do(router(h, "", ""), http.MethodGet, "/healthz", ""), http.StatusOK)

	h.HealthCheck = func(context.Context) error { return errors.New("db down") }
	expectCode(t, do(router(h, "", ""), http.MethodGet, "/healthz", ""), http.StatusServiceUnavailable)
}

func TestIssueDevToken(t *testing.T) {
	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "s", AccessTokenTTL: time.Minute})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	expectCode(t, do(router(Handlers{}, "", ""), http.MethodPost, "/dev/token", `{"operator_id":"op1","role":"operator"}`), http.StatusNotFound)

	h := Handlers{Auth: m}
	expectCode(t, do(router(h, "", ""), http.MethodPost, "/dev/token", `{"operator_id":"op1","role":"tenant_admin"}`), http.StatusBadRequest)
	expectCode(t, do(router(h, "", ""), http.MethodPost, "/dev/token", `{"operator_id":"op1","role":"root","tenant_id":"t1"}`), http.StatusBadRequest)

	w := do(router(h, "", ""), http.MethodPost, "/dev/token", `{"operator_id":"op1","role":"tenant_admin","tenant_id":"t1"}`)
	expectCode(t, w, http.StatusOK)
	var body map[string]string
	decode(t, w, &body)

	claims, err := m.Verify(body["access_token"], auth.TokenTypeAccess, time.Now())
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if claims.TenantID != "t1" || claims.Role != rbac.RoleTenantAdmin {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestCallsSummary_ScopedToCallerTenant(t *testing.T) {
	repo := reporting.NewMemoryRepo()
	started := time.Now().UTC().Add(-time.Hour)
	done := started.Add(90 * time.Second)
	repo.Calls = []calls.Record{
		{SessionID: "CA1", TenantID: "t1", Status: calls.StatusCompleted, EndReason: "carrier_stop", StartedAt: started, EndedAt: &done},
		{SessionID: "CA2", TenantID: "t2", Status: calls.StatusFailed, StartedAt: started, EndedAt: &done},
	}
	h := Handlers{Reports: reporting.NewService(repo)}

	w := do(router(h, rbac.RoleTenantAdmin, "t1"), http.MethodGet, "/v1/reports/calls", "")
	expectCode(t, w, http.StatusOK)
	var out reporting.CallsSummary
	decode(t, w, &out)
	if out.TenantID != "t1" || out.TotalCalls != 1 || out.AverageDurationSeconds != 90 {
		t.Fatalf("unexpected summary %+v", out)
	}

	expectCode(t, do(router(h, rbac.RoleTenantAdmin, "t1"), http.MethodGet, "/v1/reports/calls?tenant_id=t2", ""), http.StatusForbidden)
	expectCode(t, do(router(h, rbac.RoleOperator, ""), http.MethodGet, "/v1/reports/calls", ""), http.StatusBadRequest)
	expectCode(t, do(router(h, rbac.RoleOperator, ""), http.MethodGet, "/v1/reports/calls?tenant_id=t2&from=yesterday", ""), http.StatusBadRequest)
}
