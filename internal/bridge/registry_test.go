package bridge

import (
	"context"
	"testing"
	"time"

	"merxus-voice-bridge/internal/tenant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idleSession(t *testing.T, id string, startedAt time.Time) *Session {
	t.Helper()
	s, err := NewSession(SessionParams{
		ID:      id,
		Profile: tenant.Profile{TenantID: "t1"},
		Carrier: newFakeLink(),
		Dialer:  dialTo(newFakeLink()),
		Now:     func() time.Time { return startedAt },
	})
	require.NoError(t, err)
	return s
}

func TestRegistry_AddRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	a := idleSession(t, "CA1", now)
	require.NoError(t, r.Add(a))
	assert.ErrorIs(t, r.Add(idleSession(t, "CA1", now)), ErrDuplicateSession)

	got, ok := r.Get("CA1")
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestRegistry_RemoveOnlyMatchingSession(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	a := idleSession(t, "CA1", now)
	require.NoError(t, r.Add(a))

	r.Remove(idleSession(t, "CA1", now))
	assert.Equal(t, 1, r.Len())

	r.Remove(a)
	r.Remove(a)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_SnapshotOldestFirst(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.Add(idleSession(t, "late", base.Add(time.Minute))))
	require.NoError(t, r.Add(idleSession(t, "early", base)))

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "early", snap[0].SessionID)
	assert.Equal(t, "late", snap[1].SessionID)
}

func TestRegistry_CloseAllAndWait(t *testing.T) {
	r := NewRegistry()
	var hs []*harness
	for i := 0; i < 3; i++ {
		h := newHarness(t, Config{}, nil)
		h.reg = r
		h.sess.onClose = r.Remove
		h.sess.id = []string{"CA1", "CA2", "CA3"}[i]
		require.NoError(t, r.Add(h.sess))
		hs = append(hs, h)
	}
	for _, h := range hs {
		runSession(context.Background(), h.sess)
		h.waitActive(t)
	}

	assert.Equal(t, 3, r.CloseAll(ReasonShutdown))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	assert.True(t, r.Wait(ctx))
	assert.Equal(t, 0, r.Len())
	for _, h := range hs {
		assert.Equal(t, ReasonShutdown, h.sess.EndReason())
	}
}

func TestRegistry_WaitHonorsContext(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(idleSession(t, "CA1", time.Now())))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, r.Wait(ctx))
}

func TestRegistry_RefusesSessionsAfterCloseAll(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.CloseAll(ReasonShutdown))

	late := newHarness(t, Config{}, nil)
	assert.ErrorIs(t, r.Add(late.sess), ErrRegistryClosed)
	assert.Equal(t, 0, r.Len())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.True(t, r.Wait(ctx))
}
