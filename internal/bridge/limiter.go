package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"merxus-voice-bridge/pkg/utils"

	"github.com/redis/go-redis/v9"
)

var ErrCallCapReached = errors.New("bridge: tenant concurrent call cap reached")

// CallLimiter caps concurrent sessions per tenant. release is idempotent.
type CallLimiter interface {
	Acquire(ctx context.Context, tenantID string) (release func(), err error)
}

// slotTTL outlives any realistic call so a crashed process cannot leak a slot forever.
const slotTTL = 4 * time.Hour

// RedisCallLimiter shares the cap across bridge instances.
// Redis faults fail open: a cache outage must not block calls.
type RedisCallLimiter struct {
	rdb   redis.Scripter
	limit int
	log   *slog.Logger
}

func NewRedisCallLimiter(rdb redis.Scripter, limit int, log *slog.Logger) *RedisCallLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &RedisCallLimiter{rdb: rdb, limit: limit, log: log}
}

func CallCapKey(tenantID string) string { return "calls:active:" + tenantID }

func (l *RedisCallLimiter) Acquire(ctx context.Context, tenantID string) (func(), error) {
	key := CallCapKey(tenantID)
	ok, inUse, err := utils.AcquireSlot(ctx, l.rdb, key, l.limit, slotTTL)
	if err != nil {
		l.log.Warn("call cap check failed, admitting call", "tenant_id", tenantID, "err", err)
		return func() {}, nil
	}
	if !ok {
		l.log.Warn("call cap reached", "tenant_id", tenantID, "limit", l.limit, "in_use", inUse)
		return nil, ErrCallCapReached
	}
	l.log.Debug("call slot acquired", "tenant_id", tenantID, "in_use", inUse)

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if _, err := utils.ReleaseSlot(ctx, l.rdb, key); err != nil {
				l.log.Warn("call slot release failed", "tenant_id", tenantID, "err", err)
			}
		})
	}, nil
}
