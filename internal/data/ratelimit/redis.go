package ratelimit

import (
	"context"
	"log/slog"
	"time"

	redisclient "github.com/liimonx/isp-console/internal/infra/redis"
)

const defaultGateKey = "console:ratelimit:gate"

// RedisGate shares throttle state between console replicas through
// Redis. Every write is mirrored into a local MemoryGate so a Redis
// outage degrades to process-local behavior instead of dropping the
// block entirely.
type RedisGate struct {
	client *redisclient.Client
	key    string
	local  MemoryGate
	log    *slog.Logger
}

// NewRedisGate creates a gate backed by the given Redis client. An
// empty key selects the default.
func NewRedisGate(client *redisclient.Client, key string, log *slog.Logger) *RedisGate {
	if key == "" {
		key = defaultGateKey
	}
	return &RedisGate{client: client, key: key, log: log}
}

func (g *RedisGate) Blocked() (bool, time.Time) {
	if blocked, resumeAt := g.local.Blocked(); blocked {
		return blocked, resumeAt
	}

	ctx, cancel := g.opContext()
	defer cancel()

	resumeAt, err := g.client.GateResume(ctx, g.key)
	if err != nil {
		g.log.Warn("redis gate unreachable, using local state", "error", err)
		return g.local.Blocked()
	}
	if time.Now().Before(resumeAt) {
		// Remember it locally so repeated lookups stay cheap.
		g.local.BlockUntil(resumeAt)
		return true, resumeAt
	}
	return false, time.Time{}
}

func (g *RedisGate) BlockUntil(resumeAt time.Time) {
	g.local.BlockUntil(resumeAt)

	ctx, cancel := g.opContext()
	defer cancel()

	if err := g.client.GateBlockUntil(ctx, g.key, resumeAt); err != nil {
		g.log.Warn("failed to share rate-limit block", "error", err)
	}
}

func (g *RedisGate) Clear() {
	g.local.Clear()

	ctx, cancel := g.opContext()
	defer cancel()

	if err := g.client.GateClear(ctx, g.key); err != nil {
		g.log.Warn("failed to clear shared rate-limit block", "error", err)
	}
}

func (g *RedisGate) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Second)
}
