// Package console wires the data-access layer for the ISP operations
// console and exposes typed resource services on top of it.
package console

import (
	"log/slog"

	"github.com/liimonx/isp-console/internal/data/cache"
	"github.com/liimonx/isp-console/internal/data/mutation"
	"github.com/liimonx/isp-console/internal/data/query"
	"github.com/liimonx/isp-console/internal/data/ratelimit"
	"github.com/liimonx/isp-console/internal/data/retry"
	"github.com/liimonx/isp-console/internal/infra/transport"
)

// Console owns the data-access layer: one cache store, one rate-limit
// gate, and the query and mutation executors. It is created once at
// application start and passed down; there are no package-level
// singletons.
type Console struct {
	transport *transport.Client
	store     *cache.Store
	gate      ratelimit.Gate
	queries   *query.Executor
	mutations *mutation.Executor
	log       *slog.Logger
}

// New wires a Console. A nil gate gets a process-local one.
func New(t *transport.Client, gate ratelimit.Gate, retryCfg retry.Config, cacheDefaults cache.Options, log *slog.Logger) *Console {
	if gate == nil {
		gate = ratelimit.NewMemoryGate()
	}
	store := cache.NewStore(cacheDefaults)
	return &Console{
		transport: t,
		store:     store,
		gate:      gate,
		queries:   query.NewExecutor(store, gate, retry.NewReadPolicy(retryCfg), log),
		mutations: mutation.NewExecutor(store, gate, retry.NewWritePolicy(retryCfg), log),
		log:       log,
	}
}

// Store exposes the cache store, mainly for the ops endpoints.
func (c *Console) Store() *cache.Store {
	return c.store
}

// Gate exposes the rate-limit gate.
func (c *Console) Gate() ratelimit.Gate {
	return c.gate
}

// Queries exposes the query executor for ad-hoc reads.
func (c *Console) Queries() *query.Executor {
	return c.queries
}

// Mutations exposes the mutation executor for ad-hoc writes.
func (c *Console) Mutations() *mutation.Executor {
	return c.mutations
}
