// Package mutation orchestrates write operations and propagates cache
// invalidation after they succeed.
//
// Mutations never read from the cache; they always hit the transport.
// On success every cache entry matching the mutation's invalidation
// set is evicted outright, forcing dependent queries to refetch.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liimonx/isp-console/internal/data/cache"
	"github.com/liimonx/isp-console/internal/data/classify"
	"github.com/liimonx/isp-console/internal/data/metrics"
	"github.com/liimonx/isp-console/internal/data/ratelimit"
	"github.com/liimonx/isp-console/internal/data/retry"
)

// ErrBlocked is returned when a mutation is attempted while the
// rate-limit gate is blocked; no transport call is made.
var ErrBlocked = errors.New("rate limited, write not attempted")

// Operation performs a single write against the backend.
type Operation func(ctx context.Context, vars any) (any, error)

// Config controls one mutation.
type Config struct {
	// Invalidates lists the request-key patterns whose cache entries
	// are evicted when the mutation succeeds. Nil evicts everything,
	// the conservative default.
	Invalidates []string

	// Retry tightens the write retry policy for this call site.
	Retry retry.Override

	// OnMutate is an optional side effect run before the operation is
	// issued, e.g. an optimistic UI update.
	OnMutate func(vars any)
}

// Result is the terminal outcome of one mutation execution.
type Result struct {
	Data      any
	Err       error
	ErrorKind classify.Kind
	Attempts  int
}

// Ok reports whether the mutation succeeded.
func (r Result) Ok() bool {
	return r.Err == nil
}

// Executor runs write operations through the gate and the write retry
// policy, then evicts the affected cache entries.
type Executor struct {
	store  *cache.Store
	gate   ratelimit.Gate
	policy *retry.Policy
	log    *slog.Logger
}

// NewExecutor creates a mutation executor.
func NewExecutor(store *cache.Store, gate ratelimit.Gate, policy *retry.Policy, log *slog.Logger) *Executor {
	return &Executor{
		store:  store,
		gate:   gate,
		policy: policy,
		log:    log,
	}
}

// New returns a reusable handle for one write operation.
func (e *Executor) New(cfg Config, op Operation) *Mutation {
	return &Mutation{e: e, cfg: cfg, op: op}
}

// Mutation is the caller-visible handle for a write operation.
type Mutation struct {
	e   *Executor
	cfg Config
	op  Operation

	mu      sync.Mutex
	pending bool
	last    Result
}

// Pending reports whether an execution is in flight.
func (m *Mutation) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// Last returns the result of the most recent execution.
func (m *Mutation) Last() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Execute runs the mutation to a terminal result. Network, server,
// and unknown failures are retried within the write attempt budget;
// auth and validation failures are surfaced verbatim.
func (m *Mutation) Execute(ctx context.Context, vars any) Result {
	m.mu.Lock()
	m.pending = true
	m.mu.Unlock()

	res := m.e.execute(ctx, m.cfg, m.op, vars)

	m.mu.Lock()
	m.pending = false
	m.last = res
	m.mu.Unlock()
	return res
}

func (e *Executor) execute(ctx context.Context, cfg Config, op Operation, vars any) Result {
	log := e.log.With("run", uuid.NewString()[:8])

	if cfg.OnMutate != nil {
		cfg.OnMutate(vars)
	}

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return Result{Err: err, ErrorKind: classify.Classify(err), Attempts: attempts}
		}

		// Consult the gate before issuing the call. Unlike queries,
		// writes fail fast while blocked: the caller decides whether
		// replaying the write after the window is still wanted.
		if blocked, resumeAt := e.gate.Blocked(); blocked {
			metrics.RateLimitBlocks.Inc()
			metrics.MutationsTotal.WithLabelValues("rate_limited").Inc()
			return Result{
				Err:       fmt.Errorf("rate limited until %s: %w", resumeAt.Format(time.RFC3339), ErrBlocked),
				ErrorKind: classify.KindRateLimit,
				Attempts:  attempts,
			}
		}

		start := time.Now()
		data, err := op(ctx, vars)
		metrics.TransportLatency.WithLabelValues("mutation").Observe(time.Since(start).Seconds())

		if err == nil {
			e.invalidate(cfg, log)
			e.gate.Clear()
			metrics.MutationsTotal.WithLabelValues("success").Inc()
			return Result{Data: data, Attempts: attempts}
		}

		attempts++
		kind := classify.Classify(err)
		log.Warn("mutation failed", "kind", kind.String(), "attempts", attempts, "error", err)

		if kind == classify.KindRateLimit {
			delay := e.policy.Delay(kind, attempts, classify.RetryAfter(err))
			e.gate.BlockUntil(time.Now().Add(delay))
			metrics.MutationsTotal.WithLabelValues("rate_limited").Inc()
			return Result{Err: err, ErrorKind: kind, Attempts: attempts}
		}

		if !e.policy.ShouldRetry(kind, attempts, cfg.Retry) {
			metrics.MutationsTotal.WithLabelValues("error").Inc()
			return Result{Err: err, ErrorKind: kind, Attempts: attempts}
		}

		metrics.RetriesTotal.WithLabelValues(kind.String()).Inc()
		select {
		case <-ctx.Done():
			return Result{Err: ctx.Err(), ErrorKind: classify.KindNetwork, Attempts: attempts}
		case <-time.After(e.policy.Delay(kind, attempts, 0)):
		}
	}
}

func (e *Executor) invalidate(cfg Config, log *slog.Logger) {
	patterns := cfg.Invalidates
	if len(patterns) == 0 {
		patterns = []string{cache.MatchAll}
	}
	removed := e.store.EvictMatching(patterns...)
	if removed > 0 {
		metrics.InvalidationsTotal.Add(float64(removed))
		log.Debug("invalidated cache entries", "patterns", patterns, "removed", removed)
	}
}
