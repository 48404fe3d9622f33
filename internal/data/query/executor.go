package query

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/liimonx/isp-console/internal/data/cache"
	"github.com/liimonx/isp-console/internal/data/classify"
	"github.com/liimonx/isp-console/internal/data/metrics"
	"github.com/liimonx/isp-console/internal/data/ratelimit"
	"github.com/liimonx/isp-console/internal/data/retry"
	"github.com/liimonx/isp-console/internal/infra/transport"
)

// Executor runs read operations through the cache, gate, and retry
// policy. One Executor serves every query in the process; per-key
// in-flight calls are collapsed so two callers sharing a request key
// observe a single transport invocation.
type Executor struct {
	store  *cache.Store
	gate   ratelimit.Gate
	policy *retry.Policy
	log    *slog.Logger

	sf singleflight.Group
}

// NewExecutor creates a query executor.
func NewExecutor(store *cache.Store, gate ratelimit.Gate, policy *retry.Policy, log *slog.Logger) *Executor {
	return &Executor{
		store:  store,
		gate:   gate,
		policy: policy,
		log:    log,
	}
}

// Run starts the query and returns its handle. A fresh cache entry is
// returned without contacting the transport; a stale-but-usable entry
// is returned immediately while a silent refresh runs; an absent entry
// forces a blocking fetch.
func (e *Executor) Run(ctx context.Context, cfg Config, op transport.Operation) *Query {
	runCtx, cancel := context.WithCancel(ctx)
	q := &Query{
		e:       e,
		cfg:     cfg,
		op:      op,
		ctx:     runCtx,
		cancel:  cancel,
		updates: make(chan State, 1),
		kick:    make(chan struct{}, 1),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		log:     e.log.With("query", cfg.Key, "run", shortID()),
	}

	if cfg.disabled() {
		// Short-circuit before any cache or transport access.
		close(q.ready)
		close(q.done)
		metrics.QueriesTotal.WithLabelValues("disabled").Inc()
		return q
	}

	go q.run()
	return q
}

// Query is the handle for one running read operation.
type Query struct {
	e   *Executor
	cfg Config
	op  transport.Operation
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State

	updates   chan State
	kick      chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

// State returns the current caller-visible snapshot.
func (q *Query) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Updates delivers state snapshots as they change. The channel
// coalesces: a slow reader only sees the latest state.
func (q *Query) Updates() <-chan State {
	return q.updates
}

// Wait blocks until the query has settled (data available or terminal
// error) or the given context is done, and returns the state at that
// point.
func (q *Query) Wait(ctx context.Context) State {
	select {
	case <-q.ready:
	case <-ctx.Done():
	}
	return q.State()
}

// Retry re-issues the call immediately, bypassing any scheduled
// backoff. It is a no-op when CanRetry is false.
func (q *Query) Retry() {
	q.mu.Lock()
	can := q.state.CanRetry
	q.mu.Unlock()
	if !can {
		return
	}
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

// Close tears down the query. Any pending retry timer is abandoned;
// a transport result that arrives afterwards is discarded rather than
// stored.
func (q *Query) Close() {
	q.cancel()
}

// Done is closed once the query's goroutine has exited.
func (q *Query) Done() <-chan struct{} {
	return q.done
}

func (q *Query) run() {
	defer close(q.done)

	ent, fr := q.e.store.Lookup(q.cfg.Key)
	metrics.CacheLookups.WithLabelValues(fr.String()).Inc()

	switch fr {
	case cache.Fresh:
		q.set(State{Data: ent.Data})
		metrics.QueriesTotal.WithLabelValues("cached").Inc()
		return
	case cache.Stale:
		// Serve last-known data now, refresh silently.
		q.set(State{Data: ent.Data})
		q.fetch(true)
	default:
		q.set(State{Loading: true})
		q.fetch(false)
	}
}

// fetch drives the transport call to a terminal outcome. Transient
// failures back off and retry within the policy's attempt budget;
// rate-limit waits are tracked on a separate counter so a long
// throttle does not exhaust it.
func (q *Query) fetch(silent bool) {
	attempts := 0
	rlWaits := 0

	for {
		if q.ctx.Err() != nil {
			return
		}

		if blocked, resumeAt := q.e.gate.Blocked(); blocked {
			metrics.RateLimitBlocks.Inc()
			rlWaits++
			if !q.e.policy.ShouldRetry(classify.KindRateLimit, rlWaits, q.cfg.Retry) {
				q.terminal(classify.KindRateLimit, ErrRateLimited, attempts, silent)
				return
			}
			q.update(func(s *State) {
				s.RateLimited = true
				s.ErrorKind = classify.KindRateLimit
				s.CanRetry = true
			})
			q.log.Debug("rate limited, waiting", "resume_at", resumeAt)
			if !q.sleepUntil(resumeAt) {
				return
			}
			continue
		}

		q.update(func(s *State) {
			s.RateLimited = false
			s.CanRetry = false
		})

		data, err := q.invoke()
		if q.ctx.Err() != nil {
			// Torn down while in flight: discard the result.
			return
		}

		if err == nil {
			q.e.store.Put(q.cfg.Key, data, q.cfg.Cache)
			q.e.gate.Clear()
			q.set(State{Data: data})
			metrics.QueriesTotal.WithLabelValues("success").Inc()
			return
		}

		kind := classify.Classify(err)
		q.log.Warn("query failed", "kind", kind.String(), "attempts", attempts, "error", err)

		if kind == classify.KindRateLimit {
			rlWaits++
			delay := q.e.policy.Delay(kind, rlWaits, classify.RetryAfter(err))
			q.e.gate.BlockUntil(time.Now().Add(delay))
			if !q.e.policy.ShouldRetry(kind, rlWaits, q.cfg.Retry) {
				q.terminal(kind, err, attempts, silent)
				return
			}
			q.update(func(s *State) {
				s.RateLimited = true
				s.ErrorKind = kind
				s.CanRetry = true
			})
			if !q.sleep(delay) {
				return
			}
			continue
		}

		attempts++
		if !q.e.policy.ShouldRetry(kind, attempts, q.cfg.Retry) {
			q.terminal(kind, err, attempts, silent)
			return
		}

		metrics.RetriesTotal.WithLabelValues(kind.String()).Inc()
		q.update(func(s *State) {
			s.ErrorKind = kind
			s.Attempts = attempts
			s.CanRetry = true
		})
		if !q.sleep(q.e.policy.Delay(kind, attempts, 0)) {
			return
		}
	}
}

// invoke issues the transport call, collapsing concurrent calls for
// the same request key into one.
func (q *Query) invoke() (any, error) {
	start := time.Now()
	data, err, _ := q.e.sf.Do(q.cfg.Key, func() (any, error) {
		return q.op(q.ctx)
	})
	metrics.TransportLatency.WithLabelValues("query").Observe(time.Since(start).Seconds())
	return data, err
}

func (q *Query) terminal(kind classify.Kind, err error, attempts int, silent bool) {
	metrics.QueriesTotal.WithLabelValues("error").Inc()
	if silent {
		// A failed background refresh keeps the stale data on screen;
		// the entry stays stale so the next caller refreshes again.
		q.e.store.MarkStale(q.cfg.Key)
		q.update(func(s *State) {
			s.ErrorKind = kind
			s.Err = err
			s.Attempts = attempts
			s.RateLimited = kind == classify.KindRateLimit
			s.CanRetry = false
		})
		return
	}
	q.set(State{
		Err:         err,
		ErrorKind:   kind,
		Attempts:    attempts,
		RateLimited: kind == classify.KindRateLimit,
	})
}

// sleep waits for the backoff delay, a manual retry, or teardown.
// It returns false when the query was torn down.
func (q *Query) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-q.ctx.Done():
		return false
	case <-q.kick:
		return true
	case <-t.C:
		return true
	}
}

func (q *Query) sleepUntil(at time.Time) bool {
	d := time.Until(at)
	if d <= 0 {
		return q.ctx.Err() == nil
	}
	return q.sleep(d)
}

func (q *Query) set(s State) {
	q.mu.Lock()
	q.state = s
	q.mu.Unlock()
	q.publish(s)
}

func (q *Query) update(fn func(*State)) {
	q.mu.Lock()
	fn(&q.state)
	s := q.state
	q.mu.Unlock()
	q.publish(s)
}

func (q *Query) publish(s State) {
	if s.Settled() {
		q.readyOnce.Do(func() { close(q.ready) })
	}
	for {
		select {
		case q.updates <- s:
			return
		default:
			// Drop the stale snapshot so the latest one wins.
			select {
			case <-q.updates:
			default:
			}
		}
	}
}

func shortID() string {
	return uuid.NewString()[:8]
}
