package query

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liimonx/isp-console/internal/data/cache"
	"github.com/liimonx/isp-console/internal/data/classify"
	"github.com/liimonx/isp-console/internal/data/ratelimit"
	"github.com/liimonx/isp-console/internal/data/retry"
	"github.com/liimonx/isp-console/internal/infra/transport"
)

func testRetryConfig() retry.Config {
	return retry.Config{
		InitialDelay:     time.Millisecond,
		MaxDelay:         10 * time.Millisecond,
		BackoffMultiple:  2.0,
		Jitter:           0,
		MaxReadAttempts:  4,
		MaxWriteAttempts: 2,
		RateLimitBackoff: 20 * time.Millisecond,
	}
}

func newTestExecutor(cfg retry.Config) (*Executor, *cache.Store, *ratelimit.MemoryGate) {
	store := cache.NewStore(cache.Options{StaleAfter: time.Minute, EvictAfter: time.Hour})
	gate := ratelimit.NewMemoryGate()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewExecutor(store, gate, retry.NewReadPolicy(cfg), log), store, gate
}

// countingOp returns an operation that fails with each error in errs
// in order, then succeeds with data.
func countingOp(calls *atomic.Int64, data any, errs ...error) transport.Operation {
	var idx atomic.Int64
	return func(ctx context.Context) (any, error) {
		calls.Add(1)
		i := idx.Add(1) - 1
		if int(i) < len(errs) {
			return nil, errs[i]
		}
		return data, nil
	}
}

func TestQuery_FreshCacheSkipsTransport(t *testing.T) {
	e, store, _ := newTestExecutor(testRetryConfig())
	store.Put("plans", "cached", cache.Options{})

	var calls atomic.Int64
	q := e.Run(context.Background(), NewConfig("plans"), countingOp(&calls, "fresh"))
	st := q.Wait(context.Background())

	if st.Data != "cached" {
		t.Errorf("Data = %v, want the cached value", st.Data)
	}
	if calls.Load() != 0 {
		t.Errorf("transport calls = %d, want 0 for a fresh cache hit", calls.Load())
	}
}

func TestQuery_DisabledNeverExecutes(t *testing.T) {
	e, _, _ := newTestExecutor(testRetryConfig())

	var calls atomic.Int64
	cfg := NewConfig("customers/7")
	cfg.Enabled = false

	q := e.Run(context.Background(), cfg, countingOp(&calls, "x"))
	<-q.Done()

	st := q.State()
	if st.Loading || st.Data != nil || st.Err != nil {
		t.Errorf("disabled query state = %+v, want empty", st)
	}
	if calls.Load() != 0 {
		t.Errorf("transport calls = %d, want 0", calls.Load())
	}
}

func TestQuery_MissingDependencyDisables(t *testing.T) {
	e, _, _ := newTestExecutor(testRetryConfig())

	var calls atomic.Int64
	cfg := NewConfig("customers/0")
	cfg.Requires = []string{"0"}

	q := e.Run(context.Background(), cfg, countingOp(&calls, "x"))
	<-q.Done()

	if calls.Load() != 0 {
		t.Errorf("transport calls = %d, want 0 for a missing dependency", calls.Load())
	}
}

func TestQuery_FetchesAndCaches(t *testing.T) {
	e, store, _ := newTestExecutor(testRetryConfig())

	var calls atomic.Int64
	q := e.Run(context.Background(), NewConfig("routers"), countingOp(&calls, "fleet"))
	st := q.Wait(context.Background())

	if st.Data != "fleet" || st.Err != nil {
		t.Fatalf("state = %+v, want data with no error", st)
	}
	if st.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0 after success", st.Attempts)
	}
	if !store.IsFresh("routers") {
		t.Error("successful fetch should populate the cache")
	}
}

func TestQuery_RetriesTransientThenSucceeds(t *testing.T) {
	e, _, _ := newTestExecutor(testRetryConfig())

	var calls atomic.Int64
	op := countingOp(&calls, "ok",
		&transport.APIError{Status: 500, Message: "boom"},
		&transport.APIError{Status: 503, Message: "busy"},
	)

	q := e.Run(context.Background(), NewConfig("invoices"), op)
	st := q.Wait(context.Background())

	if st.Data != "ok" || st.Err != nil {
		t.Fatalf("state = %+v, want recovery after retries", st)
	}
	if calls.Load() != 3 {
		t.Errorf("transport calls = %d, want 3", calls.Load())
	}
}

func TestQuery_AuthIsTerminal(t *testing.T) {
	e, _, _ := newTestExecutor(testRetryConfig())

	var calls atomic.Int64
	op := countingOp(&calls, "never", &transport.APIError{Status: 401, Message: "expired"})

	q := e.Run(context.Background(), NewConfig("customers"), op)
	st := q.Wait(context.Background())

	if st.ErrorKind != classify.KindAuth {
		t.Errorf("ErrorKind = %v, want auth", st.ErrorKind)
	}
	if calls.Load() != 1 {
		t.Errorf("transport calls = %d, want 1 (no retry)", calls.Load())
	}
	if st.CanRetry {
		t.Error("CanRetry should be false for a terminal kind")
	}

	// Manual retry on a terminal state is a no-op.
	q.Retry()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("Retry() on a terminal state issued a call, calls = %d", calls.Load())
	}
}

func TestQuery_ExhaustsAttemptBudget(t *testing.T) {
	cfg := testRetryConfig()
	cfg.MaxReadAttempts = 2
	e, _, _ := newTestExecutor(cfg)

	var calls atomic.Int64
	op := countingOp(&calls, "never",
		&transport.APIError{Status: 500, Message: "boom"},
		&transport.APIError{Status: 500, Message: "boom"},
		&transport.APIError{Status: 500, Message: "boom"},
	)

	q := e.Run(context.Background(), NewConfig("subscriptions"), op)
	st := q.Wait(context.Background())

	if st.ErrorKind != classify.KindServer {
		t.Errorf("ErrorKind = %v, want server", st.ErrorKind)
	}
	if st.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", st.Attempts)
	}
	if calls.Load() != 2 {
		t.Errorf("transport calls = %d, want 2", calls.Load())
	}
}

func TestQuery_ConcurrentSameKeyShareOneCall(t *testing.T) {
	e, _, _ := newTestExecutor(testRetryConfig())

	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	op := func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "shared", nil
	}

	q1 := e.Run(context.Background(), NewConfig("plans"), op)
	<-started
	q2 := e.Run(context.Background(), NewConfig("plans"), op)

	// Give the second query time to reach the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(release)

	st1 := q1.Wait(context.Background())
	st2 := q2.Wait(context.Background())

	if st1.Data != "shared" || st2.Data != "shared" {
		t.Fatalf("both queries should observe the shared result, got %v / %v", st1.Data, st2.Data)
	}
	if calls.Load() != 1 {
		t.Errorf("transport calls = %d, want exactly 1", calls.Load())
	}
}

func TestQuery_StaleServesThenRefreshes(t *testing.T) {
	e, store, _ := newTestExecutor(testRetryConfig())
	store.Put("routers", "old", cache.Options{StaleAfter: 10 * time.Millisecond, EvictAfter: time.Hour})
	time.Sleep(30 * time.Millisecond)

	var calls atomic.Int64
	q := e.Run(context.Background(), NewConfig("routers"), countingOp(&calls, "new"))

	// The stale value is served without waiting for the refresh.
	st := q.Wait(context.Background())
	if st.Data == nil {
		t.Fatal("stale entry should be served immediately")
	}

	<-q.Done()
	if got := q.State().Data; got != "new" {
		t.Errorf("Data after refresh = %v, want the refreshed value", got)
	}
	if calls.Load() != 1 {
		t.Errorf("transport calls = %d, want 1 background refresh", calls.Load())
	}
	if !store.IsFresh("routers") {
		t.Error("refresh should repopulate the cache")
	}
}

func TestQuery_BlockedGateFailsFast(t *testing.T) {
	e, _, gate := newTestExecutor(testRetryConfig())
	gate.BlockUntil(time.Now().Add(time.Hour))

	var calls atomic.Int64
	cfg := NewConfig("invoices")
	cfg.Retry = retry.Override{MaxAttempts: 1}

	q := e.Run(context.Background(), cfg, countingOp(&calls, "x"))
	st := q.Wait(context.Background())

	if st.ErrorKind != classify.KindRateLimit || !st.RateLimited {
		t.Errorf("state = %+v, want a rate-limited terminal state", st)
	}
	if calls.Load() != 0 {
		t.Errorf("transport calls = %d, want 0 while the gate is blocked", calls.Load())
	}
}

func TestQuery_RateLimitErrorBlocksGateThenRecovers(t *testing.T) {
	e, _, gate := newTestExecutor(testRetryConfig())

	var calls atomic.Int64
	op := countingOp(&calls, "ok", &transport.APIError{
		Status:     429,
		Message:    "slow down",
		RetryAfter: 30 * time.Millisecond,
	})

	q := e.Run(context.Background(), NewConfig("payments"), op)
	st := q.Wait(context.Background())

	if st.Data != "ok" {
		t.Fatalf("state = %+v, want recovery once the window elapsed", st)
	}
	if calls.Load() != 2 {
		t.Errorf("transport calls = %d, want 2", calls.Load())
	}
	if blocked, _ := gate.Blocked(); blocked {
		t.Error("gate should be cleared after a successful call")
	}
}

func TestQuery_ManualRetryBypassesBackoff(t *testing.T) {
	cfg := testRetryConfig()
	cfg.InitialDelay = 2 * time.Second // scheduled retry far in the future
	cfg.MaxDelay = 2 * time.Second
	e, _, _ := newTestExecutor(cfg)

	var calls atomic.Int64
	op := countingOp(&calls, "ok", &transport.APIError{Status: 500, Message: "boom"})

	q := e.Run(context.Background(), NewConfig("customers"), op)

	// Wait for the failed attempt to be recorded.
	deadline := time.Now().Add(time.Second)
	for q.State().Attempts == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !q.State().CanRetry {
		t.Fatal("CanRetry should be true while a retry is pending")
	}

	q.Retry()

	waitCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	st := q.Wait(waitCtx)

	if st.Data != "ok" {
		t.Fatalf("manual retry should re-issue immediately, state = %+v", st)
	}
}

func TestQuery_CloseDiscardsInFlightResult(t *testing.T) {
	e, store, _ := newTestExecutor(testRetryConfig())

	started := make(chan struct{})
	release := make(chan struct{})
	op := func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "late", nil
	}

	q := e.Run(context.Background(), NewConfig("routers"), op)
	<-started
	q.Close()
	close(release)
	<-q.Done()

	if _, fr := store.Lookup("routers"); fr != cache.Absent {
		t.Error("a result arriving after teardown must not be stored")
	}
}
