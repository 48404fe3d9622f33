package mutation

import (
	"context"
	"errors"
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

func newTestExecutor() (*Executor, *cache.Store, *ratelimit.MemoryGate) {
	store := cache.NewStore(cache.Options{StaleAfter: time.Minute, EvictAfter: time.Hour})
	gate := ratelimit.NewMemoryGate()
	cfg := retry.Config{
		InitialDelay:     time.Millisecond,
		MaxDelay:         10 * time.Millisecond,
		BackoffMultiple:  2.0,
		MaxWriteAttempts: 2,
		RateLimitBackoff: 20 * time.Millisecond,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewExecutor(store, gate, retry.NewWritePolicy(cfg), log), store, gate
}

func TestMutation_SuccessEvictsInvalidationSet(t *testing.T) {
	e, store, _ := newTestExecutor()
	store.Put("invoices", 1, cache.Options{})
	store.Put("invoices/17", 2, cache.Options{})
	store.Put("payments", 3, cache.Options{})

	m := e.New(Config{Invalidates: []string{"invoices"}}, func(ctx context.Context, vars any) (any, error) {
		return "created", nil
	})

	res := m.Execute(context.Background(), map[string]any{"amount": 4200})
	if !res.Ok() {
		t.Fatalf("Execute failed: %v", res.Err)
	}
	if res.Data != "created" {
		t.Errorf("Data = %v, want created", res.Data)
	}

	if _, fr := store.Lookup("invoices"); fr != cache.Absent {
		t.Error("invoices should be evicted")
	}
	if _, fr := store.Lookup("invoices/17"); fr != cache.Absent {
		t.Error("invoices/17 should be evicted")
	}
	if _, fr := store.Lookup("payments"); fr != cache.Fresh {
		t.Error("payments is not in the invalidation set and must remain")
	}
}

func TestMutation_NoInvalidationSetEvictsAll(t *testing.T) {
	e, store, _ := newTestExecutor()
	store.Put("invoices", 1, cache.Options{})
	store.Put("routers", 2, cache.Options{})

	m := e.New(Config{}, func(ctx context.Context, vars any) (any, error) {
		return nil, nil
	})
	if res := m.Execute(context.Background(), nil); !res.Ok() {
		t.Fatalf("Execute failed: %v", res.Err)
	}

	if store.Stats().Entries != 0 {
		t.Error("with no declared set, every entry should be evicted")
	}
}

func TestMutation_RetriesTransientOnce(t *testing.T) {
	e, _, _ := newTestExecutor()

	var calls atomic.Int64
	m := e.New(Config{}, func(ctx context.Context, vars any) (any, error) {
		if calls.Add(1) == 1 {
			return nil, &transport.APIError{Status: 500, Message: "boom"}
		}
		return "ok", nil
	})

	res := m.Execute(context.Background(), nil)
	if !res.Ok() {
		t.Fatalf("Execute failed: %v", res.Err)
	}
	if calls.Load() != 2 {
		t.Errorf("transport calls = %d, want 2", calls.Load())
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 failed attempt", res.Attempts)
	}
}

func TestMutation_WriteBudgetIsTwoAttempts(t *testing.T) {
	e, _, _ := newTestExecutor()

	var calls atomic.Int64
	m := e.New(Config{}, func(ctx context.Context, vars any) (any, error) {
		calls.Add(1)
		return nil, &transport.APIError{Status: 500, Message: "boom"}
	})

	res := m.Execute(context.Background(), nil)
	if res.Ok() {
		t.Fatal("Execute should fail")
	}
	if calls.Load() != 2 {
		t.Errorf("transport calls = %d, want at most 2 for writes", calls.Load())
	}
	if res.ErrorKind != classify.KindServer {
		t.Errorf("ErrorKind = %v, want server", res.ErrorKind)
	}
}

func TestMutation_ValidationNeverRetried(t *testing.T) {
	e, store, _ := newTestExecutor()
	store.Put("customers", 1, cache.Options{})

	var calls atomic.Int64
	m := e.New(Config{Invalidates: []string{"customers"}}, func(ctx context.Context, vars any) (any, error) {
		calls.Add(1)
		return nil, &transport.APIError{
			Status:  422,
			Message: "invalid",
			Fields:  map[string]string{"email": "required"},
		}
	})

	res := m.Execute(context.Background(), nil)
	if res.ErrorKind != classify.KindValidation {
		t.Errorf("ErrorKind = %v, want validation", res.ErrorKind)
	}
	if calls.Load() != 1 {
		t.Errorf("transport calls = %d, want 1", calls.Load())
	}
	if _, fr := store.Lookup("customers"); fr != cache.Fresh {
		t.Error("a failed mutation must not invalidate the cache")
	}
}

func TestMutation_BlockedGateFailsFast(t *testing.T) {
	e, _, gate := newTestExecutor()
	gate.BlockUntil(time.Now().Add(time.Hour))

	var calls atomic.Int64
	m := e.New(Config{}, func(ctx context.Context, vars any) (any, error) {
		calls.Add(1)
		return "x", nil
	})

	res := m.Execute(context.Background(), nil)
	if res.ErrorKind != classify.KindRateLimit {
		t.Errorf("ErrorKind = %v, want rate_limit", res.ErrorKind)
	}
	if !errors.Is(res.Err, ErrBlocked) {
		t.Errorf("Err = %v, want ErrBlocked", res.Err)
	}
	if calls.Load() != 0 {
		t.Errorf("transport calls = %d, want 0 while blocked", calls.Load())
	}
}

func TestMutation_RateLimitErrorBlocksGate(t *testing.T) {
	e, _, gate := newTestExecutor()

	m := e.New(Config{}, func(ctx context.Context, vars any) (any, error) {
		return nil, &transport.APIError{Status: 429, Message: "slow down", RetryAfter: time.Minute}
	})

	res := m.Execute(context.Background(), nil)
	if res.ErrorKind != classify.KindRateLimit {
		t.Errorf("ErrorKind = %v, want rate_limit", res.ErrorKind)
	}
	if blocked, _ := gate.Blocked(); !blocked {
		t.Error("a 429 should block the gate for subsequent operations")
	}
}

func TestMutation_OnMutateRunsFirst(t *testing.T) {
	e, _, _ := newTestExecutor()

	order := make([]string, 0, 2)
	m := e.New(Config{
		OnMutate: func(vars any) { order = append(order, "hook") },
	}, func(ctx context.Context, vars any) (any, error) {
		order = append(order, "op")
		return nil, nil
	})

	m.Execute(context.Background(), nil)
	if len(order) != 2 || order[0] != "hook" || order[1] != "op" {
		t.Errorf("execution order = %v, want [hook op]", order)
	}
}

func TestMutation_PendingFlag(t *testing.T) {
	e, _, _ := newTestExecutor()

	release := make(chan struct{})
	started := make(chan struct{})
	m := e.New(Config{}, func(ctx context.Context, vars any) (any, error) {
		close(started)
		<-release
		return nil, nil
	})

	go m.Execute(context.Background(), nil)
	<-started
	if !m.Pending() {
		t.Error("Pending should be true while the operation is in flight")
	}
	close(release)

	deadline := time.Now().Add(time.Second)
	for m.Pending() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if m.Pending() {
		t.Error("Pending should be false after completion")
	}
}
