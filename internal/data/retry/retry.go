// Package retry decides whether a failed call is attempted again and
// after what delay.
package retry

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/liimonx/isp-console/internal/data/classify"
)

// Config defines retry behavior.
type Config struct {
	InitialDelay     time.Duration `yaml:"initial_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	BackoffMultiple  float64       `yaml:"backoff_multiple"`
	Jitter           float64       `yaml:"jitter"` // fraction of the computed delay, 0..1
	MaxReadAttempts  int           `yaml:"max_read_attempts"`
	MaxWriteAttempts int           `yaml:"max_write_attempts"`
	RateLimitBackoff time.Duration `yaml:"rate_limit_backoff"` // used when the server gave no resume time
}

// DefaultConfig provides sensible defaults. Reads get a higher attempt
// ceiling than writes: re-reading is free, re-writing may not be.
var DefaultConfig = Config{
	InitialDelay:     500 * time.Millisecond,
	MaxDelay:         30 * time.Second,
	BackoffMultiple:  2.0,
	Jitter:           0.2,
	MaxReadAttempts:  4,
	MaxWriteAttempts: 2,
	RateLimitBackoff: 60 * time.Second,
}

// Override adjusts retry behavior for a single call site. It can
// tighten the policy but never relaxes the auth/validation exclusion.
type Override struct {
	Disabled    bool
	MaxAttempts int // 0 means use the policy default
}

// Policy decides, given an error kind and attempt count, whether to
// retry and after what delay. One Policy is shared by all reads (or
// all writes); the per-operation attempt count is owned by the caller.
type Policy struct {
	cfg         Config
	maxAttempts int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPolicy creates a policy with the given attempt ceiling.
func NewPolicy(cfg Config, maxAttempts int) *Policy {
	if cfg.BackoffMultiple <= 1 {
		cfg.BackoffMultiple = DefaultConfig.BackoffMultiple
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = DefaultConfig.RateLimitBackoff
	}
	return &Policy{
		cfg:         cfg,
		maxAttempts: maxAttempts,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewReadPolicy creates the policy used by query executors.
func NewReadPolicy(cfg Config) *Policy {
	max := cfg.MaxReadAttempts
	if max <= 0 {
		max = DefaultConfig.MaxReadAttempts
	}
	return NewPolicy(cfg, max)
}

// NewWritePolicy creates the policy used by mutation executors.
func NewWritePolicy(cfg Config) *Policy {
	max := cfg.MaxWriteAttempts
	if max <= 0 {
		max = DefaultConfig.MaxWriteAttempts
	}
	return NewPolicy(cfg, max)
}

// ShouldRetry reports whether another attempt is warranted after the
// given number of failed attempts. Auth and validation failures are
// never retried: the request is fundamentally wrong and repeating it
// cannot help.
func (p *Policy) ShouldRetry(kind classify.Kind, attempts int, ov Override) bool {
	if kind.Terminal() {
		return false
	}
	if ov.Disabled {
		return false
	}
	max := p.maxAttempts
	if ov.MaxAttempts > 0 {
		max = ov.MaxAttempts
	}
	return attempts < max
}

// Delay computes how long to wait before the next attempt.
//
// Transient kinds use exponential backoff with bounded jitter, clamped
// to the configured maximum. Rate-limit failures instead honor the
// server-communicated resume delay when one was provided, never waiting
// less than the computed backoff.
func (p *Policy) Delay(kind classify.Kind, attempts int, serverResume time.Duration) time.Duration {
	if kind.Terminal() {
		return 0
	}

	if kind == classify.KindRateLimit {
		d := serverResume
		if d <= 0 {
			d = p.cfg.RateLimitBackoff
		}
		if backoff := p.backoff(attempts); backoff > d {
			d = backoff
		}
		return d
	}

	d := p.backoff(attempts)
	if p.cfg.Jitter > 0 {
		p.mu.Lock()
		d += time.Duration(p.rng.Float64() * p.cfg.Jitter * float64(d))
		p.mu.Unlock()
	}
	if d > p.cfg.MaxDelay {
		d = p.cfg.MaxDelay
	}
	return d
}

func (p *Policy) backoff(attempts int) time.Duration {
	d := float64(p.cfg.InitialDelay) * math.Pow(p.cfg.BackoffMultiple, float64(attempts))
	if d > float64(p.cfg.MaxDelay) {
		d = float64(p.cfg.MaxDelay)
	}
	return time.Duration(d)
}
