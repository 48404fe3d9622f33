// Package query orchestrates a single read operation end-to-end:
// cache lookup, transport call, error classification, retry
// scheduling, and rate-limit handling, exposing observable state to
// the caller.
package query

import (
	"errors"

	"github.com/liimonx/isp-console/internal/data/cache"
	"github.com/liimonx/isp-console/internal/data/classify"
	"github.com/liimonx/isp-console/internal/data/retry"
)

// ErrRateLimited is surfaced when a query exhausts its retry budget
// while the backend throttle window is still in effect.
var ErrRateLimited = errors.New("rate limited by backend")

// State is the caller-visible snapshot of a query.
type State struct {
	Data        any
	Loading     bool
	Err         error
	ErrorKind   classify.Kind
	Attempts    int
	RateLimited bool
	CanRetry    bool
}

// Settled reports whether the query has either data or a terminal error.
func (s State) Settled() bool {
	return !s.Loading && (s.Data != nil || s.Err != nil)
}

// Config controls one query execution.
type Config struct {
	// Key identifies the cacheable read. Calls with equal keys share
	// cache entries and in-flight transport calls.
	Key string

	// Enabled gates execution; a disabled query never contacts the
	// transport and reports no data and no loading.
	Enabled bool

	// Requires lists dependency values the query needs. If any is
	// empty or "0" the query is disabled, short-circuiting before any
	// transport call.
	Requires []string

	// Cache overrides the store's default staleness and eviction
	// windows for this resource. Zero fields keep the defaults.
	Cache cache.Options

	// Retry tightens the retry policy for this call site.
	Retry retry.Override
}

// NewConfig returns an enabled config for the given request key.
func NewConfig(key string) Config {
	return Config{Key: key, Enabled: true}
}

func (c Config) disabled() bool {
	if !c.Enabled {
		return true
	}
	for _, dep := range c.Requires {
		if dep == "" || dep == "0" {
			return true
		}
	}
	return false
}
