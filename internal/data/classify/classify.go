// Package classify maps raw transport failures onto a fixed set of
// error kinds that drive retry and UI decisions.
package classify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/liimonx/isp-console/internal/infra/transport"
)

// Kind is the exhaustive classification of a failure cause.
type Kind int

const (
	KindUnknown    Kind = iota // anything that matches no other rule
	KindNetwork                // no response was received at all
	KindAuth                   // 401/403, session or permission problem
	KindValidation             // 400 or a structured validation payload
	KindRateLimit              // 429, the backend is throttling us
	KindServer                 // a response arrived with a 5xx status
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindRateLimit:
		return "rate_limit"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Terminal reports whether failures of this kind indicate the request
// itself is wrong, so no automatic retry can help.
func (k Kind) Terminal() bool {
	return k == KindAuth || k == KindValidation
}

// Classify assigns exactly one kind to a raw failure. It is pure,
// total, and never panics; anything it cannot place is KindUnknown.
//
// Network (no response received) is distinguished from Server (a 5xx
// response arrived) because network failures are retried more
// aggressively: the former is usually transient, the latter may not be.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var apiErr *transport.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
			return KindAuth
		case apiErr.Status == http.StatusBadRequest || len(apiErr.Fields) > 0:
			return KindValidation
		case apiErr.Status == http.StatusTooManyRequests:
			return KindRateLimit
		case apiErr.Status >= 500:
			return KindServer
		}
		return KindUnknown
	}

	// No APIError means no response was received: connection refused,
	// DNS failure, timeout, and so on all arrive as net/url errors or
	// context deadlines.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindNetwork
	}
	return KindUnknown
}

// RetryAfter extracts the server-communicated resume delay from a
// rate-limit failure, or 0 when the server did not provide one.
func RetryAfter(err error) time.Duration {
	var apiErr *transport.APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}
