// Package transport issues HTTP calls against the console backend API.
//
// It is the lowest layer: it knows how to send a request and decode a
// response, and how to turn a non-2xx response into an *APIError. It
// has no retry, caching, or throttling logic of its own; that lives in
// internal/data.
package transport

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Operation is a single read call issued by a query executor.
type Operation func(ctx context.Context) (any, error)

// APIError is a response the backend returned with a non-2xx status.
// A transport failure where no response was received at all is NOT an
// APIError; it surfaces as the underlying net/url error.
type APIError struct {
	Status     int
	Message    string
	RetryAfter time.Duration     // from the Retry-After header, 0 if absent
	Fields     map[string]string // per-field validation errors, nil if none
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for field, msg := range e.Fields {
			parts = append(parts, field+": "+msg)
		}
		return fmt.Sprintf("api error %d: %s (%s)", e.Status, e.Message, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}
