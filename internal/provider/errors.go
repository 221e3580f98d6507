package provider

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingCredential is returned before any network call when the
// API key for a request is empty.
var ErrMissingCredential = errors.New("api key is required")

// ErrNoData marks responses that were reachable but carried nothing
// usable for the requested symbols.
var ErrNoData = errors.New("no data could be retrieved for the specified symbols")

// RateLimitError reports an exhausted call budget for a provider.
// ResetAt tells callers when requests may resume.
type RateLimitError struct {
	Provider string
	ResetAt  time.Time
}

func (e *RateLimitError) Error() string {
	if e.ResetAt.IsZero() {
		return fmt.Sprintf("%s: rate limit exceeded", e.Provider)
	}
	return fmt.Sprintf("%s: rate limit exceeded, resets at %s", e.Provider, e.ResetAt.Format(time.Kitchen))
}

// ProviderError is an application-level error signaled inside a
// well-formed upstream response. Message is passed through verbatim
// for user display.
type ProviderError struct {
	Provider string
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// TransportError covers network failures, timeouts and responses that
// cannot be parsed into the expected shape.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
