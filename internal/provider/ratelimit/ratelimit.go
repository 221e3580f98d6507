package ratelimit

import (
	"sync"
	"time"

	"finboard/internal/provider"
)

// state is the tracked budget for one provider.
type state struct {
	remaining int
	resetAt   time.Time
}

// Tracker keeps per-provider rate-limit state fed from response
// metadata. It is process-wide, ephemeral and reset to
// unknown/unlimited on restart; inject one instance at construction.
type Tracker struct {
	mu     sync.Mutex
	limits map[string]state
	now    func() time.Time // overridable in tests
}

func NewTracker() *Tracker {
	return &Tracker{limits: make(map[string]state), now: time.Now}
}

// Check returns a RateLimitError when the tracked remaining budget for
// name is exhausted and the reset time is still in the future. Unknown
// providers pass (unlimited until told otherwise).
func (t *Tracker) Check(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.limits[name]
	if !ok {
		return nil
	}
	if s.remaining <= 0 && t.now().Before(s.resetAt) {
		return &provider.RateLimitError{Provider: name, ResetAt: s.resetAt}
	}
	return nil
}

// Update records the budget reported by a provider response.
func (t *Tracker) Update(name string, remaining int, resetAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits[name] = state{remaining: remaining, resetAt: resetAt}
}

// Exhaust zeroes the budget for name until resetAt. Used when a
// provider signals quota exhaustion in the payload rather than in
// headers.
func (t *Tracker) Exhaust(name string, resetAt time.Time) {
	t.Update(name, 0, resetAt)
}
