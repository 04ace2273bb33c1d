package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// windowChecker is implemented by stores that can run the whole fixed-window
// decision atomically on their own (the Redis store does, via a script).
// When a store implements it, the Limiter delegates instead of doing
// get-then-put under its lock.
type windowChecker interface {
	CheckWindow(ctx context.Context, key string, policy Policy, now time.Time) (Decision, error)
}

// Limiter decides whether a keyed request is allowed under a fixed-window
// policy. The window resets entirely at fixed boundaries, so up to 2×max
// requests can land in a short burst straddling a boundary; that imprecision
// is accepted and must not be silently upgraded to a sliding window.
type Limiter struct {
	store Store
	clock Clock
	mu    sync.Mutex
}

func NewLimiter(store Store, clock Clock) *Limiter {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Limiter{store: store, clock: clock}
}

// Check applies policy to key and reports the decision. It never returns an
// error: a failing store (possible only with the Redis extension) fails
// open with a logged warning rather than blocking traffic.
func (l *Limiter) Check(ctx context.Context, key string, policy Policy) Decision {
	now := l.clock.Now()

	if wc, ok := l.store.(windowChecker); ok {
		decision, err := wc.CheckWindow(ctx, key, policy, now)
		if err != nil {
			slog.Warn("rate limit store unavailable, failing open", "key", key, "error", err)
			return Decision{Allowed: true, Remaining: policy.MaxRequests - 1, Limit: policy.MaxRequests, ResetAt: now.Add(policy.Window)}
		}
		return decision
	}

	// Serialize the read-modify-write so two simultaneous requests for the
	// same key are both counted.
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok, err := l.store.Get(ctx, key)
	if err != nil {
		slog.Warn("rate limit store unavailable, failing open", "key", key, "error", err)
		return Decision{Allowed: true, Remaining: policy.MaxRequests - 1, Limit: policy.MaxRequests, ResetAt: now.Add(policy.Window)}
	}

	// Fresh window: no entry yet, or the window elapsed. The comparison is
	// strictly "after": a request at exactly WindowResetAt still counts
	// against the old window.
	if !ok || now.After(entry.WindowResetAt) {
		entry = Entry{Count: 1, WindowResetAt: now.Add(policy.Window)}
		if err := l.store.Put(ctx, key, entry); err != nil {
			slog.Warn("rate limit store write failed", "key", key, "error", err)
		}
		return Decision{Allowed: true, Remaining: policy.MaxRequests - 1, Limit: policy.MaxRequests, ResetAt: entry.WindowResetAt}
	}

	// Denied requests do not climb the counter past the boundary.
	if entry.Count >= policy.MaxRequests {
		return Decision{Allowed: false, Remaining: 0, Limit: policy.MaxRequests, ResetAt: entry.WindowResetAt}
	}

	entry.Count++
	if err := l.store.Put(ctx, key, entry); err != nil {
		slog.Warn("rate limit store write failed", "key", key, "error", err)
	}
	return Decision{Allowed: true, Remaining: policy.MaxRequests - entry.Count, Limit: policy.MaxRequests, ResetAt: entry.WindowResetAt}
}
