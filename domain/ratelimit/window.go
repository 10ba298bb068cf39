// Package ratelimit implements fixed-window request limiting.
// All functions are pure - no side effects.
package ratelimit

import "time"

// Policy bounds how many requests a caller may make per window (value type).
type Policy struct {
	Limit  int           // Requests per window
	Window time.Duration // Window length
	Burst  int           // Extra requests allowed once Limit is spent
}

// Enabled reports whether the policy limits anything.
func (p Policy) Enabled() bool {
	return p.Limit > 0 && p.Window > 0
}

// Window is one caller's usage of the current window (value type).
type Window struct {
	Count     int
	BurstUsed int
	End       time.Time
}

// Expired reports whether the window has closed at now.
func (w Window) Expired(now time.Time) bool {
	return w.End.IsZero() || now.After(w.End)
}

// Decision is the outcome of Apply (value type).
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long a denied caller should wait.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Apply counts one request against w and returns the decision and the
// updated window. Windows are aligned to multiples of p.Window. A denied
// request does not advance the count.
func Apply(w Window, p Policy, now time.Time) (Decision, Window) {
	if w.Expired(now) {
		start := now.Truncate(p.Window)
		w = Window{End: start.Add(p.Window)}
	}

	d := Decision{Limit: p.Limit, ResetAt: w.End}

	switch {
	case w.Count < p.Limit:
		w.Count++
		d.Allowed = true
		d.Remaining = p.Limit - w.Count
	case w.BurstUsed < p.Burst:
		w.Count++
		w.BurstUsed++
		d.Allowed = true
	}

	return d, w
}
