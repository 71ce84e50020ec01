package traffic

import (
	"sync"
	"time"
)

// Outcome classifies how a request on the plan API ended.
type Outcome int

const (
	// OutcomeSuccess is a plan with a structured result.
	OutcomeSuccess Outcome = iota
	// OutcomeDegraded is a plan served in raw-text fallback form.
	OutcomeDegraded
	// OutcomeFailed is a pipeline failure (5xx).
	OutcomeFailed
	// OutcomeDenied is a rate-limit rejection (429).
	OutcomeDenied
	numOutcomes
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeFailed:
		return "failed"
	case OutcomeDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// retention bounds how far back any window query can see.
const retention = 5 * time.Minute

var defaultTracker Tracker

// Record records an outcome at the current time on the process-wide tracker.
func Record(o Outcome) {
	defaultTracker.Record(o)
}

// Count returns the number of o outcomes within the window.
func Count(o Outcome, window time.Duration) int {
	return defaultTracker.Count(o, window)
}

// FailureRate returns (failed, completed) within the window. Denials are not
// completed runs and are excluded from both.
func FailureRate(window time.Duration) (failed, total int) {
	return defaultTracker.FailureRate(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker keeps sliding windows of outcome timestamps.
type Tracker struct {
	mu    sync.Mutex
	times [numOutcomes][]time.Time
}

// Record appends an outcome stamped now.
func (t *Tracker) Record(o Outcome) {
	if o < 0 || o >= numOutcomes {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.times[o] = append(t.times[o], now)
	t.pruneLocked(now)
}

// Count returns the number of o outcomes recorded within the window ending now.
func (t *Tracker) Count(o Outcome, window time.Duration) int {
	if o < 0 || o >= numOutcomes {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.times[o], time.Now().Add(-window))
}

// FailureRate returns failed runs and all completed runs (success, degraded,
// failed) within the window.
func (t *Tracker) FailureRate(window time.Duration) (failed, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	failed = countSince(t.times[OutcomeFailed], cutoff)
	total = failed +
		countSince(t.times[OutcomeSuccess], cutoff) +
		countSince(t.times[OutcomeDegraded], cutoff)
	return failed, total
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.times {
		t.times[i] = nil
	}
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than retention. Caller holds mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	for o := range t.times {
		times := t.times[o]
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			t.times[o] = append(times[:0], times[i:]...)
		}
	}
}
