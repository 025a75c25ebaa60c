package poll

import (
	"math"
	"time"
)

// Policy holds the timing and retry limits of a summary poll cycle.
type Policy struct {
	// InitialDelay is the wait before the first request of a cycle.
	InitialDelay time.Duration
	// ReadyDelay is the wait after a successful reply whose summary is not ready yet.
	ReadyDelay time.Duration
	// FailureBase, FailureFactor and FailureMax shape the backoff after a failed request:
	// min(FailureBase * FailureFactor^(attempt-1), FailureMax).
	FailureBase   time.Duration
	FailureFactor float64
	FailureMax    time.Duration
	// MaxAttempts is the retry ceiling. The tick that would exceed it exhausts the cycle.
	MaxAttempts int
	// NoticeEvery emits a progress notice on every Nth not-ready attempt. Zero disables notices.
	NoticeEvery int
}

// DefaultPolicy returns the standard polling policy: 2s initial and
// not-ready delays, 3s..10s geometric backoff on failure, 10 attempts.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay:  2 * time.Second,
		ReadyDelay:    2 * time.Second,
		FailureBase:   3 * time.Second,
		FailureFactor: 1.5,
		FailureMax:    10 * time.Second,
		MaxAttempts:   10,
		NoticeEvery:   3,
	}
}

// FailureDelay returns the backoff after the given failed attempt (1-based).
func (p Policy) FailureDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.FailureBase) * math.Pow(p.FailureFactor, float64(attempt-1))
	if d > float64(p.FailureMax) || math.IsInf(d, 0) || math.IsNaN(d) {
		return p.FailureMax
	}
	return time.Duration(d)
}

// ShouldNotify reports whether a not-ready reply at attempt emits a progress notice.
func (p Policy) ShouldNotify(attempt int) bool {
	return p.NoticeEvery > 0 && attempt > 0 && attempt%p.NoticeEvery == 0
}
