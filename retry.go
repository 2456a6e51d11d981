package fbq

import (
	"math/rand"
	"time"
)

// RetryPolicy defines how the client retries a request after a transport
// timeout. Only timeouts are retried; a received-but-unexpected status code
// indicates a server-side or routing problem and is surfaced immediately.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts after the first.
	// Default: 3.
	MaxRetries int

	// InitialInterval is the delay before the first retry. Subsequent
	// retries back off linearly (attempt x InitialInterval).
	// Default: 500 milliseconds.
	InitialInterval time.Duration

	// MaxInterval is the maximum delay between retries.
	// Default: 10 seconds.
	MaxInterval time.Duration

	// Jitter adds up to 25% randomization to retry intervals to prevent
	// thundering herd. Default: true.
	Jitter *bool
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	jitter := true
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Jitter:          &jitter,
	}
}

// backoff returns the delay to apply before the retry following the given
// attempt (1-indexed).
func (r RetryPolicy) backoff(attempt int) time.Duration {
	interval := r.InitialInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	max := r.MaxInterval
	if max <= 0 {
		max = 10 * time.Second
	}

	d := time.Duration(attempt) * interval
	if d > max {
		d = max
	}
	if r.Jitter == nil || *r.Jitter {
		// Up to 25% extra, never less than the base delay.
		d += time.Duration(rand.Int63n(int64(d)/4 + 1))
	}
	if d > max {
		d = max
	}
	return d
}

// attempts returns the total attempt budget, including the first try.
func (r RetryPolicy) attempts() int {
	if r.MaxRetries < 0 {
		return 1
	}
	return r.MaxRetries + 1
}
