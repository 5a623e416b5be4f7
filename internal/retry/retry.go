// Package retry provides jittered exponential backoff for connecting to
// dependencies at startup.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Backoff delays between connection attempts.
// Attempt 1: 500ms, Attempt 2: 1s, Attempt 3: 2s, Attempt 4: 5s, then 10s
var retryDelays = []time.Duration{
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

const (
	// DefaultMaxAttempts is the default number of connection attempts.
	DefaultMaxAttempts = 5

	// JitterFactor is the ±percentage of jitter applied to delays.
	JitterFactor = 0.2
)

// ErrPermanent marks an error that retrying cannot fix.
var ErrPermanent = errors.New("permanent failure")

// NextDelay calculates the delay after a failed attempt with exponential backoff + jitter.
// attemptCount is 0-indexed (after first failed attempt, attemptCount = 0).
func NextDelay(attemptCount int) time.Duration {
	if attemptCount < 0 {
		attemptCount = 0
	}
	if attemptCount >= len(retryDelays) {
		attemptCount = len(retryDelays) - 1
	}

	base := retryDelays[attemptCount]
	jitterRange := float64(base) * JitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange

	return time.Duration(float64(base) + jitter)
}

// IsExhausted returns true if max attempts have been reached.
func IsExhausted(attemptCount, maxAttempts int) bool {
	return attemptCount >= maxAttempts
}

// Do calls fn until it succeeds, returns an error wrapping ErrPermanent,
// maxAttempts is reached, or ctx is done. onRetry, when set, is called
// before each wait. The last error is returned.
func Do(ctx context.Context, maxAttempts int, fn func(ctx context.Context) error, onRetry func(attempt int, delay time.Duration, err error)) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) || IsExhausted(attempt+1, maxAttempts) {
			return err
		}

		delay := NextDelay(attempt)
		if onRetry != nil {
			onRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}
