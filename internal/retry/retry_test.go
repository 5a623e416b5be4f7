package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestNextDelay(t *testing.T) {
	tests := []struct {
		attempt  int
		minDelay time.Duration
		maxDelay time.Duration
	}{
		{0, 400 * time.Millisecond, 600 * time.Millisecond},
		{1, 800 * time.Millisecond, 1200 * time.Millisecond},
		{4, 8 * time.Second, 12 * time.Second},
		{10, 8 * time.Second, 12 * time.Second}, // beyond max stays at last
		{-1, 400 * time.Millisecond, 600 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt %d", tt.attempt), func(t *testing.T) {
			// Run multiple times to account for jitter
			for i := 0; i < 10; i++ {
				delay := NextDelay(tt.attempt)
				if delay < tt.minDelay || delay > tt.maxDelay {
					t.Errorf("NextDelay(%d) = %v, want between %v and %v",
						tt.attempt, delay, tt.minDelay, tt.maxDelay)
				}
			}
		})
	}
}

func TestIsExhausted(t *testing.T) {
	if IsExhausted(4, 5) {
		t.Error("4 of 5 should not be exhausted")
	}
	if !IsExhausted(5, 5) {
		t.Error("5 of 5 should be exhausted")
	}
}

func TestDo_SucceedsAfterRetry(t *testing.T) {
	calls := 0
	var retries []int

	err := Do(context.Background(), 3, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("connection refused")
		}
		return nil
	}, func(attempt int, _ time.Duration, _ error) {
		retries = append(retries, attempt)
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 || len(retries) != 1 || retries[0] != 1 {
		t.Errorf("calls = %d, retries = %v", calls, retries)
	}
}

func TestDo_StopsOnPermanent(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 5, func(context.Context) error {
		calls++
		return fmt.Errorf("bad url: %w", ErrPermanent)
	}, nil)

	if !errors.Is(err, ErrPermanent) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestDo_Exhausted(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), 1, func(context.Context) error {
		calls++
		return boom
	}, nil)

	if !errors.Is(err, boom) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, 5, func(context.Context) error {
		return errors.New("down")
	}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
