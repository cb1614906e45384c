package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PollPolicy bounds a polling phase.
type PollPolicy struct {
	Interval          time.Duration // Delay before the second attempt
	MaxAttempts       int           // Total attempts, including the first
	BackoffMultiplier float64       // Growth factor per attempt; <= 1 keeps Interval fixed
	MaxInterval       time.Duration // Upper bound on the delay (0 = unbounded)
}

// DefaultSaveDatabasePoll waits up to 100 × 5s for a database export.
func DefaultSaveDatabasePoll() PollPolicy {
	return PollPolicy{Interval: 5 * time.Second, MaxAttempts: 100, BackoffMultiplier: 1}
}

// DefaultCopyObjectPoll waits up to 10 × 5s for a paste task.
func DefaultCopyObjectPoll() PollPolicy {
	return PollPolicy{Interval: 5 * time.Second, MaxAttempts: 10, BackoffMultiplier: 1}
}

// Validate checks the policy can terminate.
func (p PollPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.Interval < 0 {
		return fmt.Errorf("interval must not be negative, got %s", p.Interval)
	}
	if p.MaxInterval < 0 {
		return fmt.Errorf("max interval must not be negative, got %s", p.MaxInterval)
	}
	return nil
}

// Delay returns the wait after the given attempt (1-based) and before the
// next one.
func (p PollPolicy) Delay(attempt int) time.Duration {
	delay := p.Interval
	if p.BackoffMultiplier > 1 {
		for i := 1; i < attempt; i++ {
			delay = time.Duration(float64(delay) * p.BackoffMultiplier)
			if p.MaxInterval > 0 && delay >= p.MaxInterval {
				return p.MaxInterval
			}
		}
	}
	if p.MaxInterval > 0 && delay > p.MaxInterval {
		return p.MaxInterval
	}
	return delay
}

// Sleeper waits between poll attempts. Tests substitute a fake that
// records delays instead of waiting.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f(ctx, d).
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// timerSleeper waits on a real timer.
type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// errPollContinue tells poll that the condition is not yet met.
var errPollContinue = errors.New("poll: not ready")

// poll calls check up to policy.MaxAttempts times, sleeping between
// attempts but not after the last one. check returns nil when done,
// errPollContinue to try again, or any other error to stop.
func (c *Client) poll(ctx context.Context, policy PollPolicy, t *tracker, check func(ctx context.Context) error) error {
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		t.attempt(attempt)
		err := check(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errPollContinue) {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}
		if err := c.sleeper.Sleep(ctx, policy.Delay(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %d attempts", ErrTimeout, policy.MaxAttempts)
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
