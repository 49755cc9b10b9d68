package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval follows Slack's guidance of roughly one message per second
// for incoming webhooks.
const DefaultInterval = 1 * time.Second

// Limiter enforces a minimum gap between successive Acquire returns.
//
// Elapsed time is measured with time.Time.Sub on values from time.Now, which
// use the monotonic clock reading, so wall clock steps (NTP, DST) never
// shorten the gap. previous is refreshed after any sleep, so oversleeping
// does not make the next gap shorter.
type Limiter struct {
	interval time.Duration

	mu       sync.Mutex
	previous time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Acquire returns immediately the first time. Afterwards it blocks until at
// least the interval has passed since the previous Acquire returned, or until
// ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.previous.IsZero() {
		elapsed := l.now().Sub(l.previous)
		if elapsed < l.interval {
			if err := l.sleep(ctx, l.interval-elapsed); err != nil {
				return err
			}
		}
	}

	l.previous = l.now()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
