package generation

import (
	"context"
	"time"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollBudget   = 60 * time.Second
)

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// PollPolicy bounds the status polling loop. The loop issues
// Budget/Interval status requests and sleeps Interval between them.
type PollPolicy struct {
	Interval time.Duration
	Budget   time.Duration
	Sleep    SleepFunc // nil uses SleepContext
}

// DefaultPollPolicy polls every 5s for up to 60s.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: DefaultPollInterval, Budget: DefaultPollBudget}
}

// Attempts is the number of status requests one loop may issue. It is at
// least one.
func (p PollPolicy) Attempts() int {
	if p.Interval <= 0 {
		return 1
	}
	n := int(p.Budget / p.Interval)
	if n < 1 {
		return 1
	}
	return n
}

func (p PollPolicy) sleep(ctx context.Context) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, p.Interval)
	}
	return SleepContext(ctx, p.Interval)
}

// SleepContext waits for d, returning early with ctx.Err() on cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
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
