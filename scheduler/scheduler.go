// Package scheduler runs a function on a fixed interval with strictly
// serialized runs.
package scheduler

import (
	"context"
	"time"
)

const (
	DefaultInterval     = 300 * time.Second
	DefaultInitialDelay = 10 * time.Second
)

// Scheduler triggers periodic runs: the first after InitialDelay, then one
// every Interval. The next run is not armed until the previous one returns,
// so runs never overlap.
type Scheduler struct {
	Interval     time.Duration
	InitialDelay time.Duration
}

// Run blocks, invoking fn on schedule until ctx is canceled.
func (s Scheduler) Run(ctx context.Context, fn func(ctx context.Context)) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	delay := s.InitialDelay
	if delay <= 0 {
		delay = DefaultInitialDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			fn(ctx)
			timer.Reset(interval)
		}
	}
}
