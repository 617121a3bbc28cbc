package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestRun_FirstTickAfterInitialDelay(t *testing.T) {
	ticked := make(chan time.Time, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	go Scheduler{Interval: time.Hour, InitialDelay: 10 * time.Millisecond}.Run(ctx, func(context.Context) {
		ticked <- time.Now()
	})

	select {
	case at := <-ticked:
		if at.Sub(start) < 10*time.Millisecond {
			t.Errorf("first run fired after %v, want at least the initial delay", at.Sub(start))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first run never fired")
	}
}

func TestRun_RepeatsOnInterval(t *testing.T) {
	ticks := make(chan struct{}, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Scheduler{Interval: 5 * time.Millisecond, InitialDelay: time.Millisecond}.Run(ctx, func(context.Context) {
		ticks <- struct{}{}
	})

	for i := 0; i < 3; i++ {
		select {
		case <-ticks:
		case <-time.After(5 * time.Second):
			t.Fatalf("run %d never fired", i+1)
		}
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		Scheduler{Interval: time.Millisecond, InitialDelay: time.Millisecond}.Run(ctx, func(context.Context) {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}

func TestRun_SerializesRuns(t *testing.T) {
	var inFlight, overlapped bool
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	count := 0
	go Scheduler{Interval: time.Millisecond, InitialDelay: time.Millisecond}.Run(ctx, func(context.Context) {
		if inFlight {
			overlapped = true
		}
		inFlight = true
		time.Sleep(5 * time.Millisecond)
		inFlight = false

		count++
		if count == 3 {
			close(done)
		}
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runs never completed")
	}
	if overlapped {
		t.Error("scheduler overlapped runs")
	}
}
