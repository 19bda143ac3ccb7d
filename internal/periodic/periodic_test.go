package periodic

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func tickInterval() IntervalFunc {
	return func() time.Duration { return 5 * time.Millisecond }
}

func TestContinueKeepsLooping(t *testing.T) {
	var n int32
	d := New(func(ctx context.Context) Status {
		atomic.AddInt32(&n, 1)
		return Continue
	}, tickInterval(), nil)
	d.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	d.Stop()
	if atomic.LoadInt32(&n) < 2 {
		t.Fatalf("expected multiple steps, got %d", n)
	}
}

func TestDoneStopsLoop(t *testing.T) {
	var n int32
	d := New(func(ctx context.Context) Status {
		atomic.AddInt32(&n, 1)
		return Done
	}, tickInterval(), nil)
	d.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	got := atomic.LoadInt32(&n)
	if got != 1 {
		t.Fatalf("expected exactly 1 step before DONE, got %d", got)
	}
	d.Stop()
}

func TestPausedSkipsSteps(t *testing.T) {
	var n int32
	var paused atomic.Bool
	paused.Store(true)
	d := New(func(ctx context.Context) Status {
		atomic.AddInt32(&n, 1)
		return Continue
	}, tickInterval(), func() bool { return paused.Load() })
	d.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&n) != 0 {
		t.Fatalf("expected zero steps while paused, got %d", n)
	}
	d.Stop()
}

func TestStopIsIdempotent(t *testing.T) {
	d := New(func(ctx context.Context) Status { return Continue }, tickInterval(), nil)
	d.Start(context.Background())
	d.Stop()
	d.Stop() // must not block or panic
}

func TestStopOnNeverStartedIsNoop(t *testing.T) {
	d := New(func(ctx context.Context) Status { return Continue }, tickInterval(), nil)
	d.Stop() // must not block or panic
}

func TestPanicTreatedAsErrorHard(t *testing.T) {
	var n int32
	d := New(func(ctx context.Context) Status {
		atomic.AddInt32(&n, 1)
		panic("boom")
	}, tickInterval(), nil)
	d.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&n) != 1 {
		t.Fatalf("expected exactly 1 step before panic stopped the loop, got %d", n)
	}
	d.Stop()
}
