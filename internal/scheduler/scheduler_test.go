package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/limitwatch/limitwatch/internal/logging"
)

func expectTick(t *testing.T, ticks <-chan struct{}) {
	t.Helper()
	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a tick")
	}
}

func expectNoTick(t *testing.T, ticks <-chan struct{}) {
	t.Helper()
	select {
	case <-ticks:
		t.Fatal("unexpected tick")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTicksEveryInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticks := make(chan struct{}, 10)
	s := New(func(ctx context.Context) { ticks <- struct{}{} }, WithClock(clock), WithLogger(logging.Discard()))

	if err := s.Start(time.Second); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop()

	if !s.Running() {
		t.Error("Running() = false after Start")
	}
	if s.Interval() != time.Second {
		t.Errorf("Interval() = %v, want 1s", s.Interval())
	}

	clock.BlockUntil(1)
	expectNoTick(t, ticks)

	clock.Advance(time.Second)
	expectTick(t, ticks)

	clock.Advance(time.Second)
	expectTick(t, ticks)
}

func TestStartRejectsBadInterval(t *testing.T) {
	s := New(func(context.Context) {})
	if err := s.Start(0); err == nil {
		t.Error("Start(0) should fail")
	}
	if s.Running() {
		t.Error("Running() = true after failed Start")
	}
}

func TestRestartReplacesTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticks := make(chan struct{}, 10)
	s := New(func(ctx context.Context) { ticks <- struct{}{} }, WithClock(clock), WithLogger(logging.Discard()))

	if err := s.Start(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(5 * time.Second); err != nil {
		t.Fatalf("restart error: %v", err)
	}
	defer s.Stop()

	// only the new ticker may be registered
	clock.BlockUntil(1)

	clock.Advance(time.Second)
	expectNoTick(t, ticks)

	clock.Advance(4 * time.Second)
	expectTick(t, ticks)
	expectNoTick(t, ticks)
}

func TestStopIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticks := make(chan struct{}, 10)
	s := New(func(ctx context.Context) { ticks <- struct{}{} }, WithClock(clock), WithLogger(logging.Discard()))

	s.Stop()
	if err := s.Start(time.Second); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	s.Stop()

	if s.Running() {
		t.Error("Running() = true after Stop")
	}
	clock.Advance(10 * time.Second)
	expectNoTick(t, ticks)
}

func TestStopCancelsRunningTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	entered := make(chan struct{})
	var cancelled atomic.Bool

	s := New(func(ctx context.Context) {
		close(entered)
		<-ctx.Done()
		cancelled.Store(true)
	}, WithClock(clock), WithLogger(logging.Discard()))

	if err := s.Start(time.Second); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("tick did not start")
	}

	s.Stop()
	if !cancelled.Load() {
		t.Error("Stop() returned before the tick observed cancellation")
	}
}

func TestSlowTicksNeverOverlap(t *testing.T) {
	clock := clockwork.NewFakeClock()
	release := make(chan struct{})
	started := make(chan struct{}, 10)

	var (
		mu           sync.Mutex
		active, peak int
		total        int
	)
	s := New(func(ctx context.Context) {
		mu.Lock()
		active++
		total++
		if active > peak {
			peak = active
		}
		mu.Unlock()

		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}

		mu.Lock()
		active--
		mu.Unlock()
	}, WithClock(clock), WithLogger(logging.Discard()))

	if err := s.Start(time.Second); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Second)
	<-started

	// the tick is now slower than the interval
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
	}
	close(release)
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if peak != 1 {
		t.Errorf("peak concurrent ticks = %d, want 1", peak)
	}
	// one buffered tick may run after the slow one; the rest are coalesced
	if total > 2 {
		t.Errorf("total ticks = %d, want at most 2", total)
	}
}
