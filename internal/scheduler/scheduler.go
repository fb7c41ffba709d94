// Package scheduler drives a periodic tick function without ever running two
// ticks at once.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrAlreadyRunning is returned when a loop is still registered after Start
// has stopped the previous one, which only happens when Start races itself.
var ErrAlreadyRunning = errors.New("scheduler already running")

// TickFunc performs one cycle. ctx is cancelled when the scheduler stops.
type TickFunc func(ctx context.Context)

// Scheduler calls a TickFunc every interval on a single goroutine. Ticks
// that come due while a tick is still running are dropped.
type Scheduler struct {
	tick   TickFunc
	clock  clockwork.Clock
	logger *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	interval time.Duration
}

type Option func(*Scheduler)

func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a stopped scheduler
func New(tick TickFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		tick:  tick,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Start begins ticking every interval, the first tick one interval from
// now. A running loop is stopped, and waited for, before the new one starts.
func (s *Scheduler) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %v", interval)
	}

	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	ticker := s.clock.NewTicker(interval)

	s.cancel = cancel
	s.done = done
	s.interval = interval

	go s.loop(ctx, ticker, done)
	s.logger.Debug("scheduler started", "interval", interval)
	return nil
}

// Stop cancels the running tick, if any, and waits for the loop to exit.
// It must not be called from inside the tick function.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Debug("scheduler stopped")
}

// Running reports whether a loop is active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

// Interval returns the interval of the current or most recent loop
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Scheduler) loop(ctx context.Context, ticker clockwork.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			s.tick(ctx)
		}
	}
}
