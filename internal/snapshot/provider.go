package snapshot

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/limitwatch/limitwatch/pkg/integrations/common"
	"github.com/limitwatch/limitwatch/pkg/window"
)

const (
	DefaultWindowTimeout  = 2 * time.Second
	DefaultProcessTimeout = 2 * time.Second
)

var errNoLister = errors.New("no lister configured")

// Provider produces snapshots from the configured listers. Captures are
// bounded by a timeout and fail open: any error yields an empty snapshot.
type Provider struct {
	windows        window.Lister
	processes      common.ProcessLister
	windowTimeout  time.Duration
	processTimeout time.Duration
	clock          clockwork.Clock
	logger         *slog.Logger
	onError        func(*ReadError)
}

// Option configures a Provider
type Option func(*Provider)

// WithTimeouts overrides the capture timeouts; non-positive values keep the defaults
func WithTimeouts(windowTimeout, processTimeout time.Duration) Option {
	return func(p *Provider) {
		if windowTimeout > 0 {
			p.windowTimeout = windowTimeout
		}
		if processTimeout > 0 {
			p.processTimeout = processTimeout
		}
	}
}

// WithClock sets the clock used for CapturedAt
func WithClock(c clockwork.Clock) Option {
	return func(p *Provider) { p.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithErrorHook registers a callback for failed captures
func WithErrorHook(fn func(*ReadError)) Option {
	return func(p *Provider) { p.onError = fn }
}

// NewProvider creates a provider. Either lister may be nil, in which case
// the matching capture always returns an empty snapshot.
func NewProvider(windows window.Lister, processes common.ProcessLister, opts ...Option) *Provider {
	p := &Provider{
		windows:        windows,
		processes:      processes,
		windowTimeout:  DefaultWindowTimeout,
		processTimeout: DefaultProcessTimeout,
		clock:          clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// CaptureWindows returns the visible windows, or an empty snapshot on failure
func (p *Provider) CaptureWindows(ctx context.Context) WindowSnapshot {
	snap := WindowSnapshot{CapturedAt: p.clock.Now()}
	if p.windows == nil {
		return snap
	}

	infos, err := capture(ctx, p.windowTimeout, p.windows.ListWindows)
	if err != nil {
		p.fail(ctx, SourceWindow, p.windows.GetDisplayServer(), err)
		return snap
	}

	snap.Records = make([]WindowRecord, 0, len(infos))
	for _, w := range infos {
		snap.Records = append(snap.Records, WindowRecord{OwnerName: w.OwnerName, Title: w.Title, PID: w.PID})
	}
	return snap
}

// CaptureProcesses returns the running processes, or an empty snapshot on failure
func (p *Provider) CaptureProcesses(ctx context.Context) ProcessSnapshot {
	snap := ProcessSnapshot{CapturedAt: p.clock.Now()}
	if p.processes == nil {
		return snap
	}

	infos, err := capture(ctx, p.processTimeout, p.processes.ListProcesses)
	if err != nil {
		p.fail(ctx, SourceProcess, p.processes.Name(), err)
		return snap
	}

	snap.Records = make([]ProcessRecord, 0, len(infos))
	for _, proc := range infos {
		snap.Records = append(snap.Records, ProcessRecord{CommandName: proc.CommandName, CPUPercent: proc.CPUPercent, PID: proc.PID})
	}
	return snap
}

// WindowsAvailable reports whether window enumeration can run here
func (p *Provider) WindowsAvailable() bool {
	return p.windows != nil && p.windows.IsAvailable()
}

// ProcessesAvailable reports whether process enumeration can run here
func (p *Provider) ProcessesAvailable() bool {
	return p.processes != nil && p.processes.IsAvailable()
}

// Available reports whether at least one snapshot source can run
func (p *Provider) Available() bool {
	return p.WindowsAvailable() || p.ProcessesAvailable()
}

// Close releases the window lister's resources
func (p *Provider) Close() error {
	if p.windows == nil {
		return nil
	}
	return p.windows.Close()
}

func (p *Provider) fail(ctx context.Context, src Source, lister string, err error) {
	// a capture abandoned because the tick itself was cancelled is not a read error
	if ctx.Err() != nil {
		return
	}
	rerr := &ReadError{Source: src, Lister: lister, Err: err}
	p.logger.Warn("snapshot capture failed", "source", src.String(), "lister", lister, "err", err)
	if p.onError != nil {
		p.onError(rerr)
	}
}

// capture runs list under a timeout. The call is abandoned, not awaited,
// when the deadline passes, so a lister that ignores its context cannot
// stall the caller.
func capture[T any](ctx context.Context, timeout time.Duration, list func(context.Context) ([]T, error)) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		items []T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		items, err := list(ctx)
		done <- result{items, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, errors.Wrap(r.err, "list failed")
		}
		return r.items, nil
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "capture exceeded %v", timeout)
	}
}
