// Package monitor runs the limit detection state machine:
// Idle -> Monitoring -> LimitReached -> (Monitoring | Extended -> Monitoring).
//
// All state is owned by the goroutine running Run. Public methods post
// commands to it, and tick results and notifier answers are fed back to it
// as events, so no state is shared with the scheduler or the notifier.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/limitwatch/limitwatch/internal/notify"
	"github.com/limitwatch/limitwatch/internal/rules"
	"github.com/limitwatch/limitwatch/internal/scheduler"
	"github.com/limitwatch/limitwatch/internal/snapshot"
)

const (
	DefaultInterval      = 10 * time.Second
	DefaultExtendMinutes = 15

	subscriberBuffer = 32
)

// SnapshotProvider captures the system state evaluated each tick
type SnapshotProvider interface {
	CaptureWindows(ctx context.Context) snapshot.WindowSnapshot
	CaptureProcesses(ctx context.Context) snapshot.ProcessSnapshot
	Available() bool
}

// Detector turns a snapshot into a signal
type Detector interface {
	Evaluate(s snapshot.Snapshot) rules.Signal
}

type detectorRef struct{ Detector }

type tickResult struct {
	epoch  uint64
	signal rules.Signal
}

type notifyResult struct {
	id   uint64
	resp notify.Response
	err  error
}

// Monitor drives detection and user notification
type Monitor struct {
	provider      SnapshotProvider
	notifier      notify.Notifier
	authorizer    Authorizer
	clock         clockwork.Clock
	logger        *slog.Logger
	interval      time.Duration
	extendMinutes int

	detector  atomic.Pointer[detectorRef]
	sched     *scheduler.Scheduler
	epoch     atomic.Uint64 // bumped on every scheduler (re)start
	detecting atomic.Bool   // false while Extended

	cmds      chan func()
	results   chan tickResult
	answers   chan notifyResult
	graceCh   chan uint64
	running   atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once

	subMu   sync.Mutex
	subs    map[int]chan Transition
	nextSub int
	dropped atomic.Uint64

	// actor-owned
	runCtx       context.Context
	state        State
	session      *session
	notifyID     uint64
	notifyCancel context.CancelFunc
	pending      *notify.Alert
	graceEpoch   uint64
	graceTimer   clockwork.Timer
}

// Option configures a Monitor
type Option func(*Monitor)

func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithAuthorizer replaces the default source availability check
func WithAuthorizer(a Authorizer) Option {
	return func(m *Monitor) { m.authorizer = a }
}

// WithInterval sets the polling cadence
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithExtendMinutes sets the grace period used when an Extend response
// carries no duration
func WithExtendMinutes(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.extendMinutes = n
		}
	}
}

// New creates an idle monitor. Run must be running for any other method
// to take effect.
func New(provider SnapshotProvider, detector Detector, notifier notify.Notifier, opts ...Option) *Monitor {
	m := &Monitor{
		provider:      provider,
		notifier:      notifier,
		clock:         clockwork.NewRealClock(),
		interval:      DefaultInterval,
		extendMinutes: DefaultExtendMinutes,
		cmds:          make(chan func()),
		results:       make(chan tickResult),
		answers:       make(chan notifyResult),
		graceCh:       make(chan uint64),
		closed:        make(chan struct{}),
		subs:          make(map[int]chan Transition),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.authorizer == nil {
		m.authorizer = SourceAuthorizer(provider)
	}
	m.detector.Store(&detectorRef{detector})
	m.sched = scheduler.New(m.tick, scheduler.WithClock(m.clock), scheduler.WithLogger(m.logger))
	return m
}

// Run processes commands and events until ctx is cancelled. An active
// session is stopped on exit. Run may be called once.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("monitor already running")
	}
	m.runCtx = ctx
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-m.cmds:
			cmd()
		case r := <-m.results:
			m.handleTick(r)
		case r := <-m.answers:
			m.handleAnswer(r)
		case epoch := <-m.graceCh:
			m.handleGraceElapsed(epoch)
		}
	}
}

func (m *Monitor) shutdown() {
	m.stopSession()
	m.closeOnce.Do(func() { close(m.closed) })

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
}

// do runs fn on the actor and waits for it to finish
func (m *Monitor) do(fn func()) error {
	done := make(chan struct{})
	select {
	case m.cmds <- func() { fn(); close(done) }:
	case <-m.closed:
		return ErrClosed
	}
	<-done
	return nil
}

// Start authorizes and begins monitoring. It is a no-op unless the monitor
// is idle. An *AuthorizationError leaves the monitor idle.
func (m *Monitor) Start(ctx context.Context) error {
	var idle bool
	if err := m.do(func() { idle = m.state == StateIdle }); err != nil {
		return err
	}
	if !idle {
		return nil
	}

	if err := m.authorizer.Authorize(ctx); err != nil {
		authErr := asAuthorizationError(err)
		m.logger.Warn("monitoring not authorized", "err", authErr)
		return authErr
	}

	return m.do(func() {
		if m.state != StateIdle {
			return
		}
		m.session = newSession(m.clock.Now(), m.interval)
		m.detecting.Store(true)
		m.transition(EventStart, nil, nil)
		m.restartScheduler()
		m.logger.Info("monitoring started", "session", m.session.id, "interval", m.interval)
	})
}

// Stop ends the session from any state. Stopping an idle or closed
// monitor does nothing.
func (m *Monitor) Stop() {
	_ = m.do(m.stopSession)
}

// Respond answers the pending limit alert, cancelling the notifier
func (m *Monitor) Respond(resp notify.Response) error {
	var err error
	if cerr := m.do(func() {
		if m.state != StateLimitReached {
			err = fmt.Errorf("%w: respond in state %s", ErrInvalidTransition, m.state)
			return
		}
		m.cancelNotification()
		m.applyResponse(resp)
	}); cerr != nil {
		return cerr
	}
	return err
}

// Simulate injects a manual trigger as if a detector had fired
func (m *Monitor) Simulate(reason string) error {
	var err error
	if cerr := m.do(func() {
		if m.state != StateMonitoring {
			err = fmt.Errorf("%w: simulate in state %s", ErrInvalidTransition, m.state)
			return
		}
		m.trigger(rules.Manual(reason, m.clock.Now()))
	}); cerr != nil {
		return cerr
	}
	return err
}

// Status returns a copy of the current state. A closed monitor reports idle.
func (m *Monitor) Status() Status {
	var st Status
	err := m.do(func() {
		st = Status{State: m.state, Interval: m.interval}
		if s := m.session; s != nil {
			st.SessionID = s.id
			st.StartedAt = s.startedAt
			st.LastCheckAt = s.lastCheckAt
			st.GraceDeadline = s.graceDeadline
			st.Triggers = s.triggers
			if s.lastSignal != nil {
				sig := *s.lastSignal
				st.LastSignal = &sig
			}
		}
		if m.pending != nil {
			alert := *m.pending
			st.PendingPrompt = &alert
		}
	})
	if err != nil {
		st = Status{State: StateIdle, Interval: m.interval}
	}
	st.DroppedTransitions = m.dropped.Load()
	return st
}

// SetDetector swaps the rules used from the next tick on
func (m *Monitor) SetDetector(d Detector) {
	m.detector.Store(&detectorRef{d})
	m.logger.Info("detector rules replaced")
}

// Subscribe returns a channel of transitions and a function that ends the
// subscription. Transitions are dropped, not queued, when the channel is
// full. The channel is closed on unsubscribe or when Run exits.
func (m *Monitor) Subscribe() (<-chan Transition, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	ch := make(chan Transition, subscriberBuffer)
	select {
	case <-m.closed:
		close(ch)
		return ch, func() {}
	default:
	}

	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// tick runs on the scheduler goroutine
func (m *Monitor) tick(ctx context.Context) {
	epoch := m.epoch.Load()
	if !m.detecting.Load() {
		return
	}

	d := m.detector.Load().Detector
	sig := d.Evaluate(m.provider.CaptureWindows(ctx))
	if !sig.Triggered && ctx.Err() == nil {
		sig = d.Evaluate(m.provider.CaptureProcesses(ctx))
	}
	if ctx.Err() != nil {
		return
	}

	select {
	case m.results <- tickResult{epoch: epoch, signal: sig}:
	case <-ctx.Done():
	}
}

func (m *Monitor) handleTick(r tickResult) {
	if r.epoch != m.epoch.Load() || m.state != StateMonitoring {
		m.logger.Debug("discarding stale tick", "state", m.state.String(), "triggered", r.signal.Triggered)
		return
	}
	m.session.lastCheckAt = m.clock.Now()
	if r.signal.Triggered {
		m.trigger(r.signal)
	}
}

func (m *Monitor) trigger(sig rules.Signal) {
	m.sched.Stop()
	m.session.triggers++
	m.session.lastSignal = &sig
	m.transition(EventTrigger, &sig, nil)
	m.logger.Info("limit reached",
		"session", m.session.id,
		"source", sig.Source.String(),
		"reason", sig.Reason,
	)

	alert := notify.Alert{SessionID: m.session.id, Signal: sig, ExtendMinutes: m.extendMinutes}
	ctx, cancel := context.WithCancel(m.runCtx)
	m.notifyID++
	m.notifyCancel = cancel
	m.pending = &alert

	id := m.notifyID
	go func() {
		resp, err := m.notifier.NotifyLimitReached(ctx, alert)
		select {
		case m.answers <- notifyResult{id: id, resp: resp, err: err}:
		case <-m.closed:
		}
	}()
}

func (m *Monitor) handleAnswer(r notifyResult) {
	if r.id != m.notifyID || m.state != StateLimitReached {
		return
	}
	if r.err != nil {
		if errors.Is(r.err, context.Canceled) {
			return
		}
		m.logger.Warn("notifier failed, resuming monitoring", "session", m.session.id, "err", r.err)
		r.resp = notify.Acknowledge()
	}
	m.cancelNotification()
	m.applyResponse(r.resp)
}

func (m *Monitor) applyResponse(resp notify.Response) {
	switch resp.Action {
	case notify.ActionExtend:
		if resp.Minutes <= 0 {
			resp.Minutes = m.extendMinutes
		}
		grace := time.Duration(resp.Minutes) * time.Minute
		m.session.graceDeadline = m.clock.Now().Add(grace)
		m.detecting.Store(false)
		m.startGraceTimer(grace)
		m.transition(EventExtend, nil, &resp)
		m.restartScheduler()
		m.logger.Info("limit extended", "session", m.session.id, "minutes", resp.Minutes)
	default:
		resp = notify.Acknowledge()
		m.detecting.Store(true)
		m.transition(EventAcknowledge, nil, &resp)
		m.restartScheduler()
		m.logger.Info("limit acknowledged", "session", m.session.id)
	}
}

func (m *Monitor) startGraceTimer(d time.Duration) {
	m.cancelGraceTimer()
	epoch := m.graceEpoch
	m.graceTimer = m.clock.AfterFunc(d, func() {
		select {
		case m.graceCh <- epoch:
		case <-m.closed:
		}
	})
}

func (m *Monitor) cancelGraceTimer() {
	m.graceEpoch++
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
}

func (m *Monitor) handleGraceElapsed(epoch uint64) {
	if epoch != m.graceEpoch || m.state != StateExtended {
		return
	}
	m.graceTimer = nil
	m.session.graceDeadline = time.Time{}
	m.detecting.Store(true)
	m.transition(EventGraceElapsed, nil, nil)
	m.logger.Info("grace period elapsed", "session", m.session.id)
}

func (m *Monitor) cancelNotification() {
	m.notifyID++
	if m.notifyCancel != nil {
		m.notifyCancel()
		m.notifyCancel = nil
	}
	m.pending = nil
}

func (m *Monitor) restartScheduler() {
	m.sched.Stop()
	m.epoch.Add(1)
	if err := m.sched.Start(m.interval); err != nil {
		m.logger.Error("failed to start scheduler", "err", err)
	}
}

func (m *Monitor) stopSession() {
	if m.state == StateIdle {
		return
	}
	m.sched.Stop()
	m.epoch.Add(1)
	m.detecting.Store(false)
	m.cancelGraceTimer()
	m.cancelNotification()

	id := m.session.id
	m.transition(EventStop, nil, nil)
	m.session = nil
	m.logger.Info("monitoring stopped", "session", id)
}

// transition moves to the state e leads to and publishes it
func (m *Monitor) transition(e Event, sig *rules.Signal, resp *notify.Response) {
	to, err := next(m.state, e)
	if err != nil {
		m.logger.Error("illegal transition", "err", err)
		return
	}
	t := Transition{
		From:     m.state,
		To:       to,
		Event:    e,
		Signal:   sig,
		Response: resp,
		At:       m.clock.Now(),
	}
	if m.session != nil {
		t.SessionID = m.session.id
	}
	m.state = to
	m.logger.Debug("state changed", "session", t.SessionID, "from", t.From.String(), "state", t.To.String(), "event", string(e))
	m.publish(t)
}

func (m *Monitor) publish(t Transition) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- t:
		default:
			n := m.dropped.Add(1)
			m.logger.Warn("subscriber too slow, transition dropped", "event", string(t.Event), "dropped", n)
		}
	}
}
