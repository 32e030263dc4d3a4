// Package watchdog owns the monitoring loop: it checks connectivity on a fixed
// interval and, when the connection is down, runs the recovery policy that may
// end in a router reboot.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sosinternet/internal/actuator"
	"sosinternet/internal/models"
	"sosinternet/internal/policy"
	"sosinternet/internal/probe"
)

// State is the lifecycle phase of the watchdog.
type State string

const (
	StateIdle       State = "idle"
	StateChecking   State = "checking"
	StateEscalating State = "escalating"
	StateStopped    State = "stopped"
)

// Snapshot is a point-in-time view of the watchdog for status endpoints.
type Snapshot struct {
	State          State                    `json:"state"`
	Running        bool                     `json:"running"`
	StartedAt      *time.Time               `json:"started_at,omitempty"`
	Latest         *models.ConnectionStatus `json:"latest,omitempty"`
	LastEscalation *Escalation              `json:"last_escalation,omitempty"`
}

// Watchdog composes a connectivity checker, a reboot actuator and a recovery policy.
type Watchdog struct {
	checker  probe.Checker
	actuator actuator.Actuator
	policy   policy.Policy
	clock    clock.Clock
	sink     Sink
	logger   *zap.Logger

	// lifecycle serialises Start and Stop so at most one loop ever runs.
	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}

	mu             sync.RWMutex
	state          State
	startedAt      time.Time
	latest         *models.ConnectionStatus
	lastEscalation *Escalation
}

// Option customises a Watchdog.
type Option func(*Watchdog)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(w *Watchdog) { w.clock = c }
}

// WithSink sets where progress events are delivered.
func WithSink(s Sink) Option {
	return func(w *Watchdog) { w.sink = s }
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watchdog) { w.logger = logger }
}

// New wires a watchdog. It does not start monitoring.
func New(checker probe.Checker, act actuator.Actuator, pol policy.Policy, opts ...Option) (*Watchdog, error) {
	if checker == nil {
		return nil, errors.New("watchdog requires a connectivity checker")
	}
	if act == nil {
		return nil, errors.New("watchdog requires a recovery actuator")
	}
	if err := pol.Settings().Validate(); err != nil {
		return nil, fmt.Errorf("watchdog policy: %w", err)
	}
	w := &Watchdog{
		checker:  checker,
		actuator: act,
		policy:   pol,
		clock:    clock.New(),
		sink:     Sinks{},
		logger:   zap.NewNop(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start launches the monitoring loop. Calling it while running only logs a warning.
func (w *Watchdog) Start() {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if w.cancel != nil {
		w.logger.Warn("monitoring is already active")
		return
	}

	w.logger.Info("starting internet connection monitoring")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done

	w.mu.Lock()
	w.state = StateChecking
	w.startedAt = w.clock.Now()
	w.mu.Unlock()

	go w.run(ctx, done)
}

// Stop cancels the loop and waits for it to exit. It is safe to call when the
// watchdog was never started or is already stopped.
func (w *Watchdog) Stop() {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if w.cancel == nil {
		w.logger.Warn("monitoring is not active")
		return
	}

	w.logger.Info("stopping internet connection monitoring")
	w.cancel()
	<-w.done
	w.cancel = nil
	w.done = nil
}

// Running reports whether a monitoring loop is active.
func (w *Watchdog) Running() bool {
	state := w.State()
	return state == StateChecking || state == StateEscalating
}

// State returns the current lifecycle phase.
func (w *Watchdog) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Latest returns the most recent connection status, if any check has run.
func (w *Watchdog) Latest() (models.ConnectionStatus, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.latest == nil {
		return models.ConnectionStatus{}, false
	}
	return *w.latest, true
}

// Snapshot returns the state, latest status and last escalation together.
func (w *Watchdog) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	snap := Snapshot{
		State:   w.state,
		Running: w.state == StateChecking || w.state == StateEscalating,
	}
	if !w.startedAt.IsZero() {
		started := w.startedAt
		snap.StartedAt = &started
	}
	if w.latest != nil {
		latest := *w.latest
		snap.Latest = &latest
	}
	if w.lastEscalation != nil {
		esc := *w.lastEscalation
		snap.LastEscalation = &esc
	}
	return snap
}

func (w *Watchdog) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		w.setState(StateStopped)
		w.emit(models.Event{Kind: models.EventMonitoringStopped, Message: "monitoring service terminated"})
	}()

	w.emit(models.Event{Kind: models.EventMonitoringStarted, Message: "monitoring service started"})

	for ctx.Err() == nil {
		wait := w.iterate(ctx)
		if err := sleep(ctx, w.clock, wait); err != nil {
			return
		}
	}
}

// iterate runs one check, and the escalation if it failed. It returns how long
// to wait before the next iteration.
func (w *Watchdog) iterate(ctx context.Context) (wait time.Duration) {
	interval := w.policy.Settings().CheckInterval
	defer func() {
		if r := recover(); r != nil {
			w.emit(models.Event{
				Kind:    models.EventLoopError,
				Message: "error during connection monitoring",
				Error:   fmt.Sprint(r),
			})
			wait = interval
		}
	}()

	w.setState(StateChecking)
	status := w.check(ctx)
	if ctx.Err() != nil {
		return 0
	}

	if status.Connected {
		w.emit(models.Event{
			Kind:    models.EventCheckSucceeded,
			Message: "internet connection is active",
			Status:  &status,
		})
		return interval
	}

	w.emit(models.Event{
		Kind:    models.EventCheckFailed,
		Message: "internet connection is not active, starting recovery attempts",
		Status:  &status,
		Error:   status.Error,
	})

	w.setState(StateEscalating)
	w.escalate(ctx)
	w.setState(StateChecking)
	return 0
}

// check never panics; a panicking checker yields a disconnected status.
func (w *Watchdog) check(ctx context.Context) (status models.ConnectionStatus) {
	defer func() {
		if r := recover(); r != nil {
			status = models.ErrorStatus(w.clock.Now(), fmt.Errorf("connectivity check panicked: %v", r))
		}
		w.mu.Lock()
		w.latest = &status
		w.mu.Unlock()
	}()
	return w.checker.Check(ctx)
}

// reboot never panics; a panicking actuator yields an error.
func (w *Watchdog) reboot(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("router reboot panicked: %v", r)
		}
	}()
	return w.actuator.Reboot(ctx)
}

func (w *Watchdog) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Watchdog) emit(ev models.Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = w.clock.Now()
	}
	w.sink.Emit(ev)
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
