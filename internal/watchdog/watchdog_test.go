package watchdog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sosinternet/internal/actuator"
	"sosinternet/internal/models"
	"sosinternet/internal/policy"
)

// trace records the order of checks, waits and reboots across fakes.
type trace struct {
	mu    sync.Mutex
	steps []string
}

func (t *trace) add(step string) {
	t.mu.Lock()
	t.steps = append(t.steps, step)
	t.mu.Unlock()
}

func (t *trace) Steps() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.steps...)
}

func (t *trace) count(step string) int {
	n := 0
	for _, s := range t.Steps() {
		if s == step {
			n++
		}
	}
	return n
}

type tracingClock struct {
	*clock.Mock
	trace *trace
}

func (c tracingClock) Timer(d time.Duration) *clock.Timer {
	c.trace.add("wait " + d.String())
	return c.Mock.Timer(d)
}

// scriptedChecker answers from results in order and repeats the last one.
type scriptedChecker struct {
	trace   *trace
	results []bool
	calls   int
	panicAt int
}

func (c *scriptedChecker) Check(context.Context) models.ConnectionStatus {
	c.trace.add("check")
	c.calls++
	if c.calls == c.panicAt {
		panic("probe exploded")
	}
	ok := c.results[len(c.results)-1]
	if c.calls <= len(c.results) {
		ok = c.results[c.calls-1]
	}
	if !ok {
		return models.ConnectionStatus{Connected: false, Error: "all probe targets unreachable"}
	}
	return models.ConnectionStatus{Connected: true, Target: "8.8.8.8"}
}

func fakeActuator(tr *trace, err error) actuator.Actuator {
	return actuator.Func(func(context.Context) error {
		tr.add("reboot")
		return err
	})
}

type eventLog struct {
	mu     sync.Mutex
	events []models.Event
}

func (l *eventLog) Emit(ev models.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) Kinds() []models.EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	kinds := make([]models.EventKind, 0, len(l.events))
	for _, ev := range l.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func (l *eventLog) Find(kind models.EventKind) (models.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return models.Event{}, false
}

type fixture struct {
	wd     *Watchdog
	mock   *clock.Mock
	trace  *trace
	events *eventLog
}

func newFixture(t *testing.T, retries int, checker *scriptedChecker, rebootErr error) *fixture {
	t.Helper()
	tr := checker.trace
	mock := clock.NewMock()
	pol, err := policy.New(policy.Settings{
		CheckInterval:       time.Second,
		RetriesBeforeReboot: retries,
		PostRebootWait:      3 * time.Second,
	})
	require.NoError(t, err)

	events := &eventLog{}
	wd, err := New(checker, fakeActuator(tr, rebootErr), pol,
		WithClock(tracingClock{Mock: mock, trace: tr}),
		WithSink(events),
	)
	require.NoError(t, err)
	t.Cleanup(wd.Stop)
	return &fixture{wd: wd, mock: mock, trace: tr, events: events}
}

// driveUntil advances the mock clock one second at a time until cond holds.
func (f *fixture) driveUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached, trace: %v", f.trace.Steps())
		}
		f.mock.Add(time.Second)
	}
}

func TestEscalationRebootsOnceThenResumes(t *testing.T) {
	tr := &trace{}
	f := newFixture(t, 2, &scriptedChecker{trace: tr, results: []bool{false}}, nil)

	f.wd.Start()
	f.driveUntil(t, func() bool { return tr.count("check") >= 5 })
	f.wd.Stop()

	steps := tr.Steps()
	require.GreaterOrEqual(t, len(steps), 9)
	assert.Equal(t, []string{
		"check",
		"wait 1s", "check",
		"wait 1s", "check",
		"reboot",
		"wait 3s", "check",
		"check",
	}, steps[:9])
	assert.Equal(t, 1, tr.count("reboot"))

	kinds := f.events.Kinds()
	require.GreaterOrEqual(t, len(kinds), 9)
	assert.Equal(t, []models.EventKind{
		models.EventMonitoringStarted,
		models.EventCheckFailed,
		models.EventEscalationStarted,
		models.EventRecheckFailed,
		models.EventRecheckFailed,
		models.EventRebootAttempted,
		models.EventRebootSucceeded,
		models.EventNotRestored,
		models.EventCheckFailed,
	}, kinds[:9])
	assert.Equal(t, models.EventMonitoringStopped, kinds[len(kinds)-1])
}

func TestEscalationEventsCarryAttemptAndID(t *testing.T) {
	tr := &trace{}
	f := newFixture(t, 2, &scriptedChecker{trace: tr, results: []bool{false}}, nil)

	f.wd.Start()
	f.driveUntil(t, func() bool { return tr.count("reboot") == 1 })
	f.wd.Stop()

	started, ok := f.events.Find(models.EventEscalationStarted)
	require.True(t, ok)
	assert.Equal(t, 2, started.MaxAttempts)
	assert.NotEmpty(t, started.EscalationID)

	recheck, ok := f.events.Find(models.EventRecheckFailed)
	require.True(t, ok)
	assert.Equal(t, 1, recheck.Attempt)
	assert.Equal(t, started.EscalationID, recheck.EscalationID)
	assert.NotEmpty(t, recheck.ID)
}

func TestConnectedCheckWaitsIntervalWithoutEscalating(t *testing.T) {
	tr := &trace{}
	f := newFixture(t, 3, &scriptedChecker{trace: tr, results: []bool{true}}, nil)

	f.wd.Start()
	f.driveUntil(t, func() bool { return tr.count("check") >= 3 })
	f.wd.Stop()

	assert.Equal(t, []string{"check", "wait 1s", "check", "wait 1s", "check"}, tr.Steps()[:5])
	assert.Zero(t, tr.count("reboot"))
	_, escalated := f.events.Find(models.EventEscalationStarted)
	assert.False(t, escalated)

	latest, ok := f.wd.Latest()
	require.True(t, ok)
	assert.True(t, latest.Connected)
}

func TestRecoveryDuringRecheckSkipsReboot(t *testing.T) {
	tr := &trace{}
	f := newFixture(t, 3, &scriptedChecker{trace: tr, results: []bool{false, false, true}}, nil)

	f.wd.Start()
	f.driveUntil(t, func() bool { return tr.count("check") >= 4 })
	f.wd.Stop()

	assert.Equal(t, []string{"check", "wait 1s", "check", "wait 1s", "check", "check"}, tr.Steps()[:6])
	assert.Zero(t, tr.count("reboot"))

	restored, ok := f.events.Find(models.EventConnectionRestored)
	require.True(t, ok)
	assert.Equal(t, 2, restored.Attempt)

	snap := f.wd.Snapshot()
	require.NotNil(t, snap.LastEscalation)
	assert.Equal(t, OutcomeRecovered, snap.LastEscalation.Outcome)
	assert.False(t, snap.LastEscalation.Rebooted)
	assert.Equal(t, 2, snap.LastEscalation.Attempts)
}

func TestRestoredAfterReboot(t *testing.T) {
	tr := &trace{}
	f := newFixture(t, 1, &scriptedChecker{trace: tr, results: []bool{false, false, true}}, nil)

	f.wd.Start()
	f.driveUntil(t, func() bool { return tr.count("check") >= 4 })
	f.wd.Stop()

	_, ok := f.events.Find(models.EventRestoredAfterReboot)
	assert.True(t, ok)
	snap := f.wd.Snapshot()
	require.NotNil(t, snap.LastEscalation)
	assert.Equal(t, OutcomeRestoredAfterReboot, snap.LastEscalation.Outcome)
	assert.True(t, snap.LastEscalation.Rebooted)
}

func TestRebootFailureKeepsMonitoring(t *testing.T) {
	tr := &trace{}
	rebootErr := &actuator.AutomationError{Step: "click reboot", Err: errors.New("not found")}
	f := newFixture(t, 1, &scriptedChecker{trace: tr, results: []bool{false}}, rebootErr)

	f.wd.Start()
	f.driveUntil(t, func() bool { return tr.count("check") >= 5 })
	assert.True(t, f.wd.Running())
	// The second escalation is still in flight, so this is the first one.
	snap := f.wd.Snapshot()
	f.wd.Stop()

	assert.Equal(t, []string{"check", "wait 1s", "check", "reboot", "wait 3s", "check", "check"}, tr.Steps()[:7])

	failed, ok := f.events.Find(models.EventRebootFailed)
	require.True(t, ok)
	assert.Contains(t, failed.Error, "click reboot")
	_, ok = f.events.Find(models.EventRebootSucceeded)
	assert.False(t, ok)

	require.NotNil(t, snap.LastEscalation)
	assert.Equal(t, "automation", snap.LastEscalation.RebootKind)
	assert.Equal(t, OutcomeNotRestored, snap.LastEscalation.Outcome)
}

func TestPanickingCheckerCountsAsDisconnected(t *testing.T) {
	tr := &trace{}
	f := newFixture(t, 1, &scriptedChecker{trace: tr, results: []bool{true}, panicAt: 1}, nil)

	f.wd.Start()
	f.driveUntil(t, func() bool { return tr.count("check") >= 2 })
	f.wd.Stop()

	failed, ok := f.events.Find(models.EventCheckFailed)
	require.True(t, ok)
	assert.Contains(t, failed.Error, "probe exploded")
	_, ok = f.events.Find(models.EventConnectionRestored)
	assert.True(t, ok)
}

func TestLoopErrorWaitsOneInterval(t *testing.T) {
	tr := &trace{}
	checker := &scriptedChecker{trace: tr, results: []bool{true}}
	pol, err := policy.New(policy.Settings{CheckInterval: time.Second, RetriesBeforeReboot: 1})
	require.NoError(t, err)

	mock := clock.NewMock()
	events := &eventLog{}
	var panicked atomic.Bool
	sink := SinkFunc(func(ev models.Event) {
		if ev.Kind == models.EventCheckSucceeded && panicked.CompareAndSwap(false, true) {
			panic("sink failure")
		}
		events.Emit(ev)
	})
	wd, err := New(checker, fakeActuator(tr, nil), pol, WithClock(tracingClock{Mock: mock, trace: tr}), WithSink(sink))
	require.NoError(t, err)
	t.Cleanup(wd.Stop)

	f := &fixture{wd: wd, mock: mock, trace: tr, events: events}
	wd.Start()
	f.driveUntil(t, func() bool { return tr.count("check") >= 2 })
	wd.Stop()

	loopErr, ok := events.Find(models.EventLoopError)
	require.True(t, ok)
	assert.Equal(t, "sink failure", loopErr.Error)
	assert.Equal(t, []string{"check", "wait 1s", "check"}, tr.Steps()[:3])
}

func TestStopDuringWaitIsPrompt(t *testing.T) {
	tr := &trace{}
	f := newFixture(t, 2, &scriptedChecker{trace: tr, results: []bool{false}}, nil)

	f.wd.Start()
	require.Eventually(t, func() bool { return tr.count("wait 1s") == 1 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		f.wd.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return while the loop was waiting")
	}

	assert.Equal(t, 1, tr.count("check"))
	assert.Zero(t, tr.count("reboot"))
	assert.Equal(t, StateStopped, f.wd.State())
	assert.False(t, f.wd.Running())
}

func TestStopDuringPostRebootWaitSkipsVerdict(t *testing.T) {
	tr := &trace{}
	f := newFixture(t, 1, &scriptedChecker{trace: tr, results: []bool{false}}, nil)

	f.wd.Start()
	f.driveUntil(t, func() bool { return tr.count("reboot") == 1 })
	f.wd.Stop()

	assert.Equal(t, 2, tr.count("check"))
	_, ok := f.events.Find(models.EventNotRestored)
	assert.False(t, ok)
	snap := f.wd.Snapshot()
	require.NotNil(t, snap.LastEscalation)
	assert.Equal(t, OutcomeCancelled, snap.LastEscalation.Outcome)
}

func TestEscalateCancelledBeforeFirstRecheck(t *testing.T) {
	tr := &trace{}
	f := newFixture(t, 2, &scriptedChecker{trace: tr, results: []bool{false}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan Escalation, 1)
	go func() { result <- f.wd.escalate(ctx) }()

	require.Eventually(t, func() bool { return tr.count("wait 1s") == 1 }, time.Second, time.Millisecond)
	cancel()

	esc := <-result
	assert.Equal(t, OutcomeCancelled, esc.Outcome)
	assert.Zero(t, esc.Attempts)
	assert.Zero(t, tr.count("check"))
}

func TestEscalateRecordsRebootVerdict(t *testing.T) {
	tr := &trace{}
	rebootErr := &actuator.AuthError{Err: errors.New("wrong password")}
	f := newFixture(t, 1, &scriptedChecker{trace: tr, results: []bool{false}}, rebootErr)

	result := make(chan Escalation, 1)
	go func() { result <- f.wd.escalate(context.Background()) }()

	var esc Escalation
	f.driveUntil(t, func() bool {
		select {
		case esc = <-result:
			return true
		default:
			return false
		}
	})

	assert.Equal(t, OutcomeNotRestored, esc.Outcome)
	assert.True(t, esc.Rebooted)
	assert.Equal(t, "auth", esc.RebootKind)
	assert.Equal(t, 2, esc.Attempts)

	recorded := f.wd.Snapshot().LastEscalation
	require.NotNil(t, recorded)
	assert.Equal(t, esc.ID, recorded.ID)
	assert.Equal(t, esc.Outcome, recorded.Outcome)
	assert.Equal(t, esc.Rebooted, recorded.Rebooted)
	assert.Equal(t, esc.RebootError, recorded.RebootError)
	assert.Equal(t, esc.RebootKind, recorded.RebootKind)
	assert.Equal(t, esc.Attempts, recorded.Attempts)
	assert.False(t, recorded.FinishedAt.IsZero())
}

// blockingChecker parks every call until its context is cancelled.
type blockingChecker struct {
	calls atomic.Int32
}

func (b *blockingChecker) Check(ctx context.Context) models.ConnectionStatus {
	b.calls.Add(1)
	<-ctx.Done()
	return models.ErrorStatus(time.Now(), ctx.Err())
}

func TestStartTwiceRunsOneLoop(t *testing.T) {
	checker := &blockingChecker{}
	pol, err := policy.New(policy.Settings{CheckInterval: time.Second, RetriesBeforeReboot: 1})
	require.NoError(t, err)
	wd, err := New(checker, actuator.Func(func(context.Context) error { return nil }), pol, WithClock(clock.NewMock()))
	require.NoError(t, err)

	wd.Start()
	wd.Start()
	require.Eventually(t, func() bool { return checker.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, checker.calls.Load())
	assert.Equal(t, StateChecking, wd.State())

	wd.Stop()
	assert.Equal(t, StateStopped, wd.State())
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	tr := &trace{}
	f := newFixture(t, 1, &scriptedChecker{trace: tr, results: []bool{true}}, nil)

	f.wd.Stop()
	f.wd.Stop()
	assert.Equal(t, StateIdle, f.wd.State())
	assert.Empty(t, tr.Steps())
	assert.Empty(t, f.events.Kinds())
}

func TestRestartAfterStop(t *testing.T) {
	tr := &trace{}
	f := newFixture(t, 1, &scriptedChecker{trace: tr, results: []bool{true}}, nil)

	f.wd.Start()
	f.driveUntil(t, func() bool { return tr.count("check") >= 1 })
	f.wd.Stop()
	require.False(t, f.wd.Running())

	f.wd.Start()
	f.driveUntil(t, func() bool { return tr.count("check") >= 2 })
	assert.True(t, f.wd.Running())
	f.wd.Stop()

	started := 0
	for _, k := range f.events.Kinds() {
		if k == models.EventMonitoringStarted {
			started++
		}
	}
	assert.Equal(t, 2, started)
}

func TestNewRejectsMissingCollaborators(t *testing.T) {
	pol, err := policy.New(policy.Settings{CheckInterval: time.Second, RetriesBeforeReboot: 1})
	require.NoError(t, err)

	_, err = New(nil, actuator.Func(func(context.Context) error { return nil }), pol)
	assert.Error(t, err)
	_, err = New(&blockingChecker{}, nil, pol)
	assert.Error(t, err)
	_, err = New(&blockingChecker{}, actuator.Func(func(context.Context) error { return nil }), policy.Policy{})
	assert.True(t, err != nil && strings.Contains(err.Error(), "policy"))
}
