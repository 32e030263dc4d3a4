package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sosinternet/internal/actuator"
	"sosinternet/internal/models"
)

// Outcome is how an escalation ended.
type Outcome string

const (
	OutcomeRecovered           Outcome = "recovered"
	OutcomeRestoredAfterReboot Outcome = "restored_after_reboot"
	OutcomeNotRestored         Outcome = "not_restored_after_reboot"
	OutcomeCancelled           Outcome = "cancelled"
)

// Escalation summarises one recovery sequence.
type Escalation struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    Outcome   `json:"outcome"`
	// Attempts counts rechecks performed, including the post-reboot one.
	Attempts int  `json:"attempts"`
	Rebooted bool `json:"rebooted"`
	// RebootError is set when the actuator was invoked and failed.
	RebootError string `json:"reboot_error,omitempty"`
	RebootKind  string `json:"reboot_error_kind,omitempty"`
}

// escalate runs the recovery sequence after a failed check. Every wait and
// recheck observes ctx; a reboot failure is recorded and the sequence carries
// on to its post-reboot verdict.
func (w *Watchdog) escalate(ctx context.Context) Escalation {
	esc := Escalation{ID: uuid.NewString(), StartedAt: w.clock.Now()}
	defer func() {
		esc.FinishedAt = w.clock.Now()
		w.mu.Lock()
		recorded := esc
		w.lastEscalation = &recorded
		w.mu.Unlock()
	}()

	n := w.policy.Attempts()
	w.emit(models.Event{
		Kind:         models.EventEscalationStarted,
		Message:      fmt.Sprintf("starting recovery, %d rechecks before router reboot", n),
		MaxAttempts:  n,
		EscalationID: esc.ID,
	})

	for attempt := 1; attempt <= n; attempt++ {
		d := w.policy.Decide(attempt)
		if err := sleep(ctx, w.clock, d.Wait); err != nil {
			esc.Outcome = OutcomeCancelled
			return esc
		}

		status := w.check(ctx)
		esc.Attempts++
		if ctx.Err() != nil {
			esc.Outcome = OutcomeCancelled
			return esc
		}
		if status.Connected {
			w.emit(models.Event{
				Kind:         models.EventConnectionRestored,
				Message:      fmt.Sprintf("internet connection restored on attempt %d/%d", d.Attempt, n),
				Attempt:      d.Attempt,
				MaxAttempts:  n,
				EscalationID: esc.ID,
				Status:       &status,
			})
			esc.Outcome = OutcomeRecovered
			return esc
		}

		w.emit(models.Event{
			Kind:         models.EventRecheckFailed,
			Message:      fmt.Sprintf("recovery attempt %d/%d, connection still down", d.Attempt, n),
			Attempt:      d.Attempt,
			MaxAttempts:  n,
			EscalationID: esc.ID,
			Status:       &status,
			Error:        status.Error,
		})
		if !d.RebootOnFailure {
			continue
		}
		esc = w.rebootAndVerify(ctx, esc)
		return esc
	}

	// Unreachable with a validated policy: the last attempt always reboots.
	esc.Outcome = OutcomeNotRestored
	return esc
}

func (w *Watchdog) rebootAndVerify(ctx context.Context, esc Escalation) Escalation {
	n := w.policy.Attempts()
	w.emit(models.Event{
		Kind:         models.EventRebootAttempted,
		Message:      fmt.Sprintf("maximum recovery attempts (%d) reached, rebooting router", n),
		EscalationID: esc.ID,
	})

	esc.Rebooted = true
	if err := w.reboot(ctx); err != nil {
		if ctx.Err() != nil {
			esc.Outcome = OutcomeCancelled
			return esc
		}
		esc.RebootError = err.Error()
		esc.RebootKind = actuator.Kind(err)
		w.emit(models.Event{
			Kind:         models.EventRebootFailed,
			Message:      fmt.Sprintf("failed to reboot router (%s)", esc.RebootKind),
			EscalationID: esc.ID,
			Error:        err.Error(),
		})
	} else {
		w.emit(models.Event{
			Kind:         models.EventRebootSucceeded,
			Message:      "router reboot completed",
			EscalationID: esc.ID,
		})
	}

	final := w.policy.AfterReboot()
	if err := sleep(ctx, w.clock, final.Wait); err != nil {
		esc.Outcome = OutcomeCancelled
		return esc
	}

	status := w.check(ctx)
	esc.Attempts++
	if ctx.Err() != nil {
		esc.Outcome = OutcomeCancelled
		return esc
	}
	if status.Connected {
		w.emit(models.Event{
			Kind:         models.EventRestoredAfterReboot,
			Message:      "internet connection restored after router reboot",
			Attempt:      final.Attempt,
			EscalationID: esc.ID,
			Status:       &status,
		})
		esc.Outcome = OutcomeRestoredAfterReboot
		return esc
	}

	w.emit(models.Event{
		Kind:         models.EventNotRestored,
		Message:      "internet connection still not available after router reboot",
		Attempt:      final.Attempt,
		EscalationID: esc.ID,
		Status:       &status,
		Error:        status.Error,
	})
	esc.Outcome = OutcomeNotRestored
	return esc
}
