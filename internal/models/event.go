package models

import "time"

// EventKind identifies a watchdog progress event.
type EventKind string

const (
	EventMonitoringStarted   EventKind = "monitoring_started"
	EventMonitoringStopped   EventKind = "monitoring_stopped"
	EventCheckSucceeded      EventKind = "check_succeeded"
	EventCheckFailed         EventKind = "check_failed"
	EventEscalationStarted   EventKind = "escalation_started"
	EventRecheckFailed       EventKind = "recheck_failed"
	EventConnectionRestored  EventKind = "connection_restored"
	EventRebootAttempted     EventKind = "reboot_attempted"
	EventRebootSucceeded     EventKind = "reboot_succeeded"
	EventRebootFailed        EventKind = "reboot_failed"
	EventRestoredAfterReboot EventKind = "restored_after_reboot"
	EventNotRestored         EventKind = "not_restored_after_reboot"
	EventLoopError           EventKind = "loop_error"
)

// Severity maps an event kind onto a log level name.
func (k EventKind) Severity() string {
	switch k {
	case EventCheckFailed, EventEscalationStarted, EventRecheckFailed, EventRebootAttempted:
		return "warn"
	case EventRebootFailed, EventNotRestored, EventLoopError:
		return "error"
	default:
		return "info"
	}
}

// Event is a structured progress record emitted by the watchdog.
type Event struct {
	ID           string            `json:"id"`
	Kind         EventKind         `json:"kind"`
	Time         time.Time         `json:"time"`
	Message      string            `json:"message"`
	Attempt      int               `json:"attempt,omitempty"`
	MaxAttempts  int               `json:"max_attempts,omitempty"`
	EscalationID string            `json:"escalation_id,omitempty"`
	Status       *ConnectionStatus `json:"status,omitempty"`
	Error        string            `json:"error,omitempty"`
}
