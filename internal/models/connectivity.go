package models

import (
	"time"
)

// ConnectionStatus captures the outcome of one connectivity check.
type ConnectionStatus struct {
	Connected  bool             `json:"connected"`
	Detail     string           `json:"detail"`
	Timestamp  time.Time        `json:"timestamp"`
	Latency    *time.Duration   `json:"latency,omitempty"`
	Error      string           `json:"error,omitempty"`
	Target     string           `json:"target,omitempty"`
	Results    []ProbeResult    `json:"results,omitempty"`
	Interfaces []InterfaceState `json:"interfaces,omitempty"`
}

// LatencyMs returns the round-trip time in milliseconds, or -1 when unknown.
func (s ConnectionStatus) LatencyMs() float64 {
	if s.Latency == nil {
		return -1
	}
	return float64(*s.Latency) / float64(time.Millisecond)
}

// ErrorStatus builds a disconnected status for a check that could not run.
func ErrorStatus(at time.Time, err error) ConnectionStatus {
	msg := "connection check failed"
	if err != nil {
		msg = err.Error()
	}
	return ConnectionStatus{
		Connected: false,
		Detail:    "error while checking the connection",
		Timestamp: at,
		Error:     msg,
	}
}
