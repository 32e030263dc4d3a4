package models

import (
	"time"
)

// ProbeResult captures the outcome of probing a single target.
type ProbeResult struct {
	Target  string        `json:"target"`
	Method  string        `json:"method"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// InterfaceState is the operational state of a local network interface.
type InterfaceState struct {
	Name  string `json:"name"`
	Up    bool   `json:"up"`
	Flags string `json:"flags,omitempty"`
}

// OperationalStatus renders the state the way operators read it in logs.
func (i InterfaceState) OperationalStatus() string {
	if i.Up {
		return "Up"
	}
	return "Down"
}
