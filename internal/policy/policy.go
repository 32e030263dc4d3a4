// Package policy decides the recovery sequence run after a failed connectivity check.
//
// An escalation is a fixed, finite sequence: RetriesBeforeReboot rechecks spaced
// by CheckInterval, a single reboot if the last recheck still fails, then one
// final recheck after PostRebootWait. The policy holds no state; the watchdog
// drives it one attempt at a time.
package policy

import (
	"errors"
	"fmt"
	"time"
)

// Settings is the subset of connection settings the policy depends on.
type Settings struct {
	CheckInterval       time.Duration
	RetriesBeforeReboot int
	PostRebootWait      time.Duration
}

// Validate enforces the invariants the policy relies on.
func (s Settings) Validate() error {
	if s.CheckInterval <= 0 {
		return errors.New("check interval must be positive")
	}
	if s.RetriesBeforeReboot < 1 {
		return fmt.Errorf("retries before reboot must be at least 1, got %d", s.RetriesBeforeReboot)
	}
	if s.PostRebootWait < 0 {
		return errors.New("post-reboot wait must not be negative")
	}
	return nil
}

// Decision describes one step of an escalation.
type Decision struct {
	Attempt int
	// Wait is how long to pause before re-probing.
	Wait time.Duration
	// RebootOnFailure is set on the last recheck: a disconnected result triggers the reboot.
	RebootOnFailure bool
	// Final marks the single post-reboot verdict; nothing follows it.
	Final bool
}

// Policy computes escalation steps from fixed settings.
type Policy struct {
	settings Settings
}

// New validates settings and returns a policy over them.
func New(settings Settings) (Policy, error) {
	if err := settings.Validate(); err != nil {
		return Policy{}, err
	}
	return Policy{settings: settings}, nil
}

// Settings returns the settings the policy was built with.
func (p Policy) Settings() Settings {
	return p.settings
}

// Attempts is the number of rechecks before a reboot is considered.
func (p Policy) Attempts() int {
	return p.settings.RetriesBeforeReboot
}

// Decide returns the step for a 1-based recheck attempt.
// Attempts outside 1..RetriesBeforeReboot are clamped into range.
func (p Policy) Decide(attempt int) Decision {
	n := p.settings.RetriesBeforeReboot
	if attempt < 1 {
		attempt = 1
	}
	if attempt > n {
		attempt = n
	}
	return Decision{
		Attempt:         attempt,
		Wait:            p.settings.CheckInterval,
		RebootOnFailure: attempt == n,
	}
}

// AfterReboot returns the single verdict step that follows a reboot.
func (p Policy) AfterReboot() Decision {
	return Decision{
		Attempt: p.settings.RetriesBeforeReboot + 1,
		Wait:    p.settings.PostRebootWait,
		Final:   true,
	}
}

// StepKind enumerates the actions of a worst-case escalation.
type StepKind string

const (
	StepWait    StepKind = "wait"
	StepRecheck StepKind = "recheck"
	StepReboot  StepKind = "reboot"
)

// Step is one entry of a Plan.
type Step struct {
	Kind StepKind
	Wait time.Duration
}

func (s Step) String() string {
	if s.Kind == StepWait {
		return fmt.Sprintf("%s %s", s.Kind, s.Wait)
	}
	return string(s.Kind)
}

// Plan lists every action of an escalation where no recheck succeeds.
// It contains exactly one reboot.
func (p Policy) Plan() []Step {
	n := p.settings.RetriesBeforeReboot
	steps := make([]Step, 0, 2*n+3)
	for attempt := 1; attempt <= n; attempt++ {
		d := p.Decide(attempt)
		steps = append(steps, Step{Kind: StepWait, Wait: d.Wait}, Step{Kind: StepRecheck})
	}
	final := p.AfterReboot()
	steps = append(steps,
		Step{Kind: StepReboot},
		Step{Kind: StepWait, Wait: final.Wait},
		Step{Kind: StepRecheck},
	)
	return steps
}
