// Package probe answers whether the internet is reachable right now.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sosinternet/internal/models"
)

// DefaultTimeout bounds each per-target reachability test.
const DefaultTimeout = 3 * time.Second

// Pinger performs a single reachability test against one target.
type Pinger interface {
	Method() string
	Ping(ctx context.Context, target string) (time.Duration, error)
}

// InterfaceLister returns a snapshot of local network interfaces.
type InterfaceLister func() ([]models.InterfaceState, error)

// NewPinger returns the pinger for a configured probe method.
func NewPinger(method string) (Pinger, error) {
	switch method {
	case "", "icmp":
		return ICMPPinger{}, nil
	case "tcp":
		return TCPPinger{}, nil
	case "dns":
		return DNSPinger{}, nil
	default:
		return nil, fmt.Errorf("unknown probe method %q", method)
	}
}

// Checker is implemented by anything that can produce a connection status.
type Checker interface {
	Check(ctx context.Context) models.ConnectionStatus
}

// Error records the failure of one probe target.
type Error struct {
	Target string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Target, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Probe checks a fixed, ordered list of targets and stops at the first that answers.
type Probe struct {
	targets    []string
	timeout    time.Duration
	pinger     Pinger
	interfaces InterfaceLister
	clock      clock.Clock
	logger     *zap.Logger
}

// Option customises a Probe.
type Option func(*Probe)

// WithTimeout overrides the per-target timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Probe) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithInterfaces replaces the interface snapshot source.
func WithInterfaces(lister InterfaceLister) Option {
	return func(p *Probe) {
		p.interfaces = lister
	}
}

// WithClock sets the clock used to timestamp statuses.
func WithClock(c clock.Clock) Option {
	return func(p *Probe) {
		p.clock = c
	}
}

// WithLogger attaches a logger for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Probe) {
		p.logger = logger
	}
}

// New builds a probe over the given targets.
func New(targets []string, pinger Pinger, opts ...Option) (*Probe, error) {
	if len(targets) == 0 {
		return nil, errors.New("probe requires at least one target")
	}
	if pinger == nil {
		return nil, errors.New("probe requires a pinger")
	}
	p := &Probe{
		targets:    append([]string(nil), targets...),
		timeout:    DefaultTimeout,
		pinger:     pinger,
		interfaces: SystemInterfaces,
		clock:      clock.New(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Check probes targets in order. It never panics out and never returns an
// error: every failure is recorded on the status with Connected=false.
func (p *Probe) Check(ctx context.Context) (status models.ConnectionStatus) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("connectivity check panicked", zap.Any("panic", r))
			status = models.ErrorStatus(p.clock.Now(), fmt.Errorf("check panicked: %v", r))
		}
	}()

	p.logger.Debug("starting connectivity check", zap.Int("targets", len(p.targets)))

	var (
		sb      strings.Builder
		errs    error
		results = make([]models.ProbeResult, 0, len(p.targets))
	)
	status.Timestamp = p.clock.Now()

	for _, target := range p.targets {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}

		res := p.pingOne(ctx, target)
		results = append(results, res)
		if res.OK {
			latency := res.Latency
			status.Connected = true
			status.Latency = &latency
			status.Target = target
			fmt.Fprintf(&sb, "Ping to %s: succeeded\n", target)
			fmt.Fprintf(&sb, "  Response time: %d ms\n", latency.Milliseconds())
			break
		}
		fmt.Fprintf(&sb, "Ping to %s: failed (%s)\n", target, res.Error)
		errs = multierr.Append(errs, &Error{Target: target, Err: errors.New(res.Error)})
	}

	status.Results = results
	status.Interfaces = p.snapshotInterfaces(&sb)
	status.Detail = sb.String()
	if !status.Connected {
		status.Error = summarise(len(results), len(p.targets), errs)
	}

	p.logger.Debug("connectivity check completed",
		zap.Bool("connected", status.Connected),
		zap.String("target", status.Target),
	)
	return status
}

func (p *Probe) pingOne(ctx context.Context, target string) models.ProbeResult {
	res := models.ProbeResult{Target: target, Method: p.pinger.Method()}

	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	latency, err := p.pinger.Ping(pingCtx, target)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", p.timeout)
		}
		res.Error = err.Error()
		return res
	}
	res.OK = true
	res.Latency = latency
	return res
}

func (p *Probe) snapshotInterfaces(sb *strings.Builder) []models.InterfaceState {
	if p.interfaces == nil {
		return nil
	}
	ifaces, err := p.interfaces()
	sb.WriteString("\nNetwork interfaces:\n")
	if err != nil {
		fmt.Fprintf(sb, "  unavailable: %v\n", err)
		return nil
	}
	for _, iface := range ifaces {
		fmt.Fprintf(sb, "  %s: %s\n", iface.Name, iface.OperationalStatus())
	}
	return ifaces
}

func summarise(probed, total int, errs error) string {
	if errs == nil {
		return "no probe target answered"
	}
	parts := multierr.Errors(errs)
	msgs := make([]string, 0, len(parts))
	for _, e := range parts {
		msgs = append(msgs, e.Error())
	}
	if probed < total {
		return fmt.Sprintf("check interrupted after %d of %d targets: %s", probed, total, strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("all %d probe targets unreachable: %s", total, strings.Join(msgs, "; "))
}
