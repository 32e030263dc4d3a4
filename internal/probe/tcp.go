package probe

import (
	"context"
	"net"
	"strings"
	"time"
)

// TCPPinger treats a completed TCP handshake as reachability.
// Targets without a port are dialled on 53.
type TCPPinger struct {
	Dialer net.Dialer
}

func (TCPPinger) Method() string { return "tcp" }

func (p TCPPinger) Ping(ctx context.Context, target string) (time.Duration, error) {
	address := withDefaultPort(target, "53")

	started := time.Now()
	conn, err := p.Dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return 0, ctxErr(ctx, err)
	}
	latency := time.Since(started)
	_ = conn.Close()
	return latency, nil
}

func withDefaultPort(target, port string) string {
	target = strings.TrimSpace(target)
	if _, _, err := net.SplitHostPort(target); err == nil {
		return target
	}
	return net.JoinHostPort(strings.Trim(target, "[]"), port)
}
