package probe

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const protocolICMP = 1

var icmpSeq atomic.Uint32

// ICMPPinger sends a single ICMP echo request per target.
// It prefers an unprivileged datagram socket and falls back to a raw socket.
type ICMPPinger struct {
	Resolver *net.Resolver
}

func (ICMPPinger) Method() string { return "icmp" }

func (p ICMPPinger) Ping(ctx context.Context, target string) (time.Duration, error) {
	ip, err := resolveIPv4(ctx, p.Resolver, target)
	if err != nil {
		return 0, err
	}

	conn, privileged, err := listenICMP()
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	seq := int(icmpSeq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  seq,
			Data: []byte("sosinternet"),
		},
	}
	payload, err := msg.Marshal(nil)
	if err != nil {
		return 0, fmt.Errorf("encode echo: %w", err)
	}

	var dst net.Addr = &net.UDPAddr{IP: ip}
	if privileged {
		dst = &net.IPAddr{IP: ip}
	}

	started := time.Now()
	if _, err := conn.WriteTo(payload, dst); err != nil {
		return 0, ctxErr(ctx, fmt.Errorf("send echo: %w", err))
	}

	buf := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return 0, ctxErr(ctx, fmt.Errorf("read reply: %w", err))
		}
		reply, err := icmp.ParseMessage(protocolICMP, buf[:n])
		if err != nil {
			continue
		}
		if reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		// Unprivileged sockets rewrite the echo ID, so only the sequence is matched.
		if echo, ok := reply.Body.(*icmp.Echo); ok && echo.Seq == seq {
			return time.Since(started), nil
		}
	}
}

func listenICMP() (*icmp.PacketConn, bool, error) {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err == nil {
		return conn, false, nil
	}
	raw, rawErr := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if rawErr != nil {
		return nil, false, fmt.Errorf("open icmp socket: %w", multierr.Combine(err, rawErr))
	}
	return raw, true, nil
}

func resolveIPv4(ctx context.Context, resolver *net.Resolver, target string) (net.IP, error) {
	if ip := net.ParseIP(target); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, fmt.Errorf("%s is not an IPv4 address", target)
	}
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIP(ctx, "ip4", target)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolve %s: no IPv4 address", target)
	}
	return addrs[0], nil
}

// ctxErr prefers the context error so callers can tell timeouts from socket failures.
func ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
