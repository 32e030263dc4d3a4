package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

const (
	defaultQuestion  = "one.one.one.one"
	fallbackResolver = "1.1.1.1:53"
	resolvConfPath   = "/etc/resolv.conf"
)

// DNSPinger tests reachability with a DNS query.
//
// An IP target is used as the resolver and asked for Question. A hostname
// target is looked up through Resolver (or the first system nameserver).
type DNSPinger struct {
	Question string
	Resolver string
	Client   *dns.Client
}

func (DNSPinger) Method() string { return "dns" }

func (p DNSPinger) Ping(ctx context.Context, target string) (time.Duration, error) {
	server, question := p.route(target)

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(question), dns.TypeA)
	msg.RecursionDesired = true

	client := p.Client
	if client == nil {
		client = &dns.Client{Net: "udp"}
	}
	reply, rtt, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		return 0, ctxErr(ctx, fmt.Errorf("query %s via %s: %w", question, server, err))
	}
	if reply.Rcode != dns.RcodeSuccess {
		return 0, fmt.Errorf("query %s via %s: %s", question, server, dns.RcodeToString[reply.Rcode])
	}
	return rtt, nil
}

func (p DNSPinger) route(target string) (server, question string) {
	host := target
	if h, _, err := net.SplitHostPort(target); err == nil {
		host = h
	}
	if net.ParseIP(host) != nil {
		question = p.Question
		if question == "" {
			question = defaultQuestion
		}
		return withDefaultPort(target, "53"), question
	}

	server = p.Resolver
	if server == "" {
		server = systemResolver()
	}
	return withDefaultPort(server, "53"), host
}

func systemResolver() string {
	conf, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil || len(conf.Servers) == 0 {
		return fallbackResolver
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port)
}
