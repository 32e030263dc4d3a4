package actuator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// SSH reboots a router that exposes a shell (OpenWrt, MikroTik, EdgeOS, ...).
type SSH struct {
	creds   Credentials
	address string
	command string
	hostKey ssh.HostKeyCallback
	timeout time.Duration
	logger  *zap.Logger
}

// NewSSH builds an SSH driver. An empty hostKey (authorized_keys format)
// disables host key verification.
func NewSSH(creds Credentials, address, command, hostKey string, timeout time.Duration, logger *zap.Logger) (*SSH, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if command == "" {
		command = "reboot"
	}
	callback := ssh.InsecureIgnoreHostKey()
	if strings.TrimSpace(hostKey) != "" {
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(hostKey))
		if err != nil {
			return nil, fmt.Errorf("parse ssh host key: %w", err)
		}
		callback = ssh.FixedHostKey(key)
	} else {
		logger.Warn("ssh host key not configured, the router identity will not be verified")
	}
	return &SSH{
		creds:   creds,
		address: address,
		command: command,
		hostKey: callback,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Reboot runs the reboot command over a fresh connection.
func (s *SSH) Reboot(ctx context.Context) error {
	s.logger.Info("starting router reboot over ssh", zap.String("address", s.address))

	password, err := s.creds.Reveal()
	if err != nil {
		s.logger.Error("could not decrypt router password", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user := s.creds.Username
	if user == "" {
		user = "root"
	}
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: s.hostKey,
		Timeout:         s.timeout,
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.address)
	if err != nil {
		return s.fail(ctx, "connect", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, s.address, cfg)
	if err != nil {
		_ = conn.Close()
		if isAuthFailure(err) {
			return &AuthError{Err: err}
		}
		return s.fail(ctx, "handshake", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return s.fail(ctx, "open session", err)
	}
	defer func() {
		if cerr := ignoreEOF(multierr.Combine(session.Close(), client.Close())); cerr != nil {
			s.logger.Debug("closing ssh session", zap.Error(cerr))
		}
	}()

	s.logger.Info("logged in to router", zap.String("user", user))
	err = session.Run(s.command)
	var missing *ssh.ExitMissingError
	switch {
	case err == nil:
	case errors.As(err, &missing), errors.Is(err, io.EOF):
		// The router went down before reporting an exit status.
		s.logger.Debug("connection dropped while rebooting", zap.Error(err))
	default:
		return s.fail(ctx, "run reboot command", err)
	}
	s.logger.Info("router reboot command accepted")
	return nil
}

func (s *SSH) fail(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	return &AutomationError{Step: step, Err: err}
}

func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

func ignoreEOF(err error) error {
	var kept error
	for _, e := range multierr.Errors(err) {
		if !errors.Is(e, io.EOF) {
			kept = multierr.Append(kept, e)
		}
	}
	return kept
}
