package actuator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Selectors of the TP-Link web interface.
const (
	selPassword     = "input#pc-login-password"
	selLoginButton  = "#pc-login-btn"
	selRebootLink   = "a#topReboot"
	selRebootOK     = ".button-buttonlarge.green.pure-button.btn-msg.btn-msg-ok.btn-confirm"
	selDialog       = "div.dialog-btn-container"
	selDialogButton = "div.dialog-btn-container button.T_ok"
)

// DefaultTimeout bounds one complete reboot attempt.
const DefaultTimeout = 60 * time.Second

// Session is a browser tab scoped to one reboot.
type Session interface {
	Navigate(url string) error
	WaitVisible(selector string) error
	SendKeys(selector, value string) error
	Click(selector string) error
	Exists(selector string) (bool, error)
	Close() error
}

// SessionFactory opens a session bound to ctx.
type SessionFactory func(ctx context.Context) (Session, error)

// TPLink reboots a TP-Link router through its web interface.
type TPLink struct {
	creds   Credentials
	timeout time.Duration
	open    SessionFactory
	logger  *zap.Logger
}

// NewTPLink returns a driver that opens sessions with open.
func NewTPLink(creds Credentials, timeout time.Duration, open SessionFactory, logger *zap.Logger) *TPLink {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TPLink{creds: creds, timeout: timeout, open: open, logger: logger}
}

// Reboot logs in, requests a restart and accepts the confirmation dialog.
func (t *TPLink) Reboot(ctx context.Context) error {
	t.logger.Info("starting TP-Link router reboot", zap.String("url", t.creds.URL))

	password, err := t.creds.Reveal()
	if err != nil {
		t.logger.Error("could not decrypt router password", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	session, err := t.open(ctx)
	if err != nil {
		return &AutomationError{Step: "launch browser", Err: err}
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			t.logger.Debug("closing browser session", zap.Error(cerr))
		}
	}()
	t.logger.Debug("browser started")

	if err := session.Navigate(t.creds.URL); err != nil {
		return t.fail(ctx, "open login page", err)
	}
	if err := session.WaitVisible(selPassword); err != nil {
		return t.fail(ctx, "wait for login form", err)
	}
	if err := session.SendKeys(selPassword, password); err != nil {
		return t.fail(ctx, "enter password", err)
	}
	t.logger.Debug("password entered")
	if err := session.Click(selLoginButton); err != nil {
		return t.fail(ctx, "submit login", err)
	}

	if err := session.WaitVisible(selRebootLink); err != nil {
		if stillOnLogin, _ := session.Exists(selPassword); stillOnLogin && ctx.Err() == nil {
			return &AuthError{Err: errors.New("login page still shown after submitting the password")}
		}
		return t.fail(ctx, "wait for reboot link", err)
	}
	t.logger.Info("logged in to router")

	if err := session.Click(selRebootLink); err != nil {
		return t.fail(ctx, "open reboot prompt", err)
	}
	if err := session.Click(selRebootOK); err != nil {
		return t.fail(ctx, "request reboot", err)
	}
	t.logger.Info("reboot requested")

	if err := session.WaitVisible(selDialog); err != nil {
		return t.fail(ctx, "wait for confirmation dialog", err)
	}
	if err := session.Click(selDialogButton); err != nil {
		return t.fail(ctx, "confirm reboot", err)
	}
	t.logger.Info("router reboot confirmed")
	return nil
}

// Preflight launches and closes one browser session without touching the router.
func (t *TPLink) Preflight(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	session, err := t.open(ctx)
	if err != nil {
		return &AutomationError{Step: "launch browser", Err: err}
	}
	if err := session.Close(); err != nil {
		t.logger.Debug("closing browser session", zap.Error(err))
	}
	t.logger.Info("browser is available for router automation")
	return nil
}

func (t *TPLink) fail(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	return &AutomationError{Step: step, Err: err}
}
