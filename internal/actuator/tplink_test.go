package actuator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sosinternet/internal/secret"
)

type fakeSession struct {
	calls     []string
	failOn    string
	onLogin   bool
	closed    int
	typedKeys string
}

func (f *fakeSession) record(call string) error {
	f.calls = append(f.calls, call)
	if call == f.failOn {
		return errors.New("selector not found")
	}
	return nil
}

func (f *fakeSession) Navigate(url string) error { return f.record("navigate " + url) }

func (f *fakeSession) WaitVisible(selector string) error { return f.record("wait " + selector) }

func (f *fakeSession) SendKeys(selector, value string) error {
	f.typedKeys = value
	return f.record("keys " + selector)
}

func (f *fakeSession) Click(selector string) error { return f.record("click " + selector) }

func (f *fakeSession) Exists(selector string) (bool, error) {
	return f.onLogin && selector == selPassword, nil
}

func (f *fakeSession) Close() error {
	f.closed++
	return nil
}

func factoryFor(s *fakeSession) SessionFactory {
	return func(context.Context) (Session, error) { return s, nil }
}

func plainCreds() Credentials {
	return Credentials{URL: "http://192.168.0.1", Password: "hunter2"}
}

func TestTPLinkRebootRunsFullSequence(t *testing.T) {
	session := &fakeSession{}
	drv := NewTPLink(plainCreds(), time.Second, factoryFor(session), nil)

	require.NoError(t, drv.Reboot(context.Background()))
	assert.Equal(t, []string{
		"navigate http://192.168.0.1",
		"wait " + selPassword,
		"keys " + selPassword,
		"click " + selLoginButton,
		"wait " + selRebootLink,
		"click " + selRebootLink,
		"click " + selRebootOK,
		"wait " + selDialog,
		"click " + selDialogButton,
	}, session.calls)
	assert.Equal(t, "hunter2", session.typedKeys)
	assert.Equal(t, 1, session.closed)
}

func TestTPLinkStepFailureIsAutomationError(t *testing.T) {
	session := &fakeSession{failOn: "wait " + selDialog}
	drv := NewTPLink(plainCreds(), time.Second, factoryFor(session), nil)

	err := drv.Reboot(context.Background())
	var autoErr *AutomationError
	require.ErrorAs(t, err, &autoErr)
	assert.Equal(t, "wait for confirmation dialog", autoErr.Step)
	assert.Equal(t, "automation", Kind(err))
	assert.Equal(t, 1, session.closed, "session must be released on failure")
}

func TestTPLinkRejectedLoginIsAuthError(t *testing.T) {
	session := &fakeSession{failOn: "wait " + selRebootLink, onLogin: true}
	drv := NewTPLink(plainCreds(), time.Second, factoryFor(session), nil)

	err := drv.Reboot(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "auth", Kind(err))
	assert.Equal(t, 1, session.closed)
}

func TestTPLinkLaunchFailure(t *testing.T) {
	drv := NewTPLink(plainCreds(), time.Second, func(context.Context) (Session, error) {
		return nil, errors.New("chromium not installed")
	}, nil)

	err := drv.Reboot(context.Background())
	var autoErr *AutomationError
	require.ErrorAs(t, err, &autoErr)
	assert.Equal(t, "launch browser", autoErr.Step)
}

func TestTPLinkPreflightOpensAndClosesSession(t *testing.T) {
	session := &fakeSession{}
	drv := NewTPLink(plainCreds(), time.Second, factoryFor(session), nil)

	require.NoError(t, drv.Preflight(context.Background()))
	assert.Empty(t, session.calls, "router must not be contacted")
	assert.Equal(t, 1, session.closed)
}

func TestTPLinkPreflightReportsMissingBrowser(t *testing.T) {
	var drv Preflighter = NewTPLink(plainCreds(), time.Second, func(context.Context) (Session, error) {
		return nil, errors.New("chromium not installed")
	}, nil)

	err := drv.Preflight(context.Background())
	var autoErr *AutomationError
	require.ErrorAs(t, err, &autoErr)
	assert.Equal(t, "launch browser", autoErr.Step)
	assert.Equal(t, "automation", Kind(err))
}

func TestTPLinkDecryptsPasswordBeforeUse(t *testing.T) {
	stored, err := secret.Encrypt("s3cret", "key")
	require.NoError(t, err)
	session := &fakeSession{}
	creds := Credentials{URL: "http://router", Password: stored, Encrypted: true, Key: "key"}

	require.NoError(t, NewTPLink(creds, time.Second, factoryFor(session), nil).Reboot(context.Background()))
	assert.Equal(t, "s3cret", session.typedKeys)
}

func TestTPLinkDecryptionFailureSkipsBrowser(t *testing.T) {
	opened := false
	creds := Credentials{URL: "http://router", Password: "v2:AAAA", Encrypted: true, Key: "key"}
	drv := NewTPLink(creds, time.Second, func(context.Context) (Session, error) {
		opened = true
		return &fakeSession{}, nil
	}, nil)

	err := drv.Reboot(context.Background())
	var decErr *DecryptionError
	require.ErrorAs(t, err, &decErr)
	assert.ErrorIs(t, err, secret.ErrDecryptionFailed)
	assert.Equal(t, "decryption", Kind(err))
	assert.False(t, opened)
}

func TestTPLinkCancelledContext(t *testing.T) {
	session := &fakeSession{failOn: "navigate http://192.168.0.1"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewTPLink(plainCreds(), time.Second, factoryFor(session), nil).Reboot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "cancelled", Kind(err))
	assert.Equal(t, 1, session.closed)
}

func TestCredentialsNeverFormatPassword(t *testing.T) {
	creds := plainCreds()
	for _, rendered := range []string{
		creds.String(),
		fmt.Sprintf("%v", creds),
		fmt.Sprintf("%+v", creds),
		fmt.Sprintf("%#v", creds),
	} {
		assert.NotContains(t, rendered, "hunter2")
	}
}

func TestKindUnknownAndNone(t *testing.T) {
	assert.Equal(t, "none", Kind(nil))
	assert.Equal(t, "unknown", Kind(errors.New("other")))
}
