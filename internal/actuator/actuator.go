// Package actuator restores connectivity by rebooting the router.
//
// Every driver reports failure as exactly one of AuthError, AutomationError or
// DecryptionError, never retries internally, and releases what it acquired
// before returning.
package actuator

import (
	"context"
	"errors"
	"fmt"

	"sosinternet/internal/secret"
)

// Actuator performs one reboot of the access point.
type Actuator interface {
	Reboot(ctx context.Context) error
}

// Preflighter is implemented by drivers that can verify their local
// dependencies before monitoring starts.
type Preflighter interface {
	Preflight(ctx context.Context) error
}

// Func adapts a plain function to Actuator.
type Func func(ctx context.Context) error

func (f Func) Reboot(ctx context.Context) error { return f(ctx) }

// AuthError reports that the router rejected the credentials.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("router authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// AutomationError reports a failure while driving the router interface.
type AutomationError struct {
	Step string
	Err  error
}

func (e *AutomationError) Error() string {
	return fmt.Sprintf("router automation failed at %s: %v", e.Step, e.Err)
}

func (e *AutomationError) Unwrap() error { return e.Err }

// DecryptionError reports that the stored password could not be decrypted.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decrypt router password: %v", e.Err)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// Kind classifies an actuator error for logs and metrics.
func Kind(err error) string {
	var (
		authErr *AuthError
		autoErr *AutomationError
		decErr  *DecryptionError
	)
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &decErr):
		return "decryption"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &autoErr):
		return "automation"
	default:
		return "unknown"
	}
}

// Credentials locate and authenticate against the router admin interface.
type Credentials struct {
	URL       string
	Username  string
	Password  string
	Encrypted bool
	// Key decrypts Password when Encrypted is set.
	Key string
}

// Reveal returns the plaintext password. Call it immediately before use and
// do not keep the result.
func (c Credentials) Reveal() (string, error) {
	if !c.Encrypted {
		return c.Password, nil
	}
	plain, err := secret.Decrypt(c.Password, c.Key)
	if err != nil {
		return "", &DecryptionError{Err: err}
	}
	return plain, nil
}

// String never includes the password.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{URL:%s Username:%s Password:[redacted] Encrypted:%t}", c.URL, c.Username, c.Encrypted)
}

// GoString keeps %#v from printing the password.
func (c Credentials) GoString() string { return c.String() }
