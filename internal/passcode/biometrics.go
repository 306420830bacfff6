package passcode

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrBiometricsUnavailable is returned when no authenticator is configured
	// or biometric unlock is not allowed.
	ErrBiometricsUnavailable = errors.New("biometric unlock is not available")

	// ErrBiometricsFailed is returned when the authenticator rejects the user.
	// Callers fall back to the passcode.
	ErrBiometricsFailed = errors.New("biometric unlock failed")
)

// Authenticator verifies the user by some means other than the passcode.
type Authenticator interface {
	Authenticate(ctx context.Context, reason string) error
}

// UnlockWithBiometrics tries the authenticator instead of the passcode. A
// success counts as a correct passcode; a failure fires BiometricsFailed.
func (l *Lock) UnlockWithBiometrics(ctx context.Context) error {
	if l.auth == nil || !l.AllowUnlockWithBiometrics() || !l.PasscodeExists() {
		return ErrBiometricsUnavailable
	}

	if err := l.auth.Authenticate(ctx, "Unlock "+l.accounts.Service); err != nil {
		l.logger.Info("biometric unlock failed", "error", err)
		if h, ok := l.delegate.(BiometricsFailureHandler); ok {
			h.BiometricsFailed()
		}
		return fmt.Errorf("%w: %v", ErrBiometricsFailed, err)
	}

	l.ResetFailedAttempts()
	l.enteredSuccessfully()
	l.willClose()
	return nil
}
