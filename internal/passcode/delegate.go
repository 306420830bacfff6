package passcode

// PasscodeStorage keeps the passcode outside the credential store.
type PasscodeStorage interface {
	Passcode() string
	SavePasscode(p string)
	DeletePasscode()
}

// TimerStorage keeps the lock timer outside the credential store. Times are
// seconds since the Unix epoch; -1 means unknown.
type TimerStorage interface {
	TimerDuration() float64
	SaveTimerDuration(seconds float64)
	TimerStartTime() float64
	SaveTimerStartTime()
}

// TimerEndChecker decides on its own whether the lock timer has run out.
type TimerEndChecker interface {
	DidTimerEnd() bool
}

// BiometricsStorage keeps the biometric unlock preference outside the
// credential store.
type BiometricsStorage interface {
	AllowUnlockWithBiometrics() bool
	SaveAllowUnlockWithBiometrics(allow bool)
}

// Event callbacks. A delegate implements any subset.
type (
	CloseHandler interface{ WillClose() }

	MaxAttemptsHandler interface{ MaxAttemptsReached() }

	SuccessHandler interface{ EnteredSuccessfully() }

	BiometricsFailureHandler interface{ BiometricsFailed() }

	EnabledHandler interface{ PasscodeEnabled() }

	LogoutHandler interface{ LogoutPressed() }
)
