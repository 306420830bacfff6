// Package passcode implements a passcode lock on top of the sealed credential
// store: the stored passcode and its mode, the lock timer, biometric unlock
// preferences, failed-attempt accounting and the enable/change/turn-off/unlock
// flows.
//
// Every stored value is a credential under one service, keyed by the account
// names in Accounts. A delegate passed with WithDelegate may take over any of
// the storage capabilities (PasscodeStorage, TimerStorage, TimerEndChecker,
// BiometricsStorage) once UseKeychain(false) is called, and receives whichever
// event callbacks it implements.
package passcode

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/benaskins/latch/internal/credential"
	"golang.org/x/time/rate"
)

var (
	// ErrWrongPasscode is returned when the entered passcode does not match.
	ErrWrongPasscode = errors.New("wrong passcode")

	// ErrTooManyAttempts is returned once the failed-attempt limit is reached.
	ErrTooManyAttempts = errors.New("too many failed attempts")

	// ErrMismatch is returned when the confirmation differs from the new
	// passcode. The flow restarts at the new-passcode step.
	ErrMismatch = errors.New("passcodes did not match")

	// ErrSamePasscode is returned when a change flow is given the current
	// passcode as the new one.
	ErrSamePasscode = errors.New("new passcode must differ from the current one")

	// ErrInvalidFormat is returned for input that does not fit the passcode mode.
	ErrInvalidFormat = errors.New("passcode has the wrong format")

	// ErrThrottled is returned when attempts arrive faster than allowed.
	ErrThrottled = errors.New("too many attempts, try again shortly")

	// ErrNoPasscode is returned when a flow needs a passcode and none is set.
	ErrNoPasscode = errors.New("no passcode is set")

	// ErrPasscodeExists is returned when enabling while a passcode is set.
	ErrPasscodeExists = errors.New("a passcode is already set")

	// ErrFlowDone is returned by Submit after the flow has finished.
	ErrFlowDone = errors.New("passcode flow already finished")
)

// Accounts names the records the lock keeps under Service.
type Accounts struct {
	Service         string
	Passcode        string
	TimerStart      string
	TimerDuration   string
	IsSimple        string
	AllowBiometrics string
	FailedAttempts  string
}

// DefaultAccounts returns the record names used when none are configured.
func DefaultAccounts() Accounts {
	return Accounts{
		Service:         "demoServiceName",
		Passcode:        "demoPasscode",
		TimerStart:      "demoPasscodeTimerStart",
		TimerDuration:   "passcodeTimerDuration",
		IsSimple:        "passcodeIsSimple",
		AllowBiometrics: "allowUnlockWithTouchID",
		FailedAttempts:  "passcodeFailedAttempts",
	}
}

// Lock is a passcode lock backed by a credential store.
type Lock struct {
	creds    credential.Credentials
	accounts Accounts
	logger   *slog.Logger
	now      func() time.Time

	digits      int
	maxFailed   int
	limiter     *rate.Limiter
	auth        Authenticator
	useKeychain bool
	simple      bool

	delegate   any
	passcodes  PasscodeStorage
	timers     TimerStorage
	timerEnd   TimerEndChecker
	biometrics BiometricsStorage
}

// Option configures a Lock.
type Option func(*Lock)

// WithLogger sets the logger storage failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(lk *Lock) { lk.logger = l }
}

// WithDigits sets the length of a simple passcode.
func WithDigits(n int) Option {
	return func(lk *Lock) { lk.digits = n }
}

// WithMaxFailedAttempts sets how many wrong passcodes are tolerated. Zero
// means unlimited.
func WithMaxFailedAttempts(n int) Option {
	return func(lk *Lock) { lk.maxFailed = n }
}

// WithAttemptsPerMinute throttles passcode checks. Zero disables throttling.
func WithAttemptsPerMinute(n int) Option {
	return func(lk *Lock) {
		if n <= 0 {
			lk.limiter = nil
			return
		}
		lk.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	}
}

// WithAuthenticator enables biometric unlock through a.
func WithAuthenticator(a Authenticator) Option {
	return func(lk *Lock) { lk.auth = a }
}

// WithDelegate registers d for storage capabilities and event callbacks.
func WithDelegate(d any) Option {
	return func(lk *Lock) { lk.delegate = d }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(lk *Lock) { lk.now = now }
}

// New creates a Lock storing its state through creds under accounts.
func New(creds credential.Credentials, accounts Accounts, opts ...Option) *Lock {
	l := &Lock{
		creds:       creds,
		accounts:    accounts,
		logger:      slog.With("component", "passcode"),
		now:         time.Now,
		digits:      4,
		useKeychain: true,
	}
	for _, opt := range opts {
		opt(l)
	}

	// Capabilities are resolved once here rather than on every call.
	if l.delegate != nil {
		l.passcodes, _ = l.delegate.(PasscodeStorage)
		l.timers, _ = l.delegate.(TimerStorage)
		l.timerEnd, _ = l.delegate.(TimerEndChecker)
		l.biometrics, _ = l.delegate.(BiometricsStorage)
	}

	l.simple = l.storedSimple()
	return l
}

// UseKeychain selects between the credential store (true, the default) and the
// delegate's storage capabilities. Capabilities the delegate does not
// implement always use the credential store.
func (l *Lock) UseKeychain(use bool) {
	l.useKeychain = use
}

// Digits returns the length of a simple passcode.
func (l *Lock) Digits() int {
	return l.digits
}

func (l *Lock) read(account string) (string, error) {
	return l.creds.Get(account, l.accounts.Service)
}

func (l *Lock) write(account, value string) {
	if err := l.creds.Store(account, value, l.accounts.Service, true); err != nil {
		l.logger.Warn("saving lock state", "account", account, "error", err)
	}
}

func (l *Lock) remove(account string) {
	if err := l.creds.Delete(account, l.accounts.Service); err != nil {
		l.logger.Warn("deleting lock state", "account", account, "error", err)
	}
}

// Passcode returns the stored passcode, or "" if none is set or it cannot be
// read.
func (l *Lock) Passcode() string {
	if !l.useKeychain && l.passcodes != nil {
		return l.passcodes.Passcode()
	}
	p, err := l.read(l.accounts.Passcode)
	if err != nil {
		l.logger.Warn("reading passcode", "error", err)
		return ""
	}
	return p
}

// PasscodeExists reports whether a non-empty passcode is stored.
func (l *Lock) PasscodeExists() bool {
	return l.Passcode() != ""
}

// SavePasscode stores p along with the current mode. Saving over no passcode
// fires PasscodeEnabled.
func (l *Lock) SavePasscode(p string) {
	l.savePasscode(p, !l.PasscodeExists())
}

func (l *Lock) savePasscode(p string, enabled bool) {
	if enabled {
		if h, ok := l.delegate.(EnabledHandler); ok {
			h.PasscodeEnabled()
		}
	}

	if !l.useKeychain && l.passcodes != nil {
		l.passcodes.SavePasscode(p)
		return
	}
	l.write(l.accounts.Passcode, p)
	l.write(l.accounts.IsSimple, yesNo(l.simple))
}

// DeletePasscode removes the stored passcode.
func (l *Lock) DeletePasscode() {
	if !l.useKeychain && l.passcodes != nil {
		l.passcodes.DeletePasscode()
		return
	}
	l.remove(l.accounts.Passcode)
}

// ResetPasscode rewrites the stored passcode so it is sealed under the current
// installation key. It does nothing when no passcode is set.
func (l *Lock) ResetPasscode() {
	if !l.PasscodeExists() {
		return
	}
	p := l.Passcode()
	l.DeletePasscode()
	l.savePasscode(p, false)
}

// IsSimple reports whether the passcode is a fixed-length digit code.
func (l *Lock) IsSimple() bool {
	return l.simple
}

func (l *Lock) storedSimple() bool {
	v, err := l.read(l.accounts.IsSimple)
	if err != nil {
		l.logger.Warn("reading passcode mode", "error", err)
		return true
	}
	return v != "NO"
}

// AllowUnlockWithBiometrics reports whether biometric unlock is permitted.
func (l *Lock) AllowUnlockWithBiometrics() bool {
	if !l.useKeychain && l.biometrics != nil {
		return l.biometrics.AllowUnlockWithBiometrics()
	}
	v, err := l.read(l.accounts.AllowBiometrics)
	if err != nil {
		l.logger.Warn("reading biometrics preference", "error", err)
		return false
	}
	return v == "YES"
}

// SaveAllowUnlockWithBiometrics stores the biometric unlock preference.
func (l *Lock) SaveAllowUnlockWithBiometrics(allow bool) {
	if !l.useKeychain && l.biometrics != nil {
		l.biometrics.SaveAllowUnlockWithBiometrics(allow)
		return
	}
	l.write(l.accounts.AllowBiometrics, yesNo(allow))
}

// FailedAttempts returns the persisted count of wrong passcodes since the last
// successful unlock.
func (l *Lock) FailedAttempts() int {
	v, err := l.read(l.accounts.FailedAttempts)
	if err != nil {
		l.logger.Warn("reading failed attempts", "error", err)
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// MaxFailedAttempts returns the configured limit, zero for none.
func (l *Lock) MaxFailedAttempts() int {
	return l.maxFailed
}

func (l *Lock) recordFailure() int {
	n := l.FailedAttempts() + 1
	l.write(l.accounts.FailedAttempts, strconv.Itoa(n))
	return n
}

// ResetFailedAttempts clears the failed-attempt count.
func (l *Lock) ResetFailedAttempts() {
	l.remove(l.accounts.FailedAttempts)
}

// Check compares p with the stored passcode, counting failures. Reaching the
// limit fires MaxAttemptsReached and returns ErrTooManyAttempts.
func (l *Lock) Check(p string) error {
	if l.limiter != nil && !l.limiter.Allow() {
		return ErrThrottled
	}
	if p != "" && p == l.Passcode() {
		l.ResetFailedAttempts()
		return nil
	}

	n := l.recordFailure()
	if l.maxFailed > 0 && n >= l.maxFailed {
		if h, ok := l.delegate.(MaxAttemptsHandler); ok {
			h.MaxAttemptsReached()
		}
		return ErrTooManyAttempts
	}
	return ErrWrongPasscode
}

// Logout fires LogoutPressed.
func (l *Lock) Logout() {
	if h, ok := l.delegate.(LogoutHandler); ok {
		h.LogoutPressed()
	}
}

func (l *Lock) enteredSuccessfully() {
	if h, ok := l.delegate.(SuccessHandler); ok {
		h.EnteredSuccessfully()
	}
}

func (l *Lock) willClose() {
	if h, ok := l.delegate.(CloseHandler); ok {
		h.WillClose()
	}
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
