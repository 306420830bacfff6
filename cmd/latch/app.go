package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/benaskins/latch/internal/audit"
	"github.com/benaskins/latch/internal/config"
	"github.com/benaskins/latch/internal/credential"
	"github.com/benaskins/latch/internal/keychain"
	"github.com/benaskins/latch/internal/passcode"
)

// app holds what a command needs, opened from the loaded config.
type app struct {
	backend keychain.Backend
	audit   *audit.Logger
	key     credential.Key
	closers []func() error
}

func openApp() (*app, error) {
	backend, closeBackend, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{backend: backend, key: credential.InstallationKey()}
	if closeBackend != nil {
		a.closers = append(a.closers, closeBackend)
	}

	if cfg.AuditLog != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.AuditLog), 0700); err != nil {
			a.Close()
			return nil, fmt.Errorf("creating audit log directory: %w", err)
		}
		l, err := audit.NewLogger(cfg.AuditLog)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.audit = l
		a.closers = append(a.closers, l.Close)
	}
	return a, nil
}

func openBackend(c *config.Config) (keychain.Backend, func() error, error) {
	switch c.Backend {
	case config.BackendSystem:
		return keychain.NewSystemBackend(), nil, nil
	case config.BackendKeyring:
		return keychain.NewKeyringBackend(keychain.KeyringConfig{
			FileDir:      c.KeyringDir,
			FilePassword: c.KeyringPassword,
		}), nil, nil
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(c.SQLitePath), 0700); err != nil {
			return nil, nil, fmt.Errorf("creating database directory: %w", err)
		}
		b, err := keychain.OpenSQLite(c.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening credential database: %w", err)
		}
		return b, b.Close, nil
	case config.BackendMemory:
		slog.Warn("memory backend selected, nothing will be persisted")
		return keychain.NewMemoryBackend(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", c.Backend)
}

// credentials returns an audited store for direct credential access.
func (a *app) credentials() *credential.AuditedStore {
	return credential.NewAuditedStore(a.backend, a.key, a.audit, "cli")
}

// lock returns the passcode lock. Its own state reads are not audited; unlock
// outcomes are, through events.
func (a *app) lock(events *lockEvents) *passcode.Lock {
	store := credential.NewStore(a.backend, a.key, credential.WithMigrateHook(func(account, service string) {
		a.audit.Log(audit.Entry{
			Action:  audit.ActionCredentialMigrate,
			Account: account,
			Service: service,
			Actor:   "prompt",
			Trigger: "read",
		})
	}))

	accounts := passcode.Accounts{
		Service:         cfg.Service,
		Passcode:        cfg.Accounts.Passcode,
		TimerStart:      cfg.Accounts.TimerStart,
		TimerDuration:   cfg.Accounts.TimerDuration,
		IsSimple:        cfg.Accounts.IsSimple,
		AllowBiometrics: cfg.Accounts.AllowBiometrics,
		FailedAttempts:  cfg.Accounts.FailedAttempts,
	}
	opts := []passcode.Option{
		passcode.WithDigits(cfg.Passcode.Digits),
		passcode.WithMaxFailedAttempts(cfg.Passcode.MaxFailedAttempts),
		passcode.WithAttemptsPerMinute(cfg.Passcode.AttemptsPerMinute),
	}
	if events != nil {
		events.audit = a.audit
		events.service = cfg.Service
		events.account = cfg.Accounts.Passcode
		opts = append(opts, passcode.WithDelegate(events))
	}
	return passcode.New(store, accounts, opts...)
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// lockEvents records unlock outcomes in the audit log.
type lockEvents struct {
	audit   *audit.Logger
	service string
	account string
	flow    passcode.Flow
	lock    *passcode.Lock
}

func (e *lockEvents) entry(action audit.Action) audit.Entry {
	return audit.Entry{
		Action:  action,
		Account: e.account,
		Service: e.service,
		Actor:   "prompt",
		Trigger: e.flow.String(),
	}
}

func (e *lockEvents) EnteredSuccessfully() {
	e.audit.Log(e.entry(audit.ActionUnlockSuccess))
}

func (e *lockEvents) MaxAttemptsReached() {
	entry := e.entry(audit.ActionLockout)
	if e.lock != nil {
		entry.Attempts = e.lock.FailedAttempts()
	}
	e.audit.Log(entry)
}

func (e *lockEvents) BiometricsFailed() {
	entry := e.entry(audit.ActionUnlockFailure)
	entry.Trigger = "biometrics"
	e.audit.Log(entry)
}

func (e *lockEvents) PasscodeEnabled() {
	fmt.Fprintln(os.Stderr, "Passcode enabled")
}

func (e *lockEvents) WillClose() {
	slog.Debug("passcode prompt closed", "flow", e.flow.String())
}

func (e *lockEvents) failed(attempts int, err error) {
	entry := e.entry(audit.ActionUnlockFailure)
	entry.Attempts = attempts
	entry.Error = err.Error()
	e.audit.Log(entry)
}
