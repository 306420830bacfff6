// Package credential seals credentials under the installation key before they
// reach a keychain backend, and reads them back.
//
// Reads make a three-way decision: no record (empty result), a value sealed
// under the current key (returned), or anything else. Anything else is taken to
// be a legacy plaintext value, returned as-is and resealed in place, so every
// read of an old record upgrades it. A value sealed under a different key is
// indistinguishable from plaintext and is treated the same way.
//
// Store adds no locking across calls. Callers that need the read-then-migrate
// sequence in Get to be atomic against concurrent writers of the same record
// must serialize those calls themselves.
package credential

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"github.com/benaskins/latch/internal/keychain"
)

// Credentials is the interface for sealed credential operations.
type Credentials interface {
	Get(account, service string) (string, error)
	Store(account, password, service string, updateExisting bool) error
	Delete(account, service string) error
}

// Store implements Credentials over a keychain backend.
type Store struct {
	backend   keychain.Backend
	key       Key
	rand      io.Reader
	logger    *slog.Logger
	onMigrate func(account, service string)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger migrations are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMigrateHook registers fn to be called after a legacy record is resealed.
func WithMigrateHook(fn func(account, service string)) Option {
	return func(s *Store) { s.onMigrate = fn }
}

// withRand replaces the nonce source.
func withRand(r io.Reader) Option {
	return func(s *Store) { s.rand = r }
}

// NewStore creates a Store that seals values under key.
func NewStore(backend keychain.Backend, key Key, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		key:     key,
		rand:    rand.Reader,
		logger:  slog.With("component", "credential"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the credential for account and service. A missing record is not
// an error: Get returns "". A record with attributes but no value returns
// ErrCorruptEntry.
func (s *Store) Get(account, service string) (string, error) {
	if account == "" || service == "" {
		return "", ErrInvalidArgument
	}
	password, _, err := s.get(keychain.GenericPassword(account, service))
	return password, err
}

// lookup is Get that also reports whether a record exists.
func (s *Store) lookup(account, service string) (password string, found bool, err error) {
	if account == "" || service == "" {
		return "", false, ErrInvalidArgument
	}
	password, state, err := s.get(keychain.GenericPassword(account, service))
	return password, state != recordMissing, err
}

type readState int

const (
	recordMissing readState = iota
	recordSealed
	recordMigrated
)

func (s *Store) get(sel keychain.Selector) (password string, state readState, err error) {
	// Attributes first, so an attribute-only record can be told apart from no record.
	if _, err := s.backend.Attributes(sel); err != nil {
		if errors.Is(err, keychain.ErrNotFound) {
			return "", recordMissing, nil
		}
		return "", recordMissing, backendError("attributes", err)
	}

	data, err := s.backend.Value(sel)
	if err != nil {
		if errors.Is(err, keychain.ErrNotFound) {
			return "", recordSealed, fmt.Errorf("%w: %s", ErrCorruptEntry, sel)
		}
		return "", recordSealed, backendError("value", err)
	}

	if password, ok := s.key.unseal(data); ok {
		return password, recordSealed, nil
	}

	password = legacyPlaintext(data)
	if err := s.reseal(sel, password); err != nil {
		return "", recordSealed, fmt.Errorf("migrating %s: %w", sel, err)
	}
	s.logger.Info("resealed legacy credential", "account", sel.Account, "service", sel.Service)
	if s.onMigrate != nil {
		s.onMigrate(sel.Account, sel.Service)
	}
	return password, recordMigrated, nil
}

// legacyPlaintext decodes a value stored before sealing. Bytes that are not
// valid UTF-8 decode to "".
func legacyPlaintext(data []byte) string {
	if !utf8.Valid(data) {
		return ""
	}
	return string(data)
}

// reseal rewrites an existing record's value in the current format. The record
// itself is kept, so there is never a moment with two records or none.
func (s *Store) reseal(sel keychain.Selector, password string) error {
	sealed, err := s.key.seal(s.rand, password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	if err := s.backend.Update(sel, sealed); err != nil {
		return backendError("update", err)
	}
	return nil
}

// Store seals password and saves it for account and service.
//
// An existing record with a different credential is overwritten only when
// updateExisting is true; otherwise, or when the credential is unchanged, Store
// does nothing. A record left without a value is deleted and recreated.
func (s *Store) Store(account, password, service string, updateExisting bool) error {
	if account == "" || service == "" {
		return ErrInvalidArgument
	}
	sel := keychain.GenericPassword(account, service)

	existing, _, err := s.get(sel)
	if errors.Is(err, ErrCorruptEntry) {
		if err := s.backend.Delete(sel); err != nil && !errors.Is(err, keychain.ErrNotFound) {
			return backendError("delete", err)
		}
		existing = ""
	} else if err != nil {
		return err
	}

	sealed, err := s.key.seal(s.rand, password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	if existing != "" {
		if existing == password || !updateExisting {
			return nil
		}
		if err := s.backend.Update(sel, sealed); err != nil {
			return backendError("update", err)
		}
		return nil
	}

	err = s.backend.Add(sel, service, sealed)
	if keychain.Code(err) == keychain.CodeDuplicateItem && updateExisting {
		// A record holding an empty credential.
		err = s.backend.Update(sel, sealed)
		if err != nil {
			return backendError("update", err)
		}
		return nil
	}
	if err != nil {
		return backendError("add", err)
	}
	return nil
}

// Delete removes the record for account and service. A missing record is not
// an error.
func (s *Store) Delete(account, service string) error {
	if account == "" || service == "" {
		return ErrInvalidArgument
	}
	err := s.backend.Delete(keychain.GenericPassword(account, service))
	if err != nil && !errors.Is(err, keychain.ErrNotFound) {
		return backendError("delete", err)
	}
	return nil
}

// List returns the accounts stored under service.
func (s *Store) List(service string) ([]string, error) {
	if service == "" {
		return nil, ErrInvalidArgument
	}
	accounts, err := s.backend.List(keychain.KindGenericPassword, service)
	if err != nil {
		return nil, backendError("list", err)
	}
	return accounts, nil
}

// Upgrade reads every record under service so legacy values are resealed, and
// returns how many were. Records without a value are skipped.
func (s *Store) Upgrade(service string) (int, error) {
	accounts, err := s.List(service)
	if err != nil {
		return 0, err
	}
	migrated := 0
	for _, account := range accounts {
		_, state, err := s.get(keychain.GenericPassword(account, service))
		if errors.Is(err, ErrCorruptEntry) {
			s.logger.Warn("skipping credential without value", "account", account, "service", service)
			continue
		}
		if err != nil {
			return migrated, err
		}
		if state == recordMigrated {
			migrated++
		}
	}
	return migrated, nil
}
