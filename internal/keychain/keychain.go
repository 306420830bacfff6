// Package keychain provides the protected key-value backends that credentials
// are persisted in.
//
// Records are addressed by a Selector (kind, account, service), the same triple
// the macOS Keychain uses for generic passwords. A record may exist with
// attributes but no value; older writers stored the password as an attribute,
// and Value reports such records as ErrNotFound while Attributes still finds them.
//
// Backends:
//   - SystemBackend: macOS Keychain (darwin only)
//   - KeyringBackend: OS keyring via 99designs/keyring
//   - SQLiteBackend: a local SQLite file
//   - MemoryBackend: in-process, for tests and hosts without a keychain
package keychain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no record (or no record value) exists for a selector.
var ErrNotFound = errors.New("item not found")

// Status codes shared by every backend. Darwin reports the Security framework
// OSStatus directly; the other backends map their failures onto the same values.
const (
	CodeUnknown               = -1
	CodeUnimplemented         = -4
	CodeIO                    = -36
	CodeParam                 = -50
	CodeDuplicateItem         = -25299
	CodeItemNotFound          = -25300
	CodeNotAvailable          = -25291
	CodeAuthFailed            = -25293
	CodeInteractionNotAllowed = -25308
)

// Kind is the record class.
type Kind string

// KindGenericPassword is the only record class credentials use.
const KindGenericPassword Kind = "genp"

// Selector addresses a single record.
type Selector struct {
	Kind    Kind
	Account string
	Service string
}

// GenericPassword returns the selector for a generic password record.
func GenericPassword(account, service string) Selector {
	return Selector{Kind: KindGenericPassword, Account: account, Service: service}
}

func (s Selector) String() string {
	return fmt.Sprintf("%s/%s@%s", s.Kind, s.Account, s.Service)
}

// Attributes describes a record without its value.
type Attributes struct {
	Account  string
	Service  string
	Label    string
	Created  time.Time
	Modified time.Time
}

// StatusError is a backend failure other than not-found.
type StatusError struct {
	Op   string
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("keychain %s: status %d: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("keychain %s: status %d", e.Op, e.Code)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Code extracts the backend status code from err. Not-found errors report
// CodeItemNotFound; errors that carry no status report CodeUnknown.
func Code(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrNotFound) {
		return CodeItemNotFound
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUnknown
}

// Backend is the protected store credentials are kept in.
//
// Add fails with CodeDuplicateItem if the selector already has a record;
// Update and Delete return ErrNotFound if it has none.
type Backend interface {
	Attributes(sel Selector) (Attributes, error)
	Value(sel Selector) ([]byte, error)
	Add(sel Selector, label string, value []byte) error
	Update(sel Selector, value []byte) error
	Delete(sel Selector) error
	List(kind Kind, service string) ([]string, error)
}

func unsupportedKind(op string, kind Kind) error {
	return &StatusError{Op: op, Code: CodeParam, Err: fmt.Errorf("unsupported kind %q", kind)}
}
