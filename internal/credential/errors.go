package credential

import (
	"errors"
	"fmt"

	"github.com/benaskins/latch/internal/keychain"
)

var (
	// ErrInvalidArgument is returned when account or service is empty. The
	// backend is never consulted.
	ErrInvalidArgument = errors.New("account and service are required")

	// ErrCorruptEntry is returned when a record has attributes but no value.
	// Callers should prompt for the credential again; storing it replaces the
	// broken record.
	ErrCorruptEntry = errors.New("credential record has no value")

	// ErrCrypto is returned when a credential could not be sealed.
	ErrCrypto = errors.New("sealing credential failed")
)

// BackendError is a backend failure other than not-found.
type BackendError struct {
	Op   string
	Code int
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("credential %s: backend status %d: %v", e.Op, e.Code, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func backendError(op string, err error) error {
	return &BackendError{Op: op, Code: keychain.Code(err), Err: err}
}
