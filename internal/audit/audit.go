// Package audit provides append-only structured logging for credential and
// passcode operations.
//
// Every credential access (read, write, delete, migrate) and every unlock
// outcome is recorded to an audit log at ~/.latch/audit.log as
// newline-delimited JSON.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action describes what happened.
type Action string

const (
	ActionCredentialRead    Action = "credential_read"
	ActionCredentialWrite   Action = "credential_write"
	ActionCredentialDelete  Action = "credential_delete"
	ActionCredentialMigrate Action = "credential_migrate"
	ActionUnlockSuccess     Action = "unlock_success"
	ActionUnlockFailure     Action = "unlock_failure"
	ActionLockout           Action = "lockout"
)

// Entry is a single audit log record.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Action    Action    `json:"action"`
	Account   string    `json:"account,omitempty"`
	Service   string    `json:"service,omitempty"`
	Actor     string    `json:"actor,omitempty"`   // "cli", "prompt"
	Trigger   string    `json:"trigger,omitempty"` // "read", "upgrade", "biometrics"
	Attempts  int       `json:"attempts,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Logger writes audit entries to an append-only file.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewLogger creates or opens an audit log file for appending.
func NewLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &Logger{file: f, path: path}, nil
}

// Log writes an audit entry. A nil Logger discards entries.
func (l *Logger) Log(entry Entry) error {
	if l == nil {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// Path returns the file the log appends to.
func (l *Logger) Path() string {
	return l.path
}

// Close closes the audit log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}
