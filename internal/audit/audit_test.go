package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()

	ts := time.Date(2026, 2, 19, 10, 30, 0, 0, time.UTC)

	l.Log(Entry{
		Timestamp: ts,
		Action:    ActionCredentialRead,
		Account:   "demoPasscode",
		Service:   "demoServiceName",
		Actor:     "cli",
	})

	l.Log(Entry{
		Timestamp: ts.Add(time.Hour),
		Action:    ActionCredentialMigrate,
		Account:   "demoPasscode",
		Service:   "demoServiceName",
		Trigger:   "read",
	})

	// Read and verify
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var e1 Entry
	json.Unmarshal([]byte(lines[0]), &e1)
	if e1.Action != ActionCredentialRead {
		t.Errorf("expected credential_read, got %v", e1.Action)
	}
	if e1.Account != "demoPasscode" {
		t.Errorf("expected demoPasscode, got %q", e1.Account)
	}
	if e1.Service != "demoServiceName" {
		t.Errorf("expected demoServiceName, got %q", e1.Service)
	}

	var e2 Entry
	json.Unmarshal([]byte(lines[1]), &e2)
	if e2.Action != ActionCredentialMigrate {
		t.Errorf("expected credential_migrate, got %v", e2.Action)
	}
	if e2.Trigger != "read" {
		t.Errorf("expected read, got %q", e2.Trigger)
	}
	if e1.ID == "" || e1.ID == e2.ID {
		t.Errorf("expected distinct entry ids, got %q and %q", e1.ID, e2.ID)
	}
}

func TestLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	// Write first entry, close
	l1, _ := NewLogger(path)
	l1.Log(Entry{Action: ActionCredentialWrite, Account: "first"})
	l1.Close()

	// Open again, write second entry
	l2, _ := NewLogger(path)
	l2.Log(Entry{Action: ActionCredentialRead, Account: "second"})
	l2.Close()

	// Both entries should be present
	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
}

func TestLoggerDefaultTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, _ := NewLogger(path)
	defer l.Close()

	before := time.Now().UTC()
	l.Log(Entry{Action: ActionUnlockFailure, Attempts: 2})
	after := time.Now().UTC()

	data, _ := os.ReadFile(path)
	var e Entry
	json.Unmarshal(data, &e)

	if e.Timestamp.Before(before) || e.Timestamp.After(after) {
		t.Errorf("timestamp %v not between %v and %v", e.Timestamp, before, after)
	}
	if e.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", e.Attempts)
	}
}

func TestLoggerFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, _ := NewLogger(path)
	l.Close()

	info, _ := os.Stat(path)
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("expected 0600, got %o", perm)
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var l *Logger
	if err := l.Log(Entry{Action: ActionCredentialRead}); err != nil {
		t.Errorf("expected nil logger to discard, got %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close on nil logger: %v", err)
	}
}
