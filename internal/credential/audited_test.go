package credential

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/benaskins/latch/internal/audit"
	"github.com/benaskins/latch/internal/keychain"
)

func readEntries(t *testing.T, path string) []audit.Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var entries []audit.Entry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e audit.Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("Unmarshal %q: %v", line, err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestAuditedStoreLogsOperations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	logger, err := audit.NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	backend := keychain.NewMemoryBackend()
	s := NewAuditedStore(backend, testKey, logger, "cli")

	if err := s.Store("alice", "s3cr3t", "svcA", true); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := s.Get("alice", "svcA"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := s.Delete("alice", "svcA"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	entries := readEntries(t, path)
	want := []audit.Action{audit.ActionCredentialWrite, audit.ActionCredentialRead, audit.ActionCredentialDelete}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.Action != want[i] {
			t.Errorf("entry %d: expected %s, got %s", i, want[i], e.Action)
		}
		if e.Account != "alice" || e.Service != "svcA" || e.Actor != "cli" {
			t.Errorf("entry %d: unexpected fields %+v", i, e)
		}
	}
}

func TestAuditedStoreLogsMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	logger, _ := audit.NewLogger(path)
	defer logger.Close()

	backend := keychain.NewMemoryBackend()
	backend.Add(keychain.GenericPassword("bob", "svcB"), "svcB", []byte("oldpass"))
	s := NewAuditedStore(backend, testKey, logger, "prompt")

	got, err := s.Get("bob", "svcB")
	if err != nil || got != "oldpass" {
		t.Fatalf("Get = %q, %v; want oldpass", got, err)
	}

	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("expected migrate and read entries, got %d", len(entries))
	}
	if entries[0].Action != audit.ActionCredentialMigrate || entries[0].Trigger != "read" {
		t.Errorf("expected migrate triggered by read, got %+v", entries[0])
	}
	if entries[1].Action != audit.ActionCredentialRead {
		t.Errorf("expected read, got %s", entries[1].Action)
	}
}

func TestAuditedStoreSkipsFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	logger, _ := audit.NewLogger(path)
	defer logger.Close()

	s := NewAuditedStore(keychain.NewMemoryBackend(), testKey, logger, "cli")

	if _, err := s.Get("", "svc"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument through wrapper, got %v", err)
	}

	if entries := readEntries(t, path); len(entries) != 0 {
		t.Errorf("failed operations should not be audited, got %d entries", len(entries))
	}
}

func TestAuditedStoreNilLogger(t *testing.T) {
	s := NewAuditedStore(keychain.NewMemoryBackend(), testKey, nil, "cli")
	if err := s.Store("alice", "pw", "svcA", true); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := s.Get("alice", "svcA")
	if err != nil || got != "pw" {
		t.Errorf("Get = %q, %v; want pw", got, err)
	}
}

func TestAuditedStoreMissIsNotARead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	logger, _ := audit.NewLogger(path)
	defer logger.Close()

	s := NewAuditedStore(keychain.NewMemoryBackend(), testKey, logger, "cli")

	got, err := s.Get("nobody", "svcA")
	if err != nil || got != "" {
		t.Fatalf("Get = %q, %v; want empty", got, err)
	}
	if entries := readEntries(t, path); len(entries) != 0 {
		t.Errorf("read of a missing credential should not be audited, got %+v", entries)
	}

	if err := s.Store("alice", "", "svcA", true); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := s.Get("alice", "svcA"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	entries := readEntries(t, path)
	if len(entries) != 2 || entries[1].Action != audit.ActionCredentialRead {
		t.Errorf("read of a stored empty credential should be audited, got %+v", entries)
	}
}
