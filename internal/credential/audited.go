package credential

import (
	"fmt"

	"github.com/benaskins/latch/internal/audit"
	"github.com/benaskins/latch/internal/keychain"
)

// AuditedStore wraps a Store and records every operation in the audit log.
type AuditedStore struct {
	inner *Store
	audit *audit.Logger
	actor string // "cli" or "prompt"
}

// NewAuditedStore creates a Store over backend whose operations, including
// migrations triggered by reads, are written to auditLog.
func NewAuditedStore(backend keychain.Backend, key Key, auditLog *audit.Logger, actor string, opts ...Option) *AuditedStore {
	s := &AuditedStore{audit: auditLog, actor: actor}
	opts = append(opts, WithMigrateHook(s.logMigration))
	s.inner = NewStore(backend, key, opts...)
	return s
}

func (s *AuditedStore) logMigration(account, service string) {
	// Audit logging is best-effort — a failure to log should not block the operation.
	s.audit.Log(audit.Entry{
		Action:  audit.ActionCredentialMigrate,
		Account: account,
		Service: service,
		Actor:   s.actor,
		Trigger: "read",
	})
}

// Get returns the credential for account and service. Only reads of an
// existing record are audited.
func (s *AuditedStore) Get(account, service string) (string, error) {
	val, found, err := s.inner.lookup(account, service)
	if err != nil {
		return "", fmt.Errorf("audited get: %w", err)
	}
	if !found {
		return "", nil
	}

	s.audit.Log(audit.Entry{
		Action:  audit.ActionCredentialRead,
		Account: account,
		Service: service,
		Actor:   s.actor,
	})
	return val, nil
}

func (s *AuditedStore) Store(account, password, service string, updateExisting bool) error {
	if err := s.inner.Store(account, password, service, updateExisting); err != nil {
		return fmt.Errorf("audited store: %w", err)
	}

	s.audit.Log(audit.Entry{
		Action:  audit.ActionCredentialWrite,
		Account: account,
		Service: service,
		Actor:   s.actor,
	})
	return nil
}

func (s *AuditedStore) Delete(account, service string) error {
	if err := s.inner.Delete(account, service); err != nil {
		return fmt.Errorf("audited delete: %w", err)
	}

	s.audit.Log(audit.Entry{
		Action:  audit.ActionCredentialDelete,
		Account: account,
		Service: service,
		Actor:   s.actor,
	})
	return nil
}

func (s *AuditedStore) List(service string) ([]string, error) {
	return s.inner.List(service)
}

// Upgrade reseals every legacy record under service. Each migration is
// audited through the migrate hook.
func (s *AuditedStore) Upgrade(service string) (int, error) {
	return s.inner.Upgrade(service)
}
