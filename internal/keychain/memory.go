package keychain

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memoryRecord struct {
	attrs Attributes
	value []byte // nil for attribute-only records
}

// MemoryBackend is an in-memory Backend for tests and hosts without a keychain.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[Selector]*memoryRecord
	now     func() time.Time
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[Selector]*memoryRecord),
		now:     time.Now,
	}
}

func (b *MemoryBackend) Attributes(sel Selector) (Attributes, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[sel]
	if !ok {
		return Attributes{}, fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	return rec.attrs, nil
}

func (b *MemoryBackend) Value(sel Selector) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[sel]
	if !ok || rec.value == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	return bytes.Clone(rec.value), nil
}

func (b *MemoryBackend) Add(sel Selector, label string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.records[sel]; ok {
		return &StatusError{Op: "add", Code: CodeDuplicateItem}
	}
	now := b.now().UTC()
	b.records[sel] = &memoryRecord{
		attrs: Attributes{
			Account:  sel.Account,
			Service:  sel.Service,
			Label:    label,
			Created:  now,
			Modified: now,
		},
		value: cloneValue(value),
	}
	return nil
}

func (b *MemoryBackend) Update(sel Selector, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[sel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	rec.value = cloneValue(value)
	rec.attrs.Modified = b.now().UTC()
	return nil
}

func (b *MemoryBackend) Delete(sel Selector) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.records[sel]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	delete(b.records, sel)
	return nil
}

func (b *MemoryBackend) List(kind Kind, service string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var accounts []string
	for sel := range b.records {
		if sel.Kind == kind && sel.Service == service {
			accounts = append(accounts, sel.Account)
		}
	}
	sort.Strings(accounts)
	return accounts, nil
}

// SeedAttributes creates a record that has attributes but no value, the shape
// left behind by writers that stored the password as an attribute.
func (b *MemoryBackend) SeedAttributes(sel Selector, label string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now().UTC()
	b.records[sel] = &memoryRecord{
		attrs: Attributes{
			Account:  sel.Account,
			Service:  sel.Service,
			Label:    label,
			Created:  now,
			Modified: now,
		},
	}
}

// Raw returns the stored value bytes exactly as held, bypassing ErrNotFound
// for attribute-only records. ok is false when no record exists.
func (b *MemoryBackend) Raw(sel Selector) (value []byte, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[sel]
	if !ok {
		return nil, false
	}
	return bytes.Clone(rec.value), true
}

// Len reports the number of records held.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

// cloneValue copies value, keeping an empty non-nil slice distinct from nil.
func cloneValue(value []byte) []byte {
	if value == nil {
		return []byte{}
	}
	return bytes.Clone(value)
}
