package keychain

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/99designs/keyring"
)

// KeyringOpener opens the keyring that holds one service's records.
type KeyringOpener func(service string) (keyring.Keyring, error)

// KeyringConfig selects which OS keyrings KeyringBackend may use.
type KeyringConfig struct {
	// AllowedBackends restricts the keyring implementations tried, in order.
	// Empty means every backend available on this platform.
	AllowedBackends []keyring.BackendType
	// FileDir is where the encrypted-file fallback keeps its data.
	FileDir string
	// FilePassword unlocks the encrypted-file fallback.
	FilePassword string
}

// KeyringBackend stores records in the OS keyring (Secret Service, KWallet,
// Windows Credential Manager, pass, or an encrypted file). Each service maps to
// its own keyring and each account to a key within it.
//
// Keyrings cannot hold attribute-only records; an item with empty data is
// reported as one.
type KeyringBackend struct {
	open KeyringOpener

	mu    sync.Mutex
	rings map[string]keyring.Keyring
}

// NewKeyringBackend returns a Backend over the OS keyring.
func NewKeyringBackend(cfg KeyringConfig) *KeyringBackend {
	return NewKeyringBackendWith(func(service string) (keyring.Keyring, error) {
		kc := keyring.Config{
			ServiceName:                    service,
			AllowedBackends:                cfg.AllowedBackends,
			FileDir:                        cfg.FileDir,
			KeychainTrustApplication:       true,
			KeychainAccessibleWhenUnlocked: true,
		}
		if cfg.FilePassword != "" {
			kc.FilePasswordFunc = keyring.FixedStringPrompt(cfg.FilePassword)
		}
		return keyring.Open(kc)
	})
}

// NewKeyringBackendWith returns a Backend that obtains keyrings from open.
func NewKeyringBackendWith(open KeyringOpener) *KeyringBackend {
	return &KeyringBackend{
		open:  open,
		rings: make(map[string]keyring.Keyring),
	}
}

func (b *KeyringBackend) ring(op, service string) (keyring.Keyring, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.rings[service]; ok {
		return r, nil
	}
	r, err := b.open(service)
	if err != nil {
		return nil, keyringError(op, Selector{Service: service}, err)
	}
	b.rings[service] = r
	return r, nil
}

func (b *KeyringBackend) exists(op string, sel Selector) (keyring.Keyring, bool, error) {
	r, err := b.ring(op, sel.Service)
	if err != nil {
		return nil, false, err
	}
	keys, err := r.Keys()
	if err != nil {
		return nil, false, keyringError(op, sel, err)
	}
	return r, slices.Contains(keys, sel.Account), nil
}

func (b *KeyringBackend) Attributes(sel Selector) (Attributes, error) {
	if sel.Kind != KindGenericPassword {
		return Attributes{}, unsupportedKind("attributes", sel.Kind)
	}
	_, found, err := b.exists("attributes", sel)
	if err != nil {
		return Attributes{}, err
	}
	if !found {
		return Attributes{}, fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	return Attributes{Account: sel.Account, Service: sel.Service}, nil
}

func (b *KeyringBackend) Value(sel Selector) ([]byte, error) {
	if sel.Kind != KindGenericPassword {
		return nil, unsupportedKind("value", sel.Kind)
	}
	r, err := b.ring("value", sel.Service)
	if err != nil {
		return nil, err
	}
	item, err := r.Get(sel.Account)
	if err != nil {
		return nil, keyringError("value", sel, err)
	}
	if len(item.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	return item.Data, nil
}

func (b *KeyringBackend) Add(sel Selector, label string, value []byte) error {
	if sel.Kind != KindGenericPassword {
		return unsupportedKind("add", sel.Kind)
	}
	r, found, err := b.exists("add", sel)
	if err != nil {
		return err
	}
	if found {
		return &StatusError{Op: "add", Code: CodeDuplicateItem, Err: fmt.Errorf("%s already exists", sel)}
	}
	err = r.Set(keyring.Item{
		Key:                       sel.Account,
		Data:                      value,
		Label:                     label,
		KeychainNotSynchronizable: true,
	})
	if err != nil {
		return keyringError("add", sel, err)
	}
	return nil
}

func (b *KeyringBackend) Update(sel Selector, value []byte) error {
	if sel.Kind != KindGenericPassword {
		return unsupportedKind("update", sel.Kind)
	}
	r, found, err := b.exists("update", sel)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	if err := r.Set(keyring.Item{Key: sel.Account, Data: value, KeychainNotSynchronizable: true}); err != nil {
		return keyringError("update", sel, err)
	}
	return nil
}

func (b *KeyringBackend) Delete(sel Selector) error {
	if sel.Kind != KindGenericPassword {
		return unsupportedKind("delete", sel.Kind)
	}
	r, found, err := b.exists("delete", sel)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	if err := r.Remove(sel.Account); err != nil {
		return keyringError("delete", sel, err)
	}
	return nil
}

func (b *KeyringBackend) List(kind Kind, service string) ([]string, error) {
	if kind != KindGenericPassword {
		return nil, unsupportedKind("list", kind)
	}
	r, err := b.ring("list", service)
	if err != nil {
		return nil, err
	}
	keys, err := r.Keys()
	if err != nil {
		return nil, keyringError("list", Selector{Kind: kind, Service: service}, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func keyringError(op string, sel Selector, err error) error {
	switch {
	case errors.Is(err, keyring.ErrKeyNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, sel)
	case errors.Is(err, keyring.ErrNoAvailImpl):
		return &StatusError{Op: op, Code: CodeNotAvailable, Err: err}
	default:
		return &StatusError{Op: op, Code: CodeIO, Err: fmt.Errorf("%s: %w", sel, err)}
	}
}
