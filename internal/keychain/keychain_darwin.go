//go:build darwin

package keychain

import (
	"errors"
	"fmt"

	gokeychain "github.com/keybase/go-keychain"
)

// SystemBackend stores records in the macOS Keychain as generic passwords.
//
// Items are scoped with kSecAttrAccessibleWhenUnlockedThisDeviceOnly and are
// never synced to iCloud.
type SystemBackend struct{}

// NewSystemBackend returns a Keychain-backed Backend.
func NewSystemBackend() Backend {
	return &SystemBackend{}
}

func baseQuery(sel Selector) gokeychain.Item {
	item := gokeychain.NewItem()
	item.SetSecClass(gokeychain.SecClassGenericPassword)
	item.SetAccount(sel.Account)
	item.SetService(sel.Service)
	return item
}

func (b *SystemBackend) Attributes(sel Selector) (Attributes, error) {
	if sel.Kind != KindGenericPassword {
		return Attributes{}, unsupportedKind("attributes", sel.Kind)
	}
	query := baseQuery(sel)
	query.SetMatchLimit(gokeychain.MatchLimitOne)
	query.SetReturnAttributes(true)

	results, err := gokeychain.QueryItem(query)
	if err != nil {
		return Attributes{}, statusError("attributes", sel, err)
	}
	if len(results) == 0 {
		return Attributes{}, fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	r := results[0]
	return Attributes{
		Account:  r.Account,
		Service:  r.Service,
		Label:    r.Label,
		Created:  r.CreationDate,
		Modified: r.ModificationDate,
	}, nil
}

func (b *SystemBackend) Value(sel Selector) ([]byte, error) {
	if sel.Kind != KindGenericPassword {
		return nil, unsupportedKind("value", sel.Kind)
	}
	query := baseQuery(sel)
	query.SetMatchLimit(gokeychain.MatchLimitOne)
	query.SetReturnData(true)

	results, err := gokeychain.QueryItem(query)
	if err != nil {
		return nil, statusError("value", sel, err)
	}
	if len(results) == 0 || results[0].Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	return results[0].Data, nil
}

func (b *SystemBackend) Add(sel Selector, label string, value []byte) error {
	if sel.Kind != KindGenericPassword {
		return unsupportedKind("add", sel.Kind)
	}
	item := baseQuery(sel)
	item.SetLabel(label)
	item.SetData(value)
	item.SetSynchronizable(gokeychain.SynchronizableNo)
	item.SetAccessible(gokeychain.AccessibleWhenUnlockedThisDeviceOnly)

	if err := gokeychain.AddItem(item); err != nil {
		return statusError("add", sel, err)
	}
	return nil
}

func (b *SystemBackend) Update(sel Selector, value []byte) error {
	if sel.Kind != KindGenericPassword {
		return unsupportedKind("update", sel.Kind)
	}
	update := gokeychain.NewItem()
	update.SetData(value)

	if err := gokeychain.UpdateItem(baseQuery(sel), update); err != nil {
		return statusError("update", sel, err)
	}
	return nil
}

func (b *SystemBackend) Delete(sel Selector) error {
	if sel.Kind != KindGenericPassword {
		return unsupportedKind("delete", sel.Kind)
	}
	if err := gokeychain.DeleteItem(baseQuery(sel)); err != nil {
		return statusError("delete", sel, err)
	}
	return nil
}

func (b *SystemBackend) List(kind Kind, service string) ([]string, error) {
	if kind != KindGenericPassword {
		return nil, unsupportedKind("list", kind)
	}
	accounts, err := gokeychain.GetGenericPasswordAccounts(service)
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return nil, nil
		}
		return nil, statusError("list", Selector{Kind: kind, Service: service}, err)
	}
	return accounts, nil
}

// statusError maps a go-keychain error onto ErrNotFound or a StatusError
// carrying the OSStatus.
func statusError(op string, sel Selector, err error) error {
	if errors.Is(err, gokeychain.ErrorItemNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	code := CodeUnknown
	var kerr gokeychain.Error
	if errors.As(err, &kerr) {
		code = int(kerr)
	}
	return &StatusError{Op: op, Code: code, Err: fmt.Errorf("%s: %w", sel, err)}
}
