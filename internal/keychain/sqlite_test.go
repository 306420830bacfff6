package keychain

import (
	"fmt"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupSQLite creates a named shared in-memory SQLite database for testing.
// A unique name derived from t.Name() keeps parallel tests isolated.
func setupSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()

	safeName := url.PathEscape(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", safeName)

	b, err := openSQLiteDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSQLite_AttributeOnlyRecord(t *testing.T) {
	b := setupSQLite(t)
	sel := GenericPassword("bob", "svcB")

	_, err := b.writer.Exec(
		`INSERT INTO records (kind, account, service, label, value) VALUES (?, ?, ?, ?, NULL)`,
		sel.Kind, sel.Account, sel.Service, "svcB",
	)
	require.NoError(t, err)

	attrs, err := b.Attributes(sel)
	require.NoError(t, err)
	assert.Equal(t, "svcB", attrs.Label)

	_, err = b.Value(sel)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_Timestamps(t *testing.T) {
	b := setupSQLite(t)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return created }

	sel := GenericPassword("alice", "svcA")
	require.NoError(t, b.Add(sel, "svcA", []byte("v1")))

	b.now = func() time.Time { return created.Add(time.Hour) }
	require.NoError(t, b.Update(sel, []byte("v2")))

	attrs, err := b.Attributes(sel)
	require.NoError(t, err)
	assert.True(t, attrs.Created.Equal(created))
	assert.True(t, attrs.Modified.Equal(created.Add(time.Hour)))
}

func TestSQLite_EmptyValueIsPresent(t *testing.T) {
	b := setupSQLite(t)
	sel := GenericPassword("alice", "svcA")
	require.NoError(t, b.Add(sel, "", nil))

	val, err := b.Value(sel)
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestSQLite_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.db")

	b1, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, b1.Add(GenericPassword("alice", "svcA"), "", []byte("kept")))
	require.NoError(t, b1.Close())

	b2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer b2.Close()

	val, err := b2.Value(GenericPassword("alice", "svcA"))
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), val)
}
