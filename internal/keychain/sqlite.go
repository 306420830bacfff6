package keychain

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteBackend stores records in a local SQLite database. It is meant for
// hosts with no keychain or keyring service; values are only as protected as
// the file itself, which is why credentials are sealed before they get here.
//
// The writer connection is limited to a single connection to avoid
// "database is locked" errors; readers share a small pool.
type SQLiteBackend struct {
	writer *sql.DB
	reader *sql.DB
	now    func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		path,
	)
	return openSQLiteDSN(dsn)
}

func openSQLiteDSN(dsn string) (*SQLiteBackend, error) {
	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	if err := writer.Ping(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	if err := runMigrations(writer); err != nil {
		writer.Close()
		return nil, err
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)
	if err := reader.Ping(); err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("ping reader: %w", err)
	}

	return &SQLiteBackend{writer: writer, reader: reader, now: time.Now}, nil
}

// runMigrations applies all pending schema migrations embedded in the binary.
// Already-applied migrations are skipped.
func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes both connections. Returns the first error encountered.
func (b *SQLiteBackend) Close() error {
	var firstErr error
	if err := b.reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}
	if err := b.writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}
	return firstErr
}

func (b *SQLiteBackend) Attributes(sel Selector) (Attributes, error) {
	const query = `SELECT label, created_at, updated_at FROM records WHERE kind = ? AND account = ? AND service = ?`
	var label, created, updated string
	err := b.reader.QueryRow(query, sel.Kind, sel.Account, sel.Service).Scan(&label, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Attributes{}, fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	if err != nil {
		return Attributes{}, sqliteError("attributes", sel, err)
	}

	attrs := Attributes{Account: sel.Account, Service: sel.Service, Label: label}
	if attrs.Created, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Attributes{}, sqliteError("attributes", sel, fmt.Errorf("parse created_at: %w", err))
	}
	if attrs.Modified, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return Attributes{}, sqliteError("attributes", sel, fmt.Errorf("parse updated_at: %w", err))
	}
	return attrs, nil
}

func (b *SQLiteBackend) Value(sel Selector) ([]byte, error) {
	const query = `SELECT value FROM records WHERE kind = ? AND account = ? AND service = ?`
	var value sql.Null[[]byte]
	err := b.reader.QueryRow(query, sel.Kind, sel.Account, sel.Service).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !value.Valid) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	if err != nil {
		return nil, sqliteError("value", sel, err)
	}
	if value.V == nil {
		return []byte{}, nil
	}
	return value.V, nil
}

func (b *SQLiteBackend) Add(sel Selector, label string, value []byte) error {
	const query = `INSERT INTO records (kind, account, service, label, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, account, service) DO NOTHING`
	if value == nil {
		value = []byte{}
	}
	now := b.now().UTC().Format(time.RFC3339Nano)
	res, err := b.writer.Exec(query, sel.Kind, sel.Account, sel.Service, label, value, now, now)
	if err != nil {
		return sqliteError("add", sel, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return sqliteError("add", sel, err)
	}
	if n == 0 {
		return &StatusError{Op: "add", Code: CodeDuplicateItem, Err: fmt.Errorf("%s already exists", sel)}
	}
	return nil
}

func (b *SQLiteBackend) Update(sel Selector, value []byte) error {
	const query = `UPDATE records SET value = ?, updated_at = ? WHERE kind = ? AND account = ? AND service = ?`
	if value == nil {
		value = []byte{}
	}
	now := b.now().UTC().Format(time.RFC3339Nano)
	res, err := b.writer.Exec(query, value, now, sel.Kind, sel.Account, sel.Service)
	if err != nil {
		return sqliteError("update", sel, err)
	}
	return requireRow("update", sel, res)
}

func (b *SQLiteBackend) Delete(sel Selector) error {
	const query = `DELETE FROM records WHERE kind = ? AND account = ? AND service = ?`
	res, err := b.writer.Exec(query, sel.Kind, sel.Account, sel.Service)
	if err != nil {
		return sqliteError("delete", sel, err)
	}
	return requireRow("delete", sel, res)
}

func (b *SQLiteBackend) List(kind Kind, service string) ([]string, error) {
	const query = `SELECT account FROM records WHERE kind = ? AND service = ? ORDER BY account`
	rows, err := b.reader.Query(query, kind, service)
	if err != nil {
		return nil, sqliteError("list", Selector{Kind: kind, Service: service}, err)
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var account string
		if err := rows.Scan(&account); err != nil {
			return nil, sqliteError("list", Selector{Kind: kind, Service: service}, err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteError("list", Selector{Kind: kind, Service: service}, err)
	}
	return accounts, nil
}

func requireRow(op string, sel Selector, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return sqliteError(op, sel, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	return nil
}

func sqliteError(op string, sel Selector, err error) error {
	return &StatusError{Op: op, Code: CodeIO, Err: fmt.Errorf("%s: %w", sel, err)}
}
