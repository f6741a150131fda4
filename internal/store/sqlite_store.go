package store

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
)

// SQLiteStore is the SQLite-backed Backend.
// Thread-safe for concurrent WASM callbacks.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// schema holds the bookkeeping tables. Object stores are created on demand
// as os_<name> tables by CreateTable.
const schema = `
CREATE TABLE IF NOT EXISTS wugbot_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// tablePrefix keeps object stores apart from bookkeeping and sqlite_* tables.
const tablePrefix = "os_"

var tableName = regexp.MustCompile(`^[a-z][a-z_]*$`)

// NewSQLiteStore creates a new in-memory SQLite store.
func NewSQLiteStore() (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:")
}

// NewSQLiteStoreWithDSN creates a store with a specific data source name.
// Use ":memory:" for in-memory or a file path for persistent storage.
func NewSQLiteStoreWithDSN(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Transact runs fn inside one SQL transaction. Read transactions are
// always rolled back.
func (s *SQLiteStore) Transact(writable bool, fn func(tx Tx) error) error {
	if writable {
		s.mu.Lock()
		defer s.mu.Unlock()
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	if s.db == nil {
		return ErrClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&sqliteTx{tx: tx, writable: writable}); err != nil {
		tx.Rollback()
		return err
	}
	if !writable {
		return tx.Rollback()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// Transaction
// =============================================================================

type sqliteTx struct {
	tx       *sql.Tx
	writable bool
}

// quoted returns the SQL identifier for table.
func quoted(table Table) (string, error) {
	if !tableName.MatchString(string(table)) {
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return `"` + tablePrefix + string(table) + `"`, nil
}

// checkTable turns SQLite's "no such table" into ErrUnknownTable.
func checkTable(table Table, err error) error {
	if err != nil && strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return err
}

func (t *sqliteTx) Get(table Table, id int64) ([]byte, error) {
	name, err := quoted(table)
	if err != nil {
		return nil, err
	}
	var data string
	err = t.tx.QueryRow(`SELECT data FROM `+name+` WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%d", ErrNotFound, table, id)
	}
	if err != nil {
		return nil, checkTable(table, err)
	}
	return []byte(data), nil
}

func (t *sqliteTx) Put(table Table, id int64, model string, data []byte) (int64, error) {
	if !t.writable {
		return 0, ErrReadOnly
	}
	name, err := quoted(table)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		res, err := t.tx.Exec(`INSERT INTO `+name+` (model, data) VALUES (?, ?)`, model, string(data))
		if err != nil {
			return 0, checkTable(table, err)
		}
		return res.LastInsertId()
	}
	_, err = t.tx.Exec(`
		INSERT INTO `+name+` (id, model, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET model = excluded.model, data = excluded.data
	`, id, model, string(data))
	if err != nil {
		return 0, checkTable(table, err)
	}
	return id, nil
}

func (t *sqliteTx) Delete(table Table, id int64) error {
	if !t.writable {
		return ErrReadOnly
	}
	name, err := quoted(table)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`DELETE FROM `+name+` WHERE id = ?`, id)
	return checkTable(table, err)
}

// Clear deletes every row. AUTOINCREMENT keeps the sequence in sqlite_sequence.
func (t *sqliteTx) Clear(table Table) error {
	if !t.writable {
		return ErrReadOnly
	}
	name, err := quoted(table)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`DELETE FROM ` + name)
	return checkTable(table, err)
}

func (t *sqliteTx) Scan(table Table, fn func(id int64, data []byte) error) error {
	name, err := quoted(table)
	if err != nil {
		return err
	}
	rows, err := t.tx.Query(`SELECT id, data FROM ` + name + ` ORDER BY id`)
	if err != nil {
		return checkTable(table, err)
	}
	defer rows.Close()

	// Collect first so fn may issue statements on the same connection.
	type row struct {
		id   int64
		data string
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.data); err != nil {
			return err
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	for _, r := range all {
		if err := fn(r.id, []byte(r.data)); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqliteTx) Tables() ([]Table, error) {
	rows, err := t.tx.Query(`
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name LIKE 'os\_%' ESCAPE '\'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Table
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, Table(strings.TrimPrefix(name, tablePrefix)))
	}
	return out, rows.Err()
}

func (t *sqliteTx) CreateTable(table Table) error {
	if !t.writable {
		return ErrReadOnly
	}
	name, err := quoted(table)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`
		CREATE TABLE IF NOT EXISTS ` + name + ` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			model TEXT NOT NULL,
			data TEXT NOT NULL
		)
	`)
	return err
}

func (t *sqliteTx) DropTable(table Table) error {
	if !t.writable {
		return ErrReadOnly
	}
	name, err := quoted(table)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`DROP TABLE IF EXISTS ` + name)
	return err
}

func (t *sqliteTx) Meta(key string) (string, bool, error) {
	var value string
	err := t.tx.QueryRow(`SELECT value FROM wugbot_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (t *sqliteTx) SetMeta(key, value string) error {
	if !t.writable {
		return ErrReadOnly
	}
	_, err := t.tx.Exec(`
		INSERT INTO wugbot_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Compile-time interface check
var _ Backend = (*SQLiteStore)(nil)
