// Package db implements soar's three SQLite planes: the core plane
// (installed packages), the per-repository metadata plane and the nests
// plane. Connections are serialized behind an internal mutex; WAL
// journaling keeps readers usable during writes.
package db

import (
	"database/sql"
	"strings"
	"sync"

	"golang.org/x/xerrors"
	_ "modernc.org/sqlite"
)

// Conn wraps one SQLite database. All access goes through the internal
// lock; SQLite serializes writers anyway, the mutex keeps error handling
// simple across goroutines.
type Conn struct {
	mu  sync.Mutex
	db  *sql.DB
	pth string
}

// Open opens (creating if needed) the database at path and applies
// migrations.
func Open(path string, migrations []string) (*Conn, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, xerrors.Errorf("opening %s: %w", path, err)
	}
	// modernc/sqlite handles its own locking poorly across connections.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, xerrors.Errorf("enabling WAL on %s: %w", path, err)
	}
	c := &Conn{db: db, pth: path}
	if err := c.migrate(migrations); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// OpenExisting opens a database that must already carry its schema (a
// synced catalog).
func OpenExisting(path string) (*Conn, error) {
	return Open(path, nil)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}

func (c *Conn) Path() string { return c.pth }

// migrate applies pending migrations idempotently. If a migration fails
// because its objects already exist (a database created by an older soar
// without the migrations table), the version is force-recorded and the
// loop continues with the next version.
func (c *Conn) migrate(migrations []string) error {
	if len(migrations) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS migrations (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL DEFAULT (datetime('now')))`); err != nil {
		return err
	}
	for version := 1; version <= len(migrations); version++ {
		var n int
		if err := c.db.QueryRow(`SELECT COUNT(*) FROM migrations WHERE version = ?`, version).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		if _, err := c.db.Exec(migrations[version-1]); err != nil {
			if !alreadyExists(err) {
				return xerrors.Errorf("migration %d on %s: %w", version, c.pth, err)
			}
			// Schema predates the migrations table; record and move on.
		}
		if _, err := c.db.Exec(`INSERT INTO migrations (version) VALUES (?)`, version); err != nil {
			return err
		}
	}
	return nil
}

func alreadyExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already exists")
}

// withLock runs f while holding the connection lock.
func (c *Conn) withLock(f func(db *sql.DB) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return f(c.db)
}

// withTx runs f inside a transaction under the connection lock.
func (c *Conn) withTx(f func(tx *sql.Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
