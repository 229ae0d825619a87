// Package sqlite persists escrow records and the custody ledger.
// Every engine unit of work runs inside one SQL transaction on a single
// connection, so conflicting units are serialized and a failed custody
// transfer rolls back with the record writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aaas-network/aaas/internal/domain"
)

// FileName is the database file created inside the data directory.
const FileName = "aaas.db"

// DB wraps the SQLite handle.
type DB struct {
	db       *sql.DB
	decimals uint8 // declared precision of the ledger's token

	// Injectable clock for ledger timestamps.
	now func() time.Time
}

// Open opens (or creates) the database in dir and applies migrations.
// An empty dir opens a private in-memory database.
// decimals is the token precision every transfer must match. The first Open
// of a database records it; a later Open with a different value fails with
// ErrDecimalsMismatch, since existing balances are stored at that scale.
func Open(dir string, decimals uint8) (*DB, error) {
	dsn := "file::memory:"
	if dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = "file:" + filepath.Join(dir, FileName)
	}
	dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: units of work are serialized by the pool.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{db: sqlDB, decimals: decimals, now: time.Now}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.pinDecimals(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the database handle.
func (db *DB) Close() error {
	return db.db.Close()
}

// Decimals returns the token precision the ledger enforces.
func (db *DB) Decimals() uint8 {
	return db.decimals
}

// Ping checks the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// pinDecimals stores the token precision on first open and checks it on
// every later one.
func (db *DB) pinDecimals() error {
	if _, err := db.db.Exec(`
		INSERT OR IGNORE INTO ledger_meta (key, value) VALUES ('decimals', ?)
	`, strconv.Itoa(int(db.decimals))); err != nil {
		return fmt.Errorf("record token decimals: %w", err)
	}
	var stored string
	if err := db.db.QueryRow(`SELECT value FROM ledger_meta WHERE key = 'decimals'`).Scan(&stored); err != nil {
		return fmt.Errorf("read token decimals: %w", err)
	}
	if stored != strconv.Itoa(int(db.decimals)) {
		return fmt.Errorf("%w: database holds balances at %s decimals, opened with %d",
			domain.ErrDecimalsMismatch, stored, db.decimals)
	}
	return nil
}

// Atomic runs fn as one unit of work. If fn fails, or the commit fails,
// nothing fn wrote is kept.
func (db *DB) Atomic(ctx context.Context, fn func(tx domain.Tx) error) error {
	sqlTx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	tx := &Tx{tx: sqlTx, ctx: ctx, decimals: db.decimals, now: db.now}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}

// Tx is the record set and custody view of one unit of work.
// It implements domain.Tx.
type Tx struct {
	tx       *sql.Tx
	ctx      context.Context
	decimals uint8
	now      func() time.Time
}

var _ domain.Tx = (*Tx)(nil)
var _ domain.Store = (*DB)(nil)

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
