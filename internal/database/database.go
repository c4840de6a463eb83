package database

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"leadrelay/internal/errors"
	"leadrelay/internal/migrations"
	"leadrelay/internal/models"
	"leadrelay/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the durable key/value store backing the pending queue and the
// cached chat identity.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(cfg models.DatabaseConfig) (*Database, error) {
	dbPath := cfg.Path
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0o600) // #nosec G304 - path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	closeWith := func(cause error) error {
		if closeErr := db.Close(); closeErr != nil {
			return fmt.Errorf("%w (close error: %v)", cause, closeErr)
		}
		return cause
	}

	if err := db.Ping(); err != nil {
		return nil, closeWith(fmt.Errorf("failed to ping database: %w", err))
	}

	if err := applyMigrations(db); err != nil {
		return nil, closeWith(err)
	}

	enc, err := newEncryptor(cfg.EncryptionSecret)
	if err != nil {
		return nil, closeWith(fmt.Errorf("failed to initialize encryptor: %w", err))
	}

	return &Database{db: db, encryptor: enc}, nil
}

func applyMigrations(db *sql.DB) error {
	all, err := migrations.All()
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	for _, m := range all {
		var applied int
		// schema_migrations itself comes from the first script
		err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.Version).Scan(&applied)
		if err == nil && applied > 0 {
			continue
		}

		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
		}
		if _, err := db.Exec(`INSERT OR IGNORE INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks that the database is reachable
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Get returns the value stored under key and whether it exists.
func (d *Database) Get(ctx context.Context, key string) (string, bool, error) {
	var stored string
	err := retryableDBOperation(ctx, func() error {
		return d.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&stored)
	}, "get "+key)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewDatabaseError("get", err).WithContext("key", key)
	}

	value, err := d.encryptor.Decrypt(stored)
	if err != nil {
		return "", false, errors.NewStoreCorruptionError(key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (d *Database) Set(ctx context.Context, key, value string) error {
	stored, err := d.encryptor.Encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt value: %w", err)
	}

	err = retryableDBOperation(ctx, func() error {
		_, execErr := d.db.ExecContext(ctx, upsertQuery, key, stored, time.Now().UTC())
		return execErr
	}, "set "+key)
	if err != nil {
		return errors.NewDatabaseError("set", err).WithContext("key", key)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (d *Database) Delete(ctx context.Context, key string) error {
	err := retryableDBOperation(ctx, func() error {
		_, execErr := d.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key)
		return execErr
	}, "delete "+key)
	if err != nil {
		return errors.NewDatabaseError("delete", err).WithContext("key", key)
	}
	return nil
}

// Update runs a read-modify-write of key inside one immediate transaction.
// fn receives the current value (empty and false when missing) and returns
// the new value. An error from fn aborts the transaction unchanged.
func (d *Database) Update(ctx context.Context, key string, fn func(current string, exists bool) (string, error)) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewDatabaseError("begin", err).WithContext("key", key)
	}
	defer func() { _ = tx.Rollback() }()

	var stored string
	exists := true
	err = tx.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&stored)
	if stderrors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return errors.NewDatabaseError("get", err).WithContext("key", key)
	}

	current := ""
	if exists {
		current, err = d.encryptor.Decrypt(stored)
		if err != nil {
			return errors.NewStoreCorruptionError(key, err)
		}
	}

	next, err := fn(current, exists)
	if err != nil {
		return err
	}

	encrypted, err := d.encryptor.Encrypt(next)
	if err != nil {
		return fmt.Errorf("failed to encrypt value: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsertQuery, key, encrypted, time.Now().UTC()); err != nil {
		return errors.NewDatabaseError("set", err).WithContext("key", key)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewDatabaseError("commit", err).WithContext("key", key)
	}
	return nil
}

const upsertQuery = `
	INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`
