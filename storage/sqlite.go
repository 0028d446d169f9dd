package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLite holds the database handle for contact submissions and admin comments.
type SQLite struct {
	DB     *sql.DB
	Path   string
	Logger *zap.SugaredLogger
}

// NewSQLite opens (creating if needed) the database at dbPath and applies the schema.
func NewSQLite(ctx context.Context, dbPath string, logger *zap.SugaredLogger) (*SQLite, error) {
	if err := validateDatabasePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	inMemory := dbPath == ":memory:"
	if !inMemory {
		dir := filepath.Dir(dbPath)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	// Pragmas in the DSN are applied by the driver on every new connection.
	dsn := "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if inMemory {
		dsn = ":memory:?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// One writer; an in-memory database only exists on its own connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLite{DB: db, Path: dbPath, Logger: logger}
	if err := s.configure(ctx, inMemory); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Infof("SQLite database initialized at %s", dbPath)
	return s, nil
}

func (s *SQLite) configure(ctx context.Context, inMemory bool) error {
	if !inMemory {
		var journalMode string
		if err := s.DB.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
			return fmt.Errorf("failed to enable WAL mode: %w", err)
		}
		if !strings.EqualFold(journalMode, "wal") {
			return fmt.Errorf("WAL mode not enabled (got: %s)", journalMode)
		}
	}

	var fkEnabled int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		return fmt.Errorf("failed to verify foreign keys: %w", err)
	}
	if fkEnabled != 1 {
		return fmt.Errorf("foreign keys not enabled (got: %d, expected: 1)", fkEnabled)
	}

	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	return nil
}

// createTables creates all necessary tables
func (s *SQLite) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS submissions (
		submission_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT,
		message TEXT NOT NULL,
		created_at INTEGER NOT NULL, -- unix nanoseconds
		status TEXT NOT NULL DEFAULT 'new'
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);

	CREATE TABLE IF NOT EXISTS admin_comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		submission_id TEXT NOT NULL REFERENCES submissions(submission_id) ON DELETE CASCADE,
		admin_name TEXT NOT NULL,
		comment TEXT NOT NULL,
		created_at INTEGER NOT NULL -- unix nanoseconds
	);
	CREATE INDEX IF NOT EXISTS idx_admin_comments_submission ON admin_comments(submission_id, created_at);
	`
	if _, err := s.DB.ExecContext(ctx, schema); err != nil {
		return err
	}
	return nil
}

// WithTransaction executes fn within a transaction, rolling back on error or panic.
func (s *SQLite) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction (original error: %w, rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return opError("ping", ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.DB.Close()
}

// classify maps driver errors onto the storage sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return opError(op, ErrNotFound, err)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return opError(op, ErrDatabaseClosed, err)
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return opError(op, ErrConstraintViolation, err)
	}
	return opError(op, ErrStoreUnavailable, err)
}

// validateDatabasePath rejects paths that are empty, oversized or attempt traversal.
func validateDatabasePath(dbPath string) error {
	if dbPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if len(dbPath) > 512 {
		return fmt.Errorf("database path exceeds maximum length of 512 characters")
	}
	if strings.Contains(dbPath, "\x00") {
		return fmt.Errorf("null bytes not allowed in path")
	}
	if strings.Contains(dbPath, "..") {
		return fmt.Errorf("path traversal not allowed (..): %s", dbPath)
	}
	if strings.ContainsAny(dbPath, "?#") {
		return fmt.Errorf("query parameters not allowed in path: %s", dbPath)
	}
	return nil
}
