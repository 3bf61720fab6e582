package batterystudy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kairpods/kairpodsd/internal/config"
)

const (
	defaultBusyTimeout        = 5 * time.Second
	defaultConnectionLifetime = 0 // unlimited
)

// Options describes parameters for opening a battery study store.
type Options struct {
	DBPath string // Optional override for the study database path (primarily for tests)
}

// Study provides access to the long-term battery telemetry database.
// Charge sessions and their samples feed drain estimates that span
// daemon restarts, unlike the in-memory per-device history.
type Study struct {
	db     *sql.DB
	dbPath string
}

// NotFoundError indicates a requested record does not exist.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// IsNotFound returns true when err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// ErrInsufficientSamples reports that a drain estimate has fewer than
// two usable samples to work with.
var ErrInsufficientSamples = errors.New("batterystudy: not enough samples for an estimate")

// Open initialises the study store, creating the database and schema
// as needed.
func Open(opts Options) (*Study, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		paths, err := config.EnsureDataDirs()
		if err != nil {
			return nil, fmt.Errorf("batterystudy: ensure data directories: %w", err)
		}
		dbPath = paths.StudyDB
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("batterystudy: open sqlite store: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(defaultConnectionLifetime)
	db.SetConnMaxIdleTime(defaultConnectionLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Study{db: db, dbPath: dbPath}, nil
}

// Close finalises the underlying database connection.
func (s *Study) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the filesystem path of the backing database.
func (s *Study) Path() string {
	return s.dbPath
}

func (s *Study) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("batterystudy: rollback failed after %v: %w", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}
