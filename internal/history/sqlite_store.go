// Package history persists one record per finished generation in SQLite.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/tts/ttsutils"
	_ "modernc.org/sqlite"
)

// DefaultListLimit is used when List is called with a non-positive limit.
const DefaultListLimit = 50

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore implements core.HistoryStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies pending migrations.
// The path ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: history database path is required", core.ErrValidation)
	}

	if path != ":memory:" {
		dirErr := ttsutils.EnsureDir(filepath.Dir(path))
		if dirErr != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", dirErr)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}

	initErr := store.init(context.Background())
	if initErr != nil {
		_ = db.Close()

		return nil, initErr
	}

	return store, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// Add appends a record. A duplicate filename is rejected.
func (s *SQLiteStore) Add(ctx context.Context, record core.HistoryRecord) error {
	if strings.TrimSpace(record.Filename) == "" {
		return fmt.Errorf("%w: history record requires a filename", core.ErrValidation)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (timestamp, text, language, seed, exaggeration, cfg_weight, filename)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.Timestamp, record.Text, record.Language, record.Seed,
		record.Exaggeration, record.CFGWeight, record.Filename)
	if err != nil {
		return fmt.Errorf("failed to insert history record '%s': %w", record.Filename, err)
	}

	return nil
}

// List returns up to limit records, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]core.HistoryRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, text, language, seed, exaggeration, cfg_weight, filename
		 FROM history ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	records := make([]core.HistoryRecord, 0, limit)

	for rows.Next() {
		var record core.HistoryRecord

		scanErr := rows.Scan(&record.Timestamp, &record.Text, &record.Language, &record.Seed,
			&record.Exaggeration, &record.CFGWeight, &record.Filename)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", scanErr)
		}

		records = append(records, record)
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", rowsErr)
	}

	return records, nil
}

// GetByFilename returns the record for filename, or core.ErrNotFound.
func (s *SQLiteStore) GetByFilename(ctx context.Context, filename string) (*core.HistoryRecord, error) {
	var record core.HistoryRecord

	err := s.db.QueryRowContext(ctx,
		`SELECT timestamp, text, language, seed, exaggeration, cfg_weight, filename
		 FROM history WHERE filename = ?`, filename).
		Scan(&record.Timestamp, &record.Text, &record.Language, &record.Seed,
			&record.Exaggeration, &record.CFGWeight, &record.Filename)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: history record '%s'", core.ErrNotFound, filename)
		}

		return nil, fmt.Errorf("failed to query history record '%s': %w", filename, err)
	}

	return &record, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;")
	if err != nil {
		return fmt.Errorf("failed to set WAL mode: %w", err)
	}

	_, err = s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;")
	if err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		applyErr := s.applyMigration(ctx, entry.Name())
		if applyErr != nil {
			return applyErr
		}
	}

	return nil
}

func (s *SQLiteStore) applyMigration(ctx context.Context, name string) error {
	version := migrationVersion(name)
	if version <= 0 {
		return nil
	}

	var exists int

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).
		Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check migration %s: %w", name, err)
	}

	if exists > 0 {
		return nil
	}

	content, err := migrationFiles.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("failed to read migration %s: %w", name, err)
	}

	_, err = s.db.ExecContext(ctx, string(content))
	if err != nil {
		return fmt.Errorf("failed to apply migration %s: %w", name, err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version)
	if err != nil {
		return fmt.Errorf("failed to record migration %s: %w", name, err)
	}

	return nil
}

// migrationVersion extracts the leading integer of a migration file name ("001_x.sql" is 1).
func migrationVersion(name string) int {
	digits := strings.IndexFunc(name, func(r rune) bool { return r < '0' || r > '9' })
	if digits <= 0 {
		return 0
	}

	version, _ := strconv.Atoi(name[:digits])

	return version
}
