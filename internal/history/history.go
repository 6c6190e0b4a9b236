// Package history keeps a local record of finished batch imports in a
// DuckDB file, so past runs survive restarts and can be listed in the
// admin UI.
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/wms-admin/gateway/internal/models"
)

// Entry is one recorded import run.
type Entry struct {
	ID            int64            `json:"id"`
	EntityKey     string           `json:"entityKey"`
	Source        models.RowSource `json:"source"`
	TotalCount    int              `json:"totalCount"`
	SuccessCount  int              `json:"successCount"`
	ErrorCount    int              `json:"errorCount"`
	HasErrorFile  bool             `json:"hasErrorFile"`
	ErrorFileName string           `json:"errorFileName,omitempty"`
	ImportedAt    time.Time        `json:"importedAt"`
}

// Store persists import outcomes in a DuckDB file. Writes are
// serialized so the max-id allocation and the insert stay atomic when
// sessions complete concurrently.
type Store struct {
	db *sql.DB

	writeMu sync.Mutex
}

// Open creates or opens the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS import_history (
			id              BIGINT PRIMARY KEY,
			entity_key      VARCHAR NOT NULL,
			source          VARCHAR NOT NULL,
			total_count     INTEGER NOT NULL,
			success_count   INTEGER NOT NULL,
			error_count     INTEGER NOT NULL,
			has_error_file  BOOLEAN NOT NULL,
			error_file_name VARCHAR,
			imported_at     TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history table: %w", err)
	}

	return &Store{db: db}, nil
}

// Record appends one finished run. It implements the orchestrator's
// Recorder interface.
func (s *Store) Record(entityKey string, source models.RowSource, result *models.BatchImportResult) error {
	if result == nil {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin history write: %w", err)
	}
	defer tx.Rollback()

	var next int64
	if err := tx.QueryRow("SELECT COALESCE(MAX(id), 0) + 1 FROM import_history").Scan(&next); err != nil {
		return fmt.Errorf("failed to allocate history id: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO import_history
			(id, entity_key, source, total_count, success_count, error_count, has_error_file, error_file_name, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		next, entityKey, string(source),
		result.TotalCount, result.SuccessCount, result.ErrorCount,
		result.HasErrorFile, result.ErrorFileName, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record import: %w", err)
	}
	return tx.Commit()
}

// List returns the most recent runs, newest first, optionally filtered
// by entity key.
func (s *Store) List(ctx context.Context, entityKey string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT id, entity_key, source, total_count, success_count, error_count,
		       has_error_file, COALESCE(error_file_name, ''), imported_at
		FROM import_history`
	args := []any{}
	if entityKey != "" {
		query += " WHERE entity_key = ?"
		args = append(args, entityKey)
	}
	query += " ORDER BY imported_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var source string
		if err := rows.Scan(&e.ID, &e.EntityKey, &source, &e.TotalCount, &e.SuccessCount,
			&e.ErrorCount, &e.HasErrorFile, &e.ErrorFileName, &e.ImportedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Source = models.RowSource(source)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
