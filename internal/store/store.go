// Package store provides durable storage for distribution counter
// checkpoints. Uses SQLite with WAL mode so checkpoint inspection can
// proceed while a generation run is writing.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/sortition/internal/tally"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (checkpoints table)
const currentSchemaVersion = 1

// Store persists distribution counter checkpoints.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveCheckpoint upserts the counter snapshot for a configuration key.
// Implements tally.Checkpointer.
func (s *Store) SaveCheckpoint(ctx context.Context, key string, snap tally.Snapshot) error {
	counts, err := json.Marshal(snap.Counts)
	if err != nil {
		return fmt.Errorf("save checkpoint: marshal counts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (key, total, counts, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET
			total = excluded.total,
			counts = excluded.counts,
			updated_at = excluded.updated_at
	`, key, snap.Total, string(counts))
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", key, err)
	}
	return nil
}

// LoadCheckpoint reads the snapshot for a configuration key.
// Returns found=false when no checkpoint exists.
// Implements tally.Checkpointer.
func (s *Store) LoadCheckpoint(ctx context.Context, key string) (tally.Snapshot, bool, error) {
	var total int
	var countsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT total, counts FROM checkpoints WHERE key = ?
	`, key).Scan(&total, &countsJSON)
	if err == sql.ErrNoRows {
		return tally.Snapshot{}, false, nil
	}
	if err != nil {
		return tally.Snapshot{}, false, fmt.Errorf("load checkpoint %s: %w", key, err)
	}

	var counts []int
	if err := json.Unmarshal([]byte(countsJSON), &counts); err != nil {
		return tally.Snapshot{}, false, fmt.Errorf("load checkpoint %s: corrupt counts: %w", key, err)
	}
	return tally.Snapshot{Counts: counts, Total: total}, true, nil
}

// DeleteCheckpoint removes the checkpoint for a configuration key, if any.
func (s *Store) DeleteCheckpoint(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", key, err)
	}
	return nil
}

// CheckpointInfo describes one persisted checkpoint for inspection.
type CheckpointInfo struct {
	Key       string `json:"key"`
	Total     int    `json:"total"`
	Regions   int    `json:"regions"`
	UpdatedAt string `json:"updated_at"`
}

// ListCheckpoints returns all persisted checkpoints, newest first.
func (s *Store) ListCheckpoints(ctx context.Context) ([]CheckpointInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, total, counts, updated_at
		FROM checkpoints
		ORDER BY updated_at DESC, key
	`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []CheckpointInfo
	for rows.Next() {
		var info CheckpointInfo
		var countsJSON string
		if err := rows.Scan(&info.Key, &info.Total, &countsJSON, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list checkpoints: %w", err)
		}
		var counts []int
		if err := json.Unmarshal([]byte(countsJSON), &counts); err != nil {
			return nil, fmt.Errorf("list checkpoints: corrupt counts for %s: %w", info.Key, err)
		}
		info.Regions = len(counts)
		out = append(out, info)
	}
	return out, rows.Err()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and records the schema
// version. Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}
