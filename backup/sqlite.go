package backup

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/memmesh/core"
)

// SQLiteSnapshotStore persists snapshot blobs in a SQLite database. One row
// per snapshot keyed by sequence number; blobs are opaque to the store.
type SQLiteSnapshotStore struct {
	db *sql.DB
}

// NewSQLiteSnapshotStore opens or creates a SQLite database at the given
// path, creating parent directories as needed.
func NewSQLiteSnapshotStore(dbPath string) (*SQLiteSnapshotStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteSnapshotStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteSnapshotStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		sequence   INTEGER PRIMARY KEY,
		blob       BLOB NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Write persists the blob under the sequence number.
func (s *SQLiteSnapshotStore) Write(sequence uint64, blob []byte) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO snapshots (sequence, blob, created_at) VALUES (?, ?, ?)`,
		int64(sequence), blob, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write snapshot %d: %w", sequence, err)
	}
	return nil
}

// Read returns the blob stored under the sequence number.
func (s *SQLiteSnapshotStore) Read(sequence uint64) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT blob FROM snapshots WHERE sequence = ?`, int64(sequence)).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %d: %w", sequence, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %d: %w", sequence, err)
	}
	return blob, nil
}

// Sequences lists stored sequence numbers ascending.
func (s *SQLiteSnapshotStore) Sequences() ([]uint64, error) {
	rows, err := s.db.Query(`SELECT sequence FROM snapshots ORDER BY sequence ASC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var seqs []uint64
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, fmt.Errorf("scan snapshot sequence: %w", err)
		}
		seqs = append(seqs, uint64(seq))
	}
	return seqs, rows.Err()
}

// Delete removes the row; unknown sequences are a no-op.
func (s *SQLiteSnapshotStore) Delete(sequence uint64) error {
	if _, err := s.db.Exec(`DELETE FROM snapshots WHERE sequence = ?`, int64(sequence)); err != nil {
		return fmt.Errorf("delete snapshot %d: %w", sequence, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteSnapshotStore) Close() error { return s.db.Close() }
