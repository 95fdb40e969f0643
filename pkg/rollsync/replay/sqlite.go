package replay

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/outrunlabs/rollsync/pkg/rollsync/session"
)

// SQLiteStore persists recorded frames to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite replay store.
// The path should be a file path (e.g., "./replays.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS replay_frames (
			run_id TEXT NOT NULL,
			frame INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			checksum INTEGER NOT NULL,
			has_checksum INTEGER NOT NULL,
			inputs BLOB NOT NULL,
			PRIMARY KEY (run_id, frame)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_replay_frames_run_id
		ON replay_frames(run_id)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	hasSum := 0
	if rec.HasChecksum {
		hasSum = 1
	}

	// Upsert so frames re-simulated by a rollback replace their
	// prediction-era values.
	_, err := s.db.Exec(`
		INSERT INTO replay_frames (run_id, frame, recorded_at, checksum, has_checksum, inputs)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, frame) DO UPDATE SET
			recorded_at = excluded.recorded_at,
			checksum = excluded.checksum,
			has_checksum = excluded.has_checksum,
			inputs = excluded.inputs
	`, rec.RunID, int64(rec.Frame), rec.RecordedAt.UTC().Format(time.RFC3339Nano),
		int64(rec.Checksum), hasSum, encodeInputs(rec.Inputs))

	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(runID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT frame, recorded_at, checksum, has_checksum, inputs
		FROM replay_frames
		WHERE run_id = ?
		ORDER BY frame
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			frame      int64
			recordedAt string
			checksum   int64
			hasSum     int
			blob       []byte
		)
		if err := rows.Scan(&frame, &recordedAt, &checksum, &hasSum, &blob); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}

		inputs, err := decodeInputs(blob)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", frame, err)
		}

		rec := Record{
			RunID:       runID,
			Frame:       session.Frame(frame),
			Inputs:      inputs,
			Checksum:    uint64(checksum),
			HasChecksum: hasSum != 0,
		}
		rec.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Runs implements Store.
func (s *SQLiteStore) Runs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT DISTINCT run_id FROM replay_frames ORDER BY run_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return ids, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
