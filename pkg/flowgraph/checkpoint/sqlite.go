package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists checkpoints to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite checkpoint store.
// The path should be a file path (e.g., "./checkpoints.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS session_checkpoints (
			session_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			status TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (session_id, step)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := validate(cp); err != nil {
		return err
	}
	data, err := cp.Marshal()
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var latest int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(step), 0) FROM session_checkpoints WHERE session_id = ?
	`, cp.SessionID).Scan(&latest); err != nil {
		return fmt.Errorf("read latest step: %w", err)
	}
	if cp.Step != latest+1 {
		return conflict(cp.SessionID, latest, cp.Step)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_checkpoints (session_id, step, status, timestamp, data)
		VALUES (?, ?, ?, ?, ?)
	`, cp.SessionID, cp.Step, string(cp.Status), cp.Timestamp.Format(time.RFC3339Nano), data); err != nil {
		if isUniqueViolation(err) {
			return conflict(cp.SessionID, latest, cp.Step)
		}
		return fmt.Errorf("save checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// LoadLatest implements Store.
func (s *SQLiteStore) LoadLatest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	return s.loadOne(ctx, `
		SELECT data FROM session_checkpoints
		WHERE session_id = ?
		ORDER BY step DESC LIMIT 1
	`, sessionID)
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string, step int) (*Checkpoint, error) {
	return s.loadOne(ctx, `
		SELECT data FROM session_checkpoints
		WHERE session_id = ? AND step = ?
	`, sessionID, step)
}

func (s *SQLiteStore) loadOne(ctx context.Context, query string, args ...any) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return Unmarshal(data)
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, sessionID string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT step, status, timestamp, LENGTH(data)
		FROM session_checkpoints
		WHERE session_id = ?
		ORDER BY step
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	infos := []Info{}
	for rows.Next() {
		var (
			info      Info
			status    string
			timestamp string
		)
		if err := rows.Scan(&info.Step, &status, &timestamp, &info.Size); err != nil {
			return nil, fmt.Errorf("scan checkpoint info: %w", err)
		}
		info.SessionID = sessionID
		info.Status = Status(status)
		info.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}

	return infos, nil
}

// DeleteSession implements Store.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM session_checkpoints WHERE session_id = ?
	`, sessionID); err != nil {
		return fmt.Errorf("delete session checkpoints: %w", err)
	}
	return nil
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

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
