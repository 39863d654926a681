package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver registered as "pgx"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// PostgresStore persists checkpoints to PostgreSQL.
// Concurrent writers for the same step are resolved by the primary key.
type PostgresStore struct {
	db     *sql.DB
	owned  bool
	closed atomic.Bool
}

// OpenPostgresStore opens dsn with the pgx driver and initialises the schema.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s, err := NewPostgresStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewPostgresStore initialises the schema in db and returns a store over it.
// The caller keeps ownership of db.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS session_checkpoints (
			session_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			data BYTEA NOT NULL,
			PRIMARY KEY (session_id, step)
		)
	`); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := validate(cp); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}
	data, err := cp.Marshal()
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	// The SELECT guards against gaps; the primary key resolves races.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO session_checkpoints (session_id, step, status, created_at, data)
		SELECT $1::text, $2::integer, $3::text, $4::timestamptz, $5::bytea
		WHERE (SELECT COALESCE(MAX(step), 0) FROM session_checkpoints WHERE session_id = $1::text) = $2::integer - 1
	`, cp.SessionID, cp.Step, string(cp.Status), cp.Timestamp, data)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return conflict(cp.SessionID, cp.Step, cp.Step)
		}
		return fmt.Errorf("save checkpoint: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if n == 0 {
		var latest int
		if err := s.db.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(step), 0) FROM session_checkpoints WHERE session_id = $1
		`, cp.SessionID).Scan(&latest); err != nil {
			return fmt.Errorf("read latest step: %w", err)
		}
		return conflict(cp.SessionID, latest, cp.Step)
	}
	return nil
}

// LoadLatest implements Store.
func (s *PostgresStore) LoadLatest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	return s.loadOne(ctx, `
		SELECT data FROM session_checkpoints
		WHERE session_id = $1
		ORDER BY step DESC LIMIT 1
	`, sessionID)
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, sessionID string, step int) (*Checkpoint, error) {
	return s.loadOne(ctx, `
		SELECT data FROM session_checkpoints
		WHERE session_id = $1 AND step = $2
	`, sessionID, step)
}

func (s *PostgresStore) loadOne(ctx context.Context, query string, args ...any) (*Checkpoint, error) {
	if s.closed.Load() {
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
func (s *PostgresStore) List(ctx context.Context, sessionID string) ([]Info, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT step, status, created_at, octet_length(data)
		FROM session_checkpoints
		WHERE session_id = $1
		ORDER BY step
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	infos := []Info{}
	for rows.Next() {
		var (
			info   Info
			status string
		)
		if err := rows.Scan(&info.Step, &status, &info.Timestamp, &info.Size); err != nil {
			return nil, fmt.Errorf("scan checkpoint info: %w", err)
		}
		info.SessionID = sessionID
		info.Status = Status(status)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return infos, nil
}

// DeleteSession implements Store.
func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM session_checkpoints WHERE session_id = $1
	`, sessionID); err != nil {
		return fmt.Errorf("delete session checkpoints: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.owned {
		return s.db.Close()
	}
	return nil
}
