// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Records turn lifecycle rows with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			model TEXT NOT NULL,
			provider TEXT NOT NULL,
			approval_policy TEXT NOT NULL,
			input_chars INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			frames INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			started_at TEXT NOT NULL,
			ended_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_turns_started
			ON turns(started_at);

		CREATE TABLE IF NOT EXISTS turn_usage (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			turn_id TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			FOREIGN KEY (turn_id) REFERENCES turns(id)
		);

		CREATE INDEX IF NOT EXISTS idx_turn_usage_turn
			ON turn_usage(turn_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// StartTurn records a turn in the streaming state.
// Returns ErrDuplicateTurn if the ID is already recorded.
func (s *SQLiteStore) StartTurn(ctx context.Context, turn *Turn) error {
	query := `
		INSERT INTO turns (id, session_id, model, provider, approval_policy, input_chars, status, frames, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		turn.ID,
		turn.SessionID,
		turn.Model,
		turn.Provider,
		turn.ApprovalPolicy,
		turn.InputChars,
		TurnStreaming,
		formatTime(turn.StartedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateTurn
		}
		return fmt.Errorf("inserting turn: %w", err)
	}

	turn.Status = TurnStreaming
	s.logger.Debug("started turn", "id", turn.ID, "session_id", turn.SessionID)
	return nil
}

// FinishTurn records how a turn's stream ended.
// Returns ErrNotFound if the turn doesn't exist.
func (s *SQLiteStore) FinishTurn(ctx context.Context, id string, outcome TurnOutcome) error {
	query := `
		UPDATE turns
		SET status = ?, frames = ?, error = ?, ended_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		outcome.Status,
		outcome.Frames,
		nullString(outcome.Error),
		formatTime(outcome.EndedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating turn: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("finished turn", "id", id, "status", outcome.Status, "frames", outcome.Frames)
	return nil
}

// GetTurn retrieves a turn by ID.
// Returns ErrNotFound if the turn doesn't exist.
func (s *SQLiteStore) GetTurn(ctx context.Context, id string) (*Turn, error) {
	query := `
		SELECT id, session_id, model, provider, approval_policy, input_chars, status, frames, error, started_at, ended_at
		FROM turns
		WHERE id = ?
	`

	turn, err := scanTurn(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return turn, nil
}

// ListTurns retrieves the most recent turns first.
// If limit is 0 or negative, a default limit of 100 is used.
func (s *SQLiteStore) ListTurns(ctx context.Context, limit int) ([]*Turn, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT id, session_id, model, provider, approval_policy, input_chars, status, frames, error, started_at, ended_at
		FROM turns
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turn rows: %w", err)
	}

	return turns, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTurn(row rowScanner) (*Turn, error) {
	var turn Turn
	var status, startedAtStr string
	var errStr, endedAtStr sql.NullString

	err := row.Scan(
		&turn.ID,
		&turn.SessionID,
		&turn.Model,
		&turn.Provider,
		&turn.ApprovalPolicy,
		&turn.InputChars,
		&status,
		&turn.Frames,
		&errStr,
		&startedAtStr,
		&endedAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning turn: %w", err)
	}

	turn.Status = TurnStatus(status)
	turn.Error = errStr.String

	turn.StartedAt, err = time.Parse(timeLayout, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}

	if endedAtStr.Valid {
		endedAt, err := time.Parse(timeLayout, endedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing ended_at: %w", err)
		}
		turn.EndedAt = &endedAt
	}

	return &turn, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// nullString returns nil for empty strings so they're stored as NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}
