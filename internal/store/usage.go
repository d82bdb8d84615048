// ABOUTME: SQLite implementation for token usage tracking
// ABOUTME: Stores per-turn token counts and aggregates them for reporting

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveUsage stores a token usage record.
func (s *SQLiteStore) SaveUsage(ctx context.Context, usage *TokenUsage) error {
	query := `
		INSERT INTO turn_usage (turn_id, input_tokens, output_tokens, total_tokens, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		usage.TurnID,
		usage.InputTokens,
		usage.OutputTokens,
		usage.TotalTokens,
		formatTime(usage.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting usage: %w", err)
	}

	s.logger.Debug("saved token usage",
		"turn_id", usage.TurnID,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
	)
	return nil
}

// GetTurnUsage retrieves all usage records for a turn.
func (s *SQLiteStore) GetTurnUsage(ctx context.Context, turnID string) ([]*TokenUsage, error) {
	query := `
		SELECT turn_id, input_tokens, output_tokens, total_tokens, created_at
		FROM turn_usage
		WHERE turn_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, turnID)
	if err != nil {
		return nil, fmt.Errorf("querying turn usage: %w", err)
	}
	defer rows.Close()

	var usages []*TokenUsage
	for rows.Next() {
		usage, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		usages = append(usages, usage)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage rows: %w", err)
	}

	return usages, nil
}

// GetUsageStats aggregates turns and token usage, optionally only those
// started at or after since.
func (s *SQLiteStore) GetUsageStats(ctx context.Context, since *time.Time) (*UsageStats, error) {
	sinceStr := ""
	if since != nil {
		sinceStr = formatTime(*since)
	}

	var stats UsageStats

	turnQuery := `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM turns
		WHERE started_at >= ?
	`
	if err := s.db.QueryRowContext(ctx, turnQuery, TurnCompleted, sinceStr).Scan(
		&stats.Turns,
		&stats.CompletedTurns,
	); err != nil {
		return nil, fmt.Errorf("querying turn stats: %w", err)
	}

	usageQuery := `
		SELECT
			COALESCE(SUM(u.input_tokens), 0),
			COALESCE(SUM(u.output_tokens), 0),
			COALESCE(SUM(u.total_tokens), 0)
		FROM turn_usage u
		JOIN turns t ON t.id = u.turn_id
		WHERE t.started_at >= ?
	`
	if err := s.db.QueryRowContext(ctx, usageQuery, sinceStr).Scan(
		&stats.TotalInputTokens,
		&stats.TotalOutputTokens,
		&stats.TotalTokens,
	); err != nil {
		return nil, fmt.Errorf("querying usage stats: %w", err)
	}

	return &stats, nil
}

func scanUsage(rows *sql.Rows) (*TokenUsage, error) {
	var usage TokenUsage
	var createdAtStr string

	if err := rows.Scan(
		&usage.TurnID,
		&usage.InputTokens,
		&usage.OutputTokens,
		&usage.TotalTokens,
		&createdAtStr,
	); err != nil {
		return nil, fmt.Errorf("scanning usage row: %w", err)
	}

	createdAt, err := time.Parse(timeLayout, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	usage.CreatedAt = createdAt

	return &usage, nil
}
