// ABOUTME: Store interface and data types for the turn ledger
// ABOUTME: Defines Turn, TokenUsage and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateTurn is returned when a turn ID is recorded twice
var ErrDuplicateTurn = errors.New("turn already exists")

// TurnStatus is the lifecycle state of a turn
type TurnStatus string

const (
	TurnStreaming    TurnStatus = "streaming"
	TurnCompleted    TurnStatus = "completed"
	TurnFailed       TurnStatus = "failed"
	TurnDisconnected TurnStatus = "disconnected"
)

// Turn is one POST /v1/responses request that reached a running session.
// The user's input is not stored, only its length.
type Turn struct {
	ID             string
	SessionID      string
	Model          string
	Provider       string
	ApprovalPolicy string
	InputChars     int
	Status         TurnStatus
	Frames         int
	Error          string
	StartedAt      time.Time
	EndedAt        *time.Time
}

// TurnOutcome is recorded when a turn's stream ends
type TurnOutcome struct {
	Status  TurnStatus
	Frames  int
	Error   string
	EndedAt time.Time
}

// TokenUsage is the model usage reported during a turn
type TokenUsage struct {
	TurnID       string
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CreatedAt    time.Time
}

// UsageStats aggregates turns and token usage
type UsageStats struct {
	Turns             int64
	CompletedTurns    int64
	TotalInputTokens  int64
	TotalOutputTokens int64
	TotalTokens       int64
}

// Store is the turn ledger
type Store interface {
	StartTurn(ctx context.Context, turn *Turn) error
	FinishTurn(ctx context.Context, id string, outcome TurnOutcome) error
	GetTurn(ctx context.Context, id string) (*Turn, error)
	ListTurns(ctx context.Context, limit int) ([]*Turn, error)

	SaveUsage(ctx context.Context, usage *TokenUsage) error
	GetTurnUsage(ctx context.Context, turnID string) ([]*TokenUsage, error)
	GetUsageStats(ctx context.Context, since *time.Time) (*UsageStats, error)

	Close() error
}
