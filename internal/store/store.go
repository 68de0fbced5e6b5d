package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"llm-router/internal/router"
)

type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

var ErrRunNotFound = errors.New("run not found")

// Run is one asynchronous route request and, once finished, its outcome.
type Run struct {
	ID           uuid.UUID       `json:"id"`
	Rule         string          `json:"rule"`
	StoreLabel   string          `json:"store_label"`
	Query        string          `json:"query"`
	Status       RunStatus       `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	FailedChunks []int64         `json:"failed_chunks,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Store defines persistence of route runs; an external DB implementation can replace this.
type Store interface {
	CreateRun(ctx context.Context, rule, storeLabel, query string) (Run, error)
	UpdateRunStatus(ctx context.Context, id uuid.UUID, status RunStatus) error
	CompleteRun(ctx context.Context, id uuid.UUID, resp *router.Response) error
	FailRun(ctx context.Context, id uuid.UUID, reason string) error
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
}
