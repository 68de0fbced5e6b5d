package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"llm-router/internal/retry"
	"llm-router/internal/rules"
)

// TaskType enumerates supported task categories.
type TaskType string

const TaskTypeRoute TaskType = "route"

// Task represents a unit of work handed from the gateway to workers.
type Task struct {
	ID          uuid.UUID
	Type        TaskType
	Payload     []byte
	Attempts    int
	MaxAttempts int
	NotBefore   time.Time
}

// RoutePayload asks a worker to route Query from StoreLabel through Rule
// and record the outcome under RunID. RuleConfig carries the rule as the
// gateway resolved it, so workers do not depend on their own registry.
type RoutePayload struct {
	RunID      uuid.UUID   `json:"run_id"`
	StoreLabel string      `json:"store_label"`
	Query      string      `json:"query"`
	Rule       string      `json:"rule"`
	RuleConfig *rules.Rule `json:"rule_config,omitempty"`
}

// NewRouteTask wraps p in a route task.
func NewRouteTask(p RoutePayload) (Task, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Task{}, fmt.Errorf("failed to encode route payload: %w", err)
	}
	return Task{ID: uuid.New(), Type: TaskTypeRoute, Payload: body, MaxAttempts: 3}, nil
}

// DecodeRoutePayload reads the payload of a route task.
func DecodeRoutePayload(task Task) (RoutePayload, error) {
	var p RoutePayload
	if task.Type != TaskTypeRoute {
		return p, fmt.Errorf("unexpected task type %q", task.Type)
	}
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return p, fmt.Errorf("failed to decode route payload: %w", err)
	}
	return p, nil
}

type Handler func(context.Context, Task) error

// Queue exposes a minimal contract to enqueue and consume tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Worker(ctx context.Context, taskType TaskType, handler Handler) error
}

// EnqueueWithRetry attempts to enqueue with retries and exponential backoff.
func EnqueueWithRetry(ctx context.Context, q Queue, task Task, attempts int, base time.Duration) error {
	return retry.Do(ctx, attempts, base, func(ctx context.Context) error {
		return q.Enqueue(ctx, task)
	})
}
