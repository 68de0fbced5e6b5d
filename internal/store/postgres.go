package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"llm-router/internal/router"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return openPostgres(context.Background(), db)
}

// NewPostgresWithDB wraps an open handle without running migrations.
func NewPostgresWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// openPostgres migrates db and takes ownership of it; db is closed when
// migration fails.
func openPostgres(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Advisory lock keeps gateway and worker from migrating concurrently.
	// Session-level locks are released only by the session holding them,
	// so lock and unlock share one connection.
	const lockID = 723114590

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire migration connection: %w", err)
	}
	defer conn.Close()

	var acquired bool
	err = conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if !acquired {
		// Another service is running migrations; wait briefly and skip
		time.Sleep(2 * time.Second)
		return nil
	}

	defer func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS route_runs (
			id UUID PRIMARY KEY,
			rule TEXT NOT NULL,
			store_label TEXT NOT NULL,
			query TEXT NOT NULL,
			status TEXT NOT NULL,
			result JSONB,
			metadata JSONB,
			failed_chunks INT8[],
			error TEXT,
			created_at TIMESTAMPTZ DEFAULT now(),
			completed_at TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS route_runs_rule_idx ON route_runs (rule, created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, rule, storeLabel, query string) (Run, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx, `INSERT INTO route_runs(id, rule, store_label, query, status) VALUES($1,$2,$3,$4,$5)`,
		id, rule, storeLabel, query, StatusQueued)
	if err != nil {
		return Run{}, fmt.Errorf("failed to create run: %w", err)
	}
	return Run{
		ID:         id,
		Rule:       rule,
		StoreLabel: storeLabel,
		Query:      query,
		Status:     StatusQueued,
		CreatedAt:  time.Now(),
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, id uuid.UUID, status RunStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE route_runs SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// CompleteRun stores the aggregated result and summary. Failed chunk indexes
// are taken from resp.Chunks when the response carries them.
func (s *PostgresStore) CompleteRun(ctx context.Context, id uuid.UUID, resp *router.Response) error {
	result, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	metadata, err := json.Marshal(resp.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	failed := []int64{}
	for _, c := range resp.Chunks {
		if !c.OK() {
			failed = append(failed, int64(c.ChunkIndex))
		}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE route_runs
		SET status=$1, result=$2, metadata=$3, failed_chunks=$4, error=NULL, completed_at=now()
		WHERE id=$5`,
		StatusCompleted, result, metadata, pq.Array(failed), id)
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", id, err)
	}
	return expectRow(res)
}

func (s *PostgresStore) FailRun(ctx context.Context, id uuid.UUID, reason string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE route_runs SET status=$1, error=$2, completed_at=now() WHERE id=$3`,
		StatusFailed, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark run %s failed: %w", id, err)
	}
	return expectRow(res)
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	var (
		run         Run
		result      []byte
		metadata    []byte
		failed      []int64
		errText     sql.NullString
		completedAt sql.NullTime
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT rule, store_label, query, status, result, metadata, failed_chunks, error, created_at, completed_at
		FROM route_runs WHERE id=$1`, id)
	err := row.Scan(&run.Rule, &run.StoreLabel, &run.Query, &run.Status, &result, &metadata,
		pq.Array(&failed), &errText, &run.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	run.ID = id
	run.Result = result
	run.Metadata = metadata
	run.FailedChunks = failed
	run.Error = errText.String
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

func expectRow(res sql.Result) error {
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}
