package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresSource runs the query as SQL and flattens the rows to text.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(dsn string) (*PostgresSource, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres source: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres source connection failed: %w", err)
	}
	return &PostgresSource{db: db}, nil
}

func NewPostgresSourceWithDB(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Fetch returns one block per row: the first content-like column when
// present, otherwise every column joined with " | ".
func (s *PostgresSource) Fetch(ctx context.Context, query string) (string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to run query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	textCol := -1
	for _, field := range contentFields {
		for i, c := range cols {
			if c == field {
				textCol = i
				break
			}
		}
		if textCol >= 0 {
			break
		}
	}

	var blocks []string
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return "", fmt.Errorf("failed to scan row: %w", err)
		}
		if textCol >= 0 {
			blocks = append(blocks, format(values[textCol]))
			continue
		}
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = format(v)
		}
		blocks = append(blocks, strings.Join(parts, " | "))
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return strings.Join(blocks, recordSeparator), nil
}

func (s *PostgresSource) Close() error {
	return s.db.Close()
}

func format(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
