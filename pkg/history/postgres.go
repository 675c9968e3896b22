package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/grantor/pkg/grant"
)

// PostgresConfig configures the postgres-backed store.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	PingTimeout  time.Duration
}

// PostgresStore is a durable Store backed by PostgreSQL. Assignments and
// errors are stored as JSONB so the record round-trips without a schema
// migration per field.
type PostgresStore struct {
	db *sql.DB
}

const operationsSchema = `
CREATE TABLE IF NOT EXISTS operations (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL,
	assignments  JSONB NOT NULL DEFAULT '[]',
	errors       JSONB NOT NULL DEFAULT '[]',
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_operations_status ON operations (status);
CREATE INDEX IF NOT EXISTS idx_operations_started_at ON operations (started_at DESC);
`

// NewPostgresStore connects to PostgreSQL and ensures the schema exists.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingTimeout := cfg.PingTimeout
	if pingTimeout == 0 {
		pingTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, operationsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure operations schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing connection, used by tests.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool for health checks.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func marshalOperation(op *grant.AssignmentOperation) (assignments, opErrors []byte, err error) {
	assignments, err = json.Marshal(op.Assignments)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal assignments: %w", err)
	}
	if op.Errors == nil {
		opErrors = []byte("[]")
	} else {
		opErrors, err = json.Marshal(op.Errors)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal errors: %w", err)
		}
	}
	return assignments, opErrors, nil
}

// AddOperation implements Store.
func (s *PostgresStore) AddOperation(ctx context.Context, op *grant.AssignmentOperation) error {
	assignments, opErrors, err := marshalOperation(op)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO operations (id, kind, status, assignments, errors, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		op.ID,
		string(op.Kind),
		string(op.Status),
		assignments,
		opErrors,
		op.StartedAt,
		op.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert operation: %w", err)
	}
	return nil
}

// GetOperation implements Store.
func (s *PostgresStore) GetOperation(ctx context.Context, id string) (*grant.AssignmentOperation, error) {
	query := `
		SELECT id, kind, status, assignments, errors, started_at, completed_at
		FROM operations
		WHERE id = $1
	`
	op, err := scanOperation(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return op, nil
}

// UpdateOperation implements Store.
func (s *PostgresStore) UpdateOperation(ctx context.Context, op *grant.AssignmentOperation) error {
	assignments, opErrors, err := marshalOperation(op)
	if err != nil {
		return err
	}

	query := `
		UPDATE operations
		SET kind = $2, status = $3, assignments = $4, errors = $5, started_at = $6, completed_at = $7
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		op.ID,
		string(op.Kind),
		string(op.Status),
		assignments,
		opErrors,
		op.StartedAt,
		op.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update operation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrOperationNotFound, op.ID)
	}
	return nil
}

// ListOperations implements Store.
func (s *PostgresStore) ListOperations(ctx context.Context, filter ListFilter) ([]*grant.AssignmentOperation, error) {
	query := `
		SELECT id, kind, status, assignments, errors, started_at, completed_at
		FROM operations
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR kind = $2)
		ORDER BY started_at DESC, id
		LIMIT $3
	`
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx, query, string(filter.Status), string(filter.Kind), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var out []*grant.AssignmentOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	return out, nil
}

// Cleanup implements Store.
func (s *PostgresStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	query := `
		DELETE FROM operations
		WHERE started_at < $1
		  AND status IN ('COMPLETED', 'FAILED', 'ROLLED_BACK')
	`
	result, err := s.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up operations: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check cleanup result: %w", err)
	}
	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOperation(row rowScanner) (*grant.AssignmentOperation, error) {
	var (
		op          grant.AssignmentOperation
		kind        string
		status      string
		assignments []byte
		opErrors    []byte
		completedAt sql.NullTime
	)
	if err := row.Scan(&op.ID, &kind, &status, &assignments, &opErrors, &op.StartedAt, &completedAt); err != nil {
		return nil, err
	}
	op.Kind = grant.OperationKind(kind)
	op.Status = grant.OperationStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		op.CompletedAt = &t
	}
	if err := json.Unmarshal(assignments, &op.Assignments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assignments: %w", err)
	}
	if err := json.Unmarshal(opErrors, &op.Errors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal errors: %w", err)
	}
	return &op, nil
}

var _ Store = (*PostgresStore)(nil)
