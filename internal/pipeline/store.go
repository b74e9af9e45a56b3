package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunStore persists pipeline runs and their checkpoints.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a run store backed by the given pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Create inserts a new pending run and returns its id.
func (s *RunStore) Create(ctx context.Context, in Input) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_runs (id, profile_id, test_name, test_value, test_date, state)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, in.ProfileID, in.TestName, in.TestValue, in.TestDate, StatePending)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// Get loads one run.
func (s *RunStore) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	r := &Run{}
	var summary []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, profile_id, test_name, test_value, test_date, state,
		       summary, vector_id, attempts, last_error, created_at, updated_at
		FROM pipeline_runs WHERE id = $1`, id,
	).Scan(&r.ID, &r.ProfileID, &r.TestName, &r.TestValue, &r.TestDate, &r.State,
		&summary, &r.VectorID, &r.Attempts, &r.LastError, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	if len(summary) > 0 {
		r.Summary = &Summary{}
		if err := json.Unmarshal(summary, r.Summary); err != nil {
			return nil, fmt.Errorf("unmarshal run summary: %w", err)
		}
	}
	return r, nil
}

// CheckpointSummary commits the summarize step's output and advances the run.
func (s *RunStore) CheckpointSummary(ctx context.Context, id uuid.UUID, sum Summary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return s.transition(ctx, id, StateSummarized, `summary = $3`, data)
}

// CheckpointVector commits the embed+index step's vector id and advances the run.
func (s *RunStore) CheckpointVector(ctx context.Context, id uuid.UUID, vectorID string) error {
	return s.transition(ctx, id, StateIndexed, `vector_id = $3`, vectorID)
}

// MarkPersisted records that the final row was written; the run is complete.
func (s *RunStore) MarkPersisted(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pipeline_runs SET state = $2, last_error = '', updated_at = now()
		WHERE id = $1`, id, StatePersisted)
	if err != nil {
		return fmt.Errorf("mark persisted: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure with its cause.
func (s *RunStore) MarkFailed(ctx context.Context, id uuid.UUID, cause string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pipeline_runs SET state = $2, last_error = $3, updated_at = now()
		WHERE id = $1`, id, StateFailed, cause)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// RecordAttempt bumps the attempt counter and remembers the last error seen.
func (s *RunStore) RecordAttempt(ctx context.Context, id uuid.UUID, cause string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pipeline_runs SET attempts = attempts + 1, last_error = $2, updated_at = now()
		WHERE id = $1`, id, cause)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// ListIncomplete returns ids of runs that still have work to do, oldest first.
// Used at startup to resume runs interrupted by a crash.
func (s *RunStore) ListIncomplete(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM pipeline_runs
		WHERE state IN ($1, $2, $3)
		ORDER BY created_at`, StatePending, StateSummarized, StateIndexed)
	if err != nil {
		return nil, fmt.Errorf("list incomplete runs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *RunStore) transition(ctx context.Context, id uuid.UUID, to State, setClause string, arg any) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE pipeline_runs SET state = $2, %s, last_error = '', updated_at = now()
		WHERE id = $1`, setClause), id, to, arg)
	if err != nil {
		return fmt.Errorf("advance run to %s: %w", to, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}
