// Package labs stores recorded test results. Rows are immutable: a result is
// written once by the pipeline after summarize and index have completed, and
// never updated afterward.
package labs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryLimit caps how many results are listed for prompt assembly.
const HistoryLimit = 20

// ErrNotFound indicates no matching test result exists.
var ErrNotFound = errors.New("test result not found")

// TestResult is one recorded lab measurement for a profile.
type TestResult struct {
	ID        int64
	ProfileID uuid.UUID
	TestName  string
	TestValue string
	TestDate  string
	Summary   string
	VectorID  string
	CreatedAt time.Time
}

// Store persists test results in Postgres.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a test result store backed by the given pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Insert writes a completed result row. Called exactly once per pipeline run,
// after the summary and vector id are known.
func (s *Store) Insert(ctx context.Context, r *TestResult) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO test_results (profile_id, test_name, test_value, test_date, summary, vector_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		r.ProfileID, r.TestName, r.TestValue, r.TestDate, r.Summary, r.VectorID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert test result: %w", err)
	}

	s.logger.Debug("test result stored",
		"profile_id", r.ProfileID, "test_name", r.TestName, "vector_id", r.VectorID)
	return id, nil
}

// ListByProfile returns a profile's results oldest first, capped at
// HistoryLimit most recent rows.
func (s *Store) ListByProfile(ctx context.Context, profileID uuid.UUID) ([]*TestResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, profile_id, test_name, test_value, test_date, summary, vector_id, created_at
		FROM (
			SELECT id, profile_id, test_name, test_value, test_date, summary, vector_id, created_at
			FROM test_results
			WHERE profile_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`, profileID, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list test results: %w", err)
	}
	defer rows.Close()

	var results []*TestResult
	for rows.Next() {
		r := &TestResult{}
		if err := rows.Scan(&r.ID, &r.ProfileID, &r.TestName, &r.TestValue, &r.TestDate,
			&r.Summary, &r.VectorID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan test result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// RecentSummaries returns up to limit summary strings for a profile, newest
// first. Used as the retrieval fallback when vector search is unavailable.
func (s *Store) RecentSummaries(ctx context.Context, profileID uuid.UUID, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT summary
		FROM test_results
		WHERE profile_id = $1 AND summary <> ''
		ORDER BY created_at DESC
		LIMIT $2`, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent summaries: %w", err)
	}
	defer rows.Close()

	var summaries []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
