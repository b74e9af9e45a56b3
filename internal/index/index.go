// Package index is the vector index over test result summaries. Embeddings
// live in Postgres with pgvector; queries are cosine similarity filtered to a
// single profile so one user's results never surface for another.
package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Dimensions is the embedding width the index is declared with. Writes with
// any other width fail at the database.
const Dimensions = 768

// Match is one similarity hit.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Store reads and writes the test_vectors table.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a vector store backed by the given pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Upsert writes one embedding with its metadata. Re-writing an existing id
// replaces the stored vector, which keeps pipeline retries idempotent.
func (s *Store) Upsert(ctx context.Context, id string, profileID uuid.UUID, embedding []float32, metadata map[string]string) error {
	if len(embedding) != Dimensions {
		return fmt.Errorf("embedding has %d dimensions, want %d", len(embedding), Dimensions)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO test_vectors (id, profile_id, embedding, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		id, profileID, pgvector.NewVector(embedding), metadata)
	if err != nil {
		return fmt.Errorf("upsert vector: %w", err)
	}

	s.logger.Debug("vector indexed", "vector_id", id, "profile_id", profileID)
	return nil
}

// Query returns the topK nearest vectors for a profile by cosine similarity.
func (s *Store) Query(ctx context.Context, embedding []float32, topK int, profileID uuid.UUID) ([]Match, error) {
	if len(embedding) != Dimensions {
		return nil, fmt.Errorf("query embedding has %d dimensions, want %d", len(embedding), Dimensions)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, 1 - (embedding <=> $1) AS score, metadata
		FROM test_vectors
		WHERE profile_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(embedding), profileID, topK)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Score, &m.Metadata); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// DeleteByProfile removes every vector belonging to a profile. Called when a
// profile is deleted so the index cannot serve orphaned results.
func (s *Store) DeleteByProfile(ctx context.Context, profileID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM test_vectors WHERE profile_id = $1`, profileID)
	if err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}
