// Package retrieval produces grounding insights for a turn. The primary path
// is embedding similarity over indexed test summaries; when that path fails
// or comes back empty it degrades to the most recent stored summaries. A
// retrieval problem never aborts a conversational turn.
package retrieval

import (
	"context"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/nutrichat/nutrichat/internal/index"
)

// MaxInsights is the most insights a single retrieval returns.
const MaxInsights = 5

// Index is the similarity search the primary path runs over.
type Index interface {
	Query(ctx context.Context, embedding []float32, topK int, profileID uuid.UUID) ([]index.Match, error)
}

// SummaryLister provides the fallback path over stored summaries.
type SummaryLister interface {
	RecentSummaries(ctx context.Context, profileID uuid.UUID, limit int) ([]string, error)
}

// Service retrieves prior-test insights for prompt grounding.
type Service struct {
	embedder ai.Embedder
	index    Index
	labs     SummaryLister
	logger   *slog.Logger
}

// NewService creates a retrieval service.
func NewService(embedder ai.Embedder, idx Index, labs SummaryLister, logger *slog.Logger) *Service {
	return &Service{embedder: embedder, index: idx, labs: labs, logger: logger}
}

// Insights returns up to MaxInsights summary strings relevant to query for
// the given profile. Errors are logged and degrade to the fallback; the
// fallback's own errors degrade to an empty result.
func (s *Service) Insights(ctx context.Context, query string, profileID uuid.UUID) []string {
	if insights := s.semantic(ctx, query, profileID); len(insights) > 0 {
		return insights
	}
	return s.fallback(ctx, profileID)
}

func (s *Service) semantic(ctx context.Context, query string, profileID uuid.UUID) []string {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(query, nil)},
	})
	if err != nil {
		s.logger.Warn("query embedding failed, using fallback", "error", err)
		return nil
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		s.logger.Warn("query embedding empty, using fallback")
		return nil
	}

	matches, err := s.index.Query(ctx, resp.Embeddings[0].Embedding, MaxInsights, profileID)
	if err != nil {
		s.logger.Warn("similarity search failed, using fallback", "error", err)
		return nil
	}

	var insights []string
	for _, m := range matches {
		if summary := m.Metadata["summary"]; summary != "" {
			insights = append(insights, summary)
		}
	}
	return insights
}

func (s *Service) fallback(ctx context.Context, profileID uuid.UUID) []string {
	summaries, err := s.labs.RecentSummaries(ctx, profileID, MaxInsights)
	if err != nil {
		s.logger.Warn("fallback summary lookup failed", "error", err)
		return nil
	}
	return summaries
}
