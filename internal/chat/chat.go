// Package chat drives one conversational turn: classify the utterance,
// gather grounding context, gate tools, run the bounded model loop and
// stream the output. Tool exposure defaults to closed; a turn only sees the
// mutating tools when a profile exists and the classifier flags actionable
// intent.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nutrichat/nutrichat/internal/intent"
	"github.com/nutrichat/nutrichat/internal/labs"
	"github.com/nutrichat/nutrichat/internal/profile"
	"github.com/nutrichat/nutrichat/internal/prompt"
	"github.com/nutrichat/nutrichat/internal/session"
	"github.com/nutrichat/nutrichat/internal/tools"
)

// DefaultMaxTurns bounds the internal model/tool round-trips per user turn.
const DefaultMaxTurns = 5

// fallbackResponseMessage is used when the model produces nothing at all.
const fallbackResponseMessage = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

// EventType tags one stream event.
type EventType string

const (
	EventText  EventType = "text"
	EventTool  EventType = "tool"
	EventError EventType = "error"
)

// Event is one item of the turn's output stream.
type Event struct {
	Type EventType
	Text string
	Tool string
}

// StreamFunc receives events as the turn produces them. Returning an error
// aborts further streaming; committed tool side effects are not rolled back.
type StreamFunc func(ctx context.Context, ev Event) error

// Response is the completed turn.
type Response struct {
	FinalText    string
	ToolRequests []*ai.ToolRequest
}

// ProfileGetter loads the turn's profile scope.
type ProfileGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*profile.Profile, error)
}

// HistoryStore replays and extends a session's transcript.
type HistoryStore interface {
	History(ctx context.Context, sessionID uuid.UUID) ([]*ai.Message, error)
	AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []*ai.Message) error
}

// InsightsProvider supplies grounding insights; it never fails (degraded
// retrieval returns an empty slice).
type InsightsProvider interface {
	Insights(ctx context.Context, query string, profileID uuid.UUID) []string
}

// ResultLister supplies the full stored test history for prompt assembly.
type ResultLister interface {
	ListByProfile(ctx context.Context, profileID uuid.UUID) ([]*labs.TestResult, error)
}

// Config carries the orchestrator's dependencies.
type Config struct {
	Genkit     *genkit.Genkit
	Model      ai.Model
	Classifier intent.Classifier
	Profiles   ProfileGetter
	Sessions   HistoryStore
	Retrieval  InsightsProvider
	Results    ResultLister
	ToolRefs   []ai.ToolRef
	Logger     *slog.Logger

	MaxTurns    int
	RetryConfig RetryConfig
	RateLimiter *rate.Limiter
}

// Orchestrator runs conversational turns.
type Orchestrator struct {
	g          *genkit.Genkit
	model      ai.Model
	classifier intent.Classifier
	profiles   ProfileGetter
	sessions   HistoryStore
	retrieval  InsightsProvider
	results    ResultLister
	toolRefs   []ai.ToolRef
	logger     *slog.Logger
	maxTurns   int
	retry      RetryConfig
	limiter    *rate.Limiter
	now        func() time.Time
}

// New creates a turn orchestrator from cfg.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Genkit == nil || cfg.Model == nil {
		return nil, fmt.Errorf("chat: genkit and model are required")
	}
	if cfg.Classifier == nil || cfg.Profiles == nil {
		return nil, fmt.Errorf("chat: classifier and profile store are required")
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	retry := cfg.RetryConfig
	if retry.MaxRetries == 0 && retry.InitialInterval == 0 {
		retry = DefaultRetryConfig()
	}

	return &Orchestrator{
		g:          cfg.Genkit,
		model:      cfg.Model,
		classifier: cfg.Classifier,
		profiles:   cfg.Profiles,
		sessions:   cfg.Sessions,
		retrieval:  cfg.Retrieval,
		results:    cfg.Results,
		toolRefs:   cfg.ToolRefs,
		logger:     cfg.Logger,
		maxTurns:   maxTurns,
		retry:      retry,
		limiter:    cfg.RateLimiter,
		now:        time.Now,
	}, nil
}

// HandleTurn processes one user utterance and streams the response. A
// backend outage ends the turn with an explanatory error event, not a Go
// error; the returned error covers storage and programming faults only.
func (o *Orchestrator) HandleTurn(ctx context.Context, profileID, sessionID uuid.UUID, input string, stream StreamFunc) (*Response, error) {
	// Classification runs exactly once, before any model call.
	verdict := o.classifier.Classify(input)

	var p *profile.Profile
	if profileID != uuid.Nil {
		loaded, err := o.profiles.Get(ctx, profileID)
		switch {
		case err == nil:
			p = loaded
		case errors.Is(err, profile.ErrNotFound):
			// No profile yet: the prompt tells the model to ask for one.
		default:
			return nil, fmt.Errorf("load profile: %w", err)
		}
	}

	// Retrieval grounds the prompt whenever a profile exists, regardless of
	// how the turn classified.
	var insights []string
	var history []*labs.TestResult
	if p != nil {
		if o.retrieval != nil {
			insights = o.retrieval.Insights(ctx, input, p.ID)
		}
		if o.results != nil {
			var err error
			history, err = o.results.ListByProfile(ctx, p.ID)
			if err != nil {
				o.logger.Warn("loading test history for prompt", "error", err)
			}
		}
	}

	systemPrompt := prompt.Compose(p, insights, history, o.now())

	var transcript []*ai.Message
	if o.sessions != nil && sessionID != uuid.Nil {
		var err error
		transcript, err = o.sessions.History(ctx, sessionID)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return nil, session.ErrNotFound
			}
			return nil, fmt.Errorf("load history: %w", err)
		}
	}

	messages := append(transcript, ai.NewUserMessage(ai.NewTextPart(input)))

	opts := []ai.GenerateOption{
		ai.WithModel(o.model),
		ai.WithSystem(systemPrompt),
		ai.WithMessages(messages...),
		ai.WithConfig(&ai.GenerationCommonConfig{Temperature: 0}),
		ai.WithMaxTurns(o.maxTurns),
	}

	gated := p != nil && verdict.Actionable() && len(o.toolRefs) > 0
	if gated {
		ctx = tools.WithProfileID(ctx, p.ID)
		opts = append(opts, ai.WithTools(o.toolRefs...))
	}
	o.logger.Debug("turn gating decided",
		"profile_update", verdict.ProfileUpdate,
		"test_result", verdict.TestResult,
		"tools_exposed", gated)

	if stream != nil {
		opts = append(opts, ai.WithStreaming(func(cctx context.Context, chunk *ai.ModelResponseChunk) error {
			for _, part := range chunk.Content {
				if part.IsText() && part.Text != "" {
					if err := stream(cctx, Event{Type: EventText, Text: part.Text}); err != nil {
						return err
					}
				}
			}
			return nil
		}))
	}

	resp, err := o.generateWithRetry(ctx, opts)
	if err != nil {
		msg := backendErrorMessage(err)
		o.logger.Warn("inference backend unavailable", "error", err)
		if stream != nil {
			if sendErr := stream(ctx, Event{Type: EventError, Text: msg}); sendErr != nil {
				o.logger.Debug("stream closed while reporting error", "error", sendErr)
			}
		}
		return &Response{FinalText: msg}, nil
	}

	finalText := resp.Text()
	toolRequests := resp.ToolRequests()
	if strings.TrimSpace(finalText) == "" && len(toolRequests) == 0 {
		finalText = fallbackResponseMessage
	}

	if stream != nil {
		for _, tr := range toolRequests {
			if err := stream(ctx, Event{Type: EventTool, Tool: tr.Name}); err != nil {
				break
			}
		}
	}

	if o.sessions != nil && sessionID != uuid.Nil {
		appended := []*ai.Message{
			ai.NewUserMessage(ai.NewTextPart(input)),
			ai.NewModelMessage(ai.NewTextPart(finalText)),
		}
		if err := o.sessions.AppendMessages(ctx, sessionID, appended); err != nil {
			o.logger.Warn("appending turn to history", "error", err)
		}
	}

	return &Response{FinalText: finalText, ToolRequests: toolRequests}, nil
}

// generateWithRetry runs the model loop with backoff on transient errors.
// The rate limiter gates each attempt, not just the first.
func (o *Orchestrator) generateWithRetry(ctx context.Context, opts []ai.GenerateOption) (*ai.ModelResponse, error) {
	var lastErr error
	delay := o.retry.InitialInterval

	for attempt := 0; attempt <= o.retry.MaxRetries; attempt++ {
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := genkit.Generate(ctx, o.g, opts...)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryableError(err) {
			return nil, err
		}
		if attempt == o.retry.MaxRetries {
			break
		}

		o.logger.Debug("retrying model call", "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
			delay = min(delay*2, o.retry.MaxInterval)
		}
	}
	return nil, fmt.Errorf("generate after %d retries: %w", o.retry.MaxRetries, lastErr)
}

// GenerateTitle asks the model for a short session title derived from the
// user's first message. Falls back to a truncation of the message itself.
func (o *Orchestrator) GenerateTitle(ctx context.Context, userMessage string) string {
	resp, err := genkit.Generate(ctx, o.g,
		ai.WithModel(o.model),
		ai.WithPrompt("Generate a concise chat title (at most 6 words, no quotes) for a conversation starting with: %s", userMessage),
	)
	if err != nil {
		o.logger.Debug("title generation failed, using message prefix", "error", err)
		return session.TruncateTitle(userMessage)
	}
	title := strings.Trim(strings.TrimSpace(resp.Text()), `"`)
	if title == "" {
		return session.TruncateTitle(userMessage)
	}
	return session.TruncateTitle(title)
}
