// Package api is the JSON/SSE HTTP surface over the conversational core.
// Routing stays thin: handlers parse and validate the request shape, then
// delegate to the stores and the turn orchestrator.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nutrichat/nutrichat/internal/chat"
	"github.com/nutrichat/nutrichat/internal/labs"
	"github.com/nutrichat/nutrichat/internal/pipeline"
	"github.com/nutrichat/nutrichat/internal/profile"
	"github.com/nutrichat/nutrichat/internal/retrieval"
	"github.com/nutrichat/nutrichat/internal/session"
	"github.com/nutrichat/nutrichat/internal/state"
)

// TurnHandler is the conversational entry point the chat endpoint drives.
type TurnHandler interface {
	HandleTurn(ctx context.Context, profileID, sessionID uuid.UUID, input string, stream chat.StreamFunc) (*chat.Response, error)
	GenerateTitle(ctx context.Context, userMessage string) string
}

// ServerConfig carries the server's dependencies.
type ServerConfig struct {
	Logger    *slog.Logger
	Chat      TurnHandler
	Profiles  *profile.Store
	Sessions  *session.Store
	Results   *labs.Store
	Runs      *pipeline.RunStore
	Index     VectorCleaner
	State     *state.Store
	Retrieval *retrieval.Service
	Submitter ResultSubmitter
	Pool      *pgxpool.Pool
}

// VectorCleaner removes a profile's index entries on profile deletion.
type VectorCleaner interface {
	DeleteByProfile(ctx context.Context, profileID uuid.UUID) error
}

// Server is the HTTP server.
type Server struct {
	handler http.Handler
}

// NewServer wires all routes and the middleware chain.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Profiles == nil || cfg.Sessions == nil || cfg.State == nil {
		return nil, errors.New("profile, session and state stores are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ph := &profileHandler{
		profiles: cfg.Profiles,
		index:    cfg.Index,
		state:    cfg.State,
		logger:   logger,
	}
	sh := &sessionHandler{
		sessions: cfg.Sessions,
		state:    cfg.State,
		logger:   logger,
	}
	ch := &chatHandler{
		chat:     cfg.Chat,
		sessions: cfg.Sessions,
		state:    cfg.State,
		logger:   logger,
	}
	rh := &resultsHandler{
		results:   cfg.Results,
		runs:      cfg.Runs,
		retrieval: cfg.Retrieval,
		submitter: cfg.Submitter,
		logger:    logger,
	}
	hh := &healthHandler{pool: cfg.Pool}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", hh.health)
	mux.HandleFunc("GET /api/v1/ready", hh.ready)

	mux.HandleFunc("GET /api/v1/profiles", ph.list)
	mux.HandleFunc("POST /api/v1/profiles", ph.upsert)
	mux.HandleFunc("GET /api/v1/profiles/{id}", ph.get)
	mux.HandleFunc("DELETE /api/v1/profiles/{id}", ph.delete)
	mux.HandleFunc("POST /api/v1/profiles/{id}/activate", ph.activate)

	mux.HandleFunc("GET /api/v1/profiles/{id}/sessions", sh.list)
	mux.HandleFunc("POST /api/v1/profiles/{id}/sessions", sh.create)
	mux.HandleFunc("PATCH /api/v1/sessions/{id}", sh.rename)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.delete)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", sh.messages)

	mux.HandleFunc("POST /api/v1/chat/stream", ch.stream)

	mux.HandleFunc("GET /api/v1/profiles/{id}/results", rh.list)
	mux.HandleFunc("POST /api/v1/profiles/{id}/results", rh.submit)
	mux.HandleFunc("GET /api/v1/profiles/{id}/insights", rh.insights)
	mux.HandleFunc("GET /api/v1/runs/{id}", rh.runStatus)

	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	return &Server{handler: handler}, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// pathUUID parses the {id} path segment.
func pathUUID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue("id"))
}

func withTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}
