// Package app wires the application together: database pool, genkit
// provider, stores, pipeline runner and turn orchestrator.
package app

import (
	"context"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nutrichat/nutrichat/internal/chat"
	"github.com/nutrichat/nutrichat/internal/config"
	"github.com/nutrichat/nutrichat/internal/index"
	"github.com/nutrichat/nutrichat/internal/labs"
	"github.com/nutrichat/nutrichat/internal/pipeline"
	"github.com/nutrichat/nutrichat/internal/profile"
	"github.com/nutrichat/nutrichat/internal/retrieval"
	"github.com/nutrichat/nutrichat/internal/session"
	"github.com/nutrichat/nutrichat/internal/state"
	"github.com/nutrichat/nutrichat/internal/tools"
)

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Model    ai.Model
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Profiles  *profile.Store
	Sessions  *session.Store
	Results   *labs.Store
	Index     *index.Store
	State     *state.Store
	Runs      *pipeline.RunStore
	Runner    *pipeline.Runner
	Retrieval *retrieval.Service
	Tools     *tools.Executor
	Chat      *chat.Orchestrator

	cancel context.CancelFunc
}

// Close cancels background work, waits for pipeline workers to drain and
// releases the database pool.
func (a *App) Close() error {
	a.Logger.Info("shutting down")

	if a.cancel != nil {
		a.cancel()
	}
	if a.Runner != nil {
		a.Runner.Wait()
	}
	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database pool closed")
	}
	return nil
}
