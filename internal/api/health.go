package api

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type healthHandler struct {
	pool *pgxpool.Pool
}

// health reports process liveness only.
func (*healthHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ready additionally checks the database connection.
func (h *healthHandler) ready(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		writeError(w, http.StatusServiceUnavailable, "database pool not configured")
		return
	}

	ctx, cancel := withTimeout(r, 2*time.Second)
	defer cancel()
	if err := h.pool.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}

	stats := h.pool.Stat()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"acquired_conns":    stats.AcquiredConns(),
		"idle_conns":        stats.IdleConns(),
		"total_conns":       stats.TotalConns(),
		"max_conns":         stats.MaxConns(),
		"empty_acquire_cnt": stats.EmptyAcquireCount(),
	})
}
