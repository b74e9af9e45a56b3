package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nutrichat/nutrichat/internal/session"
	"github.com/nutrichat/nutrichat/internal/state"
)

type sessionHandler struct {
	sessions *session.Store
	state    *state.Store
	logger   *slog.Logger
}

type sessionPayload struct {
	ID        string `json:"id"`
	ProfileID string `json:"profileId"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func toSessionPayload(s *session.Session) sessionPayload {
	return sessionPayload{
		ID:        s.ID.String(),
		ProfileID: s.ProfileID.String(),
		Title:     s.Title,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	profileID, err := pathUUID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	sessions, err := h.sessions.ListByProfile(r.Context(), profileID)
	if err != nil {
		h.logger.Error("listing sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "listing sessions failed")
		return
	}

	payloads := make([]sessionPayload, 0, len(sessions))
	for _, s := range sessions {
		payloads = append(payloads, toSessionPayload(s))
	}
	writeJSON(w, http.StatusOK, payloads)
}

// create opens a new session and makes it the profile's active one.
func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	profileID, err := pathUUID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	var in struct {
		Title string `json:"title"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	s, err := h.sessions.Create(r.Context(), profileID, in.Title)
	if err != nil {
		h.logger.Error("creating session", "error", err)
		writeError(w, http.StatusInternalServerError, "creating session failed")
		return
	}
	if err := h.state.Put(r.Context(), state.ActiveSessionKey(profileID), s.ID.String()); err != nil {
		h.logger.Warn("setting active session", "error", err)
	}

	writeJSON(w, http.StatusCreated, toSessionPayload(s))
}

func (h *sessionHandler) rename(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var in struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.sessions.Rename(r.Context(), id, in.Title); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("renaming session", "error", err)
		writeError(w, http.StatusInternalServerError, "renaming session failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// delete removes a session; if it was the profile's active session the
// pointer is cleared so the next turn starts a fresh transcript.
func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	s, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "loading session failed")
		return
	}

	if err := h.sessions.Delete(r.Context(), id); err != nil {
		h.logger.Error("deleting session", "error", err)
		writeError(w, http.StatusInternalServerError, "deleting session failed")
		return
	}

	key := state.ActiveSessionKey(s.ProfileID)
	if active, err := h.state.Get(r.Context(), key); err == nil && active == id.String() {
		if err := h.state.Delete(r.Context(), key); err != nil {
			h.logger.Warn("clearing active session pointer", "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *sessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	history, err := h.sessions.History(r.Context(), id)
	if err != nil {
		h.logger.Error("loading history", "error", err)
		writeError(w, http.StatusInternalServerError, "loading history failed")
		return
	}

	type messagePayload struct {
		Role string `json:"role"`
		Text string `json:"text"`
	}
	payloads := make([]messagePayload, 0, len(history))
	for _, m := range history {
		payloads = append(payloads, messagePayload{Role: string(m.Role), Text: m.Text()})
	}
	writeJSON(w, http.StatusOK, payloads)
}
