package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nutrichat/nutrichat/internal/chat"
	"github.com/nutrichat/nutrichat/internal/session"
	"github.com/nutrichat/nutrichat/internal/state"
)

// SSE event names for the chat stream.
const (
	eventChunk = "chunk"
	eventTool  = "tool"
	eventError = "error"
	eventDone  = "done"
)

type chatHandler struct {
	chat     TurnHandler
	sessions *session.Store
	state    *state.Store
	logger   *slog.Logger
}

type chatRequest struct {
	ProfileID string `json:"profileId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

// stream runs one turn and streams it as Server-Sent Events. Profile and
// session fall back to the stored active pointers when omitted; a missing
// session is created on the fly with a model-generated title.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	if h.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat not configured")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	profileID, err := h.resolveProfile(r.Context(), req.ProfileID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	sessionID, err := h.resolveSession(r.Context(), profileID, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	streamFn := func(ctx context.Context, ev chat.Event) error {
		switch ev.Type {
		case chat.EventText:
			return writeSSE(w, flusher, eventChunk, map[string]string{"text": ev.Text})
		case chat.EventTool:
			return writeSSE(w, flusher, eventTool, map[string]string{"name": ev.Tool})
		case chat.EventError:
			return writeSSE(w, flusher, eventError, map[string]string{"message": ev.Text})
		}
		return nil
	}

	resp, err := h.chat.HandleTurn(r.Context(), profileID, sessionID, req.Message, streamFn)
	if err != nil {
		h.logger.Error("turn failed", "error", err)
		_ = writeSSE(w, flusher, eventError, map[string]string{"message": "The conversation could not be processed."})
		return
	}

	_ = writeSSE(w, flusher, eventDone, map[string]any{
		"text":      resp.FinalText,
		"sessionId": sessionID.String(),
	})
}

// resolveProfile uses the explicit id when given, else the active pointer.
// No profile at all is a valid state: the turn runs ungrounded and the model
// asks the user to create one.
func (h *chatHandler) resolveProfile(ctx context.Context, explicit string) (uuid.UUID, error) {
	if explicit != "" {
		return uuid.Parse(explicit)
	}
	stored, err := h.state.Get(ctx, state.KeyActiveProfile)
	if err != nil {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(stored)
	if err != nil {
		return uuid.Nil, nil
	}
	return id, nil
}

func (h *chatHandler) resolveSession(ctx context.Context, profileID uuid.UUID, req chatRequest) (uuid.UUID, error) {
	if req.SessionID != "" {
		return uuid.Parse(req.SessionID)
	}
	if profileID == uuid.Nil {
		return uuid.Nil, nil
	}

	key := state.ActiveSessionKey(profileID)
	if stored, err := h.state.Get(ctx, key); err == nil {
		if id, err := uuid.Parse(stored); err == nil {
			if _, err := h.sessions.Get(ctx, id); err == nil {
				return id, nil
			}
		}
	}

	title := h.chat.GenerateTitle(ctx, req.Message)
	s, err := h.sessions.Create(ctx, profileID, title)
	if err != nil {
		h.logger.Warn("creating session for turn", "error", err)
		return uuid.Nil, nil
	}
	if err := h.state.Put(ctx, key, s.ID.String()); err != nil {
		h.logger.Warn("setting active session", "error", err)
	}
	return s.ID, nil
}

// writeSSE writes one "event: <name>\ndata: <json>\n\n" frame and flushes.
func writeSSE(w io.Writer, flusher http.Flusher, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal sse payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	flusher.Flush()
	return nil
}
