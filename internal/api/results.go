package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nutrichat/nutrichat/internal/labs"
	"github.com/nutrichat/nutrichat/internal/pipeline"
	"github.com/nutrichat/nutrichat/internal/retrieval"
	"github.com/nutrichat/nutrichat/internal/tools"
)

// ResultSubmitter runs an HTTP-submitted test result through the same
// validation as the in-chat tool path before enqueuing its processing run.
type ResultSubmitter interface {
	AddTestResult(ctx context.Context, profileID uuid.UUID, in tools.AddTestResultInput) tools.Result
}

type resultsHandler struct {
	results   *labs.Store
	runs      *pipeline.RunStore
	retrieval *retrieval.Service
	submitter ResultSubmitter
	logger    *slog.Logger
}

type resultPayload struct {
	ID        int64     `json:"id"`
	TestName  string    `json:"testName"`
	TestValue string    `json:"testValue"`
	TestDate  string    `json:"testDate"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type runPayload struct {
	ID        string            `json:"id"`
	State     string            `json:"state"`
	TestName  string            `json:"testName"`
	TestValue string            `json:"testValue"`
	TestDate  string            `json:"testDate"`
	Summary   *pipeline.Summary `json:"summary,omitempty"`
	VectorID  string            `json:"vectorId,omitempty"`
	Attempts  int               `json:"attempts"`
	LastError string            `json:"lastError,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func (h *resultsHandler) list(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}
	if h.results == nil {
		writeError(w, http.StatusServiceUnavailable, "results store not configured")
		return
	}

	results, err := h.results.ListByProfile(r.Context(), id)
	if err != nil {
		h.logger.Error("listing test results", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list test results")
		return
	}

	payload := make([]resultPayload, 0, len(results))
	for _, tr := range results {
		payload = append(payload, resultPayload{
			ID:        tr.ID,
			TestName:  tr.TestName,
			TestValue: tr.TestValue,
			TestDate:  tr.TestDate,
			Summary:   tr.Summary,
			CreatedAt: tr.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

type submitResultRequest struct {
	Test  string `json:"test"`
	Value string `json:"value"`
	Date  string `json:"date,omitempty"`
}

// submit accepts a test result directly over HTTP. It returns the run id of
// the processing run; the result itself is persisted out of band.
func (h *resultsHandler) submit(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}
	if h.submitter == nil {
		writeError(w, http.StatusServiceUnavailable, "result submission not configured")
		return
	}

	var in submitResultRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(in.Test) == "" {
		writeError(w, http.StatusBadRequest, "test is required")
		return
	}

	res := h.submitter.AddTestResult(r.Context(), id, tools.AddTestResultInput{
		Test:  strings.TrimSpace(in.Test),
		Value: in.Value,
		Date:  in.Date,
	})
	if !res.Success {
		switch res.Error {
		case tools.ErrCodeNoProfile:
			writeError(w, http.StatusNotFound, "profile not found")
		case tools.ErrCodeSubmitFailed:
			h.logger.Error("submitting test result", "profile_id", id)
			writeError(w, http.StatusInternalServerError, res.Message)
		default:
			writeError(w, http.StatusBadRequest, res.Message)
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"runId":   res.RunID,
		"message": res.Message,
	})
}

func (h *resultsHandler) insights(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}
	if h.retrieval == nil {
		writeError(w, http.StatusServiceUnavailable, "retrieval not configured")
		return
	}

	query := r.URL.Query().Get("q")
	insights := h.retrieval.Insights(r.Context(), query, id)
	if insights == nil {
		insights = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

func (h *resultsHandler) runStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	if h.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}

	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pipeline.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("loading run", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load run")
		return
	}

	writeJSON(w, http.StatusOK, runPayload{
		ID:        run.ID.String(),
		State:     string(run.State),
		TestName:  run.TestName,
		TestValue: run.TestValue,
		TestDate:  run.TestDate,
		Summary:   run.Summary,
		VectorID:  run.VectorID,
		Attempts:  run.Attempts,
		LastError: run.LastError,
		UpdatedAt: run.UpdatedAt,
	})
}
