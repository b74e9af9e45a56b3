//go:build integration

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/nutrichat/nutrichat/internal/index"
	"github.com/nutrichat/nutrichat/internal/labs"
	"github.com/nutrichat/nutrichat/internal/log"
	"github.com/nutrichat/nutrichat/internal/pipeline"
	"github.com/nutrichat/nutrichat/internal/profile"
	"github.com/nutrichat/nutrichat/internal/session"
	"github.com/nutrichat/nutrichat/internal/state"
	"github.com/nutrichat/nutrichat/internal/testutil"
)

func newIntegrationServer(t *testing.T) (*Server, *testutil.TestDB, func()) {
	t.Helper()

	tdb, cleanup := testutil.SetupTestDB(t)
	logger := log.NewNop()

	srv, err := NewServer(ServerConfig{
		Logger:   logger,
		Profiles: profile.NewStore(tdb.Pool, logger),
		Sessions: session.NewStore(tdb.Pool, logger),
		Results:  labs.NewStore(tdb.Pool, logger),
		Runs:     pipeline.NewRunStore(tdb.Pool),
		Index:    index.NewStore(tdb.Pool, logger),
		State:    state.NewStore(tdb.Pool, logger),
		Pool:     tdb.Pool,
	})
	if err != nil {
		cleanup()
		t.Fatalf("NewServer: %v", err)
	}
	return srv, tdb, cleanup
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	w := httptest.NewRecorder()
	r := httptest.NewRequest(method, path, reader)
	srv.ServeHTTP(w, r)
	return w
}

func TestProfileLifecycle(t *testing.T) {
	srv, tdb, cleanup := newIntegrationServer(t)
	defer cleanup()

	// Create. Sex is normalized and list fields deduplicate.
	w := doJSON(t, srv, http.MethodPost, "/api/v1/profiles", map[string]any{
		"name":      "Asha",
		"age":       32,
		"sex":       "Female",
		"allergies": "Peanuts, shellfish, peanuts",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d\nbody: %s", w.Code, w.Body.String())
	}
	var created profilePayload
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}
	if created.Sex != "female" {
		t.Fatalf("Sex = %q, want female", created.Sex)
	}
	if created.Allergies != "Peanuts, shellfish" {
		t.Fatalf("Allergies = %q, want deduplicated", created.Allergies)
	}

	// Creating a profile activates it.
	active, err := state.NewStore(tdb.Pool, log.NewNop()).Get(context.Background(), state.KeyActiveProfile)
	if err != nil {
		t.Fatalf("active profile lookup: %v", err)
	}
	if active != created.ID {
		t.Fatalf("active profile = %q, want %q", active, created.ID)
	}

	// Get.
	w = doJSON(t, srv, http.MethodGet, "/api/v1/profiles/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	// List.
	w = doJSON(t, srv, http.MethodGet, "/api/v1/profiles", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var all []profilePayload
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("list returned %d profiles, want 1", len(all))
	}

	// Delete clears the active pointer.
	w = doJSON(t, srv, http.MethodDelete, "/api/v1/profiles/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodGet, "/api/v1/profiles/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", w.Code)
	}
	if _, err := state.NewStore(tdb.Pool, log.NewNop()).Get(context.Background(), state.KeyActiveProfile); err == nil {
		t.Fatal("active profile pointer survived delete")
	}
}

func TestProfileValidation(t *testing.T) {
	srv, _, cleanup := newIntegrationServer(t)
	defer cleanup()

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"age": 30, "sex": "female"}},
		{"zero age", map[string]any{"name": "X", "age": 0, "sex": "male"}},
		{"age too high", map[string]any{"name": "X", "age": 200, "sex": "male"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, srv, http.MethodPost, "/api/v1/profiles", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv, _, cleanup := newIntegrationServer(t)
	defer cleanup()

	w := doJSON(t, srv, http.MethodPost, "/api/v1/profiles", map[string]any{
		"name": "Ben", "age": 45, "sex": "male",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create profile status = %d", w.Code)
	}
	var p profilePayload
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal profile: %v", err)
	}

	sessionsPath := fmt.Sprintf("/api/v1/profiles/%s/sessions", p.ID)

	// Create with no body defaults the title.
	w = doJSON(t, srv, http.MethodPost, sessionsPath, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session status = %d\nbody: %s", w.Code, w.Body.String())
	}
	var s sessionPayload
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	if s.Title != session.DefaultTitle {
		t.Fatalf("Title = %q, want %q", s.Title, session.DefaultTitle)
	}

	// Rename.
	w = doJSON(t, srv, http.MethodPatch, "/api/v1/sessions/"+s.ID, map[string]string{"title": "Thyroid follow-up"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("rename status = %d", w.Code)
	}

	// List.
	w = doJSON(t, srv, http.MethodGet, sessionsPath, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list sessions status = %d", w.Code)
	}
	var list []sessionPayload
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal session list: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Thyroid follow-up" {
		t.Fatalf("session list = %+v", list)
	}

	// Empty transcript.
	w = doJSON(t, srv, http.MethodGet, "/api/v1/sessions/"+s.ID+"/messages", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("messages status = %d", w.Code)
	}

	// Delete.
	w = doJSON(t, srv, http.MethodDelete, "/api/v1/sessions/"+s.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete session status = %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodPatch, "/api/v1/sessions/"+s.ID, map[string]string{"title": "x"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("rename after delete status = %d, want 404", w.Code)
	}
}

func TestResultsAndRunEndpoints(t *testing.T) {
	srv, tdb, cleanup := newIntegrationServer(t)
	defer cleanup()
	ctx := context.Background()
	logger := log.NewNop()

	p := &profile.Profile{ID: uuid.New(), Name: "Asha", AgeAtCreation: 32, Sex: "female"}
	if err := profile.NewStore(tdb.Pool, logger).Upsert(ctx, p); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	if _, err := labs.NewStore(tdb.Pool, logger).Insert(ctx, &labs.TestResult{
		ProfileID: p.ID,
		TestName:  "TSH",
		TestValue: "8.9 mIU/L",
		TestDate:  "2026-08-20",
		Summary:   "TSH elevated.",
	}); err != nil {
		t.Fatalf("seed result: %v", err)
	}

	w := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/profiles/%s/results", p.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("results status = %d", w.Code)
	}
	var results []resultPayload
	if err := json.Unmarshal(w.Body.Bytes(), &results); err != nil {
		t.Fatalf("unmarshal results: %v", err)
	}
	if len(results) != 1 || results[0].TestName != "TSH" {
		t.Fatalf("results = %+v", results)
	}

	runs := pipeline.NewRunStore(tdb.Pool)
	runID, err := runs.Create(ctx, pipeline.Input{
		ProfileID: p.ID, TestName: "Glucose", TestValue: "95 mg/dL", TestDate: "2026-08-21",
	})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	w = doJSON(t, srv, http.MethodGet, "/api/v1/runs/"+runID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("run status endpoint = %d", w.Code)
	}
	var run runPayload
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatalf("unmarshal run: %v", err)
	}
	if run.State != string(pipeline.StatePending) {
		t.Fatalf("run state = %q, want pending", run.State)
	}

	w = doJSON(t, srv, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing run status = %d, want 404", w.Code)
	}
}

func TestReadyEndpointWithPool(t *testing.T) {
	srv, _, cleanup := newIntegrationServer(t)
	defer cleanup()

	w := doJSON(t, srv, http.MethodGet, "/api/v1/ready", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ready status = %d\nbody: %s", w.Code, w.Body.String())
	}
}
