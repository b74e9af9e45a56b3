// Package pipeline turns a raw test-result submission into a summarized,
// embedded, persisted record. A run walks an explicit state machine
//
//	pending -> summarized -> indexed -> persisted
//
// with each transition committed to storage before the next step starts.
// A crashed or failed run resumes from its last committed state; completed
// steps are never re-executed, so retries cannot duplicate rows or vectors.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is a run's last committed checkpoint.
type State string

const (
	StatePending    State = "pending"
	StateSummarized State = "summarized"
	StateIndexed    State = "indexed"
	StatePersisted  State = "persisted"
	StateFailed     State = "failed"
)

// Terminal reports whether a run in this state will make no further progress.
func (s State) Terminal() bool {
	return s == StatePersisted || s == StateFailed
}

// Input is one test-result submission.
type Input struct {
	ProfileID uuid.UUID
	TestName  string
	TestValue string
	TestDate  string
}

// Summary is the structured output of the summarize step.
type Summary struct {
	Summary    string   `json:"summary"`
	Biomarkers []string `json:"biomarkers"`
	Concerns   []string `json:"concerns"`
}

// FallbackSummary is the deterministic summary used when the model's output
// cannot be parsed.
func FallbackSummary(in Input) Summary {
	return Summary{
		Summary:    fmt.Sprintf("%s: %s (%s)", in.TestName, in.TestValue, in.TestDate),
		Biomarkers: []string{in.TestName},
		Concerns:   []string{},
	}
}

// Run is one persisted pipeline execution.
type Run struct {
	ID        uuid.UUID
	ProfileID uuid.UUID
	TestName  string
	TestValue string
	TestDate  string
	State     State
	Summary   *Summary
	VectorID  string
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Input reconstructs the submission a run was created from.
func (r *Run) Input() Input {
	return Input{
		ProfileID: r.ProfileID,
		TestName:  r.TestName,
		TestValue: r.TestValue,
		TestDate:  r.TestDate,
	}
}

// ErrRunNotFound indicates the run id has no stored row.
var ErrRunNotFound = errors.New("pipeline run not found")
