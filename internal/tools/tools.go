// Package tools implements the two mutating operations the model may invoke:
// a field-level profile update and a test-result submission. Every call is
// validated before any write; validation failures come back as corrective
// messages the model can act on within the same turn, never as Go errors.
package tools

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nutrichat/nutrichat/internal/pipeline"
	"github.com/nutrichat/nutrichat/internal/profile"
)

// MinConfirmationLength is the shortest userConfirmation accepted. A missing
// or near-empty confirmation means the model invoked a tool on an
// advice-seeking turn.
const MinConfirmationLength = 5

// Tool failure codes surfaced to the model.
const (
	ErrCodeNoProfile     = "No profile associated with this chat"
	ErrCodeWrongTool     = "WRONG_TOOL_USED"
	ErrCodePlaceholder   = "Invalid value - placeholder detected"
	ErrCodeInvalidField  = "Invalid field"
	ErrCodeStorageFailed = "Database update failed"
	ErrCodeValueNoDigit  = "Invalid test value - no numeric value detected"
	ErrCodeValueNotReal  = "Invalid test value - must include actual number with units"
	ErrCodeSubmitFailed  = "Failed to start result processing"
)

// profilePlaceholders are values never written to a profile field.
var profilePlaceholders = map[string]bool{
	"none": true, "unknown": true, "n/a": true, "null": true, "undefined": true, "": true,
}

// testPlaceholders are values never accepted as a test result.
var testPlaceholders = map[string]bool{
	"none": true, "unknown": true, "n/a": true, "null": true, "normal": true, "abnormal": true,
}

// ProfileStore is the profile access the executor needs.
type ProfileStore interface {
	Get(ctx context.Context, id uuid.UUID) (*profile.Profile, error)
	UpdateField(ctx context.Context, id uuid.UUID, field profile.Field, value string) error
}

// Submitter enqueues a pipeline run for a validated test result.
type Submitter interface {
	Submit(ctx context.Context, in pipeline.Input) (uuid.UUID, error)
}

// UpdateProfileFieldInput is the model-facing schema for profile updates.
type UpdateProfileFieldInput struct {
	Field            string `json:"field" jsonschema_description:"Field to update: allergies, conditions, meatChoice, foodExclusions, religion, sex, or race"`
	Value            string `json:"value" jsonschema_description:"New value for the field"`
	Action           string `json:"action" jsonschema_description:"add, remove, or replace"`
	UserConfirmation string `json:"userConfirmation,omitempty" jsonschema_description:"Quote exact user message requesting the update"`
}

// AddTestResultInput is the model-facing schema for test-result submissions.
type AddTestResultInput struct {
	Test          string `json:"test" jsonschema_description:"Medical test name (e.g., TSH, Cholesterol, HbA1c, Glucose)"`
	Value         string `json:"value" jsonschema_description:"Test value with units (e.g., 120 mg/dL, 5.7%)"`
	Date          string `json:"date,omitempty" jsonschema_description:"Test date if mentioned, otherwise leave empty for today"`
	UserStatement string `json:"userStatement,omitempty" jsonschema_description:"Quote exact user message sharing the test result"`
}

// Result is what a tool call returns to the model.
type Result struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
	NewValue string `json:"newValue,omitempty"`
	RunID    string `json:"runId,omitempty"`
}

func failure(code, message string) Result {
	return Result{Success: false, Error: code, Message: message}
}

// Executor validates and performs tool calls for one profile scope.
type Executor struct {
	profiles ProfileStore
	runner   Submitter
	logger   *slog.Logger
	now      func() time.Time
}

// NewExecutor creates a tool executor.
func NewExecutor(profiles ProfileStore, runner Submitter, logger *slog.Logger) *Executor {
	return &Executor{profiles: profiles, runner: runner, logger: logger, now: time.Now}
}

// UpdateProfileField applies a validated field-level profile mutation.
func (e *Executor) UpdateProfileField(ctx context.Context, profileID uuid.UUID, in UpdateProfileFieldInput) Result {
	p, err := e.profiles.Get(ctx, profileID)
	if err != nil {
		return failure(ErrCodeNoProfile, "Please create a profile first before updating information.")
	}

	if len(strings.TrimSpace(in.UserConfirmation)) < MinConfirmationLength {
		return failure(ErrCodeWrongTool,
			"The user is asking for dietary advice or suggestions, not requesting a profile update. "+
				"Please respond with helpful dietary recommendations based on their profile instead of using this tool. "+
				"Provide specific meal suggestions, foods to eat, and nutritional guidance.")
	}

	if profilePlaceholders[strings.ToLower(strings.TrimSpace(in.Value))] {
		return failure(ErrCodePlaceholder,
			"Cannot update profile with placeholder or empty values. User must provide actual information.")
	}

	if !profile.ValidField(in.Field) {
		return failure(ErrCodeInvalidField,
			"Field \""+in.Field+"\" cannot be updated through chat.")
	}
	field := profile.Field(in.Field)

	newValue := in.Value
	switch {
	case field == profile.FieldSex:
		newValue = profile.NormalizeSex(in.Value)
	case field.IsListField():
		newValue = profile.MergeList(p.Value(field), in.Value, in.Action)
	}

	if err := e.profiles.UpdateField(ctx, profileID, field, newValue); err != nil {
		e.logger.Error("profile field update failed",
			"profile_id", profileID, "field", field, "error", err)
		return failure(ErrCodeStorageFailed,
			"There was an error updating your profile. Please try again.")
	}

	e.logger.Info("profile field updated", "profile_id", profileID, "field", field)
	return Result{
		Success:  true,
		Message:  "Updated " + in.Field + " successfully. The new value will be reflected in future recommendations.",
		Field:    in.Field,
		NewValue: newValue,
	}
}

// AddTestResult validates a disclosed test result and submits a pipeline run.
// Nothing is written synchronously; the returned run id tracks the
// out-of-band processing.
func (e *Executor) AddTestResult(ctx context.Context, profileID uuid.UUID, in AddTestResultInput) Result {
	p, err := e.profiles.Get(ctx, profileID)
	if err != nil {
		return failure(ErrCodeNoProfile, "Please create a profile before adding test results.")
	}

	value := strings.TrimSpace(in.Value)
	if testPlaceholders[strings.ToLower(value)] {
		return failure(ErrCodeValueNotReal,
			"Test results must have specific values with units (e.g., '120 mg/dL', '5.7%'). "+
				"User must provide actual test data.")
	}
	if !strings.ContainsAny(value, "0123456789") {
		return failure(ErrCodeValueNoDigit,
			"Test results must include numeric values. Please ask user for the actual test result number.")
	}

	date := strings.TrimSpace(in.Date)
	if date == "" {
		date = e.now().Format("2006-01-02")
	}

	runID, err := e.runner.Submit(ctx, pipeline.Input{
		ProfileID: profileID,
		TestName:  in.Test,
		TestValue: value,
		TestDate:  date,
	})
	if err != nil {
		e.logger.Error("pipeline submission failed", "profile_id", profileID, "error", err)
		return failure(ErrCodeSubmitFailed,
			"There was an error processing your test result. Please try again.")
	}

	return Result{
		Success: true,
		Message: "Test result recorded for " + p.Name + " and being analyzed.",
		RunID:   runID.String(),
	}
}
