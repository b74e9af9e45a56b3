package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nutrichat/nutrichat/internal/log"
	"github.com/nutrichat/nutrichat/internal/pipeline"
	"github.com/nutrichat/nutrichat/internal/profile"
)

type fakeProfiles struct {
	profile   *profile.Profile
	updateErr error
	updated   map[profile.Field]string
}

func (f *fakeProfiles) Get(_ context.Context, _ uuid.UUID) (*profile.Profile, error) {
	if f.profile == nil {
		return nil, profile.ErrNotFound
	}
	return f.profile, nil
}

func (f *fakeProfiles) UpdateField(_ context.Context, _ uuid.UUID, field profile.Field, value string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.updated == nil {
		f.updated = make(map[profile.Field]string)
	}
	f.updated[field] = value
	return nil
}

type fakeRunner struct {
	runID     uuid.UUID
	submitErr error
	inputs    []pipeline.Input
}

func (f *fakeRunner) Submit(_ context.Context, in pipeline.Input) (uuid.UUID, error) {
	if f.submitErr != nil {
		return uuid.Nil, f.submitErr
	}
	f.inputs = append(f.inputs, in)
	return f.runID, nil
}

func newExecutor(profiles *fakeProfiles, runner *fakeRunner) *Executor {
	e := NewExecutor(profiles, runner, log.NewNop())
	e.now = func() time.Time { return time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC) }
	return e
}

func asha() *profile.Profile {
	return &profile.Profile{
		ID:            uuid.New(),
		Name:          "Asha",
		AgeAtCreation: 30,
		Sex:           "female",
		Allergies:     "shellfish",
	}
}

func TestUpdateProfileFieldNoProfile(t *testing.T) {
	exec := newExecutor(&fakeProfiles{}, &fakeRunner{})
	got := exec.UpdateProfileField(context.Background(), uuid.New(), UpdateProfileFieldInput{
		Field: "allergies", Value: "peanuts", Action: "add", UserConfirmation: "add peanuts to my allergies",
	})
	if got.Success || got.Error != ErrCodeNoProfile {
		t.Errorf("expected no-profile failure, got %+v", got)
	}
}

func TestUpdateProfileFieldConfirmationGate(t *testing.T) {
	tests := []struct {
		name         string
		confirmation string
		wantWrong    bool
	}{
		{name: "missing", confirmation: "", wantWrong: true},
		{name: "too short", confirmation: "add", wantWrong: true},
		{name: "whitespace padded short", confirmation: "  ok  ", wantWrong: true},
		{name: "long enough", confirmation: "add peanuts to my allergies", wantWrong: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newExecutor(&fakeProfiles{profile: asha()}, &fakeRunner{})
			got := exec.UpdateProfileField(context.Background(), uuid.New(), UpdateProfileFieldInput{
				Field: "allergies", Value: "peanuts", Action: "add", UserConfirmation: tt.confirmation,
			})
			if tt.wantWrong {
				if got.Success || got.Error != ErrCodeWrongTool {
					t.Errorf("expected WRONG_TOOL_USED, got %+v", got)
				}
				if !strings.Contains(got.Message, "dietary advice") {
					t.Error("corrective message should redirect the model to plain-text advice")
				}
			} else if !got.Success {
				t.Errorf("expected success, got %+v", got)
			}
		})
	}
}

func TestUpdateProfileFieldPlaceholders(t *testing.T) {
	for _, value := range []string{"none", "Unknown", "N/A", "null", "undefined", "", "  NONE  "} {
		exec := newExecutor(&fakeProfiles{profile: asha()}, &fakeRunner{})
		got := exec.UpdateProfileField(context.Background(), uuid.New(), UpdateProfileFieldInput{
			Field: "allergies", Value: value, Action: "add", UserConfirmation: "add it to my allergies",
		})
		if got.Success || got.Error != ErrCodePlaceholder {
			t.Errorf("value %q: expected placeholder rejection, got %+v", value, got)
		}
	}
}

func TestUpdateProfileFieldInvalidField(t *testing.T) {
	exec := newExecutor(&fakeProfiles{profile: asha()}, &fakeRunner{})
	got := exec.UpdateProfileField(context.Background(), uuid.New(), UpdateProfileFieldInput{
		Field: "name", Value: "Bob", Action: "replace", UserConfirmation: "change my name to Bob",
	})
	if got.Success || got.Error != ErrCodeInvalidField {
		t.Errorf("expected invalid-field failure, got %+v", got)
	}
}

func TestUpdateProfileFieldListMerge(t *testing.T) {
	profiles := &fakeProfiles{profile: asha()}
	exec := newExecutor(profiles, &fakeRunner{})

	got := exec.UpdateProfileField(context.Background(), uuid.New(), UpdateProfileFieldInput{
		Field: "allergies", Value: "peanuts", Action: "add", UserConfirmation: "add peanuts to my allergies",
	})
	if !got.Success {
		t.Fatalf("expected success, got %+v", got)
	}
	if got.NewValue != "shellfish, peanuts" {
		t.Errorf("merged value = %q, want %q", got.NewValue, "shellfish, peanuts")
	}
	if profiles.updated[profile.FieldAllergies] != "shellfish, peanuts" {
		t.Errorf("stored value = %q", profiles.updated[profile.FieldAllergies])
	}
}

func TestUpdateProfileFieldSexNormalization(t *testing.T) {
	profiles := &fakeProfiles{profile: asha()}
	exec := newExecutor(profiles, &fakeRunner{})

	got := exec.UpdateProfileField(context.Background(), uuid.New(), UpdateProfileFieldInput{
		Field: "sex", Value: "Nonbinary", Action: "replace", UserConfirmation: "set my sex to nonbinary",
	})
	if !got.Success || got.NewValue != "other" {
		t.Errorf("expected normalized sex %q, got %+v", "other", got)
	}
}

func TestUpdateProfileFieldStorageFailure(t *testing.T) {
	exec := newExecutor(&fakeProfiles{profile: asha(), updateErr: errors.New("boom")}, &fakeRunner{})
	got := exec.UpdateProfileField(context.Background(), uuid.New(), UpdateProfileFieldInput{
		Field: "religion", Value: "buddhist", Action: "replace", UserConfirmation: "set my religion to buddhist",
	})
	if got.Success || got.Error != ErrCodeStorageFailed {
		t.Errorf("expected storage failure, got %+v", got)
	}
}

func TestAddTestResultNoProfile(t *testing.T) {
	exec := newExecutor(&fakeProfiles{}, &fakeRunner{})
	got := exec.AddTestResult(context.Background(), uuid.New(), AddTestResultInput{
		Test: "TSH", Value: "8.9",
	})
	if got.Success || got.Error != ErrCodeNoProfile {
		t.Errorf("expected no-profile failure, got %+v", got)
	}
	if !strings.Contains(got.Message, "create a profile") {
		t.Errorf("message should ask for profile creation, got %q", got.Message)
	}
}

func TestAddTestResultValueValidation(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr string
	}{
		{name: "placeholder normal", value: "normal", wantErr: ErrCodeValueNotReal},
		{name: "placeholder abnormal", value: "Abnormal", wantErr: ErrCodeValueNotReal},
		{name: "placeholder unknown", value: "unknown", wantErr: ErrCodeValueNotReal},
		{name: "no digits", value: "slightly elevated", wantErr: ErrCodeValueNoDigit},
		{name: "with units", value: "120 mg/dL", wantErr: ""},
		{name: "percentage", value: "5.7%", wantErr: ""},
		{name: "bare number", value: "8.9", wantErr: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{runID: uuid.New()}
			exec := newExecutor(&fakeProfiles{profile: asha()}, runner)
			got := exec.AddTestResult(context.Background(), uuid.New(), AddTestResultInput{
				Test: "Glucose", Value: tt.value,
			})
			if tt.wantErr == "" {
				if !got.Success {
					t.Errorf("expected success for %q, got %+v", tt.value, got)
				}
			} else if got.Success || got.Error != tt.wantErr {
				t.Errorf("value %q: expected %s, got %+v", tt.value, tt.wantErr, got)
			}
		})
	}
}

func TestAddTestResultDateDefault(t *testing.T) {
	runner := &fakeRunner{runID: uuid.New()}
	exec := newExecutor(&fakeProfiles{profile: asha()}, runner)

	got := exec.AddTestResult(context.Background(), uuid.New(), AddTestResultInput{
		Test: "TSH", Value: "8.9", Date: "  ",
	})
	if !got.Success {
		t.Fatalf("expected success, got %+v", got)
	}
	if len(runner.inputs) != 1 {
		t.Fatalf("expected one submission, got %d", len(runner.inputs))
	}
	if runner.inputs[0].TestDate != "2026-08-29" {
		t.Errorf("date = %q, want today", runner.inputs[0].TestDate)
	}
}

func TestAddTestResultKeepsProvidedDate(t *testing.T) {
	runner := &fakeRunner{runID: uuid.New()}
	exec := newExecutor(&fakeProfiles{profile: asha()}, runner)

	exec.AddTestResult(context.Background(), uuid.New(), AddTestResultInput{
		Test: "TSH", Value: "8.9", Date: "2026-01-10",
	})
	if runner.inputs[0].TestDate != "2026-01-10" {
		t.Errorf("date = %q, want provided date", runner.inputs[0].TestDate)
	}
}

func TestAddTestResultReturnsRunID(t *testing.T) {
	runID := uuid.New()
	runner := &fakeRunner{runID: runID}
	exec := newExecutor(&fakeProfiles{profile: asha()}, runner)

	got := exec.AddTestResult(context.Background(), uuid.New(), AddTestResultInput{
		Test: "TSH", Value: "8.9",
	})
	if got.RunID != runID.String() {
		t.Errorf("run id = %q, want %q", got.RunID, runID)
	}
	if !strings.Contains(got.Message, "Asha") {
		t.Errorf("acknowledgment should name the profile, got %q", got.Message)
	}
}

func TestAddTestResultSubmitFailure(t *testing.T) {
	exec := newExecutor(&fakeProfiles{profile: asha()}, &fakeRunner{submitErr: errors.New("queue down")})
	got := exec.AddTestResult(context.Background(), uuid.New(), AddTestResultInput{
		Test: "TSH", Value: "8.9",
	})
	if got.Success || got.Error != ErrCodeSubmitFailed {
		t.Errorf("expected submit failure, got %+v", got)
	}
}
