package tools

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
)

// Tool names as the model sees them.
const (
	NameUpdateProfileField = "updateProfileField"
	NameAddTestResult      = "addTestResult"
)

type profileIDKey struct{}

// WithProfileID returns a context carrying the profile scope for tool calls.
// The orchestrator sets this per turn; tools are registered once globally.
func WithProfileID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, profileIDKey{}, id)
}

// ProfileIDFromContext extracts the turn's profile scope.
func ProfileIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(profileIDKey{}).(uuid.UUID)
	return id, ok
}

// Register defines both tools against the genkit registry and returns their
// references for per-turn gating. Call once at startup.
func Register(g *genkit.Genkit, exec *Executor) []ai.ToolRef {
	updateTool := genkit.DefineTool(
		g,
		NameUpdateProfileField,
		"DATABASE UPDATE TOOL - Use ONLY when user explicitly says to ADD, REMOVE, or UPDATE profile fields, "+
			"e.g. \"Add diabetes to my conditions\", \"Remove gluten from my exclusions\", \"Update my diet to vegetarian\". "+
			"Extract the exact field, value, and quote the user's message. "+
			"Do NOT call this for questions or dietary advice requests - respond with text instead.",
		func(ctx *ai.ToolContext, input UpdateProfileFieldInput) (Result, error) {
			profileID, ok := ProfileIDFromContext(ctx.Context)
			if !ok {
				return failure(ErrCodeNoProfile, "Please create a profile first before updating information."), nil
			}
			return exec.UpdateProfileField(ctx.Context, profileID, input), nil
		},
	)

	addTool := genkit.DefineTool(
		g,
		NameAddTestResult,
		"DATABASE STORAGE TOOL - Use ONLY when user shares actual test results with numbers, "+
			"e.g. \"My TSH is 8.9\", \"Blood pressure was 140/110\", \"Glucose level is 105 mg/dL\". "+
			"Extract test name, value with units, date, and quote the user's exact statement. "+
			"Do NOT call this for questions about test results or diet advice - respond with text instead.",
		func(ctx *ai.ToolContext, input AddTestResultInput) (Result, error) {
			profileID, ok := ProfileIDFromContext(ctx.Context)
			if !ok {
				return failure(ErrCodeNoProfile, "Please create a profile before adding test results."), nil
			}
			return exec.AddTestResult(ctx.Context, profileID, input), nil
		},
	)

	return []ai.ToolRef{updateTool, addTool}
}
