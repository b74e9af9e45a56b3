// Package profile defines the health profile domain model and its store.
//
// A profile carries the dietary attributes the assistant grounds its
// recommendations on. List-valued attributes (allergies, conditions, food
// exclusions) are stored comma-joined at the storage boundary and handled
// as ordered sets in the domain layer; see ListField.
package profile

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for profile operations.
var (
	// ErrNotFound indicates no profile exists for the given id.
	ErrNotFound = errors.New("profile not found")

	// ErrUnknownField indicates a field name outside the updatable set.
	ErrUnknownField = errors.New("unknown profile field")
)

// Sex values accepted by the store. Anything else normalizes to SexOther.
const (
	SexMale   = "male"
	SexFemale = "female"
	SexOther  = "other"
)

// Profile is one user's persisted health and dietary attributes.
type Profile struct {
	ID             uuid.UUID
	Name           string
	AgeAtCreation  int
	Sex            string
	Race           string
	Religion       string
	Allergies      string // comma-joined ordered set
	Conditions     string // comma-joined ordered set
	MeatChoice     string
	FoodExclusions string // comma-joined ordered set
	CreatedAt      time.Time
}

// CurrentAge derives the present age from the age recorded at creation plus
// whole years elapsed since.
func (p *Profile) CurrentAge(now time.Time) int {
	if p.CreatedAt.IsZero() || now.Before(p.CreatedAt) {
		return p.AgeAtCreation
	}
	const yearHours = 365.25 * 24
	elapsed := int(now.Sub(p.CreatedAt).Hours() / yearHours)
	return p.AgeAtCreation + elapsed
}

// Field identifies a profile attribute updatable through the chat tool path.
type Field string

// The seven fields the update tool may touch. Name and age are form-path only.
const (
	FieldAllergies      Field = "allergies"
	FieldConditions     Field = "conditions"
	FieldMeatChoice     Field = "meatChoice"
	FieldFoodExclusions Field = "foodExclusions"
	FieldReligion       Field = "religion"
	FieldSex            Field = "sex"
	FieldRace           Field = "race"
)

// columns maps tool-path field names to storage columns.
var columns = map[Field]string{
	FieldAllergies:      "allergies",
	FieldConditions:     "conditions",
	FieldMeatChoice:     "meat_choice",
	FieldFoodExclusions: "food_exclusions",
	FieldReligion:       "religion",
	FieldSex:            "sex",
	FieldRace:           "race",
}

// ValidField reports whether name is an updatable field.
func ValidField(name string) bool {
	_, ok := columns[Field(name)]
	return ok
}

// IsListField reports whether f holds a comma-joined ordered set.
func (f Field) IsListField() bool {
	switch f {
	case FieldAllergies, FieldConditions, FieldFoodExclusions:
		return true
	}
	return false
}

// Column returns the storage column for f, or an error for unknown fields.
func (f Field) Column() (string, error) {
	col, ok := columns[f]
	if !ok {
		return "", ErrUnknownField
	}
	return col, nil
}

// Value returns the current stored value of field f on p.
func (p *Profile) Value(f Field) string {
	switch f {
	case FieldAllergies:
		return p.Allergies
	case FieldConditions:
		return p.Conditions
	case FieldFoodExclusions:
		return p.FoodExclusions
	case FieldMeatChoice:
		return p.MeatChoice
	case FieldReligion:
		return p.Religion
	case FieldSex:
		return p.Sex
	case FieldRace:
		return p.Race
	}
	return ""
}

// NormalizeSex maps free-text sex values onto the store's enum.
// Empty or unrecognized values become SexOther.
func NormalizeSex(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SexMale:
		return SexMale
	case SexFemale:
		return SexFemale
	default:
		return SexOther
	}
}
