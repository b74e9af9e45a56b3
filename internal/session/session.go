// Package session manages chat sessions and their conversation history.
//
// Each session belongs to one profile. Message history is stored as genkit
// message parts in JSONB, one row per message with a per-session sequence
// number. Which session is "active" for a profile is tracked in the
// key-value state store, not here.
package session

import (
	"errors"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
)

// TitleMaxLength is the maximum stored title length in runes.
const TitleMaxLength = 100

// DefaultTitle is used when a session is created without a title.
const DefaultTitle = "New Chat"

// Sentinel errors for session operations.
var (
	// ErrNotFound indicates the session does not exist.
	ErrNotFound = errors.New("session not found")
)

// Session is one conversation thread owned by a profile.
type Session struct {
	ID        uuid.UUID
	ProfileID uuid.UUID
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one stored conversation message.
type Message struct {
	ID             int64
	SessionID      uuid.UUID
	Role           string
	Content        []*ai.Part
	SequenceNumber int
	CreatedAt      time.Time
}

// TruncateTitle trims a title to TitleMaxLength runes, appending an ellipsis
// when it was cut.
func TruncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= TitleMaxLength {
		return title
	}
	return string(runes[:TitleMaxLength-3]) + "..."
}
