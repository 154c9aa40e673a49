package store

import (
	"time"

	"github.com/google/uuid"
)

// Session identifies one bridge run in the journal.
type Session struct {
	ID        string
	StartedAt time.Time
	// Source is "serial" for a hardware run or "console" for typed tokens.
	Source   string
	Profile  string
	CRS      string
	Settings map[string]string
}

// SessionSummary is a session plus its dispatch count.
type SessionSummary struct {
	Session
	Dispatches int
}

// SessionGenerator generates unique session IDs.
type SessionGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session IDs.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string, falling back to a random UUID if the
// clock sequence cannot be read.
func (UUIDv7Generator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
