package testutil

// FixedSessionGenerator returns the same journal session id every time.
//
// With it, the same test run produces byte-identical journal listings.
// Satisfies store.SessionGenerator.
type FixedSessionGenerator struct {
	id string
}

// NewFixedSessionGenerator creates a generator for id.
// An empty id becomes "test-session-default".
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	if id == "" {
		id = "test-session-default"
	}
	return &FixedSessionGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}
