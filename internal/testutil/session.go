package testutil

// FixedSessionGenerator returns the same session id every time.
//
// A journal written with a FixedSessionGenerator and a DeterministicClock
// is byte-identical across runs of the same scenario.
type FixedSessionGenerator struct {
	id string
}

// NewFixedSessionGenerator creates a generator. An empty id becomes
// "test-session-default".
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	if id == "" {
		id = "test-session-default"
	}
	return &FixedSessionGenerator{id: id}
}

// Generate returns the fixed session id.
//
// Implements prevalence.SessionGenerator.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}
