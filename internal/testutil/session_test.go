package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedSessionGenerator(t *testing.T) {
	g := NewFixedSessionGenerator("s-1")
	assert.Equal(t, "s-1", g.Generate())
	assert.Equal(t, "s-1", g.Generate())
}

func TestFixedSessionGenerator_Default(t *testing.T) {
	assert.Equal(t, "test-session-default", NewFixedSessionGenerator("").Generate())
}
