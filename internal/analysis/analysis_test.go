package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchName(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		assert.True(t, MatchName("Dana Okafor", "Dana Okafor"))
	})

	t.Run("case and ordering ignored", func(t *testing.T) {
		assert.True(t, MatchName("Dana Okafor", "OKAFOR, DANA M"))
	})

	t.Run("document may carry extra tokens", func(t *testing.T) {
		assert.True(t, MatchName("Dana Okafor", "Dana Marie Okafor Jr"))
	})

	t.Run("missing resident token fails", func(t *testing.T) {
		assert.False(t, MatchName("Dana Okafor", "Dana Smith"))
	})

	t.Run("partial token is not a match", func(t *testing.T) {
		assert.False(t, MatchName("Dana Okafor", "Dan Okafor"))
	})

	t.Run("empty resident name never matches", func(t *testing.T) {
		assert.False(t, MatchName("", "Dana Okafor"))
	})
}
