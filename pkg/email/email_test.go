package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGreetingName(t *testing.T) {
	t.Run("dotted local part becomes full name", func(t *testing.T) {
		assert.Equal(t, "Dana Okafor", GreetingName("dana.okafor@example.org"))
	})

	t.Run("single word is capitalized", func(t *testing.T) {
		assert.Equal(t, "Marisol", GreetingName("marisol@example.org"))
	})

	t.Run("plus tags and digits are dropped", func(t *testing.T) {
		assert.Equal(t, "Dana", GreetingName("dana+housing@example.org"))
		assert.Equal(t, "there", GreetingName("12345@example.org"))
	})

	t.Run("empty address falls back", func(t *testing.T) {
		assert.Equal(t, "there", GreetingName(""))
	})
}
