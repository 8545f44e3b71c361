package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "veristay/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseResidentID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseResidentID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseLeaseID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseResidentID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, ResidentID(validUUID), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety between ID
// kinds. If this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	residentID := ResidentID(uuid.New())
	leaseID := LeaseID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ ResidentID = leaseID   // compile error
	// var _ LeaseID = residentID   // compile error

	assert.NotEqual(t, uuid.UUID(residentID), uuid.UUID(leaseID))
}

func TestCents(t *testing.T) {
	t.Run("formats dollars", func(t *testing.T) {
		assert.Equal(t, "$500.00", Cents(50000).String())
		assert.Equal(t, "$0.40", Cents(40).String())
		assert.Equal(t, "-$2.00", Cents(-200).String())
	})

	t.Run("abs and max", func(t *testing.T) {
		assert.Equal(t, Cents(200), Cents(-200).Abs())
		assert.Equal(t, Cents(5000000), Max(Cents(4800000), Cents(5000000)))
	})
}
