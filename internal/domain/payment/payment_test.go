package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAttempt(t *testing.T) {
	a := NewAttempt("J1", "R1", 5000, "card")

	assert.Equal(t, "J1", a.JobID)
	assert.Equal(t, "R1", a.Reference)
	assert.Equal(t, int64(5000), a.Amount)
	assert.Equal(t, StatusInitiated, a.Status)
	assert.False(t, a.IsTerminal())
	assert.False(t, a.CreatedAt.IsZero())
}

func TestAttempt_HappyPath(t *testing.T) {
	a := NewAttempt("J1", "R1", 5000, "card")

	require.NoError(t, a.AwaitVerification())
	assert.Equal(t, StatusAwaitingVerification, a.Status)

	require.NoError(t, a.Verify())
	assert.Equal(t, StatusVerified, a.Status)
	assert.True(t, a.IsTerminal())
}

func TestAttempt_FailFromEitherActiveState(t *testing.T) {
	t.Run("from initiated", func(t *testing.T) {
		a := NewAttempt("J1", "R1", 5000, "card")
		require.NoError(t, a.Fail())
		assert.Equal(t, StatusFailed, a.Status)
		assert.True(t, a.IsTerminal())
	})

	t.Run("from awaiting verification", func(t *testing.T) {
		a := NewAttempt("J1", "R1", 5000, "card")
		require.NoError(t, a.AwaitVerification())
		require.NoError(t, a.Fail())
		assert.Equal(t, StatusFailed, a.Status)
	})
}

func TestAttempt_TerminalStatesReject(t *testing.T) {
	t.Run("verified", func(t *testing.T) {
		a := NewAttempt("J1", "R1", 5000, "card")
		require.NoError(t, a.AwaitVerification())
		require.NoError(t, a.Verify())

		assert.ErrorIs(t, a.Fail(), ErrInvalidTransition)
		assert.ErrorIs(t, a.AwaitVerification(), ErrInvalidTransition)
		assert.Equal(t, StatusVerified, a.Status)
	})

	t.Run("failed", func(t *testing.T) {
		a := NewAttempt("J1", "R1", 5000, "card")
		require.NoError(t, a.Fail())

		assert.ErrorIs(t, a.Verify(), ErrInvalidTransition)
		assert.Equal(t, StatusFailed, a.Status)
	})
}

func TestAttempt_VerifyRequiresAwaitingVerification(t *testing.T) {
	a := NewAttempt("J1", "R1", 5000, "card")

	assert.ErrorIs(t, a.Verify(), ErrInvalidTransition)
	assert.Equal(t, StatusInitiated, a.Status)
}
