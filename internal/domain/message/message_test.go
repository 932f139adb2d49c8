package message

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOptimistic(t *testing.T) {
	m := NewOptimistic("u1", "u2", "J1", "", "hello", "", "")

	require.NotNil(t, m)
	assert.True(t, strings.HasPrefix(m.ID, "tmp-"))
	assert.NotEmpty(t, m.ClientRef)
	assert.Equal(t, "u1", m.SenderID)
	assert.Equal(t, "u2", m.ReceiverID)
	assert.Equal(t, "J1", m.JobID)
	assert.Equal(t, DeliveryOptimistic, m.DeliveryState)
	assert.True(t, m.IsOptimistic())
	assert.False(t, m.CreatedAt.IsZero())
}

func TestNewOptimistic_UniqueIdsPerSend(t *testing.T) {
	a := NewOptimistic("u1", "u2", "", "", "ok", "", "")
	b := NewOptimistic("u1", "u2", "", "", "ok", "", "")

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.ClientRef, b.ClientRef)
}

func TestMatchesEcho(t *testing.T) {
	base := NewOptimistic("u1", "u2", "J1", "", "hello", "http://f/1", "a.txt")

	t.Run("matching echo", func(t *testing.T) {
		echo := &Message{SenderID: "u1", Content: "hello", FileURL: "http://f/1", JobID: "J1"}
		assert.True(t, base.MatchesEcho(echo))
	})

	t.Run("different content", func(t *testing.T) {
		echo := &Message{SenderID: "u1", Content: "bye", FileURL: "http://f/1", JobID: "J1"}
		assert.False(t, base.MatchesEcho(echo))
	})

	t.Run("different sender", func(t *testing.T) {
		echo := &Message{SenderID: "u2", Content: "hello", FileURL: "http://f/1", JobID: "J1"}
		assert.False(t, base.MatchesEcho(echo))
	})

	t.Run("different job", func(t *testing.T) {
		echo := &Message{SenderID: "u1", Content: "hello", FileURL: "http://f/1", JobID: "J2"}
		assert.False(t, base.MatchesEcho(echo))
	})

	t.Run("already confirmed messages never match", func(t *testing.T) {
		confirmed := NewOptimistic("u1", "u2", "J1", "", "hello", "", "")
		confirmed.Confirm("m1", time.Now())
		echo := &Message{SenderID: "u1", Content: "hello", JobID: "J1"}
		assert.False(t, confirmed.MatchesEcho(echo))
	})
}

func TestConfirm(t *testing.T) {
	m := NewOptimistic("u1", "u2", "", "", "hello", "", "")
	localTime := m.CreatedAt
	serverTime := localTime.Add(2 * time.Second)

	m.Confirm("m42", serverTime)

	assert.Equal(t, "m42", m.ID)
	assert.Equal(t, serverTime, m.CreatedAt)
	assert.Equal(t, DeliveryConfirmed, m.DeliveryState)
}

func TestConfirm_ZeroServerTimeKeepsLocal(t *testing.T) {
	m := NewOptimistic("u1", "u2", "", "", "hello", "", "")
	localTime := m.CreatedAt

	m.Confirm("m42", time.Time{})

	assert.Equal(t, localTime, m.CreatedAt)
	assert.Equal(t, DeliveryConfirmed, m.DeliveryState)
}
