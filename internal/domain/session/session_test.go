package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	s := New("u1")

	assert.Equal(t, "u1", s.IdentityID)
	assert.Equal(t, StateDisconnected, s.ConnState)
	assert.True(t, s.HasRoom("u1"), "own room joined on login")
	assert.Equal(t, []string{"u1"}, s.Rooms())
}

func TestJoinRoom_Idempotent(t *testing.T) {
	s := New("u1")

	s.JoinRoom("u2")
	s.JoinRoom("u2")
	s.JoinRoom("")

	assert.Equal(t, []string{"u1", "u2"}, s.Rooms())
}

func TestLeaveRoom(t *testing.T) {
	s := New("u1")
	s.JoinRoom("u2")

	s.LeaveRoom("u2")

	assert.False(t, s.HasRoom("u2"))
	assert.Equal(t, []string{"u1"}, s.Rooms())
}

func TestRooms_ReturnsCopy(t *testing.T) {
	s := New("u1")
	rooms := s.Rooms()
	rooms[0] = "mutated"

	assert.Equal(t, []string{"u1"}, s.Rooms())
}
