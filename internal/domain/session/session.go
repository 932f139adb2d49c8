package session

import "sort"

// ConnState represents the live-connection state of a session.
type ConnState string

const (
	StateDisconnected ConnState = "DISCONNECTED"
	StateConnecting   ConnState = "CONNECTING"
	StateConnected    ConnState = "CONNECTED"
	StateReconnecting ConnState = "RECONNECTING"
	// StateOffline is the terminal state entered once the reconnect budget
	// is exhausted. Only an explicit connect leaves it.
	StateOffline ConnState = "OFFLINE"
)

// Session represents one authenticated identity's live-connection state and
// room memberships. Exactly one live session exists per process; a connect
// for a different identity replaces it. Not safe for concurrent use; the
// connection manager serializes access.
type Session struct {
	IdentityID string
	ConnState  ConnState
	rooms      map[string]struct{}
}

// New creates a session in the disconnected state. The identity's own room
// is joined up front since every party listens on a room keyed by its id.
func New(identityID string) *Session {
	s := &Session{
		IdentityID: identityID,
		ConnState:  StateDisconnected,
		rooms:      map[string]struct{}{},
	}
	s.JoinRoom(identityID)
	return s
}

// JoinRoom records a room membership. Joining an already-joined room is a
// no-op, which keeps repeated rejoin-on-reconnect idempotent.
func (s *Session) JoinRoom(roomID string) {
	if roomID == "" {
		return
	}
	s.rooms[roomID] = struct{}{}
}

// LeaveRoom removes a room membership.
func (s *Session) LeaveRoom(roomID string) {
	delete(s.rooms, roomID)
}

// HasRoom reports membership of a room.
func (s *Session) HasRoom(roomID string) bool {
	_, ok := s.rooms[roomID]
	return ok
}

// Rooms returns a sorted copy of the current room memberships.
func (s *Session) Rooms() []string {
	out := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
