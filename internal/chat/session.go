package chat

import "time"

// SessionState is the lifecycle stage of a connection.
type SessionState int

const (
	// StateConnected has a transport but no identity yet.
	StateConnected SessionState = iota
	// StateIdentified has logged in or joined with a username.
	StateIdentified
	// StateInRoom is a member of exactly one room.
	StateInRoom
)

func (s SessionState) String() string {
	switch s {
	case StateIdentified:
		return "identified"
	case StateInRoom:
		return "in_room"
	default:
		return "connected"
	}
}

// Session is the per-connection state for one physical connection. The
// Registry owns the live copy; callers get value snapshots.
type Session struct {
	connID      string
	username    string
	roomID      string
	connectedAt time.Time
}

func (s Session) ConnID() string         { return s.connID }
func (s Session) Username() string       { return s.username }
func (s Session) RoomID() string         { return s.roomID }
func (s Session) ConnectedAt() time.Time { return s.connectedAt }

func (s Session) State() SessionState {
	switch {
	case s.roomID != "":
		return StateInRoom
	case s.username != "":
		return StateIdentified
	default:
		return StateConnected
	}
}
