package chat

import (
	"sort"
	"sync"
	"time"

	"roomchat/internal/models"
)

// Registry is the process-wide presence registry and room membership table.
// Every method is one critical section under mu and never calls the store.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	presence map[string]string
	rooms    map[string]map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		presence: make(map[string]string),
		rooms:    make(map[string]map[string]string),
	}
}

// Connect registers a new connection.
func (r *Registry) Connect(connID string) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := &Session{connID: connID, connectedAt: time.Now()}
	r.sessions[connID] = sess
	return *sess
}

// Session returns a snapshot of the connection's session.
func (r *Registry) Session(connID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Login maps username to connID, replacing any mapping the name had to
// another connection, and returns all current presence entries.
func (r *Registry) Login(connID, username string) ([]models.UserStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}
	if sess.username != "" && sess.username != username && r.presence[sess.username] == connID {
		delete(r.presence, sess.username)
	}
	sess.username = username
	r.presence[username] = connID

	statuses := make([]models.UserStatus, 0, len(r.presence))
	for name := range r.presence {
		statuses = append(statuses, models.UserStatus{Username: name, Online: true})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Username < statuses[j].Username })
	return statuses, true
}

// joinTicket remembers what Switch replaced so a failed join can be undone.
type joinTicket struct {
	prevRoom     string
	prevUsername string
	leftPrev     bool
}

// Switch moves connID into roomID as username, leaving its previous room
// first. The remove and the add happen in one critical section.
func (r *Registry) Switch(connID, username, roomID string) (joinTicket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return joinTicket{}, false
	}
	ticket := joinTicket{prevRoom: sess.roomID, prevUsername: sess.username}
	if sess.roomID != "" && sess.roomID != roomID {
		r.removeMember(sess.roomID, connID)
		ticket.leftPrev = true
	}
	r.addMember(roomID, connID, username)
	sess.roomID = roomID
	sess.username = username
	return ticket, true
}

// Restore undoes a Switch into roomID.
func (r *Registry) Restore(connID, roomID string, ticket joinTicket) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return
	}
	switch {
	case ticket.prevRoom == roomID:
		r.addMember(roomID, connID, ticket.prevUsername)
	default:
		r.removeMember(roomID, connID)
		if ticket.leftPrev {
			r.addMember(ticket.prevRoom, connID, ticket.prevUsername)
		}
	}
	sess.roomID = ticket.prevRoom
	sess.username = ticket.prevUsername
}

// Departure is the last state of a removed connection. NameTaken is set
// when a newer connection logged in under the same username.
type Departure struct {
	Session
	NameTaken bool
}

// Remove drops the connection with its presence entry and membership.
func (r *Registry) Remove(connID string) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return Departure{}, false
	}
	delete(r.sessions, connID)
	out := Departure{Session: *sess}
	if sess.username != "" {
		switch owner, mapped := r.presence[sess.username]; {
		case mapped && owner == connID:
			delete(r.presence, sess.username)
		case mapped:
			out.NameTaken = true
		}
	}
	if sess.roomID != "" {
		r.removeMember(sess.roomID, connID)
	}
	return out, true
}

// RoomConns returns the connections currently joined to roomID.
func (r *Registry) RoomConns(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	conns := make([]string, 0, len(members))
	for connID := range members {
		conns = append(conns, connID)
	}
	sort.Strings(conns)
	return conns
}

// RoomUsernames returns the usernames of the room's members, sorted.
func (r *Registry) RoomUsernames(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	names := make([]string, 0, len(members))
	for _, name := range members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConnForUser returns the connection currently mapped to username.
func (r *Registry) ConnForUser(username string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID, ok := r.presence[username]
	return connID, ok
}

// Conns returns every live connection.
func (r *Registry) Conns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := make([]string, 0, len(r.sessions))
	for connID := range r.sessions {
		conns = append(conns, connID)
	}
	sort.Strings(conns)
	return conns
}

// ActiveRooms counts rooms with at least one member.
func (r *Registry) ActiveRooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Registry) addMember(roomID, connID, username string) {
	if _, ok := r.rooms[roomID]; !ok {
		r.rooms[roomID] = make(map[string]string)
	}
	r.rooms[roomID][connID] = username
}

func (r *Registry) removeMember(roomID, connID string) {
	if members, ok := r.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
}
