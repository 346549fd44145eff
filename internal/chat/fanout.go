package chat

import "roomchat/internal/models"

// Delivery is one outbound event and the connections that should receive it.
type Delivery struct {
	Recipients []string
	Event      models.Event
}

func deliver(recipients []string, name string, data any) Delivery {
	return Delivery{Recipients: recipients, Event: models.Event{Event: name, Data: data}}
}

func errorDelivery(connID, message string) Delivery {
	return deliver([]string{connID}, models.EventError, models.ErrorNotice{Message: message})
}

// messageRecipients applies the fan-out rule for an event about msg: room
// members for room messages, sender and recipient for private ones.
func (r *Registry) messageRecipients(msg models.Message) []string {
	if msg.IsPrivate() {
		return r.userConns(msg.Sender, msg.Recipient)
	}
	return r.RoomConns(msg.RoomID)
}

// userConns maps usernames to their present connections, skipping absent
// users and duplicates.
func (r *Registry) userConns(usernames ...string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := make([]string, 0, len(usernames))
	for _, name := range usernames {
		if connID, ok := r.presence[name]; ok {
			conns = appendUnique(conns, connID)
		}
	}
	return conns
}

// roomExcept returns the room's members other than connID.
func (r *Registry) roomExcept(roomID, connID string) []string {
	conns := r.RoomConns(roomID)
	out := conns[:0]
	for _, c := range conns {
		if c != connID {
			out = append(out, c)
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, item := range list {
		if item == v {
			return list
		}
	}
	return append(list, v)
}
