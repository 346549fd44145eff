package chat

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"roomchat/internal/models"
	"roomchat/internal/observability"
)

// join moves the connection into req.RoomID. The room is upserted before
// membership changes so that a store failure leaves nothing to undo; later
// failures restore the previous membership. Old-room notices are emitted
// only after the join has succeeded.
func (r *Router) join(ctx context.Context, sess Session, req models.JoinRequest) ([]Delivery, error) {
	if req.Username == "" || req.RoomID == "" {
		return nil, newError(ErrValidation, "Username and room id are required")
	}
	connID := sess.ConnID()
	now := r.now()

	if _, err := r.rooms.UpsertRoom(ctx, req.RoomID, models.RoomPatch{LastActivity: now}); err != nil {
		observability.IncStoreError("upsert_room")
		return nil, &Error{Kind: ErrStoreUnavailable, Message: "Error joining room", Err: err}
	}

	ticket, ok := r.registry.Switch(connID, req.Username, req.RoomID)
	if !ok {
		return nil, nil
	}

	joined := &models.Message{
		RoomID:    req.RoomID,
		Type:      models.MessageTypeSystem,
		Text:      fmt.Sprintf("%s has joined the room", req.Username),
		Timestamp: now,
	}
	if _, err := r.messages.InsertMessage(ctx, joined); err != nil {
		r.registry.Restore(connID, req.RoomID, ticket)
		observability.IncStoreError("insert_message")
		return nil, &Error{Kind: ErrStoreUnavailable, Message: "Error joining room", Err: err}
	}

	history, err := r.history(ctx, req.Username, req.RoomID)
	if err != nil {
		r.registry.Restore(connID, req.RoomID, ticket)
		observability.IncStoreError("find_messages")
		return nil, &Error{Kind: ErrStoreUnavailable, Message: "Error joining room", Err: err}
	}

	r.log.Info("user joined room",
		zap.String("conn_id", connID),
		zap.String("username", req.Username),
		zap.String("room_id", req.RoomID),
	)

	var out []Delivery
	if ticket.leftPrev {
		out = append(out, r.leaveNotices(ctx, ticket.prevRoom, ticket.prevUsername, now)...)
	}
	out = append(out,
		deliver(r.registry.RoomConns(req.RoomID), models.EventMessage, *joined),
		deliver([]string{connID}, models.EventRoomHistory, history),
		r.userList(req.RoomID),
	)
	observability.SetActiveRooms(r.registry.ActiveRooms())
	return out, nil
}

// history returns the room's messages plus private messages between
// username and the room's current members, oldest first.
func (r *Router) history(ctx context.Context, username, roomID string) ([]models.Message, error) {
	members := r.registry.RoomUsernames(roomID)
	filter := models.MessageFilter{Or: []models.MessageFilter{
		{RoomID: roomID},
		{Type: models.MessageTypePrivate, Sender: username, Recipients: members},
		{Type: models.MessageTypePrivate, Recipient: username, Senders: members},
	}}
	msgs, err := r.messages.FindMessages(ctx, filter, models.FindOptions{Descending: true, Limit: r.historyLimit})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// leaveNotices persists the "has left" system message for roomID and
// returns it with the updated user list for the remaining members. A store
// failure is logged and the notices are still sent.
func (r *Router) leaveNotices(ctx context.Context, roomID, username string, now time.Time) []Delivery {
	left := &models.Message{
		RoomID:    roomID,
		Type:      models.MessageTypeSystem,
		Text:      fmt.Sprintf("%s has left the room", username),
		Timestamp: now,
	}
	if _, err := r.messages.InsertMessage(ctx, left); err != nil {
		observability.IncStoreError("insert_message")
		r.log.Warn("failed to persist leave message",
			zap.String("room_id", roomID),
			zap.String("username", username),
			zap.Error(err),
		)
	}
	conns := r.registry.RoomConns(roomID)
	if len(conns) == 0 {
		return nil
	}
	return []Delivery{
		deliver(conns, models.EventMessage, *left),
		r.userList(roomID),
	}
}

func (r *Router) userList(roomID string) Delivery {
	return deliver(r.registry.RoomConns(roomID), models.EventUserList, r.registry.RoomUsernames(roomID))
}
