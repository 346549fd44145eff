package chat

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"roomchat/internal/models"
	"roomchat/internal/observability"
	"roomchat/internal/repositories"
)

const maxEditAttempts = 3

// Auditor records security-relevant actions.
type Auditor interface {
	Emit(ctx context.Context, level, text, requestID string, username *string)
}

// Reconciler applies message mutations to the store and computes their
// fan-out. Preconditions are checked against the record fetched by the call.
type Reconciler struct {
	registry *Registry
	messages repositories.MessageRepository
	rooms    repositories.RoomRepository
	audit    Auditor
	log      *zap.Logger
	now      func() time.Time
}

func NewReconciler(registry *Registry, messages repositories.MessageRepository, rooms repositories.RoomRepository, audit Auditor, log *zap.Logger) *Reconciler {
	return &Reconciler{
		registry: registry,
		messages: messages,
		rooms:    rooms,
		audit:    audit,
		log:      log,
		now:      time.Now,
	}
}

// SendRoomMessage persists a user message in the session's room and fans it
// out to every member, the sender included.
func (r *Reconciler) SendRoomMessage(ctx context.Context, sess Session, text string) ([]Delivery, error) {
	if sess.RoomID() == "" {
		return nil, newError(ErrValidation, "Join a room before sending messages")
	}
	if text == "" {
		return nil, newError(ErrValidation, "Message text is required")
	}
	msg := &models.Message{
		RoomID:    sess.RoomID(),
		Type:      models.MessageTypeUser,
		Sender:    sess.Username(),
		Text:      text,
		Timestamp: r.now(),
	}
	return r.sendToRoom(ctx, msg, "Error sending message")
}

// SendFileMessage posts a descriptor for an already stored file into roomID.
func (r *Reconciler) SendFileMessage(ctx context.Context, roomID, username string, file models.FileInfo) (models.Message, []Delivery, error) {
	if roomID == "" || username == "" {
		return models.Message{}, nil, newError(ErrValidation, "Room id and username are required")
	}
	if file.URL == "" || file.Name == "" {
		return models.Message{}, nil, newError(ErrValidation, "File url and name are required")
	}
	msg := &models.Message{
		RoomID:    roomID,
		Type:      models.MessageTypeFile,
		Sender:    username,
		Text:      "Shared a file: " + file.Name,
		Timestamp: r.now(),
		FileURL:   file.URL,
		FileName:  file.Name,
		FileType:  file.MimeType,
		FileSize:  file.Size,
	}
	deliveries, err := r.sendToRoom(ctx, msg, "Error sharing file")
	if err != nil {
		return models.Message{}, nil, err
	}
	return *msg, deliveries, nil
}

func (r *Reconciler) sendToRoom(ctx context.Context, msg *models.Message, failure string) ([]Delivery, error) {
	if _, err := r.messages.InsertMessage(ctx, msg); err != nil {
		observability.IncStoreError("insert_message")
		return nil, &Error{Kind: ErrStoreUnavailable, Message: failure, Err: err}
	}
	if err := r.rooms.TouchRoom(ctx, msg.RoomID, msg.Timestamp); err != nil && !errors.Is(err, repositories.ErrRoomNotFound) {
		observability.IncStoreError("touch_room")
		r.log.Warn("failed to touch room activity", zap.String("room_id", msg.RoomID), zap.Error(err))
	}
	r.publish(ctx, "created", *msg)
	return []Delivery{deliver(r.registry.RoomConns(msg.RoomID), models.EventMessage, *msg)}, nil
}

// SendPrivateMessage persists a private message and delivers it to the
// sender's connection and the recipient's, if present.
func (r *Reconciler) SendPrivateMessage(ctx context.Context, sess Session, recipient, text string) ([]Delivery, error) {
	if sess.Username() == "" {
		return nil, newError(ErrValidation, "Log in before sending private messages")
	}
	if recipient == "" {
		return nil, newError(ErrValidation, "Recipient is required")
	}
	if text == "" {
		return nil, newError(ErrValidation, "Message text is required")
	}
	msg := &models.Message{
		Type:      models.MessageTypePrivate,
		Sender:    sess.Username(),
		Recipient: recipient,
		Text:      text,
		Timestamp: r.now(),
	}
	if _, err := r.messages.InsertMessage(ctx, msg); err != nil {
		observability.IncStoreError("insert_message")
		return nil, &Error{Kind: ErrStoreUnavailable, Message: "Error sending private message", Err: err}
	}
	r.publish(ctx, "created", *msg)

	recipients := []string{sess.ConnID()}
	if connID, ok := r.registry.ConnForUser(recipient); ok {
		recipients = appendUnique(recipients, connID)
	}
	return []Delivery{deliver(recipients, models.EventPrivateMessage, *msg)}, nil
}

// React toggles the (user, emoji) reaction on a message. The add only
// applies while the pair is absent and the remove pulls only that pair.
func (r *Reconciler) React(ctx context.Context, sess Session, messageID, emoji string) ([]Delivery, error) {
	if sess.Username() == "" {
		return nil, newError(ErrValidation, "Username is required")
	}
	if messageID == "" || emoji == "" {
		return nil, newError(ErrValidation, "Message id and emoji are required")
	}
	msg, err := r.load(ctx, messageID, "Error adding reaction")
	if err != nil {
		return nil, err
	}

	key := models.ReactionKey{User: sess.Username(), Emoji: emoji}
	if msg.HasReaction(key.User, key.Emoji) {
		err = r.messages.UpdateMessage(ctx, msg.ID, models.MessagePatch{PullReaction: &key})
	} else {
		reaction := models.Reaction{Emoji: emoji, User: key.User, AddedAt: r.now()}
		filter := models.MessageFilter{IDs: []string{msg.ID}, WithoutReaction: &key}
		_, err = r.messages.UpdateManyMessages(ctx, filter, models.MessagePatch{PushReaction: &reaction})
	}
	if err != nil {
		observability.IncStoreError("update_message")
		return nil, storeFailure("Error adding reaction", err)
	}
	if msg, err = r.load(ctx, msg.ID, "Error adding reaction"); err != nil {
		return nil, err
	}

	update := models.ReactionUpdate{MessageID: msg.ID, Reactions: msg.Reactions}
	r.publish(ctx, "reaction", update)
	return []Delivery{deliver(r.mutationRecipients(sess, msg), models.EventMessageReaction, update)}, nil
}

// Edit replaces the body of the requester's own message, keeping the
// previous body in the edit history. The write only applies to the revision
// that was read; a concurrent change makes it reload and try again.
func (r *Reconciler) Edit(ctx context.Context, sess Session, messageID, newText string) ([]Delivery, error) {
	if messageID == "" || newText == "" {
		return nil, newError(ErrValidation, "Message id and new text are required")
	}
	for attempt := 0; attempt < maxEditAttempts; attempt++ {
		msg, err := r.load(ctx, messageID, "Error editing message")
		if err != nil {
			return nil, err
		}
		if sess.Username() == "" || msg.Sender != sess.Username() {
			r.forbidden(ctx, sess, "edit", msg.ID)
			return nil, newError(ErrForbidden, "You can only edit your own messages")
		}

		prevText, edits := msg.Text, len(msg.EditHistory)
		edited := true
		filter := models.MessageFilter{IDs: []string{msg.ID}, Text: &prevText, EditCount: &edits}
		patch := models.MessagePatch{
			Text:     &newText,
			IsEdited: &edited,
			PushEdit: &models.Edit{Text: prevText, EditedAt: r.now()},
		}
		n, err := r.messages.UpdateManyMessages(ctx, filter, patch)
		if err != nil {
			observability.IncStoreError("update_message")
			return nil, storeFailure("Error editing message", err)
		}
		if n == 0 {
			continue
		}

		update := models.EditUpdate{MessageID: msg.ID, Text: newText, IsEdited: true}
		r.publish(ctx, "edited", update)
		return []Delivery{deliver(r.mutationRecipients(sess, msg), models.EventMessageEdited, update)}, nil
	}
	r.log.Warn("edit lost revision race", zap.String("message_id", messageID), zap.Int("attempts", maxEditAttempts))
	return nil, newError(ErrConflict, "Message was changed by someone else, try again")
}

// Delete tombstones the requester's own message.
func (r *Reconciler) Delete(ctx context.Context, sess Session, messageID string) ([]Delivery, error) {
	if messageID == "" {
		return nil, newError(ErrValidation, "Message id is required")
	}
	msg, err := r.load(ctx, messageID, "Error deleting message")
	if err != nil {
		return nil, err
	}
	if sess.Username() == "" || msg.Sender != sess.Username() {
		r.forbidden(ctx, sess, "delete", msg.ID)
		return nil, newError(ErrForbidden, "You can only delete your own messages")
	}

	text := models.DeletedText
	deleted := true
	if err := r.messages.UpdateMessage(ctx, msg.ID, models.MessagePatch{Text: &text, IsDeleted: &deleted}); err != nil {
		observability.IncStoreError("update_message")
		return nil, storeFailure("Error deleting message", err)
	}

	update := models.DeleteUpdate{MessageID: msg.ID}
	r.publish(ctx, "deleted", update)
	r.emitAudit(ctx, sess, "INFO", "message "+msg.ID+" deleted")
	return []Delivery{deliver(r.mutationRecipients(sess, msg), models.EventMessageDeleted, update)}, nil
}

// MarkRead adds a read receipt for the session's user to every listed
// message that lacks one. Unknown ids are skipped.
func (r *Reconciler) MarkRead(ctx context.Context, sess Session, messageIDs []string) ([]Delivery, error) {
	if sess.Username() == "" {
		return nil, newError(ErrValidation, "Username is required")
	}
	ids := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		if id != "" {
			ids = appendUnique(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	receipt := models.ReadReceipt{User: sess.Username(), ReadAt: r.now()}
	filter := models.MessageFilter{IDs: ids, NotReadBy: sess.Username()}
	if _, err := r.messages.UpdateManyMessages(ctx, filter, models.MessagePatch{PushReadBy: &receipt}); err != nil {
		observability.IncStoreError("update_messages")
		return nil, storeFailure("Error marking messages as read", err)
	}
	msgs, err := r.messages.FindMessages(ctx, models.MessageFilter{IDs: ids}, models.FindOptions{})
	if err != nil {
		observability.IncStoreError("find_messages")
		return nil, storeFailure("Error marking messages as read", err)
	}

	deliveries := make([]Delivery, 0, len(msgs))
	for _, msg := range msgs {
		update := models.ReadUpdate{MessageID: msg.ID, ReadBy: msg.ReadBy}
		r.publish(ctx, "read", update)
		deliveries = append(deliveries, deliver(r.mutationRecipients(sess, msg), models.EventMessageRead, update))
	}
	return deliveries, nil
}

func (r *Reconciler) load(ctx context.Context, messageID, failure string) (models.Message, error) {
	msg, err := r.messages.FindMessageByID(ctx, messageID)
	if err != nil {
		if !errors.Is(err, repositories.ErrMessageNotFound) {
			observability.IncStoreError("find_message")
		}
		return models.Message{}, storeFailure(failure, err)
	}
	return msg, nil
}

// mutationRecipients applies the message fan-out rule. For a private
// message the requester's own connection is included when they are a party
// to it, even if they never logged in.
func (r *Reconciler) mutationRecipients(sess Session, msg models.Message) []string {
	recipients := r.registry.messageRecipients(msg)
	if msg.IsPrivate() && (sess.Username() == msg.Sender || sess.Username() == msg.Recipient) {
		recipients = appendUnique(recipients, sess.ConnID())
	}
	return recipients
}

func (r *Reconciler) forbidden(ctx context.Context, sess Session, action, messageID string) {
	r.log.Warn("forbidden message mutation",
		zap.String("conn_id", sess.ConnID()),
		zap.String("username", sess.Username()),
		zap.String("message_id", messageID),
		zap.String("event", action),
	)
	r.emitAudit(ctx, sess, "WARN", "forbidden "+action+" attempt on message "+messageID)
}

func (r *Reconciler) emitAudit(ctx context.Context, sess Session, level, text string) {
	if r.audit == nil {
		return
	}
	var username *string
	if name := sess.Username(); name != "" {
		username = &name
	}
	r.audit.Emit(ctx, level, text, observability.RequestIDFromContext(ctx), username)
}

func (r *Reconciler) publish(ctx context.Context, name string, payload any) {
	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	envelope := observability.EventEnvelope{
		EventType: "chat_events",
		EventName: "message_" + name,
		Payload:   payload,
	}
	headers := observability.BuildHeaders(observability.RequestIDFromContext(ctx), traceID)
	if err := observability.PublishEvent(ctx, "chat.message."+name, envelope, headers); err != nil {
		r.log.Warn("failed to publish chat event", zap.String("event", name), zap.Error(err))
	}
}
