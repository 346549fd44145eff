package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"roomchat/internal/models"
	"roomchat/internal/observability"
	"roomchat/internal/repositories"
)

const defaultHistoryLimit = 100

type handlerFunc func(ctx context.Context, sess Session, data json.RawMessage) ([]Delivery, error)

// Router dispatches inbound events for a connection and returns the
// deliveries they produce. It owns the join/leave sequences; message
// mutations are delegated to the Reconciler.
type Router struct {
	registry     *Registry
	reconciler   *Reconciler
	messages     repositories.MessageRepository
	rooms        repositories.RoomRepository
	historyLimit int64
	log          *zap.Logger
	now          func() time.Time
	handlers     map[string]handlerFunc
}

// NewRouter wires the dispatch table. historyLimit <= 0 uses 100.
func NewRouter(registry *Registry, reconciler *Reconciler, messages repositories.MessageRepository, rooms repositories.RoomRepository, historyLimit int64, log *zap.Logger) *Router {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	r := &Router{
		registry:     registry,
		reconciler:   reconciler,
		messages:     messages,
		rooms:        rooms,
		historyLimit: historyLimit,
		log:          log,
		now:          time.Now,
	}
	r.handlers = map[string]handlerFunc{
		models.EventLogin:              r.handleLogin,
		models.EventJoin:               r.handleJoin,
		models.EventSendMessage:        r.handleSendMessage,
		models.EventSendPrivateMessage: r.handleSendPrivateMessage,
		models.EventAddReaction:        r.handleAddReaction,
		models.EventEditMessage:        r.handleEditMessage,
		models.EventDeleteMessage:      r.handleDeleteMessage,
		models.EventMarkAsRead:         r.handleMarkAsRead,
		models.EventTyping:             r.handleTyping,
		models.EventGetRoomInfo:        r.handleGetRoomInfo,
	}
	return r
}

// Connect registers a new transport connection.
func (r *Router) Connect(connID string) Session {
	return r.registry.Connect(connID)
}

// Dispatch runs the handler for in. Failures become an error event for the
// originating connection only.
func (r *Router) Dispatch(ctx context.Context, connID string, in models.Inbound) []Delivery {
	sess, ok := r.registry.Session(connID)
	if !ok {
		return nil
	}
	handler, ok := r.handlers[in.Event]
	if !ok {
		observability.IncInboundEvent("unknown", "invalid")
		return []Delivery{errorDelivery(connID, "Unknown event")}
	}

	ctx, span := otel.Tracer("roomchat/chat").Start(ctx, "chat."+in.Event)
	defer span.End()
	span.SetAttributes(
		attribute.String("conn_id", connID),
		attribute.String("room_id", sess.RoomID()),
		attribute.String("session_state", sess.State().String()),
	)

	deliveries, err := handler(ctx, sess, in.Data)
	observability.IncInboundEvent(in.Event, outcome(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logFailure(sess, in.Event, err)
		return append(deliveries, errorDelivery(connID, UserMessage(err)))
	}
	return deliveries
}

// Disconnect drops the connection: offline status to everyone, then the
// leave sequence for its room. No offline status is sent for a name that
// another connection has since logged in with.
func (r *Router) Disconnect(ctx context.Context, connID string) []Delivery {
	sess, ok := r.registry.Remove(connID)
	if !ok {
		return nil
	}
	r.log.Debug("connection closed",
		zap.String("conn_id", connID),
		zap.String("username", sess.Username()),
		zap.Stringer("state", sess.State()),
		zap.Duration("session", time.Since(sess.ConnectedAt())),
	)
	var out []Delivery
	if sess.Username() != "" && !sess.NameTaken {
		out = append(out, deliver(r.registry.Conns(), models.EventUserStatus,
			[]models.UserStatus{{Username: sess.Username(), Online: false}}))
	}
	if sess.RoomID() != "" {
		out = append(out, r.leaveNotices(ctx, sess.RoomID(), sess.Username(), r.now())...)
		observability.SetActiveRooms(r.registry.ActiveRooms())
	}
	return out
}

func (r *Router) logFailure(sess Session, event string, err error) {
	fields := []zap.Field{
		zap.String("conn_id", sess.ConnID()),
		zap.String("username", sess.Username()),
		zap.String("event", event),
		zap.Error(err),
	}
	if errors.Is(err, ErrStoreUnavailable) {
		r.log.Error("chat event failed", fields...)
		return
	}
	r.log.Info("chat event rejected", fields...)
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return newError(ErrValidation, "Missing payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &Error{Kind: ErrValidation, Message: "Invalid payload", Err: err}
	}
	return nil
}

func (r *Router) handleLogin(ctx context.Context, sess Session, data json.RawMessage) ([]Delivery, error) {
	var username string
	if err := decode(data, &username); err != nil {
		return nil, err
	}
	if username == "" {
		return nil, newError(ErrValidation, "Username is required")
	}
	statuses, ok := r.registry.Login(sess.ConnID(), username)
	if !ok {
		return nil, nil
	}
	return []Delivery{deliver(r.registry.Conns(), models.EventUserStatus, statuses)}, nil
}

func (r *Router) handleJoin(ctx context.Context, sess Session, data json.RawMessage) ([]Delivery, error) {
	var req models.JoinRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return r.join(ctx, sess, req)
}

func (r *Router) handleSendMessage(ctx context.Context, sess Session, data json.RawMessage) ([]Delivery, error) {
	var text string
	if err := decode(data, &text); err != nil {
		return nil, err
	}
	return r.reconciler.SendRoomMessage(ctx, sess, text)
}

func (r *Router) handleSendPrivateMessage(ctx context.Context, sess Session, data json.RawMessage) ([]Delivery, error) {
	var req models.PrivateMessageRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	text := req.Message
	if text == "" {
		text = req.Text
	}
	return r.reconciler.SendPrivateMessage(ctx, sess, req.Recipient, text)
}

func (r *Router) handleAddReaction(ctx context.Context, sess Session, data json.RawMessage) ([]Delivery, error) {
	var req models.ReactionRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return r.reconciler.React(ctx, sess, req.MessageID, req.Emoji)
}

func (r *Router) handleEditMessage(ctx context.Context, sess Session, data json.RawMessage) ([]Delivery, error) {
	var req models.EditRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return r.reconciler.Edit(ctx, sess, req.MessageID, req.NewText)
}

func (r *Router) handleDeleteMessage(ctx context.Context, sess Session, data json.RawMessage) ([]Delivery, error) {
	var req models.DeleteRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return r.reconciler.Delete(ctx, sess, req.MessageID)
}

func (r *Router) handleMarkAsRead(ctx context.Context, sess Session, data json.RawMessage) ([]Delivery, error) {
	var req models.MarkReadRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return r.reconciler.MarkRead(ctx, sess, req.MessageIDs)
}

func (r *Router) handleTyping(ctx context.Context, sess Session, data json.RawMessage) ([]Delivery, error) {
	var typing bool
	if err := decode(data, &typing); err != nil {
		return nil, err
	}
	if sess.RoomID() == "" {
		return nil, nil
	}
	recipients := r.registry.roomExcept(sess.RoomID(), sess.ConnID())
	if len(recipients) == 0 {
		return nil, nil
	}
	return []Delivery{deliver(recipients, models.EventUserTyping,
		models.TypingNotice{User: sess.Username(), IsTyping: typing})}, nil
}

func (r *Router) handleGetRoomInfo(ctx context.Context, sess Session, data json.RawMessage) ([]Delivery, error) {
	var roomID string
	if err := decode(data, &roomID); err != nil {
		return nil, err
	}
	exists := true
	if _, err := r.rooms.FindRoom(ctx, roomID); err != nil {
		if !errors.Is(err, repositories.ErrRoomNotFound) {
			observability.IncStoreError("find_room")
			return nil, &Error{Kind: ErrStoreUnavailable, Message: "Error getting room info", Err: err}
		}
		exists = false
	}
	return []Delivery{deliver([]string{sess.ConnID()}, models.EventRoomExists, exists)}, nil
}
