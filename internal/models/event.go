package models

import "encoding/json"

// Inbound is a client frame as read off the socket.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is a server frame written to a socket.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Inbound event names.
const (
	EventLogin              = "login"
	EventJoin               = "join"
	EventSendMessage        = "sendMessage"
	EventSendPrivateMessage = "sendPrivateMessage"
	EventAddReaction        = "addReaction"
	EventEditMessage        = "editMessage"
	EventDeleteMessage      = "deleteMessage"
	EventMarkAsRead         = "markAsRead"
	EventTyping             = "typing"
	EventGetRoomInfo        = "getRoomInfo"
)

// Outbound event names.
const (
	EventMessage         = "message"
	EventPrivateMessage  = "privateMessage"
	EventRoomHistory     = "roomHistory"
	EventUserList        = "userList"
	EventUserTyping      = "userTyping"
	EventUserStatus      = "userStatus"
	EventMessageReaction = "messageReaction"
	EventMessageEdited   = "messageEdited"
	EventMessageDeleted  = "messageDeleted"
	EventMessageRead     = "messageRead"
	EventRoomExists      = "roomExists"
	EventError           = "error"
)

type JoinRequest struct {
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
}

type PrivateMessageRequest struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
	Text      string `json:"text"`
}

type ReactionRequest struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type EditRequest struct {
	MessageID string `json:"messageId"`
	NewText   string `json:"newText"`
}

type DeleteRequest struct {
	MessageID string `json:"messageId"`
}

type MarkReadRequest struct {
	MessageIDs []string `json:"messageIds"`
}

// UserStatus is one entry of a userStatus broadcast.
type UserStatus struct {
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

type TypingNotice struct {
	User     string `json:"user"`
	IsTyping bool   `json:"isTyping"`
}

type ReactionUpdate struct {
	MessageID string     `json:"messageId"`
	Reactions []Reaction `json:"reactions"`
}

type EditUpdate struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
	IsEdited  bool   `json:"isEdited"`
}

type DeleteUpdate struct {
	MessageID string `json:"messageId"`
}

type ReadUpdate struct {
	MessageID string        `json:"messageId"`
	ReadBy    []ReadReceipt `json:"readBy"`
}

type ErrorNotice struct {
	Message string `json:"message"`
}
