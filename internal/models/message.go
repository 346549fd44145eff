package models

import "time"

// MessageType tags the variant of a stored message.
type MessageType string

const (
	MessageTypeSystem  MessageType = "system"
	MessageTypeUser    MessageType = "user"
	MessageTypeFile    MessageType = "file"
	MessageTypePrivate MessageType = "private"
)

// DeletedText replaces the body of a logically deleted message.
const DeletedText = "This message has been deleted"

// Message is a durable chat message. Room messages carry RoomID; private
// messages carry Recipient instead.
type Message struct {
	ID          string        `bson:"_id" json:"_id"`
	RoomID      string        `bson:"roomId,omitempty" json:"roomId,omitempty"`
	Type        MessageType   `bson:"type" json:"type"`
	Sender      string        `bson:"sender,omitempty" json:"sender,omitempty"`
	Recipient   string        `bson:"recipient,omitempty" json:"recipient,omitempty"`
	Text        string        `bson:"text" json:"text"`
	Timestamp   time.Time     `bson:"timestamp" json:"timestamp"`
	FileURL     string        `bson:"fileUrl,omitempty" json:"fileUrl,omitempty"`
	FileName    string        `bson:"fileName,omitempty" json:"fileName,omitempty"`
	FileType    string        `bson:"fileType,omitempty" json:"fileType,omitempty"`
	FileSize    int64         `bson:"fileSize,omitempty" json:"fileSize,omitempty"`
	IsEdited    bool          `bson:"isEdited" json:"isEdited"`
	IsDeleted   bool          `bson:"isDeleted" json:"isDeleted"`
	EditHistory []Edit        `bson:"editHistory" json:"editHistory"`
	Reactions   []Reaction    `bson:"reactions" json:"reactions"`
	ReadBy      []ReadReceipt `bson:"readBy" json:"readBy"`
}

// Edit is a prior body captured before an edit overwrote it.
type Edit struct {
	Text     string    `bson:"text" json:"text"`
	EditedAt time.Time `bson:"editedAt" json:"editedAt"`
}

// Reaction is one user's emoji on a message.
type Reaction struct {
	Emoji   string    `bson:"emoji" json:"emoji"`
	User    string    `bson:"user" json:"user"`
	AddedAt time.Time `bson:"addedAt" json:"addedAt"`
}

// ReadReceipt records that a user has seen a message.
type ReadReceipt struct {
	User   string    `bson:"user" json:"user"`
	ReadAt time.Time `bson:"readAt" json:"readAt"`
}

// FileInfo describes a file that was stored elsewhere and shared into a room.
type FileInfo struct {
	URL      string
	Name     string
	MimeType string
	Size     int64
}

// IsPrivate reports whether the message is addressed sender to recipient.
func (m Message) IsPrivate() bool {
	return m.Type == MessageTypePrivate
}

// HasReaction reports whether user already holds emoji on the message.
func (m Message) HasReaction(user, emoji string) bool {
	for _, r := range m.Reactions {
		if r.User == user && r.Emoji == emoji {
			return true
		}
	}
	return false
}

// IsReadBy reports whether user has a read receipt on the message.
func (m Message) IsReadBy(user string) bool {
	for _, r := range m.ReadBy {
		if r.User == user {
			return true
		}
	}
	return false
}

// MessageFilter selects messages. Set fields are combined with AND; Or adds
// alternative sub-filters of which at least one must match. Nil slices do not
// constrain, empty non-nil slices match nothing.
type MessageFilter struct {
	IDs        []string
	RoomID     string
	Type       MessageType
	Sender     string
	Senders    []string
	Recipient  string
	Recipients []string
	Before     time.Time
	After      time.Time
	NotReadBy  string
	Or         []MessageFilter

	// Text and EditCount pin the record to the revision a caller last read.
	Text            *string
	EditCount       *int
	WithoutReaction *ReactionKey
}

// ReactionKey identifies one user's emoji on a message.
type ReactionKey struct {
	User  string
	Emoji string
}

// FindOptions controls ordering and size of a message query. Messages are
// always ordered by timestamp.
type FindOptions struct {
	Descending bool
	Limit      int64
}

// MessagePatch lists the field changes for one update. Nil fields are left
// untouched. The Push fields append one element and PullReaction removes the
// matching reaction; list fields are never overwritten.
type MessagePatch struct {
	Text         *string
	IsEdited     *bool
	IsDeleted    *bool
	PushEdit     *Edit
	PushReaction *Reaction
	PullReaction *ReactionKey
	PushReadBy   *ReadReceipt
}
