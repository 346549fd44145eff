package models

import "time"

// Room is the durable record of a chat room.
type Room struct {
	RoomID       string    `db:"room_id" bson:"_id" json:"roomId"`
	Name         string    `db:"name" bson:"name" json:"name"`
	CreatedAt    time.Time `db:"created_at" bson:"createdAt" json:"createdAt"`
	LastActivity time.Time `db:"last_activity" bson:"lastActivity" json:"lastActivity"`
	IsPrivate    bool      `db:"is_private" bson:"isPrivate" json:"isPrivate"`
}

// RoomPatch is applied by an upsert. An empty Name keeps the stored name
// (the room id for new rooms).
type RoomPatch struct {
	Name         string
	LastActivity time.Time
	IsPrivate    *bool
}
