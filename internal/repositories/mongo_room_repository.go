package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"roomchat/internal/models"
)

// MongoRoomRepo keeps rooms next to the messages when no SQL database is configured.
type MongoRoomRepo struct {
	coll *mongo.Collection
}

// NewMongoRoomRepo constructs a MongoRoomRepo over the rooms collection.
func NewMongoRoomRepo(db *mongo.Database) *MongoRoomRepo {
	return &MongoRoomRepo{coll: db.Collection("rooms")}
}

// UpsertRoom creates the room if absent and applies patch.
func (r *MongoRoomRepo) UpsertRoom(ctx context.Context, roomID string, patch models.RoomPatch) (models.Room, error) {
	now := time.Now()
	lastActivity := patch.LastActivity
	if lastActivity.IsZero() {
		lastActivity = now
	}

	set := bson.M{"lastActivity": lastActivity}
	onInsert := bson.M{"createdAt": now}
	if patch.Name != "" {
		set["name"] = patch.Name
	} else {
		onInsert["name"] = roomID
	}
	if patch.IsPrivate != nil {
		set["isPrivate"] = *patch.IsPrivate
	} else {
		onInsert["isPrivate"] = false
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var room models.Room
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": roomID}, bson.M{"$set": set, "$setOnInsert": onInsert}, opts).Decode(&room)
	if err != nil {
		return models.Room{}, fmt.Errorf("upsert room: %w", err)
	}
	return room, nil
}

// TouchRoom bumps last activity of an existing room without upserting.
func (r *MongoRoomRepo) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": roomID}, bson.M{"$set": bson.M{"lastActivity": at}})
	if err != nil {
		return fmt.Errorf("touch room: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// FindRoom fetches a single room.
func (r *MongoRoomRepo) FindRoom(ctx context.Context, roomID string) (models.Room, error) {
	var room models.Room
	err := r.coll.FindOne(ctx, bson.M{"_id": roomID}).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("find room: %w", err)
	}
	return room, nil
}

// ListRooms returns rooms, most recently active first.
func (r *MongoRoomRepo) ListRooms(ctx context.Context) ([]models.Room, error) {
	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "lastActivity", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	rooms := []models.Room{}
	if err := cur.All(ctx, &rooms); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return rooms, nil
}

// DeleteInactiveRooms removes rooms whose last activity is older than before.
func (r *MongoRoomRepo) DeleteInactiveRooms(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"lastActivity": bson.M{"$lt": before}})
	if err != nil {
		return 0, fmt.Errorf("delete rooms: %w", err)
	}
	return res.DeletedCount, nil
}
