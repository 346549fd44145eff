package repositories

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"roomchat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions with the durable message log.
type MessageRepository interface {
	InsertMessage(ctx context.Context, msg *models.Message) (string, error)
	FindMessages(ctx context.Context, filter models.MessageFilter, opts models.FindOptions) ([]models.Message, error)
	FindMessageByID(ctx context.Context, id string) (models.Message, error)
	UpdateMessage(ctx context.Context, id string, patch models.MessagePatch) error
	UpdateManyMessages(ctx context.Context, filter models.MessageFilter, patch models.MessagePatch) (int64, error)
}

// MongoMessageRepo is a mongo-backed MessageRepository.
type MongoMessageRepo struct {
	coll *mongo.Collection
}

// NewMongoMessageRepo constructs MongoMessageRepo over the messages collection.
func NewMongoMessageRepo(db *mongo.Database) *MongoMessageRepo {
	return &MongoMessageRepo{coll: db.Collection("messages")}
}

// EnsureIndexes creates the indexes the history queries rely on.
func (r *MongoMessageRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "sender", Value: 1}, {Key: "recipient", Value: 1}}},
	})
	return err
}

// InsertMessage stores msg and assigns its id.
func (r *MongoMessageRepo) InsertMessage(ctx context.Context, msg *models.Message) (string, error) {
	msg.ID = primitive.NewObjectID().Hex()
	normalize(msg)
	if _, err := r.coll.InsertOne(ctx, msg); err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	return msg.ID, nil
}

// FindMessages returns matching messages ordered by timestamp.
func (r *MongoMessageRepo) FindMessages(ctx context.Context, filter models.MessageFilter, opts models.FindOptions) ([]models.Message, error) {
	dir := 1
	if opts.Descending {
		dir = -1
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: dir}, {Key: "_id", Value: dir}})
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}

	cur, err := r.coll.Find(ctx, filterDocument(filter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	msgs := []models.Message{}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return msgs, nil
}

// FindMessageByID retrieves a single message.
func (r *MongoMessageRepo) FindMessageByID(ctx context.Context, id string) (models.Message, error) {
	var msg models.Message
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("find message: %w", err)
	}
	return msg, nil
}

// UpdateMessage applies patch to one message.
func (r *MongoMessageRepo) UpdateMessage(ctx context.Context, id string, patch models.MessagePatch) error {
	res, err := r.coll.UpdateByID(ctx, id, updateDocument(patch))
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// UpdateManyMessages applies patch to every matching message and reports how
// many matched. Filter and update are evaluated atomically per document.
func (r *MongoMessageRepo) UpdateManyMessages(ctx context.Context, filter models.MessageFilter, patch models.MessagePatch) (int64, error) {
	res, err := r.coll.UpdateMany(ctx, filterDocument(filter), updateDocument(patch))
	if err != nil {
		return 0, fmt.Errorf("update messages: %w", err)
	}
	return res.MatchedCount, nil
}

func filterDocument(f models.MessageFilter) bson.M {
	doc := bson.M{}
	if f.IDs != nil {
		doc["_id"] = bson.M{"$in": f.IDs}
	}
	if f.RoomID != "" {
		doc["roomId"] = f.RoomID
	}
	if f.Type != "" {
		doc["type"] = f.Type
	}
	switch {
	case f.Sender != "":
		doc["sender"] = f.Sender
	case f.Senders != nil:
		doc["sender"] = bson.M{"$in": f.Senders}
	}
	switch {
	case f.Recipient != "":
		doc["recipient"] = f.Recipient
	case f.Recipients != nil:
		doc["recipient"] = bson.M{"$in": f.Recipients}
	}
	if !f.Before.IsZero() || !f.After.IsZero() {
		ts := bson.M{}
		if !f.Before.IsZero() {
			ts["$lt"] = f.Before
		}
		if !f.After.IsZero() {
			ts["$gt"] = f.After
		}
		doc["timestamp"] = ts
	}
	if f.NotReadBy != "" {
		doc["readBy.user"] = bson.M{"$ne": f.NotReadBy}
	}
	if f.Text != nil {
		doc["text"] = *f.Text
	}
	if f.EditCount != nil {
		doc["editHistory"] = bson.M{"$size": *f.EditCount}
	}
	if f.WithoutReaction != nil {
		doc["reactions"] = bson.M{"$not": bson.M{"$elemMatch": bson.M{
			"user":  f.WithoutReaction.User,
			"emoji": f.WithoutReaction.Emoji,
		}}}
	}
	if len(f.Or) > 0 {
		alts := make(bson.A, 0, len(f.Or))
		for _, sub := range f.Or {
			alts = append(alts, filterDocument(sub))
		}
		doc["$or"] = alts
	}
	return doc
}

func updateDocument(p models.MessagePatch) bson.M {
	set := bson.M{}
	if p.Text != nil {
		set["text"] = *p.Text
	}
	if p.IsEdited != nil {
		set["isEdited"] = *p.IsEdited
	}
	if p.IsDeleted != nil {
		set["isDeleted"] = *p.IsDeleted
	}

	push := bson.M{}
	if p.PushEdit != nil {
		push["editHistory"] = *p.PushEdit
	}
	if p.PushReaction != nil {
		push["reactions"] = *p.PushReaction
	}
	if p.PushReadBy != nil {
		push["readBy"] = *p.PushReadBy
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(push) > 0 {
		update["$push"] = push
	}
	if p.PullReaction != nil {
		update["$pull"] = bson.M{"reactions": bson.M{"user": p.PullReaction.User, "emoji": p.PullReaction.Emoji}}
	}
	return update
}

// normalize keeps list fields as empty arrays rather than null in storage and on the wire.
func normalize(msg *models.Message) {
	if msg.EditHistory == nil {
		msg.EditHistory = []models.Edit{}
	}
	if msg.Reactions == nil {
		msg.Reactions = []models.Reaction{}
	}
	if msg.ReadBy == nil {
		msg.ReadBy = []models.ReadReceipt{}
	}
}
