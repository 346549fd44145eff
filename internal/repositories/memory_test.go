package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/models"
)

func TestMemoryMessageRepoInsertAndFind(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()

	msg := &models.Message{RoomID: "r1", Type: models.MessageTypeUser, Sender: "alice", Text: "hi", Timestamp: time.Now()}
	id, err := repo.InsertMessage(ctx, msg)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, id, msg.ID)

	got, err := repo.FindMessageByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Text)
	assert.NotNil(t, got.Reactions)

	_, err = repo.FindMessageByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMemoryMessageRepoFindOrdersAndLimits(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, text := range []string{"one", "two", "three"} {
		_, err := repo.InsertMessage(ctx, &models.Message{RoomID: "r1", Type: models.MessageTypeUser, Text: text, Timestamp: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}
	_, err := repo.InsertMessage(ctx, &models.Message{RoomID: "r2", Type: models.MessageTypeUser, Text: "other", Timestamp: base})
	require.NoError(t, err)

	msgs, err := repo.FindMessages(ctx, models.MessageFilter{RoomID: "r1"}, models.FindOptions{Descending: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "three", msgs[0].Text)
	assert.Equal(t, "two", msgs[1].Text)

	msgs, err = repo.FindMessages(ctx, models.MessageFilter{RoomID: "r1", After: base}, models.FindOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Text)
}

func TestMemoryMessageRepoDescendingTieBreak(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()
	ts := time.Now()

	for _, text := range []string{"first", "second"} {
		_, err := repo.InsertMessage(ctx, &models.Message{RoomID: "r1", Type: models.MessageTypeUser, Text: text, Timestamp: ts})
		require.NoError(t, err)
	}

	msgs, err := repo.FindMessages(ctx, models.MessageFilter{RoomID: "r1"}, models.FindOptions{Descending: true})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[0].Text)
}

func TestMemoryMessageRepoOrFilter(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()
	now := time.Now()

	_, _ = repo.InsertMessage(ctx, &models.Message{RoomID: "r1", Type: models.MessageTypeUser, Sender: "a", Text: "room", Timestamp: now})
	_, _ = repo.InsertMessage(ctx, &models.Message{Type: models.MessageTypePrivate, Sender: "a", Recipient: "b", Text: "a->b", Timestamp: now})
	_, _ = repo.InsertMessage(ctx, &models.Message{Type: models.MessageTypePrivate, Sender: "c", Recipient: "a", Text: "c->a", Timestamp: now})

	filter := models.MessageFilter{Or: []models.MessageFilter{
		{RoomID: "r1"},
		{Type: models.MessageTypePrivate, Sender: "a", Recipients: []string{"a", "b"}},
		{Type: models.MessageTypePrivate, Recipient: "a", Senders: []string{"a", "b"}},
	}}
	msgs, err := repo.FindMessages(ctx, filter, models.FindOptions{})
	require.NoError(t, err)
	texts := []string{}
	for _, m := range msgs {
		texts = append(texts, m.Text)
	}
	assert.ElementsMatch(t, []string{"room", "a->b"}, texts)

	msgs, err = repo.FindMessages(ctx, models.MessageFilter{Senders: []string{}}, models.FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryMessageRepoUpdateManyPushReadBy(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()

	id, _ := repo.InsertMessage(ctx, &models.Message{RoomID: "r1", Type: models.MessageTypeUser, Text: "x", Timestamp: time.Now()})
	filter := models.MessageFilter{IDs: []string{id}, NotReadBy: "bob"}
	patch := models.MessagePatch{PushReadBy: &models.ReadReceipt{User: "bob", ReadAt: time.Now()}}

	n, err := repo.UpdateManyMessages(ctx, filter, patch)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.UpdateManyMessages(ctx, filter, patch)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, _ := repo.FindMessageByID(ctx, id)
	assert.Len(t, got.ReadBy, 1)
}

func TestMemoryMessageRepoReactionPushIsConditional(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()

	id, _ := repo.InsertMessage(ctx, &models.Message{RoomID: "r1", Type: models.MessageTypeUser, Text: "x", Timestamp: time.Now()})
	key := models.ReactionKey{User: "alice", Emoji: "👍"}
	filter := models.MessageFilter{IDs: []string{id}, WithoutReaction: &key}
	push := models.MessagePatch{PushReaction: &models.Reaction{User: "alice", Emoji: "👍"}}

	n, err := repo.UpdateManyMessages(ctx, filter, push)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = repo.UpdateManyMessages(ctx, filter, push)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = repo.UpdateManyMessages(ctx, models.MessageFilter{IDs: []string{id}},
		models.MessagePatch{PushReaction: &models.Reaction{User: "bob", Emoji: "👍"}})
	require.NoError(t, err)

	require.NoError(t, repo.UpdateMessage(ctx, id, models.MessagePatch{PullReaction: &key}))
	got, _ := repo.FindMessageByID(ctx, id)
	require.Len(t, got.Reactions, 1)
	assert.Equal(t, "bob", got.Reactions[0].User)
}

func TestMemoryMessageRepoRevisionPinnedEdit(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()

	id, _ := repo.InsertMessage(ctx, &models.Message{RoomID: "r1", Type: models.MessageTypeUser, Text: "v0", Timestamp: time.Now()})
	edit := func(from string, count int, to string) int64 {
		filter := models.MessageFilter{IDs: []string{id}, Text: &from, EditCount: &count}
		patch := models.MessagePatch{Text: &to, PushEdit: &models.Edit{Text: from}}
		n, err := repo.UpdateManyMessages(ctx, filter, patch)
		require.NoError(t, err)
		return n
	}

	assert.Equal(t, int64(1), edit("v0", 0, "v1"))
	assert.Equal(t, int64(0), edit("v0", 0, "stale"))
	assert.Equal(t, int64(1), edit("v1", 1, "v2"))

	got, _ := repo.FindMessageByID(ctx, id)
	assert.Equal(t, "v2", got.Text)
	require.Len(t, got.EditHistory, 2)
	assert.Equal(t, "v0", got.EditHistory[0].Text)
	assert.Equal(t, "v1", got.EditHistory[1].Text)
}

func TestMemoryMessageRepoUpdateMissing(t *testing.T) {
	repo := NewMemoryMessageRepo()
	text := "x"
	err := repo.UpdateMessage(context.Background(), "nope", models.MessagePatch{Text: &text})
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMemoryRoomRepoUpsertListDelete(t *testing.T) {
	repo := NewMemoryRoomRepo()
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	room, err := repo.UpsertRoom(ctx, "stale", models.RoomPatch{LastActivity: old})
	require.NoError(t, err)
	assert.Equal(t, "stale", room.Name)

	_, err = repo.UpsertRoom(ctx, "fresh", models.RoomPatch{})
	require.NoError(t, err)

	rooms, err := repo.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "fresh", rooms[0].RoomID)

	n, err := repo.DeleteInactiveRooms(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.FindRoom(ctx, "stale")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMemoryRoomRepoTouchDoesNotCreate(t *testing.T) {
	repo := NewMemoryRoomRepo()
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.ErrorIs(t, repo.TouchRoom(ctx, "ghost", at), ErrRoomNotFound)
	_, err := repo.FindRoom(ctx, "ghost")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = repo.UpsertRoom(ctx, "general", models.RoomPatch{LastActivity: at.Add(-time.Hour)})
	require.NoError(t, err)
	require.NoError(t, repo.TouchRoom(ctx, "general", at))
	room, err := repo.FindRoom(ctx, "general")
	require.NoError(t, err)
	assert.True(t, at.Equal(room.LastActivity))
}
