package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"roomchat/internal/models"
)

// MemoryMessageRepo is an in-process MessageRepository for local runs and tests.
type MemoryMessageRepo struct {
	mu    sync.RWMutex
	order []string
	msgs  map[string]models.Message
}

// NewMemoryMessageRepo creates an empty store.
func NewMemoryMessageRepo() *MemoryMessageRepo {
	return &MemoryMessageRepo{msgs: make(map[string]models.Message)}
}

func (r *MemoryMessageRepo) InsertMessage(ctx context.Context, msg *models.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg.ID = uuid.NewString()
	normalize(msg)
	r.msgs[msg.ID] = cloneMessage(*msg)
	r.order = append(r.order, msg.ID)
	return msg.ID, nil
}

func (r *MemoryMessageRepo) FindMessages(ctx context.Context, filter models.MessageFilter, opts models.FindOptions) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.Message{}
	for _, id := range r.order {
		msg := r.msgs[id]
		if matches(msg, filter) {
			out = append(out, cloneMessage(msg))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if opts.Descending {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if opts.Descending {
		reverseTies(out)
	}
	if opts.Limit > 0 && int64(len(out)) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (r *MemoryMessageRepo) FindMessageByID(ctx context.Context, id string) (models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, ok := r.msgs[id]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return cloneMessage(msg), nil
}

func (r *MemoryMessageRepo) UpdateMessage(ctx context.Context, id string, patch models.MessagePatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.msgs[id]
	if !ok {
		return ErrMessageNotFound
	}
	r.msgs[id] = applyPatch(msg, patch)
	return nil
}

func (r *MemoryMessageRepo) UpdateManyMessages(ctx context.Context, filter models.MessageFilter, patch models.MessagePatch) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, id := range r.order {
		msg := r.msgs[id]
		if !matches(msg, filter) {
			continue
		}
		r.msgs[id] = applyPatch(msg, patch)
		n++
	}
	return n, nil
}

// reverseTies flips runs of equal timestamps so that, in descending order,
// later inserts come first like the mongo _id tie-break.
func reverseTies(msgs []models.Message) {
	for start := 0; start < len(msgs); {
		end := start + 1
		for end < len(msgs) && msgs[end].Timestamp.Equal(msgs[start].Timestamp) {
			end++
		}
		for i, j := start, end-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
		start = end
	}
}

func matches(m models.Message, f models.MessageFilter) bool {
	if f.IDs != nil && !contains(f.IDs, m.ID) {
		return false
	}
	if f.RoomID != "" && m.RoomID != f.RoomID {
		return false
	}
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.Sender != "" {
		if m.Sender != f.Sender {
			return false
		}
	} else if f.Senders != nil && !contains(f.Senders, m.Sender) {
		return false
	}
	if f.Recipient != "" {
		if m.Recipient != f.Recipient {
			return false
		}
	} else if f.Recipients != nil && !contains(f.Recipients, m.Recipient) {
		return false
	}
	if !f.Before.IsZero() && !m.Timestamp.Before(f.Before) {
		return false
	}
	if !f.After.IsZero() && !m.Timestamp.After(f.After) {
		return false
	}
	if f.NotReadBy != "" && m.IsReadBy(f.NotReadBy) {
		return false
	}
	if f.Text != nil && m.Text != *f.Text {
		return false
	}
	if f.EditCount != nil && len(m.EditHistory) != *f.EditCount {
		return false
	}
	if f.WithoutReaction != nil && m.HasReaction(f.WithoutReaction.User, f.WithoutReaction.Emoji) {
		return false
	}
	if len(f.Or) > 0 {
		for _, sub := range f.Or {
			if matches(m, sub) {
				return true
			}
		}
		return false
	}
	return true
}

func applyPatch(m models.Message, p models.MessagePatch) models.Message {
	m = cloneMessage(m)
	if p.Text != nil {
		m.Text = *p.Text
	}
	if p.IsEdited != nil {
		m.IsEdited = *p.IsEdited
	}
	if p.IsDeleted != nil {
		m.IsDeleted = *p.IsDeleted
	}
	if p.PushEdit != nil {
		m.EditHistory = append(m.EditHistory, *p.PushEdit)
	}
	if p.PushReaction != nil {
		m.Reactions = append(m.Reactions, *p.PushReaction)
	}
	if p.PullReaction != nil {
		kept := m.Reactions[:0]
		for _, reaction := range m.Reactions {
			if reaction.User != p.PullReaction.User || reaction.Emoji != p.PullReaction.Emoji {
				kept = append(kept, reaction)
			}
		}
		m.Reactions = kept
	}
	if p.PushReadBy != nil {
		m.ReadBy = append(m.ReadBy, *p.PushReadBy)
	}
	return m
}

func cloneMessage(m models.Message) models.Message {
	m.EditHistory = append([]models.Edit{}, m.EditHistory...)
	m.Reactions = append([]models.Reaction{}, m.Reactions...)
	m.ReadBy = append([]models.ReadReceipt{}, m.ReadBy...)
	return m
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// MemoryRoomRepo is an in-process RoomRepository.
type MemoryRoomRepo struct {
	mu    sync.RWMutex
	rooms map[string]models.Room
}

// NewMemoryRoomRepo creates an empty store.
func NewMemoryRoomRepo() *MemoryRoomRepo {
	return &MemoryRoomRepo{rooms: make(map[string]models.Room)}
}

func (r *MemoryRoomRepo) UpsertRoom(ctx context.Context, roomID string, patch models.RoomPatch) (models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	room, ok := r.rooms[roomID]
	if !ok {
		room = models.Room{RoomID: roomID, Name: roomID, CreatedAt: now}
	}
	if patch.Name != "" {
		room.Name = patch.Name
	}
	if patch.IsPrivate != nil {
		room.IsPrivate = *patch.IsPrivate
	}
	room.LastActivity = patch.LastActivity
	if room.LastActivity.IsZero() {
		room.LastActivity = now
	}
	r.rooms[roomID] = room
	return room, nil
}

func (r *MemoryRoomRepo) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	room.LastActivity = at
	r.rooms[roomID] = room
	return nil
}

func (r *MemoryRoomRepo) FindRoom(ctx context.Context, roomID string) (models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return models.Room{}, ErrRoomNotFound
	}
	return room, nil
}

func (r *MemoryRoomRepo) ListRooms(ctx context.Context) ([]models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]models.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].LastActivity.After(rooms[j].LastActivity) })
	return rooms, nil
}

func (r *MemoryRoomRepo) DeleteInactiveRooms(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, room := range r.rooms {
		if room.LastActivity.Before(before) {
			delete(r.rooms, id)
			n++
		}
	}
	return n, nil
}
