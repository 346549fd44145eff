package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"roomchat/internal/models"
)

const roomCachePrefix = "roomchat:room:"

// CachedRoomRepo is a read-through redis cache in front of another RoomRepository.
// Cache failures are logged and fall through to the wrapped repository.
type CachedRoomRepo struct {
	inner  RoomRepository
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewCachedRoomRepo wraps inner with a redis cache.
func NewCachedRoomRepo(inner RoomRepository, client *redis.Client, ttl time.Duration, log *zap.Logger) *CachedRoomRepo {
	return &CachedRoomRepo{inner: inner, client: client, ttl: ttl, log: log}
}

// UpsertRoom writes through and refreshes the cached copy.
func (r *CachedRoomRepo) UpsertRoom(ctx context.Context, roomID string, patch models.RoomPatch) (models.Room, error) {
	room, err := r.inner.UpsertRoom(ctx, roomID, patch)
	if err != nil {
		return room, err
	}
	r.store(ctx, room)
	return room, nil
}

// TouchRoom updates through and evicts the cached copy.
func (r *CachedRoomRepo) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	if err := r.inner.TouchRoom(ctx, roomID, at); err != nil {
		return err
	}
	if err := r.client.Del(ctx, roomCachePrefix+roomID).Err(); err != nil {
		r.log.Warn("room cache evict failed", zap.String("room_id", roomID), zap.Error(err))
	}
	return nil
}

// FindRoom serves from cache when possible.
func (r *CachedRoomRepo) FindRoom(ctx context.Context, roomID string) (models.Room, error) {
	val, err := r.client.Get(ctx, roomCachePrefix+roomID).Bytes()
	switch {
	case err == nil:
		var room models.Room
		if jsonErr := json.Unmarshal(val, &room); jsonErr == nil {
			return room, nil
		}
	case !errors.Is(err, redis.Nil):
		r.log.Warn("room cache get failed", zap.String("room_id", roomID), zap.Error(err))
	}

	room, err := r.inner.FindRoom(ctx, roomID)
	if err != nil {
		return room, err
	}
	r.store(ctx, room)
	return room, nil
}

// ListRooms is not cached.
func (r *CachedRoomRepo) ListRooms(ctx context.Context) ([]models.Room, error) {
	return r.inner.ListRooms(ctx)
}

// DeleteInactiveRooms deletes through and evicts the affected keys.
func (r *CachedRoomRepo) DeleteInactiveRooms(ctx context.Context, before time.Time) (int64, error) {
	rooms, err := r.inner.ListRooms(ctx)
	if err != nil {
		return 0, err
	}
	n, err := r.inner.DeleteInactiveRooms(ctx, before)
	if err != nil {
		return n, err
	}

	keys := make([]string, 0, len(rooms))
	for _, room := range rooms {
		if room.LastActivity.Before(before) {
			keys = append(keys, roomCachePrefix+room.RoomID)
		}
	}
	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			r.log.Warn("room cache evict failed", zap.Int("keys", len(keys)), zap.Error(err))
		}
	}
	return n, nil
}

func (r *CachedRoomRepo) store(ctx context.Context, room models.Room) {
	data, err := json.Marshal(room)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, roomCachePrefix+room.RoomID, data, r.ttl).Err(); err != nil {
		r.log.Warn("room cache set failed", zap.String("room_id", room.RoomID), zap.Error(err))
	}
}
