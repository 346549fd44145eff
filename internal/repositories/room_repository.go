package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"roomchat/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomRepository abstracts durable room records.
type RoomRepository interface {
	UpsertRoom(ctx context.Context, roomID string, patch models.RoomPatch) (models.Room, error)
	TouchRoom(ctx context.Context, roomID string, at time.Time) error
	FindRoom(ctx context.Context, roomID string) (models.Room, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	DeleteInactiveRooms(ctx context.Context, before time.Time) (int64, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// UpsertRoom creates the room if absent and applies patch.
func (r *RoomRepo) UpsertRoom(ctx context.Context, roomID string, patch models.RoomPatch) (models.Room, error) {
	name := patch.Name
	if name == "" {
		name = roomID
	}
	lastActivity := patch.LastActivity
	if lastActivity.IsZero() {
		lastActivity = time.Now()
	}
	isPrivate := false
	if patch.IsPrivate != nil {
		isPrivate = *patch.IsPrivate
	}

	var room models.Room
	err := r.db.QueryRowxContext(ctx, `INSERT INTO rooms (room_id, name, last_activity, is_private)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (room_id) DO UPDATE SET
            last_activity = EXCLUDED.last_activity,
            name = CASE WHEN $5 THEN EXCLUDED.name ELSE rooms.name END,
            is_private = CASE WHEN $6 THEN EXCLUDED.is_private ELSE rooms.is_private END
        RETURNING room_id, name, created_at, last_activity, is_private`,
		roomID, name, lastActivity, isPrivate, patch.Name != "", patch.IsPrivate != nil).StructScan(&room)
	return room, err
}

// TouchRoom bumps last activity of an existing room. It never creates one.
func (r *RoomRepo) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE rooms SET last_activity=$2 WHERE room_id=$1`, roomID, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// FindRoom fetches a single room.
func (r *RoomRepo) FindRoom(ctx context.Context, roomID string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT room_id, name, created_at, last_activity, is_private FROM rooms WHERE room_id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// ListRooms returns rooms, most recently active first.
func (r *RoomRepo) ListRooms(ctx context.Context) ([]models.Room, error) {
	rooms := []models.Room{}
	err := r.db.SelectContext(ctx, &rooms, `SELECT room_id, name, created_at, last_activity, is_private FROM rooms ORDER BY last_activity DESC`)
	return rooms, err
}

// DeleteInactiveRooms removes rooms whose last activity is older than before.
func (r *RoomRepo) DeleteInactiveRooms(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE last_activity < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
