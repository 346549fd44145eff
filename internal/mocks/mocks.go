package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"roomchat/internal/models"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) InsertMessage(ctx context.Context, msg *models.Message) (string, error) {
	args := m.Called(ctx, msg)
	id := args.String(0)
	if id != "" {
		msg.ID = id
	}
	return id, args.Error(1)
}

func (m *MessageRepositoryMock) FindMessages(ctx context.Context, filter models.MessageFilter, opts models.FindOptions) ([]models.Message, error) {
	args := m.Called(ctx, filter, opts)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) FindMessageByID(ctx context.Context, id string) (models.Message, error) {
	args := m.Called(ctx, id)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateMessage(ctx context.Context, id string, patch models.MessagePatch) error {
	args := m.Called(ctx, id, patch)
	return args.Error(0)
}

func (m *MessageRepositoryMock) UpdateManyMessages(ctx context.Context, filter models.MessageFilter, patch models.MessagePatch) (int64, error) {
	args := m.Called(ctx, filter, patch)
	return args.Get(0).(int64), args.Error(1)
}

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) UpsertRoom(ctx context.Context, roomID string, patch models.RoomPatch) (models.Room, error) {
	args := m.Called(ctx, roomID, patch)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	args := m.Called(ctx, roomID, at)
	return args.Error(0)
}

func (m *RoomRepositoryMock) FindRoom(ctx context.Context, roomID string) (models.Room, error) {
	args := m.Called(ctx, roomID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) ListRooms(ctx context.Context) ([]models.Room, error) {
	args := m.Called(ctx)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}

func (m *RoomRepositoryMock) DeleteInactiveRooms(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type AuditorMock struct {
	mock.Mock
}

func (m *AuditorMock) Emit(ctx context.Context, level, text, requestID string, username *string) {
	m.Called(ctx, level, text, requestID, username)
}
