package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"roomchat/internal/models"
	"roomchat/internal/repositories"
)

type fixture struct {
	registry   *Registry
	messages   repositories.MessageRepository
	rooms      repositories.RoomRepository
	reconciler *Reconciler
	router     *Router

	mu    sync.Mutex
	clock time.Time
}

func newFixture() *fixture {
	return newFixtureWith(repositories.NewMemoryMessageRepo(), repositories.NewMemoryRoomRepo(), nil)
}

func newFixtureWith(messages repositories.MessageRepository, rooms repositories.RoomRepository, audit Auditor) *fixture {
	f := &fixture{
		registry: NewRegistry(),
		messages: messages,
		rooms:    rooms,
		clock:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.reconciler = NewReconciler(f.registry, messages, rooms, audit, zap.NewNop())
	f.router = NewRouter(f.registry, f.reconciler, messages, rooms, 0, zap.NewNop())
	f.reconciler.now = f.tick
	f.router.now = f.tick
	return f
}

func (f *fixture) tick() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fixture) send(connID, event string, data any) []Delivery {
	var raw json.RawMessage
	if data != nil {
		raw, _ = json.Marshal(data)
	}
	return f.router.Dispatch(context.Background(), connID, models.Inbound{Event: event, Data: raw})
}

func (f *fixture) connectAndJoin(connID, username, roomID string) []Delivery {
	f.router.Connect(connID)
	return f.send(connID, models.EventJoin, models.JoinRequest{Username: username, RoomID: roomID})
}

func (f *fixture) connectAndLogin(connID, username string) []Delivery {
	f.router.Connect(connID)
	return f.send(connID, models.EventLogin, username)
}

// eventsFor lists the events a connection receives from deliveries, in order.
func eventsFor(deliveries []Delivery, connID string) []models.Event {
	var out []models.Event
	for _, d := range deliveries {
		for _, r := range d.Recipients {
			if r == connID {
				out = append(out, d.Event)
			}
		}
	}
	return out
}

func findEvent(deliveries []Delivery, name string) (Delivery, bool) {
	for _, d := range deliveries {
		if d.Event.Event == name {
			return d, true
		}
	}
	return Delivery{}, false
}

func errorText(deliveries []Delivery, connID string) string {
	for _, ev := range eventsFor(deliveries, connID) {
		if notice, ok := ev.Data.(models.ErrorNotice); ok {
			return notice.Message
		}
	}
	return ""
}

func eventNames(events []models.Event) []string {
	names := make([]string, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.Event)
	}
	return names
}
