package chat

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/models"
	"roomchat/internal/repositories"
)

// heldLoads makes the first n FindMessageByID calls after arm wait for each
// other, so every caller reads the record before any of them writes.
type heldLoads struct {
	*repositories.MemoryMessageRepo
	armed   atomic.Bool
	calls   atomic.Int32
	hold    int32
	arrived sync.WaitGroup
}

func newHeldLoads() *heldLoads {
	return &heldLoads{MemoryMessageRepo: repositories.NewMemoryMessageRepo()}
}

func (h *heldLoads) arm(n int) {
	h.hold = int32(n)
	h.arrived.Add(n)
	h.armed.Store(true)
}

func (h *heldLoads) FindMessageByID(ctx context.Context, id string) (models.Message, error) {
	msg, err := h.MemoryMessageRepo.FindMessageByID(ctx, id)
	if h.armed.Load() && h.calls.Add(1) <= h.hold {
		h.arrived.Done()
		h.arrived.Wait()
	}
	return msg, err
}

func runTogether(fns ...func()) {
	var wg sync.WaitGroup
	wg.Add(len(fns))
	for _, fn := range fns {
		go func(fn func()) {
			defer wg.Done()
			fn()
		}(fn)
	}
	wg.Wait()
}

func TestConcurrentReactionsFromDistinctUsers(t *testing.T) {
	messages := newHeldLoads()
	f := newFixtureWith(messages, repositories.NewMemoryRoomRepo(), nil)
	id := roomWithMessage(t, f)

	messages.arm(2)
	var fromAlice, fromBob []Delivery
	runTogether(
		func() {
			fromAlice = f.send("c1", models.EventAddReaction, models.ReactionRequest{MessageID: id, Emoji: "👍"})
		},
		func() {
			fromBob = f.send("c2", models.EventAddReaction, models.ReactionRequest{MessageID: id, Emoji: "🎉"})
		},
	)

	assert.Empty(t, errorText(fromAlice, "c1"))
	assert.Empty(t, errorText(fromBob, "c2"))
	stored := f.stored(t, id)
	require.Len(t, stored.Reactions, 2)
	assert.True(t, stored.HasReaction("alice", "👍"))
	assert.True(t, stored.HasReaction("bob", "🎉"))
}

func TestConcurrentEditsKeepEveryRevision(t *testing.T) {
	messages := newHeldLoads()
	f := newFixtureWith(messages, repositories.NewMemoryRoomRepo(), nil)
	id := roomWithMessage(t, f)
	f.connectAndJoin("c4", "alice", "general")

	messages.arm(2)
	var first, second []Delivery
	runTogether(
		func() {
			first = f.send("c1", models.EventEditMessage, models.EditRequest{MessageID: id, NewText: "from c1"})
		},
		func() {
			second = f.send("c4", models.EventEditMessage, models.EditRequest{MessageID: id, NewText: "from c4"})
		},
	)

	assert.Empty(t, errorText(first, "c1"))
	assert.Empty(t, errorText(second, "c4"))
	stored := f.stored(t, id)
	require.Len(t, stored.EditHistory, 2)
	assert.Equal(t, "hello", stored.EditHistory[0].Text)
	assert.ElementsMatch(t, []string{"from c1", "from c4"}, []string{stored.EditHistory[1].Text, stored.Text})
}

func TestConcurrentJoinsKeepMembershipConsistent(t *testing.T) {
	f := newFixture()
	rooms := []string{"general", "random", "dev"}
	const conns = 24

	fns := make([]func(), 0, conns)
	for i := 0; i < conns; i++ {
		connID := fmt.Sprintf("c%02d", i)
		username := fmt.Sprintf("user%02d", i)
		fns = append(fns, func() {
			f.router.Connect(connID)
			for j := 0; j < 12; j++ {
				roomID := rooms[(len(connID)+j*7+int(connID[2]))%len(rooms)]
				f.send(connID, models.EventJoin, models.JoinRequest{Username: username, RoomID: roomID})
				if j%4 == 3 {
					f.send(connID, models.EventSendMessage, "ping")
				}
			}
		})
	}
	for i := 0; i < conns; i += 3 {
		connID := fmt.Sprintf("c%02d", i)
		fns = append(fns, func() {
			f.router.Disconnect(context.Background(), connID)
		})
	}
	runTogether(fns...)

	f.registry.mu.Lock()
	defer f.registry.mu.Unlock()

	members := 0
	for roomID, room := range f.registry.rooms {
		require.NotEmpty(t, room, "empty room %s kept", roomID)
		for connID, username := range room {
			sess, ok := f.registry.sessions[connID]
			require.True(t, ok, "member %s has no session", connID)
			assert.Equal(t, roomID, sess.roomID)
			assert.Equal(t, username, sess.username)
			members++
		}
	}
	inRoom := 0
	for _, sess := range f.registry.sessions {
		if sess.roomID != "" {
			inRoom++
		}
	}
	assert.Equal(t, inRoom, members)
}
