package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roomchat/internal/chat"
	"roomchat/internal/models"
)

func testClient(hub *Hub, connID string, buffer int) *Client {
	return newClient(context.Background(), nil, hub, nil, ConnInfo{ConnID: connID}, buffer, 0, zap.NewNop())
}

func TestHubRegisterAndUnregister(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := testClient(hub, "c1", 1)

	hub.Register(c)
	assert.Equal(t, 1, hub.Count())

	hub.Unregister(c)
	assert.Equal(t, 0, hub.Count())
	_, ok := <-c.send
	assert.False(t, ok)

	// a second unregister must not close the channel again
	assert.NotPanics(t, func() { hub.Unregister(c) })
}

func TestHubUnregisterIgnoresReplacedClient(t *testing.T) {
	hub := NewHub(zap.NewNop())
	old := testClient(hub, "c1", 1)
	current := testClient(hub, "c1", 1)
	hub.Register(old)
	hub.Register(current)

	hub.Unregister(old)
	assert.Equal(t, 1, hub.Count())
}

func TestHubDeliverRoutesByConnID(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c1 := testClient(hub, "c1", 4)
	c2 := testClient(hub, "c2", 4)
	hub.Register(c1)
	hub.Register(c2)

	hub.Deliver([]chat.Delivery{
		{Recipients: []string{"c1", "gone"}, Event: models.Event{Event: models.EventUserTyping, Data: models.TypingNotice{User: "bob", IsTyping: true}}},
		{Recipients: []string{"c1", "c2"}, Event: models.Event{Event: models.EventRoomExists, Data: true}},
	})

	require.Len(t, c1.send, 2)
	require.Len(t, c2.send, 1)

	var frame struct {
		Event string              `json:"event"`
		Data  models.TypingNotice `json:"data"`
	}
	require.NoError(t, json.Unmarshal(<-c1.send, &frame))
	assert.Equal(t, models.EventUserTyping, frame.Event)
	assert.Equal(t, "bob", frame.Data.User)
	assert.JSONEq(t, `{"event":"roomExists","data":true}`, string(<-c2.send))
}

func TestHubDeliverDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := testClient(hub, "c1", 1)
	hub.Register(c)

	event := models.Event{Event: models.EventRoomExists, Data: false}
	assert.NotPanics(t, func() {
		hub.Deliver([]chat.Delivery{
			{Recipients: []string{"c1"}, Event: event},
			{Recipients: []string{"c1"}, Event: event},
		})
	})
	assert.Len(t, c.send, 1)
}

func TestHubDeliverAfterUnregister(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := testClient(hub, "c1", 1)
	hub.Register(c)
	hub.Unregister(c)

	assert.NotPanics(t, func() {
		hub.Deliver([]chat.Delivery{{Recipients: []string{"c1"}, Event: models.Event{Event: models.EventRoomExists, Data: true}}})
	})
}

func TestHubDeliverRacesUnregister(t *testing.T) {
	hub := NewHub(zap.NewNop())
	const clients, workers, rounds = 16, 4, 50

	all := make([]*Client, 0, clients)
	ids := make([]string, 0, clients)
	for i := 0; i < clients; i++ {
		c := testClient(hub, fmt.Sprintf("c%d", i), workers*rounds)
		hub.Register(c)
		all = append(all, c)
		ids = append(ids, c.info.ConnID)
	}
	event := models.Event{Event: models.EventUserTyping, Data: models.TypingNotice{User: "bob", IsTyping: true}}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				hub.Deliver([]chat.Delivery{{Recipients: ids, Event: event}})
			}
		}()
	}
	for _, c := range all {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			hub.Unregister(c)
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 0, hub.Count())
	for _, c := range all {
		frames := 0
		for range c.send {
			frames++
		}
		assert.LessOrEqual(t, frames, workers*rounds)
	}
}

func TestOriginPolicy(t *testing.T) {
	open := newOriginPolicy(nil)
	assert.True(t, open.allowAll)

	policy := newOriginPolicy([]string{"https://Chat.Example.com", " ", "not a url"})
	assert.False(t, policy.allowAll)
	_, ok := policy.allowed["https://chat.example.com"]
	assert.True(t, ok)
}
