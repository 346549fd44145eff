package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roomchat/internal/chat"
	"roomchat/internal/models"
	"roomchat/internal/repositories"
)

type frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	messages := repositories.NewMemoryMessageRepo()
	rooms := repositories.NewMemoryRoomRepo()
	registry := chat.NewRegistry()
	reconciler := chat.NewReconciler(registry, messages, rooms, nil, log)
	router := chat.NewRouter(registry, reconciler, messages, rooms, 0, log)

	engine := gin.New()
	engine.GET("/ws", NewHandler(NewHub(log), router, opts, log).Handle)
	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

// readUntil reads frames until one with the given event name arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var raw struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&raw))
		if raw.Event == event {
			f := frame{Event: raw.Event}
			_ = json.Unmarshal(raw.Data, &f.Data)
			return f
		}
	}
}

func TestRoomMessageOverWebSocket(t *testing.T) {
	server := newTestServer(t, Options{})
	alice := dial(t, server, nil)
	bob := dial(t, server, nil)

	send(t, alice, models.EventJoin, models.JoinRequest{Username: "alice", RoomID: "general"})
	readUntil(t, alice, models.EventRoomHistory)
	send(t, bob, models.EventJoin, models.JoinRequest{Username: "bob", RoomID: "general"})
	readUntil(t, bob, models.EventRoomHistory)

	send(t, alice, models.EventSendMessage, "hello bob")

	got := readUntil(t, bob, models.EventMessage)
	for got.Data["text"] != "hello bob" {
		got = readUntil(t, bob, models.EventMessage)
	}
	assert.Equal(t, "alice", got.Data["sender"])
	assert.NotEmpty(t, got.Data["_id"])
}

func TestDisconnectNotifiesRoom(t *testing.T) {
	server := newTestServer(t, Options{})
	alice := dial(t, server, nil)
	bob := dial(t, server, nil)

	send(t, alice, models.EventJoin, models.JoinRequest{Username: "alice", RoomID: "general"})
	readUntil(t, alice, models.EventRoomHistory)
	send(t, bob, models.EventJoin, models.JoinRequest{Username: "bob", RoomID: "general"})
	readUntil(t, bob, models.EventRoomHistory)

	require.NoError(t, alice.Close())

	got := readUntil(t, bob, models.EventMessage)
	for got.Data["text"] != "alice has left the room" {
		got = readUntil(t, bob, models.EventMessage)
	}
	assert.Equal(t, string(models.MessageTypeSystem), got.Data["type"])
}

func TestInvalidFrameGetsError(t *testing.T) {
	server := newTestServer(t, Options{})
	conn := dial(t, server, nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	got := readUntil(t, conn, models.EventError)
	assert.Equal(t, "Invalid frame", got.Data["message"])
}

func TestOriginRejected(t *testing.T) {
	server := newTestServer(t, Options{AllowedOrigins: []string{"https://chat.example.com"}})
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := dial(t, server, http.Header{"Origin": {"https://chat.example.com"}})
	assert.NotNil(t, conn)
}
