package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"roomchat/internal/chat"
	"roomchat/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Dispatcher turns inbound frames into deliveries.
type Dispatcher interface {
	Connect(connID string) chat.Session
	Dispatch(ctx context.Context, connID string, in models.Inbound) []chat.Delivery
	Disconnect(ctx context.Context, connID string) []chat.Delivery
}

// Client is one websocket connection with its outbound queue.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	router Dispatcher
	info   ConnInfo
	ctx    context.Context
	log    *zap.Logger
}

func newClient(ctx context.Context, conn *websocket.Conn, hub *Hub, router Dispatcher, info ConnInfo, sendBuffer int, maxMessageSize int64, log *zap.Logger) *Client {
	if conn != nil && maxMessageSize > 0 {
		conn.SetReadLimit(maxMessageSize)
	}
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    hub,
		router: router,
		info:   info,
		ctx:    ctx,
		log:    log.With(zap.String("conn_id", info.ConnID)),
	}
}

func (c *Client) close() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("error closing connection", zap.Error(err))
	}
}

func (c *Client) readPump() {
	var closeReason string
	defer func() {
		c.hub.Deliver(c.router.Disconnect(c.ctx, c.info.ConnID))
		c.hub.Unregister(c)
		c.close()
		publishLifecycle(c.ctx, "ws_disconnect", c.info, closeReason)
		c.log.Info("client disconnected", zap.String("reason", closeReason))
	}()

	c.setupReadConnection()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if c.isUnexpectedReadError(err) {
				publishLifecycle(c.ctx, "ws_error", c.info, closeReason)
			}
			return
		}

		var in models.Inbound
		if err := json.Unmarshal(raw, &in); err != nil || in.Event == "" {
			c.log.Debug("invalid frame", zap.Error(err))
			c.hub.Deliver([]chat.Delivery{{
				Recipients: []string{c.info.ConnID},
				Event:      models.Event{Event: models.EventError, Data: models.ErrorNotice{Message: "Invalid frame"}},
			}})
			continue
		}
		c.hub.Deliver(c.router.Dispatch(c.ctx, c.info.ConnID, in))
	}
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug("error setting read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func (c *Client) isUnexpectedReadError(err error) bool {
	if errors.Is(err, websocket.ErrReadLimit) {
		c.log.Warn("frame exceeded maximum size")
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return false
	}
	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		return false
	}
	c.log.Warn("websocket read error", zap.Error(err))
	return true
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.writeFrame(message) || !c.writeQueued() {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeQueued flushes frames already waiting in the queue, one frame each.
func (c *Client) writeQueued() bool {
	n := len(c.send)
	for i := 0; i < n; i++ {
		message, ok := <-c.send
		if !ok {
			return false
		}
		if !c.writeFrame(message) {
			return false
		}
	}
	return true
}

func (c *Client) writeFrame(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug("error setting write deadline", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("websocket write error", zap.Error(err))
		}
		return false
	}
	return true
}
