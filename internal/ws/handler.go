package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"roomchat/internal/observability"
)

type Options struct {
	AllowedOrigins []string
	SendBuffer     int
	MaxMessageSize int64
}

// Handler upgrades HTTP requests to chat connections.
type Handler struct {
	hub      *Hub
	router   Dispatcher
	upgrader websocket.Upgrader
	opts     Options
	log      *zap.Logger
}

func NewHandler(hub *Hub, router Dispatcher, opts Options, log *zap.Logger) *Handler {
	policy := newOriginPolicy(opts.AllowedOrigins)
	return &Handler{
		hub:    hub,
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if policy.check(r) {
					return true
				}
				log.Warn("blocked websocket origin", zap.String("origin", r.Header.Get("Origin")))
				return false
			},
		},
		opts: opts,
		log:  log,
	}
}

// Handle upgrades the connection and starts its pumps.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("roomchat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	// the connection outlives the handshake request
	connCtx := observability.WithRequestID(context.WithoutCancel(ctx), requestID)

	client := newClient(connCtx, conn, h.hub, h.router, info, h.opts.SendBuffer, h.opts.MaxMessageSize, h.log)
	h.router.Connect(info.ConnID)
	h.hub.Register(client)

	observability.IncWSActive()
	publishLifecycle(connCtx, "ws_connect", info, "")
	h.log.Info("client connected", zap.String("conn_id", info.ConnID), zap.String("ip", info.IP))

	go client.writePump()
	go func() {
		defer observability.DecWSActive()
		client.readPump()
	}()
}
