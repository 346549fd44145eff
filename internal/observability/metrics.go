package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"event"},
	)
	inboundEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_inbound_events_total",
			Help: "Client events dispatched, by event name and outcome.",
		},
		[]string{"event", "outcome"},
	)
	fanoutFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_fanout_frames_total",
			Help: "Outbound frames queued to connections, by event name.",
		},
		[]string{"event"},
	)
	fanoutDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_fanout_dropped_total",
			Help: "Outbound frames dropped, by reason.",
		},
		[]string{"reason"},
	)
	activeRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_rooms",
			Help: "Rooms with at least one joined connection.",
		},
	)
	storeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_store_errors_total",
			Help: "Failed message/room store calls, by operation.",
		},
		[]string{"operation"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		inboundEventsTotal,
		fanoutFramesTotal,
		fanoutDroppedTotal,
		activeRooms,
		storeErrorsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncInboundEvent(event, outcome string) {
	inboundEventsTotal.WithLabelValues(event, outcome).Inc()
}

func AddFanoutFrames(event string, n int) {
	fanoutFramesTotal.WithLabelValues(event).Add(float64(n))
}

func IncFanoutDropped(reason string) {
	fanoutDroppedTotal.WithLabelValues(reason).Inc()
}

func SetActiveRooms(n int) {
	activeRooms.Set(float64(n))
}

func IncStoreError(operation string) {
	storeErrorsTotal.WithLabelValues(operation).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
