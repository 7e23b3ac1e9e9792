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
			Name: "pairchat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat server.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pairchat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pairchat_ws_active_connections",
			Help: "Number of live event channel connections.",
		},
	)
	wsOnlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pairchat_ws_online_users",
			Help: "Number of users holding at least one live connection.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairchat_ws_events_total",
			Help: "Total number of event channel events by name and outcome.",
		},
		[]string{"event", "outcome"},
	)
	wsDroppedFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pairchat_ws_dropped_frames_total",
			Help: "Frames dropped because a client could not keep up.",
		},
	)
	messagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairchat_messages_sent_total",
			Help: "Total number of messages stored, by type and delivery at send time.",
		},
		[]string{"type", "delivered"},
	)
	incognitoDeletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairchat_incognito_deletions_total",
			Help: "Messages removed by incognito expiry.",
		},
		[]string{"reason"},
	)
	incognitoScheduled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pairchat_incognito_scheduled_timers",
			Help: "Per-message deletion timers currently armed.",
		},
	)
	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pairchat_incognito_sweep_duration_seconds",
			Help:    "Duration of incognito cleanup sweeps.",
			Buckets: prometheus.DefBuckets,
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pairchat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsOnlineUsers,
		wsEventsTotal,
		wsDroppedFramesTotal,
		messagesSentTotal,
		incognitoDeletionsTotal,
		incognitoScheduled,
		sweepDuration,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
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

func SetOnlineUsers(n int) {
	wsOnlineUsers.Set(float64(n))
}

func IncWSEvent(event, outcome string) {
	wsEventsTotal.WithLabelValues(event, outcome).Inc()
}

func IncDroppedFrame() {
	wsDroppedFramesTotal.Inc()
}

func IncMessageSent(messageType string, delivered bool) {
	messagesSentTotal.WithLabelValues(messageType, strconv.FormatBool(delivered)).Inc()
}

func AddIncognitoDeletions(reason string, n int) {
	incognitoDeletionsTotal.WithLabelValues(reason).Add(float64(n))
}

func SetScheduledTimers(n int) {
	incognitoScheduled.Set(float64(n))
}

func ObserveSweep(d time.Duration) {
	sweepDuration.Observe(d.Seconds())
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
