package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatline_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatline_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_ws_events_total",
			Help: "Total number of websocket lifecycle and push events.",
		},
		[]string{"event"},
	)
	broadcastDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatline_broadcast_dropped_total",
			Help: "Events dropped because a connection's send queue was full.",
		},
	)
	messagesComposedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_messages_composed_total",
			Help: "Messages appended to the store, by kind.",
		},
		[]string{"kind"},
	)
	composeRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_compose_rejected_total",
			Help: "Send attempts rejected before or at persistence, by reason.",
		},
		[]string{"reason"},
	)
	idempotentReplaysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatline_idempotent_replays_total",
			Help: "Sends answered from a completed idempotency key.",
		},
	)
	pagesServedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_pages_served_total",
			Help: "Catch-up pages served, split by whether the page was empty.",
		},
		[]string{"empty"},
	)
	brokerPublishErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_broker_publish_errors_total",
			Help: "Total number of domain event publish errors.",
		},
		[]string{"routing_key"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		broadcastDroppedTotal,
		messagesComposedTotal,
		composeRejectedTotal,
		idempotentReplaysTotal,
		pagesServedTotal,
		brokerPublishErrorsTotal,
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

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
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

func IncBroadcastDropped() {
	broadcastDroppedTotal.Inc()
}

func IncMessageComposed(kind string) {
	messagesComposedTotal.WithLabelValues(kind).Inc()
}

func IncComposeRejected(reason string) {
	composeRejectedTotal.WithLabelValues(reason).Inc()
}

func IncIdempotentReplay() {
	idempotentReplaysTotal.Inc()
}

func IncPageServed(empty bool) {
	pagesServedTotal.WithLabelValues(strconv.FormatBool(empty)).Inc()
}

func IncBrokerPublishError(routingKey string) {
	brokerPublishErrorsTotal.WithLabelValues(routingKey).Inc()
}
