package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cdrbridge"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	codecOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "operations_total",
			Help:      "CDR encode and decode operations by schema and result.",
		},
		[]string{"schema", "op", "result"},
	)
	topicMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "topic",
			Name:      "messages_total",
			Help:      "Topic samples published or received.",
		},
		[]string{"topic", "direction", "result"},
	)
	serviceCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "calls_total",
			Help:      "Client service calls by outcome.",
		},
		[]string{"service", "outcome"},
	)
	serviceCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "call_duration_seconds",
			Help:      "Client service call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	serviceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "requests_total",
			Help:      "Requests seen by service responders by result.",
		},
		[]string{"service", "result"},
	)
	routerConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "connections",
			Help:      "Open router connections.",
		},
	)
	routerMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "messages_total",
			Help:      "Link messages received by the router.",
		},
		[]string{"type"},
	)
	routerQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "queries_total",
			Help:      "Routed queries by how they finished.",
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			codecOps,
			topicMessages,
			serviceCalls, serviceCallDuration, serviceRequests,
			routerConnections, routerMessages, routerQueries,
		)
	})
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordCodec counts one encode or decode of schema.
func RecordCodec(schema, op string, err error) {
	RegisterMetrics()
	codecOps.WithLabelValues(schema, op, resultLabel(err)).Inc()
}

// RecordTopicMessage counts one sample; direction is "out" or "in".
func RecordTopicMessage(topic, direction string, err error) {
	RegisterMetrics()
	topicMessages.WithLabelValues(topic, direction, resultLabel(err)).Inc()
}

func RecordServiceCall(service, outcome string, duration time.Duration) {
	RegisterMetrics()
	serviceCalls.WithLabelValues(service, outcome).Inc()
	serviceCallDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func RecordServiceRequest(service, result string) {
	RegisterMetrics()
	serviceRequests.WithLabelValues(service, result).Inc()
}

func RouterConnectionOpened() {
	RegisterMetrics()
	routerConnections.Inc()
}

func RouterConnectionClosed() {
	RegisterMetrics()
	routerConnections.Dec()
}

func RecordRouterMessage(messageType string) {
	RegisterMetrics()
	routerMessages.WithLabelValues(messageType).Inc()
}

func RecordRouterQuery(outcome string) {
	RegisterMetrics()
	routerQueries.WithLabelValues(outcome).Inc()
}
