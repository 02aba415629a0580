// Registers:
//
//	#signalflow_stream_messages_total{type}
//	#signalflow_stream_parse_errors_total
//	#signalflow_stream_reconnects_total
//	#signalflow_commands_sent_total
//	#signalflow_commands_dropped_total
//	#signalflow_cache_invalidations_total
//	#go_* and process_* system metrics
//
// Exposed through the dashboard server's /metrics endpoint.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once               sync.Once
	streamMessages     *prometheus.CounterVec
	parseErrors        prometheus.Counter
	reconnects         prometheus.Counter
	commandsSent       prometheus.Counter
	commandsDropped    prometheus.Counter
	cacheInvalidations prometheus.Counter
	connectionState    prometheus.Gauge
)

// Shadow counters so the dashboard can report totals without scraping the
// prometheus registry.
var (
	totalMessages        int64
	totalParseErrors     int64
	totalReconnects      int64
	totalCommandsSent    int64
	totalCommandsDropped int64
	totalInvalidations   int64
)

func Init() {
	once.Do(func() {
		streamMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_stream_messages_total",
				Help: "Number of inbound stream messages by message type",
			},
			[]string{"type"},
		)

		parseErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalflow_stream_parse_errors_total",
			Help: "Number of inbound messages dropped because they failed to parse",
		})

		reconnects = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalflow_stream_reconnects_total",
			Help: "Number of reconnect attempts made by the stream client",
		})

		commandsSent = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalflow_commands_sent_total",
			Help: "Number of outbound commands written to the stream",
		})

		commandsDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalflow_commands_dropped_total",
			Help: "Number of outbound commands dropped because the stream was not connected",
		})

		cacheInvalidations = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalflow_cache_invalidations_total",
			Help: "Number of REST cache invalidations triggered by stream messages",
		})

		connectionState = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalflow_stream_connected",
			Help: "1 while the stream connection is open, 0 otherwise",
		})

		_ = prometheus.Register(streamMessages)
		_ = prometheus.Register(parseErrors)
		_ = prometheus.Register(reconnects)
		_ = prometheus.Register(commandsSent)
		_ = prometheus.Register(commandsDropped)
		_ = prometheus.Register(cacheInvalidations)
		_ = prometheus.Register(connectionState)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler returns the HTTP handler serving the prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncrementMessage counts one inbound message of the given type.
func IncrementMessage(msgType string) {
	atomic.AddInt64(&totalMessages, 1)
	if streamMessages != nil {
		streamMessages.WithLabelValues(msgType).Inc()
	}
}

// IncrementParseError counts one dropped unparseable message.
func IncrementParseError() {
	atomic.AddInt64(&totalParseErrors, 1)
	if parseErrors != nil {
		parseErrors.Inc()
	}
}

// IncrementReconnect counts one reconnect attempt.
func IncrementReconnect() {
	atomic.AddInt64(&totalReconnects, 1)
	if reconnects != nil {
		reconnects.Inc()
	}
}

// IncrementCommandSent counts one outbound command written to the socket.
func IncrementCommandSent() {
	atomic.AddInt64(&totalCommandsSent, 1)
	if commandsSent != nil {
		commandsSent.Inc()
	}
}

// IncrementCommandDropped counts one command dropped while disconnected.
func IncrementCommandDropped() {
	atomic.AddInt64(&totalCommandsDropped, 1)
	if commandsDropped != nil {
		commandsDropped.Inc()
	}
}

// IncrementCacheInvalidation counts one REST cache invalidation.
func IncrementCacheInvalidation() {
	atomic.AddInt64(&totalInvalidations, 1)
	if cacheInvalidations != nil {
		cacheInvalidations.Inc()
	}
}

// SetConnected records whether the stream connection is currently open.
func SetConnected(connected bool) {
	if connectionState == nil {
		return
	}
	if connected {
		connectionState.Set(1)
	} else {
		connectionState.Set(0)
	}
}

// Snapshot reports the counter totals for the dashboard status endpoint.
func Snapshot() map[string]int64 {
	return map[string]int64{
		"messages_received":   atomic.LoadInt64(&totalMessages),
		"parse_errors":        atomic.LoadInt64(&totalParseErrors),
		"reconnects":          atomic.LoadInt64(&totalReconnects),
		"commands_sent":       atomic.LoadInt64(&totalCommandsSent),
		"commands_dropped":    atomic.LoadInt64(&totalCommandsDropped),
		"cache_invalidations": atomic.LoadInt64(&totalInvalidations),
	}
}
