package statusapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/ZentaChain/chuck/pkg/network"
)

const metricsNamespace = "chuck"

// metrics holds one registry per status server so several servers can
// live in the same process
type metrics struct {
	registry     *prometheus.Registry
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func newMetrics(sources Sources) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
	)

	if sources.Server != nil {
		m.registerServer(sources.Server)
	}
	if sources.Router != nil {
		m.registerRouter(sources.Router)
	}
	if sources.Content != nil {
		m.registerContent(sources.Content)
	}
	return m
}

func (m *metrics) registerServer(src StatsSource) {
	counter := func(name, help string, value func(network.ServerStats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(
			prometheus.CounterOpts{Namespace: metricsNamespace, Subsystem: "server", Name: name, Help: help},
			func() float64 { return float64(value(src.Stats())) },
		)
	}

	m.registry.MustRegister(
		counter("connections_accepted_total", "Control-plane connections accepted.",
			func(s network.ServerStats) uint64 { return s.ConnectionsAccepted }),
		counter("frames_accepted_total", "Frames decoded and enqueued.",
			func(s network.ServerStats) uint64 { return s.FramesAccepted }),
		counter("frames_rejected_total", "Frames answered with a rejection.",
			func(s network.ServerStats) uint64 { return s.FramesRejected }),
		counter("dispatch_failures_total", "Envelopes dropped because the consumer was gone.",
			func(s network.ServerStats) uint64 { return s.DispatchFailures }),
		counter("accept_errors_total", "Failed accepts on the listener.",
			func(s network.ServerStats) uint64 { return s.AcceptErrors }),
		counter("read_errors_total", "Connections closed on a read failure.",
			func(s network.ServerStats) uint64 { return s.ReadErrors }),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "server",
				Name:      "connections_active",
				Help:      "Control-plane connections currently open.",
			},
			func() float64 { return float64(src.Stats().ConnectionsActive) },
		),
	)
}

func (m *metrics) registerRouter(src RouterSource) {
	outcomes := map[network.Outcome]func(network.RouterStats) uint64{
		network.OutcomeHandled: func(s network.RouterStats) uint64 { return s.Handled },
		network.OutcomeFailed:  func(s network.RouterStats) uint64 { return s.Failed },
		network.OutcomeSkipped: func(s network.RouterStats) uint64 { return s.Skipped },
	}
	for outcome, value := range outcomes {
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace:   metricsNamespace,
				Subsystem:   "dispatch",
				Name:        "envelopes_total",
				Help:        "Envelopes taken off the queue, by outcome.",
				ConstLabels: prometheus.Labels{"outcome": string(outcome)},
			},
			func() float64 { return float64(value(src.Stats())) },
		))
	}
}

func (m *metrics) registerContent(src ContentSource) {
	gauge := func(name, help string, value func(contents, shards int, size int64) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: metricsNamespace, Subsystem: "content", Name: name, Help: help},
			func() float64 {
				stats, err := src.Storage().GetStats()
				if err != nil {
					log.Warn().Err(err).Str("metric", name).Msg("failed to read content stats")
					return 0
				}
				return value(stats.Contents, stats.Shards, stats.TotalSize)
			},
		)
	}

	m.registry.MustRegister(
		gauge("items", "Content items stored locally.",
			func(contents, _ int, _ int64) float64 { return float64(contents) }),
		gauge("shards", "Erasure coded shards stored locally.",
			func(_, shards int, _ int64) float64 { return float64(shards) }),
		gauge("bytes", "Bytes of shard data stored locally.",
			func(_, _ int, size int64) float64 { return float64(size) }),
	)
}

func (m *metrics) handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// RequestMetrics counts requests and their latency by route
func (m *metrics) RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		m.httpRequests.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}
