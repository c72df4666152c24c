package httpx

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "httpremote"

// Metrics 连接池、出站请求与入站请求的 Prometheus 指标
type Metrics struct {
	poolHits      prometheus.Counter
	poolMisses    prometheus.Counter
	poolCreations prometheus.Counter
	poolEvictions *prometheus.CounterVec
	poolSize      prometheus.Gauge

	clientRequests *prometheus.CounterVec
	clientDuration *prometheus.HistogramVec

	serverRequests *prometheus.CounterVec
	serverDuration *prometheus.HistogramVec
}

// NewMetrics 创建并注册指标
// registerer 为 nil 时使用独立的 Registry；同一 registerer 重复创建会复用已注册的指标
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}

	buckets := []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

	return &Metrics{
		poolHits: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      "hits_total",
			Help:      "Connection pool lookups served by an existing entry.",
		})),
		poolMisses: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      "misses_total",
			Help:      "Connection pool lookups that found no entry.",
		})),
		poolCreations: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      "creations_total",
			Help:      "Connections constructed by the pool.",
		})),
		poolEvictions: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      "evictions_total",
			Help:      "Connections released by the pool.",
		}, []string{"reason"})),
		poolSize: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      "size",
			Help:      "Current number of pooled addresses.",
		})),
		clientRequests: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Outbound requests by path and status.",
		}, []string{"path", "status"})),
		clientDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Outbound request latency.",
			Buckets:   buckets,
		}, []string{"path"})),
		serverRequests: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Inbound requests by route and status.",
		}, []string{"path", "status"})),
		serverDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Inbound request latency.",
			Buckets:   buckets,
		}, []string{"path"})),
	}
}

func register[C prometheus.Collector](registerer prometheus.Registerer, c C) C {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
