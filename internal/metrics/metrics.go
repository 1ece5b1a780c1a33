// Package metrics exposes Prometheus metrics on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "promptvault"

// Collector holds all Prometheus metrics for the server. It implements
// store.Observer and service.CommandObserver.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Subscriptions prometheus.Gauge
	Snapshots     prometheus.Counter
	SnapshotSize  prometheus.Histogram
	Commands      *prometheus.CounterVec
	StreamClients prometheus.Gauge
}

// NewCollector creates a collector with its own registry, so several can
// coexist in one process.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "live_subscriptions",
			Help:      "Number of open live prompt queries",
		}),
		Snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "snapshots_delivered_total",
			Help:      "Total number of snapshots delivered to subscribers",
		}),
		SnapshotSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "snapshot_prompts",
			Help:      "Number of prompts per delivered snapshot",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 6),
		}),
		Commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "commands_total",
				Help:      "Total number of prompt commands by outcome",
			},
			[]string{"op", "status"},
		),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "stream_clients",
			Help:      "Number of connected event stream clients",
		}),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Subscriptions,
		c.Snapshots,
		c.SnapshotSize,
		c.Commands,
		c.StreamClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// SubscriptionOpened implements store.Observer.
func (c *Collector) SubscriptionOpened() { c.Subscriptions.Inc() }

// SubscriptionClosed implements store.Observer.
func (c *Collector) SubscriptionClosed() { c.Subscriptions.Dec() }

// SnapshotDelivered implements store.Observer.
func (c *Collector) SnapshotDelivered(size int) {
	c.Snapshots.Inc()
	c.SnapshotSize.Observe(float64(size))
}

// CommandCompleted implements service.CommandObserver.
func (c *Collector) CommandCompleted(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Commands.WithLabelValues(op, status).Inc()
}

// Middleware records request counts and latencies. Routes are labelled by
// their chi pattern to keep cardinality bounded.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
