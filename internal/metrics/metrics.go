// Package metrics exposes Prometheus instrumentation for the store and the
// event handler.
package metrics

import (
	"context"
	"strconv"
	"time"

	"binstatus/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors. Create one per registry.
type Metrics struct {
	storeOps      *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	events        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "binstatus",
			Name:      "store_operations_total",
			Help:      "Store operations by operation and result.",
		}, []string{"op", "result"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "binstatus",
			Name:      "store_duration_seconds",
			Help:      "Store operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "binstatus",
			Name:      "events_total",
			Help:      "Handled events by detected schema and response status code.",
		}, []string{"schema", "code"}),
	}
	reg.MustRegister(m.storeOps, m.storeDuration, m.events)
	return m
}

// ObserveEvent counts one handled event.
func (m *Metrics) ObserveEvent(schema string, statusCode int) {
	if schema == "" {
		schema = "unknown"
	}
	m.events.WithLabelValues(schema, strconv.Itoa(statusCode)).Inc()
}

// Wrap instruments every call on repo.
func (m *Metrics) Wrap(repo domain.AverageRepository) domain.AverageRepository {
	return &instrumented{next: repo, m: m}
}

type instrumented struct {
	next domain.AverageRepository
	m    *Metrics
}

func (r *instrumented) UpdateStatus(ctx context.Context, id domain.BinID, status domain.FillLevel, at time.Time) error {
	return r.observe("update_status", func() error { return r.next.UpdateStatus(ctx, id, status, at) })
}

func (r *instrumented) AddReport(ctx context.Context, id domain.BinID, status domain.FillLevel, at time.Time) error {
	return r.observe("add_report", func() error { return r.next.AddReport(ctx, id, status, at) })
}

func (r *instrumented) observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	r.m.storeDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	result := "ok"
	if err != nil {
		result = "error"
	}
	r.m.storeOps.WithLabelValues(op, result).Inc()
	return err
}
