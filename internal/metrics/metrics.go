// Package metrics provides Prometheus metrics for memsetup
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for one process run
type Metrics struct {
	registry *prometheus.Registry

	// Store request metrics
	StoreRequestsTotal   *prometheus.CounterVec
	StoreRequestDuration *prometheus.HistogramVec

	// Sample data metrics
	RecordsInsertedTotal prometheus.Counter
	LinksWrittenTotal    prometheus.Counter
	LinksDroppedTotal    prometheus.Counter
	RecordsDeletedTotal  prometheus.Counter

	ActionFailuresTotal *prometheus.CounterVec
}

// NewMetrics creates all collectors on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.StoreRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memsetup_store_requests_total",
			Help: "Total number of requests sent to the store",
		},
		[]string{"operation", "status"},
	)

	m.StoreRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memsetup_store_request_duration_seconds",
			Help:    "Duration of store requests in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	m.RecordsInsertedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "memsetup_records_inserted_total",
			Help: "Total number of sample records inserted",
		},
	)

	m.LinksWrittenTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "memsetup_links_written_total",
			Help: "Total number of cross-reference links written",
		},
	)

	m.LinksDroppedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "memsetup_links_dropped_total",
			Help: "Total number of relation targets dropped because they did not resolve",
		},
	)

	m.RecordsDeletedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "memsetup_records_deleted_total",
			Help: "Total number of records deleted",
		},
	)

	m.ActionFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memsetup_action_failures_total",
			Help: "Total number of per-unit failures, by action",
		},
		[]string{"action"},
	)

	return m
}

// Registry exposes the registry backing these collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordStoreRequest records a store request with its status
func (m *Metrics) RecordStoreRequest(operation string, status string, duration time.Duration) {
	m.StoreRequestsTotal.WithLabelValues(operation, status).Inc()
	m.StoreRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordFailure counts one failed unit of work for action
func (m *Metrics) RecordFailure(action string) {
	m.ActionFailuresTotal.WithLabelValues(action).Inc()
}

// WriteTextfile writes every collected metric in the text exposition format,
// suitable for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
