// Package metrics collects and exposes Prometheus metrics for the ledger.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sync result label values.
const (
	SyncOK       = "ok"
	SyncFailed   = "failed"
	SyncNotFound = "not_found"
)

// Recorder is what the closer and the host layer report to.
type Recorder interface {
	RecordRegistration()
	RecordRegistrationRejected(reason string)
	RecordClose(outcome string)
	RecordSync(op, result string)
	RecordSyncLatency(d time.Duration)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	registrations *prometheus.CounterVec
	closes        *prometheus.CounterVec
	syncOps       *prometheus.CounterVec
	syncLatency   prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_registrations_total",
			Help: "Food registration attempts by result.",
		}, []string{"result"}),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_closes_total",
			Help: "Day close calls by outcome.",
		}, []string{"outcome"}),
		syncOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_sync_operations_total",
			Help: "Remote backup operations by operation and result.",
		}, []string{"op", "result"}),
		syncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_sync_latency_seconds",
			Help:    "Remote backup call latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(c.registrations, c.closes, c.syncOps, c.syncLatency)
	return c
}

func (c *Collector) RecordRegistration() {
	c.registrations.WithLabelValues("ok").Inc()
}

// RecordRegistrationRejected counts a registration refused before any
// mutation, labelled with the reason (invalid_quantity, food_not_found).
func (c *Collector) RecordRegistrationRejected(reason string) {
	c.registrations.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordClose(outcome string) {
	c.closes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordSync(op, result string) {
	c.syncOps.WithLabelValues(op, result).Inc()
}

func (c *Collector) RecordSyncLatency(d time.Duration) {
	c.syncLatency.Observe(d.Seconds())
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordRegistration()               {}
func (Nop) RecordRegistrationRejected(string) {}
func (Nop) RecordClose(string)                {}
func (Nop) RecordSync(string, string)         {}
func (Nop) RecordSyncLatency(time.Duration)   {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
