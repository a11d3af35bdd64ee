// Package metrics implements bucse's optional Prometheus metrics surface
// (SPEC_FULL DOMAIN STACK expansion): cache hit/miss/eviction counters,
// reconciler tick/ingest counters, and an action-log depth gauge, exposed on
// an HTTP listener started at mount time when configured.
//
// Grounded on the teacher's internal/metrics/collector.go (Collector holding
// a dedicated prometheus.Registry, NewCollector/Start/Stop lifecycle,
// CounterVec/GaugeVec construction, promhttp.HandlerFor), trimmed to the
// handful of series bucse's Block Cache and Reconciler actually produce —
// the teacher's per-operation duration/size histograms and connection gauge
// have no bucse analog since there's no client-request boundary to time.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds bucse's Prometheus collectors and the HTTP server exposing
// them. New never returns nil, but a nil *Registry makes every Add/Record/
// Set method, Addr and Stop a safe no-op, so callers holding a nil Registry
// need not branch on whether metrics are enabled. Start requires a non-nil
// Registry.
type Registry struct {
	registry *prometheus.Registry
	server   *http.Server
	ln       net.Listener

	cacheHits      *prometheus.CounterVec
	cacheEvictions prometheus.Counter
	cacheSize      *prometheus.GaugeVec

	reconcilerTicks   prometheus.Counter
	reconcilerIngests *prometheus.CounterVec
	actionLogDepth    prometheus.Gauge
}

// New constructs a Registry with no HTTP listener; callers can record into
// the collectors right away (useful for tests). Use Start to bind the
// listener.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bucse",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Block cache lookups by outcome (hit/miss).",
		}, []string{"outcome"}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bucse",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Block cache entries evicted to satisfy its entry/byte bounds.",
		}),
		cacheSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bucse",
			Subsystem: "cache",
			Name:      "size",
			Help:      "Current block cache occupancy.",
		}, []string{"unit"}),
		reconcilerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bucse",
			Subsystem: "reconciler",
			Name:      "ticks_total",
			Help:      "Concurrency harness ticks delivered to the destination.",
		}),
		reconcilerIngests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bucse",
			Subsystem: "reconciler",
			Name:      "ingested_actions_total",
			Help:      "Ingest batches merged into the action log, by whether they arrived in order.",
		}, []string{"order"}),
		actionLogDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bucse",
			Subsystem: "reconciler",
			Name:      "action_log_depth",
			Help:      "Number of actions currently held in the in-memory action log.",
		}),
	}

	reg.MustRegister(r.cacheHits, r.cacheEvictions, r.cacheSize,
		r.reconcilerTicks, r.reconcilerIngests, r.actionLogDepth)

	return r
}

// Start binds an HTTP listener at addr serving /metrics. Returns immediately;
// listener errors surface through the returned error only for bind failures,
// not for later runtime I/O (mirrors the teacher's background ListenAndServe
// goroutine).
func (r *Registry) Start(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))

	r.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", addr, err)
	}
	r.ln = ln
	go func() {
		_ = r.server.Serve(ln)
	}()
	return nil
}

// Addr returns the address the HTTP listener actually bound to, useful when
// Start was called with an ephemeral ":0" port. Empty if Start hasn't run.
func (r *Registry) Addr() string {
	if r == nil || r.ln == nil {
		return ""
	}
	return r.ln.Addr().String()
}

// Stop shuts the HTTP listener down, if one was started.
func (r *Registry) Stop(ctx context.Context) error {
	if r == nil || r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}

// AddCacheHits and AddCacheMisses report newly observed internal/cache.Cache
// lookups since the last report. internal/repo polls Cache.Stats once per
// tick rather than hooking every Get, so callers pass the delta since the
// previous poll, not a single event.
func (r *Registry) AddCacheHits(n int64) {
	if r == nil || n == 0 {
		return
	}
	r.cacheHits.WithLabelValues("hit").Add(float64(n))
}

func (r *Registry) AddCacheMisses(n int64) {
	if r == nil || n == 0 {
		return
	}
	r.cacheHits.WithLabelValues("miss").Add(float64(n))
}

// AddCacheEvictions reports newly observed evictions since the last poll.
func (r *Registry) AddCacheEvictions(n int64) {
	if r == nil || n == 0 {
		return
	}
	r.cacheEvictions.Add(float64(n))
}

// SetCacheSize records the cache's current entry count and byte occupancy.
func (r *Registry) SetCacheSize(entries int, bytes int64) {
	if r == nil {
		return
	}
	r.cacheSize.WithLabelValues("entries").Set(float64(entries))
	r.cacheSize.WithLabelValues("bytes").Set(float64(bytes))
}

// RecordTick tallies one concurrency-harness tick (internal/repo.tickLoop).
func (r *Registry) RecordTick() {
	if r == nil {
		return
	}
	r.reconcilerTicks.Inc()
}

// RecordIngest adds count to the ingest counter, labelled by whether the
// batch arrived already in order. internal/repo passes the number of merged
// ingest batches (reconciler.Log.IngestedBatches) since its previous report,
// not the number of individual actions in them.
func (r *Registry) RecordIngest(count int, outOfOrder bool) {
	if r == nil || count == 0 {
		return
	}
	label := "in_order"
	if outOfOrder {
		label = "out_of_order"
	}
	r.reconcilerIngests.WithLabelValues(label).Add(float64(count))
}

// SetActionLogDepth records the action log's current length.
func (r *Registry) SetActionLogDepth(depth int) {
	if r == nil {
		return
	}
	r.actionLogDepth.Set(float64(depth))
}
