// Package observability provides Prometheus metrics and OpenTelemetry tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// PostTransitions counts moderation state changes by transition name.
	PostTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_post_transitions_total",
		Help: "Post lifecycle transitions by name",
	}, []string{"transition"})

	// LikeToggles counts like toggles by target and resulting action.
	LikeToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_like_toggles_total",
		Help: "Like toggles by target (post, comment) and action (like, unlike)",
	}, []string{"target", "action"})

	// CascadeDocuments counts documents touched by cascades by outcome.
	CascadeDocuments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_cascade_documents_total",
		Help: "Documents processed by cascades",
	}, []string{"cascade", "kind", "outcome"})

	// CounterDrift counts cached counters corrected by reconciliation.
	CounterDrift = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_counter_drift_total",
		Help: "Denormalized counters found out of sync and corrected",
	}, []string{"counter"})

	// ReconcileRuns counts reconciliation passes by trigger and result.
	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_reconcile_runs_total",
		Help: "Reconciliation passes",
	}, []string{"trigger", "result"})

	// CacheRequests counts list cache lookups by result.
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_cache_requests_total",
		Help: "Cache lookups by cache name and result (hit, miss, error)",
	}, []string{"cache", "result"})

	// RedisErrors counts Redis errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_redis_errors_total",
		Help: "Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "folio_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})
)

const queryStartKey = "folio:query_start"

// InstrumentDB registers GORM callbacks that feed DatabaseQueryLatency.
func InstrumentDB(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(queryStartKey, time.Now())
	}
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(queryStartKey)
			if !ok {
				return
			}
			start, ok := v.(time.Time)
			if !ok {
				return
			}
			table := tx.Statement.Table
			if table == "" {
				table = "raw"
			}
			DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
		}
	}

	cb := db.Callback()
	steps := []struct {
		op     string
		before func(string) error
		after  func(string) error
	}{
		{"create", func(n string) error { return cb.Create().Before("gorm:create").Register(n, before) },
			func(n string) error { return cb.Create().After("gorm:create").Register(n, after("create")) }},
		{"query", func(n string) error { return cb.Query().Before("gorm:query").Register(n, before) },
			func(n string) error { return cb.Query().After("gorm:query").Register(n, after("query")) }},
		{"update", func(n string) error { return cb.Update().Before("gorm:update").Register(n, before) },
			func(n string) error { return cb.Update().After("gorm:update").Register(n, after("update")) }},
		{"delete", func(n string) error { return cb.Delete().Before("gorm:delete").Register(n, before) },
			func(n string) error { return cb.Delete().After("gorm:delete").Register(n, after("delete")) }},
		{"raw", func(n string) error { return cb.Raw().Before("gorm:raw").Register(n, before) },
			func(n string) error { return cb.Raw().After("gorm:raw").Register(n, after("raw")) }},
	}
	for _, s := range steps {
		if err := s.before("folio:metrics_before_" + s.op); err != nil {
			return err
		}
		if err := s.after("folio:metrics_after_" + s.op); err != nil {
			return err
		}
	}
	return nil
}
