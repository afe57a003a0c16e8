// Package observability provides Prometheus metrics and OpenTelemetry tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// RedisErrorRate counts Redis errors by command.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelgram_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records Entity Store latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pixelgram_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// RelationshipToggles counts follow, like and bookmark mutations by outcome.
	RelationshipToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelgram_relationship_toggles_total",
		Help: "Relationship mutations by kind and resulting state",
	}, []string{"kind", "outcome"})

	// StoreRetries counts retried store operations by operation name.
	StoreRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelgram_store_retries_total",
		Help: "Store operations retried after a transient failure",
	}, []string{"operation"})

	// MediaStored counts images written by the media store by format.
	MediaStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelgram_media_stored_total",
		Help: "Images written by the media store",
	}, []string{"format"})

	// NotificationsPublished counts realtime events by type and result.
	NotificationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelgram_notifications_published_total",
		Help: "Notification events published by type and result",
	}, []string{"event_type", "result"})
)

const queryStartKey = "observability:query_start"

// RegisterGormMetrics installs callbacks that record DatabaseQueryLatency for every statement.
func RegisterGormMetrics(db *gorm.DB) error {
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
				table = "unknown"
			}
			DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
		}
	}

	cb := db.Callback()
	steps := []struct {
		op       string
		register func(name string, before, after func(*gorm.DB)) error
	}{
		{"create", func(name string, b, a func(*gorm.DB)) error {
			if err := cb.Create().Before("gorm:create").Register(name+":before", b); err != nil {
				return err
			}
			return cb.Create().After("gorm:create").Register(name+":after", a)
		}},
		{"query", func(name string, b, a func(*gorm.DB)) error {
			if err := cb.Query().Before("gorm:query").Register(name+":before", b); err != nil {
				return err
			}
			return cb.Query().After("gorm:query").Register(name+":after", a)
		}},
		{"update", func(name string, b, a func(*gorm.DB)) error {
			if err := cb.Update().Before("gorm:update").Register(name+":before", b); err != nil {
				return err
			}
			return cb.Update().After("gorm:update").Register(name+":after", a)
		}},
		{"delete", func(name string, b, a func(*gorm.DB)) error {
			if err := cb.Delete().Before("gorm:delete").Register(name+":before", b); err != nil {
				return err
			}
			return cb.Delete().After("gorm:delete").Register(name+":after", a)
		}},
		{"raw", func(name string, b, a func(*gorm.DB)) error {
			if err := cb.Raw().Before("gorm:raw").Register(name+":before", b); err != nil {
				return err
			}
			return cb.Raw().After("gorm:raw").Register(name+":after", a)
		}},
	}

	for _, s := range steps {
		if err := s.register("observability:"+s.op, before, after(s.op)); err != nil {
			return err
		}
	}
	return nil
}
