package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type gauge struct {
	ID   uint
	Name string
}

func TestRegisterGormMetrics_ObservesQueries(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:observability?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&gauge{}))
	require.NoError(t, RegisterGormMetrics(db))

	require.NoError(t, db.Create(&gauge{Name: "a"}).Error)
	var got []gauge
	require.NoError(t, db.Find(&got).Error)

	assert.Positive(t, sampleCount(t, "create", "gauges"))
	assert.Positive(t, sampleCount(t, "query", "gauges"))
}

func sampleCount(t *testing.T, operation, table string) uint64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "pixelgram_database_query_latency_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["operation"] == operation && labels["table"] == table {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{ServiceName: "pixelgram-test"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := Tracer
	Tracer = tp.Tracer("pixelgram-test")
	t.Cleanup(func() {
		Tracer = prev
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func TestStartServiceSpan_CarriesEdge(t *testing.T) {
	rec := recordSpans(t)

	_, span := StartServiceSpan(context.Background(), "UserService", "FollowOrUnfollow",
		Edge{Relation: RelationFollow, ActorID: 7, SubjectID: 9})
	EndSpan(span, nil)
	_, span = StartServiceSpan(context.Background(), "PostService", "DeletePost",
		Edge{Relation: RelationAuthor, ActorID: 7, PostID: 42}, attribute.Bool("extra", true))
	EndSpan(span, errors.New("boom"))

	ended := rec.Ended()
	require.Len(t, ended, 2)

	follow := attributeMap(ended[0].Attributes())
	assert.Equal(t, "UserService.FollowOrUnfollow", ended[0].Name())
	assert.Equal(t, "follow", follow[RelationKey].AsString())
	assert.Equal(t, int64(7), follow[ActorKey].AsInt64())
	assert.Equal(t, int64(9), follow[SubjectKey].AsInt64())
	assert.NotContains(t, follow, PostKey)

	del := attributeMap(ended[1].Attributes())
	assert.Equal(t, int64(42), del[PostKey].AsInt64())
	assert.NotContains(t, del, SubjectKey)
	assert.True(t, del["extra"].AsBool())
	assert.Equal(t, codes.Error, ended[1].Status().Code)
}

func attributeMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[kv.Key] = kv.Value
	}
	return m
}
