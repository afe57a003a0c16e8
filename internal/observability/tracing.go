package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the tracer every request and service span is started from.
var Tracer trace.Tracer = otel.Tracer("pixelgram-api")

// Span attribute keys for the relationship a service call touches.
const (
	RelationKey = attribute.Key("pixelgram.relation")
	ActorKey    = attribute.Key("pixelgram.actor.id")
	SubjectKey  = attribute.Key("pixelgram.subject.id")
	PostKey     = attribute.Key("pixelgram.post.id")
)

// Relation kinds recorded under RelationKey.
const (
	RelationFollow   = "follow"
	RelationLike     = "like"
	RelationBookmark = "bookmark"
	RelationComment  = "comment"
	RelationMessage  = "message"
	RelationAuthor   = "author"
	RelationProfile  = "profile"
)

// Edge names the relationship a service call reads or writes: who acts, on
// which user or post, through which relation. Zero ids are left off the span.
type Edge struct {
	Relation  string
	ActorID   uint
	SubjectID uint
	PostID    uint
}

func (e Edge) attributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if e.Relation != "" {
		attrs = append(attrs, RelationKey.String(e.Relation))
	}
	if e.ActorID != 0 {
		attrs = append(attrs, ActorKey.Int64(int64(e.ActorID)))
	}
	if e.SubjectID != 0 {
		attrs = append(attrs, SubjectKey.Int64(int64(e.SubjectID)))
	}
	if e.PostID != 0 {
		attrs = append(attrs, PostKey.Int64(int64(e.PostID)))
	}
	return attrs
}

// TracingConfig selects the exporter and sampling for InitTracing.
type TracingConfig struct {
	ServiceName  string
	Environment  string
	Enabled      bool
	Exporter     string // stdout | otlp
	OTLPEndpoint string
	SampleRatio  float64
}

// InitTracing installs the tracer provider and W3C propagation. The returned
// func flushes pending spans; it is a no-op when tracing is disabled.
func InitTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		Tracer = otel.Tracer(cfg.ServiceName)
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing exporter %q: %w", cfg.Exporter, err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	Tracer = tp.Tracer(cfg.ServiceName)
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	if cfg.Exporter == "otlp" {
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithInsecure())
	}
	return stdouttrace.New()
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// StartServiceSpan starts the "<service>.<method>" span for one engine call,
// tagged with the edge it touches.
func StartServiceSpan(ctx context.Context, service, method string, edge Edge, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs := append(edge.attributes(), extra...)
	return Tracer.Start(ctx, service+"."+method,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...))
}

// EndSpan marks span failed when err is set and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
