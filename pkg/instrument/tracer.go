package instrument

import (
	"context"
	"time"

	"github.com/delaneyj/cascade/reactive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "cascade"

// Tracer turns engine activity into OpenTelemetry spans. Hooks fire once the
// work is done, so spans are backdated by the reported duration.
// Disposals are not traced.
type Tracer struct {
	tracer trace.Tracer
	ctx    context.Context
}

var _ reactive.Hooks = (*Tracer)(nil)

// NewTracer wraps tracer. A nil tracer resolves to the global provider's
// "cascade" tracer; configure the provider in main() before creating
// systems.
func NewTracer(tracer trace.Tracer) *Tracer {
	if tracer == nil {
		tracer = otel.Tracer(defaultTracerName)
	}
	return &Tracer{
		tracer: tracer,
		ctx:    context.Background(),
	}
}

// WithContext returns a copy whose spans are children of the span in ctx.
func (t *Tracer) WithContext(ctx context.Context) *Tracer {
	return &Tracer{tracer: t.tracer, ctx: ctx}
}

func (t *Tracer) span(name string, took time.Duration, err error, attrs ...attribute.KeyValue) {
	end := time.Now()
	_, span := t.tracer.Start(t.ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
		trace.WithTimestamp(end.Add(-took)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

func (t *Tracer) Recomputed(n reactive.Node, changed bool, took time.Duration) {
	t.span("cascade.recompute", took, nil,
		attribute.String("cascade.node", n.Name()),
		attribute.Int("cascade.depth", n.Depth()),
		attribute.Bool("cascade.changed", changed),
	)
}

func (t *Tracer) EffectRan(n reactive.Node, took time.Duration, err error) {
	t.span("cascade.effect", took, err,
		attribute.String("cascade.node", n.Name()),
		attribute.Int("cascade.depth", n.Depth()),
	)
}

func (t *Tracer) Flushed(rounds, processed int, took time.Duration, err error) {
	t.span("cascade.flush", took, err,
		attribute.Int("cascade.rounds", rounds),
		attribute.Int("cascade.processed", processed),
	)
}

func (t *Tracer) BatchCommitted(signals int) {
	t.span("cascade.batch", 0, nil,
		attribute.Int("cascade.signals", signals),
	)
}

func (t *Tracer) Disposed(reactive.Node) {}
