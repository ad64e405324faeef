package dialect

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names recorded by TraceDriver.
const (
	SpanBegin    = "ogm.transport.begin"
	SpanExecute  = "ogm.transport.execute"
	SpanCommit   = "ogm.transport.commit"
	SpanRollback = "ogm.transport.rollback"
)

// TraceDriver wraps a Driver with OpenTelemetry spans, one per call.
type TraceDriver struct {
	Driver
	tracer trace.Tracer
}

// TraceOption configures the TraceDriver.
type TraceOption func(*TraceDriver)

// WithTracer sets the tracer. The default is the global tracer named
// "github.com/syssam/ogm/dialect".
func WithTracer(t trace.Tracer) TraceOption {
	return func(d *TraceDriver) {
		d.tracer = t
	}
}

// NewTraceDriver wraps drv with tracing.
func NewTraceDriver(drv Driver, opts ...TraceOption) *TraceDriver {
	d := &TraceDriver{
		Driver: drv,
		tracer: otel.Tracer("github.com/syssam/ogm/dialect"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *TraceDriver) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := d.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("db.system", d.Dialect()))
	span.SetAttributes(attrs...)
	return ctx, span
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Begin opens a transaction inside a span.
func (d *TraceDriver) Begin(ctx context.Context, opts TxOptions) (Endpoint, error) {
	ctx, span := d.start(ctx, SpanBegin, attribute.Bool("ogm.autocommit", opts.AutoCommit))
	ep, err := d.Driver.Begin(ctx, opts)
	if err == nil {
		span.SetAttributes(attribute.String("ogm.endpoint", ep.URL))
	}
	finish(span, err)
	return ep, err
}

// Execute runs a batch inside a span.
func (d *TraceDriver) Execute(ctx context.Context, ep Endpoint, stmts []Statement) ([]Result, error) {
	ops := make([]string, len(stmts))
	for i, s := range stmts {
		ops[i] = s.Op.Kind.String()
	}
	ctx, span := d.start(ctx, SpanExecute,
		attribute.String("ogm.endpoint", ep.URL),
		attribute.Int("ogm.statements", len(stmts)),
		attribute.StringSlice("ogm.operations", ops),
	)
	res, err := d.Driver.Execute(ctx, ep, stmts)
	finish(span, err)
	return res, err
}

// Commit commits a transaction inside a span.
func (d *TraceDriver) Commit(ctx context.Context, ep Endpoint) error {
	ctx, span := d.start(ctx, SpanCommit, attribute.String("ogm.endpoint", ep.URL))
	err := d.Driver.Commit(ctx, ep)
	finish(span, err)
	return err
}

// Rollback rolls a transaction back inside a span.
func (d *TraceDriver) Rollback(ctx context.Context, ep Endpoint) error {
	ctx, span := d.start(ctx, SpanRollback, attribute.String("ogm.endpoint", ep.URL))
	err := d.Driver.Rollback(ctx, ep)
	finish(span, err)
	return err
}

var _ Driver = (*TraceDriver)(nil)
