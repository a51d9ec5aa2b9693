package finder

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/odvcencio/crescent/pkg/finder"

// Span attribute keys
var (
	AttrOperation    = attribute.Key("crescent.finder.operation")
	AttrLocator      = attribute.Key("crescent.finder.locator")
	AttrInvocationID = attribute.Key("crescent.finder.invocation_id")
	AttrSessionID    = attribute.Key("crescent.site.session_id")
	AttrTimeoutMS    = attribute.Key("crescent.wait.timeout_ms")
	AttrIntervalMS   = attribute.Key("crescent.wait.interval_ms")
	AttrMinStableMS  = attribute.Key("crescent.wait.min_stable_ms")
	AttrLatency      = attribute.Key("crescent.wait.latency")
	AttrOutcome      = attribute.Key("crescent.finder.outcome")
	AttrPolls        = attribute.Key("crescent.finder.polls")
	AttrRetries      = attribute.Key("crescent.finder.retries")
	AttrMatches      = attribute.Key("crescent.finder.matches")
)

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

func endSpan(span trace.Span, stats pollStats, err error, attrs ...attribute.KeyValue) {
	span.SetAttributes(
		AttrOutcome.String(string(stats.outcome)),
		AttrPolls.Int(stats.polls),
		AttrRetries.Int(stats.retries),
	)
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func spanContext(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
