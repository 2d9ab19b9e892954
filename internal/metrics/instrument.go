package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kailas-cloud/topoagent/internal/logger"
)

var tracer = otel.Tracer("github.com/kailas-cloud/topoagent/orchestrator")

// Instrument runs fn and records exactly one invocation (status and latency)
// plus a span, whatever fn returns. The result and error of fn pass through
// untouched; a panicking recorder is logged and swallowed.
func Instrument[T any](
	ctx context.Context, rec Recorder, family Family, name string,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	ctx, span := tracer.Start(ctx, string(family)+"."+name,
		trace.WithAttributes(
			attribute.String("orchestrator.family", string(family)),
			attribute.String("orchestrator.name", name),
		),
	)
	start := time.Now()

	status := StatusError
	defer func() {
		if status == StatusError {
			span.SetStatus(codes.Error, "invocation failed")
		}
		span.End()
		record(ctx, rec, family, name, status, time.Since(start))
	}()

	res, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	status = StatusOK
	return res, nil
}

func record(ctx context.Context, rec Recorder, family Family, name, status string, d time.Duration) {
	if rec == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).Warn("Metrics recorder panicked",
				zap.String("family", string(family)),
				zap.String("name", name),
				zap.Any("panic", r),
			)
		}
	}()
	rec.ObserveInvocation(family, name, status, d)
}
