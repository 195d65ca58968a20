// SPDX-License-Identifier: MIT

package log

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// WithTraceContext returns the base logger enriched with trace correlation
// fields when ctx carries a valid span context.
func WithTraceContext(ctx context.Context) zerolog.Logger {
	return traceFields(ctx, logger())
}

// traceFields copies the active span identity onto l so log lines and
// spans can be joined in the tracing backend.
func traceFields(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
}
