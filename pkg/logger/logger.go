package logger

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Setup configures the global zerolog logger for service: JSON at info
// level in deployed environments, colored console output at debug level
// locally.
func Setup(service string, isLocalDev bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	base := zerolog.New(os.Stderr)
	if isLocalDev {
		level = zerolog.DebugLevel
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = base.With().Timestamp().Str("service", service).Logger()

	// log.Ctx on a context without a logger falls back to the global one.
	zerolog.DefaultContextLogger = &log.Logger
}

// EnrichContextWithLogger stores a logger carrying the current trace and
// span ids in ctx. Contexts without a recording span are returned as is.
func EnrichContextWithLogger(ctx context.Context) context.Context {
	span := trace.SpanFromContext(ctx)
	sc := span.SpanContext()
	if !span.IsRecording() || !sc.HasTraceID() {
		return ctx
	}

	l := log.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
	return l.WithContext(ctx)
}

// Middleware injects the trace-enriched logger into every request context.
// It must run inside the otelhttp handler so the span already exists.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(EnrichContextWithLogger(r.Context())))
	})
}
