// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger is the process-wide logger. Init replaces it.
var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init configures the global logger for a service.
func Init(serviceName, level string, pretty bool) {
	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	Logger = zerolog.New(out).With().Timestamp().Str("service", serviceName).Logger()
}

// Ctx returns the logger stored in ctx, or the global one. When ctx carries a
// recording span, the trace id is attached.
func Ctx(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return &Logger
	}
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		l = &Logger
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		withTrace := l.With().Str("trace_id", sc.TraceID().String()).Logger()
		return &withTrace
	}
	return l
}

// WithContext stores l in ctx for Ctx to find.
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}
