package telemetry

import (
	"context"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts a zerolog.Logger to the Logger interface. This is the
// default ambient logger for the runtime (grounded on sacenox-symb's use of
// rs/zerolog as its leveled logger).
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(log zerolog.Logger) Logger {
	return &ZerologLogger{log: log}
}

func (z *ZerologLogger) event(ctx context.Context, e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	if sub, ok := ctx.Value(traceContextKey{}).(string); ok && sub != "" {
		e = e.Str("trace_id", sub)
	}
	e.Msg(msg)
}

func (z *ZerologLogger) Debug(ctx context.Context, msg string, kv ...any) {
	z.event(ctx, z.log.Debug(), msg, kv)
}

func (z *ZerologLogger) Info(ctx context.Context, msg string, kv ...any) {
	z.event(ctx, z.log.Info(), msg, kv)
}

func (z *ZerologLogger) Warn(ctx context.Context, msg string, kv ...any) {
	z.event(ctx, z.log.Warn(), msg, kv)
}

func (z *ZerologLogger) Error(ctx context.Context, msg string, kv ...any) {
	z.event(ctx, z.log.Error(), msg, kv)
}

type traceContextKey struct{}

// WithTraceID annotates ctx so subsequent log calls include trace_id.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceContextKey{}, traceID)
}
