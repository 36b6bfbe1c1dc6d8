package telemetry

import (
	"context"

	"goa.design/clue/log"
)

// ClueLogger adapts goa.design/clue/log to the Logger interface the way the
// runtime's own telemetry grounding file does it: every call becomes a
// log.Fielder slice with the message carried as a "msg" field, so the
// formatting/debug settings clue reads off ctx (via log.Context,
// log.WithFormat, log.WithDebug) govern this logger's output too.
type ClueLogger struct{}

// NewClueLogger constructs a Logger that delegates to goa.design/clue/log.
// ctx passed to its methods must already have been wrapped with
// log.Context; agentd does this once at startup via telemetry.WithClueContext.
func NewClueLogger() Logger {
	return ClueLogger{}
}

// WithClueContext wraps ctx with clue's logging context so ClueLogger calls
// against it (and anything it derives) actually emit.
func WithClueContext(ctx context.Context, opts ...log.LogOption) context.Context {
	return log.Context(ctx, opts...)
}

func (ClueLogger) Debug(ctx context.Context, msg string, kv ...any) {
	log.Debug(ctx, append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvToFielders(kv)...)...)
}

func (ClueLogger) Info(ctx context.Context, msg string, kv ...any) {
	log.Info(ctx, append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvToFielders(kv)...)...)
}

func (ClueLogger) Warn(ctx context.Context, msg string, kv ...any) {
	fielders := append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvToFielders(kv)...)
	log.Warn(ctx, fielders...)
}

func (ClueLogger) Error(ctx context.Context, msg string, kv ...any) {
	log.Error(ctx, nil, append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvToFielders(kv)...)...)
}

// kvToFielders converts alternating key/value pairs into clue's Fielder
// slice, skipping any non-string key the way the pair it's grounded on does.
func kvToFielders(kv []any) []log.Fielder {
	var fielders []log.Fielder
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fielders = append(fielders, log.KV{K: key, V: kv[i+1]})
	}
	return fielders
}
