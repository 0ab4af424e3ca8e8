package middleware

import (
	"context"
	"log/slog"

	"github.com/warden-proxy/warden/pkg/domain"
)

// Sink receives structured security events: flagged-but-allowed conditions and
// rejections. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, event domain.Event)
}

// SlogSink writes security events to a structured logger. Rejections log at
// warn, flags at info.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink builds a sink over the given logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Record logs the event. Field names and categories only; offending values
// never reach the log.
func (s *SlogSink) Record(ctx context.Context, event domain.Event) {
	attrs := []any{
		"kind", string(event.Kind),
		"scope", string(event.Scope),
		"field", event.Field,
		"method", event.Method,
		"path", event.Path,
		"request_id", event.RequestID,
	}
	if event.Category != "" {
		attrs = append(attrs, "category", string(event.Category))
	}
	if event.Rule != "" {
		attrs = append(attrs, "rule", event.Rule)
	}

	switch event.Kind {
	case domain.EventRejected:
		s.logger.WarnContext(ctx, "request rejected by security validation", attrs...)
	default:
		s.logger.InfoContext(ctx, "suspicious request condition flagged", attrs...)
	}
}

// NopSink discards all events.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(context.Context, domain.Event) {}
