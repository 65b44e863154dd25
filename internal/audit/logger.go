package audit

import (
	"context"
	"log/slog"

	"github.com/cordonlabs/cordon/internal/ctxkeys"
)

// Logger provides structured audit logging for boundary decisions.
// Every allow and block on a privileged route produces one entry.
type Logger struct {
	slogger  *slog.Logger
	sampling SamplingConfig
}

// NewLogger creates an audit logger with the given sampling configuration.
func NewLogger(slogger *slog.Logger, sampling SamplingConfig) *Logger {
	return &Logger{slogger: slogger, sampling: sampling}
}

// LogRequest logs an audit entry from the request context. Session tokens
// never appear in entries; the subject is the resolved email.
func (l *Logger) LogRequest(ctx context.Context) {
	entry, ok := ctxkeys.AuditEntryFrom(ctx)
	if !ok {
		return
	}

	if !l.sampling.ShouldLog(entry.Status) {
		return
	}

	attrs := []slog.Attr{
		slog.String("correlation_id", entry.CorrelationID),
		slog.Group("attributes",
			slog.String("gateway.route", entry.Route),
			slog.String("gateway.client_ip", entry.ClientIP),
			slog.String("gateway.subject", entry.Subject),
			slog.String("gateway.status", entry.Status),
			slog.String("gateway.block_reason", entry.BlockReason),
			slog.Time("gateway.start_time", entry.StartTime),
		),
	}

	l.slogger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}
