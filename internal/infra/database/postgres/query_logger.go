package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"

	applogger "github.com/wonny/snowbot/internal/pkg/logger"
)

// slowQuery is the duration above which a query is logged as a warning
const slowQuery = 100 * time.Millisecond

type ctxKey int

const queryStartKey ctxKey = 0

// QueryLogger implements pgx.QueryTracer
type QueryLogger struct {
	logger zerolog.Logger
}

// NewQueryLogger creates a query tracer
func NewQueryLogger(logger zerolog.Logger) *QueryLogger {
	return &QueryLogger{logger: logger}
}

// TraceQueryStart records the start time
func (ql *QueryLogger) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey, time.Now())
}

// TraceQueryEnd logs the query with its duration
func (ql *QueryLogger) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey).(time.Time)
	if !ok {
		start = time.Now()
	}
	duration := time.Since(start)

	var event *zerolog.Event
	msg := "Query executed"
	switch {
	case data.Err != nil:
		event = ql.logger.Error().Err(data.Err)
		msg = "Query failed"
	case duration > slowQuery:
		event = ql.logger.Warn()
		msg = "⚠️  Slow query detected"
	default:
		event = ql.logger.Debug()
	}

	if id := applogger.RequestID(ctx); id != "" {
		event = event.Str("request_id", id)
	}
	event.
		Str("sql", data.SQL).
		Int64("duration_ms", duration.Milliseconds()).
		Str("command_tag", data.CommandTag.String()).
		Msg(msg)
}

// PgxZerologAdapter adapts zerolog.Logger to tracelog.Logger
type PgxZerologAdapter struct {
	logger zerolog.Logger
}

// NewPgxZerologAdapter creates a new adapter
func NewPgxZerologAdapter(logger zerolog.Logger) *PgxZerologAdapter {
	return &PgxZerologAdapter{logger: logger}
}

// Log implements tracelog.Logger
func (l *PgxZerologAdapter) Log(_ context.Context, level tracelog.LogLevel, msg string, data map[string]interface{}) {
	var event *zerolog.Event
	switch level {
	case tracelog.LogLevelTrace:
		event = l.logger.Trace()
	case tracelog.LogLevelDebug:
		event = l.logger.Debug()
	case tracelog.LogLevelWarn:
		event = l.logger.Warn()
	case tracelog.LogLevelError:
		event = l.logger.Error()
	default:
		event = l.logger.Info()
	}
	event.Fields(data).Msg(msg)
}
