package cli

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// logFormatEnv selects the log encoding: "text" (default), "logfmt" or
// "json". CI systems that ingest logs usually want one of the latter.
const logFormatEnv = "FLATCARGO_LOG_FORMAT"

// newLogger creates a logger writing to w. Timestamps ("HH:MM:SS.ms") are
// only shown at debug level, where stage timings matter.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: level <= log.DebugLevel,
		TimeFormat:      "15:04:05.00",
		Level:           level,
		Formatter:       formatterFromEnv(),
	})
}

func formatterFromEnv() log.Formatter {
	switch strings.ToLower(os.Getenv(logFormatEnv)) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}

// setLevel changes the level of l, keeping timestamps in step with it.
func setLevel(l *log.Logger, level log.Level) {
	l.SetLevel(level)
	l.SetReportTimestamp(level <= log.DebugLevel)
}

// progress logs how long a stage took. Not safe for concurrent use.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg with the caller's fields and the elapsed time.
func (p *progress) done(msg string, keyvals ...any) {
	p.logger.Info(msg, append(keyvals, "elapsed", time.Since(p.start).Round(time.Millisecond))...)
}

type ctxKey int

const loggerKey ctxKey = 0

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext returns the logger attached to ctx, or log.Default().
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
