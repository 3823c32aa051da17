package cli

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/wheelhouse/pkg/config"
)

// logEnv sets the starting log level ("debug", "info", "warn", "error").
// -v still raises it to debug.
const logEnv = config.EnvPrefix + "LOG"

// newLogger creates a logger writing to w at level, with timestamps
// formatted as "HH:MM:SS.ms".
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// envLevel returns the level named by value, or fallback when value is
// empty or not a level name.
func envLevel(value string, fallback log.Level) log.Level {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	level, err := log.ParseLevel(value)
	if err != nil {
		return fallback
	}
	return level
}

// progress logs how long an operation took once it is done.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg with the elapsed time, e.g. "Resolved 42 packages (1.234s)".
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

// eventLogger writes resolver and cache events at debug level to the
// logger carried by the event's context.
type eventLogger struct{}

func (eventLogger) OnResolveStart(ctx context.Context, roots int) {
	loggerFromContext(ctx).Debugf("resolving %s", pluralize(roots, "root requirement"))
}

func (eventLogger) OnResolveComplete(ctx context.Context, packages, rounds int, _ time.Duration, err error) {
	if err != nil {
		loggerFromContext(ctx).Debugf("resolution failed after %s", pluralize(rounds, "round"))
		return
	}
	loggerFromContext(ctx).Debugf("pinned %s in %s", pluralize(packages, "package"), pluralize(rounds, "round"))
}

func (eventLogger) OnBacktrack(ctx context.Context, pkg string, depth int) {
	loggerFromContext(ctx).Debugf("backtrack: %s rejected, resuming at depth %d", pkg, depth)
}

func (eventLogger) OnCacheHit(ctx context.Context, keyType string) {
	loggerFromContext(ctx).Debugf("cache hit (%s)", keyType)
}

func (eventLogger) OnCacheMiss(ctx context.Context, keyType string) {
	loggerFromContext(ctx).Debugf("cache miss (%s)", keyType)
}

func (eventLogger) OnCacheSet(context.Context, string, int) {}

type ctxKey int

const loggerKey ctxKey = 0

// withLogger returns a new context carrying l.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext returns the logger stored in ctx, or log.Default().
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
