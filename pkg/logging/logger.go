// Package logging wraps slog with the field names used across the search
// pipeline.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ChrisMcGann/DBSearch/pkg/progress"
)

// Logger wraps slog.Logger with pipeline-specific helpers.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to w in the given format ("text" or "json").
// A nil w writes to stderr.
func New(w io.Writer, format string, level slog.Level) (*Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format '%s' (want text or json)", format)
	}
	return &Logger{Logger: slog.New(handler)}, nil
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level '%s': %w", s, err)
	}
	return level, nil
}

// Progress returns a progress.Func that logs at most once per interval and
// stage. The first report and completion are always logged.
func (l *Logger) Progress(interval time.Duration) progress.Func {
	var (
		mu     sync.Mutex
		stages = make(map[string]*rate.Sometimes)
	)
	return func(r progress.Report) {
		mu.Lock()
		s, ok := stages[r.Stage]
		if !ok {
			s = &rate.Sometimes{First: 1, Interval: interval}
			stages[r.Stage] = s
		}
		mu.Unlock()

		emit := func() {
			l.Info("progress", "stage", r.Stage, "percent", r.Percent)
		}
		if r.Percent >= 100 {
			emit()
			return
		}
		s.Do(emit)
	}
}

// LogIndexBuilt logs the outcome of a fragment index build.
func (l *Logger) LogIndexBuilt(ctx context.Context, peptides, postings int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index build failed",
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "index built",
		"peptides", peptides,
		"postings", postings,
		"elapsed", elapsed.Round(time.Millisecond),
	)
}

// LogSearch logs the outcome of one search run.
func (l *Logger) LogSearch(ctx context.Context, name string, scans, matches int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"search", name,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "search completed",
		"search", name,
		"scans", scans,
		"matches", matches,
		"elapsed", elapsed.Round(time.Millisecond),
	)
}

// LogCanceled reports a stage that stopped early with partial results.
func (l *Logger) LogCanceled(ctx context.Context, stage string) {
	l.WarnContext(ctx, "canceled, results are partial",
		"stage", stage,
	)
}
