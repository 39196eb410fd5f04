package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LogFileName is the name of the log file inside the log directory.
const LogFileName = "gcalvault.log"

// logSink is one destination of the run log with its own minimum level.
type logSink struct {
	w     io.Writer
	level slog.Leveler
}

// runHandler formats records as one tab-separated line per event:
//
//	<timestamp>\t<level>\t<runID>\t<message>\t<key=value ...>
//
// Values with whitespace, quotes or '=' are quoted so calendar names and
// error messages never break the columns. Group names prefix keys with a dot.
// Each line goes to every sink whose level admits the record.
type runHandler struct {
	mu     *sync.Mutex
	sinks  []logSink
	runID  string
	prefix []byte // rendered WithAttrs pairs
	group  string // dotted key prefix from WithGroup
}

func newRunHandler(runID string, sinks ...logSink) *runHandler {
	return &runHandler{mu: &sync.Mutex{}, sinks: sinks, runID: runID}
}

func (h *runHandler) Enabled(_ context.Context, level slog.Level) bool {
	for _, s := range h.sinks {
		if level >= s.level.Level() {
			return true
		}
	}
	return false
}

func (h *runHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	buf.WriteString(r.Time.UTC().Format(time.RFC3339))
	buf.WriteByte('\t')
	buf.WriteString(r.Level.String())
	buf.WriteByte('\t')
	buf.WriteString(h.runID)
	buf.WriteByte('\t')
	buf.WriteString(r.Message)
	buf.Write(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&buf, h.group, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sinks {
		if r.Level < s.level.Level() {
			continue
		}
		if _, err := s.w.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (h *runHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	buf := bytes.NewBuffer(append([]byte(nil), h.prefix...))
	for _, a := range attrs {
		appendAttr(buf, h.group, a)
	}
	h2 := *h
	h2.prefix = buf.Bytes()
	return &h2
}

func (h *runHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.group = h.group + name + "."
	return &h2
}

// appendAttr writes "\tkey=value", flattening groups into dotted keys.
func appendAttr(buf *bytes.Buffer, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := group
		if a.Key != "" {
			inner = group + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(buf, inner, ga)
		}
		return
	}
	buf.WriteByte('\t')
	buf.WriteString(group)
	buf.WriteString(a.Key)
	buf.WriteByte('=')
	buf.WriteString(formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindString:
		s = v.String()
	default:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = v.String()
		}
	}
	if s == "" || strings.ContainsAny(s, " \t\n\r\"=") {
		return strconv.Quote(s)
	}
	return s
}

// newLogger creates the run logger. Every level goes to logDir/gcalvault.log;
// console (stderr when nil) receives consoleLevel and above.
// It returns the logger and the open log file for cleanup.
func newLogger(logDir, runID string, console io.Writer, consoleLevel slog.Level) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, LogFileName)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	if console == nil {
		console = os.Stderr
	}
	handler := newRunHandler(runID,
		logSink{w: f, level: slog.LevelDebug},
		logSink{w: console, level: consoleLevel},
	)
	return slog.New(handler), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the gcalvault.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
