// Package logger provides the kernel's leveled, structured logging. It is
// deliberately small: a handful of package-level severity functions, a
// pluggable output format (text or json), and an optional asynchronous
// sink over any io.Writer for long kernel runs.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

type loggerFactory struct {
	format string // "text" or "json"
	prefix string
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	return &severityHandler{
		out:    w,
		level:  level,
		json:   f.format == "json",
		prefix: prefix,
	}
}

var (
	defaultLoggerFactory = &loggerFactory{format: "text"}
	programLevel         = new(slog.LevelVar)
	defaultLogger        = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, programLevel, ""))
)

// severityHandler renders log records the way the kernel's tooling expects:
// a single line per record naming the severity explicitly, rather than
// relying on slog's built-in level names (which do not include TRACE).
type severityHandler struct {
	out    io.Writer
	level  *slog.LevelVar
	json   bool
	prefix string
}

func (h *severityHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *severityHandler) Handle(_ context.Context, r slog.Record) error {
	sev := slogLevelToSeverity(r.Level)
	msg := h.prefix + r.Message
	if h.json {
		_, err := fmt.Fprintf(h.out,
			"{\"timestamp\":{\"seconds\":%d,\"nanos\":%d},\"severity\":%q,\"message\":%q}\n",
			r.Time.Unix(), r.Time.Nanosecond(), sev, msg)
		return err
	}
	_, err := fmt.Fprintf(h.out, "time=%q severity=%s message=%q\n",
		r.Time.Format("2006/01/02 15:04:05.000000"), sev, msg)
	return err
}

func (h *severityHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *severityHandler) WithGroup(_ string) slog.Handler      { return h }

func slogLevelToSeverity(l slog.Level) string {
	switch {
	case l <= levelTrace:
		return string(TRACE)
	case l < slog.LevelInfo:
		return string(DEBUG)
	case l < levelWarn:
		return string(INFO)
	case l < slog.LevelError:
		return string(WARNING)
	default:
		return string(ERROR)
	}
}

// setLoggingLevel switches the active logging level at runtime.
func setLoggingLevel(level Severity, v *slog.LevelVar) {
	if level == OFF {
		// One level above ERROR so nothing is ever enabled.
		v.Set(slog.LevelError + 1)
		return
	}
	v.Set(severityToSlogLevel(level))
}

// SetFormat switches between "text" and "json" output for the default logger.
func SetFormat(format string) {
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, programLevel, defaultLoggerFactory.prefix))
}

// SetOutput redirects the default logger to w, keeping the current format
// and level.
func SetOutput(w io.Writer) {
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, programLevel, defaultLoggerFactory.prefix))
}

// SetLevel sets the minimum severity the default logger emits.
func SetLevel(level Severity) {
	setLoggingLevel(level, programLevel)
}

func Tracef(format string, args ...interface{}) {
	defaultLogger.Log(context.Background(), levelTrace, fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...interface{}) {
	defaultLogger.Debug(fmt.Sprintf(format, args...))
}

func Infof(format string, args ...interface{}) {
	defaultLogger.Info(fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...interface{}) {
	defaultLogger.Log(context.Background(), levelWarn, fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...interface{}) {
	defaultLogger.Error(fmt.Sprintf(format, args...))
}

// Fatalf logs at ERROR severity and then terminates the process. It is used
// only by kernelerrors.Fatal for internal-consistency violations.
func Fatalf(format string, args ...interface{}) {
	defaultLogger.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}
