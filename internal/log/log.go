// Package log provides the logging facade used across nocrw, backed by logrus.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"

	"firestige.xyz/nocrw/internal/config"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

const (
	defaultPattern = "%time [%level] %field %msg"
	defaultTime    = "2006-01-02 15:04:05.000"
)

var (
	mu     sync.RWMutex
	logger Logger = newDefault()
	closer io.Closer
)

// GetLogger returns the process-wide logger. Before Init it logs warnings
// and above to stderr.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init replaces the process-wide logger. Calling it again closes the
// previous file appender.
func Init(cfg config.LogConfig) error {
	l, c, err := New(cfg, os.Stderr)
	if err != nil {
		return err
	}
	mu.Lock()
	prev := closer
	logger, closer = l, c
	mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return nil
}

// Close flushes and closes the file appender, if any.
func Close() error {
	mu.Lock()
	c := closer
	closer = nil
	mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}

// New builds a logger from cfg. Console output goes to console when enabled.
// The returned closer is nil unless a file appender was created.
func New(cfg config.LogConfig, console io.Writer) (Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	f := newFormatter(cfg.Pattern, cfg.Time)

	l := logrus.New()
	l.SetFormatter(f)
	l.SetOutput(io.Discard)
	l.ExitFunc = atexit.Exit
	l.SetLevel(level)

	// Each destination is a hook with its own threshold; the logger level is
	// the most verbose of them.
	if cfg.Outputs.Console && console != nil {
		l.AddHook(newWriterHook(NewMultiWriter().Add(console), f, level))
	}

	var c io.Closer
	if cfg.Outputs.File.Enabled {
		fileLevel := level
		if cfg.Outputs.File.Level != "" {
			if fileLevel, err = parseLevel(cfg.Outputs.File.Level); err != nil {
				return nil, nil, fmt.Errorf("invalid file log level: %w", err)
			}
		}
		w, err := createFileWriter(cfg.Outputs.File)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create file output: %w", err)
		}
		l.AddHook(newWriterHook(w, f, fileLevel))
		if fileLevel > l.GetLevel() {
			l.SetLevel(fileLevel)
		}
		c = w
	}

	return &logrusAdapter{entry: logrus.NewEntry(l)}, c, nil
}

func parseLevel(s string) (logrus.Level, error) {
	if s == "" {
		return logrus.WarnLevel, nil
	}
	return logrus.ParseLevel(s)
}

func newDefault() Logger {
	l := logrus.New()
	l.SetFormatter(newFormatter(defaultPattern, defaultTime))
	l.SetLevel(logrus.WarnLevel)
	l.SetOutput(os.Stderr)
	return &logrusAdapter{entry: logrus.NewEntry(l)}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return &logrusAdapter{entry: logrus.NewEntry(l)}
}
