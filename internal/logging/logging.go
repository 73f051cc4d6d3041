// Package logging wires zap for the CLI and adapts it to the shortpath tracer.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	logger *zap.Logger
)

// ParseLevel maps a config level name to a zap level. Unknown names fall back
// to info.
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a console logger writing to stderr.
func New(level string, development bool) (*zap.Logger, error) {
	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(ParseLevel(level)),
		Development: development,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}

// Init replaces the process-wide logger.
func Init(level string, development bool) error {
	l, err := New(level, development)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	logger = l
	return nil
}

// L returns the process-wide logger, initializing it at info level on first use.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		l, err := New("info", false)
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
	}
	return logger
}

// Sync flushes the process-wide logger.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		return nil
	}
	return logger.Sync()
}

// Tracer writes shortpath trace lines to a zap logger at debug level.
type Tracer struct {
	l *zap.Logger
}

// NewTracer returns a Tracer logging under the "shortpath" name.
func NewTracer(l *zap.Logger) Tracer {
	if l == nil {
		l = zap.NewNop()
	}
	return Tracer{l: l.Named("shortpath")}
}

func (t Tracer) Trace(line string) {
	t.l.Debug(line)
}
