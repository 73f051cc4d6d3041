package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"loud", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTracerWritesDebugLines(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := NewTracer(zap.New(core))

	tracer.Trace("considering child Program Files")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Message != "considering child Program Files" {
		t.Errorf("message = %q", e.Message)
	}
	if e.Level != zapcore.DebugLevel {
		t.Errorf("level = %v, want debug", e.Level)
	}
	if e.LoggerName != "shortpath" {
		t.Errorf("logger name = %q, want shortpath", e.LoggerName)
	}
}

func TestTracerNilLogger(t *testing.T) {
	NewTracer(nil).Trace("dropped")
}

func TestInitAndL(t *testing.T) {
	if err := Init("debug", true); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !L().Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug level not enabled after Init(debug)")
	}
	_ = Sync()
}
