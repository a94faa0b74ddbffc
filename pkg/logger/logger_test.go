package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"verbose": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}

	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew(t *testing.T) {
	log, err := New("debug")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug level not enabled")
	}

	child := log.WithConversation("shop-1", "conv-1")
	if child == nil || child.Logger == log.Logger {
		t.Error("WithConversation() should return a distinct child logger")
	}
}

func TestGlobal(t *testing.T) {
	orig := Global()
	t.Cleanup(func() { SetGlobal(orig) })

	nop := NewNop()
	SetGlobal(nop)
	if Global() != nop {
		t.Error("SetGlobal() did not replace global logger")
	}
}
