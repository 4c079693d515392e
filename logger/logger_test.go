package logger

import (
	"testing"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got %q", cfg.Level)
	}
	if cfg.Format != "console" {
		t.Errorf("expected format 'console', got %q", cfg.Format)
	}
	if cfg.Output != "stdout" {
		t.Errorf("expected output 'stdout', got %q", cfg.Output)
	}
	if !cfg.Timestamp {
		t.Error("expected timestamp to default to true")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{Level: "info", Format: "json", Output: "stdout"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	bad := &Config{Level: "loud", Format: "json"}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for invalid level")
	}

	badFormat := &Config{Level: "info", Format: "xml"}
	if err := badFormat.Validate(); err == nil {
		t.Error("expected error for invalid format")
	}
}

func TestNew_InvalidLevelFallsBack(t *testing.T) {
	cfg := &Config{Level: "nope", Format: "json", Output: "stdout"}
	l := New(cfg, "test")
	if l == nil {
		t.Fatal("expected logger despite invalid level")
	}
	// Should not panic when logging.
	l.Info("hello", Fields("k", "v"))
}

func TestWithComponent(t *testing.T) {
	l := NewDefault("test")
	cl := l.WithComponent("sse_hub")
	if cl == nil {
		t.Fatal("expected component logger")
	}
	cl.Debug("component scoped")
}

func TestFields(t *testing.T) {
	m := Fields("a", 1, "b", "two")
	if m["a"] != 1 {
		t.Errorf("expected a=1, got %v", m["a"])
	}
	if m["b"] != "two" {
		t.Errorf("expected b='two', got %v", m["b"])
	}

	// Odd trailing value is ignored.
	odd := Fields("a", 1, "dangling")
	if len(odd) != 1 {
		t.Errorf("expected 1 entry, got %d", len(odd))
	}
}

func TestGlobalLogger(t *testing.T) {
	SetGlobalLogger(nil)
	l := GetGlobalLogger()
	if l == nil {
		t.Fatal("expected default global logger")
	}
	// Package-level delegates should not panic.
	Debug("d")
	Info("i")
	Warn("w")
	Error("e")
}
