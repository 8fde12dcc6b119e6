package main

import "testing"

func TestApplyFlagsOverridesDefaults(t *testing.T) {
	cfg := Config{Mode: "stdio", HTTPAddr: ":8765"}
	if err := applyFlags(&cfg, []string{"--mode=http", "--addr=:9000", "--stateless"}); err != nil {
		t.Fatalf("applyFlags: %v", err)
	}
	if cfg.Mode != "http" {
		t.Errorf("Mode = %q, want http", cfg.Mode)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want :9000", cfg.HTTPAddr)
	}
	if !cfg.Stateless {
		t.Error("Stateless = false, want true")
	}
}

func TestApplyFlagsRejectsUnknown(t *testing.T) {
	cfg := Config{}
	if err := applyFlags(&cfg, []string{"--bogus=1"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestApplyFlagsIgnoresNonFlagArgs(t *testing.T) {
	cfg := Config{Mode: "stdio"}
	if err := applyFlags(&cfg, []string{"serve"}); err != nil {
		t.Fatalf("applyFlags: %v", err)
	}
	if cfg.Mode != "stdio" {
		t.Errorf("Mode = %q, want unchanged stdio", cfg.Mode)
	}
}

func TestEnvOrFallback(t *testing.T) {
	t.Setenv("HATAGO_TEST_VAR", "")
	if got := envOr("HATAGO_TEST_VAR", "fallback"); got != "fallback" {
		t.Errorf("envOr = %q, want fallback", got)
	}
	t.Setenv("HATAGO_TEST_VAR", "set")
	if got := envOr("HATAGO_TEST_VAR", "fallback"); got != "set" {
		t.Errorf("envOr = %q, want set", got)
	}
}
