package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BaseURL == "" {
		t.Error("expected a default base URL")
	}
	if cfg.ResolveTimeout() != 4*time.Second {
		t.Errorf("expected default 4s resolve timeout, got %v", cfg.ResolveTimeout())
	}
	if cfg.Freshness() != 30*time.Second {
		t.Errorf("expected default 30s freshness, got %v", cfg.Freshness())
	}
	if cfg.CheckRateLimit != 60 {
		t.Errorf("expected default rate limit 60, got %d", cfg.CheckRateLimit)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FLAGSDK_BASE_URL", "https://flags.example.com")
	t.Setenv("FLAGSDK_RESOLVE_TIMEOUT_MS", "1500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BaseURL != "https://flags.example.com" {
		t.Errorf("env override not applied, got %q", cfg.BaseURL)
	}
	if cfg.ResolveTimeout() != 1500*time.Millisecond {
		t.Errorf("timeout override not applied, got %v", cfg.ResolveTimeout())
	}
}

func TestValidate(t *testing.T) {
	valid := Config{BaseURL: "http://localhost:8080", ResolveTimeoutMs: 4000, FreshnessSec: 30, CheckRateLimit: 60}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty base URL", func(c *Config) { c.BaseURL = "" }, "FLAGSDK_BASE_URL"},
		{"zero timeout", func(c *Config) { c.ResolveTimeoutMs = 0 }, "FLAGSDK_RESOLVE_TIMEOUT_MS"},
		{"negative freshness", func(c *Config) { c.FreshnessSec = -1 }, "FLAGSDK_FRESHNESS_SEC"},
		{"zero rate limit", func(c *Config) { c.CheckRateLimit = 0 }, "FLAGSDK_CHECK_RATE_LIMIT"},
	}
	for _, tt := range tests {
		cfg := valid
		tt.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: expected validation error", tt.name)
			continue
		}
		verr, ok := err.(ValidationError)
		if !ok {
			t.Errorf("%s: expected ValidationError, got %T", tt.name, err)
			continue
		}
		if verr.Field != tt.field {
			t.Errorf("%s: expected field %s, got %s", tt.name, tt.field, verr.Field)
		}
	}
}
