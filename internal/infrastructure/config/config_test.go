package config

import (
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Port != 8000 {
		t.Fatalf("unexpected port: %d", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Fatalf("unexpected cache ttl: %s", cfg.Cache.TTL)
	}
	if cfg.History.Backend != "memory" || cfg.Preferences.Backend != "memory" {
		t.Fatalf("unexpected backends: %+v %+v", cfg.History, cfg.Preferences)
	}
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if cfg.UseRedis() {
		t.Fatalf("defaults should not need redis")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := map[string]func(*Config){
		"missing port":     func(c *Config) { c.Server.Port = 0 },
		"bad ocr provider": func(c *Config) { c.OCR.Provider = "magic" },
		"postgres no dsn":  func(c *Config) { c.History.Backend = "postgres" },
		"bad history":      func(c *Config) { c.History.Backend = "sqlite" },
		"no workers":       func(c *Config) { c.History.Workers = 0 },
		"bad preferences":  func(c *Config) { c.Preferences.Backend = "file" },
		"bad rate limit":   func(c *Config) { c.RateLimit.Requests = 0 },
		"bad cache size":   func(c *Config) { c.Cache.MaxSize = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestVisionModelName(t *testing.T) {
	c := OpenRouterConfig{Model: "text-model"}
	if c.VisionModelName() != "text-model" {
		t.Fatalf("should fall back to text model")
	}
	c.VisionModel = "vision-model"
	if c.VisionModelName() != "vision-model" {
		t.Fatalf("should use vision model")
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := maskAPIKey("short"); got != "****" {
		t.Fatalf("got %s", got)
	}
	if got := maskAPIKey("sk-or-1234567890"); got != "sk-o...7890" {
		t.Fatalf("got %s", got)
	}
}
