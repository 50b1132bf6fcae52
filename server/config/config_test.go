package config

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.Security.MaxRequestSize != 16*1024*1024 {
		t.Errorf("max request size = %d", cfg.Security.MaxRequestSize)
	}
	if cfg.Processor.OverlayFeedback {
		t.Error("feedback overlay should be off by default")
	}
	if cfg.Processor.DefaultPoseType != "en_garde" {
		t.Errorf("default pose type = %q", cfg.Processor.DefaultPoseType)
	}
	if err := cfg.ValidateConfig(zap.NewNop()); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ANALYSIS_OVERLAY_FEEDBACK", "true")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("PROCESSOR_WORKERS", "not-a-number")

	cfg := LoadConfig()

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if !cfg.Processor.OverlayFeedback {
		t.Error("overlay should be enabled")
	}
	if cfg.Cache.TTL != 90*time.Second {
		t.Errorf("cache ttl = %v", cfg.Cache.TTL)
	}
	if len(cfg.Security.AllowedOrigins) != 2 || cfg.Security.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("origins = %q", cfg.Security.AllowedOrigins)
	}
	if cfg.Processor.Workers != 4 {
		t.Errorf("invalid integer should fall back to the default, got %d", cfg.Processor.Workers)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server port"},
		{"no ml url", func(c *Config) { c.ML.BaseURL = "" }, "ML base URL"},
		{"bad quality", func(c *Config) { c.Processor.JPEGQuality = 101 }, "JPEG quality"},
		{"bad pose type", func(c *Config) { c.Processor.DefaultPoseType = "parry" }, "default pose type"},
		{"https without cert", func(c *Config) { c.Security.EnableHTTPS = true }, "cert and key"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := LoadConfig()
			tc.mutate(cfg)

			err := cfg.ValidateConfig(zap.NewNop())
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
