package config

import (
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/aocr/internal/ocrclient"
	"github.com/MeKo-Tech/aocr/internal/ratelimit"
)

const (
	infoLevel  = "info"
	debugLevel = "debug"
)

// TestDefaultConfig tests that the default configuration is valid and complete.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected log level '%s', got %s", infoLevel, cfg.LogLevel)
	}
	if cfg.OCR.AnalyzePath != ocrclient.DefaultAnalyzePath {
		t.Errorf("Expected analyze path %s, got %s", ocrclient.DefaultAnalyzePath, cfg.OCR.AnalyzePath)
	}
	if cfg.OCR.SubmitTimeout != 300*time.Second || cfg.OCR.PollTimeout != 300*time.Second {
		t.Errorf("Expected 300s phase timeouts, got %v/%v", cfg.OCR.SubmitTimeout, cfg.OCR.PollTimeout)
	}
	if cfg.OCR.MaxAttempts != 5 {
		t.Errorf("Expected 5 attempts, got %d", cfg.OCR.MaxAttempts)
	}
	if cfg.PDF.RetrieveMethod != "extract" {
		t.Errorf("Expected extract retrieval, got %s", cfg.PDF.RetrieveMethod)
	}
	if cfg.PDF.RenderDPI != 300 {
		t.Errorf("Expected 300 dpi, got %d", cfg.PDF.RenderDPI)
	}
	if cfg.Pipeline.Workers != 1 {
		t.Errorf("Expected 1 worker, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Cache.Path != "" {
		t.Errorf("Expected cache to be disabled, got %s", cfg.Cache.Path)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid, got error: %v", err)
	}
}

// TestValidate tests configuration validation.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid default", modify: func(*Config) {}},
		{
			name:   "valid full service settings",
			modify: func(c *Config) { c.OCR.Endpoint = "https://example.cognitiveservices.azure.com"; c.OCR.Language = "de" },
		},
		{name: "invalid log level", modify: func(c *Config) { c.LogLevel = "trace" }, wantErr: "invalid log level"},
		{name: "relative endpoint", modify: func(c *Config) { c.OCR.Endpoint = "example.com" }, wantErr: "invalid ocr endpoint"},
		{name: "bad language", modify: func(c *Config) { c.OCR.Language = "not a tag" }, wantErr: "invalid ocr language"},
		{name: "unknown tier", modify: func(c *Config) { c.OCR.Tier = "gold" }, wantErr: "unknown tier"},
		{name: "negative interval", modify: func(c *Config) { c.OCR.MinInterval = -time.Second }, wantErr: "ocr.min_interval"},
		{name: "zero attempts", modify: func(c *Config) { c.OCR.MaxAttempts = 0 }, wantErr: "invalid max attempts"},
		{name: "zero submit timeout", modify: func(c *Config) { c.OCR.SubmitTimeout = 0 }, wantErr: "ocr.submit_timeout"},
		{name: "negative poll timeout", modify: func(c *Config) { c.OCR.PollTimeout = -time.Second }, wantErr: "ocr.poll_timeout"},
		{name: "unknown backoff", modify: func(c *Config) { c.OCR.PollBackoff = "linear" }, wantErr: "invalid poll backoff"},
		{name: "unknown retrieve method", modify: func(c *Config) { c.PDF.RetrieveMethod = "ocr" }, wantErr: "unknown"},
		{name: "unknown color", modify: func(c *Config) { c.PDF.RenderColor = "cmyk" }, wantErr: "unknown color mode"},
		{name: "dpi too low", modify: func(c *Config) { c.PDF.RenderDPI = 10 }, wantErr: "invalid render dpi"},
		{name: "no renderer", modify: func(c *Config) { c.PDF.Renderer = " " }, wantErr: "invalid renderer"},
		{name: "unknown no-image policy", modify: func(c *Config) { c.PDF.NoImage = "skip" }, wantErr: "no-image policy"},
		{name: "zero workers", modify: func(c *Config) { c.Pipeline.Workers = 0 }, wantErr: "invalid workers"},
		{name: "negative cache ttl", modify: func(c *Config) { c.Cache.TTL = -time.Hour }, wantErr: "invalid cache ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

// TestRequireService tests the endpoint and key requirement.
func TestRequireService(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.RequireService()
	if err == nil {
		t.Fatal("Expected error for missing endpoint and key")
	}
	if !strings.Contains(err.Error(), "endpoint") || !strings.Contains(err.Error(), "key") {
		t.Errorf("Expected both settings to be reported, got: %v", err)
	}

	cfg.OCR.Endpoint = "https://example.com"
	cfg.OCR.Key = "secret"
	if err := cfg.RequireService(); err != nil {
		t.Errorf("RequireService() unexpected error: %v", err)
	}
}

// TestToClientConfig tests conversion to the client configuration.
func TestToClientConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OCR.Endpoint = "https://example.com"
	cfg.OCR.Key = "secret"
	cfg.OCR.Language = "en"
	cfg.OCR.PollBackoff = BackoffConstant
	cfg.OCR.PollDelay = 2 * time.Second

	cc := cfg.ToClientConfig()
	if cc.Endpoint != "https://example.com" || cc.Key != "secret" || cc.Language != "en" {
		t.Errorf("Unexpected connection settings: %+v", cc)
	}
	if cc.Backoff.Exponential {
		t.Error("Expected constant backoff")
	}
	if cc.Backoff.Base != 2*time.Second {
		t.Errorf("Expected 2s base delay, got %v", cc.Backoff.Base)
	}
	if cc.ResultsPath != ocrclient.DefaultResultsPath {
		t.Errorf("Expected default results path, got %s", cc.ResultsPath)
	}
}

// TestCredentials tests password handling.
func TestCredentials(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Credentials() != nil {
		t.Error("Expected nil credentials without passwords")
	}

	cfg.PDF.OwnerPassword = "owner"
	creds := cfg.Credentials()
	if creds == nil || creds.OwnerPassword != "owner" || creds.UserPassword != "" {
		t.Errorf("Unexpected credentials: %+v", creds)
	}
}

// TestTier tests tier parsing with fallback.
func TestTier(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Tier() != ratelimit.TierFree {
		t.Errorf("Expected free tier, got %s", cfg.Tier())
	}
	cfg.OCR.Tier = "PAID"
	if cfg.Tier() != ratelimit.TierPaid {
		t.Errorf("Expected paid tier, got %s", cfg.Tier())
	}
}

// TestInterval tests the interval override.
func TestInterval(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Interval() != ratelimit.FreeInterval {
		t.Errorf("Expected free tier interval, got %v", cfg.Interval())
	}
	cfg.OCR.MinInterval = 10 * time.Millisecond
	if cfg.Interval() != 10*time.Millisecond {
		t.Errorf("Expected override, got %v", cfg.Interval())
	}
}
