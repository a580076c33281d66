package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()

	// Run from an empty directory so a developer's aocr.yaml is not picked up.
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	return NewLoaderWithViper(viper.New())
}

// TestNewLoader tests loader creation.
func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	if loader == nil {
		t.Fatal("NewLoader() returned nil")
	}
	if loader.GetViper() != viper.GetViper() {
		t.Error("NewLoader() should use the global viper instance")
	}
}

// TestLoadWithNoConfigFile tests loading with no config file present.
func TestLoadWithNoConfigFile(t *testing.T) {
	loader := newTestLoader(t)

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected default log level '%s', got %s", infoLevel, cfg.LogLevel)
	}
	if cfg.OCR.PollTimeout != 300*time.Second {
		t.Errorf("Expected default poll timeout 300s, got %v", cfg.OCR.PollTimeout)
	}
	if loader.GetConfigFileUsed() != "" {
		t.Errorf("Expected no config file, got %s", loader.GetConfigFileUsed())
	}
}

// TestLoadWithValidYAMLFile tests loading from a valid YAML file.
func TestLoadWithValidYAMLFile(t *testing.T) {
	loader := newTestLoader(t)
	configFile := filepath.Join(t.TempDir(), "aocr.yaml")

	yamlContent := `
log_level: debug
ocr:
  endpoint: https://example.cognitiveservices.azure.com
  key: from-file
  language: de
  tier: paid
  poll_timeout: 45s
pdf:
  retrieve_method: render-page
  render_color: gray
pipeline:
  workers: 4
cache:
  path: ":memory:"
  ttl: 1h
`
	if err := os.WriteFile(configFile, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := loader.LoadWithFile(configFile)
	if err != nil {
		t.Fatalf("LoadWithFile() unexpected error: %v", err)
	}
	if cfg.LogLevel != debugLevel {
		t.Errorf("Expected log level '%s', got %s", debugLevel, cfg.LogLevel)
	}
	if cfg.OCR.Key != "from-file" {
		t.Errorf("Expected key from file, got %s", cfg.OCR.Key)
	}
	if cfg.OCR.PollTimeout != 45*time.Second {
		t.Errorf("Expected poll timeout 45s, got %v", cfg.OCR.PollTimeout)
	}
	if cfg.OCR.SubmitTimeout != 300*time.Second {
		t.Errorf("Expected default submit timeout, got %v", cfg.OCR.SubmitTimeout)
	}
	if cfg.PDF.RetrieveMethod != "render-page" {
		t.Errorf("Expected retrieve method alias to be kept, got %s", cfg.PDF.RetrieveMethod)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("Expected cache ttl 1h, got %v", cfg.Cache.TTL)
	}
	if loader.GetConfigFileUsed() != configFile {
		t.Errorf("Expected config file %s, got %s", configFile, loader.GetConfigFileUsed())
	}
}

// TestLoadFromSearchPath tests that aocr.yaml in the working directory is found.
func TestLoadFromSearchPath(t *testing.T) {
	loader := newTestLoader(t)
	if err := os.WriteFile("aocr.yaml", []byte("pipeline:\n  workers: 3\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Pipeline.Workers != 3 {
		t.Errorf("Expected 3 workers, got %d", cfg.Pipeline.Workers)
	}
}

// TestLoadWithEnvironmentVariables tests AOCR_ environment overrides.
func TestLoadWithEnvironmentVariables(t *testing.T) {
	loader := newTestLoader(t)
	t.Setenv("AOCR_OCR_ENDPOINT", "https://env.example.com")
	t.Setenv("AOCR_OCR_KEY", "from-env")
	t.Setenv("AOCR_PIPELINE_WORKERS", "6")
	t.Setenv("AOCR_OCR_SUBMIT_TIMEOUT", "90s")

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.OCR.Endpoint != "https://env.example.com" {
		t.Errorf("Expected endpoint from env, got %s", cfg.OCR.Endpoint)
	}
	if cfg.OCR.Key != "from-env" {
		t.Errorf("Expected key from env, got %s", cfg.OCR.Key)
	}
	if cfg.Pipeline.Workers != 6 {
		t.Errorf("Expected 6 workers, got %d", cfg.Pipeline.Workers)
	}
	if cfg.OCR.SubmitTimeout != 90*time.Second {
		t.Errorf("Expected submit timeout 90s, got %v", cfg.OCR.SubmitTimeout)
	}
	if err := cfg.RequireService(); err != nil {
		t.Errorf("RequireService() unexpected error: %v", err)
	}
}

// TestEnvOverridesFile tests precedence of environment over file values.
func TestEnvOverridesFile(t *testing.T) {
	loader := newTestLoader(t)
	configFile := filepath.Join(t.TempDir(), "aocr.yaml")
	if err := os.WriteFile(configFile, []byte("ocr:\n  tier: free\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("AOCR_OCR_TIER", "paid")

	cfg, err := loader.LoadWithFile(configFile)
	if err != nil {
		t.Fatalf("LoadWithFile() unexpected error: %v", err)
	}
	if cfg.OCR.Tier != "paid" {
		t.Errorf("Expected tier from env, got %s", cfg.OCR.Tier)
	}
}

// TestLoadWithInvalidConfig tests validation on load.
func TestLoadWithInvalidConfig(t *testing.T) {
	loader := newTestLoader(t)
	configFile := filepath.Join(t.TempDir(), "aocr.yaml")
	if err := os.WriteFile(configFile, []byte("pipeline:\n  workers: -1\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := loader.LoadWithFile(configFile)
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if !strings.Contains(err.Error(), "configuration validation failed") {
		t.Errorf("Unexpected error: %v", err)
	}

	cfg, err := NewLoaderWithViper(viper.New()).LoadWithFileWithoutValidation(configFile)
	if err != nil {
		t.Fatalf("LoadWithFileWithoutValidation() unexpected error: %v", err)
	}
	if cfg.Pipeline.Workers != -1 {
		t.Errorf("Expected raw value -1, got %d", cfg.Pipeline.Workers)
	}
}

// TestLoadWithMissingFile tests an explicit path that does not exist.
func TestLoadWithMissingFile(t *testing.T) {
	loader := newTestLoader(t)
	_, err := loader.LoadWithFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("Expected missing file error, got %v", err)
	}
}

// TestLoadWithMalformedYAML tests a syntactically broken file.
func TestLoadWithMalformedYAML(t *testing.T) {
	loader := newTestLoader(t)
	configFile := filepath.Join(t.TempDir(), "aocr.yaml")
	if err := os.WriteFile(configFile, []byte("ocr: [unclosed\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := loader.LoadWithFile(configFile); err == nil {
		t.Error("Expected error reading malformed YAML")
	}
}

// TestGenerateDefaultConfigFile tests that the template round-trips.
func TestGenerateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aocr.yaml")
	if err := GenerateDefaultConfigFile(path); err != nil {
		t.Fatalf("GenerateDefaultConfigFile() unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read generated file: %v", err)
	}
	if !strings.Contains(string(data), "retrieve_method: extract") {
		t.Errorf("Generated file lacks defaults:\n%s", data)
	}

	cfg, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
	if err != nil {
		t.Fatalf("Loading generated file failed: %v", err)
	}
	if cfg.Pipeline.Workers != 1 {
		t.Errorf("Expected 1 worker, got %d", cfg.Pipeline.Workers)
	}
}

// TestGetConfigSearchPaths tests the search path order.
func TestGetConfigSearchPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	paths := GetConfigSearchPaths()

	if paths[0] != "." {
		t.Errorf("Expected current directory first, got %s", paths[0])
	}
	if paths[len(paths)-1] != "/etc/aocr" {
		t.Errorf("Expected /etc/aocr last, got %s", paths[len(paths)-1])
	}
	found := false
	for _, p := range paths {
		if p == filepath.Join("/xdg", "aocr") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected XDG path in %v", paths)
	}
}
