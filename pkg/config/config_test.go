package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Harvest.Workers != 3 {
		t.Errorf("Expected default workers to be 3, got %d", config.Harvest.Workers)
	}

	if config.Retry.MaxAttempts != 5 {
		t.Errorf("Expected default max attempts to be 5, got %d", config.Retry.MaxAttempts)
	}

	if config.TikTok.AID != "1988" {
		t.Errorf("Expected default tiktok aid to be 1988, got %s", config.TikTok.AID)
	}

	if config.Sink.DatabasePath() != filepath.Join("./output", "comments.db") {
		t.Errorf("Unexpected default database path %s", config.Sink.DatabasePath())
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("COMMENTHARVEST_PLATFORM", "instagram")
	t.Setenv("COMMENTHARVEST_WORKERS", "5")
	t.Setenv("COMMENTHARVEST_MIN_INTERVAL", "500ms")
	t.Setenv("COMMENTHARVEST_IG_SESSION_ID", "env-session")
	t.Setenv("COMMENTHARVEST_IG_CLIENT_ID", "env-mid")
	t.Setenv("COMMENTHARVEST_SINK", "csv")
	t.Setenv("COMMENTHARVEST_LOG_LEVEL", "debug")

	config := DefaultConfig()
	if err := config.LoadFromEnv(); err != nil {
		t.Fatalf("Failed to load from environment: %v", err)
	}

	if config.Harvest.Platform != "instagram" {
		t.Errorf("Expected platform instagram, got %s", config.Harvest.Platform)
	}
	if config.Harvest.Workers != 5 {
		t.Errorf("Expected workers to be 5, got %d", config.Harvest.Workers)
	}
	if config.RateLimit.MinInterval != 500*time.Millisecond {
		t.Errorf("Expected min interval 500ms, got %v", config.RateLimit.MinInterval)
	}
	if config.Instagram.SessionID != "env-session" || config.Instagram.ClientID != "env-mid" {
		t.Errorf("Instagram session values not loaded from environment")
	}
	if config.Sink.Backend != "csv" {
		t.Errorf("Expected sink backend csv, got %s", config.Sink.Backend)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level to be debug, got %s", config.Logging.Level)
	}
}

func TestLoadFromEnvReportsBadNumbers(t *testing.T) {
	t.Setenv("COMMENTHARVEST_WORKERS", "many")
	t.Setenv("COMMENTHARVEST_HTTP_TIMEOUT", "soon")

	config := DefaultConfig()
	err := config.LoadFromEnv()
	if err == nil {
		t.Fatal("Expected an error for unparseable values")
	}
	if !strings.Contains(err.Error(), "COMMENTHARVEST_WORKERS") || !strings.Contains(err.Error(), "COMMENTHARVEST_HTTP_TIMEOUT") {
		t.Errorf("Expected both variables in error, got %v", err)
	}
	if config.Harvest.Workers != 3 {
		t.Errorf("Bad value must not overwrite default, got %d", config.Harvest.Workers)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown platform", mutate: func(c *Config) { c.Harvest.Platform = "myspace" }, wantError: true},
		{name: "too many workers", mutate: func(c *Config) { c.Harvest.Workers = 15 }, wantError: true},
		{name: "zero max pages", mutate: func(c *Config) { c.Harvest.MaxPages = 0 }, wantError: true},
		{name: "jitter out of range", mutate: func(c *Config) { c.RateLimit.Jitter = 0.9 }, wantError: true},
		{name: "zero attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = 0 }, wantError: true},
		{name: "cap below base", mutate: func(c *Config) { c.Retry.MaxDelay = time.Millisecond }, wantError: true},
		{name: "unknown sink", mutate: func(c *Config) { c.Sink.Backend = "parquet" }, wantError: true},
		{name: "redis without address", mutate: func(c *Config) { c.Dedup.Backend = "redis" }, wantError: true},
		{
			name: "redis with address",
			mutate: func(c *Config) {
				c.Dedup.Backend = "redis"
				c.Dedup.RedisAddr = "localhost:6379"
			},
		},
		{name: "invalid log level", mutate: func(c *Config) { c.Logging.Level = "invalid" }, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	config := DefaultConfig()

	config.MergeCommandLineFlags(map[string]interface{}{
		"platform":  "instagram",
		"input":     "posts.csv",
		"workers":   4,
		"max-pages": 20,
		"output":    "/flag/output",
		"log-level": "error",
		"sink":      "",
	})

	if config.Harvest.Platform != "instagram" || config.Harvest.InputFile != "posts.csv" {
		t.Errorf("Harvest flags not merged: %+v", config.Harvest)
	}
	if config.Harvest.Workers != 4 || config.Harvest.MaxPages != 20 {
		t.Errorf("Numeric flags not merged: %+v", config.Harvest)
	}
	if config.Sink.Directory != "/flag/output" {
		t.Errorf("Expected output directory to be /flag/output, got %s", config.Sink.Directory)
	}
	if config.Sink.Backend != "sqlite" {
		t.Errorf("Empty flag must not clobber sink backend, got %s", config.Sink.Backend)
	}
	if config.Logging.Level != "error" {
		t.Errorf("Expected log level to be error, got %s", config.Logging.Level)
	}
}

func TestLoadFromFileParsesDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
harvest:
  platform: instagram
  workers: 2
rate_limit:
  min_interval: 750ms
  hosts:
    www.instagram.com: 4s
retry:
  base_delay: 2s
  max_delay: 1m
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	config := DefaultConfig()
	if err := config.LoadFromFile(path); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.RateLimit.MinInterval != 750*time.Millisecond {
		t.Errorf("Expected 750ms, got %v", config.RateLimit.MinInterval)
	}
	if config.RateLimit.Hosts["www.instagram.com"] != 4*time.Second {
		t.Errorf("Expected host override of 4s, got %v", config.RateLimit.Hosts)
	}
	if config.Retry.MaxDelay != time.Minute {
		t.Errorf("Expected 1m max delay, got %v", config.Retry.MaxDelay)
	}
	if config.Retry.MaxAttempts != 5 {
		t.Errorf("Unset fields keep defaults, got %d", config.Retry.MaxAttempts)
	}
}

func TestSaveStripsSessionValues(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	config := DefaultConfig()
	config.Instagram.SessionID = "secret-session"
	config.Instagram.CSRFToken = "secret-csrf"
	config.Harvest.Workers = 8

	if err := config.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret-") {
		t.Errorf("Session values were written to disk")
	}
	if config.Instagram.SessionID != "secret-session" {
		t.Errorf("Save must not modify the receiver")
	}

	loaded := DefaultConfig()
	if err := loaded.LoadFromFile(configPath); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.Harvest.Workers != 8 {
		t.Errorf("Expected loaded workers to be 8, got %d", loaded.Harvest.Workers)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("harvest:\n  workers: 2\n  max_pages: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOME", dir)
	t.Setenv("COMMENTHARVEST_WORKERS", "4")

	config, err := Load(path, map[string]interface{}{"max-pages": 9})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Harvest.Workers != 4 {
		t.Errorf("Environment should override file, got %d", config.Harvest.Workers)
	}
	if config.Harvest.MaxPages != 9 {
		t.Errorf("Flags should override file, got %d", config.Harvest.MaxPages)
	}
}
