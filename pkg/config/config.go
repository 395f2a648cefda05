package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the harvester reads
const EnvPrefix = "COMMENTHARVEST_"

// Config holds all configuration options for the comment harvester
type Config struct {
	Harvest   HarvestConfig   `yaml:"harvest" json:"harvest"`
	HTTP      HTTPConfig      `yaml:"http" json:"http"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`
	TikTok    TikTokConfig    `yaml:"tiktok" json:"tiktok"`
	Sink      SinkConfig      `yaml:"sink" json:"sink"`
	Dedup     DedupConfig     `yaml:"dedup" json:"dedup"`
	Report    ReportConfig    `yaml:"report" json:"report"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// HarvestConfig controls what is harvested and how much work runs at once
type HarvestConfig struct {
	Platform  string `yaml:"platform" json:"platform"`
	InputFile string `yaml:"input_file" json:"input_file"`
	Workers   int    `yaml:"workers" json:"workers"`
	MaxPages  int    `yaml:"max_pages" json:"max_pages"`
	PageSize  int    `yaml:"page_size" json:"page_size"`
}

// HTTPConfig holds transport settings shared by both platforms
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
}

// RateLimitConfig holds per-host pacing configuration.
// Hosts overrides MinInterval for specific hostnames.
type RateLimitConfig struct {
	MinInterval       time.Duration            `yaml:"min_interval" json:"min_interval"`
	Jitter            float64                  `yaml:"jitter" json:"jitter"`
	RequestsPerMinute int                      `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int                      `yaml:"burst_size" json:"burst_size"`
	Hosts             map[string]time.Duration `yaml:"hosts" json:"hosts"`
}

// RetryConfig holds the backoff policy for page fetches
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay" json:"max_delay"`
	Jitter        float64       `yaml:"jitter" json:"jitter"`
	MaxRetryAfter time.Duration `yaml:"max_retry_after" json:"max_retry_after"`
}

// InstagramConfig holds Instagram-specific configuration. The four
// session values are normally supplied through the environment or the
// OS keyring and are never written back by Save.
type InstagramConfig struct {
	SessionID      string `yaml:"session_id" json:"-"`
	UserID         string `yaml:"user_id" json:"-"`
	CSRFToken      string `yaml:"csrf_token" json:"-"`
	ClientID       string `yaml:"client_id" json:"-"`
	KeyringAccount string `yaml:"keyring_account" json:"keyring_account"`
	AppID          string `yaml:"app_id" json:"app_id"`
	BaseURL        string `yaml:"base_url" json:"base_url"`
	UserAgent      string `yaml:"user_agent" json:"user_agent"`
}

// TikTokConfig holds TikTok-specific configuration
type TikTokConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	AID     string `yaml:"aid" json:"aid"`
}

// SinkConfig selects and configures the output store
type SinkConfig struct {
	Backend   string `yaml:"backend" json:"backend"`
	DSN       string `yaml:"dsn" json:"dsn"`
	Directory string `yaml:"directory" json:"directory"`
}

// DatabasePath returns the SQLite file path, defaulting into Directory
func (s SinkConfig) DatabasePath() string {
	if s.DSN != "" {
		return s.DSN
	}
	return filepath.Join(s.Directory, "comments.db")
}

// DedupConfig selects the deduplication backend
type DedupConfig struct {
	Backend       string        `yaml:"backend" json:"backend"`
	RedisAddr     string        `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" json:"-"`
	RedisDB       int           `yaml:"redis_db" json:"redis_db"`
	TTL           time.Duration `yaml:"ttl" json:"ttl"`
}

// ReportConfig controls where the run summary is delivered
type ReportConfig struct {
	SummaryFile string `yaml:"summary_file" json:"summary_file"`
	NATSURL     string `yaml:"nats_url" json:"nats_url"`
	NATSSubject string `yaml:"nats_subject" json:"nats_subject"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Harvest: HarvestConfig{
			Platform: "tiktok",
			Workers:  3,
			MaxPages: 1000,
			PageSize: 50,
		},
		HTTP: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		RateLimit: RateLimitConfig{
			MinInterval:       2 * time.Second,
			Jitter:            0.15,
			RequestsPerMinute: 30,
			BurstSize:         1,
		},
		Retry: RetryConfig{
			MaxAttempts:   5,
			BaseDelay:     time.Second,
			MaxDelay:      60 * time.Second,
			Jitter:        0.1,
			MaxRetryAfter: 5 * time.Minute,
		},
		Instagram: InstagramConfig{
			AppID:     "936619743392459",
			BaseURL:   "https://www.instagram.com",
			UserAgent: "Mozilla/5.0 (Linux; Android 13; SM-A125F) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Mobile Safari/537.36",
		},
		TikTok: TikTokConfig{
			BaseURL: "https://www.tiktok.com",
			AID:     "1988",
		},
		Sink: SinkConfig{
			Backend:   "sqlite",
			Directory: "./output",
		},
		Dedup: DedupConfig{
			Backend: "memory",
			TTL:     7 * 24 * time.Hour,
		},
		Report: ReportConfig{
			NATSSubject: "commentharvest.runs",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables. Values that
// fail to parse are reported together.
func (c *Config) LoadFromEnv() error {
	var errs []error

	envString("PLATFORM", &c.Harvest.Platform)
	envString("INPUT", &c.Harvest.InputFile)
	errs = append(errs, envInt("WORKERS", &c.Harvest.Workers))
	errs = append(errs, envInt("MAX_PAGES", &c.Harvest.MaxPages))
	errs = append(errs, envInt("PAGE_SIZE", &c.Harvest.PageSize))

	errs = append(errs, envDuration("HTTP_TIMEOUT", &c.HTTP.Timeout))
	envString("USER_AGENT", &c.HTTP.UserAgent)

	errs = append(errs, envDuration("MIN_INTERVAL", &c.RateLimit.MinInterval))
	errs = append(errs, envInt("REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute))
	errs = append(errs, envInt("MAX_ATTEMPTS", &c.Retry.MaxAttempts))

	envString("IG_SESSION_ID", &c.Instagram.SessionID)
	envString("IG_USER_ID", &c.Instagram.UserID)
	envString("IG_CSRF_TOKEN", &c.Instagram.CSRFToken)
	envString("IG_CLIENT_ID", &c.Instagram.ClientID)
	envString("IG_KEYRING_ACCOUNT", &c.Instagram.KeyringAccount)

	envString("SINK", &c.Sink.Backend)
	envString("SINK_DSN", &c.Sink.DSN)
	envString("OUTPUT_DIR", &c.Sink.Directory)

	envString("DEDUP_BACKEND", &c.Dedup.Backend)
	envString("REDIS_ADDR", &c.Dedup.RedisAddr)
	envString("REDIS_PASSWORD", &c.Dedup.RedisPassword)

	envString("SUMMARY_FILE", &c.Report.SummaryFile)
	envString("NATS_URL", &c.Report.NATSURL)
	envString("NATS_SUBJECT", &c.Report.NATSSubject)

	envString("LOG_LEVEL", &c.Logging.Level)
	envString("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

func envString(name string, dst *string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) error {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = n
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = d
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".commentharvest.yaml",
		".commentharvest.yml",
		filepath.Join(home, ".config", "commentharvest", "config.yaml"),
		filepath.Join(home, ".config", "commentharvest", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	switch c.Harvest.Platform {
	case "tiktok", "instagram":
	default:
		errs = append(errs, fmt.Errorf("unknown platform %q", c.Harvest.Platform))
	}
	if c.Harvest.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Harvest.Workers > 10 {
		errs = append(errs, errors.New("workers should not exceed 10"))
	}
	if c.Harvest.MaxPages <= 0 {
		errs = append(errs, errors.New("max pages must be positive"))
	}
	if c.Harvest.PageSize <= 0 || c.Harvest.PageSize > 100 {
		errs = append(errs, errors.New("page size must be between 1 and 100"))
	}

	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http timeout must be positive"))
	}

	if c.RateLimit.MinInterval < 0 {
		errs = append(errs, errors.New("min interval cannot be negative"))
	}
	if c.RateLimit.Jitter < 0 || c.RateLimit.Jitter > 0.5 {
		errs = append(errs, errors.New("rate limit jitter must be between 0 and 0.5"))
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}
	if c.RateLimit.RequestsPerMinute > 0 && c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max attempts must be positive"))
	}
	if c.Retry.BaseDelay <= 0 {
		errs = append(errs, errors.New("retry base delay must be positive"))
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, errors.New("retry max delay must not be below base delay"))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, errors.New("retry jitter must be between 0 and 1"))
	}

	switch c.Sink.Backend {
	case "sqlite", "csv":
	default:
		errs = append(errs, fmt.Errorf("unknown sink backend %q", c.Sink.Backend))
	}
	if c.Sink.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	switch c.Dedup.Backend {
	case "memory":
	case "redis":
		if c.Dedup.RedisAddr == "" {
			errs = append(errs, errors.New("redis address is required for the redis dedup backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown dedup backend %q", c.Dedup.Backend))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save writes the configuration to a file with session values removed
func (c *Config) Save(path string) error {
	out := *c
	out.Instagram.SessionID = ""
	out.Instagram.UserID = ""
	out.Instagram.CSRFToken = ""
	out.Instagram.ClientID = ""
	out.Dedup.RedisPassword = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Zero values are ignored so unset flags never clobber other sources.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["platform"].(string); ok && v != "" {
		c.Harvest.Platform = v
	}
	if v, ok := flags["input"].(string); ok && v != "" {
		c.Harvest.InputFile = v
	}
	if v, ok := flags["workers"].(int); ok && v > 0 {
		c.Harvest.Workers = v
	}
	if v, ok := flags["max-pages"].(int); ok && v > 0 {
		c.Harvest.MaxPages = v
	}
	if v, ok := flags["sink"].(string); ok && v != "" {
		c.Sink.Backend = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Sink.Directory = v
	}
	if v, ok := flags["summary"].(string); ok && v != "" {
		c.Report.SummaryFile = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".commentharvest.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
