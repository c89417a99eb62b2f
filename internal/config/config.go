package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Defaults applied by Validate when a field is left empty.
const (
	DefaultBasePath    = "/myapp"
	DefaultBaseURL     = "http://localhost:3000"
	DefaultUsersPath   = "/myapp/api/users"
	DefaultMaxSessions = 1024
	DefaultIdleTTL     = "30m"
	DefaultMetricsPath = "/metrics"
)

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Backend BackendConfig `koanf:"backend"`
	Session SessionConfig `koanf:"session"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Mode       string `koanf:"mode"`
	CSRFSecret string `koanf:"csrf_secret"`
	BasePath   string `koanf:"base_path"`
}

// BackendConfig locates the users API.
type BackendConfig struct {
	BaseURL         string `koanf:"base_url"`
	UsersPath       string `koanf:"users_path"`
	Timeout         string `koanf:"timeout"`
	SequenceFetches bool   `koanf:"sequence_fetches"`
}

// SessionConfig bounds the per-browser controller store.
type SessionConfig struct {
	MaxSessions int    `koanf:"max_sessions"`
	IdleTTL     string `koanf:"idle_ttl"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// Load reads configuration from a YAML file and overlays environment variables.
// Environment variables use the prefix "APP__" and double-underscore as the
// hierarchy separator. Single underscores are preserved as part of the key name.
// For example, APP__SERVER__PORT=9090 overrides server.port and
// APP__BACKEND__BASE_URL=http://api:3000 overrides backend.base_url.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}

	// APP__SERVER__PORT -> server.port
	// APP__SESSION__IDLE_TTL -> session.idle_ttl
	if err := k.Load(env.Provider("APP__", ".", func(s string) string {
		key := strings.TrimPrefix(s, "APP__")
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "__", ".")
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks supported values, normalizes whitespace and fills in
// defaults for optional fields.
func (c *Config) Validate() error {
	mode := strings.TrimSpace(c.Server.Mode)
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		c.Server.Mode = mode
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", c.Server.Mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", c.Server.Port)
	}

	host := strings.TrimSpace(c.Server.Host)
	if host == "" {
		return fmt.Errorf("server.host is required")
	}
	c.Server.Host = host

	basePath, err := normalizePath("server.base_path", c.Server.BasePath, DefaultBasePath, true)
	if err != nil {
		return err
	}
	c.Server.BasePath = basePath

	// An empty or placeholder secret is replaced at startup outside release mode.
	c.Server.CSRFSecret = strings.TrimSpace(c.Server.CSRFSecret)
	if c.Server.Mode == gin.ReleaseMode && !IsPlaceholderSecret(c.Server.CSRFSecret) {
		if len(c.Server.CSRFSecret) < 32 {
			return fmt.Errorf("invalid server.csrf_secret: must be at least 32 characters")
		}
		if CountSecretClasses(c.Server.CSRFSecret) < 3 {
			return fmt.Errorf("server.csrf_secret must include at least 3 character classes (lowercase, uppercase, digit, symbol) in release mode")
		}
	}

	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}

	if c.Metrics.Enabled {
		metricsPath, err := normalizePath("metrics.path", c.Metrics.Path, DefaultMetricsPath, false)
		if err != nil {
			return err
		}
		c.Metrics.Path = metricsPath
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Log.Level = level
	default:
		return fmt.Errorf("invalid log.level %q: must be one of %q, %q, %q, %q", c.Log.Level, "debug", "info", "warn", "error")
	}

	format := strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch format {
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("invalid log.format %q: must be one of %q, %q", c.Log.Format, "text", "json")
	}

	return nil
}

func (c *Config) validateBackend() error {
	baseURL := strings.TrimSpace(c.Backend.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid backend.base_url %q: %w", c.Backend.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid backend.base_url %q: scheme must be http or https", c.Backend.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid backend.base_url %q: host is required", c.Backend.BaseURL)
	}
	c.Backend.BaseURL = strings.TrimRight(baseURL, "/")

	usersPath, err := normalizePath("backend.users_path", c.Backend.UsersPath, DefaultUsersPath, false)
	if err != nil {
		return err
	}
	c.Backend.UsersPath = usersPath

	// Whitespace-only means no timeout.
	c.Backend.Timeout = strings.TrimSpace(c.Backend.Timeout)
	if t := c.Backend.Timeout; t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("invalid backend.timeout %q: %w", c.Backend.Timeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid backend.timeout %q: must be greater than 0", c.Backend.Timeout)
		}
	}
	return nil
}

func (c *Config) validateSession() error {
	if c.Session.MaxSessions == 0 {
		c.Session.MaxSessions = DefaultMaxSessions
	}
	if c.Session.MaxSessions < 0 {
		return fmt.Errorf("invalid session.max_sessions %d: must be positive", c.Session.MaxSessions)
	}

	ttl := strings.TrimSpace(c.Session.IdleTTL)
	if ttl == "" {
		ttl = DefaultIdleTTL
	}
	d, err := time.ParseDuration(ttl)
	if err != nil {
		return fmt.Errorf("invalid session.idle_ttl %q: %w", c.Session.IdleTTL, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid session.idle_ttl %q: must be greater than 0", c.Session.IdleTTL)
	}
	c.Session.IdleTTL = ttl
	return nil
}

// BackendTimeout returns the parsed backend.timeout, or 0 when unset.
// It assumes Validate has succeeded.
func (c *Config) BackendTimeout() time.Duration {
	if c.Backend.Timeout == "" {
		return 0
	}
	d, _ := time.ParseDuration(c.Backend.Timeout)
	return d
}

// SessionIdleTTL returns the parsed session.idle_ttl.
// It assumes Validate has succeeded.
func (c *Config) SessionIdleTTL() time.Duration {
	d, _ := time.ParseDuration(c.Session.IdleTTL)
	return d
}

// normalizePath trims p, applies def when empty and requires a leading
// slash. A trailing slash is dropped. When allowRoot is set, "/" becomes
// the empty prefix.
func normalizePath(field, p, def string, allowRoot bool) (string, error) {
	v := strings.TrimSpace(p)
	if v == "" {
		v = def
	}
	if !strings.HasPrefix(v, "/") {
		return "", fmt.Errorf("invalid %s %q: must start with '/'", field, p)
	}
	if strings.ContainsAny(v, "?#") {
		return "", fmt.Errorf("invalid %s %q: must be a plain path", field, p)
	}
	v = strings.TrimRight(v, "/")
	if v == "" && !allowRoot {
		return "", fmt.Errorf("invalid %s %q: must not be the root path", field, p)
	}
	return v, nil
}

// IsPlaceholderSecret reports whether secret is empty or one of the
// sample values shipped in configs/config.yaml.
func IsPlaceholderSecret(secret string) bool {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return true
	}

	switch strings.ToLower(trimmed) {
	case "change-me-to-a-random-secret", "change-me-in-env":
		return true
	default:
		return false
	}
}

// CountSecretClasses counts how many character classes (lowercase, uppercase,
// digit, symbol) are present in the given secret string.
func CountSecretClasses(secret string) int {
	hasLower := false
	hasUpper := false
	hasDigit := false
	hasSymbol := false

	for _, r := range secret {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	classes := 0
	for _, ok := range []bool{hasLower, hasUpper, hasDigit, hasSymbol} {
		if ok {
			classes++
		}
	}
	return classes
}
