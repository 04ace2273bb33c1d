package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/usefreetools/toolbox/internal/ratelimit"
)

// Config holds the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	CORS      CORSConfig      `yaml:"cors"`

	// Upstreams
	Deepgram   UpstreamConfig `yaml:"deepgram"`
	Gemini     UpstreamConfig `yaml:"gemini"`
	VirusTotal UpstreamConfig `yaml:"virustotal"`

	Admin AdminConfig `yaml:"admin"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
}

// RateLimitConfig selects the store backend and per-scope policies.
type RateLimitConfig struct {
	// Store is "memory" (default, per-process) or "redis" (shared state,
	// explicit deployment extension).
	Store           string        `yaml:"store"`
	RedisAddr       string        `yaml:"redis_addr"`
	RedisPrefix     string        `yaml:"redis_prefix"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // 0 disables the janitor

	// Scopes overrides the built-in per-endpoint policies.
	Scopes map[string]PolicyConfig `yaml:"scopes"`
}

// PolicyConfig is the YAML shape of a rate-limit policy.
type PolicyConfig struct {
	Window      time.Duration `yaml:"window"`
	MaxRequests int           `yaml:"max_requests"`
}

// CORSConfig controls the Access-Control-* response headers.
type CORSConfig struct {
	AllowOrigin  string `yaml:"allow_origin"`
	AllowHeaders string `yaml:"allow_headers"`
}

// UpstreamConfig is the shared shape for third-party API collaborators. A
// missing APIKey is valid configuration: the endpoint degrades to a fallback
// or a 503 SERVICE_NOT_CONFIGURED, never to a startup failure.
type UpstreamConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// RatePerSecond throttles outbound calls (token bucket); 0 disables.
	RatePerSecond float64 `yaml:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst"`
}

// Enabled reports whether the upstream has credentials.
func (u UpstreamConfig) Enabled() bool { return u.APIKey != "" }

// AdminConfig protects the /admin surface.
type AdminConfig struct {
	// KeyHash is the bcrypt hash of the admin key. Empty disables admin
	// endpoints entirely.
	KeyHash   string        `yaml:"key_hash"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       90 * time.Second,
		},
		Logging: DefaultLoggingConfig(),
		RateLimit: RateLimitConfig{
			Store:       "memory",
			RedisPrefix: "toolbox",
		},
		CORS: CORSConfig{
			AllowOrigin:  "*",
			AllowHeaders: "Content-Type",
		},
		Deepgram: UpstreamConfig{
			BaseURL:       "https://api.deepgram.com",
			Timeout:       30 * time.Second,
			RatePerSecond: 5,
			RateBurst:     10,
		},
		Gemini: UpstreamConfig{
			BaseURL:       "https://generativelanguage.googleapis.com",
			Timeout:       30 * time.Second,
			RatePerSecond: 2,
			RateBurst:     4,
		},
		VirusTotal: UpstreamConfig{
			BaseURL:       "https://www.virustotal.com",
			Timeout:       15 * time.Second,
			RatePerSecond: 1,
			RateBurst:     2,
		},
		Admin: AdminConfig{
			TokenTTL: 15 * time.Minute,
		},
	}
}

// Load builds the configuration: defaults -> path (if present) ->
// path with ".local" inserted (if present) -> env overrides -> validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
		if err := loadFile(localPath(path), cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func localPath(path string) string {
	if n := len(path); n > 4 && path[n-4:] == ".yml" {
		return path[:n-4] + ".local.yml"
	}
	return path + ".local"
}

func loadFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	setIfPresent := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setIfPresent(&c.Server.Addr, "TOOLBOX_ADDR")
	setIfPresent(&c.Deepgram.APIKey, "DEEPGRAM_API_KEY")
	setIfPresent(&c.Gemini.APIKey, "GEMINI_API_KEY")
	setIfPresent(&c.VirusTotal.APIKey, "VIRUSTOTAL_API_KEY")
	setIfPresent(&c.Admin.KeyHash, "TOOLBOX_ADMIN_KEY_HASH")
	setIfPresent(&c.Admin.JWTSecret, "TOOLBOX_JWT_SECRET")
	setIfPresent(&c.RateLimit.RedisAddr, "REDIS_ADDR")
	setIfPresent(&c.Logging.Level, "TOOLBOX_LOG_LEVEL")
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.RateLimit.Store {
	case "", "memory":
	case "redis":
		if c.RateLimit.RedisAddr == "" {
			return fmt.Errorf("ratelimit: store \"redis\" requires redis_addr")
		}
	default:
		return fmt.Errorf("ratelimit: unknown store %q", c.RateLimit.Store)
	}

	for scope, p := range c.RateLimit.Scopes {
		if p.Window <= 0 {
			return fmt.Errorf("ratelimit: scope %q: window must be positive", scope)
		}
		if p.MaxRequests <= 0 {
			return fmt.Errorf("ratelimit: scope %q: max_requests must be positive", scope)
		}
	}

	if c.Admin.KeyHash != "" && c.Admin.JWTSecret == "" {
		return fmt.Errorf("admin: key_hash set without jwt_secret")
	}

	return c.Logging.Validate()
}

// Policies merges the built-in per-scope policies with YAML overrides.
func (c *Config) Policies() map[string]ratelimit.Policy {
	policies := ratelimit.DefaultPolicies()
	for scope, p := range c.RateLimit.Scopes {
		policies[scope] = ratelimit.Policy{Window: p.Window, MaxRequests: p.MaxRequests}
	}
	return policies
}
