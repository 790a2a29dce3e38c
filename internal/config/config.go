// Package config loads service configuration.
//
// Precedence, lowest first: built-in defaults, an optional YAML file
// (CONFIG_PATH or ./config.yaml), then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the environment variable that points at a YAML file.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Spotify    SpotifyConfig    `koanf:"spotify"`
	Catalog    CatalogConfig    `koanf:"catalog"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Playlist   PlaylistConfig   `koanf:"playlist"`
	Image      ImageConfig      `koanf:"image"`
	Storage    StorageConfig    `koanf:"storage"`
	Logging    LoggingConfig    `koanf:"logging"`
}

type ServerConfig struct {
	Addr              string        `koanf:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	RequestTimeout    time.Duration `koanf:"request_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes" validate:"gt=0"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	// RateLimit is the number of analyze requests allowed per client IP per minute.
	RateLimit int `koanf:"rate_limit" validate:"gte=0"`
}

type SpotifyConfig struct {
	ClientID     string `koanf:"client_id" validate:"required"`
	ClientSecret string `koanf:"client_secret" validate:"required"`
	TokenURL     string `koanf:"token_url" validate:"required,url"`
	BaseURL      string `koanf:"base_url" validate:"required,url"`
	Market       string `koanf:"market"`
}

type CatalogConfig struct {
	PerStyleLimit int           `koanf:"per_style_limit" validate:"gte=1,lte=50"`
	Concurrency   int           `koanf:"concurrency" validate:"gte=1"`
	Timeout       time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxAttempts   int           `koanf:"max_attempts" validate:"gte=1"`
	Backoff       time.Duration `koanf:"backoff" validate:"gte=0"`
	RatePerSecond float64       `koanf:"rate_per_second" validate:"gt=0"`
	Burst         int           `koanf:"burst" validate:"gte=1"`
}

type ClassifierConfig struct {
	URL               string        `koanf:"url" validate:"required,url"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxAttempts       int           `koanf:"max_attempts" validate:"gte=1"`
	Backoff           time.Duration `koanf:"backoff" validate:"gte=0"`
	TopK              int           `koanf:"top_k" validate:"gte=3,lte=5"`
	FallbackOnFailure bool          `koanf:"fallback_on_failure"`
	BreakerFailures   uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerCooldown   time.Duration `koanf:"breaker_cooldown" validate:"gt=0"`
}

type PlaylistConfig struct {
	MaxSize int `koanf:"max_size" validate:"gte=1"`
	MinSize int `koanf:"min_size" validate:"gte=0,ltefield=MaxSize"`
}

type ImageConfig struct {
	MaxUploadBytes int64 `koanf:"max_upload_bytes" validate:"gt=0"`
	TargetBytes    int64 `koanf:"target_bytes" validate:"gt=0"`
	MaxDimension   int   `koanf:"max_dimension" validate:"gte=64"`
	JPEGQuality    int   `koanf:"jpeg_quality" validate:"gte=1,lte=100"`
	MaxPixels      int64 `koanf:"max_pixels" validate:"gt=0"`
}

type StorageConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite none"`
	Path   string `koanf:"path" validate:"required_if=Driver sqlite"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 15 * time.Second,
			RequestTimeout:    180 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MaxBodyBytes:      8 << 20,
			CORSOrigins:       []string{"http://localhost:3000"},
			RateLimit:         30,
		},
		Spotify: SpotifyConfig{
			TokenURL: "https://accounts.spotify.com/api/token",
			BaseURL:  "https://api.spotify.com/v1",
		},
		Catalog: CatalogConfig{
			PerStyleLimit: 10,
			Concurrency:   4,
			Timeout:       10 * time.Second,
			MaxAttempts:   3,
			Backoff:       500 * time.Millisecond,
			RatePerSecond: 10,
			Burst:         5,
		},
		Classifier: ClassifierConfig{
			URL:               "http://localhost:5000",
			Timeout:           30 * time.Second,
			MaxAttempts:       3,
			Backoff:           time.Second,
			TopK:              5,
			FallbackOnFailure: true,
			BreakerFailures:   5,
			BreakerCooldown:   30 * time.Second,
		},
		Playlist: PlaylistConfig{
			MaxSize: 12,
			MinSize: 6,
		},
		Image: ImageConfig{
			MaxUploadBytes: 5 << 20,
			TargetBytes:    2 << 20,
			MaxDimension:   800,
			JPEGQuality:    75,
			MaxPixels:      40_000_000,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "scenesound.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file and the
// environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return c.validateBudget()
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: validate: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config: invalid configuration: %s", strings.Join(msgs, "; "))
}

// validateBudget requires the request deadline to outlast a classifier that
// times out on every attempt, followed by a token fetch and a catalog search
// that do the same. Otherwise the deadline fires before the general fallback
// can run.
func (c *Config) validateBudget() error {
	need := c.ClassifierBudget() + 2*c.CatalogCallBudget()
	if c.Server.RequestTimeout < need {
		return fmt.Errorf("config: invalid configuration: server.request_timeout %s is shorter than the upstream budget %s", c.Server.RequestTimeout, need)
	}
	return nil
}

// ClassifierBudget is the worst-case time spent on the classifier: every
// attempt timing out plus the linear backoff between attempts.
func (c *Config) ClassifierBudget() time.Duration {
	n := time.Duration(c.Classifier.MaxAttempts)
	return n*c.Classifier.Timeout + c.Classifier.Backoff*n*(n-1)/2
}

// CatalogCallBudget is the worst-case time of one catalog call: every attempt
// timing out plus the exponential backoff between attempts. Retry-After
// delays from the catalog are not bounded by it.
func (c *Config) CatalogCallBudget() time.Duration {
	budget := time.Duration(c.Catalog.MaxAttempts) * c.Catalog.Timeout
	for i := 1; i < c.Catalog.MaxAttempts; i++ {
		budget += c.Catalog.Backoff * time.Duration(1<<(i-1))
	}
	return budget
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields splits comma-separated environment values into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("config: set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings holds the names that do not follow the SECTION_FIELD pattern.
var envMappings = map[string]string{
	"http_addr":    "server.addr",
	"cors_origins": "server.cors_origins",
	"rate_limit":   "server.rate_limit",
	"log_level":    "logging.level",
	"log_format":   "logging.format",
}

var envSections = map[string]bool{
	"server":     true,
	"spotify":    true,
	"catalog":    true,
	"classifier": true,
	"playlist":   true,
	"image":      true,
	"storage":    true,
	"logging":    true,
}

// envTransformFunc maps an environment variable to a koanf path:
// SPOTIFY_CLIENT_ID -> spotify.client_id, HTTP_ADDR -> server.addr.
// Unknown variables map to "" and are skipped.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	section, field, ok := strings.Cut(key, "_")
	if !ok || field == "" || !envSections[section] {
		return ""
	}
	return section + "." + field
}
