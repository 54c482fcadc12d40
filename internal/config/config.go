// ABOUTME: Configuration loading and parsing for deskhand
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete deskhand configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Triage  TriageConfig  `yaml:"triage"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TriageConfig holds collaborator endpoint and background-run configuration
type TriageConfig struct {
	// CrewURL is the base URL of the classification/drafting service.
	CrewURL string `yaml:"crew_url"`

	// MaxConcurrent caps the number of triage runs in flight at once.
	MaxConcurrent int `yaml:"max_concurrent"`

	CallTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	CallTimeoutRaw string `yaml:"call_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultMaxConcurrent is used when triage.max_concurrent is unset.
const DefaultMaxConcurrent = 16

// DefaultCallTimeout is used when triage.call_timeout is unset. The
// collaborator services run language models and can be slow.
const DefaultCallTimeout = 2 * time.Minute

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Triage.CrewURL == "" {
		return fmt.Errorf("triage.crew_url is required")
	}
	u, err := url.Parse(c.Triage.CrewURL)
	if err != nil {
		return fmt.Errorf("triage.crew_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("triage.crew_url must use http or https scheme")
	}

	if c.Triage.MaxConcurrent < 1 {
		return fmt.Errorf("triage.max_concurrent must be at least 1")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Triage.CallTimeoutRaw != "" {
		var err error
		cfg.Triage.CallTimeout, err = time.ParseDuration(cfg.Triage.CallTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing call_timeout %q: %w", cfg.Triage.CallTimeoutRaw, err)
		}
	}
	return nil
}

// applyDefaults fills in unset optional fields.
func applyDefaults(cfg *Config) {
	if cfg.Triage.MaxConcurrent == 0 {
		cfg.Triage.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Triage.CallTimeout == 0 {
		cfg.Triage.CallTimeout = DefaultCallTimeout
	}
}
