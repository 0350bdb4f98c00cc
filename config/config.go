// Package config provides YAML configuration parsing for Watchboard.
//
// This package enables running Watchboard as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Price Watch
//	service_url: ${WATCHBOARD_SERVICE_URL:-http://localhost:8080}
//	request_timeout: 10s
//	max_concurrency: 4
//	log_level: info
//
//	push:
//	  transport: websocket
//	  url: ws://localhost:8080/ws
//	  reconnect_delay: 5s
//
//	mirror:
//	  enabled: true
//	  port: 9090
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Push transports.
const (
	TransportNone      = "none"
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
)

const (
	defaultServiceURL     = "http://localhost:8080"
	defaultRequestTimeout = 10 * time.Second
	defaultMaxConcurrency = 4
	defaultReconnectDelay = 5 * time.Second
	defaultMirrorPort     = 9090
	defaultLogLevel       = "info"

	// minReconnectDelay keeps a flapping push source from being redialed in
	// a tight loop.
	minReconnectDelay = 100 * time.Millisecond
)

// Config is the root configuration structure for Watchboard.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "Watchboard" if not set.
	Title string `yaml:"title"`

	// ServiceURL is the base URL of the monitoring service.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	// Defaults to http://localhost:8080.
	ServiceURL string `yaml:"service_url"`

	// RequestTimeout bounds each request to the service. Defaults to 10s.
	RequestTimeout Duration `yaml:"request_timeout"`

	// MaxConcurrency is the number of requests in flight at once.
	// Defaults to 4.
	MaxConcurrency int `yaml:"max_concurrency"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// Push configures where unsolicited updates come from.
	Push PushConfig `yaml:"push"`

	// Mirror configures the local HTTP mirror.
	Mirror MirrorConfig `yaml:"mirror"`
}

// PushConfig selects the push notification source.
type PushConfig struct {
	// Transport is "websocket", "nats" or "none". Defaults to "none".
	Transport string `yaml:"transport"`

	// URL is the ws:// or wss:// endpoint, or the NATS server URL.
	// Supports environment variable substitution.
	URL string `yaml:"url"`

	// Subject is the NATS subject push messages are published on.
	// Required for the nats transport.
	Subject string `yaml:"subject"`

	// ReconnectDelay is the wait before redialing a failed source.
	// Defaults to 5s.
	ReconnectDelay Duration `yaml:"reconnect_delay"`
}

// MirrorConfig configures the local mirror server.
type MirrorConfig struct {
	// Enabled turns the mirror on.
	Enabled bool `yaml:"enabled"`

	// Port is the HTTP port. Defaults to 9090.
	Port int `yaml:"port"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	// validated in Parse
	_ = level.UnmarshalText([]byte(c.LogLevel))
	return level
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		// submatches[2] is ":-..." (non-empty if default syntax was used)
		// submatches[3] is the actual default value (may be empty for ${VAR:-})
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in ServiceURL, Push.URL and
// Push.Subject. Defaults are applied for every field left unset.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ServiceURL == "" {
		c.ServiceURL = defaultServiceURL
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = Duration(defaultRequestTimeout)
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Push.Transport == "" {
		c.Push.Transport = TransportNone
	}
	if c.Push.ReconnectDelay == 0 {
		c.Push.ReconnectDelay = Duration(defaultReconnectDelay)
	}
	if c.Mirror.Port == 0 {
		c.Mirror.Port = defaultMirrorPort
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	expanded, err := expandEnvVars(c.ServiceURL)
	if err != nil {
		return fmt.Errorf("service_url: %w", err)
	}
	c.ServiceURL = expanded

	if err := requireScheme("service_url", c.ServiceURL, "http", "https"); err != nil {
		return err
	}

	if c.RequestTimeout.Duration() < time.Second {
		return fmt.Errorf("request_timeout must be at least 1s, got %s", c.RequestTimeout.Duration())
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}

	if err := c.Push.expandAndValidate(); err != nil {
		return err
	}

	if c.Mirror.Port < 1 || c.Mirror.Port > 65535 {
		return fmt.Errorf("mirror.port must be between 1 and 65535, got %d", c.Mirror.Port)
	}

	return nil
}

func (p *PushConfig) expandAndValidate() error {
	p.Transport = strings.ToLower(strings.TrimSpace(p.Transport))

	if p.Transport == TransportNone {
		return nil
	}

	if p.URL == "" {
		return fmt.Errorf("push.url is required for transport %q", p.Transport)
	}
	expanded, err := expandEnvVars(p.URL)
	if err != nil {
		return fmt.Errorf("push.url: %w", err)
	}
	p.URL = expanded

	expanded, err = expandEnvVars(p.Subject)
	if err != nil {
		return fmt.Errorf("push.subject: %w", err)
	}
	p.Subject = expanded

	if p.ReconnectDelay.Duration() < minReconnectDelay {
		return fmt.Errorf("push.reconnect_delay must be at least %s, got %s", minReconnectDelay, p.ReconnectDelay.Duration())
	}

	switch p.Transport {
	case TransportWebSocket:
		return requireScheme("push.url", p.URL, "ws", "wss")
	case TransportNATS:
		if err := requireScheme("push.url", p.URL, "nats", "tls"); err != nil {
			return err
		}
		if p.Subject == "" {
			return fmt.Errorf("push.subject is required for transport %q", p.Transport)
		}
		return nil
	default:
		return fmt.Errorf("push.transport must be websocket, nats or none, got %q", p.Transport)
	}
}

// requireScheme checks that raw is an absolute URL with one of schemes.
func requireScheme(field, raw string, schemes ...string) error {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid url: %w", field, err)
	}
	if parsedURL.Scheme == "" {
		return fmt.Errorf("%s: url must have a scheme (%s://)", field, strings.Join(schemes, ":// or "))
	}
	for _, s := range schemes {
		if parsedURL.Scheme == s {
			if parsedURL.Host == "" {
				return fmt.Errorf("%s: url must have a host", field)
			}
			return nil
		}
	}
	return fmt.Errorf("%s: url scheme must be %s, got %q", field, strings.Join(schemes, " or "), parsedURL.Scheme)
}
