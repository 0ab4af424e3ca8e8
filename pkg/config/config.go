// Package config loads and validates the warden configuration and provides
// hot-reloadable, immutably compiled validation snapshots.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/warden-proxy/warden/pkg/rules"
)

// ForwardingHeaderMode selects how flagged routing headers are handled.
type ForwardingHeaderMode string

const (
	// ModeLog emits an observability event for each flagged header (default).
	ModeLog ForwardingHeaderMode = "log"
	// ModeIgnore drops the flags silently.
	ModeIgnore ForwardingHeaderMode = "ignore"
	// ModePolicy delegates the decision to the configured Rego policy.
	ModePolicy ForwardingHeaderMode = "policy"
)

// ServerConfig holds the listener addresses.
type ServerConfig struct {
	DataAddress  string `json:"dataAddress" yaml:"dataAddress"`
	AdminAddress string `json:"adminAddress" yaml:"adminAddress"`
}

// LoggingConfig holds logging options.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

// TelemetryConfig holds OpenTelemetry bootstrap options.
type TelemetryConfig struct {
	ServiceName  string `json:"serviceName" yaml:"serviceName"`
	OTLPEndpoint string `json:"otlpEndpoint" yaml:"otlpEndpoint"`
	Environment  string `json:"environment" yaml:"environment"`
	Insecure     bool   `json:"insecure" yaml:"insecure"`
}

// RuleSpec declares an additional detection rule in configuration.
type RuleSpec struct {
	Name     string `json:"name" yaml:"name"`
	Pattern  string `json:"pattern" yaml:"pattern"`
	Category string `json:"category" yaml:"category"`
	Severity string `json:"severity" yaml:"severity"`
}

// ForwardingHeadersConfig configures the flagged-header policy point.
type ForwardingHeadersConfig struct {
	Mode ForwardingHeaderMode `json:"mode" yaml:"mode"`
	// RegoPath points at a Rego module consulted when Mode is "policy".
	RegoPath string `json:"regoPath" yaml:"regoPath"`
}

// ValidationConfig is the hot-reloadable section compiled into a Snapshot.
type ValidationConfig struct {
	Limits             rules.Limits            `json:"limits" yaml:"limits"`
	DisabledCategories []string                `json:"disabledCategories" yaml:"disabledCategories"`
	ExtraRules         []RuleSpec              `json:"extraRules" yaml:"extraRules"`
	ForwardingHeaders  ForwardingHeadersConfig `json:"forwardingHeaders" yaml:"forwardingHeaders"`
}

// Config is the root configuration document.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Telemetry  TelemetryConfig  `json:"telemetry" yaml:"telemetry"`
	Validation ValidationConfig `json:"validation" yaml:"validation"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			DataAddress:  ":8080",
			AdminAddress: ":9090",
		},
		Logging: LoggingConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			ServiceName: "warden",
			Insecure:    true,
		},
		Validation: ValidationConfig{
			Limits:            rules.DefaultLimits(),
			ForwardingHeaders: ForwardingHeadersConfig{Mode: ModeLog},
		},
	}
}

// Load reads a YAML (or JSON) configuration file, applies environment
// overrides, and validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 -- File path is configured at startup
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
				return nil, fmt.Errorf("failed to parse config file: %v", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if c.Server.DataAddress == "" {
		return fmt.Errorf("server.dataAddress is required")
	}

	switch c.Validation.ForwardingHeaders.Mode {
	case "", ModeLog, ModeIgnore:
	case ModePolicy:
		if c.Validation.ForwardingHeaders.RegoPath == "" {
			return fmt.Errorf("validation.forwardingHeaders.regoPath is required in policy mode")
		}
	default:
		return fmt.Errorf("unknown forwarding header mode %q", c.Validation.ForwardingHeaders.Mode)
	}

	for _, spec := range c.Validation.ExtraRules {
		if spec.Name == "" || spec.Pattern == "" {
			return fmt.Errorf("extra rules require both name and pattern")
		}
	}

	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WARDEN_DATA_LISTEN"); v != "" {
		cfg.Server.DataAddress = v
	}
	if v := os.Getenv("WARDEN_ADMIN_LISTEN"); v != "" {
		cfg.Server.AdminAddress = v
	}
	if v := os.Getenv("WARDEN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WARDEN_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
}
