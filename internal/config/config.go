// Package config loads and validates the scanflow configuration from YAML
// files and environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/avolpe/scanflow/internal/store"
)

// Config represents the complete scanflow configuration.
type Config struct {
	// Scan worker dispatch configuration
	Scan ScanConfig `yaml:"scan" json:"scan"`

	// Host discovery configuration
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`

	// Artifact store configuration
	Artifacts ArtifactsConfig `yaml:"artifacts" json:"artifacts"`

	// Report output configuration
	Report ReportConfig `yaml:"report" json:"report"`

	// Database configuration (optional run persistence)
	Database store.Config `yaml:"database" json:"database"`

	// API configuration
	API APIConfig `yaml:"api" json:"api"`

	// Scheduler configuration
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ScanConfig controls how scan workers are launched.
type ScanConfig struct {
	// Launcher mode: "docker" runs the worker image per host, "exec" runs
	// an arbitrary command with placeholder substitution
	Mode string `yaml:"mode" json:"mode" validate:"oneof=docker exec"`

	// Container image for docker mode
	DockerImage string `yaml:"docker_image" json:"docker_image" validate:"required_if=Mode docker"`

	// Command template for exec mode, with {target} and {artifact} placeholders
	ExecCommand []string `yaml:"exec_command" json:"exec_command" validate:"required_if=Mode exec"`

	// Maximum scan workers running at once
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent" validate:"min=1"`

	// Targets scanned by daemon-mode recurring runs; addresses or CIDR blocks
	Targets []string `yaml:"targets" json:"targets"`

	// Files with one target entry per line, merged with Targets
	TargetFiles []string `yaml:"target_files" json:"target_files"`
}

// DiscoveryConfig controls the liveness probe phase.
type DiscoveryConfig struct {
	// Probe method: nmap, tcp, or snmp
	Method string `yaml:"method" json:"method" validate:"oneof=nmap tcp snmp"`

	// Concurrent probes in flight
	Concurrency int `yaml:"concurrency" json:"concurrency" validate:"min=1"`

	// Per-host probe timeout
	ProbeTimeout time.Duration `yaml:"probe_timeout" json:"probe_timeout"`

	// SNMP community string for the snmp method
	SNMPCommunity string `yaml:"snmp_community" json:"snmp_community"`

	// Resolve PTR records for active hosts
	ResolveHostnames bool `yaml:"resolve_hostnames" json:"resolve_hostnames"`

	// DNS server for PTR lookups (host:port); empty uses 127.0.0.1:53
	DNSServer string `yaml:"dns_server" json:"dns_server"`
}

// ArtifactsConfig controls the per-host result artifact directory.
type ArtifactsConfig struct {
	// Directory scan workers write result artifacts into
	Dir string `yaml:"dir" json:"dir" validate:"required"`

	// Clear stale artifacts before each run
	ClearOnStart bool `yaml:"clear_on_start" json:"clear_on_start"`
}

// ReportConfig controls the aggregated report sink.
type ReportConfig struct {
	// Output format: csv, json, or table
	Format string `yaml:"format" json:"format" validate:"oneof=csv json table"`

	// Output file path; empty writes to stdout
	Output string `yaml:"output" json:"output"`
}

// APIConfig holds status API server settings.
type APIConfig struct {
	// Enable the status API server
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Listen address
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// Listen port
	Port int `yaml:"port" json:"port" validate:"min=0,max=65535"`

	// Request timeout
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// SchedulerConfig holds recurring scan settings for daemon mode.
type SchedulerConfig struct {
	// Enable scheduled recurring scans
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Cron expression for recurring scans
	Cron string `yaml:"cron" json:"cron" validate:"required_if=Enabled true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Log file rotation
	Rotation RotationConfig `yaml:"rotation" json:"rotation"`
}

// RotationConfig holds log rotation settings for file outputs.
type RotationConfig struct {
	// Maximum file size in MB
	MaxSizeMB int `yaml:"max_size_mb" json:"max_size_mb"`

	// Maximum number of backup files
	MaxBackups int `yaml:"max_backups" json:"max_backups"`

	// Maximum age in days
	MaxAgeDays int `yaml:"max_age_days" json:"max_age_days"`

	// Compress rotated files
	Compress bool `yaml:"compress" json:"compress"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			Mode:          "docker",
			DockerImage:   "ghcr.io/avolpe/scanflow-worker:latest",
			MaxConcurrent: 10,
		},
		Discovery: DiscoveryConfig{
			Method:           "nmap",
			Concurrency:      50,
			ProbeTimeout:     3 * time.Second,
			SNMPCommunity:    "public",
			ResolveHostnames: false,
			DNSServer:        "",
		},
		Artifacts: ArtifactsConfig{
			Dir:          "/var/lib/scanflow/artifacts",
			ClearOnStart: true,
		},
		Report: ReportConfig{
			Format: "csv",
			Output: "",
		},
		Database: store.DefaultConfig(),
		API: APIConfig{
			Enabled:        false,
			ListenAddr:     "127.0.0.1",
			Port:           8080,
			RequestTimeout: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled: false,
			Cron:    "0 2 * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
			Rotation: RotationConfig{
				MaxSizeMB:  100,
				MaxBackups: 5,
				MaxAgeDays: 30,
				Compress:   true,
			},
		},
	}
}

// Load loads configuration from a file, layered over the defaults. A
// missing file is not an error; the defaults are returned as-is.
func Load(path string) (*Config, error) {
	config := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validate = validator.New()

// Validate checks the configuration against its struct constraints plus a
// few cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("field %s failed validation rule %q", first.Namespace(), first.Tag())
		}
		return err
	}

	if c.Discovery.ProbeTimeout < 0 {
		return fmt.Errorf("discovery probe timeout must not be negative")
	}
	if c.API.Enabled && c.API.Port == 0 {
		return fmt.Errorf("API port is required when the API is enabled")
	}
	if c.Database.Enabled {
		if c.Database.Host == "" || c.Database.Database == "" {
			return fmt.Errorf("database host and name are required when persistence is enabled")
		}
	}

	return nil
}

// APIAddress returns the full listen address for the status API.
func (c *Config) APIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.ListenAddr, c.API.Port)
}
