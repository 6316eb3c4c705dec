package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the management HTTP surface (services/automation).
type ServerConfig struct {
	Host string `json:"host" yaml:"host" env:"SERVER_HOST"`
	Port int    `json:"port" yaml:"port" env:"SERVER_PORT"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT"`
	Output string `json:"output" yaml:"output" env:"LOG_OUTPUT"`
}

// AutomationConfig holds tuning values for the automation core. They are
// loaded and defaulted here; no other package in this module reads them.
type AutomationConfig struct {
	// SchedulerTickInterval is a scheduler re-check interval in seconds.
	// Nothing in this module reads it.
	SchedulerTickIntervalSeconds int `json:"scheduler_tick_interval_seconds" yaml:"scheduler_tick_interval_seconds" env:"AUTOMATION_SCHEDULER_TICK_SECONDS"`

	// DispatchCoalesceWindowMillis is informational only: the dispatcher's
	// actual coalescing is event-driven (compare-and-set), not windowed,
	// but this bounds how long a caller should wait before assuming a
	// pending re-invoke was dropped.
	DispatchCoalesceWindowMillis int `json:"dispatch_coalesce_window_millis" yaml:"dispatch_coalesce_window_millis" env:"AUTOMATION_DISPATCH_COALESCE_WINDOW_MS"`

	// MaxProgramLength is a token-count limit for SAE programs. The SAE
	// compiler does not read it and applies no length limit.
	MaxProgramLength int `json:"max_program_length" yaml:"max_program_length" env:"AUTOMATION_MAX_PROGRAM_LENGTH"`

	// MaxStackDepth is a value-stack depth limit for the SAE VM. The VM
	// does not read it; its stack grows without a fixed limit.
	MaxStackDepth int `json:"max_stack_depth" yaml:"max_stack_depth" env:"AUTOMATION_MAX_STACK_DEPTH"`
}

// AuthConfig controls bearer-token authentication on the management API.
// Leaving Secret empty disables auth entirely, which is the right default
// for a thing automating itself on a trusted LAN (spec Non-goals exclude a
// multi-tenant identity system); setting it turns on JWT verification for
// every request that is not a read-only status check.
type AuthConfig struct {
	Secret    string `json:"secret" yaml:"secret" env:"AUTH_JWT_SECRET"`
	AdminRole string `json:"admin_role" yaml:"admin_role" env:"AUTH_ADMIN_ROLE"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Automation AutomationConfig `json:"automation" yaml:"automation"`
	Auth       AuthConfig       `json:"auth" yaml:"auth"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Automation: AutomationConfig{
			SchedulerTickIntervalSeconds: 1,
			DispatchCoalesceWindowMillis: 50,
			MaxProgramLength:             256,
			MaxStackDepth:                64,
		},
		Auth: AuthConfig{
			AdminRole: "admin",
		},
	}
}

// Load loads configuration from file (if present) and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode returns an error when no tagged fields are present in the
		// environment; treat that case as "no overrides" so local runs work
		// without exporting vars.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

// LoadFile reads configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
