package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for lookupbot.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Telegram  TelegramConfig  `json:"telegram"`
	Database  DatabaseConfig  `json:"database"`
	Gate      GateConfig      `json:"gate"`
	Branding  BrandingConfig  `json:"branding"`
	Redaction RedactionConfig `json:"redaction"`
	Limits    LimitsConfig    `json:"limits"`
	Health    HealthConfig    `json:"health"`
	Registry  string          `json:"registry"` // path to commands.yaml
}

type GeneralConfig struct {
	LogLevel    string `json:"logLevel"`
	LogFile     string `json:"logFile,omitempty"`
	GroupOnly   bool   `json:"groupOnly"`
	RedirectBot string `json:"redirectBot,omitempty"` // shown when a non-admin DMs the bot
}

type TelegramConfig struct {
	Token         string  `json:"token"`
	OwnerID       int64   `json:"ownerId"`
	InitialAdmins []int64 `json:"initialAdmins,omitempty"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

// GateConfig lists the channels a user must belong to before any lookup
// command is admitted.
type GateConfig struct {
	Channels []ForceJoinChannel `json:"channels"`
}

type ForceJoinChannel struct {
	Name string `json:"name"`
	Link string `json:"link"`
	ID   int64  `json:"id"`
}

type BrandingConfig struct {
	Developer string `json:"developer"`
	PoweredBy string `json:"poweredBy"`
	Footer    string `json:"footer,omitempty"`
}

type RedactionConfig struct {
	Blacklist []string `json:"blacklist"`
}

// LimitsConfig holds the numeric thresholds of the delivery pipeline.
type LimitsConfig struct {
	LookupTimeoutSeconds int `json:"lookupTimeoutSeconds"`
	InlineMaxLen         int `json:"inlineMaxLen"`   // escaped message ceiling
	RedactedMaxLen       int `json:"redactedMaxLen"` // pre-escape ceiling
	CacheTTLSeconds      int `json:"cacheTtlSeconds"`
	AuditTruncateLen     int `json:"auditTruncateLen"`
}

type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// DefaultConfigDir returns the default config directory (~/.lookupbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lookupbot"
	}
	return filepath.Join(home, ".lookupbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func DefaultRegistryPath() string {
	return filepath.Join(DefaultConfigDir(), "commands.yaml")
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Registry = ExpandPath(cfg.Registry)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Telegram.OwnerID == 0 {
		errs = append(errs, "telegram.ownerId is required")
	}

	if cfg.Limits.LookupTimeoutSeconds < 1 {
		errs = append(errs, "limits.lookupTimeoutSeconds must be >= 1")
	}
	if cfg.Limits.InlineMaxLen < 1 {
		errs = append(errs, "limits.inlineMaxLen must be >= 1")
	}
	if cfg.Limits.RedactedMaxLen < 1 {
		errs = append(errs, "limits.redactedMaxLen must be >= 1")
	}
	if cfg.Limits.CacheTTLSeconds < 1 {
		errs = append(errs, "limits.cacheTtlSeconds must be >= 1")
	}

	if cfg.Health.Enabled && (cfg.Health.Port < 1 || cfg.Health.Port > 65535) {
		errs = append(errs, "health.port must be between 1 and 65535")
	}

	for i, ch := range cfg.Gate.Channels {
		if ch.ID == 0 {
			errs = append(errs, fmt.Sprintf("gate.channels[%d]: id is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
