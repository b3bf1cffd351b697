package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the relay. Every field can be set
// from a config file (JSON or YAML), overridden by environment variables,
// or both; a file is optional for pure-env deployments.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Mailbox  MailboxConfig  `json:"mailbox"`
	Relay    RelayConfig    `json:"relay"`
	Botpress BotpressConfig `json:"botpress"`
	Display  DisplayConfig  `json:"display"`
	Metrics  MetricsConfig  `json:"metrics"`
	Log      LogConfig      `json:"log"`
}

type ServerConfig struct {
	Host             string `json:"host" env:"CHATRELAY_HOST"`
	Port             int    `json:"port" env:"CHATRELAY_PORT"`
	WebsocketEnabled bool   `json:"websocketEnabled" env:"CHATRELAY_WEBSOCKET_ENABLED"`
}

type MailboxConfig struct {
	// MaxPerConversation bounds pending messages per conversation; the
	// oldest are evicted first beyond this.
	MaxPerConversation int `json:"maxPerConversation" env:"CHATRELAY_MAILBOX_MAX"`
	// PollIntervalMs is advertised to polling clients in poll responses.
	PollIntervalMs int `json:"pollIntervalMs" env:"CHATRELAY_POLL_INTERVAL_MS"`
}

type RelayConfig struct {
	Enabled        bool   `json:"enabled" env:"CHATRELAY_RELAY_ENABLED"`
	WebhookURL     string `json:"webhookUrl" env:"CHATRELAY_WEBHOOK_URL"`
	TimeoutSeconds int    `json:"timeoutSeconds" env:"CHATRELAY_RELAY_TIMEOUT"`
}

type BotpressConfig struct {
	Token string `json:"token" env:"CHATRELAY_BOTPRESS_TOKEN"`
}

// DisplayConfig holds strings the browser widget reads from the server.
type DisplayConfig struct {
	PageTitle string `json:"pageTitle" env:"CHATRELAY_TITLE_PAGE"`
	AgentName string `json:"agentName" env:"CHATRELAY_AGENT_NAME"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled" env:"CHATRELAY_METRICS_ENABLED"`
}

type LogConfig struct {
	Level string `json:"level" env:"CHATRELAY_LOG_LEVEL"`
}

// DefaultConfigDir returns the default config directory (~/.chatrelay).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatrelay"
	}
	return filepath.Join(home, ".chatrelay")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a config file, expands ${VAR} references, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := decodeInto(data, path, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// FromEnv builds a config from defaults plus environment variables alone,
// for deployments that ship no config file.
func FromEnv() (*Config, error) {
	cfg := Defaults()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// decodeInto parses JSON or, for .yaml/.yml files, YAML routed through the
// JSON field tags.
func decodeInto(data []byte, path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var m map[string]any
		if err := yaml.Unmarshal(data, &m); err != nil {
			return err
		}
		jsonData, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return json.Unmarshal(jsonData, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
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

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Mailbox.MaxPerConversation < 1 {
		errs = append(errs, "mailbox.maxPerConversation must be >= 1")
	}
	if cfg.Mailbox.PollIntervalMs < 100 {
		errs = append(errs, "mailbox.pollIntervalMs must be >= 100")
	}
	if cfg.Relay.Enabled && cfg.Relay.WebhookURL == "" {
		errs = append(errs, "relay.webhookUrl is required when relay.enabled is true")
	}
	if cfg.Relay.TimeoutSeconds < 1 {
		errs = append(errs, "relay.timeoutSeconds must be >= 1")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
