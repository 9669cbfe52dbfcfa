package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tiancaiamao/acp/pkg/client"
	"github.com/tiancaiamao/acp/pkg/logger"
	"github.com/tiancaiamao/acp/pkg/transport"
)

// Config represents the application configuration.
type Config struct {
	// Agent subprocess to spawn and talk to
	Agent AgentConfig `json:"agent"`

	// Reconnect policy after unexpected agent death
	Reconnect *ReconnectConfig `json:"reconnect,omitempty"`

	// Timeout settings
	Timeouts *TimeoutConfig `json:"timeouts,omitempty"`

	// Logging configuration
	Log *LogConfig `json:"log,omitempty"`
}

// AgentConfig describes the agent command line.
type AgentConfig struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Env     []string `json:"env,omitempty"` // KEY=VALUE, layered over the parent env
	Cwd     string   `json:"cwd,omitempty"`
	// AuthMethod is the auth method id to use when the agent requires it.
	AuthMethod string `json:"authMethod,omitempty"`
}

// ReconnectConfig bounds automatic reconnects.
type ReconnectConfig struct {
	Enabled      bool `json:"enabled"`
	MaxAttempts  int  `json:"maxAttempts"`
	DelaySeconds int  `json:"delaySeconds"`
}

// TimeoutConfig holds timeouts in seconds.
type TimeoutConfig struct {
	RequestSeconds int `json:"requestSeconds"` // sync request wait
	ReadySeconds   int `json:"readySeconds"`   // WaitReady default
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	File   string `json:"file,omitempty"`   // log file path (empty = no file logging)
	Prefix string `json:"prefix,omitempty"` // log prefix
}

// DefaultReconnectConfig returns the default reconnect policy.
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		Enabled:      true,
		MaxAttempts:  3,
		DelaySeconds: 2,
	}
}

// DefaultTimeoutConfig returns the default timeouts.
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		RequestSeconds: 100,
		ReadySeconds:   10,
	}
}

// DefaultLogConfig returns default logging configuration.
func DefaultLogConfig() *LogConfig {
	homeDir, _ := os.UserHomeDir()
	return &LogConfig{
		Level:  "info",
		File:   filepath.Join(homeDir, ".acp", "acp.log"),
		Prefix: "[acp] ",
	}
}

// CreateLogger creates a logger from the log configuration.
func (c *LogConfig) CreateLogger() (*logger.Logger, error) {
	if c == nil {
		c = DefaultLogConfig()
	}
	return logger.NewLogger(&logger.Config{
		Level:    logger.ParseLogLevel(c.Level),
		Prefix:   c.Prefix,
		Console:  true,
		FilePath: c.File,
	})
}

// LoadConfig loads configuration from file and merges with environment
// variables. Environment variables take precedence over file values.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{
		Reconnect: DefaultReconnectConfig(),
		Timeouts:  DefaultTimeoutConfig(),
		Log:       DefaultLogConfig(),
	}

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if val := os.Getenv("ACP_AGENT_CMD"); val != "" {
		// The whole command line in one variable, space separated.
		parts := strings.Fields(val)
		cfg.Agent.Command = parts[0]
		cfg.Agent.Args = parts[1:]
	}
	if val := os.Getenv("ACP_AGENT_CWD"); val != "" {
		cfg.Agent.Cwd = val
	}
	if val := os.Getenv("ACP_AUTH_METHOD"); val != "" {
		cfg.Agent.AuthMethod = val
	}
	if val := os.Getenv("ACP_LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv("ACP_LOG_FILE"); val != "" {
		cfg.Log.File = val
	}
	if val := os.Getenv("ACP_REQUEST_TIMEOUT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.Timeouts.RequestSeconds = n
		}
	}

	return cfg, nil
}

// SaveConfig saves configuration to file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// TransportConfig converts the agent section into a transport config.
func (c *Config) TransportConfig() transport.Config {
	return transport.Config{
		Command: c.Agent.Command,
		Args:    c.Agent.Args,
		Env:     c.Agent.Env,
		Dir:     c.Agent.Cwd,
	}
}

// ClientOptions converts reconnect and timeout settings into client
// options.
func (c *Config) ClientOptions(version string) client.Options {
	opts := client.Options{
		AuthMethod:    c.Agent.AuthMethod,
		ClientName:    "acp",
		ClientVersion: version,
	}
	if c.Timeouts != nil {
		opts.RequestTimeout = time.Duration(c.Timeouts.RequestSeconds) * time.Second
		opts.ReadyTimeout = time.Duration(c.Timeouts.ReadySeconds) * time.Second
	}
	if c.Reconnect != nil {
		opts.Reconnect = client.ReconnectPolicy{
			Enabled:     c.Reconnect.Enabled,
			MaxAttempts: c.Reconnect.MaxAttempts,
			Delay:       time.Duration(c.Reconnect.DelaySeconds) * time.Second,
		}
	}
	return opts
}

// GetDefaultConfigPath returns the default config file path.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".acp", "config.json"), nil
}
