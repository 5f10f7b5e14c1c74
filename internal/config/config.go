package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration. Defaults are overridden by
// an optional JSON file, which is overridden by environment variables.
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Auth      *AuthConfig      `json:"auth"`
	Logging   *LoggingConfig   `json:"logging"`
}

type DatabaseConfig struct {
	Path    string        `json:"path" env:"CAMPUSHUB_DB_PATH"`
	Timeout time.Duration `json:"timeout" env:"CAMPUSHUB_DB_TIMEOUT"`
}

type HTTPConfig struct {
	Host         string        `json:"host" env:"CAMPUSHUB_HTTP_HOST"`
	Port         int           `json:"port" env:"CAMPUSHUB_HTTP_PORT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"CAMPUSHUB_HTTP_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"CAMPUSHUB_HTTP_WRITE_TIMEOUT"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval" env:"CAMPUSHUB_WS_PING_INTERVAL"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"CAMPUSHUB_WS_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"CAMPUSHUB_WS_WRITE_TIMEOUT"`
	SendBuffer   int           `json:"send_buffer" env:"CAMPUSHUB_WS_SEND_BUFFER"`
}

// AuthConfig holds the shared secret the identity provider signs
// tokens with. It has no default: deployments must set it explicitly.
type AuthConfig struct {
	TokenSecret string `json:"token_secret" env:"CAMPUSHUB_TOKEN_SECRET"`
}

type LoggingConfig struct {
	Level  string `json:"level" env:"CAMPUSHUB_LOG_LEVEL"`
	Pretty bool   `json:"pretty" env:"CAMPUSHUB_LOG_PRETTY"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./campushub.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 5 * time.Second,
			SendBuffer:   100,
		},
		Auth: &AuthConfig{},
		Logging: &LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration: defaults, then the JSON file
// at path if non-empty, then the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Database == nil || c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PingInterval >= c.WebSocket.ReadTimeout {
		return fmt.Errorf("WebSocket ping interval must be positive and below the read timeout")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("WebSocket send buffer must be positive")
	}
	if c.Auth == nil || c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth token secret is required")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
