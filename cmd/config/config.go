package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/onkernel/workspace-companion/lib/ptyio"
)

// Config holds all configuration for the server. It is read once at startup.
type Config struct {
	// Server configuration
	Host string `envconfig:"HOST" default:"127.0.0.1"`
	Port int    `envconfig:"PORT" default:"3001"`

	// Directory served by the file API, watched for changes and used as the shell cwd.
	RootDir string `envconfig:"ROOT_DIR" default:"."`

	// Terminal configuration. An empty shell means $SHELL, then /bin/bash, then /bin/sh.
	TerminalShell string `envconfig:"TERMINAL_SHELL" default:""`
	TerminalCols  int    `envconfig:"TERMINAL_COLS" default:"80"`
	TerminalRows  int    `envconfig:"TERMINAL_ROWS" default:"24"`

	// Largest file returned by a read, in bytes.
	MaxReadBytes int64 `envconfig:"MAX_READ_BYTES" default:"52428800"`

	// Origin patterns accepted on websocket upgrades, comma separated.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, err
	}
	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func validate(config *Config) error {
	if config.Host == "" {
		return fmt.Errorf("HOST is required")
	}
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if config.RootDir == "" {
		return fmt.Errorf("ROOT_DIR is required")
	}
	if !ptyio.ValidDimensions(config.TerminalCols, config.TerminalRows) {
		return fmt.Errorf("TERMINAL_COLS and TERMINAL_ROWS must be between 1 and %d", ptyio.MaxTerminalDimension)
	}
	if config.MaxReadBytes <= 0 {
		return fmt.Errorf("MAX_READ_BYTES must be greater than 0")
	}
	if len(config.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS is required")
	}
	switch strings.ToLower(config.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	switch config.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}

	return nil
}
