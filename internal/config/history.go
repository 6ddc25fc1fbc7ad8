package config

import (
	"fmt"
	"time"
)

// History configures the conversation history tool server: its MongoDB
// backing store and the per-conversation turn cap.
type History struct {
	Host string `mapstructure:"server_host"`
	Port int    `mapstructure:"server_port"`

	// MongoURI empty means no database: the server falls back to an
	// in-memory store, matching the original deployment's degraded mode.
	MongoURI       string        `mapstructure:"mongodb_uri"`
	Database       string        `mapstructure:"mongodb_db_name"`
	Collection     string        `mapstructure:"mongodb_collection"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	MaxHistoryLength int `mapstructure:"max_history_length"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// LoadHistory loads and validates the history server configuration.
func LoadHistory() (*History, error) {
	v := newViper()

	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 3004)
	v.SetDefault("mongodb_db_name", "bedrock_rag")
	v.SetDefault("mongodb_collection", "conversations")
	v.SetDefault("connect_timeout", 5*time.Second)
	v.SetDefault("max_history_length", 10)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	bindEnv(v, map[string]string{
		"server_host":        "SERVER_HOST",
		"server_port":        "MONGODB_MCP_PORT",
		"mongodb_uri":        "MONGODB_URI",
		"mongodb_db_name":    "MONGODB_DB_NAME",
		"mongodb_collection": "MONGODB_COLLECTION",
		"connect_timeout":    "CONNECT_TIMEOUT",
		"max_history_length": "MAX_HISTORY_LENGTH",
		"log_level":          "LOG_LEVEL",
		"log_json":           "LOG_JSON",
	})

	if err := readIn(v); err != nil {
		return nil, err
	}

	var cfg History
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing history configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating history configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration.
func (c *History) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: server_port %d", ErrInvalidAddr, c.Port)
	}
	if c.Database == "" || c.Collection == "" {
		return fmt.Errorf("%w: mongodb_db_name %q, mongodb_collection %q", ErrInvalidAddr, c.Database, c.Collection)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect_timeout %v", ErrInvalidTimeout, c.ConnectTimeout)
	}
	if c.MaxHistoryLength < 1 || c.MaxHistoryLength > MaxAllowedHistoryLength {
		return fmt.Errorf("%w: %d (allowed 1-%d)", ErrInvalidHistoryLength, c.MaxHistoryLength, MaxAllowedHistoryLength)
	}
	return nil
}

// ListenAddr returns the host:port the server binds to.
func (c *History) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
