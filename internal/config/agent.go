package config

import (
	"fmt"
	"net/url"
	"time"
)

// Agent configures the agent service: the API front door, the generation
// model, the tool server endpoints, and per-call timeouts.
type Agent struct {
	// API listen address
	APIHost string `mapstructure:"api_host"`
	APIPort int    `mapstructure:"api_port"`

	// AWS Bedrock generation settings
	AWSRegion   string  `mapstructure:"aws_region"`
	ModelID     string  `mapstructure:"bedrock_model_id"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TopP        float32 `mapstructure:"top_p"`

	// Tool server SSE endpoints
	RetrievalURL string `mapstructure:"retrieval_mcp_url"`
	HistoryURL   string `mapstructure:"history_mcp_url"`

	// History cap applied when assembling prompts. Mirrors the history
	// server's cap; the pipeline never asks for more than this.
	MaxHistoryLength int `mapstructure:"max_history_length"`

	// Per-call bounds
	ToolTimeout     time.Duration `mapstructure:"tool_timeout"`
	GenerateTimeout time.Duration `mapstructure:"generate_timeout"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// LoadAgent loads and validates the agent service configuration.
func LoadAgent() (*Agent, error) {
	v := newViper()

	v.SetDefault("api_host", "0.0.0.0")
	v.SetDefault("api_port", 8000)
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("bedrock_model_id", "anthropic.claude-3-sonnet-20240229-v1:0")
	v.SetDefault("temperature", 0.0)
	v.SetDefault("max_tokens", 3000)
	v.SetDefault("top_p", 0.9)
	v.SetDefault("retrieval_mcp_url", "http://bedrock-rag-mcp:3003/sse")
	v.SetDefault("history_mcp_url", "http://mongodb-mcp:3004/sse")
	v.SetDefault("max_history_length", 10)
	v.SetDefault("tool_timeout", 15*time.Second)
	v.SetDefault("generate_timeout", 60*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	bindEnv(v, map[string]string{
		"api_host":           "API_HOST",
		"api_port":           "API_PORT",
		"aws_region":         "AWS_REGION",
		"bedrock_model_id":   "BEDROCK_MODEL_ID",
		"temperature":        "TEMPERATURE",
		"max_tokens":         "MAX_TOKENS",
		"top_p":              "TOP_P",
		"retrieval_mcp_url":  "RETRIEVAL_MCP_URL",
		"history_mcp_url":    "HISTORY_MCP_URL",
		"max_history_length": "MAX_HISTORY_LENGTH",
		"tool_timeout":       "TOOL_TIMEOUT",
		"generate_timeout":   "GENERATE_TIMEOUT",
		"log_level":          "LOG_LEVEL",
		"log_json":           "LOG_JSON",
	})

	if err := readIn(v); err != nil {
		return nil, err
	}

	var cfg Agent
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing agent configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating agent configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration, failing fast on anything the services
// cannot run with.
func (c *Agent) Validate() error {
	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("%w: api_port %d", ErrInvalidAddr, c.APIPort)
	}
	if c.ModelID == "" {
		return fmt.Errorf("%w: bedrock_model_id", ErrMissingModelID)
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxTokens, c.MaxTokens)
	}
	for name, raw := range map[string]string{
		"retrieval_mcp_url": c.RetrievalURL,
		"history_mcp_url":   c.HistoryURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %s %q", ErrInvalidAddr, name, raw)
		}
	}
	if c.MaxHistoryLength < 1 || c.MaxHistoryLength > MaxAllowedHistoryLength {
		return fmt.Errorf("%w: %d (allowed 1-%d)", ErrInvalidHistoryLength, c.MaxHistoryLength, MaxAllowedHistoryLength)
	}
	if c.ToolTimeout <= 0 || c.GenerateTimeout <= 0 {
		return fmt.Errorf("%w: tool=%v generate=%v", ErrInvalidTimeout, c.ToolTimeout, c.GenerateTimeout)
	}
	return nil
}

// ListenAddr returns the host:port the API server binds to.
func (c *Agent) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}
