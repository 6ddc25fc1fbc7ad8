package config

import "fmt"

// Retrieval configures the document retrieval tool server: the knowledge
// base it queries, the reranking pass, and its listen address.
type Retrieval struct {
	Host string `mapstructure:"server_host"`
	Port int    `mapstructure:"server_port"`

	AWSRegion       string `mapstructure:"aws_region"`
	KnowledgeBaseID string `mapstructure:"knowledge_base_id"`

	// Reranking: retrieve InitialResults candidates, keep TopNResults after
	// the rerank pass. With UseReranking off the top N by initial relevance
	// score are kept unreranked.
	UseReranking   bool   `mapstructure:"use_reranking"`
	RerankModelID  string `mapstructure:"rerank_model_id"`
	InitialResults int    `mapstructure:"initial_results"`
	TopNResults    int    `mapstructure:"top_n_results"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// LoadRetrieval loads and validates the retrieval server configuration.
func LoadRetrieval() (*Retrieval, error) {
	v := newViper()

	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 3003)
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("use_reranking", true)
	v.SetDefault("rerank_model_id", "amazon.rerank-v1:0")
	v.SetDefault("initial_results", 5)
	v.SetDefault("top_n_results", 3)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	bindEnv(v, map[string]string{
		"server_host":       "SERVER_HOST",
		"server_port":       "BEDROCK_RAG_PORT",
		"aws_region":        "AWS_REGION",
		"knowledge_base_id": "KNOWLEDGE_BASE_ID",
		"use_reranking":     "USE_RERANKING",
		"rerank_model_id":   "RERANK_MODEL_ID",
		"initial_results":   "INITIAL_RESULTS",
		"top_n_results":     "TOP_N_RESULTS",
		"log_level":         "LOG_LEVEL",
		"log_json":          "LOG_JSON",
	})

	if err := readIn(v); err != nil {
		return nil, err
	}

	var cfg Retrieval
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing retrieval configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating retrieval configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration. The knowledge base id is required: the
// server is useless without one, so startup fails rather than serving a tool
// that can only error.
func (c *Retrieval) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: server_port %d", ErrInvalidAddr, c.Port)
	}
	if c.KnowledgeBaseID == "" {
		return ErrMissingKnowledgeBaseID
	}
	if c.UseReranking && c.RerankModelID == "" {
		return ErrMissingRerankModelID
	}
	if c.InitialResults < 1 || c.InitialResults > MaxAllowedResults {
		return fmt.Errorf("%w: initial_results %d", ErrInvalidResultCount, c.InitialResults)
	}
	if c.TopNResults < 1 || c.TopNResults > c.InitialResults {
		return fmt.Errorf("%w: top_n_results %d (initial_results %d)", ErrInvalidResultCount, c.TopNResults, c.InitialResults)
	}
	return nil
}

// ListenAddr returns the host:port the server binds to.
func (c *Retrieval) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
