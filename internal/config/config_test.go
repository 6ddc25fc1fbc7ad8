package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAgentDefaults(t *testing.T) {
	cfg, err := LoadAgent()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.ListenAddr())
	assert.Equal(t, "anthropic.claude-3-sonnet-20240229-v1:0", cfg.ModelID)
	assert.Equal(t, 10, cfg.MaxHistoryLength)
	assert.Equal(t, 15*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 60*time.Second, cfg.GenerateTimeout)
	assert.Equal(t, "http://bedrock-rag-mcp:3003/sse", cfg.RetrievalURL)
	assert.Equal(t, "http://mongodb-mcp:3004/sse", cfg.HistoryURL)
}

func TestLoadAgentEnvOverrides(t *testing.T) {
	t.Setenv("API_HOST", "127.0.0.1")
	t.Setenv("API_PORT", "9000")
	t.Setenv("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0")
	t.Setenv("MAX_HISTORY_LENGTH", "6")
	t.Setenv("RETRIEVAL_MCP_URL", "http://localhost:3003/sse")

	cfg, err := LoadAgent()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr())
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", cfg.ModelID)
	assert.Equal(t, 6, cfg.MaxHistoryLength)
	assert.Equal(t, "http://localhost:3003/sse", cfg.RetrievalURL)
}

func TestLoadAgentValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{
			name:    "temperature out of range",
			env:     map[string]string{"TEMPERATURE": "1.5"},
			wantErr: ErrInvalidTemperature,
		},
		{
			name:    "port out of range",
			env:     map[string]string{"API_PORT": "70000"},
			wantErr: ErrInvalidAddr,
		},
		{
			name:    "malformed tool server url",
			env:     map[string]string{"HISTORY_MCP_URL": "not-a-url"},
			wantErr: ErrInvalidAddr,
		},
		{
			name:    "zero history cap",
			env:     map[string]string{"MAX_HISTORY_LENGTH": "0"},
			wantErr: ErrInvalidHistoryLength,
		},
		{
			name:    "zero max tokens",
			env:     map[string]string{"MAX_TOKENS": "0"},
			wantErr: ErrInvalidMaxTokens,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadAgent()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadRetrievalRequiresKnowledgeBase(t *testing.T) {
	_, err := LoadRetrieval()
	assert.ErrorIs(t, err, ErrMissingKnowledgeBaseID)
}

func TestLoadRetrieval(t *testing.T) {
	t.Setenv("KNOWLEDGE_BASE_ID", "KB123456")
	t.Setenv("BEDROCK_RAG_PORT", "3103")
	t.Setenv("USE_RERANKING", "false")

	cfg, err := LoadRetrieval()
	require.NoError(t, err)

	assert.Equal(t, "KB123456", cfg.KnowledgeBaseID)
	assert.Equal(t, "0.0.0.0:3103", cfg.ListenAddr())
	assert.False(t, cfg.UseReranking)
	assert.Equal(t, 5, cfg.InitialResults)
	assert.Equal(t, 3, cfg.TopNResults)
}

func TestLoadRetrievalValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{
			name:    "top n above initial results",
			env:     map[string]string{"TOP_N_RESULTS": "9", "INITIAL_RESULTS": "5"},
			wantErr: ErrInvalidResultCount,
		},
		{
			name:    "initial results above limit",
			env:     map[string]string{"INITIAL_RESULTS": "500"},
			wantErr: ErrInvalidResultCount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("KNOWLEDGE_BASE_ID", "KB123456")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadRetrieval()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRetrievalValidateRerankModel(t *testing.T) {
	cfg := Retrieval{
		Port:            3003,
		KnowledgeBaseID: "KB123456",
		UseReranking:    true,
		InitialResults:  5,
		TopNResults:     3,
	}
	assert.ErrorIs(t, cfg.Validate(), ErrMissingRerankModelID)

	cfg.RerankModelID = "amazon.rerank-v1:0"
	assert.NoError(t, cfg.Validate())
}

func TestHistoryValidateNames(t *testing.T) {
	cfg := History{
		Port:             3004,
		Database:         "bedrock_rag",
		Collection:       "",
		ConnectTimeout:   time.Second,
		MaxHistoryLength: 10,
	}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidAddr)

	cfg.Collection = "conversations"
	assert.NoError(t, cfg.Validate())
}

func TestLoadHistoryDefaults(t *testing.T) {
	cfg, err := LoadHistory()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:3004", cfg.ListenAddr())
	assert.Empty(t, cfg.MongoURI, "no URI means in-memory fallback")
	assert.Equal(t, "bedrock_rag", cfg.Database)
	assert.Equal(t, "conversations", cfg.Collection)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10, cfg.MaxHistoryLength)
}

func TestLoadHistoryValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{
			name:    "history cap above limit",
			env:     map[string]string{"MAX_HISTORY_LENGTH": "100000"},
			wantErr: ErrInvalidHistoryLength,
		},
		{
			name:    "port out of range",
			env:     map[string]string{"MONGODB_MCP_PORT": "0"},
			wantErr: ErrInvalidAddr,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadHistory()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
