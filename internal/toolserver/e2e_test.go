package toolserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/conversation"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/dispatch"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/history"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/llm"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/pipeline"
)

type capturingGenerator struct {
	requests []llm.Request
}

func (g *capturingGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	g.requests = append(g.requests, req)
	return "Bedrock is a managed foundation-model service. [Source 1]", nil
}

// startToolServer serves a configured tool server over a real HTTP listener.
func startToolServer(t *testing.T, srv *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// TestAgentAgainstLiveToolServers runs the full turn path the deployed system
// uses: the pipeline talks to both tool servers through SSE sessions, not
// fakes, so the wire contract between them is exercised for real.
func TestAgentAgainstLiveToolServers(t *testing.T) {
	store := history.NewMemoryStore(10)
	historySrv, err := New(Config{Name: "mongodb-mcp", Version: "test", Logger: log.NewNop()})
	require.NoError(t, err)
	require.NoError(t, RegisterHistoryTools(historySrv.MCP(), store, log.NewNop()))

	retriever := &fakeRetriever{docs: []conversation.Snippet{
		{Text: "Amazon Bedrock hosts foundation models.", Metadata: map[string]any{"source": "s3://kb/bedrock.md"}, Score: 0.93},
	}}
	retrievalSrv, err := New(Config{Name: "bedrock-rag-mcp", Version: "test", Logger: log.NewNop()})
	require.NoError(t, err)
	require.NoError(t, RegisterRetrievalTools(retrievalSrv.MCP(), retriever, log.NewNop()))

	historyHTTP := startToolServer(t, historySrv)
	retrievalHTTP := startToolServer(t, retrievalSrv)

	d, err := dispatch.Connect(t.Context(), []dispatch.Endpoint{
		{Name: "history", URL: historyHTTP.URL + "/sse"},
		{Name: "retrieval", URL: retrievalHTTP.URL + "/sse"},
	}, dispatch.Options{Logger: log.NewNop(), CallTimeout: 10 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	require.Len(t, d.Tools(), 6, "both servers' tools are discovered")

	gen := &capturingGenerator{}
	p := pipeline.New(d, gen, pipeline.Config{
		MaxHistoryLength: 10,
		TopK:             3,
		RetryBackoff:     10 * time.Millisecond,
	}, log.NewNop())

	// First turn: no conversation id supplied.
	first, err := p.Query(t.Context(), pipeline.Request{Query: "What is AWS Bedrock?"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ConversationID)
	assert.NotEmpty(t, first.Answer)
	assert.Empty(t, first.Warning)
	require.Len(t, first.Citations, 1)
	assert.Equal(t, "s3://kb/bedrock.md", first.Citations[0].Metadata["source"])

	// The turn pair was persisted through the history tool.
	turns, err := store.History(t.Context(), first.ConversationID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, conversation.RoleUser, turns[0].Role)
	assert.Equal(t, "What is AWS Bedrock?", turns[0].Content)
	assert.Equal(t, conversation.RoleAssistant, turns[1].Role)

	// Second turn continues the conversation; the stored history comes back
	// through the wire and lands in the generation input.
	second, err := p.Query(t.Context(), pipeline.Request{
		ConversationID: first.ConversationID,
		Query:          "What models does it host?",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	require.Len(t, gen.requests, 2)
	injected := gen.requests[1].History
	require.Len(t, injected, 2)
	assert.Equal(t, "What is AWS Bedrock?", injected[0].Content)
	assert.Equal(t, conversation.RoleAssistant, injected[1].Role)
}

func TestToolServerHealthEndpoints(t *testing.T) {
	srv, err := New(Config{
		Name:    "bedrock-rag-mcp",
		Version: "test",
		Logger:  log.NewNop(),
		ReadyCheck: func(context.Context) error {
			return nil
		},
	})
	require.NoError(t, err)
	ts := startToolServer(t, srv)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	ready, err := http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	defer ready.Body.Close()
	assert.Equal(t, http.StatusOK, ready.StatusCode)
}

func TestToolServerReadinessFailure(t *testing.T) {
	srv, err := New(Config{
		Name:    "mongodb-mcp",
		Version: "test",
		Logger:  log.NewNop(),
		ReadyCheck: func(context.Context) error {
			return context.DeadlineExceeded
		},
	})
	require.NoError(t, err)
	ts := startToolServer(t, srv)

	resp, err := http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
