// Package pipeline orchestrates one conversational turn: resolve the
// conversation's history, retrieve relevant documents, generate a grounded
// answer, and persist the new turns.
//
// Turns within one conversation are serialized on a per-conversation lock so
// concurrent queries against the same id never interleave their
// read-generate-write sequences. Turns of different conversations proceed
// independently. Within a turn, the history read and document retrieval run
// concurrently; the history write waits for generation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/conversation"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/dispatch"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/llm"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
)

// Tool names the pipeline invokes through the dispatcher. These are the wire
// names the tool servers register.
const (
	toolGetHistory   = "get_conversation_history"
	toolAppendTurns  = "append_conversation_turns"
	toolRetrieve     = "retrieve_documents"
	toolFilterByMeta = "filter_by_metadata"
)

// warnPersistFailed is the response warning set when the history write fails
// after a successful generation.
const warnPersistFailed = "conversation turns could not be persisted; the answer is not saved to history"

// ErrEmptyQuery indicates the request carried no query text.
var ErrEmptyQuery = errors.New("empty query")

// ToolClient is the slice of the dispatcher the pipeline depends on.
type ToolClient interface {
	Invoke(ctx context.Context, name string, args map[string]any) (*dispatch.Result, error)
}

// Filter restricts retrieval to documents whose metadata field equals Value.
type Filter struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Request is one user query within an optional existing conversation.
type Request struct {
	ConversationID string
	Query          string
	Filter         *Filter
}

// Citation points at one retrieved document the answer was grounded on.
// Source matches the [Source N] numbering in the generated text.
type Citation struct {
	Source   int            `json:"source"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// Response is the outcome of one turn. Warning is set when a non-fatal step
// failed after the answer was already generated.
type Response struct {
	ConversationID string     `json:"conversation_id"`
	Answer         string     `json:"answer"`
	Citations      []Citation `json:"citations"`
	Warning        string     `json:"warning,omitempty"`
}

// Config holds the pipeline policy knobs.
type Config struct {
	// MaxHistoryLength caps the turns injected into the prompt and kept in
	// the store.
	MaxHistoryLength int

	// TopK is the number of documents requested per query.
	TopK int

	// RetryBackoff is the pause before the single retry of a transiently
	// failed tool call. Zero means 500ms.
	RetryBackoff time.Duration
}

// Pipeline answers queries. Safe for concurrent use.
type Pipeline struct {
	tools     ToolClient
	generator llm.Generator
	cfg       Config
	locks     *keyLock
	logger    log.Logger
	now       func() time.Time
}

// New creates a pipeline over the given tool client and generator.
func New(tools ToolClient, generator llm.Generator, cfg Config, logger log.Logger) *Pipeline {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Pipeline{
		tools:     tools,
		generator: generator,
		cfg:       cfg,
		locks:     newKeyLock(),
		logger:    logger,
		now:       time.Now,
	}
}

// historyPayload and documentsPayload mirror the tool servers' structured
// results.
type historyPayload struct {
	Turns []conversation.Turn `json:"turns"`
}

type documentsPayload struct {
	Documents []conversation.Snippet `json:"documents"`
}

// Query runs one full turn and returns the answer with citations. A fresh
// conversation id is minted when the request carries none; the caller uses it
// to continue the conversation.
func (p *Pipeline) Query(ctx context.Context, req Request) (*Response, error) {
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}

	id := req.ConversationID
	fresh := id == ""
	if fresh {
		id = uuid.NewString()
	}

	release := p.locks.acquire(id)
	defer release()

	started := p.now()

	// History read and retrieval have no data dependency, so they run in
	// parallel. A fresh conversation skips the read entirely.
	type retrievalResult struct {
		snippets []conversation.Snippet
		err      error
	}
	retrieved := make(chan retrievalResult, 1)
	go func() {
		snippets, err := p.retrieve(ctx, req)
		retrieved <- retrievalResult{snippets, err}
	}()

	var history []conversation.Turn
	if !fresh {
		var err error
		history, err = p.loadHistory(ctx, id)
		if err != nil {
			<-retrieved
			return nil, err
		}
	}

	ret := <-retrieved
	if ret.err != nil {
		return nil, ret.err
	}

	answer, err := p.generator.Generate(ctx, llm.Request{
		History:  conversation.Trim(history, p.cfg.MaxHistoryLength),
		Snippets: ret.snippets,
		Query:    req.Query,
	})
	if err != nil {
		return nil, err
	}

	resp := &Response{
		ConversationID: id,
		Answer:         answer,
		Citations:      citations(ret.snippets),
	}

	// A turn abandoned by the caller must leave no partial history behind.
	if ctx.Err() != nil {
		return nil, fmt.Errorf("turn abandoned before persist: %w", ctx.Err())
	}

	if err := p.persist(ctx, id, req.Query, answer); err != nil {
		p.logger.Warn("persisting turns failed",
			"conversation_id", id,
			"error", err)
		resp.Warning = warnPersistFailed
	}

	p.logger.Info("turn completed",
		"conversation_id", id,
		"fresh", fresh,
		"documents", len(ret.snippets),
		"warning", resp.Warning != "",
		"elapsed", p.now().Sub(started))
	return resp, nil
}

// loadHistory fetches the stored turns for a conversation. An id the store
// has never seen yields an empty history, not an error.
func (p *Pipeline) loadHistory(ctx context.Context, id string) ([]conversation.Turn, error) {
	res, err := p.invoke(ctx, toolGetHistory, map[string]any{
		"conversation_id": id,
	})
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	var payload historyPayload
	if err := res.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	return payload.Turns, nil
}

// retrieve fetches document snippets for the query, through the metadata
// filter tool when the request carries a filter.
func (p *Pipeline) retrieve(ctx context.Context, req Request) ([]conversation.Snippet, error) {
	name := toolRetrieve
	args := map[string]any{
		"query": req.Query,
		"top_k": p.cfg.TopK,
	}
	if req.Filter != nil {
		name = toolFilterByMeta
		args["field"] = req.Filter.Field
		args["value"] = req.Filter.Value
	}

	res, err := p.invoke(ctx, name, args)
	if err != nil {
		return nil, fmt.Errorf("retrieving documents: %w", err)
	}
	var payload documentsPayload
	if err := res.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding documents: %w", err)
	}
	return payload.Documents, nil
}

// persist appends the user turn and the assistant turn to the conversation.
// The store trims from the head when the cap is exceeded. Timestamps travel
// as RFC 3339 strings on the wire.
func (p *Pipeline) persist(ctx context.Context, id, query, answer string) error {
	ts := p.now().UTC().Format(time.RFC3339Nano)
	_, err := p.invoke(ctx, toolAppendTurns, map[string]any{
		"conversation_id": id,
		"turns": []map[string]any{
			{"role": string(conversation.RoleUser), "content": query, "timestamp": ts},
			{"role": string(conversation.RoleAssistant), "content": answer, "timestamp": ts},
		},
	})
	return err
}

// invoke calls a tool through the dispatcher, retrying exactly once after a
// backoff when the failure was transient. Contract errors and tool-level
// failures are never retried.
func (p *Pipeline) invoke(ctx context.Context, name string, args map[string]any) (*dispatch.Result, error) {
	res, err := p.tools.Invoke(ctx, name, args)
	if err == nil || !errors.Is(err, dispatch.ErrToolUnavailable) {
		return res, err
	}

	p.logger.Warn("tool call failed, retrying once",
		"tool", name,
		"backoff", p.cfg.RetryBackoff,
		"error", err)

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("canceled during retry backoff: %w", ctx.Err())
	case <-time.After(p.cfg.RetryBackoff):
	}
	return p.tools.Invoke(ctx, name, args)
}

// citations numbers the snippets the generation step saw, matching the
// [Source N] markers in the prompt.
func citations(snippets []conversation.Snippet) []Citation {
	out := make([]Citation, len(snippets))
	for i, s := range snippets {
		out[i] = Citation{Source: i + 1, Metadata: s.Metadata, Score: s.Score}
	}
	return out
}
