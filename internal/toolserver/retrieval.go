package toolserver

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/conversation"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/retrieval"
)

// DocumentRetriever is the slice of the retriever the tools depend on.
type DocumentRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]conversation.Snippet, error)
}

// RetrieveInput is a plain retrieval query.
type RetrieveInput struct {
	Query string `json:"query" jsonschema:"The search query"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"Maximum number of documents to return"`
}

// RetrieveOutput carries the retrieved documents, most relevant first.
type RetrieveOutput struct {
	Documents []conversation.Snippet `json:"documents"`
	Count     int                    `json:"count"`
}

// FilterInput is a retrieval query restricted to documents whose metadata
// field equals the given value.
type FilterInput struct {
	Query string `json:"query" jsonschema:"The search query"`
	Field string `json:"field" jsonschema:"Metadata field name to filter on"`
	Value any    `json:"value" jsonschema:"Metadata value to match exactly"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"Maximum number of documents to retrieve before filtering"`
}

// FilterOutput carries the filtered documents plus the pre-filter count.
type FilterOutput struct {
	Documents     []conversation.Snippet `json:"documents"`
	OriginalCount int                    `json:"original_count"`
	FilteredCount int                    `json:"filtered_count"`
}

// RegisterRetrievalTools registers the document-retrieval tools over the
// given retriever.
func RegisterRetrievalTools(srv *mcp.Server, retriever DocumentRetriever, logger log.Logger) error {
	if logger == nil {
		logger = log.NewNop()
	}

	retrieveSchema, err := jsonschema.For[RetrieveInput](nil)
	if err != nil {
		return fmt.Errorf("retrieve input schema: %w", err)
	}
	filterSchema, err := jsonschema.For[FilterInput](nil)
	if err != nil {
		return fmt.Errorf("filter input schema: %w", err)
	}

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "retrieve_documents",
		Description: "Search the knowledge base and return the most relevant document snippets with their source metadata and relevance scores.",
		InputSchema: retrieveSchema,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in RetrieveInput) (*mcp.CallToolResult, RetrieveOutput, error) {
		if in.Query == "" {
			return errorResult("query is required"), RetrieveOutput{}, nil
		}
		docs, err := retriever.Retrieve(ctx, in.Query, in.TopK)
		if err != nil {
			logger.Error("retrieval failed", "error", err)
			return errorResult("retrieving documents: %v", err), RetrieveOutput{}, nil
		}
		if docs == nil {
			docs = []conversation.Snippet{}
		}
		logger.Debug("documents retrieved", "count", len(docs))
		return nil, RetrieveOutput{Documents: docs, Count: len(docs)}, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "filter_by_metadata",
		Description: "Search the knowledge base, then keep only the documents whose metadata field equals the given value. An empty result is a valid outcome.",
		InputSchema: filterSchema,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in FilterInput) (*mcp.CallToolResult, FilterOutput, error) {
		if in.Query == "" {
			return errorResult("query is required"), FilterOutput{}, nil
		}
		if in.Field == "" {
			return errorResult("field is required"), FilterOutput{}, nil
		}
		docs, err := retriever.Retrieve(ctx, in.Query, in.TopK)
		if err != nil {
			logger.Error("retrieval failed", "error", err)
			return errorResult("retrieving documents: %v", err), FilterOutput{}, nil
		}
		filtered := retrieval.FilterByMetadata(docs, in.Field, in.Value)
		logger.Debug("documents filtered",
			"field", in.Field,
			"original", len(docs),
			"filtered", len(filtered))
		return nil, FilterOutput{
			Documents:     filtered,
			OriginalCount: len(docs),
			FilteredCount: len(filtered),
		}, nil
	})

	return nil
}
