// Package retrieval implements document retrieval against an AWS Bedrock
// knowledge base, with an optional server-side reranking pass.
//
// The flow mirrors the managed APIs it wraps: Retrieve pulls an initial
// candidate set from the knowledge base by vector relevance, then Rerank
// rescores the candidates with a reranking model and the top N survive.
// With reranking disabled the top N by initial relevance score are kept.
package retrieval

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/conversation"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
)

// bedrockAPI is the slice of the Bedrock agent-runtime client the retriever
// uses. Consumer-side interface so tests can substitute a fake.
type bedrockAPI interface {
	Retrieve(ctx context.Context, in *bedrockagentruntime.RetrieveInput, opts ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error)
	Rerank(ctx context.Context, in *bedrockagentruntime.RerankInput, opts ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RerankOutput, error)
}

// Config holds the retriever settings.
type Config struct {
	Region          string
	KnowledgeBaseID string
	UseReranking    bool
	RerankModelID   string
	InitialResults  int
	TopNResults     int
}

// Retriever queries a Bedrock knowledge base and optionally reranks the
// results. Safe for concurrent use.
type Retriever struct {
	api    bedrockAPI
	cfg    Config
	logger log.Logger
}

// New creates a retriever backed by the real Bedrock agent-runtime client,
// resolving AWS credentials from the default chain.
func New(ctx context.Context, cfg Config, logger log.Logger) (*Retriever, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewWithAPI(bedrockagentruntime.NewFromConfig(awsCfg), cfg, logger), nil
}

// NewWithAPI creates a retriever over an explicit API implementation.
func NewWithAPI(api bedrockAPI, cfg Config, logger log.Logger) *Retriever {
	return &Retriever{api: api, cfg: cfg, logger: logger}
}

// Retrieve returns up to topK snippets relevant to the query, reranked when
// the retriever is configured for it. topK <= 0 uses the configured top-N.
// Fewer matches than requested is not an error; zero matches yields an empty
// slice.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]conversation.Snippet, error) {
	if topK <= 0 {
		topK = r.cfg.TopNResults
	}
	candidates := r.cfg.InitialResults
	if topK > candidates {
		candidates = topK
	}

	out, err := r.api.Retrieve(ctx, &bedrockagentruntime.RetrieveInput{
		KnowledgeBaseId: aws.String(r.cfg.KnowledgeBaseID),
		RetrievalQuery:  &types.KnowledgeBaseQuery{Text: aws.String(query)},
		RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
				NumberOfResults: aws.Int32(int32(candidates)),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge base retrieve: %w", err)
	}

	snippets := make([]conversation.Snippet, 0, len(out.RetrievalResults))
	for _, res := range out.RetrievalResults {
		s := conversation.Snippet{Metadata: map[string]any{}}
		if res.Content != nil && res.Content.Text != nil {
			s.Text = *res.Content.Text
		}
		if res.Score != nil {
			s.Score = *res.Score
		}
		for k, v := range res.Metadata {
			var val any
			if err := v.UnmarshalSmithyDocument(&val); err == nil {
				s.Metadata[k] = val
			}
		}
		snippets = append(snippets, s)
	}

	r.logger.Debug("retrieved candidates",
		"query_len", len(query),
		"candidates", len(snippets),
		"top_k", topK,
		"reranking", r.cfg.UseReranking)

	if !r.cfg.UseReranking {
		return topByScore(snippets, topK), nil
	}
	return r.rerank(ctx, query, snippets, topK)
}

// rerank rescores candidates with the configured reranking model and keeps
// the top N. The model is addressed by foundation-model ARN in the
// retriever's region.
func (r *Retriever) rerank(ctx context.Context, query string, candidates []conversation.Snippet, topK int) ([]conversation.Snippet, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	sources := make([]types.RerankSource, len(candidates))
	for i, s := range candidates {
		sources[i] = types.RerankSource{
			Type: types.RerankSourceTypeInline,
			InlineDocumentSource: &types.RerankDocument{
				Type:         types.RerankDocumentTypeText,
				TextDocument: &types.RerankTextDocument{Text: aws.String(s.Text)},
			},
		}
	}

	modelARN := fmt.Sprintf("arn:aws:bedrock:%s::foundation-model/%s", r.cfg.Region, r.cfg.RerankModelID)
	out, err := r.api.Rerank(ctx, &bedrockagentruntime.RerankInput{
		Queries: []types.RerankQuery{{
			Type:      types.RerankQueryContentTypeText,
			TextQuery: &types.RerankTextDocument{Text: aws.String(query)},
		}},
		Sources: sources,
		RerankingConfiguration: &types.RerankingConfiguration{
			Type: types.RerankingConfigurationTypeBedrockRerankingModel,
			BedrockRerankingConfiguration: &types.BedrockRerankingConfiguration{
				ModelConfiguration: &types.BedrockRerankingModelConfiguration{
					ModelArn: aws.String(modelARN),
				},
				NumberOfResults: aws.Int32(int32(topK)),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	reranked := make([]conversation.Snippet, 0, len(out.Results))
	for _, res := range out.Results {
		if res.Index == nil {
			continue
		}
		idx := int(*res.Index)
		if idx < 0 || idx >= len(candidates) {
			continue
		}
		s := candidates[idx]
		if res.RelevanceScore != nil {
			s.Score = float64(*res.RelevanceScore)
		}
		reranked = append(reranked, s)
	}
	if len(reranked) > topK {
		reranked = reranked[:topK]
	}
	return reranked, nil
}

// topByScore keeps the topK highest-scoring snippets, stable on ties so the
// knowledge base's own ordering breaks them.
func topByScore(snippets []conversation.Snippet, topK int) []conversation.Snippet {
	sort.SliceStable(snippets, func(i, j int) bool {
		return snippets[i].Score > snippets[j].Score
	})
	if len(snippets) > topK {
		snippets = snippets[:topK]
	}
	return snippets
}

// FilterByMetadata keeps the snippets whose metadata field equals value.
// Exact equality only; a snippet without the field never matches. A filter
// matching nothing returns an empty slice, which callers treat as a valid
// outcome rather than an error.
func FilterByMetadata(snippets []conversation.Snippet, field string, value any) []conversation.Snippet {
	filtered := make([]conversation.Snippet, 0, len(snippets))
	for _, s := range snippets {
		v, ok := s.Metadata[field]
		if ok && reflect.DeepEqual(v, value) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}
