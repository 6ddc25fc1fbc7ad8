package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/conversation"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
)

// fakeBedrock scripts Retrieve and Rerank responses and records inputs.
type fakeBedrock struct {
	retrieveOut *bedrockagentruntime.RetrieveOutput
	retrieveErr error
	rerankOut   *bedrockagentruntime.RerankOutput
	rerankErr   error

	lastRetrieve *bedrockagentruntime.RetrieveInput
	lastRerank   *bedrockagentruntime.RerankInput
}

func (f *fakeBedrock) Retrieve(_ context.Context, in *bedrockagentruntime.RetrieveInput, _ ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error) {
	f.lastRetrieve = in
	return f.retrieveOut, f.retrieveErr
}

func (f *fakeBedrock) Rerank(_ context.Context, in *bedrockagentruntime.RerankInput, _ ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RerankOutput, error) {
	f.lastRerank = in
	return f.rerankOut, f.rerankErr
}

func kbResult(text string, score float64, meta map[string]any) types.KnowledgeBaseRetrievalResult {
	res := types.KnowledgeBaseRetrievalResult{
		Content: &types.RetrievalResultContent{Text: aws.String(text)},
		Score:   aws.Float64(score),
	}
	if meta != nil {
		res.Metadata = map[string]document.Interface{}
		for k, v := range meta {
			res.Metadata[k] = document.NewLazyDocument(v)
		}
	}
	return res
}

func testConfig(rerank bool) Config {
	return Config{
		Region:          "us-east-1",
		KnowledgeBaseID: "KB12345",
		UseReranking:    rerank,
		RerankModelID:   "amazon.rerank-v1:0",
		InitialResults:  5,
		TopNResults:     3,
	}
}

func TestRetrieveWithoutReranking(t *testing.T) {
	fake := &fakeBedrock{
		retrieveOut: &bedrockagentruntime.RetrieveOutput{
			RetrievalResults: []types.KnowledgeBaseRetrievalResult{
				kbResult("low", 0.2, nil),
				kbResult("high", 0.9, map[string]any{"source": "s3://docs/a.pdf"}),
				kbResult("mid", 0.5, nil),
				kbResult("lowest", 0.1, nil),
			},
		},
	}
	r := NewWithAPI(fake, testConfig(false), log.NewNop())

	got, err := r.Retrieve(t.Context(), "what is tmap", 0)
	require.NoError(t, err)
	require.Len(t, got, 3, "keeps configured top N")

	assert.Equal(t, "high", got[0].Text)
	assert.Equal(t, "mid", got[1].Text)
	assert.Equal(t, "low", got[2].Text)
	assert.Equal(t, "s3://docs/a.pdf", got[0].Metadata["source"])

	require.NotNil(t, fake.lastRetrieve)
	assert.Equal(t, "KB12345", *fake.lastRetrieve.KnowledgeBaseId)
	assert.Equal(t, int32(5), *fake.lastRetrieve.RetrievalConfiguration.VectorSearchConfiguration.NumberOfResults)
	assert.Nil(t, fake.lastRerank, "rerank not called when disabled")
}

func TestRetrieveWithReranking(t *testing.T) {
	fake := &fakeBedrock{
		retrieveOut: &bedrockagentruntime.RetrieveOutput{
			RetrievalResults: []types.KnowledgeBaseRetrievalResult{
				kbResult("first", 0.9, nil),
				kbResult("second", 0.8, nil),
				kbResult("third", 0.7, nil),
			},
		},
		// The reranker flips the order: the vector-relevance loser wins.
		rerankOut: &bedrockagentruntime.RerankOutput{
			Results: []types.RerankResult{
				{Index: aws.Int32(2), RelevanceScore: aws.Float32(0.99)},
				{Index: aws.Int32(0), RelevanceScore: aws.Float32(0.42)},
			},
		},
	}
	r := NewWithAPI(fake, testConfig(true), log.NewNop())

	got, err := r.Retrieve(t.Context(), "query", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "third", got[0].Text)
	assert.InDelta(t, 0.99, got[0].Score, 1e-6)
	assert.Equal(t, "first", got[1].Text)

	require.NotNil(t, fake.lastRerank)
	require.Len(t, fake.lastRerank.Sources, 3, "all candidates go to the reranker")
	arn := *fake.lastRerank.RerankingConfiguration.BedrockRerankingConfiguration.ModelConfiguration.ModelArn
	assert.Equal(t, "arn:aws:bedrock:us-east-1::foundation-model/amazon.rerank-v1:0", arn)
}

func TestRetrieveFewerThanRequested(t *testing.T) {
	fake := &fakeBedrock{
		retrieveOut: &bedrockagentruntime.RetrieveOutput{
			RetrievalResults: []types.KnowledgeBaseRetrievalResult{kbResult("only", 0.4, nil)},
		},
	}
	r := NewWithAPI(fake, testConfig(false), log.NewNop())

	got, err := r.Retrieve(t.Context(), "query", 3)
	require.NoError(t, err)
	assert.Len(t, got, 1, "fewer matches than requested is not an error")
}

func TestRetrieveEmptyResult(t *testing.T) {
	fake := &fakeBedrock{retrieveOut: &bedrockagentruntime.RetrieveOutput{}}
	r := NewWithAPI(fake, testConfig(true), log.NewNop())

	got, err := r.Retrieve(t.Context(), "query", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Nil(t, fake.lastRerank, "nothing to rerank")
}

func TestRetrieveError(t *testing.T) {
	fake := &fakeBedrock{retrieveErr: errors.New("throttled")}
	r := NewWithAPI(fake, testConfig(false), log.NewNop())

	_, err := r.Retrieve(t.Context(), "query", 3)
	require.Error(t, err)
	assert.ErrorContains(t, err, "knowledge base retrieve")
}

func TestFilterByMetadata(t *testing.T) {
	snippets := []conversation.Snippet{
		{Text: "a", Metadata: map[string]any{"source": "manual", "page": float64(3)}},
		{Text: "b", Metadata: map[string]any{"source": "faq"}},
		{Text: "c", Metadata: map[string]any{"source": "manual"}},
		{Text: "d", Metadata: map[string]any{}},
	}

	tests := []struct {
		name  string
		field string
		value any
		want  []string
	}{
		{name: "string match", field: "source", value: "manual", want: []string{"a", "c"}},
		{name: "numeric match", field: "page", value: float64(3), want: []string{"a"}},
		{name: "no match is empty not error", field: "source", value: "missing", want: []string{}},
		{name: "absent field never matches", field: "author", value: "x", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterByMetadata(snippets, tt.field, tt.value)
			texts := make([]string, 0, len(got))
			for _, s := range got {
				texts = append(texts, s.Text)
			}
			assert.Equal(t, tt.want, texts)
		})
	}
}
