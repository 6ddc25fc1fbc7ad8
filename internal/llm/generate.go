// Package llm wraps the language-generation step behind a small Generator
// contract. The production implementation calls AWS Bedrock through the
// Converse API; tests substitute fakes.
//
// Generation failure is fatal to a turn: partial answers are not meaningful,
// so there is no retry here. Callers check errors.Is(err, ErrGeneration) at
// the API boundary and never return a 2xx for a failed generation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/conversation"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
)

// ErrGeneration indicates the language-generation step failed (timeout,
// quota, malformed response).
var ErrGeneration = errors.New("generation failed")

// Request is one fully assembled generation input.
type Request struct {
	History  []conversation.Turn
	Snippets []conversation.Snippet
	Query    string
}

// Generator produces an answer for an assembled request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// converseAPI is the slice of the Bedrock runtime client the generator uses.
type converseAPI interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Config holds the generation model settings.
type Config struct {
	Region      string
	ModelID     string
	Temperature float32
	MaxTokens   int
	TopP        float32

	// Timeout bounds each Converse call. Zero means no bound beyond the
	// caller's context.
	Timeout time.Duration
}

// Bedrock generates answers with a Bedrock foundation model via Converse.
type Bedrock struct {
	api    converseAPI
	cfg    Config
	logger log.Logger
}

// NewBedrock creates a generator backed by the real Bedrock runtime client.
func NewBedrock(ctx context.Context, cfg Config, logger log.Logger) (*Bedrock, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewBedrockWithAPI(bedrockruntime.NewFromConfig(awsCfg), cfg, logger), nil
}

// NewBedrockWithAPI creates a generator over an explicit API implementation.
func NewBedrockWithAPI(api converseAPI, cfg Config, logger log.Logger) *Bedrock {
	return &Bedrock{api: api, cfg: cfg, logger: logger}
}

// Generate runs one Converse call with the assembled prompt and returns the
// model's text. Any failure, including an empty or non-text response, wraps
// ErrGeneration.
func (b *Bedrock) Generate(ctx context.Context, req Request) (string, error) {
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	out, err := b.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.cfg.ModelID),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: systemPrompt},
		},
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: renderUserMessage(req)},
			},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(b.cfg.MaxTokens)),
			Temperature: aws.Float32(b.cfg.Temperature),
			TopP:        aws.Float32(b.cfg.TopP),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: converse: %v", ErrGeneration, err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("%w: unexpected output type %T", ErrGeneration, out.Output)
	}

	var text strings.Builder
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			text.WriteString(tb.Value)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("%w: model returned no text", ErrGeneration)
	}

	b.logger.Debug("generated answer",
		"model", b.cfg.ModelID,
		"stop_reason", out.StopReason,
		"answer_len", text.Len())
	return text.String(), nil
}
