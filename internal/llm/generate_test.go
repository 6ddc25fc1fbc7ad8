package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/conversation"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
)

type fakeConverse struct {
	out  *bedrockruntime.ConverseOutput
	err  error
	last *bedrockruntime.ConverseInput
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.last = in
	return f.out, f.err
}

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{
				Role: types.ConversationRoleAssistant,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: text},
				},
			},
		},
	}
}

func testGenConfig() Config {
	return Config{
		Region:      "us-east-1",
		ModelID:     "anthropic.claude-3-sonnet-20240229-v1:0",
		Temperature: 0,
		MaxTokens:   3000,
		TopP:        0.9,
	}
}

func TestGenerateReturnsModelText(t *testing.T) {
	fake := &fakeConverse{out: textOutput("AWS Bedrock is a managed service. [Source 1]")}
	g := NewBedrockWithAPI(fake, testGenConfig(), log.NewNop())

	answer, err := g.Generate(t.Context(), Request{Query: "What is AWS Bedrock?"})
	require.NoError(t, err)
	assert.Equal(t, "AWS Bedrock is a managed service. [Source 1]", answer)

	require.NotNil(t, fake.last)
	assert.Equal(t, "anthropic.claude-3-sonnet-20240229-v1:0", *fake.last.ModelId)
	require.Len(t, fake.last.Messages, 1, "one assembled user message")
	assert.Equal(t, types.ConversationRoleUser, fake.last.Messages[0].Role)
}

func TestGenerateError(t *testing.T) {
	fake := &fakeConverse{err: errors.New("ThrottlingException")}
	g := NewBedrockWithAPI(fake, testGenConfig(), log.NewNop())

	_, err := g.Generate(t.Context(), Request{Query: "q"})
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestGenerateEmptyResponse(t *testing.T) {
	fake := &fakeConverse{out: textOutput("")}
	g := NewBedrockWithAPI(fake, testGenConfig(), log.NewNop())

	_, err := g.Generate(t.Context(), Request{Query: "q"})
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestRenderUserMessage(t *testing.T) {
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	req := Request{
		History: []conversation.Turn{
			{Role: conversation.RoleUser, Content: "hi", Timestamp: ts},
			{Role: conversation.RoleAssistant, Content: "hello", Timestamp: ts},
		},
		Snippets: []conversation.Snippet{
			{Text: "Bedrock is a managed service."},
			{Text: "It hosts foundation models."},
		},
		Query: "What is AWS Bedrock?",
	}

	msg := renderUserMessage(req)

	assert.Contains(t, msg, "user: hi")
	assert.Contains(t, msg, "assistant: hello")
	assert.Contains(t, msg, "[Source 1] Bedrock is a managed service.")
	assert.Contains(t, msg, "[Source 2] It hosts foundation models.")
	assert.True(t, strings.HasSuffix(msg, "Question: What is AWS Bedrock?"))

	// History precedes snippets, snippets precede the question.
	assert.Less(t, strings.Index(msg, "user: hi"), strings.Index(msg, "[Source 1]"))
	assert.Less(t, strings.Index(msg, "[Source 2]"), strings.Index(msg, "Question:"))
}

func TestRenderUserMessageNoDocuments(t *testing.T) {
	msg := renderUserMessage(Request{Query: "anything?"})
	assert.Contains(t, msg, "No documents were retrieved")
	assert.NotContains(t, msg, "Conversation so far")
}
