package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConverseAPI struct {
	out    *bedrockruntime.ConverseOutput
	err    error
	lastIn *bedrockruntime.ConverseInput
}

func (m *mockConverseAPI) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.lastIn = params
	return m.out, m.err
}

func converseTextOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: text},
				},
			},
		},
		StopReason: brtypes.StopReasonEndTurn,
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(12),
			OutputTokens: aws.Int32(8),
			TotalTokens:  aws.Int32(20),
		},
	}
}

func TestBedrockCompleteMapsRequestAndResponse(t *testing.T) {
	api := &mockConverseAPI{out: converseTextOutput("  Hello there.  ")}
	client := NewBedrockLLMClient(api)

	resp, err := client.Complete(context.Background(), LLMRequest{
		Model:       "anthropic.claude-3-haiku",
		System:      []string{"you are a phone agent"},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "hi"}},
		MaxTokens:   200,
		Temperature: 0.4,
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello there.", resp.Text)
	assert.Equal(t, int32(12), resp.Usage.InputTokens)
	assert.Equal(t, int32(8), resp.Usage.OutputTokens)
	assert.Equal(t, int32(20), resp.Usage.TotalTokens)

	require.NotNil(t, api.lastIn)
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(api.lastIn.ModelId))
	require.Len(t, api.lastIn.System, 1)
	require.Len(t, api.lastIn.Messages, 1)
	require.NotNil(t, api.lastIn.InferenceConfig)
	assert.Equal(t, int32(200), aws.ToInt32(api.lastIn.InferenceConfig.MaxTokens))
}

func TestBedrockCompleteRequiresModel(t *testing.T) {
	client := NewBedrockLLMClient(&mockConverseAPI{})

	_, err := client.Complete(context.Background(), LLMRequest{
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}},
	})
	assert.Error(t, err)
}

func TestBedrockCompleteSystemRoleMessagesBecomeSystemBlocks(t *testing.T) {
	api := &mockConverseAPI{out: converseTextOutput("ok")}
	client := NewBedrockLLMClient(api)

	_, err := client.Complete(context.Background(), LLMRequest{
		Model: "m",
		Messages: []ChatMessage{
			{Role: ChatRoleSystem, Content: "be brief"},
			{Role: ChatRoleUser, Content: "hi"},
		},
	})
	require.NoError(t, err)

	assert.Len(t, api.lastIn.System, 1)
	assert.Len(t, api.lastIn.Messages, 1)
}

func TestBedrockCompleteRejectsUnknownRole(t *testing.T) {
	client := NewBedrockLLMClient(&mockConverseAPI{out: converseTextOutput("ok")})

	_, err := client.Complete(context.Background(), LLMRequest{
		Model:    "m",
		Messages: []ChatMessage{{Role: "tool", Content: "x"}},
	})
	assert.Error(t, err)
}

func TestBedrockCompletePropagatesAPIError(t *testing.T) {
	client := NewBedrockLLMClient(&mockConverseAPI{err: errors.New("throttled")})

	_, err := client.Complete(context.Background(), LLMRequest{
		Model:    "m",
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}},
	})
	assert.Error(t, err)
}

func TestBedrockExtractOutputTextErrors(t *testing.T) {
	_, err := bedrockExtractOutputText(nil)
	assert.Error(t, err)

	_, err = bedrockExtractOutputText(&bedrockruntime.ConverseOutput{})
	assert.Error(t, err)

	_, err = bedrockExtractOutputText(&bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{}},
	})
	assert.Error(t, err)
}
