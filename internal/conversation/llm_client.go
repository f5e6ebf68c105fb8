package conversation

import "context"

// Roles a chat message can carry. System messages are folded into the
// provider's system-prompt channel by each client.
const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn of a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage is the token accounting a provider reports for one call. The
// collaborator feeds it into the tokens metric.
type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// LLMRequest is a provider-neutral completion request. A negative
// Temperature means "provider default"; zero MaxTokens and TopP are
// omitted.
type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// LLMResponse carries the completion text and its token accounting.
type LLMResponse struct {
	Text  string
	Usage TokenUsage
}

// LLMClient is the transport behind the LLMCollaborator. Implementations:
// Bedrock (primary), Gemini (secondary), and the fallback chain combining
// them.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
