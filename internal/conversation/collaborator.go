package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-voice-agent/internal/observability/metrics"
)

// Identity is the result of an identity-extraction collaborator call.
type Identity struct {
	Name string `json:"name"`
	DOB  string `json:"dob"`
}

// Complete reports whether both fields were extracted.
func (id Identity) Complete() bool {
	return strings.TrimSpace(id.Name) != "" && strings.TrimSpace(id.DOB) != ""
}

// Classification schemas. The schema names the output contract the engine
// expects back; malformed output routes the engine to keyword heuristics.
const (
	SchemaSideEffects = "side_effects"
	SchemaAdherence   = "adherence"
	SchemaReason      = "nonadherence_reason"
)

// SideEffectReport is the defined output contract for SchemaSideEffects.
type SideEffectReport struct {
	HasSideEffects    bool `json:"has_side_effects"`
	SevereSideEffects bool `json:"severe_side_effects"`
}

// AdherenceReport is the defined output contract for SchemaAdherence.
type AdherenceReport struct {
	GoodAdherence bool `json:"good_adherence"`
	PoorAdherence bool `json:"poor_adherence"`
}

// ReasonReport is the defined output contract for SchemaReason. Reason is
// one of: forgetting, side_effects, ran_out, cost, intentional, other.
type ReasonReport struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Collaborator is the generative text engine as the conversation engines
// see it: it supplies surface wording and soft classification, and is
// never trusted with a business-critical fact. Every call may fail; the
// caller substitutes deterministic logic, it does not retry.
type Collaborator interface {
	// Generate produces candidate spoken text for one instruction step.
	// The returned text still has to pass the ResponseValidator.
	Generate(ctx context.Context, step InstructionStep, fields map[string]string) (string, error)
	// Classify analyzes a patient message against a named schema and
	// returns raw JSON for the engine to decode and validate.
	Classify(ctx context.Context, message, schema string) (json.RawMessage, error)
	// ExtractIdentity pulls a patient name and date of birth out of a
	// message. Missing fields come back empty, not as an error.
	ExtractIdentity(ctx context.Context, message string) (Identity, error)
}

// classifySchemas maps schema names to the prompt fragment describing the
// required JSON shape.
var classifySchemas = map[string]string{
	SchemaSideEffects: `{"has_side_effects": <bool>, "severe_side_effects": <bool>} — severe means symptoms needing same-day clinical review (fainting, chest symptoms, breathing trouble).`,
	SchemaAdherence:   `{"good_adherence": <bool>, "poor_adherence": <bool>} — good means taking the medication as prescribed; poor means doses are being missed or skipped.`,
	SchemaReason:      `{"reason": "forgetting"|"side_effects"|"ran_out"|"cost"|"intentional"|"other", "detail": "<short free text>"}`,
}

// LLMCollaborator implements Collaborator over an LLMClient.
type LLMCollaborator struct {
	client  LLMClient
	model   string
	timeout time.Duration
	metrics *metrics.ConversationMetrics
}

// NewLLMCollaborator wires a Collaborator on top of an LLM transport.
// timeout bounds each call; zero means no bound beyond the caller's ctx.
// Metrics may be nil.
func NewLLMCollaborator(client LLMClient, model string, timeout time.Duration, m *metrics.ConversationMetrics) *LLMCollaborator {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	return &LLMCollaborator{client: client, model: model, timeout: timeout, metrics: m}
}

const collaboratorSystemPrompt = `You are the voice of a medical clinic's phone agent. You produce ONLY the next spoken sentence or two, natural and brief, suitable for text-to-speech. You never give medical advice, never invent facts about the clinic, and never mention being an AI. State only what the instruction tells you to state.`

func (c *LLMCollaborator) Generate(ctx context.Context, step InstructionStep, fields map[string]string) (string, error) {
	instruction, ok := stepInstructions[step]
	if !ok {
		return "", fmt.Errorf("conversation: unknown instruction step %q", step)
	}

	var sb strings.Builder
	sb.WriteString(instruction)
	if len(fields) > 0 {
		sb.WriteString("\n\nContext:\n")
		for k, v := range fields {
			fmt.Fprintf(&sb, "- %s: %s\n", k, v)
		}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.Complete(ctx, LLMRequest{
		Model:       c.model,
		System:      []string{collaboratorSystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: sb.String()}},
		MaxTokens:   200,
		Temperature: 0.4,
	})
	if err != nil {
		return "", err
	}
	c.metrics.ObserveTokens("generate", resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return strings.TrimSpace(resp.Text), nil
}

func (c *LLMCollaborator) Classify(ctx context.Context, message, schema string) (json.RawMessage, error) {
	shape, ok := classifySchemas[schema]
	if !ok {
		return nil, fmt.Errorf("conversation: unknown classification schema %q", schema)
	}

	prompt := fmt.Sprintf("Classify this patient statement. Respond with JSON only, exactly this shape:\n%s\n\nStatement: %s", shape, message)

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.Complete(ctx, LLMRequest{
		Model:     c.model,
		Messages:  []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
		MaxTokens: 100,
		// Deterministic contract output, not prose.
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}
	c.metrics.ObserveTokens("classify", resp.Usage.InputTokens, resp.Usage.OutputTokens)

	raw := extractJSON(resp.Text)
	if raw == "" {
		return nil, errors.New("conversation: classification response contained no JSON")
	}
	return json.RawMessage(raw), nil
}

func (c *LLMCollaborator) ExtractIdentity(ctx context.Context, message string) (Identity, error) {
	prompt := fmt.Sprintf(`Extract the caller's full name and date of birth from this message. Respond with JSON only: {"name": "<full name or empty>", "dob": "<date as spoken or empty>"}.

Message: %s`, message)

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.Complete(ctx, LLMRequest{
		Model:       c.model,
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
		MaxTokens:   100,
		Temperature: 0,
	})
	if err != nil {
		return Identity{}, err
	}
	c.metrics.ObserveTokens("extract_identity", resp.Usage.InputTokens, resp.Usage.OutputTokens)

	raw := extractJSON(resp.Text)
	if raw == "" {
		return Identity{}, errors.New("conversation: identity response contained no JSON")
	}

	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return Identity{}, fmt.Errorf("conversation: identity response parse: %w", err)
	}
	id.Name = strings.TrimSpace(id.Name)
	id.DOB = strings.TrimSpace(id.DOB)
	return id, nil
}

func (c *LLMCollaborator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// extractJSON pulls the first {...} block out of a model response, which
// may wrap the JSON in extra prose.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	startIdx := strings.Index(content, "{")
	endIdx := strings.LastIndex(content, "}")
	if startIdx >= 0 && endIdx > startIdx {
		return content[startIdx : endIdx+1]
	}
	return ""
}
