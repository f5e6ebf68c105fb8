package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-voice-agent/internal/observability/metrics"
)

// stubLLMClient returns canned responses and records the last request.
type stubLLMClient struct {
	response LLMResponse
	err      error
	lastReq  LLMRequest
	calls    int
}

func (s *stubLLMClient) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.lastReq = req
	s.calls++
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	return s.response, nil
}

func TestLLMCollaboratorGenerate(t *testing.T) {
	stub := &stubLLMClient{response: LLMResponse{Text: "  Thanks for calling, how can I help?  "}}
	c := NewLLMCollaborator(stub, "model-x", 0, nil)

	text, err := c.Generate(context.Background(), StepGreetingOpen, map[string]string{"clinic": "Northside"})
	require.NoError(t, err)
	assert.Equal(t, "Thanks for calling, how can I help?", text)

	assert.Equal(t, "model-x", stub.lastReq.Model)
	require.Len(t, stub.lastReq.System, 1)
	require.Len(t, stub.lastReq.Messages, 1)
	assert.Contains(t, stub.lastReq.Messages[0].Content, "Northside")
}

func TestLLMCollaboratorGenerateUnknownStep(t *testing.T) {
	c := NewLLMCollaborator(&stubLLMClient{}, "model-x", 0, nil)

	_, err := c.Generate(context.Background(), InstructionStep("bogus"), nil)
	assert.Error(t, err)
}

func TestLLMCollaboratorGeneratePropagatesError(t *testing.T) {
	stub := &stubLLMClient{err: errors.New("throttled")}
	c := NewLLMCollaborator(stub, "model-x", 0, nil)

	_, err := c.Generate(context.Background(), StepGreetingOpen, nil)
	assert.Error(t, err)
}

func TestLLMCollaboratorClassifyExtractsJSON(t *testing.T) {
	stub := &stubLLMClient{response: LLMResponse{
		Text: "Here you go: {\"has_side_effects\": true, \"severe_side_effects\": false} hope that helps!",
	}}
	c := NewLLMCollaborator(stub, "model-x", 0, nil)

	raw, err := c.Classify(context.Background(), "a bit of a headache", SchemaSideEffects)
	require.NoError(t, err)

	var report SideEffectReport
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.True(t, report.HasSideEffects)
	assert.False(t, report.SevereSideEffects)

	// Classification runs at temperature zero.
	assert.Zero(t, stub.lastReq.Temperature)
}

func TestLLMCollaboratorClassifyNoJSON(t *testing.T) {
	stub := &stubLLMClient{response: LLMResponse{Text: "I cannot classify that."}}
	c := NewLLMCollaborator(stub, "model-x", 0, nil)

	_, err := c.Classify(context.Background(), "whatever", SchemaAdherence)
	assert.Error(t, err)
}

func TestLLMCollaboratorClassifyUnknownSchema(t *testing.T) {
	stub := &stubLLMClient{}
	c := NewLLMCollaborator(stub, "model-x", 0, nil)

	_, err := c.Classify(context.Background(), "whatever", "no_such_schema")
	assert.Error(t, err)
	assert.Zero(t, stub.calls)
}

func TestLLMCollaboratorExtractIdentity(t *testing.T) {
	stub := &stubLLMClient{response: LLMResponse{
		Text: `{"name": " Jane Doe ", "dob": "12/03/1985"}`,
	}}
	c := NewLLMCollaborator(stub, "model-x", 0, nil)

	id, err := c.ExtractIdentity(context.Background(), "this is Jane Doe, 12/03/1985")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", id.Name)
	assert.Equal(t, "12/03/1985", id.DOB)
}

func TestLLMCollaboratorExtractIdentityMalformed(t *testing.T) {
	stub := &stubLLMClient{response: LLMResponse{Text: `{"name": `}}
	c := NewLLMCollaborator(stub, "model-x", 0, nil)

	_, err := c.ExtractIdentity(context.Background(), "hello")
	assert.Error(t, err)
}

func TestLLMCollaboratorRecordsTokenUsage(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewConversationMetrics(reg)
	stub := &stubLLMClient{response: LLMResponse{
		Text:  "Thanks for calling.",
		Usage: TokenUsage{InputTokens: 12, OutputTokens: 7, TotalTokens: 19},
	}}
	c := NewLLMCollaborator(stub, "model-x", 0, m)

	_, err := c.Generate(context.Background(), StepGreetingOpen, nil)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != "clinicvoice_conversation_collaborator_tokens_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(19), total)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"wrapped", "sure: {\"a\":1}. done", `{"a":1}`},
		{"nested", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
		{"none", "no json here", ""},
		{"only close", "} oops", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}

func TestFallbackLLMClientUsesSecondary(t *testing.T) {
	primary := &stubLLMClient{err: errors.New("primary down")}
	secondary := &stubLLMClient{response: LLMResponse{Text: "from secondary"}}
	c := NewFallbackLLMClient(primary, secondary, nil)

	resp, err := c.Complete(context.Background(), LLMRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "from secondary", resp.Text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestFallbackLLMClientNoSecondary(t *testing.T) {
	primary := &stubLLMClient{err: errors.New("primary down")}
	c := NewFallbackLLMClient(primary, nil, nil)

	_, err := c.Complete(context.Background(), LLMRequest{})
	assert.Error(t, err)
}

func TestFallbackLLMClientBothFail(t *testing.T) {
	primary := &stubLLMClient{err: errors.New("primary down")}
	secondary := &stubLLMClient{err: errors.New("secondary down")}
	c := NewFallbackLLMClient(primary, secondary, nil)

	_, err := c.Complete(context.Background(), LLMRequest{})
	assert.Error(t, err)
	assert.Equal(t, 1, secondary.calls)
}
