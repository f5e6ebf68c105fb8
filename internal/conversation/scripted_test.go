package conversation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySideEffectsHeuristic(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		wantHas    bool
		wantSevere bool
	}{
		{"none", "no, nothing unusual at all", false, false},
		{"plain no", "no", false, false},
		{"mild", "a bit of a headache sometimes", true, false},
		{"severe keyword", "severe stomach cramps", true, true},
		{"very dizzy fainted", "I've been very dizzy and almost fainted", true, true},
		{"dizzy nauseous compound", "I feel dizzy and nauseous after each dose", true, true},
		{"chest", "some tightness in my chest", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := ClassifySideEffectsHeuristic(tt.message)
			assert.Equal(t, tt.wantHas, report.HasSideEffects, "has_side_effects")
			assert.Equal(t, tt.wantSevere, report.SevereSideEffects, "severe_side_effects")
		})
	}
}

func TestClassifyAdherenceHeuristic(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		wantGood bool
		wantPoor bool
	}{
		{"good", "yes, I take it every day", true, false},
		{"good as prescribed", "yeah, as prescribed", true, false},
		{"missed days", "I've missed a couple of days here and there", false, true},
		{"stopped", "I stopped taking it last month", false, true},
		{"ambiguous", "it's been alright I suppose", false, false},
		{"affirmative without regularity", "yes", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := ClassifyAdherenceHeuristic(tt.message)
			assert.Equal(t, tt.wantGood, report.GoodAdherence, "good_adherence")
			assert.Equal(t, tt.wantPoor, report.PoorAdherence, "poor_adherence")
		})
	}
}

func TestClassifyReasonHeuristic(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"forgetting", "I just forget in the mornings", ReasonForgetting},
		{"side effects", "it makes me feel sick", ReasonSideEffects},
		{"ran out", "I ran out and haven't got to the pharmacy", ReasonRanOut},
		{"cost", "it's too expensive this month", ReasonCost},
		{"intentional", "I decided I feel fine without it", ReasonIntentional},
		{"other", "the bottle is hard to open", ReasonOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := ClassifyReasonHeuristic(tt.message)
			assert.Equal(t, tt.want, report.Reason)
			assert.NotEmpty(t, report.Detail)
		})
	}
}

func TestScriptedCollaboratorClassify(t *testing.T) {
	collab := NewScriptedCollaborator(NewFallbackLibrary(1))

	raw, err := collab.Classify(context.Background(), "I've been very dizzy and almost fainted", SchemaSideEffects)
	require.NoError(t, err)

	var report SideEffectReport
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.True(t, report.SevereSideEffects)

	_, err = collab.Classify(context.Background(), "anything", "no_such_schema")
	assert.Error(t, err)
}

func TestScriptedCollaboratorGenerateUsesLibrary(t *testing.T) {
	collab := NewScriptedCollaborator(NewFallbackLibrary(42))

	text, err := collab.Generate(context.Background(), StepGreetingOpen, map[string]string{
		"clinic": "Northside Family Clinic",
		"agent":  "Ava",
	})
	require.NoError(t, err)
	assert.Contains(t, text, "Northside Family Clinic")
	assert.Contains(t, text, "Ava")
}

func TestScriptedCollaboratorExtractIdentity(t *testing.T) {
	collab := NewScriptedCollaborator(NewFallbackLibrary(1))

	id, err := collab.ExtractIdentity(context.Background(), "My name is Jane Doe, date of birth 12/03/1985")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", id.Name)
	assert.Equal(t, "12/03/1985", id.DOB)
}
