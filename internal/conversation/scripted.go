package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ScriptedCollaborator is the deterministic collaborator: scripted
// phrasing variants and keyword classification, no model behind it. The
// engines run unchanged against it, which is also what makes the state
// machines testable without network access.
type ScriptedCollaborator struct {
	lib *FallbackLibrary
}

// NewScriptedCollaborator creates a scripted collaborator over the given
// fallback library.
func NewScriptedCollaborator(lib *FallbackLibrary) *ScriptedCollaborator {
	if lib == nil {
		lib = NewFallbackLibrary(0)
	}
	return &ScriptedCollaborator{lib: lib}
}

func (s *ScriptedCollaborator) Generate(_ context.Context, step InstructionStep, fields map[string]string) (string, error) {
	return s.lib.Utterance(step, fields), nil
}

func (s *ScriptedCollaborator) Classify(_ context.Context, message, schema string) (json.RawMessage, error) {
	var result any
	switch schema {
	case SchemaSideEffects:
		result = ClassifySideEffectsHeuristic(message)
	case SchemaAdherence:
		result = ClassifyAdherenceHeuristic(message)
	case SchemaReason:
		result = ClassifyReasonHeuristic(message)
	default:
		return nil, fmt.Errorf("conversation: unknown classification schema %q", schema)
	}
	return json.Marshal(result)
}

func (s *ScriptedCollaborator) ExtractIdentity(_ context.Context, message string) (Identity, error) {
	return ExtractIdentityHeuristic(message), nil
}

// ---------- keyword heuristics ----------
//
// These back the scripted collaborator and are also the engines' recovery
// path when a generative classification comes back malformed.

var severeSideEffectKeywords = []string{
	"very", "severe", "faint", "chest", "breathing",
}

var sideEffectKeywords = []string{
	"dizzy", "nauseous", "nausea", "headache", "tired", "drowsy", "rash",
	"upset stomach", "stomach", "side effect", "sick", "itchy", "faint",
}

// ClassifySideEffectsHeuristic applies the side-effect keyword rules. The
// dizzy+nauseous compound counts as severe.
func ClassifySideEffectsHeuristic(message string) SideEffectReport {
	msg := strings.ToLower(message)

	report := SideEffectReport{
		HasSideEffects: matchesAny(msg, sideEffectKeywords),
	}
	if matchesAny(msg, severeSideEffectKeywords) {
		report.HasSideEffects = true
		report.SevereSideEffects = true
	}
	if strings.Contains(msg, "dizzy") && strings.Contains(msg, "nauseous") {
		report.SevereSideEffects = true
	}
	// Plain denials carry no side effects even when phrased with "very".
	if !report.SevereSideEffects && isDenial(msg) {
		report.HasSideEffects = false
	}
	return report
}

var adherencePoorKeywords = []string{
	"missed", "forgot", "skipped", "haven't been taking", "havent been taking",
	"stopped taking", "not taking",
}

var adherenceAffirmatives = []string{
	"yes", "yeah", "yep", "always", "definitely", "absolutely", "of course",
}

var adherenceRegularity = []string{
	"every day", "everyday", "daily", "as prescribed", "every morning",
	"every night", "regularly", "on schedule", "without fail", "most days",
}

// ClassifyAdherenceHeuristic applies the adherence keyword rules: poor on
// a miss/skip word, good only with both an affirmative and a regularity
// token.
func ClassifyAdherenceHeuristic(message string) AdherenceReport {
	msg := strings.ToLower(message)

	if matchesAny(msg, adherencePoorKeywords) {
		return AdherenceReport{PoorAdherence: true}
	}
	if matchesAny(msg, adherenceAffirmatives) && matchesAny(msg, adherenceRegularity) {
		return AdherenceReport{GoodAdherence: true}
	}
	return AdherenceReport{}
}

// Reason taxonomy values.
const (
	ReasonForgetting  = "forgetting"
	ReasonSideEffects = "side_effects"
	ReasonRanOut      = "ran_out"
	ReasonCost        = "cost"
	ReasonIntentional = "intentional"
	ReasonOther       = "other"
)

var reasonKeywords = []struct {
	reason   string
	keywords []string
}{
	{ReasonForgetting, []string{"forget", "forgot", "remember", "slipped my mind", "busy"}},
	{ReasonSideEffects, []string{"side effect", "makes me", "made me", "feel sick", "feel awful", "dizzy", "nauseous"}},
	{ReasonRanOut, []string{"ran out", "run out", "refill", "pharmacy", "no more left", "finished the"}},
	{ReasonCost, []string{"expensive", "afford", "cost", "money", "price"}},
	{ReasonIntentional, []string{"stopped", "don't need", "dont need", "decided", "don't think i need", "feel fine without"}},
}

// ClassifyReasonHeuristic maps a non-adherence explanation onto the fixed
// taxonomy, keeping the message as free-text detail.
func ClassifyReasonHeuristic(message string) ReasonReport {
	msg := strings.ToLower(message)
	for _, cat := range reasonKeywords {
		if matchesAny(msg, cat.keywords) {
			return ReasonReport{Reason: cat.reason, Detail: strings.TrimSpace(message)}
		}
	}
	return ReasonReport{Reason: ReasonOther, Detail: strings.TrimSpace(message)}
}

func isDenial(lowered string) bool {
	denials := []string{"no side effects", "nothing unusual", "no, ", "nope", "not really", "none", "all good", "feeling fine", "no problems"}
	trimmed := strings.TrimSpace(lowered)
	if trimmed == "no" {
		return true
	}
	return matchesAny(trimmed, denials)
}
