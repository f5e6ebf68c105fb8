package conversation

import (
	"strings"

	"github.com/wolfman30/clinic-voice-agent/internal/clinic"
)

// ScanResult is the outcome of one safety scan.
type ScanResult struct {
	Emergency         bool
	TransferRequested bool
}

// builtinEmergencyPhrases is the baseline emergency lexicon. Clinic config
// extends it, never replaces it.
var builtinEmergencyPhrases = []string{
	"chest pain",
	"chest tightness",
	"can't breathe",
	"cannot breathe",
	"can not breathe",
	"difficulty breathing",
	"trouble breathing",
	"struggling to breathe",
	"not breathing",
	"suicidal",
	"suicide",
	"kill myself",
	"end my life",
	"unconscious",
	"passed out",
	"won't wake up",
	"severe bleeding",
	"bleeding heavily",
	"bleeding a lot",
	"overdose",
	"overdosed",
	"emergency",
	"000",
	"ambulance",
}

// builtinTransferPhrases detect a request for a human. Checked after the
// emergency lexicon; emergency wins when both match.
var builtinTransferPhrases = []string{
	"speak to a person",
	"talk to a person",
	"speak to someone",
	"talk to someone",
	"speak to a human",
	"talk to a human",
	"real person",
	"speak to the doctor",
	"talk to the doctor",
	"speak to a doctor",
	"speak with a doctor",
	"speak with the doctor",
	"talk to a doctor",
	"transfer me",
	"put me through",
	"speak to reception",
	"speak to staff",
}

// Scan checks a patient message for emergency phrases and transfer
// requests. It runs on every inbound turn regardless of the current state,
// before any state-specific logic; the conversation never rests in
// SAFETY_SCAN. Pure function over message + config.
func Scan(message string, cfg *clinic.Config) ScanResult {
	msg := strings.ToLower(message)

	var result ScanResult
	if matchesAny(msg, builtinEmergencyPhrases) {
		result.Emergency = true
	} else if cfg != nil && matchesAny(msg, cfg.EmergencyKeywords) {
		result.Emergency = true
	}

	if matchesAny(msg, builtinTransferPhrases) {
		result.TransferRequested = true
	} else if cfg != nil && matchesAny(msg, cfg.EscalationKeywords) {
		result.TransferRequested = true
	}

	return result
}

func matchesAny(lowered string, phrases []string) bool {
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}
