package conversation

import "strings"

// intentKeywords maps each category to its trigger phrases. These lists
// are deployed configuration, not user data; emergencies are deliberately
// absent; they belong to the safety scanner alone.
var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentAppointment, []string{
		"appointment", "book", "booking", "schedule", "reschedule",
		"see a doctor", "see the doctor", "see dr", "come in", "check-up", "checkup",
		"visit", "consultation", "slot", "availability", "available",
	}},
	{IntentClinical, []string{
		"pain", "hurts", "hurting", "sick", "unwell", "fever", "rash",
		"symptom", "cough", "infection", "dizzy", "nauseous", "vomiting",
		"medication", "prescription", "refill", "script", "results",
		"test result", "blood test", "side effect", "swelling", "worse",
	}},
	{IntentAdmin, []string{
		"referral", "certificate", "medical certificate", "letter",
		"billing", "bill", "invoice", "payment", "records", "my file",
		"form", "paperwork", "fax", "insurance", "medicare", "update my details",
		"change my address", "opening hours", "message for",
	}},
	{IntentTransfer, []string{
		"transfer", "connect me", "front desk", "reception", "receptionist",
		"manager", "operator",
	}},
}

// ClassifyIntent maps a patient message to a category, or IntentUnclear.
// Deterministic keyword lookup; categories are checked in fixed order and
// the first hit wins.
func ClassifyIntent(message string) Intent {
	msg := strings.ToLower(message)
	if strings.TrimSpace(msg) == "" {
		return IntentUnclear
	}
	for _, cat := range intentKeywords {
		for _, kw := range cat.keywords {
			if strings.Contains(msg, kw) {
				return cat.intent
			}
		}
	}
	return IntentUnclear
}

// urgencyPhrases mark a clinical concern as urgent.
var urgencyPhrases = []string{
	"severe", "worst", "getting worse", "unbearable", "extreme",
	"excruciating", "spreading", "can't keep anything down",
	"can't stop", "blood", "high fever", "very high",
}

// isUrgentClinical reports whether a clinical message needs escalation
// rather than a routine callback.
func isUrgentClinical(message string) bool {
	return matchesAny(strings.ToLower(message), urgencyPhrases)
}

// closingPhrases end a flow when matched exactly. Deliberately
// conservative so a message that merely starts politely does not hang up
// the call.
var closingPhrases = []string{
	"no", "nope", "that's all", "that is all", "thats all", "that's it",
	"nothing else", "bye", "goodbye", "thanks", "thank you", "no thanks",
	"no thank you", "all good", "that's everything", "i'm done", "im done",
}

// closingVocab lets short combinations of closing words ("no thanks bye")
// count as done without opening the door to "no, I need...".
var closingVocab = map[string]bool{
	"no": true, "nope": true, "that's": true, "thats": true, "that": true,
	"is": true, "it": true, "all": true, "thanks": true, "thank": true,
	"you": true, "bye": true, "goodbye": true, "nothing": true, "else": true,
	"good": true, "ok": true, "okay": true, "i'm": true, "im": true, "done": true,
}

// isDone reports whether the patient signalled the call can end.
func isDone(message string) bool {
	msg := strings.ToLower(strings.TrimSpace(message))
	msg = strings.Trim(msg, ".!,?")
	if msg == "" {
		return false
	}
	for _, p := range closingPhrases {
		if msg == p {
			return true
		}
	}
	words := strings.Fields(msg)
	if len(words) > 4 {
		return false
	}
	for _, w := range words {
		if !closingVocab[strings.Trim(w, ".!,?")] {
			return false
		}
	}
	return true
}
