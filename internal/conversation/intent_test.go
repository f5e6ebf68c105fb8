package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    Intent
	}{
		{"book appointment", "I'd like to book an appointment", IntentAppointment},
		{"reschedule", "can I reschedule my visit on Friday", IntentAppointment},
		{"availability", "what availability does the clinic have", IntentAppointment},
		{"symptoms", "I've had a fever and a cough for three days", IntentClinical},
		{"prescription", "I need a refill on my prescription", IntentClinical},
		{"test results", "are my blood test results back", IntentClinical},
		{"referral", "I need a referral to a specialist", IntentAdmin},
		{"billing", "there's a mistake on my invoice", IntentAdmin},
		{"medical certificate", "could I get a medical certificate for work", IntentAdmin},
		{"reception", "give me reception please", IntentTransfer},
		{"gibberish", "purple elephant sandwiches", IntentUnclear},
		{"empty", "", IntentUnclear},
		{"whitespace", "   ", IntentUnclear},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyIntent(tt.message))
		})
	}
}

func TestClassifyIntentFirstCategoryWins(t *testing.T) {
	// "book" hits appointment before "pain" can hit clinical; category
	// order is fixed, so classification is stable.
	assert.Equal(t, IntentAppointment, ClassifyIntent("I want to book because of the pain"))
}

func TestClassifyIntentDeterministic(t *testing.T) {
	msg := "appointment for my rash and a billing question"
	first := ClassifyIntent(msg)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ClassifyIntent(msg))
	}
}

func TestIsUrgentClinical(t *testing.T) {
	assert.True(t, isUrgentClinical("the pain is severe and getting worse"))
	assert.True(t, isUrgentClinical("there's blood when I cough"))
	assert.False(t, isUrgentClinical("a mild headache on and off"))
}

func TestIsDone(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    bool
	}{
		{"plain no", "no", true},
		{"no thanks", "no thanks", true},
		{"thats all", "that's all", true},
		{"nothing else", "nothing else", true},
		{"punctuated", "No, thanks!", true},
		{"short combination", "no thanks bye", true},
		{"negative with content", "no, I need an appointment", false},
		{"question", "what are your opening hours", false},
		{"empty", "", false},
		{"long polite sentence", "thank you so much for all of your help today", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isDone(tt.message))
		})
	}
}
