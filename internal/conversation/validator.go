package conversation

import (
	"strings"

	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// Constraints carries the deterministic facts a candidate utterance must
// not contradict.
type Constraints struct {
	Step InstructionStep
	// HoursKnown is true for inbound calls, where open/closed is frozen
	// at call start. Outbound calls carry no hours assertion.
	HoursKnown      bool
	IsBusinessHours bool
}

// closedIndicators are the terms that assert the clinic is closed.
var closedIndicators = []string{
	"closed", "after hours", "after-hours", "not open", "aren't open",
	"we're shut", "out of hours",
}

// closedAssertingSteps are the steps whose whole point is to state that
// the clinic is closed; their text must actually say so.
var closedAssertingSteps = map[InstructionStep]bool{
	StepGreetingClosed:         true,
	StepAppointmentAfterHours:  true,
	StepClinicalUrgentCallback: true,
	StepTransferCallback:       true,
	StepTransferDemote:         true,
}

// identitySteps must ask for name/birth details and must not re-introduce
// the agent.
var identitySteps = map[InstructionStep]bool{
	StepAskIdentity:          true,
	StepAckIntentAskIdentity: true,
	StepAskIdentityAgain:     true,
}

// bookingForbiddenSteps must never claim a confirmed booking.
var bookingForbiddenSteps = map[InstructionStep]bool{
	StepAppointmentAfterHours: true,
	StepAppointmentPending:    true,
	StepAppointmentOfferSlots: true,
	StepAppointmentRefusal:    true,
}

// ResponseValidator gates every collaborator utterance: on failure or a
// policy contradiction it substitutes the scripted fallback for the step.
// This is what keeps an unreliable generator safe to depend on: every
// business-critical fact is asserted by deterministic code, and wording
// that contradicts the fact is discarded.
type ResponseValidator struct {
	fallbacks *FallbackLibrary
	logger    *logging.Logger
}

// NewResponseValidator creates a validator backed by the scripted library.
func NewResponseValidator(fallbacks *FallbackLibrary, logger *logging.Logger) *ResponseValidator {
	if fallbacks == nil {
		fallbacks = NewFallbackLibrary(0)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ResponseValidator{fallbacks: fallbacks, logger: logger.Component("response-validator")}
}

// Validate returns the final utterance for a step and whether the
// scripted fallback was substituted for the candidate.
func (v *ResponseValidator) Validate(candidate string, genErr error, c Constraints, fields map[string]string) (string, bool) {
	if genErr != nil {
		v.logger.Warn("collaborator failed, using scripted fallback",
			"step", string(c.Step),
			"error", genErr.Error(),
		)
		return v.fallbacks.Utterance(c.Step, fields), true
	}

	if reason := v.violation(candidate, c); reason != "" {
		v.logger.Warn("generated text violated constraint, using scripted fallback",
			"step", string(c.Step),
			"reason", reason,
		)
		return v.fallbacks.Utterance(c.Step, fields), true
	}

	return candidate, false
}

// violation returns a non-empty reason when the candidate contradicts the
// constraints.
func (v *ResponseValidator) violation(candidate string, c Constraints) string {
	text := strings.ToLower(strings.TrimSpace(candidate))
	if text == "" {
		return "empty"
	}

	if c.HoursKnown {
		if c.IsBusinessHours && containsAnyIndicator(text, closedIndicators) {
			return "claims closed during business hours"
		}
		if !c.IsBusinessHours && closedAssertingSteps[c.Step] && !containsAnyIndicator(text, closedIndicators) {
			return "omits closed status after hours"
		}
	}

	if identitySteps[c.Step] {
		if !strings.Contains(text, "name") && !strings.Contains(text, "birth") {
			return "identity request missing name/birth"
		}
		if strings.Contains(text, "calling from") || strings.Contains(text, "my name is") {
			return "identity request re-introduces agent"
		}
	}

	if bookingForbiddenSteps[c.Step] {
		if strings.Contains(text, "is booked") || strings.Contains(text, "you're booked") ||
			strings.Contains(text, "booking is confirmed") || strings.Contains(text, "confirmed your appointment") {
			return "claims booking where only a note is permitted"
		}
	}

	if c.Step == StepAppointmentBooked {
		if !strings.Contains(text, "booked") && !strings.Contains(text, "confirmed") {
			return "booked confirmation missing booked/confirmed"
		}
	}

	return ""
}

func containsAnyIndicator(lowered string, indicators []string) bool {
	for _, ind := range indicators {
		if strings.Contains(lowered, ind) {
			return true
		}
	}
	return false
}
