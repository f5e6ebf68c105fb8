// Package conversation implements the call-handling engines: a state
// machine for inbound patient calls and one for outbound medication
// follow-ups, with deterministic safety and policy rules layered over a
// generative text collaborator.
package conversation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrConversationComplete is returned when a message arrives for a
// conversation that already reached a terminal outcome. Completed state
// is immutable; the caller gets the error, not a mutated copy.
var ErrConversationComplete = errors.New("conversation: conversation is complete")

// State identifies where a conversation is in its flow.
type State string

// Inbound states.
const (
	StateGreeting        State = "GREETING"
	StateSafetyScan      State = "SAFETY_SCAN"
	StateIdentify        State = "IDENTIFY"
	StateTriage          State = "TRIAGE"
	StateAppointmentFlow State = "APPOINTMENT_FLOW"
	StateClinicalFlow    State = "CLINICAL_FLOW"
	StateMessageFlow     State = "MESSAGE_FLOW"
	StateTransferFlow    State = "TRANSFER_FLOW"
	StateEmergencyExit   State = "EMERGENCY_EXIT"
	StateSuccessExit     State = "SUCCESS_EXIT"
	StateConfusionExit   State = "CONFUSION_EXIT"
)

// Outbound states.
const (
	StateOpening          State = "OPENING"
	StateVerifyIdentity   State = "VERIFY_IDENTITY"
	StateCheckSideEffects State = "CHECK_SIDE_EFFECTS"
	StateCheckAdherence   State = "CHECK_ADHERENCE"
	StateProbeReason      State = "PROBE_REASON"
	StateClosing          State = "CLOSING"
	StateEscalated        State = "ESCALATED"
	StateComplete         State = "COMPLETE"
)

// Terminal reports whether no further transitions leave this state.
func (s State) Terminal() bool {
	switch s {
	case StateEmergencyExit, StateSuccessExit, StateConfusionExit, StateEscalated, StateComplete:
		return true
	}
	return false
}

// Outcome is the terminal classification of a finished conversation.
type Outcome string

const (
	OutcomeEmergencyRedirect   Outcome = "emergency_redirect"
	OutcomeLiveTransfer        Outcome = "live_transfer"
	OutcomeMessageForCallback  Outcome = "message_for_callback"
	OutcomeConfusionEscalation Outcome = "confusion_escalation"
	OutcomeAppointmentBooked   Outcome = "appointment_booked"
	OutcomeAppointmentNoted    Outcome = "appointment_noted"
	OutcomeCallEnded           Outcome = "call_ended"
	OutcomeMessageLogged       Outcome = "message_logged"
	OutcomeFollowupComplete    Outcome = "followup_complete"
	OutcomeUrgentCallback      Outcome = "urgent_callback"
)

// Intent is the routed purpose of an inbound call.
type Intent string

const (
	IntentNone        Intent = ""
	IntentAppointment Intent = "appointment"
	IntentClinical    Intent = "clinical"
	IntentAdmin       Intent = "admin"
	IntentTransfer    Intent = "transfer"
	IntentUnclear     Intent = "unclear"
)

// Transcript roles.
const (
	RoleAssistant = "assistant"
	RoleUser      = "user"
)

// Turn is a single entry in the transcript. Transcripts are append-only
// and never reordered.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	State     State     `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// CallKind distinguishes the two engines.
type CallKind string

const (
	CallInbound  CallKind = "inbound"
	CallOutbound CallKind = "outbound"
)

// ConversationState is the unit of truth for one call. It travels whole
// between turns; the service keeps no session table, so the client is the
// system of record for in-flight state.
type ConversationState struct {
	ConversationID string   `json:"conversation_id"`
	Kind           CallKind `json:"kind"`
	CurrentState   State    `json:"current_state"`
	Transcript     []Turn   `json:"transcript"`
	Flags          []string `json:"flags,omitempty"`
	IsComplete     bool     `json:"is_complete"`
	FinalOutcome   Outcome  `json:"final_outcome,omitempty"`

	// Inbound fields. IsBusinessHours is frozen at call start.
	// ConfusionCount doubles as the verification retry counter on
	// outbound calls; both uses count unrecognized input toward the same
	// limit.
	IsBusinessHours   bool   `json:"is_business_hours,omitempty"`
	PatientIdentified bool   `json:"patient_identified,omitempty"`
	PatientName       string `json:"patient_name,omitempty"`
	PatientDOB        string `json:"patient_dob,omitempty"`
	Intent            Intent `json:"intent,omitempty"`
	ConfusionCount    int    `json:"confusion_count,omitempty"`

	// Appointment sub-state, only meaningful in APPOINTMENT_FLOW.
	AppointmentDoctor  string   `json:"appointment_doctor,omitempty"`
	OfferedSlots       []string `json:"offered_slots,omitempty"`
	AppointmentOutcome Outcome  `json:"appointment_outcome,omitempty"`

	// Outbound fields.
	EscalatedToDoctor bool   `json:"escalated_to_doctor,omitempty"`
	FollowupDate      string `json:"followup_date,omitempty"`
	Medication        string `json:"medication,omitempty"`
}

// allowedTransitions is the declared transition table. The one sanctioned
// bypass is the safety override: emergency or transfer detection may force
// any non-terminal inbound state into its exit directly.
var allowedTransitions = map[State][]State{
	StateGreeting:        {StateIdentify},
	StateIdentify:        {StateIdentify, StateTriage, StateAppointmentFlow, StateClinicalFlow, StateMessageFlow, StateTransferFlow, StateConfusionExit},
	StateTriage:          {StateTriage, StateAppointmentFlow, StateClinicalFlow, StateMessageFlow, StateTransferFlow, StateConfusionExit},
	StateAppointmentFlow: {StateAppointmentFlow, StateSuccessExit},
	StateClinicalFlow:    {StateMessageFlow, StateTransferFlow},
	StateMessageFlow:     {StateMessageFlow, StateSuccessExit},
	StateTransferFlow:    {StateMessageFlow},

	StateOpening:          {StateVerifyIdentity, StateComplete},
	StateVerifyIdentity:   {StateVerifyIdentity, StateCheckSideEffects, StateComplete},
	StateCheckSideEffects: {StateCheckAdherence, StateEscalated},
	StateCheckAdherence:   {StateProbeReason, StateClosing},
	StateProbeReason:      {StateClosing},
	StateClosing:          {StateClosing, StateComplete},
}

// errImmutable guards the completed-state invariant.
var errImmutable = fmt.Errorf("conversation: state is complete and immutable")

func newConversationState(kind CallKind, initial State) *ConversationState {
	return &ConversationState{
		ConversationID: uuid.NewString(),
		Kind:           kind,
		CurrentState:   initial,
	}
}

// transitionTo moves to next if the transition table allows it.
func (s *ConversationState) transitionTo(next State) error {
	if s.IsComplete {
		return errImmutable
	}
	for _, allowed := range allowedTransitions[s.CurrentState] {
		if allowed == next {
			s.CurrentState = next
			return nil
		}
	}
	return fmt.Errorf("conversation: transition %s -> %s not in table", s.CurrentState, next)
}

// forceTransition is the sanctioned safety override: emergency and
// transfer detection may jump from any non-terminal state.
func (s *ConversationState) forceTransition(next State) error {
	if s.IsComplete {
		return errImmutable
	}
	s.CurrentState = next
	return nil
}

func (s *ConversationState) appendTurn(role, content string) {
	s.Transcript = append(s.Transcript, Turn{
		Role:      role,
		Content:   content,
		State:     s.CurrentState,
		Timestamp: time.Now().UTC(),
	})
}

// addFlag appends a tag. Flags are append-only; duplicates are dropped.
func (s *ConversationState) addFlag(flag string) {
	for _, f := range s.Flags {
		if f == flag {
			return
		}
	}
	s.Flags = append(s.Flags, flag)
}

func (s *ConversationState) hasFlag(flag string) bool {
	for _, f := range s.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// complete marks the conversation finished. FinalOutcome is set exactly
// once, here.
func (s *ConversationState) complete(outcome Outcome) {
	if s.IsComplete {
		return
	}
	s.IsComplete = true
	s.FinalOutcome = outcome
}

// LastReply returns the most recent assistant utterance.
func (s *ConversationState) LastReply() string {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Role == RoleAssistant {
			return s.Transcript[i].Content
		}
	}
	return ""
}
