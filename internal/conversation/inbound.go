package conversation

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-voice-agent/internal/clinic"
	"github.com/wolfman30/clinic-voice-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

var inboundTracer = otel.Tracer("clinicvoice/inbound-engine")

// Flags set by the inbound engine.
const (
	FlagEmergencyDetected   = "EMERGENCY_DETECTED"
	FlagTransferRequested   = "TRANSFER_REQUESTED"
	FlagRepeatedConfusion   = "REPEATED_CONFUSION"
	FlagIdentityNotVerified = "identity_not_verified"
	FlagUrgentClinical      = "clinical_concern_urgent"
	FlagClinicalLogged      = "clinical_concern_logged"
)

// confusionLimit is how many consecutive unrecognized inputs the engine
// tolerates before handing off. The counter resets on any recognized
// input.
const confusionLimit = 3

// InboundEngine runs the inbound patient-call state machine. The engine
// holds no per-call state: every call site passes the ConversationState
// in and receives the advanced copy back.
type InboundEngine struct {
	collab    Collaborator
	validator *ResponseValidator
	logger    *logging.Logger
	metrics   *metrics.ConversationMetrics
}

// NewInboundEngine wires an engine. Collaborator and validator are
// required; logger and metrics may be nil.
func NewInboundEngine(collab Collaborator, validator *ResponseValidator, logger *logging.Logger, m *metrics.ConversationMetrics) *InboundEngine {
	if collab == nil {
		panic("conversation: inbound engine requires a collaborator")
	}
	if validator == nil {
		panic("conversation: inbound engine requires a response validator")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &InboundEngine{
		collab:    collab,
		validator: validator,
		logger:    logger.Component("inbound-engine"),
		metrics:   m,
	}
}

// Start opens a new inbound conversation. Business hours are resolved
// once, here, against the clinic schedule; every later turn reuses the
// frozen flag so the call never flips between open and closed mid-way.
func (e *InboundEngine) Start(ctx context.Context, cfg *clinic.Config, day, timeOfDay string) ConversationState {
	ctx, span := inboundTracer.Start(ctx, "inbound.start")
	defer span.End()

	st := newConversationState(CallInbound, StateGreeting)
	st.IsBusinessHours = cfg.IsOpenAt(day, timeOfDay)

	span.SetAttributes(
		attribute.String("conversation.id", st.ConversationID),
		attribute.Bool("conversation.business_hours", st.IsBusinessHours),
	)

	step := StepGreetingClosed
	if st.IsBusinessHours {
		step = StepGreetingOpen
	}
	e.say(ctx, st, step, baseFields(cfg))

	e.logger.Info("inbound conversation started",
		"conversation_id", st.ConversationID,
		"clinic_id", cfg.ClinicID,
		"business_hours", st.IsBusinessHours,
	)
	return *st
}

// ProcessTurn advances the conversation by one patient message. The
// safety scan runs first on every turn regardless of state; state
// dispatch only happens for messages the scanner waves through.
func (e *InboundEngine) ProcessTurn(ctx context.Context, st ConversationState, message string, cfg *clinic.Config) (ConversationState, error) {
	ctx, span := inboundTracer.Start(ctx, "inbound.process_turn", trace.WithAttributes(
		attribute.String("conversation.id", st.ConversationID),
		attribute.String("conversation.state", string(st.CurrentState)),
	))
	defer span.End()

	if st.IsComplete {
		return st, ErrConversationComplete
	}

	st.appendTurn(RoleUser, message)
	e.metrics.ObserveTurn(string(CallInbound), string(st.CurrentState))

	scan := Scan(message, cfg)
	if scan.Emergency {
		e.handleEmergency(&st, cfg)
		return st, nil
	}
	if scan.TransferRequested {
		e.handleTransferRequest(ctx, &st, cfg)
		return st, nil
	}

	fields := baseFields(cfg)
	switch st.CurrentState {
	case StateGreeting:
		e.handleGreetingReply(ctx, &st, message, cfg, fields)
	case StateIdentify:
		e.handleIdentify(ctx, &st, message, cfg, fields)
	case StateTriage:
		e.handleTriage(ctx, &st, message, cfg, fields)
	case StateAppointmentFlow:
		e.handleAppointment(ctx, &st, message, cfg, fields)
	case StateClinicalFlow:
		e.handleClinical(ctx, &st, message, fields)
	case StateMessageFlow:
		e.handleMessage(ctx, &st, message, fields)
	case StateTransferFlow:
		// The flow never rests here, but a replayed state could. Demote
		// to message-taking rather than refuse the turn.
		e.transition(&st, StateMessageFlow)
		e.say(ctx, &st, StepTransferDemote, fields)
	default:
		e.say(ctx, &st, StepClarify, fields)
	}

	if st.IsComplete {
		e.metrics.ObserveOutcome(string(CallInbound), string(st.FinalOutcome))
		e.logger.Info("inbound conversation complete",
			"conversation_id", st.ConversationID,
			"outcome", string(st.FinalOutcome),
		)
	}
	return st, nil
}

// handleEmergency ends the call with the fixed redirect script. The
// script is never generated: a misheard emergency instruction is the one
// failure the system cannot afford.
func (e *InboundEngine) handleEmergency(st *ConversationState, cfg *clinic.Config) {
	e.metrics.ObserveSafety("emergency")
	e.force(st, StateEmergencyExit)
	st.addFlag(FlagEmergencyDetected)
	st.appendTurn(RoleAssistant, emergencyScript(cfg))
	st.complete(OutcomeEmergencyRedirect)

	e.metrics.ObserveOutcome(string(CallInbound), string(OutcomeEmergencyRedirect))
	e.logger.Warn("emergency detected, call redirected",
		"conversation_id", st.ConversationID,
	)
}

// handleTransferRequest honors an explicit ask for a human from any
// state. During business hours the call hands off live; after hours it
// becomes a callback note.
func (e *InboundEngine) handleTransferRequest(ctx context.Context, st *ConversationState, cfg *clinic.Config) {
	e.metrics.ObserveSafety("transfer_request")
	e.force(st, StateTransferFlow)
	st.addFlag(FlagTransferRequested)

	fields := baseFields(cfg)
	if st.IsBusinessHours {
		e.say(ctx, st, StepTransferConnect, fields)
		st.complete(OutcomeLiveTransfer)
	} else {
		e.say(ctx, st, StepTransferCallback, fields)
		st.complete(OutcomeMessageForCallback)
	}
	e.metrics.ObserveOutcome(string(CallInbound), string(st.FinalOutcome))
}

// handleGreetingReply takes the caller's first utterance. Intent is
// sniffed early so it can be acknowledged, but identity always comes
// before any business is done.
func (e *InboundEngine) handleGreetingReply(ctx context.Context, st *ConversationState, message string, cfg *clinic.Config, fields map[string]string) {
	if intent := ClassifyIntent(message); intent != IntentUnclear {
		st.Intent = intent
	}

	e.transition(st, StateIdentify)
	if st.Intent != IntentNone {
		e.say(ctx, st, StepAckIntentAskIdentity, withField(fields, "intent", intentPhrase(st.Intent)))
		return
	}
	e.say(ctx, st, StepAskIdentity, fields)
}

func (e *InboundEngine) handleIdentify(ctx context.Context, st *ConversationState, message string, cfg *clinic.Config, fields map[string]string) {
	if isIdentityRefusal(message) {
		// A caller who declines to verify can still leave a message;
		// nothing patient specific happens on this path.
		st.addFlag(FlagIdentityNotVerified)
		e.transition(st, StateMessageFlow)
		e.say(ctx, st, StepMessagePrompt, fields)
		return
	}

	id := e.extractIdentity(ctx, message)
	if id.Name != "" {
		st.PatientName = id.Name
	}
	if id.DOB != "" {
		st.PatientDOB = id.DOB
	}

	if st.PatientName != "" && st.PatientDOB != "" {
		st.PatientIdentified = true
		st.ConfusionCount = 0
		if st.Intent != IntentNone {
			e.routeIntent(ctx, st, st.Intent, message, cfg, fields)
			return
		}
		e.transition(st, StateTriage)
		e.say(ctx, st, StepAskReason, fields)
		return
	}

	if id.Name != "" || id.DOB != "" {
		// Partial verification keeps the counter still; the caller is
		// cooperating, just not done yet.
		e.transition(st, StateIdentify)
		e.say(ctx, st, StepAskIdentityAgain, fields)
		return
	}

	// A caller who answers the identity question with their reason for
	// calling is recognized input, not confusion. Capture the intent so
	// verification can jump straight into the flow, and ask again.
	if st.Intent == IntentNone {
		if intent := ClassifyIntent(message); intent != IntentUnclear {
			st.Intent = intent
			e.transition(st, StateIdentify)
			e.say(ctx, st, StepAckIntentAskIdentity, withField(fields, "intent", intentPhrase(intent)))
			return
		}
	}

	if e.countConfusion(ctx, st, fields) {
		return
	}
	e.transition(st, StateIdentify)
	e.say(ctx, st, StepAskIdentityAgain, fields)
}

func (e *InboundEngine) handleTriage(ctx context.Context, st *ConversationState, message string, cfg *clinic.Config, fields map[string]string) {
	intent := ClassifyIntent(message)
	if intent == IntentUnclear {
		if e.countConfusion(ctx, st, fields) {
			return
		}
		e.transition(st, StateTriage)
		e.say(ctx, st, StepClarify, fields)
		return
	}

	st.ConfusionCount = 0
	st.Intent = intent
	e.routeIntent(ctx, st, intent, message, cfg, fields)
}

// routeIntent moves a triaged call into its flow. The first flow turn
// consumes the same message that carried the intent, so a caller who says
// "I'd like to book with Dr Chen" is not asked which doctor.
func (e *InboundEngine) routeIntent(ctx context.Context, st *ConversationState, intent Intent, message string, cfg *clinic.Config, fields map[string]string) {
	switch intent {
	case IntentAppointment:
		if !cfg.ActionAllowed("book_appointment") {
			e.transition(st, StateMessageFlow)
			e.say(ctx, st, StepMessagePrompt, fields)
			return
		}
		e.transition(st, StateAppointmentFlow)
		e.handleAppointment(ctx, st, message, cfg, fields)

	case IntentClinical:
		e.transition(st, StateClinicalFlow)
		if hasClinicalDetail(message) {
			e.handleClinical(ctx, st, message, fields)
			return
		}
		e.say(ctx, st, StepClinicalAskDetails, fields)

	case IntentAdmin:
		e.transition(st, StateMessageFlow)
		e.say(ctx, st, StepMessagePrompt, fields)

	case IntentTransfer:
		e.transition(st, StateTransferFlow)
		if st.IsBusinessHours && cfg.ActionAllowed("transfer") {
			st.addFlag(FlagTransferRequested)
			e.say(ctx, st, StepTransferConnect, fields)
			st.complete(OutcomeLiveTransfer)
			return
		}
		e.transition(st, StateMessageFlow)
		e.say(ctx, st, StepTransferDemote, fields)

	default:
		e.transition(st, StateMessageFlow)
		e.say(ctx, st, StepMessagePrompt, fields)
	}
}

func (e *InboundEngine) handleAppointment(ctx context.Context, st *ConversationState, message string, cfg *clinic.Config, fields map[string]string) {
	if isDone(message) {
		e.exitSuccess(ctx, st, fields)
		return
	}

	if len(st.OfferedSlots) > 0 {
		idx := chooseSlot(message, st.OfferedSlots)
		if idx < 0 {
			// The client carries the state between turns and may resubmit
			// it with the offer pair truncated. Re-run the policy decision
			// instead of trusting the pair is intact.
			if len(st.OfferedSlots) < 2 {
				st.OfferedSlots = nil
				if doc, ok := cfg.DoctorByName(st.AppointmentDoctor); ok {
					e.applyAppointmentDecision(ctx, st, doc, cfg, fields)
					return
				}
				st.AppointmentDoctor = ""
				st.AppointmentOutcome = ""
				e.transition(st, StateAppointmentFlow)
				e.say(ctx, st, StepAppointmentAskDoctor, fields)
				return
			}
			e.transition(st, StateAppointmentFlow)
			e.say(ctx, st, StepAppointmentOfferSlots, withFields(fields, map[string]string{
				"doctor": st.AppointmentDoctor,
				"slot1":  st.OfferedSlots[0],
				"slot2":  st.OfferedSlots[1],
			}))
			return
		}

		slot := st.OfferedSlots[idx]
		st.OfferedSlots = nil
		e.transition(st, StateAppointmentFlow)
		slotFields := withFields(fields, map[string]string{
			"doctor": st.AppointmentDoctor,
			"slot":   slot,
		})
		if st.AppointmentOutcome == OutcomeAppointmentNoted {
			// Manual-approval doctors only ever get a note; the booking
			// is not final until staff confirm it.
			e.say(ctx, st, StepAppointmentPending, slotFields)
			return
		}
		st.AppointmentOutcome = OutcomeAppointmentBooked
		e.say(ctx, st, StepAppointmentBooked, slotFields)
		return
	}

	if st.AppointmentDoctor != "" {
		// Doctor settled, nothing pending: treat further detail as an
		// addition to the request note.
		e.transition(st, StateAppointmentFlow)
		e.say(ctx, st, StepMessageAck, fields)
		return
	}

	doctor, mention := detectDoctorMention(message, cfg)
	switch mention {
	case mentionKnown, mentionAny:
		e.applyAppointmentDecision(ctx, st, doctor, cfg, fields)
	case mentionUnknown:
		e.transition(st, StateAppointmentFlow)
		e.say(ctx, st, StepAppointmentUnknownDoc,
			withField(fields, "alternatives", doctorNames(cfg.AcceptingDoctors())))
	default:
		e.transition(st, StateAppointmentFlow)
		e.say(ctx, st, StepAppointmentAskDoctor, fields)
	}
}

func (e *InboundEngine) applyAppointmentDecision(ctx context.Context, st *ConversationState, doctor clinic.StaffMember, cfg *clinic.Config, fields map[string]string) {
	decision := DecideAppointment(doctor, st.IsBusinessHours, cfg)
	e.transition(st, StateAppointmentFlow)

	switch decision.Ruling {
	case RulingRefuse:
		e.say(ctx, st, StepAppointmentRefusal, withFields(fields, map[string]string{
			"doctor":       decision.Doctor.Name,
			"alternatives": doctorNames(decision.Alternatives),
		}))

	case RulingAfterHours:
		st.AppointmentDoctor = decision.Doctor.Name
		st.AppointmentOutcome = OutcomeAppointmentNoted
		e.say(ctx, st, StepAppointmentAfterHours, withField(fields, "doctor", decision.Doctor.Name))

	case RulingOfferSlots:
		st.AppointmentDoctor = decision.Doctor.Name
		st.OfferedSlots = decision.Slots
		if decision.NoteOnly {
			st.AppointmentOutcome = OutcomeAppointmentNoted
		}
		e.say(ctx, st, StepAppointmentOfferSlots, withFields(fields, map[string]string{
			"doctor": decision.Doctor.Name,
			"slot1":  decision.Slots[0],
			"slot2":  decision.Slots[1],
		}))
	}
}

func (e *InboundEngine) handleClinical(ctx context.Context, st *ConversationState, message string, fields map[string]string) {
	if isUrgentClinical(message) {
		st.addFlag(FlagUrgentClinical)
		if st.IsBusinessHours {
			e.transition(st, StateTransferFlow)
			e.say(ctx, st, StepClinicalUrgentTransfer, fields)
			st.complete(OutcomeLiveTransfer)
			return
		}
		e.transition(st, StateMessageFlow)
		e.say(ctx, st, StepClinicalUrgentCallback, fields)
		return
	}

	st.addFlag(FlagClinicalLogged)
	e.transition(st, StateMessageFlow)
	e.say(ctx, st, StepClinicalLogged, fields)
}

func (e *InboundEngine) handleMessage(ctx context.Context, st *ConversationState, message string, fields map[string]string) {
	if isDone(message) {
		e.exitSuccess(ctx, st, fields)
		return
	}
	e.transition(st, StateMessageFlow)
	e.say(ctx, st, StepMessageAck, fields)
}

// exitSuccess closes a flow that ran to its natural end and picks the
// outcome the flow earned.
func (e *InboundEngine) exitSuccess(ctx context.Context, st *ConversationState, fields map[string]string) {
	from := st.CurrentState
	e.transition(st, StateSuccessExit)
	e.say(ctx, st, StepGoodbye, fields)

	switch {
	case from == StateAppointmentFlow && st.AppointmentOutcome != "":
		st.complete(st.AppointmentOutcome)
	case from == StateMessageFlow && st.hasFlag(FlagUrgentClinical):
		st.complete(OutcomeUrgentCallback)
	case from == StateMessageFlow:
		st.complete(OutcomeMessageLogged)
	default:
		st.complete(OutcomeCallEnded)
	}
}

// transition applies a table transition. A rejected transition is logged
// and leaves the state where it was; the turn still completes with a
// well-defined utterance.
func (e *InboundEngine) transition(st *ConversationState, next State) {
	if err := st.transitionTo(next); err != nil {
		e.logger.Error("state transition rejected",
			"conversation_id", st.ConversationID,
			"from", string(st.CurrentState),
			"to", string(next),
			"error", err.Error(),
		)
	}
}

// force applies the sanctioned safety override.
func (e *InboundEngine) force(st *ConversationState, next State) {
	if err := st.forceTransition(next); err != nil {
		e.logger.Error("state transition rejected",
			"conversation_id", st.ConversationID,
			"from", string(st.CurrentState),
			"to", string(next),
			"error", err.Error(),
		)
	}
}

// countConfusion bumps the counter and, on the limit, hands the call off.
// Returns true when the conversation ended here.
func (e *InboundEngine) countConfusion(ctx context.Context, st *ConversationState, fields map[string]string) bool {
	st.ConfusionCount++
	if st.ConfusionCount < confusionLimit {
		return false
	}

	st.addFlag(FlagRepeatedConfusion)
	e.transition(st, StateConfusionExit)
	e.say(ctx, st, StepConfusionHandoff, fields)
	st.complete(OutcomeConfusionEscalation)
	return true
}

// say generates the utterance for a step, gates it through the validator,
// and appends it to the transcript.
func (e *InboundEngine) say(ctx context.Context, st *ConversationState, step InstructionStep, fields map[string]string) {
	start := time.Now()
	candidate, err := e.collab.Generate(ctx, step, fields)
	e.metrics.ObserveCollaborator("generate", time.Since(start).Seconds(), err == nil)

	reply, substituted := e.validator.Validate(candidate, err, Constraints{
		Step:            step,
		HoursKnown:      true,
		IsBusinessHours: st.IsBusinessHours,
	}, fields)
	if substituted {
		e.metrics.ObserveFallback(string(step))
	}
	st.appendTurn(RoleAssistant, reply)
}

func (e *InboundEngine) extractIdentity(ctx context.Context, message string) Identity {
	start := time.Now()
	id, err := e.collab.ExtractIdentity(ctx, message)
	e.metrics.ObserveCollaborator("extract_identity", time.Since(start).Seconds(), err == nil)
	if err != nil {
		e.logger.Warn("identity extraction failed, using heuristic", "error", err.Error())
		return ExtractIdentityHeuristic(message)
	}
	return id
}

// emergencyScript is the only utterance that never touches the
// collaborator. Clinic config may append its own direction but cannot
// remove the 000 redirect.
func emergencyScript(cfg *clinic.Config) string {
	s := "This sounds like it could be a medical emergency. Please hang up and call 000 (emergency services) right away."
	if cfg != nil && cfg.EmergencyAction != "" {
		s += " " + cfg.EmergencyAction
	}
	return s
}

func baseFields(cfg *clinic.Config) map[string]string {
	clinicName := "the clinic"
	agent := "the clinic assistant"
	if cfg != nil {
		if cfg.Name != "" {
			clinicName = cfg.Name
		}
		if cfg.Persona.AgentName != "" {
			agent = cfg.Persona.AgentName
		}
	}
	return map[string]string{"clinic": clinicName, "agent": agent}
}

func withField(fields map[string]string, key, value string) map[string]string {
	return withFields(fields, map[string]string{key: value})
}

func withFields(fields, extra map[string]string) map[string]string {
	out := make(map[string]string, len(fields)+len(extra))
	for k, v := range fields {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// intentPhrase renders an intent for the acknowledgement utterance.
func intentPhrase(intent Intent) string {
	switch intent {
	case IntentAppointment:
		return "booking an appointment"
	case IntentClinical:
		return "a health concern"
	case IntentAdmin:
		return "an administrative request"
	case IntentTransfer:
		return "speaking to our staff"
	}
	return "your request"
}

// hasClinicalDetail reports whether a clinical-intent message already
// describes the concern, as opposed to just naming the category.
func hasClinicalDetail(message string) bool {
	return len(strings.Fields(message)) >= 4
}
