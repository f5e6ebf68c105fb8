package conversation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-voice-agent/internal/clinic"
	"github.com/wolfman30/clinic-voice-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

var outboundTracer = otel.Tracer("clinicvoice/outbound-engine")

// Flags set by the outbound engine.
const (
	FlagSevereSideEffects = "URGENT: severe_side_effects"
	FlagSideEffects       = "side_effects_reported"
	FlagPoorAdherence     = "poor_adherence"
	FlagWrongNumber       = "wrong_number"
	FlagAdditionalNote    = "additional_note"
)

// defaultFollowup is the routine follow-up interval read out at the end
// of an uneventful adherence call. Escalation overrides it.
const defaultFollowup = "in one week"

// OutboundEngine runs the medication-adherence follow-up call. Same
// stateless shape as the inbound engine: state in, advanced state out.
type OutboundEngine struct {
	collab    Collaborator
	validator *ResponseValidator
	logger    *logging.Logger
	metrics   *metrics.ConversationMetrics
}

func NewOutboundEngine(collab Collaborator, validator *ResponseValidator, logger *logging.Logger, m *metrics.ConversationMetrics) *OutboundEngine {
	if collab == nil {
		panic("conversation: outbound engine requires a collaborator")
	}
	if validator == nil {
		panic("conversation: outbound engine requires a response validator")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OutboundEngine{
		collab:    collab,
		validator: validator,
		logger:    logger.Component("outbound-engine"),
		metrics:   m,
	}
}

// Start opens an outbound follow-up call for the given patient and
// medication.
func (e *OutboundEngine) Start(ctx context.Context, cfg *clinic.Config, patientName, medication string) ConversationState {
	ctx, span := outboundTracer.Start(ctx, "outbound.start")
	defer span.End()

	st := newConversationState(CallOutbound, StateOpening)
	st.PatientName = patientName
	st.Medication = medication
	st.FollowupDate = defaultFollowup

	span.SetAttributes(attribute.String("conversation.id", st.ConversationID))

	e.say(ctx, st, StepOutboundOpening, withField(baseFields(cfg), "medication", medication))

	e.logger.Info("outbound conversation started",
		"conversation_id", st.ConversationID,
		"clinic_id", cfg.ClinicID,
		"medication", medication,
	)
	return *st
}

// ProcessTurn advances the follow-up by one patient message.
func (e *OutboundEngine) ProcessTurn(ctx context.Context, st ConversationState, message string, cfg *clinic.Config) (ConversationState, error) {
	ctx, span := outboundTracer.Start(ctx, "outbound.process_turn", trace.WithAttributes(
		attribute.String("conversation.id", st.ConversationID),
		attribute.String("conversation.state", string(st.CurrentState)),
	))
	defer span.End()

	if st.IsComplete {
		return st, ErrConversationComplete
	}

	st.appendTurn(RoleUser, message)
	e.metrics.ObserveTurn(string(CallOutbound), string(st.CurrentState))

	// The emergency lexicon applies on outbound calls too. Transfer
	// phrases do not: there is no live line to hand the patient to on a
	// call the system placed.
	if Scan(message, cfg).Emergency {
		e.metrics.ObserveSafety("emergency")
		e.force(&st, StateEscalated)
		st.addFlag(FlagEmergencyDetected)
		st.EscalatedToDoctor = true
		st.FollowupDate = "today"
		st.appendTurn(RoleAssistant, emergencyScript(cfg))
		st.complete(OutcomeEmergencyRedirect)
		e.finish(&st)
		return st, nil
	}

	fields := withFields(baseFields(cfg), map[string]string{
		"medication":    st.Medication,
		"followup_date": st.FollowupDate,
	})

	switch st.CurrentState {
	case StateOpening:
		e.handleOpeningReply(ctx, &st, message, fields)
	case StateVerifyIdentity:
		e.handleVerify(ctx, &st, message, fields)
	case StateCheckSideEffects:
		e.handleSideEffects(ctx, &st, message, fields)
	case StateCheckAdherence:
		e.handleAdherence(ctx, &st, message, fields)
	case StateProbeReason:
		e.handleProbeReason(ctx, &st, message, fields)
	case StateClosing:
		e.handleClosing(ctx, &st, message, fields)
	default:
		e.say(ctx, &st, StepOutboundClosingAck, fields)
	}

	if st.IsComplete {
		e.finish(&st)
	}
	return st, nil
}

// handleOpeningReply reads the answer to "is now an okay time?". A flat
// no ends the call; anything else moves on to verification.
func (e *OutboundEngine) handleOpeningReply(ctx context.Context, st *ConversationState, message string, fields map[string]string) {
	if isDone(message) || matchesAny(strings.ToLower(message), badTimePhrases) {
		e.transition(st, StateComplete)
		e.say(ctx, st, StepOutboundGoodbye, fields)
		st.complete(OutcomeCallEnded)
		return
	}

	e.transition(st, StateVerifyIdentity)
	e.say(ctx, st, StepOutboundVerify, fields)
}

var badTimePhrases = []string{
	"not a good time", "bad time", "can't talk", "cannot talk",
	"busy right now", "call back later", "driving",
}

var wrongNumberPhrases = []string{
	"wrong number", "no one by that name", "nobody by that name",
	"never heard of", "doesn't live here", "don't know who",
	"you have the wrong",
}

// handleVerify gates the medical content of the call behind name and
// date-of-birth confirmation. Nothing about the medication is discussed
// until the person on the line is verified.
func (e *OutboundEngine) handleVerify(ctx context.Context, st *ConversationState, message string, fields map[string]string) {
	lowered := strings.ToLower(message)

	id := e.extractIdentity(ctx, message)
	wrongPerson := matchesAny(lowered, wrongNumberPhrases) ||
		(id.Name != "" && !nameMatches(st.PatientName, id.Name))
	if wrongPerson {
		st.addFlag(FlagWrongNumber)
		e.transition(st, StateComplete)
		e.say(ctx, st, StepOutboundWrongNumber, fields)
		st.complete(OutcomeCallEnded)
		return
	}

	if id.DOB != "" {
		st.PatientIdentified = true
		st.PatientDOB = id.DOB
		st.ConfusionCount = 0
		e.transition(st, StateCheckSideEffects)
		e.say(ctx, st, StepOutboundAskSideEffects, fields)
		return
	}

	st.ConfusionCount++
	if st.ConfusionCount >= confusionLimit {
		e.transition(st, StateComplete)
		e.say(ctx, st, StepOutboundWrongNumber, fields)
		st.complete(OutcomeCallEnded)
		return
	}
	e.transition(st, StateVerifyIdentity)
	e.say(ctx, st, StepOutboundVerify, fields)
}

func (e *OutboundEngine) handleSideEffects(ctx context.Context, st *ConversationState, message string, fields map[string]string) {
	report := e.classifySideEffects(ctx, message)

	if report.SevereSideEffects {
		e.transition(st, StateEscalated)
		st.addFlag(FlagSevereSideEffects)
		st.EscalatedToDoctor = true
		// A doctor calls back the same day; the routine interval no
		// longer applies.
		st.FollowupDate = "today"
		e.say(ctx, st, StepOutboundEscalate, fields)
		st.complete(OutcomeUrgentCallback)
		return
	}

	if report.HasSideEffects {
		st.addFlag(FlagSideEffects)
	}
	e.transition(st, StateCheckAdherence)
	e.say(ctx, st, StepOutboundAskAdherence, fields)
}

func (e *OutboundEngine) handleAdherence(ctx context.Context, st *ConversationState, message string, fields map[string]string) {
	report := e.classifyAdherence(ctx, message)

	if report.GoodAdherence && !report.PoorAdherence {
		e.transition(st, StateClosing)
		e.say(ctx, st, StepOutboundClosingAck, fields)
		return
	}

	// Poor and ambiguous answers both get the gentle probe; a missed
	// dose mentioned in passing must not be waved through.
	st.addFlag(FlagPoorAdherence)
	e.transition(st, StateProbeReason)
	e.say(ctx, st, StepOutboundProbeReason, fields)
}

func (e *OutboundEngine) handleProbeReason(ctx context.Context, st *ConversationState, message string, fields map[string]string) {
	report := e.classifyReason(ctx, message)
	if report.Reason != "" {
		st.addFlag("nonadherence:" + report.Reason)
	}

	e.transition(st, StateClosing)
	e.say(ctx, st, StepOutboundClosingAck, fields)
}

func (e *OutboundEngine) handleClosing(ctx context.Context, st *ConversationState, message string, fields map[string]string) {
	if isDone(message) {
		e.transition(st, StateComplete)
		e.say(ctx, st, StepOutboundGoodbye, fields)
		st.complete(OutcomeFollowupComplete)
		return
	}
	// Anything said past the wrap-up still reaches the clinic team.
	st.addFlag(FlagAdditionalNote)
	e.transition(st, StateClosing)
	e.say(ctx, st, StepOutboundClosingAck, fields)
}

// transition applies a table transition, logging a rejection. A rejected
// transition leaves the state where it was.
func (e *OutboundEngine) transition(st *ConversationState, next State) {
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
func (e *OutboundEngine) force(st *ConversationState, next State) {
	if err := st.forceTransition(next); err != nil {
		e.logger.Error("state transition rejected",
			"conversation_id", st.ConversationID,
			"from", string(st.CurrentState),
			"to", string(next),
			"error", err.Error(),
		)
	}
}

func (e *OutboundEngine) finish(st *ConversationState) {
	e.metrics.ObserveOutcome(string(CallOutbound), string(st.FinalOutcome))
	e.logger.Info("outbound conversation complete",
		"conversation_id", st.ConversationID,
		"outcome", string(st.FinalOutcome),
		"escalated", st.EscalatedToDoctor,
	)
}

func (e *OutboundEngine) say(ctx context.Context, st *ConversationState, step InstructionStep, fields map[string]string) {
	start := time.Now()
	candidate, err := e.collab.Generate(ctx, step, fields)
	e.metrics.ObserveCollaborator("generate", time.Since(start).Seconds(), err == nil)

	reply, substituted := e.validator.Validate(candidate, err, Constraints{Step: step}, fields)
	if substituted {
		e.metrics.ObserveFallback(string(step))
	}
	st.appendTurn(RoleAssistant, reply)
}

func (e *OutboundEngine) extractIdentity(ctx context.Context, message string) Identity {
	start := time.Now()
	id, err := e.collab.ExtractIdentity(ctx, message)
	e.metrics.ObserveCollaborator("extract_identity", time.Since(start).Seconds(), err == nil)
	if err != nil {
		e.logger.Warn("identity extraction failed, using heuristic", "error", err.Error())
		return ExtractIdentityHeuristic(message)
	}
	return id
}

func (e *OutboundEngine) classifySideEffects(ctx context.Context, message string) SideEffectReport {
	var report SideEffectReport
	if e.classify(ctx, message, SchemaSideEffects, &report) {
		return report
	}
	return ClassifySideEffectsHeuristic(message)
}

func (e *OutboundEngine) classifyAdherence(ctx context.Context, message string) AdherenceReport {
	var report AdherenceReport
	if e.classify(ctx, message, SchemaAdherence, &report) {
		return report
	}
	return ClassifyAdherenceHeuristic(message)
}

func (e *OutboundEngine) classifyReason(ctx context.Context, message string) ReasonReport {
	var report ReasonReport
	if e.classify(ctx, message, SchemaReason, &report) {
		return report
	}
	return ClassifyReasonHeuristic(message)
}

// classify runs one collaborator classification and unmarshals into out.
// Returns false when the caller should fall back to the keyword
// heuristic.
func (e *OutboundEngine) classify(ctx context.Context, message, schema string, out any) bool {
	start := time.Now()
	raw, err := e.collab.Classify(ctx, message, schema)
	if err == nil {
		err = json.Unmarshal(raw, out)
	}
	e.metrics.ObserveCollaborator("classify_"+schema, time.Since(start).Seconds(), err == nil)
	if err != nil {
		e.logger.Warn("classification failed, using keyword heuristic",
			"schema", schema,
			"error", err.Error(),
		)
		return false
	}
	return true
}

// nameMatches reports whether an extracted name plausibly refers to the
// expected patient: any shared name token of three or more letters.
func nameMatches(expected, got string) bool {
	for _, w := range strings.Fields(strings.ToLower(got)) {
		if len(w) < 3 {
			continue
		}
		for _, ew := range strings.Fields(strings.ToLower(expected)) {
			if w == ew {
				return true
			}
		}
	}
	return false
}
