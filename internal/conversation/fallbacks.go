package conversation

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// InstructionStep names one utterance the engines can ask the collaborator
// to phrase. Every step has a scripted fallback; the generated text is
// only ever a re-phrasing of what the step already asserts.
type InstructionStep string

const (
	// Inbound.
	StepGreetingOpen            InstructionStep = "greeting_open"
	StepGreetingClosed          InstructionStep = "greeting_closed"
	StepAskIdentity             InstructionStep = "ask_identity"
	StepAckIntentAskIdentity    InstructionStep = "ack_intent_ask_identity"
	StepAskIdentityAgain        InstructionStep = "ask_identity_again"
	StepAskReason               InstructionStep = "ask_reason"
	StepClarify                 InstructionStep = "clarify"
	StepConfusionHandoff        InstructionStep = "confusion_handoff"
	StepAppointmentAskDoctor    InstructionStep = "appointment_ask_doctor"
	StepAppointmentUnknownDoc   InstructionStep = "appointment_unknown_doctor"
	StepAppointmentRefusal      InstructionStep = "appointment_refusal"
	StepAppointmentAfterHours   InstructionStep = "appointment_after_hours"
	StepAppointmentOfferSlots   InstructionStep = "appointment_offer_slots"
	StepAppointmentPending      InstructionStep = "appointment_pending_approval"
	StepAppointmentBooked       InstructionStep = "appointment_booked"
	StepClinicalAskDetails      InstructionStep = "clinical_ask_details"
	StepClinicalUrgentTransfer  InstructionStep = "clinical_urgent_transfer"
	StepClinicalUrgentCallback  InstructionStep = "clinical_urgent_callback"
	StepClinicalLogged          InstructionStep = "clinical_logged"
	StepMessagePrompt           InstructionStep = "message_prompt"
	StepMessageAck              InstructionStep = "message_ack"
	StepTransferConnect         InstructionStep = "transfer_connect"
	StepTransferCallback        InstructionStep = "transfer_callback"
	StepTransferDemote          InstructionStep = "transfer_demote"
	StepGoodbye                 InstructionStep = "goodbye"

	// Outbound.
	StepOutboundOpening        InstructionStep = "outbound_opening"
	StepOutboundVerify         InstructionStep = "outbound_verify"
	StepOutboundWrongNumber    InstructionStep = "outbound_wrong_number"
	StepOutboundAskSideEffects InstructionStep = "outbound_ask_side_effects"
	StepOutboundAskAdherence   InstructionStep = "outbound_ask_adherence"
	StepOutboundProbeReason    InstructionStep = "outbound_probe_reason"
	StepOutboundEscalate       InstructionStep = "outbound_escalate"
	StepOutboundClosingAck     InstructionStep = "outbound_closing_ack"
	StepOutboundGoodbye        InstructionStep = "outbound_goodbye"
)

// stepInstructions is the Generate contract: what each step tells the
// collaborator to say. The collaborator phrases it; it does not decide it.
var stepInstructions = map[InstructionStep]string{
	StepGreetingOpen:           "Greet the caller on behalf of the clinic, give the agent name, note the clinic is currently open, and ask how you can help.",
	StepGreetingClosed:         "Greet the caller on behalf of the clinic, give the agent name, state the clinic is currently closed, and explain you can still take a message or note an appointment request.",
	StepAskIdentity:            "Ask the caller for their full name and date of birth so you can verify who they are. Do not introduce yourself again.",
	StepAckIntentAskIdentity:   "Briefly acknowledge what the caller wants ({intent}), then ask for their full name and date of birth to verify them. Do not introduce yourself again.",
	StepAskIdentityAgain:       "Acknowledge the caller, then ask again for their full name and date of birth. Do not introduce yourself again.",
	StepAskReason:              "Thank the caller for verifying and ask what they are calling about today.",
	StepClarify:                "Politely say you didn't catch that and ask the caller to rephrase what they need.",
	StepConfusionHandoff:       "Apologise that you're having trouble understanding, and say a staff member will call them back.",
	StepAppointmentAskDoctor:   "Ask which doctor the caller would like to see, or whether any available doctor is fine.",
	StepAppointmentUnknownDoc:  "Say you couldn't find that doctor at the clinic, and list the doctors currently taking new patients: {alternatives}.",
	StepAppointmentRefusal:     "Explain that {doctor} is not taking new patients at the moment. Offer these alternatives who are: {alternatives}. Do not offer times yet.",
	StepAppointmentAfterHours:  "Explain the clinic is closed right now so you can't book a time, but you have passed the appointment request to the front desk, who will call back to arrange it. Do not state a time slot.",
	StepAppointmentOfferSlots:  "Offer exactly these two times with {doctor} and ask which suits: {slot1} or {slot2}. Do not say anything is booked yet.",
	StepAppointmentPending:     "Say you have noted {slot} with {doctor}, and that the booking still needs staff confirmation before it is final. Do not say it is booked.",
	StepAppointmentBooked:      "Confirm the appointment is booked with {doctor} for {slot}, and ask if there is anything else.",
	StepClinicalAskDetails:     "Ask the caller to describe their health concern so it can be passed to the clinical team.",
	StepClinicalUrgentTransfer: "Tell the caller their concern sounds like it needs prompt attention and you are transferring them to staff now.",
	StepClinicalUrgentCallback: "Tell the caller their concern has been flagged as urgent and the clinic team will call back as a priority when it opens. The clinic is currently closed.",
	StepClinicalLogged:         "Reassure the caller their concern has been noted for the clinical team, and ask if there is anything to add to the message.",
	StepMessagePrompt:          "Ask what message the caller would like to leave for the clinic.",
	StepMessageAck:             "Confirm the message has been added, and ask if there is anything else.",
	StepTransferConnect:        "Tell the caller you are connecting them to a staff member now.",
	StepTransferCallback:       "Explain that no one is available because the clinic is closed, and that you've noted they want a call back from a person.",
	StepTransferDemote:         "Explain that no one is available to take the call because the clinic is closed, and offer to take a message instead.",
	StepGoodbye:                "Thank the caller and say goodbye on behalf of the clinic.",

	StepOutboundOpening:        "Introduce yourself as {agent} calling from {clinic} to check in about the caller's {medication} prescription, and ask if now is an okay time to talk for a minute.",
	StepOutboundVerify:         "Before discussing anything medical, ask the person to confirm their full name and date of birth.",
	StepOutboundWrongNumber:    "Apologise for the confusion and end the call politely without mentioning any medical details.",
	StepOutboundAskSideEffects: "Ask whether they've noticed any side effects or anything unusual since starting the medication.",
	StepOutboundAskAdherence:   "Ask whether they've been able to take the medication as prescribed most days.",
	StepOutboundProbeReason:    "Gently ask what has been getting in the way of taking the medication regularly.",
	StepOutboundEscalate:       "Tell the caller those symptoms need prompt review, that a doctor will call them back today, and that if things get worse they should seek urgent care.",
	StepOutboundClosingAck:     "Acknowledge what they said and note it has been passed along. Ask if there's anything else.",
	StepOutboundGoodbye:        "Thank them for their time, remind them of the follow-up: {followup_date}, and say goodbye.",
}

// fallbackVariants is the scripted library: curated utterances used when
// the collaborator fails or its text violates a constraint. Placeholders
// use the same {field} names as stepInstructions.
var fallbackVariants = map[InstructionStep][]string{
	StepGreetingOpen: {
		"Thanks for calling {clinic}. This is {agent}. How can I help you today?",
		"Hello, you've reached {clinic}, this is {agent} speaking. What can I do for you today?",
	},
	StepGreetingClosed: {
		"Thanks for calling {clinic}. This is {agent}. The clinic is currently closed, but I can take a message or note an appointment request for you.",
		"You've reached {clinic}; this is {agent}. We're closed at the moment, but I can pass on a message or an appointment request.",
	},
	StepAskIdentity: {
		"Could I start with your full name and date of birth, please?",
		"To look after you properly, may I have your full name and date of birth?",
	},
	StepAckIntentAskIdentity: {
		"I can help with that. First, could I have your full name and date of birth?",
		"Sure — before we go on, can I get your full name and date of birth?",
	},
	StepAskIdentityAgain: {
		"Thanks. I still need your full name and date of birth to continue.",
		"No problem — could you give me your full name and date of birth?",
	},
	StepAskReason: {
		"Thank you, you're verified. What are you calling about today?",
		"All verified, thanks. How can I help you today?",
	},
	StepClarify: {
		"Sorry, I didn't quite catch that. Could you tell me again what you need?",
		"I'm sorry, I didn't follow. Could you put that another way for me?",
	},
	StepConfusionHandoff: {
		"I'm sorry, I'm having trouble understanding. I'll have one of our staff call you back shortly.",
		"My apologies — I can't quite work out what you need. A staff member will give you a call back.",
	},
	StepAppointmentAskDoctor: {
		"Which doctor would you like to see? Or I can find the first available.",
		"Is there a particular doctor you'd like, or is anyone available fine?",
	},
	StepAppointmentUnknownDoc: {
		"I couldn't find that doctor here. Doctors currently taking new patients are: {alternatives}.",
		"I don't have that doctor at this clinic. Currently taking new patients: {alternatives}.",
	},
	StepAppointmentRefusal: {
		"I'm sorry, {doctor} isn't taking new patients right now. {alternatives} are accepting new patients — would one of them suit?",
		"Unfortunately {doctor} isn't accepting new patients at the moment. I could book you with {alternatives} instead.",
	},
	StepAppointmentAfterHours: {
		"The clinic is closed right now, so I can't offer a time, but I've passed your appointment request to the front desk and they'll call you back to arrange it.",
		"We're closed at the moment so I can't book a slot, but I've noted your request and the front desk will call you back when the clinic opens.",
	},
	StepAppointmentOfferSlots: {
		"{doctor} has {slot1} or {slot2} available. Would either of those work?",
		"I can offer {slot1} or {slot2} with {doctor}. Which suits you better?",
	},
	StepAppointmentPending: {
		"I've noted {slot} with {doctor}. The clinic will confirm the booking with you shortly — it isn't final until they do.",
		"I've put down {slot} with {doctor}; staff will confirm it with you before it's final.",
	},
	StepAppointmentBooked: {
		"You're booked with {doctor} for {slot}. Is there anything else I can help with?",
		"All done — {slot} with {doctor} is booked. Anything else today?",
	},
	StepClinicalAskDetails: {
		"Could you tell me a bit about your health concern so I can pass it to the clinical team?",
		"What's been going on? I'll make sure the clinical team gets the details.",
	},
	StepClinicalUrgentTransfer: {
		"That sounds like it needs prompt attention. I'm transferring you to our staff now.",
		"I want someone to look at that promptly — putting you through to staff now.",
	},
	StepClinicalUrgentCallback: {
		"The clinic is closed right now, but I've flagged your concern as urgent and the team will call you back as a priority when we open.",
		"We're closed at the moment; I've marked this as urgent so the clinical team calls you first thing.",
	},
	StepClinicalLogged: {
		"I've noted that for the clinical team. Is there anything you'd like to add to the message?",
		"That's been passed to the clinical team. Anything else to add?",
	},
	StepMessagePrompt: {
		"Of course. What message would you like to leave?",
		"I can take a message — go ahead whenever you're ready.",
	},
	StepMessageAck: {
		"Got it, I've added that. Anything else?",
		"Noted. Is there anything else you'd like to include?",
	},
	StepTransferConnect: {
		"Of course — connecting you to a staff member now.",
		"One moment, I'll put you through to our staff.",
	},
	StepTransferCallback: {
		"The clinic is closed, so no one is available right now, but I've noted that you'd like a call back from a person.",
		"No one can take the call while we're closed, so I've flagged you for a call back from our staff.",
	},
	StepTransferDemote: {
		"The clinic is closed so I can't transfer you just now, but I can take a message for the team. What would you like to pass on?",
		"I can't put you through while we're closed — can I take a message instead?",
	},
	StepGoodbye: {
		"Thanks for calling. Take care!",
		"Thank you, goodbye and take care.",
	},

	StepOutboundOpening: {
		"Hi, this is {agent} calling from {clinic} to check in about your {medication} prescription. Is now an okay time for a quick minute?",
		"Hello, {agent} here from {clinic} — just a quick follow-up call about your {medication}. Do you have a minute?",
	},
	StepOutboundVerify: {
		"Before we go on, could you confirm your full name and date of birth for me?",
		"Just to make sure I'm speaking with the right person — your full name and date of birth, please?",
	},
	StepOutboundWrongNumber: {
		"My apologies for the mix-up. I'll let you go — have a good day.",
		"Sorry about that, I have the wrong person. Take care.",
	},
	StepOutboundAskSideEffects: {
		"Thanks. Have you noticed any side effects or anything unusual since starting the medication?",
		"Great, thanks. Any side effects or anything out of the ordinary since you started it?",
	},
	StepOutboundAskAdherence: {
		"Good to hear. Have you been able to take it as prescribed most days?",
		"Thanks for that. Have you managed to take it as prescribed, most days?",
	},
	StepOutboundProbeReason: {
		"That happens to a lot of people. What's been getting in the way of taking it regularly?",
		"No judgement at all — what's been making it hard to take regularly?",
	},
	StepOutboundEscalate: {
		"Those symptoms need prompt review. A doctor from the clinic will call you back today — please keep your phone nearby, and if anything gets worse, seek urgent care right away.",
		"I want a doctor to look at that today — they'll call you back shortly. If it gets worse in the meantime, please seek urgent care.",
	},
	StepOutboundClosingAck: {
		"Thanks, I've passed that along. Anything else before we finish up?",
		"Noted — that's gone to the team. Anything else on your mind?",
	},
	StepOutboundGoodbye: {
		"Thanks so much for your time. Your next follow-up is {followup_date}. Take care!",
		"That's everything from me — we'll follow up {followup_date}. Thanks, and take care.",
	},
}

// FallbackLibrary selects scripted utterances. The random source is
// injected so tests can pin variant choice.
type FallbackLibrary struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFallbackLibrary creates a library with the given seed; seed 0 uses
// the clock.
func NewFallbackLibrary(seed int64) *FallbackLibrary {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &FallbackLibrary{rng: rand.New(rand.NewSource(seed))}
}

// Utterance returns a scripted line for the step with fields substituted.
func (l *FallbackLibrary) Utterance(step InstructionStep, fields map[string]string) string {
	variants := fallbackVariants[step]
	if len(variants) == 0 {
		// Unknown step: a safe generic line rather than silence.
		return renderFields("I'm sorry, could you repeat that?", fields)
	}

	l.mu.Lock()
	idx := l.rng.Intn(len(variants))
	l.mu.Unlock()

	return renderFields(variants[idx], fields)
}

func renderFields(template string, fields map[string]string) string {
	if len(fields) == 0 {
		return template
	}
	pairs := make([]string, 0, len(fields)*2)
	for k, v := range fields {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
