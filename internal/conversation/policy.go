package conversation

import (
	"regexp"
	"strings"

	"github.com/wolfman30/clinic-voice-agent/internal/clinic"
)

// AppointmentRuling is what the policy engine permits the utterance to
// assert. The text generator fills in wording only; the ruling is the
// authority on booked vs noted vs refused.
type AppointmentRuling string

const (
	// RulingRefuse: the doctor is not taking new patients; offer only
	// the listed alternatives, never silently substitute.
	RulingRefuse AppointmentRuling = "refuse"
	// RulingAfterHours: no concrete slots may be offered; the request is
	// passed to front desk for callback and the outcome is "noted".
	RulingAfterHours AppointmentRuling = "after_hours_noted"
	// RulingOfferSlots: exactly two candidate times may be offered. If
	// NoteOnly is set (manual approval), a selected slot still yields a
	// "noted" outcome, never "booked".
	RulingOfferSlots AppointmentRuling = "offer_slots"
)

// AppointmentDecision is the policy engine's output.
type AppointmentDecision struct {
	Ruling       AppointmentRuling
	Doctor       clinic.StaffMember
	Alternatives []clinic.StaffMember
	Slots        []string
	// NoteOnly forces the "noted" outcome on slot selection.
	NoteOnly bool
}

// candidateSlots are the two offers made for an eligible doctor. Fixed
// rather than schedule-derived: real availability lives in the practice
// management system, which is outside this simulation.
var candidateSlots = []string{"tomorrow at 10:15 AM", "Thursday at 2:30 PM"}

// DecideAppointment resolves doctor eligibility and the business-hours
// obligation. Pure function over (doctor, hours flag, staff directory).
func DecideAppointment(doctor clinic.StaffMember, businessHours bool, cfg *clinic.Config) AppointmentDecision {
	if !doctor.BookingRules.AcceptsNewPatients {
		return AppointmentDecision{
			Ruling:       RulingRefuse,
			Doctor:       doctor,
			Alternatives: cfg.AcceptingDoctors(),
		}
	}

	if !businessHours {
		return AppointmentDecision{
			Ruling:   RulingAfterHours,
			Doctor:   doctor,
			NoteOnly: true,
		}
	}

	return AppointmentDecision{
		Ruling:   RulingOfferSlots,
		Doctor:   doctor,
		Slots:    candidateSlots,
		NoteOnly: doctor.BookingRules.RequiresManualApproval,
	}
}

// doctorMention classifies how a message referred to a doctor.
type doctorMention int

const (
	mentionNone doctorMention = iota
	mentionAny
	mentionKnown
	mentionUnknown
)

var anyDoctorPhrases = []string{
	"any doctor", "anyone", "any gp", "whoever", "first available",
	"doesn't matter", "dont mind", "don't mind", "no preference",
	"earliest", "soonest",
}

var doctorRefRE = regexp.MustCompile(`(?i)\b(?:dr\.?|doctor)\s+([a-z]+)`)

// detectDoctorMention finds which staff member a message refers to.
// A staff-name token only counts when it sits in doctor position: right
// after a dr/doctor title, or as part of the doctor's full name. Patients
// share surnames with doctors; a bare token is not a request. "Any doctor"
// requests resolve to the first eligible doctor in directory order.
func detectDoctorMention(message string, cfg *clinic.Config) (clinic.StaffMember, doctorMention) {
	msg := strings.ToLower(message)

	for _, ref := range doctorRefRE.FindAllStringSubmatch(msg, -1) {
		for _, s := range cfg.Staff {
			if staffNameHasToken(s.Name, ref[1]) {
				return s, mentionKnown
			}
		}
	}

	for _, s := range cfg.Staff {
		if full := bareStaffName(s.Name); full != "" && strings.Contains(msg, full) {
			return s, mentionKnown
		}
	}

	if matchesAny(msg, anyDoctorPhrases) {
		if accepting := cfg.AcceptingDoctors(); len(accepting) > 0 {
			return accepting[0], mentionAny
		}
		return clinic.StaffMember{}, mentionUnknown
	}

	if doctorRefRE.MatchString(msg) {
		return clinic.StaffMember{}, mentionUnknown
	}

	return clinic.StaffMember{}, mentionNone
}

// staffNameHasToken reports whether word is one of the name's tokens,
// ignoring the title.
func staffNameHasToken(name, word string) bool {
	for _, token := range strings.Fields(strings.ToLower(name)) {
		token = strings.Trim(token, ".")
		if token == "dr" || len(token) < 3 {
			continue
		}
		if token == word {
			return true
		}
	}
	return false
}

// bareStaffName strips the title, e.g. "Dr. Sarah Chen" -> "sarah chen".
func bareStaffName(name string) string {
	var kept []string
	for _, token := range strings.Fields(strings.ToLower(name)) {
		if strings.Trim(token, ".") == "dr" {
			continue
		}
		kept = append(kept, token)
	}
	if len(kept) < 2 {
		return ""
	}
	return strings.Join(kept, " ")
}

// chooseSlot matches a patient reply against the offered slots, returning
// the index or -1.
func chooseSlot(message string, slots []string) int {
	msg := strings.ToLower(message)

	ordinals := [][]string{
		{"first", "the 1st", "option 1", "option one"},
		{"second", "the 2nd", "option 2", "option two"},
	}
	for i, words := range ordinals {
		if i >= len(slots) {
			break
		}
		if matchesAny(msg, words) {
			return i
		}
	}

	// Fall back to matching a distinctive fragment of the slot itself,
	// e.g. "10:15" or "thursday".
	for i, slot := range slots {
		for _, token := range strings.Fields(strings.ToLower(slot)) {
			if len(token) < 4 {
				continue
			}
			if strings.Contains(msg, token) {
				return i
			}
		}
	}
	return -1
}

// doctorNames renders staff names for utterance fields.
func doctorNames(staff []clinic.StaffMember) string {
	if len(staff) == 0 {
		return "no doctors are currently taking new patients"
	}
	names := make([]string, len(staff))
	for i, s := range staff {
		names[i] = s.Name
	}
	return strings.Join(names, " and ")
}
