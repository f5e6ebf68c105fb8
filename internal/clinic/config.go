// Package clinic provides the clinic configuration consumed read-only by
// the conversation engines. Records are created and edited elsewhere (the
// onboarding subsystem); nothing in this repo mutates them.
package clinic

import (
	"strconv"
	"strings"
)

// DayHours represents the opening window for a single day.
type DayHours struct {
	Start  string `json:"start"` // "08:00" in 24-hour format
	End    string `json:"end"`   // "18:00" in 24-hour format
	IsOpen bool   `json:"is_open"`
}

// Schedule maps lowercase weekday names to their hours.
type Schedule map[string]DayHours

// BookingRules controls how appointments may be offered for one doctor.
type BookingRules struct {
	AcceptsNewPatients     bool     `json:"accepts_new_patients"`
	RequiresManualApproval bool     `json:"requires_manual_approval"`
	Specializations        []string `json:"specializations,omitempty"`
}

// StaffMember is one entry in the clinic's staff directory.
type StaffMember struct {
	Name         string       `json:"name"`
	Role         string       `json:"role"` // e.g. "GP", "nurse", "admin"
	BookingRules BookingRules `json:"booking_rules"`
}

// Persona configures the agent's voice for a clinic.
type Persona struct {
	// AgentName is the name the agent introduces itself with.
	AgentName string `json:"agent_name,omitempty"`
	// Tone sets the communication style: "clinical", "warm", "professional".
	Tone string `json:"tone,omitempty"`
}

// Config holds clinic-specific configuration.
type Config struct {
	ClinicID string   `json:"clinic_id"`
	Name     string   `json:"name"`
	Phone    string   `json:"phone,omitempty"`
	Schedule Schedule `json:"schedule"`
	Staff    []StaffMember `json:"staff"`
	Persona  Persona       `json:"persona"`
	// EmergencyKeywords extend the built-in emergency lexicon.
	EmergencyKeywords []string `json:"emergency_keywords,omitempty"`
	// EmergencyAction is the scripted direction read to the caller when an
	// emergency is detected (e.g. "hang up and call 000").
	EmergencyAction string `json:"emergency_action,omitempty"`
	// EscalationKeywords extend the built-in transfer-request phrase set.
	EscalationKeywords []string `json:"escalation_keywords,omitempty"`
	// AllowedActions lists what the agent may do for this clinic,
	// e.g. ["book_appointment", "take_message", "transfer"].
	AllowedActions []string `json:"allowed_actions,omitempty"`
}

// IsOpenAt reports whether the clinic is open on the given weekday at the
// given "HH:MM" time. The window is inclusive of the start minute and
// exclusive of the end minute. Unknown days and unparseable times count as
// closed.
func (c *Config) IsOpenAt(day, hhmm string) bool {
	if c == nil {
		return false
	}
	hours, ok := c.Schedule[strings.ToLower(strings.TrimSpace(day))]
	if !ok || !hours.IsOpen {
		return false
	}
	m, ok := parseMinutes(hhmm)
	if !ok {
		return false
	}
	start, ok := parseMinutes(hours.Start)
	if !ok {
		return false
	}
	end, ok := parseMinutes(hours.End)
	if !ok {
		return false
	}
	return m >= start && m < end
}

// DoctorByName looks up a staff member by case-insensitive name match.
// Partial matches are accepted so "Dr Chen" finds "Dr. Sarah Chen".
func (c *Config) DoctorByName(name string) (StaffMember, bool) {
	if c == nil {
		return StaffMember{}, false
	}
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return StaffMember{}, false
	}
	for _, s := range c.Staff {
		have := strings.ToLower(s.Name)
		if have == needle || strings.Contains(have, strings.TrimPrefix(strings.TrimPrefix(needle, "dr. "), "dr ")) {
			return s, true
		}
	}
	return StaffMember{}, false
}

// AcceptingDoctors returns the staff members accepting new patients, in
// directory order.
func (c *Config) AcceptingDoctors() []StaffMember {
	if c == nil {
		return nil
	}
	var out []StaffMember
	for _, s := range c.Staff {
		if s.BookingRules.AcceptsNewPatients {
			out = append(out, s)
		}
	}
	return out
}

// ActionAllowed reports whether an action is in the allowed-actions list.
// An empty list allows everything.
func (c *Config) ActionAllowed(action string) bool {
	if c == nil {
		return false
	}
	if len(c.AllowedActions) == 0 {
		return true
	}
	for _, a := range c.AllowedActions {
		if strings.EqualFold(a, action) {
			return true
		}
	}
	return false
}

func parseMinutes(hhmm string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
