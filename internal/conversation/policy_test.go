package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-voice-agent/internal/clinic"
)

// testClinic is the fixture clinic shared by the engine tests: open
// Monday-Friday 08:00-18:00 with three doctors in different booking
// postures.
func testClinic() *clinic.Config {
	return &clinic.Config{
		ClinicID: "northside",
		Name:     "Northside Family Clinic",
		Schedule: clinic.Schedule{
			"monday":    {Start: "08:00", End: "18:00", IsOpen: true},
			"tuesday":   {Start: "08:00", End: "18:00", IsOpen: true},
			"wednesday": {Start: "08:00", End: "18:00", IsOpen: true},
			"thursday":  {Start: "08:00", End: "18:00", IsOpen: true},
			"friday":    {Start: "08:00", End: "18:00", IsOpen: true},
		},
		Staff: []clinic.StaffMember{
			{Name: "Dr. Sarah Chen", Role: "GP", BookingRules: clinic.BookingRules{AcceptsNewPatients: true}},
			{Name: "Dr. James Okafor", Role: "GP", BookingRules: clinic.BookingRules{AcceptsNewPatients: false}},
			{Name: "Dr. Priya Nair", Role: "GP", BookingRules: clinic.BookingRules{AcceptsNewPatients: true, RequiresManualApproval: true}},
		},
		Persona: clinic.Persona{AgentName: "Ava", Tone: "warm"},
	}
}

func staffNamed(t *testing.T, cfg *clinic.Config, name string) clinic.StaffMember {
	t.Helper()
	doc, ok := cfg.DoctorByName(name)
	require.True(t, ok, "fixture clinic should know %q", name)
	return doc
}

func TestDecideAppointmentRefusesNonAcceptingDoctor(t *testing.T) {
	cfg := testClinic()
	doc := staffNamed(t, cfg, "Dr. James Okafor")

	// Refusal applies during and outside business hours alike.
	for _, hours := range []bool{true, false} {
		decision := DecideAppointment(doc, hours, cfg)
		assert.Equal(t, RulingRefuse, decision.Ruling)
		require.Len(t, decision.Alternatives, 2)
		assert.Equal(t, "Dr. Sarah Chen", decision.Alternatives[0].Name)
		assert.Equal(t, "Dr. Priya Nair", decision.Alternatives[1].Name)
		assert.Empty(t, decision.Slots)
	}
}

func TestDecideAppointmentAfterHoursNotesOnly(t *testing.T) {
	cfg := testClinic()
	doc := staffNamed(t, cfg, "Dr. Sarah Chen")

	decision := DecideAppointment(doc, false, cfg)
	assert.Equal(t, RulingAfterHours, decision.Ruling)
	assert.True(t, decision.NoteOnly)
	assert.Empty(t, decision.Slots)
}

func TestDecideAppointmentOffersSlots(t *testing.T) {
	cfg := testClinic()
	doc := staffNamed(t, cfg, "Dr. Sarah Chen")

	decision := DecideAppointment(doc, true, cfg)
	assert.Equal(t, RulingOfferSlots, decision.Ruling)
	assert.Len(t, decision.Slots, 2)
	assert.False(t, decision.NoteOnly)
}

func TestDecideAppointmentManualApprovalNeverBooks(t *testing.T) {
	cfg := testClinic()
	doc := staffNamed(t, cfg, "Dr. Priya Nair")

	decision := DecideAppointment(doc, true, cfg)
	assert.Equal(t, RulingOfferSlots, decision.Ruling)
	assert.True(t, decision.NoteOnly)
}

func TestDetectDoctorMention(t *testing.T) {
	cfg := testClinic()

	tests := []struct {
		name        string
		message     string
		wantMention doctorMention
		wantDoctor  string
	}{
		{"titled surname", "I'd like to see Dr Chen please", mentionKnown, "Dr. Sarah Chen"},
		{"titled first name", "can I book with Dr Sarah", mentionKnown, "Dr. Sarah Chen"},
		{"full name without title", "put me down with sarah chen", mentionKnown, "Dr. Sarah Chen"},
		{"any doctor", "any doctor is fine", mentionAny, "Dr. Sarah Chen"},
		{"no preference", "I have no preference at all", mentionAny, "Dr. Sarah Chen"},
		{"unknown doctor", "I always see Dr Williams", mentionUnknown, ""},
		{"no mention", "sometime next week would be good", mentionNone, ""},
		// A caller sharing a surname with a doctor is not asking for them.
		{"patient shares surname", "My name is John Chen, date of birth 01/02/1990", mentionNone, ""},
		{"bare first name", "can I book with Sarah", mentionNone, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, mention := detectDoctorMention(tt.message, cfg)
			assert.Equal(t, tt.wantMention, mention)
			assert.Equal(t, tt.wantDoctor, doc.Name)
		})
	}
}

func TestChooseSlot(t *testing.T) {
	slots := []string{"tomorrow at 10:15 AM", "Thursday at 2:30 PM"}

	tests := []struct {
		name    string
		message string
		want    int
	}{
		{"ordinal first", "the first one please", 0},
		{"ordinal second", "second works better", 1},
		{"time fragment", "10:15 suits me", 0},
		{"day fragment", "thursday is good", 1},
		{"neither", "neither of those work", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chooseSlot(tt.message, slots))
		})
	}
}

func TestDoctorNames(t *testing.T) {
	cfg := testClinic()
	assert.Equal(t, "Dr. Sarah Chen and Dr. Priya Nair", doctorNames(cfg.AcceptingDoctors()))
	assert.Equal(t, "no doctors are currently taking new patients", doctorNames(nil))
}
