package conversation

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() *Handler {
	lib := NewFallbackLibrary(1)
	collab := NewScriptedCollaborator(lib)
	validator := NewResponseValidator(lib, nil)
	inbound := NewInboundEngine(collab, validator, nil, nil)
	outbound := NewOutboundEngine(collab, validator, nil, nil)
	return NewHandler(NewService(inbound, outbound), nil)
}

func postJSON(t *testing.T, handle http.HandlerFunc, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handle(rec, req)
	return rec
}

func TestHandlerStartInbound(t *testing.T) {
	h := newTestHandler()

	rec := postJSON(t, h.StartInbound, InboundStartRequest{
		Clinic: *testClinic(),
		Day:    "monday",
		Time:   "10:00",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp TurnResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StateGreeting, resp.State.CurrentState)
	assert.NotEmpty(t, resp.State.ConversationID)
	assert.NotEmpty(t, resp.Reply)
}

func TestHandlerInboundMessageRoundTrip(t *testing.T) {
	h := newTestHandler()
	cfg := testClinic()

	rec := postJSON(t, h.StartInbound, InboundStartRequest{Clinic: *cfg, Day: "monday", Time: "10:00"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var started TurnResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&started))

	// The state from the previous response is the only thing the client
	// sends back; the server holds nothing.
	rec = postJSON(t, h.InboundMessage, MessageRequest{
		State:   started.State,
		Message: "I'd like to book an appointment",
		Clinic:  *cfg,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp TurnResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StateIdentify, resp.State.CurrentState)
	assert.Equal(t, started.State.ConversationID, resp.State.ConversationID)
}

func TestHandlerRejectsCompletedConversation(t *testing.T) {
	h := newTestHandler()
	cfg := testClinic()

	rec := postJSON(t, h.StartInbound, InboundStartRequest{Clinic: *cfg, Day: "monday", Time: "10:00"})
	var started TurnResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&started))

	rec = postJSON(t, h.InboundMessage, MessageRequest{
		State:   started.State,
		Message: "I'm having chest pain",
		Clinic:  *cfg,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var done TurnResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&done))
	require.True(t, done.State.IsComplete)

	rec = postJSON(t, h.InboundMessage, MessageRequest{
		State:   done.State,
		Message: "hello?",
		Clinic:  *cfg,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerStartOutbound(t *testing.T) {
	h := newTestHandler()

	rec := postJSON(t, h.StartOutbound, OutboundStartRequest{
		Clinic:      *testClinic(),
		PatientName: "Jane Doe",
		Medication:  "lisinopril",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp TurnResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StateOpening, resp.State.CurrentState)
	assert.Contains(t, resp.Reply, "lisinopril")
}

func TestHandlerRejectsMalformedBody(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.StartInbound(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	rec = httptest.NewRecorder()
	h.InboundMessage(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
