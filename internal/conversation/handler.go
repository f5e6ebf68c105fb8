package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// Handler wires HTTP requests to the conversation service.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service: service,
		logger:  logger.Component("conversation-handler"),
	}
}

// StartInbound handles POST /conversations/inbound/start.
func (h *Handler) StartInbound(w http.ResponseWriter, r *http.Request) {
	var req InboundStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode inbound start request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp := h.service.StartInbound(r.Context(), req)
	h.writeJSON(w, http.StatusCreated, resp)
}

// InboundMessage handles POST /conversations/inbound/message.
func (h *Handler) InboundMessage(w http.ResponseWriter, r *http.Request) {
	h.message(w, r, h.service.HandleInbound)
}

// StartOutbound handles POST /conversations/outbound/start.
func (h *Handler) StartOutbound(w http.ResponseWriter, r *http.Request) {
	var req OutboundStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode outbound start request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp := h.service.StartOutbound(r.Context(), req)
	h.writeJSON(w, http.StatusCreated, resp)
}

// OutboundMessage handles POST /conversations/outbound/message.
func (h *Handler) OutboundMessage(w http.ResponseWriter, r *http.Request) {
	h.message(w, r, h.service.HandleOutbound)
}

func (h *Handler) message(w http.ResponseWriter, r *http.Request, handle func(ctx context.Context, req MessageRequest) (TurnResponse, error)) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode message request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := handle(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrConversationComplete) {
			http.Error(w, "Conversation is already complete", http.StatusConflict)
			return
		}
		h.logger.Error("failed to process message", "error", err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
