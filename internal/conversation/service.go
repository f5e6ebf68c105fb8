package conversation

import (
	"context"

	"github.com/wolfman30/clinic-voice-agent/internal/clinic"
)

// InboundStartRequest opens an inbound call. Day and Time pin the call's
// business-hours flag against the clinic schedule.
type InboundStartRequest struct {
	Clinic clinic.Config `json:"clinic"`
	Day    string        `json:"day"`
	Time   string        `json:"time"`
}

// OutboundStartRequest opens a medication follow-up call.
type OutboundStartRequest struct {
	Clinic      clinic.Config `json:"clinic"`
	PatientName string        `json:"patient_name"`
	Medication  string        `json:"medication"`
}

// MessageRequest carries one patient message plus the state returned by
// the previous turn. The service stores nothing between turns; whatever
// state the caller sends back is the conversation.
type MessageRequest struct {
	State   ConversationState `json:"state"`
	Message string            `json:"message"`
	Clinic  clinic.Config     `json:"clinic"`
}

// TurnResponse is the advanced state plus the utterance to speak.
type TurnResponse struct {
	State ConversationState `json:"state"`
	Reply string            `json:"reply"`
}

// Service fronts the two engines behind one stateless surface.
type Service struct {
	inbound  *InboundEngine
	outbound *OutboundEngine
}

func NewService(inbound *InboundEngine, outbound *OutboundEngine) *Service {
	if inbound == nil || outbound == nil {
		panic("conversation: service requires both engines")
	}
	return &Service{inbound: inbound, outbound: outbound}
}

func (s *Service) StartInbound(ctx context.Context, req InboundStartRequest) TurnResponse {
	st := s.inbound.Start(ctx, &req.Clinic, req.Day, req.Time)
	return TurnResponse{State: st, Reply: st.LastReply()}
}

func (s *Service) HandleInbound(ctx context.Context, req MessageRequest) (TurnResponse, error) {
	st, err := s.inbound.ProcessTurn(ctx, req.State, req.Message, &req.Clinic)
	if err != nil {
		return TurnResponse{}, err
	}
	return TurnResponse{State: st, Reply: st.LastReply()}, nil
}

func (s *Service) StartOutbound(ctx context.Context, req OutboundStartRequest) TurnResponse {
	st := s.outbound.Start(ctx, &req.Clinic, req.PatientName, req.Medication)
	return TurnResponse{State: st, Reply: st.LastReply()}
}

func (s *Service) HandleOutbound(ctx context.Context, req MessageRequest) (TurnResponse, error) {
	st, err := s.outbound.ProcessTurn(ctx, req.State, req.Message, &req.Clinic)
	if err != nil {
		return TurnResponse{}, err
	}
	return TurnResponse{State: st, Reply: st.LastReply()}, nil
}
