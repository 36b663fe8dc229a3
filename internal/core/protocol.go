package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
)

type EventType string

const (
	EventJoin              EventType = "join"
	EventStartTyping       EventType = "start_typing"
	EventStopTyping        EventType = "stop_typing"
	EventJoinConversation  EventType = "join_conversation"
	EventLeaveConversation EventType = "leave_conversation"
	EventCallInitiate      EventType = "call_initiate"
	EventCallAccept        EventType = "call_accept"
	EventCallDecline       EventType = "call_decline"
	EventCallEnd           EventType = "call_end"
	EventWebRTCOffer       EventType = "webrtc_offer"
	EventWebRTCAnswer      EventType = "webrtc_answer"
	EventWebRTCIce         EventType = "webrtc_ice"
	EventPing              EventType = "ping"
	EventDisconnect        EventType = "disconnect"
)

var (
	ErrBadEnvelope  = errors.New("bad envelope")
	ErrUnknownEvent = errors.New("unknown event")
	ErrInvalidEvent = errors.New("invalid event")
)

// Inbound is the closed set of events a client can send. Disconnect is
// produced by the transport, never decoded.
type Inbound interface {
	Type() EventType
}

type Join struct {
	UserID string `json:"userId" validate:"required,max=64"`
}

type StartTyping struct {
	ConversationID string `json:"conversationId" validate:"required"`
	UserID         string `json:"userId" validate:"required,max=64"`
	UserName       string `json:"userName" validate:"required"`
}

type StopTyping struct {
	ConversationID string `json:"conversationId" validate:"required"`
	UserID         string `json:"userId" validate:"required,max=64"`
	UserName       string `json:"userName" validate:"required"`
}

type JoinConversation struct {
	ConversationID string `json:"conversationId" validate:"required"`
	UserID         string `json:"userId" validate:"required,max=64"`
}

type LeaveConversation struct {
	ConversationID string `json:"conversationId" validate:"required"`
	UserID         string `json:"userId" validate:"required,max=64"`
}

type CallInitiate struct {
	CallerID     string `json:"callerId" validate:"required,max=64"`
	ReceiverID   string `json:"receiverId" validate:"required,max=64"`
	CallType     string `json:"callType" validate:"required,oneof=audio video"`
	CallerName   string `json:"callerName,omitempty"`
	CallerAvatar string `json:"callerAvatar,omitempty" validate:"omitempty,max=2048"`
}

type CallAccept struct {
	CallerID   string `json:"callerId" validate:"required,max=64"`
	ReceiverID string `json:"receiverId" validate:"required,max=64"`
}

type CallDecline struct {
	CallerID   string `json:"callerId" validate:"required,max=64"`
	ReceiverID string `json:"receiverId" validate:"required,max=64"`
}

type CallEnd struct {
	CallerID   string `json:"callerId" validate:"required,max=64"`
	ReceiverID string `json:"receiverId" validate:"required,max=64"`
}

type WebRTCOffer struct {
	ReceiverID string                    `json:"receiverId" validate:"required,max=64"`
	SDP        webrtc.SessionDescription `json:"sdp"`
}

type WebRTCAnswer struct {
	CallerID string                    `json:"callerId" validate:"required,max=64"`
	SDP      webrtc.SessionDescription `json:"sdp"`
}

type WebRTCIce struct {
	ReceiverID string                  `json:"receiverId" validate:"required,max=64"`
	Candidate  webrtc.ICECandidateInit `json:"candidate"`
}

type Ping struct{}

type Disconnect struct{}

func (Join) Type() EventType              { return EventJoin }
func (StartTyping) Type() EventType       { return EventStartTyping }
func (StopTyping) Type() EventType        { return EventStopTyping }
func (JoinConversation) Type() EventType  { return EventJoinConversation }
func (LeaveConversation) Type() EventType { return EventLeaveConversation }
func (CallInitiate) Type() EventType      { return EventCallInitiate }
func (CallAccept) Type() EventType        { return EventCallAccept }
func (CallDecline) Type() EventType       { return EventCallDecline }
func (CallEnd) Type() EventType           { return EventCallEnd }
func (WebRTCOffer) Type() EventType       { return EventWebRTCOffer }
func (WebRTCAnswer) Type() EventType      { return EventWebRTCAnswer }
func (WebRTCIce) Type() EventType         { return EventWebRTCIce }
func (Ping) Type() EventType              { return EventPing }
func (Disconnect) Type() EventType        { return EventDisconnect }

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeInbound parses one client frame into its variant and checks the
// required fields. Any error means the frame should be dropped.
func DecodeInbound(data []byte) (Inbound, error) {
	var env struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}

	switch env.Type {
	case EventJoin:
		return decodeAs[Join](data)
	case EventStartTyping:
		return decodeAs[StartTyping](data)
	case EventStopTyping:
		return decodeAs[StopTyping](data)
	case EventJoinConversation:
		return decodeAs[JoinConversation](data)
	case EventLeaveConversation:
		return decodeAs[LeaveConversation](data)
	case EventCallInitiate:
		return decodeAs[CallInitiate](data)
	case EventCallAccept:
		return decodeAs[CallAccept](data)
	case EventCallDecline:
		return decodeAs[CallDecline](data)
	case EventCallEnd:
		return decodeAs[CallEnd](data)
	case EventWebRTCOffer:
		ev, err := decodeAs[WebRTCOffer](data)
		if err != nil {
			return nil, err
		}
		return ev, checkSDP(ev.(WebRTCOffer).SDP, webrtc.SDPTypeOffer)
	case EventWebRTCAnswer:
		ev, err := decodeAs[WebRTCAnswer](data)
		if err != nil {
			return nil, err
		}
		return ev, checkSDP(ev.(WebRTCAnswer).SDP, webrtc.SDPTypeAnswer)
	case EventWebRTCIce:
		ev, err := decodeAs[WebRTCIce](data)
		if err != nil {
			return nil, err
		}
		return ev, checkCandidate(ev.(WebRTCIce).Candidate)
	case EventPing:
		return Ping{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

func decodeAs[T Inbound](data []byte) (Inbound, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := validate.Struct(ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, ev.Type(), err)
	}
	return ev, nil
}

func checkSDP(desc webrtc.SessionDescription, want webrtc.SDPType) error {
	if desc.Type != want {
		return fmt.Errorf("%w: sdp type %q, want %q", ErrInvalidEvent, desc.Type, want)
	}
	if strings.TrimSpace(desc.SDP) == "" {
		return fmt.Errorf("%w: empty sdp", ErrInvalidEvent)
	}
	return nil
}

// An empty candidate string is the end-of-candidates marker and is relayed as is.
func checkCandidate(c webrtc.ICECandidateInit) error {
	if c.Candidate == "" {
		return nil
	}
	if _, err := ice.UnmarshalCandidate(strings.TrimPrefix(c.Candidate, "candidate:")); err != nil {
		return fmt.Errorf("%w: candidate: %v", ErrInvalidEvent, err)
	}
	return nil
}
