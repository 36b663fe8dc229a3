package core

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dkeye/Callhub/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Outbound is the closed set of events the server emits.
type Outbound interface {
	OutboundType() string
}

type OnlineUsers struct {
	UserIDs []domain.UserID `json:"userIds"`
}

type ConversationJoined struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	UserID         domain.UserID         `json:"userId"`
}

type ConversationLeft struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	UserID         domain.UserID         `json:"userId"`
}

type UserTyping struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	UserID         domain.UserID         `json:"userId"`
	UserName       string                `json:"userName"`
}

type UserStoppedTyping struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	UserID         domain.UserID         `json:"userId"`
	UserName       string                `json:"userName"`
}

type CallBusy struct {
	ReceiverID domain.UserID `json:"receiverId"`
}

type CallFailed struct {
	ReceiverID domain.UserID `json:"receiverId,omitempty"`
	Reason     string        `json:"reason"`
}

type CallIncoming struct {
	CallerID     domain.UserID    `json:"callerId"`
	CallerName   string           `json:"callerName,omitempty"`
	CallerAvatar string           `json:"callerAvatar,omitempty"`
	CallType     domain.MediaType `json:"callType"`
}

type CallAccepted struct {
	CallerID   domain.UserID `json:"callerId"`
	ReceiverID domain.UserID `json:"receiverId"`
}

type CallDeclined struct {
	CallerID   domain.UserID `json:"callerId"`
	ReceiverID domain.UserID `json:"receiverId"`
}

type CallEnded struct {
	CallerID   domain.UserID       `json:"callerId"`
	ReceiverID domain.UserID       `json:"receiverId"`
	EndedBy    domain.UserID       `json:"endedBy,omitempty"`
	Status     domain.RecordStatus `json:"status"`
}

// OfferRelay carries an offer to the receiver; CallerID is the sender.
type OfferRelay struct {
	CallerID domain.UserID             `json:"callerId"`
	SDP      webrtc.SessionDescription `json:"sdp"`
}

// AnswerRelay carries an answer back to the caller; ReceiverID is the sender.
type AnswerRelay struct {
	ReceiverID domain.UserID             `json:"receiverId"`
	SDP        webrtc.SessionDescription `json:"sdp"`
}

type IceRelay struct {
	SenderID  domain.UserID           `json:"senderId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type MessagesMarkedRead struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	ReaderID       domain.UserID         `json:"readerId"`
	MessageIDs     []string              `json:"messageIds"`
}

type MessageDelivered struct {
	MessageID      string                `json:"messageId"`
	ConversationID domain.ConversationID `json:"conversationId"`
	RecipientID    domain.UserID         `json:"recipientId"`
}

type Pong struct{}

func (OnlineUsers) OutboundType() string        { return "online-users" }
func (ConversationJoined) OutboundType() string { return "conversation_joined" }
func (ConversationLeft) OutboundType() string   { return "conversation_left" }
func (UserTyping) OutboundType() string         { return "user_typing" }
func (UserStoppedTyping) OutboundType() string  { return "user_stop_typing" }
func (CallBusy) OutboundType() string           { return "call_busy" }
func (CallFailed) OutboundType() string         { return "call_failed" }
func (CallIncoming) OutboundType() string       { return "call_incoming" }
func (CallAccepted) OutboundType() string       { return "call_accepted" }
func (CallDeclined) OutboundType() string       { return "call_declined" }
func (CallEnded) OutboundType() string          { return "call_ended" }
func (OfferRelay) OutboundType() string         { return "webrtc_offer" }
func (AnswerRelay) OutboundType() string        { return "webrtc_answer" }
func (IceRelay) OutboundType() string           { return "webrtc_ice" }
func (MessagesMarkedRead) OutboundType() string { return "messages_marked_read" }
func (MessageDelivered) OutboundType() string   { return "message_delivered" }
func (Pong) OutboundType() string               { return "pong" }

// EncodeOutbound renders an event as a flat JSON object with a leading "type" key.
func EncodeOutbound(o Outbound) (Frame, error) {
	body, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", o.OutboundType(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s: not an object", o.OutboundType())
	}
	typ, _ := json.Marshal(o.OutboundType())

	var buf bytes.Buffer
	buf.Grow(len(body) + len(typ) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(typ)
	if len(body) > 2 {
		buf.WriteByte(',')
	}
	buf.Write(body[1:])
	return buf.Bytes(), nil
}
