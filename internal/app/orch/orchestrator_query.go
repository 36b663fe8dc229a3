package orch

import (
	"context"

	"github.com/dkeye/Callhub/internal/domain"
)

type CallView struct {
	Peer   domain.UserID     `json:"peerId"`
	Role   domain.Role       `json:"role"`
	Status domain.CallStatus `json:"status"`
	Media  domain.MediaType  `json:"callType"`
}

type PresenceView struct {
	UserID        domain.UserID           `json:"userId"`
	Online        bool                    `json:"online"`
	Connections   int                     `json:"connections"`
	Conversations []domain.ConversationID `json:"conversations"`
	Call          *CallView               `json:"call,omitempty"`
}

func (o *Orchestrator) OnlineUsers(ctx context.Context) ([]domain.UserID, error) {
	var out []domain.UserID
	err := o.Query(ctx, func() { out = o.Presence.OnlineUserIDs() })
	return out, err
}

func (o *Orchestrator) ConversationMembers(ctx context.Context, conv domain.ConversationID) ([]domain.UserID, error) {
	var out []domain.UserID
	err := o.Query(ctx, func() { out = o.Rooms.MembersOf(conv) })
	return out, err
}

func (o *Orchestrator) UserPresence(ctx context.Context, user domain.UserID) (PresenceView, error) {
	var v PresenceView
	err := o.Query(ctx, func() {
		v = o.presenceView(user)
	})
	return v, err
}

func (o *Orchestrator) presenceView(user domain.UserID) PresenceView {
	v := PresenceView{
		UserID:        user,
		Online:        o.Presence.IsOnline(user),
		Connections:   len(o.Presence.ConnectionsOf(user)),
		Conversations: o.Rooms.RoomsOf(user),
	}
	if sl, ok := o.Calls.Slot(user); ok {
		v.Call = &CallView{Peer: sl.Peer, Role: sl.Role, Status: sl.Status, Media: sl.Media}
	}
	return v
}
