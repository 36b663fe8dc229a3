package orch

import (
	"context"

	"github.com/dkeye/Callhub/internal/core"
	"github.com/dkeye/Callhub/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) onJoinConversation(conn domain.ConnID, user domain.UserID, e core.JoinConversation) {
	if idOf(e.UserID) != user {
		o.drop(conn, e, "user_mismatch")
		return
	}
	conv := domain.ConversationID(e.ConversationID)
	if o.Rooms.Join(user, conv) {
		joined := core.ConversationJoined{ConversationID: conv, UserID: user}
		for _, m := range o.Rooms.MembersOf(conv) {
			o.emit(m, joined)
		}
		log.Info().Str("module", "orch").Str("user", string(user)).Str("conversation", string(conv)).Msg("conversation joined")
	}
	o.Tasks.Submit("mark_read", func(ctx context.Context) error {
		return o.markRead(ctx, conv, user)
	})
}

func (o *Orchestrator) onLeaveConversation(conn domain.ConnID, user domain.UserID, e core.LeaveConversation) {
	if idOf(e.UserID) != user {
		o.drop(conn, e, "user_mismatch")
		return
	}
	conv := domain.ConversationID(e.ConversationID)
	if !o.Rooms.Leave(user, conv) {
		return
	}
	left := core.ConversationLeft{ConversationID: conv, UserID: user}
	o.emit(user, left)
	for _, m := range o.Rooms.MembersOf(conv) {
		o.emit(m, left)
	}
	log.Info().Str("module", "orch").Str("user", string(user)).Str("conversation", string(conv)).Msg("conversation left")
}

// onTyping relays to the other users currently viewing the conversation.
func (o *Orchestrator) onTyping(conn domain.ConnID, user domain.UserID, convID, userID, name string, started bool) {
	if idOf(userID) != user {
		o.Metrics.Dropped("user_mismatch")
		log.Debug().Str("module", "orch").Str("conn", string(conn)).Msg("typing for another user dropped")
		return
	}
	conv := domain.ConversationID(convID)
	name = domain.ClampName(name)
	var out core.Outbound = core.UserStoppedTyping{ConversationID: conv, UserID: user, UserName: name}
	if started {
		out = core.UserTyping{ConversationID: conv, UserID: user, UserName: name}
	}
	for _, m := range o.Rooms.MembersOf(conv) {
		if m == user {
			continue
		}
		o.emit(m, out)
	}
}

func (o *Orchestrator) markRead(ctx context.Context, conv domain.ConversationID, reader domain.UserID) error {
	receipts, err := o.Receipts.MarkRead(ctx, conv, reader)
	if err != nil || len(receipts) == 0 {
		return err
	}
	return o.post(ctx, func() {
		for _, r := range receipts {
			o.emit(r.SenderID, core.MessagesMarkedRead{
				ConversationID: r.ConversationID,
				ReaderID:       r.ReaderID,
				MessageIDs:     r.MessageIDs,
			})
		}
	})
}
