package orch

import (
	"context"

	"github.com/dkeye/Callhub/internal/core"
	"github.com/dkeye/Callhub/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) onJoin(conn domain.ConnID, e core.Join) {
	user, err := domain.ParseUserID(e.UserID)
	if err != nil {
		o.drop(conn, e, "invalid_user")
		return
	}
	if prev, ok := o.Presence.Resolve(conn); ok {
		if prev == user {
			return
		}
		log.Info().Str("module", "orch").Str("conn", string(conn)).Str("from", string(prev)).Str("to", string(user)).Msg("rebinding connection")
		o.unbind(conn, prev)
	}

	count := o.Presence.Register(user, conn)
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("user", string(user)).Int("connections", count).Msg("join")

	if count == 1 {
		o.Tasks.Submit("presence_online", func(ctx context.Context) error {
			return o.Mirror.SetOnline(ctx, user)
		})
		o.Tasks.Submit("mark_delivered", func(ctx context.Context) error {
			return o.markDelivered(ctx, user)
		})
	}
	o.broadcast(core.OnlineUsers{UserIDs: o.Presence.OnlineUserIDs()})

	// A receiver's new device must ring too.
	if sl, ok := o.Calls.Slot(user); ok && sl.Role == domain.RoleReceiver && sl.Status == domain.StatusCalling {
		o.emitConn(user, conn, core.CallIncoming{
			CallerID:     sl.Peer,
			CallerName:   sl.CallerName,
			CallerAvatar: sl.CallerAvatar,
			CallType:     sl.Media,
		})
	}
}

func (o *Orchestrator) onDisconnect(conn domain.ConnID) {
	user, ok := o.Presence.Resolve(conn)
	if !ok {
		return
	}
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("user", string(user)).Msg("disconnect")
	o.unbind(conn, user)
}

// unbind removes one connection and tears the user down if it was the last.
func (o *Orchestrator) unbind(conn domain.ConnID, user domain.UserID) {
	if left := o.Presence.Unregister(user, conn); left > 0 {
		return
	}
	o.teardown(user)
}

// teardown runs once a user has no connection left, in this order:
//  1. an active call is hung up: the peer gets call_ended, the record is MISSED;
//  2. the user leaves every conversation, remaining members get conversation_left;
//  3. everyone gets the new online list and the presence mirror is told.
func (o *Orchestrator) teardown(user domain.UserID) {
	if ended, ok := o.Calls.Drop(user); ok {
		peer := ended.Peer(user)
		o.emit(peer, core.CallEnded{
			CallerID:   ended.Caller,
			ReceiverID: ended.Receiver,
			EndedBy:    user,
			Status:     domain.RecordMissed,
		})
		at := o.now()
		o.updateRecord("call_record_missed", ended.Record, domain.RecordMissed, &at)
		log.Info().Str("module", "orch").Str("user", string(user)).Str("peer", string(peer)).Msg("call dropped on disconnect")
	}

	for _, conv := range o.Rooms.RemoveUser(user) {
		left := core.ConversationLeft{ConversationID: conv, UserID: user}
		for _, m := range o.Rooms.MembersOf(conv) {
			o.emit(m, left)
		}
	}

	o.broadcast(core.OnlineUsers{UserIDs: o.Presence.OnlineUserIDs()})
	o.Tasks.Submit("presence_offline", func(ctx context.Context) error {
		return o.Mirror.SetOffline(ctx, user)
	})
	log.Info().Str("module", "orch").Str("user", string(user)).Msg("user offline")
}

// markDelivered runs as a task; the emission goes back through the loop.
func (o *Orchestrator) markDelivered(ctx context.Context, user domain.UserID) error {
	msgs, err := o.Receipts.MarkDelivered(ctx, user)
	if err != nil || len(msgs) == 0 {
		return err
	}
	return o.post(ctx, func() {
		for _, m := range msgs {
			o.emit(m.SenderID, core.MessageDelivered{
				MessageID:      m.MessageID,
				ConversationID: m.ConversationID,
				RecipientID:    m.RecipientID,
			})
		}
	})
}
