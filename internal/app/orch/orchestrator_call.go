package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Callhub/internal/app"
	"github.com/dkeye/Callhub/internal/core"
	"github.com/dkeye/Callhub/internal/domain"
	"github.com/rs/zerolog/log"
)

// Reasons carried by call_failed.
const (
	reasonCallerMismatch = "caller_mismatch"
	reasonInvalidID      = "invalid_user_id"
	reasonSelfCall       = "self_call"
	reasonAlreadyInCall  = "already_in_call"
	reasonInvalidMedia   = "invalid_call_type"
)

func (o *Orchestrator) onCallInitiate(conn domain.ConnID, user domain.UserID, e core.CallInitiate) {
	receiver, err := domain.ParseUserID(e.ReceiverID)
	if err != nil {
		o.emitConn(user, conn, core.CallFailed{Reason: reasonInvalidID})
		return
	}
	if idOf(e.CallerID) != user {
		o.emitConn(user, conn, core.CallFailed{ReceiverID: receiver, Reason: reasonCallerMismatch})
		return
	}
	caller := user
	media := domain.MediaType(e.CallType)
	if !media.Valid() {
		o.emitConn(user, conn, core.CallFailed{ReceiverID: receiver, Reason: reasonInvalidMedia})
		return
	}
	name := domain.ClampName(e.CallerName)

	h, err := o.Calls.Initiate(caller, receiver, media, name, e.CallerAvatar)
	switch {
	case errors.Is(err, domain.ErrBusy):
		log.Info().Str("module", "orch").Str("caller", string(caller)).Str("receiver", string(receiver)).Msg("receiver busy")
		o.emit(caller, core.CallBusy{ReceiverID: receiver})
		return
	case errors.Is(err, domain.ErrSelfCall):
		o.emitConn(user, conn, core.CallFailed{ReceiverID: receiver, Reason: reasonSelfCall})
		return
	case errors.Is(err, domain.ErrCallerBusy):
		o.emitConn(user, conn, core.CallFailed{ReceiverID: receiver, Reason: reasonAlreadyInCall})
		return
	case err != nil:
		o.drop(conn, e, "initiate_failed")
		return
	}

	o.emit(receiver, core.CallIncoming{
		CallerID:     caller,
		CallerName:   name,
		CallerAvatar: e.CallerAvatar,
		CallType:     media,
	})

	params := domain.CallRecordParams{
		CallerID:   caller,
		ReceiverID: receiver,
		MediaType:  media,
		Status:     domain.RecordOngoing,
		StartedAt:  o.now(),
	}
	if !o.Tasks.Submit("call_record_create", func(ctx context.Context) error {
		return o.createRecord(ctx, h, params)
	}) {
		h.Resolve("")
	}
	o.Tasks.Submit("push_call_incoming", func(ctx context.Context) error {
		return o.pushIncoming(ctx, caller, receiver, media, name)
	})
}

func (o *Orchestrator) onCallAccept(conn domain.ConnID, user domain.UserID, e core.CallAccept) {
	caller, receiver := idOf(e.CallerID), idOf(e.ReceiverID)
	if receiver != user {
		o.drop(conn, e, "user_mismatch")
		return
	}
	deliveries, rec, err := o.Calls.Accept(caller, receiver)
	if err != nil {
		o.drop(conn, e, "state_mismatch")
		return
	}
	accepted := core.CallAccepted{CallerID: caller, ReceiverID: receiver}
	o.emit(caller, accepted)
	o.emitExcept(receiver, conn, accepted)
	o.flush(deliveries)
	o.updateRecord("call_record_accept", rec, domain.RecordOngoing, nil)
}

func (o *Orchestrator) onCallDecline(conn domain.ConnID, user domain.UserID, e core.CallDecline) {
	caller, receiver := idOf(e.CallerID), idOf(e.ReceiverID)
	if receiver != user {
		o.drop(conn, e, "user_mismatch")
		return
	}
	ended, err := o.Calls.Decline(caller, receiver)
	if err != nil {
		o.drop(conn, e, "state_mismatch")
		return
	}
	declined := core.CallDeclined{CallerID: caller, ReceiverID: receiver}
	o.emit(caller, declined)
	o.emitExcept(receiver, conn, declined)
	at := o.now()
	o.updateRecord("call_record_decline", ended.Record, domain.RecordDeclined, &at)
}

func (o *Orchestrator) onCallEnd(conn domain.ConnID, user domain.UserID, e core.CallEnd) {
	caller, receiver := idOf(e.CallerID), idOf(e.ReceiverID)
	ended, err := o.Calls.End(caller, receiver, user)
	if err != nil {
		o.drop(conn, e, "state_mismatch")
		return
	}
	status := domain.RecordCanceled
	if ended.WasInCall {
		status = domain.RecordCompleted
	}
	out := core.CallEnded{CallerID: caller, ReceiverID: receiver, EndedBy: user, Status: status}
	peer := ended.Peer(user)
	o.emit(peer, out)
	o.emitExcept(user, conn, out)

	at := o.now()
	o.updateRecord("call_record_end", ended.Record, status, &at)
	o.Tasks.Submit("push_call_ended", func(ctx context.Context) error {
		return o.pushEnded(ctx, ended, user, status)
	})
}

func (o *Orchestrator) createRecord(ctx context.Context, h *app.RecordHandle, p domain.CallRecordParams) (err error) {
	var id domain.CallRecordID
	defer func() { h.Resolve(id) }()
	id, err = o.History.CreateCallRecord(ctx, p)
	if err != nil {
		id = ""
		log.Warn().Err(err).Str("module", "orch").Str("caller", string(p.CallerID)).Str("receiver", string(p.ReceiverID)).Msg("call record not created")
	}
	return err
}

// updateRecord waits in the background for the record id, then writes the
// new status. A record that was never created is skipped, and so is a change
// overtaken by a later one.
func (o *Orchestrator) updateRecord(name string, h *app.RecordHandle, status domain.RecordStatus, endedAt *time.Time) {
	if h == nil {
		return
	}
	seq := h.Next()
	o.Tasks.Submit(name, func(ctx context.Context) error {
		id, ok := h.Await(ctx)
		if !ok {
			return nil
		}
		written, err := h.Apply(seq, func() error {
			return o.History.UpdateCallRecord(ctx, id, status, endedAt)
		})
		if !written {
			log.Debug().Str("module", "orch").Str("record", string(id)).Str("status", string(status)).Msg("stale record update skipped")
		}
		return err
	})
}
