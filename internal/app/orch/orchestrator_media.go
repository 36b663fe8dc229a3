package orch

import (
	"github.com/dkeye/Callhub/internal/app"
	"github.com/dkeye/Callhub/internal/core"
	"github.com/dkeye/Callhub/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) onOffer(conn domain.ConnID, user domain.UserID, e core.WebRTCOffer) {
	receiver := idOf(e.ReceiverID)
	if err := o.Calls.Offer(user, receiver); err != nil {
		o.drop(conn, e, "state_mismatch")
		return
	}
	o.emit(receiver, core.OfferRelay{CallerID: user, SDP: e.SDP})
	log.Debug().Str("module", "orch").Str("from", string(user)).Str("to", string(receiver)).Msg("offer relayed")
}

// onAnswer is the only place negotiation completes: the answer goes to the
// caller first, then any candidates that were waiting for it.
func (o *Orchestrator) onAnswer(conn domain.ConnID, user domain.UserID, e core.WebRTCAnswer) {
	caller := idOf(e.CallerID)
	deliveries, err := o.Calls.Answer(user, caller)
	if err != nil {
		o.drop(conn, e, "state_mismatch")
		return
	}
	o.emit(caller, core.AnswerRelay{ReceiverID: user, SDP: e.SDP})
	o.flush(deliveries)
	log.Debug().Str("module", "orch").Str("from", string(user)).Str("to", string(caller)).Int("flushed", len(deliveries)).Msg("answer relayed")
}

func (o *Orchestrator) onIce(conn domain.ConnID, user domain.UserID, e core.WebRTCIce) {
	receiver := idOf(e.ReceiverID)
	forward, err := o.Calls.Candidate(user, receiver, e.Candidate)
	if err != nil {
		o.drop(conn, e, "state_mismatch")
		return
	}
	if forward {
		o.emit(receiver, core.IceRelay{SenderID: user, Candidate: e.Candidate})
	}
}

func (o *Orchestrator) flush(deliveries []app.Delivery) {
	for _, d := range deliveries {
		for _, c := range d.Candidates {
			o.emit(d.To, core.IceRelay{SenderID: d.From, Candidate: c.Candidate})
		}
	}
}
