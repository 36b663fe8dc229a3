package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Callhub/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Slot is one user's side of an active two-party call.
type Slot struct {
	Peer   domain.UserID
	Role   domain.Role
	Status domain.CallStatus
	Media  domain.MediaType
	Since  time.Time

	// Caller display data, kept so a late device of the receiver can be rung.
	CallerName   string
	CallerAvatar string
}

type BufferedCandidate struct {
	Candidate webrtc.ICECandidateInit
	At        time.Time
}

// Delivery is a batch of buffered candidates ready to be sent to To.
type Delivery struct {
	From       domain.UserID
	To         domain.UserID
	Candidates []BufferedCandidate
}

// Ended describes a call that was just torn down.
type Ended struct {
	Caller    domain.UserID
	Receiver  domain.UserID
	Media     domain.MediaType
	WasInCall bool
	Record    *RecordHandle
}

// Peer returns the other party from user's point of view.
func (e Ended) Peer(user domain.UserID) domain.UserID {
	if user == e.Caller {
		return e.Receiver
	}
	return e.Caller
}

// RecordHandle correlates a live call with the record the history backend
// creates for it. The id arrives asynchronously; Await blocks until it does.
// Status changes are numbered with Next and written through Apply, so a
// change that loses the race to a later one is never persisted over it.
type RecordHandle struct {
	ready chan struct{}
	id    domain.CallRecordID

	mu      sync.Mutex
	issued  uint64
	applied uint64
}

func NewRecordHandle() *RecordHandle {
	return &RecordHandle{ready: make(chan struct{})}
}

// Resolve must be called exactly once; an empty id means creation failed.
func (h *RecordHandle) Resolve(id domain.CallRecordID) {
	h.id = id
	close(h.ready)
}

func (h *RecordHandle) Await(ctx context.Context) (domain.CallRecordID, bool) {
	select {
	case <-h.ready:
		return h.id, h.id != ""
	case <-ctx.Done():
		return "", false
	}
}

// Next reserves the position of one status change, in event order.
func (h *RecordHandle) Next() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.issued++
	return h.issued
}

// Apply runs write for change seq unless a later change was already
// applied. Writes for the same record never overlap.
func (h *RecordHandle) Apply(seq uint64, write func() error) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if seq <= h.applied {
		return false, nil
	}
	h.applied = seq
	return true, write()
}

type direction struct{ from, to domain.UserID }

type pairKey struct{ a, b domain.UserID }

func keyOf(x, y domain.UserID) pairKey {
	if x < y {
		return pairKey{x, y}
	}
	return pairKey{y, x}
}

type negotiation struct {
	offered  bool
	answered bool
	record   *RecordHandle
}

// CallState holds call slots, the per-direction ICE buffer and the
// offer/answer progress of every active pair. Owned by the dispatcher loop.
type CallState struct {
	slots map[domain.UserID]*Slot
	ice   map[direction][]BufferedCandidate
	pairs map[pairKey]*negotiation
	now   func() time.Time
}

func NewCallState(now func() time.Time) *CallState {
	if now == nil {
		now = time.Now
	}
	return &CallState{
		slots: make(map[domain.UserID]*Slot),
		ice:   make(map[direction][]BufferedCandidate),
		pairs: make(map[pairKey]*negotiation),
		now:   now,
	}
}

func (s *CallState) Slot(user domain.UserID) (Slot, bool) {
	sl, ok := s.slots[user]
	if !ok {
		return Slot{}, false
	}
	return *sl, true
}

// ActiveCalls counts pairs, not slots.
func (s *CallState) ActiveCalls() int {
	return len(s.pairs)
}

// Consistent reports whether a and b hold slots pointing at each other.
func (s *CallState) Consistent(a, b domain.UserID) bool {
	sa, ok := s.slots[a]
	if !ok || sa.Peer != b {
		return false
	}
	sb, ok := s.slots[b]
	return ok && sb.Peer == a
}

// Initiate creates symmetric CALLING slots. The busy check and the slot
// writes happen in the same call, so no other event can slip in between.
func (s *CallState) Initiate(caller, receiver domain.UserID, media domain.MediaType, callerName, callerAvatar string) (*RecordHandle, error) {
	if caller == receiver {
		return nil, domain.ErrSelfCall
	}
	if _, busy := s.slots[receiver]; busy {
		return nil, domain.ErrBusy
	}
	if _, busy := s.slots[caller]; busy {
		return nil, domain.ErrCallerBusy
	}
	now := s.now()
	s.slots[caller] = &Slot{Peer: receiver, Role: domain.RoleCaller, Status: domain.StatusCalling, Media: media, Since: now}
	s.slots[receiver] = &Slot{
		Peer: caller, Role: domain.RoleReceiver, Status: domain.StatusCalling, Media: media, Since: now,
		CallerName: callerName, CallerAvatar: callerAvatar,
	}
	h := NewRecordHandle()
	s.pairs[keyOf(caller, receiver)] = &negotiation{record: h}
	log.Info().Str("module", "app.callstate").Str("caller", string(caller)).Str("receiver", string(receiver)).Str("media", string(media)).Msg("call initiated")
	return h, nil
}

// Accept moves the pair to IN_CALL. Accepting an accepted call is a no-op.
// If the answer already went through, the buffered candidates are returned.
func (s *CallState) Accept(caller, receiver domain.UserID) ([]Delivery, *RecordHandle, error) {
	if !s.Consistent(caller, receiver) || s.slots[caller].Role != domain.RoleCaller {
		return nil, nil, domain.ErrStateMismatch
	}
	n := s.pairs[keyOf(caller, receiver)]
	if s.slots[caller].Status == domain.StatusInCall && s.slots[receiver].Status == domain.StatusInCall {
		return nil, n.record, nil
	}
	now := s.now()
	for _, u := range []domain.UserID{caller, receiver} {
		s.slots[u].Status = domain.StatusInCall
		s.slots[u].Since = now
	}
	log.Info().Str("module", "app.callstate").Str("caller", string(caller)).Str("receiver", string(receiver)).Msg("call accepted")
	if n.answered {
		return s.drain(caller, receiver), n.record, nil
	}
	return nil, n.record, nil
}

// Offer starts (or restarts) negotiation: stale candidates are discarded.
func (s *CallState) Offer(from, to domain.UserID) error {
	if !s.Consistent(from, to) {
		return domain.ErrStateMismatch
	}
	delete(s.ice, direction{from, to})
	delete(s.ice, direction{to, from})
	n := s.pairs[keyOf(from, to)]
	n.offered = true
	n.answered = false
	return nil
}

// Answer completes negotiation. Buffered candidates are released once the
// pair is IN_CALL; before that they stay queued until Accept.
func (s *CallState) Answer(from, to domain.UserID) ([]Delivery, error) {
	if !s.Consistent(from, to) {
		return nil, domain.ErrStateMismatch
	}
	n := s.pairs[keyOf(from, to)]
	n.answered = true
	if s.inCall(from, to) {
		return s.drain(to, from), nil
	}
	return nil, nil
}

// Candidate decides what to do with a candidate travelling from -> to.
// It is forwarded right away only while both sides are IN_CALL and no offer
// is waiting for its answer; otherwise it is buffered and false is returned.
func (s *CallState) Candidate(from, to domain.UserID, c webrtc.ICECandidateInit) (bool, error) {
	if !s.Consistent(from, to) {
		return false, domain.ErrStateMismatch
	}
	n := s.pairs[keyOf(from, to)]
	if s.inCall(from, to) && (!n.offered || n.answered) {
		return true, nil
	}
	d := direction{from, to}
	s.ice[d] = append(s.ice[d], BufferedCandidate{Candidate: c, At: s.now()})
	return false, nil
}

// Buffered returns a copy of the queue for from -> to.
func (s *CallState) Buffered(from, to domain.UserID) []BufferedCandidate {
	q := s.ice[direction{from, to}]
	out := make([]BufferedCandidate, len(q))
	copy(out, q)
	return out
}

// Decline tears down a call that was never accepted.
func (s *CallState) Decline(caller, receiver domain.UserID) (Ended, error) {
	if !s.Consistent(caller, receiver) || s.slots[receiver].Role != domain.RoleReceiver {
		return Ended{}, domain.ErrStateMismatch
	}
	if s.slots[receiver].Status != domain.StatusCalling {
		return Ended{}, domain.ErrStateMismatch
	}
	return s.clear(caller, receiver), nil
}

// End tears down a call on behalf of one of its parties.
func (s *CallState) End(caller, receiver, endedBy domain.UserID) (Ended, error) {
	if endedBy != caller && endedBy != receiver {
		return Ended{}, domain.ErrStateMismatch
	}
	if !s.Consistent(caller, receiver) || s.slots[caller].Role != domain.RoleCaller {
		return Ended{}, domain.ErrStateMismatch
	}
	return s.clear(caller, receiver), nil
}

// Drop removes whatever call user is part of, used when the user goes
// offline. The peer's slot is removed only if it still points back.
func (s *CallState) Drop(user domain.UserID) (Ended, bool) {
	sl, ok := s.slots[user]
	if !ok {
		return Ended{}, false
	}
	caller, receiver := user, sl.Peer
	if sl.Role == domain.RoleReceiver {
		caller, receiver = sl.Peer, user
	}
	if s.Consistent(user, sl.Peer) {
		return s.clear(caller, receiver), true
	}
	var record *RecordHandle
	if n, ok := s.pairs[keyOf(user, sl.Peer)]; ok {
		record = n.record
		delete(s.pairs, keyOf(user, sl.Peer))
	}
	delete(s.slots, user)
	delete(s.ice, direction{user, sl.Peer})
	delete(s.ice, direction{sl.Peer, user})
	log.Warn().Str("module", "app.callstate").Str("user", string(user)).Str("peer", string(sl.Peer)).Msg("dropped asymmetric slot")
	return Ended{Caller: caller, Receiver: receiver, Media: sl.Media, WasInCall: sl.Status == domain.StatusInCall, Record: record}, true
}

func (s *CallState) inCall(a, b domain.UserID) bool {
	return s.slots[a].Status == domain.StatusInCall && s.slots[b].Status == domain.StatusInCall
}

// drain empties both directions, candidates bound for first go out first.
func (s *CallState) drain(first, second domain.UserID) []Delivery {
	var out []Delivery
	for _, d := range []direction{{from: second, to: first}, {from: first, to: second}} {
		q := s.ice[d]
		delete(s.ice, d)
		if len(q) == 0 {
			continue
		}
		out = append(out, Delivery{From: d.from, To: d.to, Candidates: q})
	}
	return out
}

func (s *CallState) clear(caller, receiver domain.UserID) Ended {
	k := keyOf(caller, receiver)
	e := Ended{
		Caller:    caller,
		Receiver:  receiver,
		Media:     s.slots[caller].Media,
		WasInCall: s.inCall(caller, receiver),
	}
	if n, ok := s.pairs[k]; ok {
		e.Record = n.record
	}
	delete(s.slots, caller)
	delete(s.slots, receiver)
	delete(s.ice, direction{caller, receiver})
	delete(s.ice, direction{receiver, caller})
	delete(s.pairs, k)
	log.Info().Str("module", "app.callstate").Str("caller", string(caller)).Str("receiver", string(receiver)).Bool("in_call", e.WasInCall).Msg("call cleared")
	return e
}
