package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Callhub/internal/app"
	"github.com/dkeye/Callhub/internal/core"
	"github.com/dkeye/Callhub/internal/domain"
	"github.com/dkeye/Callhub/internal/platform/metrics"
	"github.com/rs/zerolog/log"
)

// Deps wires the dispatcher. Stores left nil are created empty; a nil
// collaborator is replaced by a no-op one.
type Deps struct {
	Presence *app.Presence
	Rooms    *app.Membership
	Calls    *app.CallState
	Conns    *app.Connections
	Policy   app.Policy
	Tasks    core.TaskQueue

	History   core.CallHistory
	Directory core.UserDirectory
	Tokens    core.TokenStore
	Pusher    core.Pusher
	Receipts  core.Receipts
	Mirror    core.PresenceMirror
	Metrics   *metrics.Metrics

	Now             func() time.Time
	InboxSize       int
	PushConcurrency int
}

type envelope struct {
	conn domain.ConnID
	ev   core.Inbound
}

// Orchestrator is the signaling dispatcher. Presence, Rooms and Calls are
// only touched from the goroutine running Run (or from Handle in tests);
// background tasks hand their results back through post.
type Orchestrator struct {
	Presence *app.Presence
	Rooms    *app.Membership
	Calls    *app.CallState
	Conns    *app.Connections
	Policy   app.Policy
	Tasks    core.TaskQueue

	History   core.CallHistory
	Directory core.UserDirectory
	Tokens    core.TokenStore
	Pusher    core.Pusher
	Receipts  core.Receipts
	Mirror    core.PresenceMirror
	Metrics   *metrics.Metrics

	now             func() time.Time
	pushConcurrency int

	inbox   chan envelope
	posted  chan func()
	stopped chan struct{}
}

func New(d Deps) *Orchestrator {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.InboxSize <= 0 {
		d.InboxSize = 1024
	}
	if d.PushConcurrency <= 0 {
		d.PushConcurrency = 4
	}
	o := &Orchestrator{
		Presence:  d.Presence,
		Rooms:     d.Rooms,
		Calls:     d.Calls,
		Conns:     d.Conns,
		Policy:    d.Policy,
		Tasks:     d.Tasks,
		History:   d.History,
		Directory: d.Directory,
		Tokens:    d.Tokens,
		Pusher:    d.Pusher,
		Receipts:  d.Receipts,
		Mirror:    d.Mirror,
		Metrics:   d.Metrics,

		now:             d.Now,
		pushConcurrency: d.PushConcurrency,
		inbox:           make(chan envelope, d.InboxSize),
		posted:          make(chan func(), d.InboxSize),
		stopped:         make(chan struct{}),
	}
	if o.Presence == nil {
		o.Presence = app.NewPresence()
	}
	if o.Rooms == nil {
		o.Rooms = app.NewMembership()
	}
	if o.Calls == nil {
		o.Calls = app.NewCallState(d.Now)
	}
	if o.Conns == nil {
		o.Conns = app.NewConnections()
	}
	if o.Policy == nil {
		o.Policy = app.SimplePolicy{}
	}
	if o.History == nil {
		o.History = nopHistory{}
	}
	if o.Directory == nil {
		o.Directory = nopDirectory{}
	}
	if o.Tokens == nil {
		o.Tokens = nopTokens{}
	}
	if o.Pusher == nil {
		o.Pusher = nopPusher{}
	}
	if o.Receipts == nil {
		o.Receipts = nopReceipts{}
	}
	if o.Mirror == nil {
		o.Mirror = nopMirror{}
	}
	return o
}

// Run processes events until ctx is done. It must run in exactly one goroutine.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.stopped)
	log.Info().Str("module", "orch").Msg("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "orch").Msg("dispatcher stopped")
			return ctx.Err()
		case env := <-o.inbox:
			o.Handle(env.conn, env.ev)
		case fn := <-o.posted:
			fn()
		}
	}
}

// Submit queues an event from conn. Events of one connection are handled
// in the order they were submitted.
func (o *Orchestrator) Submit(ctx context.Context, conn domain.ConnID, ev core.Inbound) error {
	select {
	case o.inbox <- envelope{conn: conn, ev: ev}:
		return nil
	case <-o.stopped:
		return domain.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Query runs fn on the dispatcher goroutine and waits for it.
func (o *Orchestrator) Query(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := o.post(ctx, func() {
		fn()
		close(done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-o.stopped:
		return domain.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) post(ctx context.Context, fn func()) error {
	select {
	case o.posted <- fn:
		return nil
	case <-o.stopped:
		return domain.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle processes one event synchronously.
func (o *Orchestrator) Handle(conn domain.ConnID, ev core.Inbound) {
	o.Metrics.Event(string(ev.Type()))
	defer o.refreshGauges()

	switch e := ev.(type) {
	case core.Join:
		o.onJoin(conn, e)
	case core.Disconnect:
		o.onDisconnect(conn)
	default:
		user, ok := o.Presence.Resolve(conn)
		if !ok {
			o.drop(conn, ev, "unbound")
			return
		}
		o.dispatch(conn, user, ev)
	}
}

func (o *Orchestrator) dispatch(conn domain.ConnID, user domain.UserID, ev core.Inbound) {
	switch e := ev.(type) {
	case core.StartTyping:
		o.onTyping(conn, user, e.ConversationID, e.UserID, e.UserName, true)
	case core.StopTyping:
		o.onTyping(conn, user, e.ConversationID, e.UserID, e.UserName, false)
	case core.JoinConversation:
		o.onJoinConversation(conn, user, e)
	case core.LeaveConversation:
		o.onLeaveConversation(conn, user, e)
	case core.CallInitiate:
		o.onCallInitiate(conn, user, e)
	case core.CallAccept:
		o.onCallAccept(conn, user, e)
	case core.CallDecline:
		o.onCallDecline(conn, user, e)
	case core.CallEnd:
		o.onCallEnd(conn, user, e)
	case core.WebRTCOffer:
		o.onOffer(conn, user, e)
	case core.WebRTCAnswer:
		o.onAnswer(conn, user, e)
	case core.WebRTCIce:
		o.onIce(conn, user, e)
	case core.Ping:
		o.emitConn(user, conn, core.Pong{})
	default:
		o.drop(conn, ev, "unhandled")
	}
}

// idOf normalizes a client-supplied user id the way join does. An invalid
// id comes back empty and matches neither a bound user nor a call slot.
func idOf(raw string) domain.UserID {
	id, err := domain.ParseUserID(raw)
	if err != nil {
		return ""
	}
	return id
}

func (o *Orchestrator) drop(conn domain.ConnID, ev core.Inbound, reason string) {
	o.Metrics.Dropped(reason)
	log.Debug().Str("module", "orch").Str("conn", string(conn)).Str("type", string(ev.Type())).Str("reason", reason).Msg("event dropped")
}

func (o *Orchestrator) refreshGauges() {
	o.Metrics.SetOnlineUsers(o.Presence.OnlineCount())
	o.Metrics.SetActiveCalls(o.Calls.ActiveCalls())
	o.Metrics.SetConnections(o.Conns.Count())
}

// emit sends out to every connection of user.
func (o *Orchestrator) emit(user domain.UserID, out core.Outbound) {
	o.emitExcept(user, "", out)
}

// emitExcept sends out to every connection of user but skip.
func (o *Orchestrator) emitExcept(user domain.UserID, skip domain.ConnID, out core.Outbound) {
	conns := o.Presence.ConnectionsOf(user)
	if len(conns) == 0 {
		return
	}
	frame, err := core.EncodeOutbound(out)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode outbound")
		return
	}
	for _, c := range conns {
		if c == skip {
			continue
		}
		o.send(user, c, frame)
	}
}

func (o *Orchestrator) emitConn(user domain.UserID, conn domain.ConnID, out core.Outbound) {
	frame, err := core.EncodeOutbound(out)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode outbound")
		return
	}
	o.send(user, conn, frame)
}

// broadcast sends out to every connection of every online user.
func (o *Orchestrator) broadcast(out core.Outbound) {
	frame, err := core.EncodeOutbound(out)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode outbound")
		return
	}
	for _, u := range o.Presence.OnlineUserIDs() {
		for _, c := range o.Presence.ConnectionsOf(u) {
			o.send(u, c, frame)
		}
	}
}

func (o *Orchestrator) send(user domain.UserID, conn domain.ConnID, frame core.Frame) {
	sc, ok := o.Conns.Get(conn)
	if !ok {
		return
	}
	err := sc.TrySend(frame)
	if err == nil {
		return
	}
	if !errors.Is(err, core.ErrBackpressure) {
		log.Debug().Err(err).Str("module", "orch").Str("conn", string(conn)).Msg("send failed")
		return
	}
	switch o.Policy.OnBackPressure(user, conn) {
	case app.KickConnection:
		log.Warn().Str("module", "orch").Str("user", string(user)).Str("conn", string(conn)).Msg("slow connection kicked")
		o.Conns.Cancel(conn)
	case app.DropFrame, app.NoAction:
	}
}
