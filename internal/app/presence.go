package app

import (
	"sort"

	"github.com/dkeye/Callhub/internal/domain"
	"github.com/rs/zerolog/log"
)

// Presence tracks which connections each user holds. A user is online
// while at least one connection is registered. Not safe for concurrent
// use: the dispatcher loop owns it.
type Presence struct {
	conns map[domain.UserID]map[domain.ConnID]struct{}
	owner map[domain.ConnID]domain.UserID
}

func NewPresence() *Presence {
	return &Presence{
		conns: make(map[domain.UserID]map[domain.ConnID]struct{}),
		owner: make(map[domain.ConnID]domain.UserID),
	}
}

// Register binds conn to user and returns the user's connection count.
// A conn already bound to another user is moved.
func (p *Presence) Register(user domain.UserID, conn domain.ConnID) int {
	if prev, ok := p.owner[conn]; ok && prev != user {
		p.Unregister(prev, conn)
	}
	set, ok := p.conns[user]
	if !ok {
		set = make(map[domain.ConnID]struct{})
		p.conns[user] = set
	}
	set[conn] = struct{}{}
	p.owner[conn] = user
	log.Debug().Str("module", "app.presence").Str("user", string(user)).Str("conn", string(conn)).Int("count", len(set)).Msg("registered connection")
	return len(set)
}

// Unregister removes conn from user and returns how many connections are
// left. Unknown pairs are a no-op.
func (p *Presence) Unregister(user domain.UserID, conn domain.ConnID) int {
	set, ok := p.conns[user]
	if !ok {
		return 0
	}
	if _, ok := set[conn]; !ok {
		return len(set)
	}
	delete(set, conn)
	if p.owner[conn] == user {
		delete(p.owner, conn)
	}
	left := len(set)
	if left == 0 {
		delete(p.conns, user)
	}
	log.Debug().Str("module", "app.presence").Str("user", string(user)).Str("conn", string(conn)).Int("left", left).Msg("unregistered connection")
	return left
}

func (p *Presence) Resolve(conn domain.ConnID) (domain.UserID, bool) {
	u, ok := p.owner[conn]
	return u, ok
}

func (p *Presence) ConnectionsOf(user domain.UserID) []domain.ConnID {
	set := p.conns[user]
	out := make([]domain.ConnID, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Presence) IsOnline(user domain.UserID) bool {
	return len(p.conns[user]) > 0
}

// OnlineUserIDs returns the online users sorted by id.
func (p *Presence) OnlineUserIDs() []domain.UserID {
	out := make([]domain.UserID, 0, len(p.conns))
	for u := range p.conns {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Presence) OnlineCount() int {
	return len(p.conns)
}
