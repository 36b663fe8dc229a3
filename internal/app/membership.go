package app

import (
	"sort"

	"github.com/dkeye/Callhub/internal/domain"
	"github.com/rs/zerolog/log"
)

// Membership is the live "who is looking at which conversation" index.
// rooms and byUser are kept in lockstep so a user can be removed from
// everything without scanning every conversation.
type Membership struct {
	rooms  map[domain.ConversationID]map[domain.UserID]struct{}
	byUser map[domain.UserID]map[domain.ConversationID]struct{}
}

func NewMembership() *Membership {
	return &Membership{
		rooms:  make(map[domain.ConversationID]map[domain.UserID]struct{}),
		byUser: make(map[domain.UserID]map[domain.ConversationID]struct{}),
	}
}

// Join reports whether the user was not already present.
func (m *Membership) Join(user domain.UserID, conv domain.ConversationID) bool {
	members, ok := m.rooms[conv]
	if !ok {
		members = make(map[domain.UserID]struct{})
		m.rooms[conv] = members
	}
	if _, ok := members[user]; ok {
		return false
	}
	members[user] = struct{}{}

	convs, ok := m.byUser[user]
	if !ok {
		convs = make(map[domain.ConversationID]struct{})
		m.byUser[user] = convs
	}
	convs[conv] = struct{}{}
	log.Debug().Str("module", "app.membership").Str("user", string(user)).Str("conversation", string(conv)).Msg("joined")
	return true
}

// Leave reports whether anything changed.
func (m *Membership) Leave(user domain.UserID, conv domain.ConversationID) bool {
	members, ok := m.rooms[conv]
	if !ok {
		return false
	}
	if _, ok := members[user]; !ok {
		return false
	}
	delete(members, user)
	if len(members) == 0 {
		delete(m.rooms, conv)
	}
	if convs, ok := m.byUser[user]; ok {
		delete(convs, conv)
		if len(convs) == 0 {
			delete(m.byUser, user)
		}
	}
	log.Debug().Str("module", "app.membership").Str("user", string(user)).Str("conversation", string(conv)).Msg("left")
	return true
}

// RemoveUser drops the user from every conversation and returns them sorted.
func (m *Membership) RemoveUser(user domain.UserID) []domain.ConversationID {
	convs := m.RoomsOf(user)
	for _, c := range convs {
		m.Leave(user, c)
	}
	return convs
}

func (m *Membership) MembersOf(conv domain.ConversationID) []domain.UserID {
	members := m.rooms[conv]
	out := make([]domain.UserID, 0, len(members))
	for u := range members {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Membership) RoomsOf(user domain.UserID) []domain.ConversationID {
	convs := m.byUser[user]
	out := make([]domain.ConversationID, 0, len(convs))
	for c := range convs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Membership) IsMember(user domain.UserID, conv domain.ConversationID) bool {
	_, ok := m.rooms[conv][user]
	return ok
}
