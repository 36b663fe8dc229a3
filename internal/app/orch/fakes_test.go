package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Callhub/internal/core"
	"github.com/dkeye/Callhub/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// events decodes every received frame, optionally keeping only one type.
func (c *fakeConn) events(typ string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			panic(err)
		}
		if typ == "" || m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

type recordUpdate struct {
	id     domain.CallRecordID
	status domain.RecordStatus
	ended  bool
}

type fakeHistory struct {
	mu         sync.Mutex
	created    []domain.CallRecordParams
	updates    []recordUpdate
	failCreate bool

	// Set before use to make the backend slow.
	createDelay time.Duration
	updateDelay map[domain.RecordStatus]time.Duration
}

func (f *fakeHistory) CreateCallRecord(_ context.Context, p domain.CallRecordParams) (domain.CallRecordID, error) {
	time.Sleep(f.createDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return "", errors.New("database unavailable")
	}
	f.created = append(f.created, p)
	return domain.CallRecordID(fmt.Sprintf("rec-%d", len(f.created))), nil
}

func (f *fakeHistory) UpdateCallRecord(_ context.Context, id domain.CallRecordID, status domain.RecordStatus, endedAt *time.Time) error {
	time.Sleep(f.updateDelay[status])
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, recordUpdate{id: id, status: status, ended: endedAt != nil})
	return nil
}

func (f *fakeHistory) snapshot() ([]domain.CallRecordParams, []recordUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CallRecordParams(nil), f.created...), append([]recordUpdate(nil), f.updates...)
}

type fakeDirectory struct {
	profiles map[domain.UserID]domain.UserProfile
}

func (f *fakeDirectory) LookupUsers(_ context.Context, ids []domain.UserID) ([]domain.UserProfile, error) {
	var out []domain.UserProfile
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type sentPush struct {
	token   string
	payload domain.PushPayload
}

type fakePusher struct {
	mu   sync.Mutex
	dead map[string]bool
	sent []sentPush
}

func (f *fakePusher) SendPush(_ context.Context, token string, payload domain.PushPayload) domain.PushResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentPush{token: token, payload: payload})
	if f.dead[token] {
		return domain.PushResult{Token: token, Err: errors.New("unregistered"), ShouldRemoveToken: true}
	}
	return domain.PushResult{Token: token, Success: true}
}

func (f *fakePusher) snapshot() []sentPush {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentPush(nil), f.sent...)
}

type fakeTokens struct {
	mu      sync.Mutex
	removed []string
}

func (f *fakeTokens) RemoveDeviceToken(_ context.Context, user domain.UserID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, string(user)+"/"+token)
	return nil
}

type fakeReceipts struct {
	read      map[domain.ConversationID][]domain.ReadReceipt
	delivered map[domain.UserID][]domain.DeliveredMessage
}

func (f *fakeReceipts) MarkRead(_ context.Context, conv domain.ConversationID, _ domain.UserID) ([]domain.ReadReceipt, error) {
	return f.read[conv], nil
}

func (f *fakeReceipts) MarkDelivered(_ context.Context, user domain.UserID) ([]domain.DeliveredMessage, error) {
	return f.delivered[user], nil
}

type fakeMirror struct {
	mu      sync.Mutex
	online  []domain.UserID
	offline []domain.UserID
}

func (f *fakeMirror) SetOnline(_ context.Context, u domain.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, u)
	return nil
}

func (f *fakeMirror) SetOffline(_ context.Context, u domain.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = append(f.offline, u)
	return nil
}
