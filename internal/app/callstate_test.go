package app

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Callhub/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

func newCalls() *CallState {
	t0 := time.Unix(1_700_000_000, 0)
	n := 0
	return NewCallState(func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Millisecond)
	})
}

func TestCallState_InitiateCreatesSymmetricSlots(t *testing.T) {
	s := newCalls()
	h, err := s.Initiate("alice", "bob", domain.MediaVideo, "Alice", "a.png")
	require.NoError(t, err)
	require.NotNil(t, h)

	a, ok := s.Slot("alice")
	require.True(t, ok)
	b, ok := s.Slot("bob")
	require.True(t, ok)

	assert.Equal(t, domain.UserID("bob"), a.Peer)
	assert.Equal(t, domain.RoleCaller, a.Role)
	assert.Equal(t, domain.StatusCalling, a.Status)
	assert.Equal(t, domain.UserID("alice"), b.Peer)
	assert.Equal(t, domain.RoleReceiver, b.Role)
	assert.Equal(t, "Alice", b.CallerName)
	assert.True(t, s.Consistent("alice", "bob"))
	assert.Equal(t, 1, s.ActiveCalls())
}

func TestCallState_AtMostOneSlotPerUser(t *testing.T) {
	s := newCalls()
	_, err := s.Initiate("bob", "carol", domain.MediaAudio, "", "")
	require.NoError(t, err)

	_, err = s.Initiate("alice", "bob", domain.MediaAudio, "", "")
	assert.ErrorIs(t, err, domain.ErrBusy)
	_, ok := s.Slot("alice")
	assert.False(t, ok, "busy check must not create a slot")
	sl, _ := s.Slot("bob")
	assert.Equal(t, domain.UserID("carol"), sl.Peer)

	_, err = s.Initiate("bob", "dave", domain.MediaAudio, "", "")
	assert.ErrorIs(t, err, domain.ErrCallerBusy)
	_, ok = s.Slot("dave")
	assert.False(t, ok)

	_, err = s.Initiate("erin", "erin", domain.MediaAudio, "", "")
	assert.ErrorIs(t, err, domain.ErrSelfCall)
}

func TestCallState_CandidatesBufferedUntilAnsweredAndAccepted(t *testing.T) {
	s := newCalls()
	_, err := s.Initiate("alice", "bob", domain.MediaAudio, "", "")
	require.NoError(t, err)
	require.NoError(t, s.Offer("alice", "bob"))

	for _, c := range []string{"c1", "c2", "c3"} {
		fwd, err := s.Candidate("alice", "bob", cand(c))
		require.NoError(t, err)
		assert.False(t, fwd)
	}
	fwd, err := s.Candidate("bob", "alice", cand("b1"))
	require.NoError(t, err)
	assert.False(t, fwd)

	// Accepted but not answered: still queued.
	d, _, err := s.Accept("alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, d)
	assert.Len(t, s.Buffered("alice", "bob"), 3)

	d, err = s.Answer("bob", "alice")
	require.NoError(t, err)
	require.Len(t, d, 2)

	assert.Equal(t, domain.UserID("alice"), d[0].To)
	assert.Equal(t, "b1", d[0].Candidates[0].Candidate.Candidate)

	assert.Equal(t, domain.UserID("bob"), d[1].To)
	assert.Equal(t, domain.UserID("alice"), d[1].From)
	var got []string
	for _, c := range d[1].Candidates {
		got = append(got, c.Candidate.Candidate)
	}
	assert.Equal(t, []string{"c1", "c2", "c3"}, got)
	assert.True(t, d[1].Candidates[0].At.Before(d[1].Candidates[2].At))

	assert.Empty(t, s.Buffered("alice", "bob"))
	assert.Empty(t, s.Buffered("bob", "alice"))

	again, err := s.Answer("bob", "alice")
	require.NoError(t, err)
	assert.Empty(t, again, "second flush is a no-op")

	fwd, err = s.Candidate("alice", "bob", cand("late"))
	require.NoError(t, err)
	assert.True(t, fwd)
}

func TestCallState_AnswerBeforeAcceptFlushesOnAccept(t *testing.T) {
	s := newCalls()
	_, _ = s.Initiate("alice", "bob", domain.MediaAudio, "", "")
	require.NoError(t, s.Offer("alice", "bob"))
	_, _ = s.Candidate("alice", "bob", cand("c1"))

	d, err := s.Answer("bob", "alice")
	require.NoError(t, err)
	assert.Empty(t, d)

	d, _, err = s.Accept("alice", "bob")
	require.NoError(t, err)
	require.Len(t, d, 1)
	assert.Equal(t, domain.UserID("bob"), d[0].To)
}

func TestCallState_OfferResetsBuffers(t *testing.T) {
	s := newCalls()
	_, _ = s.Initiate("alice", "bob", domain.MediaAudio, "", "")
	_, _, _ = s.Accept("alice", "bob")

	// No negotiation pending: IN_CALL forwards directly.
	fwd, err := s.Candidate("alice", "bob", cand("direct"))
	require.NoError(t, err)
	assert.True(t, fwd)

	// Renegotiation queues again and drops stale candidates.
	require.NoError(t, s.Offer("alice", "bob"))
	_, _ = s.Candidate("alice", "bob", cand("stale"))
	require.NoError(t, s.Offer("alice", "bob"))
	assert.Empty(t, s.Buffered("alice", "bob"))
}

func TestCallState_RejectsInconsistentPairs(t *testing.T) {
	s := newCalls()
	_, err := s.Candidate("alice", "bob", cand("x"))
	assert.ErrorIs(t, err, domain.ErrStateMismatch)
	assert.ErrorIs(t, s.Offer("alice", "bob"), domain.ErrStateMismatch)

	_, _ = s.Initiate("alice", "bob", domain.MediaAudio, "", "")
	_, err = s.Candidate("alice", "carol", cand("x"))
	assert.ErrorIs(t, err, domain.ErrStateMismatch)

	// Receiver cannot be passed as caller.
	_, _, err = s.Accept("bob", "alice")
	assert.ErrorIs(t, err, domain.ErrStateMismatch)
	_, err = s.End("alice", "bob", "mallory")
	assert.ErrorIs(t, err, domain.ErrStateMismatch)
}

func TestCallState_EndReportsWhetherConnected(t *testing.T) {
	s := newCalls()
	_, _ = s.Initiate("alice", "bob", domain.MediaAudio, "", "")
	e, err := s.End("alice", "bob", "alice")
	require.NoError(t, err)
	assert.False(t, e.WasInCall)
	assert.Equal(t, domain.UserID("bob"), e.Peer("alice"))

	_, _ = s.Initiate("alice", "bob", domain.MediaAudio, "", "")
	_, _, _ = s.Accept("alice", "bob")
	e, err = s.End("alice", "bob", "bob")
	require.NoError(t, err)
	assert.True(t, e.WasInCall)
	assert.Equal(t, 0, s.ActiveCalls())
}

func TestCallState_DeclineOnlyWhileRinging(t *testing.T) {
	s := newCalls()
	_, _ = s.Initiate("alice", "bob", domain.MediaAudio, "", "")
	_, _, _ = s.Accept("alice", "bob")
	_, err := s.Decline("alice", "bob")
	assert.ErrorIs(t, err, domain.ErrStateMismatch)

	_, _ = s.End("alice", "bob", "alice")
	_, _ = s.Initiate("alice", "bob", domain.MediaAudio, "", "")
	_, _ = s.Candidate("alice", "bob", cand("c1"))
	e, err := s.Decline("alice", "bob")
	require.NoError(t, err)
	assert.False(t, e.WasInCall)
	_, ok := s.Slot("alice")
	assert.False(t, ok)
	assert.Empty(t, s.Buffered("alice", "bob"))
}

func TestCallState_DropClearsBothSides(t *testing.T) {
	s := newCalls()
	h, _ := s.Initiate("alice", "bob", domain.MediaVideo, "", "")
	require.NoError(t, s.Offer("alice", "bob"))
	_, _ = s.Candidate("alice", "bob", cand("c1"))
	_, _ = s.Candidate("bob", "alice", cand("b1"))

	e, ok := s.Drop("bob")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("alice"), e.Caller)
	assert.Equal(t, domain.UserID("bob"), e.Receiver)
	assert.Same(t, h, e.Record)

	_, ok = s.Slot("alice")
	assert.False(t, ok)
	_, ok = s.Slot("bob")
	assert.False(t, ok)
	assert.Empty(t, s.Buffered("alice", "bob"))
	assert.Empty(t, s.Buffered("bob", "alice"))

	_, ok = s.Drop("bob")
	assert.False(t, ok)
}

func TestRecordHandle_Await(t *testing.T) {
	h := NewRecordHandle()
	go h.Resolve("rec-1")
	id, ok := h.Await(context.Background())
	assert.True(t, ok)
	assert.Equal(t, domain.CallRecordID("rec-1"), id)

	failed := NewRecordHandle()
	failed.Resolve("")
	_, ok = failed.Await(context.Background())
	assert.False(t, ok)

	pending := NewRecordHandle()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, ok = pending.Await(ctx)
	assert.False(t, ok)
}

func TestRecordHandle_LaterChangeWins(t *testing.T) {
	h := NewRecordHandle()
	accepted := h.Next()
	ended := h.Next()

	var written []string
	ok, err := h.Apply(ended, func() error { written = append(written, "COMPLETED"); return nil })
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Apply(accepted, func() error { written = append(written, "ONGOING"); return nil })
	require.NoError(t, err)
	assert.False(t, ok, "overtaken change must be skipped")
	assert.Equal(t, []string{"COMPLETED"}, written)
}

func TestRecordHandle_InOrderChangesAllApply(t *testing.T) {
	h := NewRecordHandle()
	first, second := h.Next(), h.Next()

	ok, err := h.Apply(first, func() error { return domain.ErrClosed })
	assert.True(t, ok)
	assert.ErrorIs(t, err, domain.ErrClosed)

	ok, err = h.Apply(second, func() error { return nil })
	assert.True(t, ok)
	assert.NoError(t, err)
}
