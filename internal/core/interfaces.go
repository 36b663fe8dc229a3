package core

import (
	"context"
	"time"

	"github.com/dkeye/Callhub/internal/domain"
)

// CallHistory persists call records. Implementations may be slow; the
// dispatcher only calls them from background tasks.
type CallHistory interface {
	CreateCallRecord(ctx context.Context, p domain.CallRecordParams) (domain.CallRecordID, error)
	UpdateCallRecord(ctx context.Context, id domain.CallRecordID, status domain.RecordStatus, endedAt *time.Time) error
}

type UserDirectory interface {
	LookupUsers(ctx context.Context, ids []domain.UserID) ([]domain.UserProfile, error)
}

// TokenStore drops device tokens the push gateway reported as dead.
type TokenStore interface {
	RemoveDeviceToken(ctx context.Context, user domain.UserID, token string) error
}

// Pusher delivers one notification to one device token. Failures are
// reported in the result, never returned.
type Pusher interface {
	SendPush(ctx context.Context, token string, payload domain.PushPayload) domain.PushResult
}

type Receipts interface {
	MarkRead(ctx context.Context, conv domain.ConversationID, reader domain.UserID) ([]domain.ReadReceipt, error)
	MarkDelivered(ctx context.Context, recipient domain.UserID) ([]domain.DeliveredMessage, error)
}

// PresenceMirror publishes online/offline transitions outside the process.
type PresenceMirror interface {
	SetOnline(ctx context.Context, user domain.UserID) error
	SetOffline(ctx context.Context, user domain.UserID) error
}

// TaskFunc is a unit of background work.
type TaskFunc func(ctx context.Context) error

// TaskQueue runs slow work off the signaling loop.
type TaskQueue interface {
	Submit(name string, fn TaskFunc) bool
}
