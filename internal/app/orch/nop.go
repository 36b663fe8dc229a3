package orch

import (
	"context"
	"time"

	"github.com/dkeye/Callhub/internal/domain"
)

// No-op collaborators used when a backend is not configured.

type nopHistory struct{}

func (nopHistory) CreateCallRecord(context.Context, domain.CallRecordParams) (domain.CallRecordID, error) {
	return "", nil
}

func (nopHistory) UpdateCallRecord(context.Context, domain.CallRecordID, domain.RecordStatus, *time.Time) error {
	return nil
}

type nopDirectory struct{}

func (nopDirectory) LookupUsers(context.Context, []domain.UserID) ([]domain.UserProfile, error) {
	return nil, nil
}

type nopTokens struct{}

func (nopTokens) RemoveDeviceToken(context.Context, domain.UserID, string) error { return nil }

type nopPusher struct{}

func (nopPusher) SendPush(_ context.Context, token string, _ domain.PushPayload) domain.PushResult {
	return domain.PushResult{Token: token}
}

type nopReceipts struct{}

func (nopReceipts) MarkRead(context.Context, domain.ConversationID, domain.UserID) ([]domain.ReadReceipt, error) {
	return nil, nil
}

func (nopReceipts) MarkDelivered(context.Context, domain.UserID) ([]domain.DeliveredMessage, error) {
	return nil, nil
}

type nopMirror struct{}

func (nopMirror) SetOnline(context.Context, domain.UserID) error  { return nil }
func (nopMirror) SetOffline(context.Context, domain.UserID) error { return nil }
