package domain

import "time"

type MediaType string

const (
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
)

func (m MediaType) Valid() bool {
	return m == MediaAudio || m == MediaVideo
}

// CallStatus is the live state of a call slot.
type CallStatus string

const (
	StatusCalling CallStatus = "CALLING"
	StatusInCall  CallStatus = "IN_CALL"
)

// RecordStatus is the persisted outcome of a call.
type RecordStatus string

const (
	RecordOngoing   RecordStatus = "ONGOING"
	RecordCompleted RecordStatus = "COMPLETED"
	RecordCanceled  RecordStatus = "CANCELED"
	RecordDeclined  RecordStatus = "DECLINED"
	RecordMissed    RecordStatus = "MISSED"
)

type CallRecordID string

type CallRecordParams struct {
	CallerID   UserID
	ReceiverID UserID
	MediaType  MediaType
	Status     RecordStatus
	StartedAt  time.Time
}

type CallRecord struct {
	ID         CallRecordID
	CallerID   UserID
	ReceiverID UserID
	MediaType  MediaType
	Status     RecordStatus
	StartedAt  time.Time
	EndedAt    *time.Time
}

// Role tells which side of the call a slot belongs to.
type Role string

const (
	RoleCaller   Role = "caller"
	RoleReceiver Role = "receiver"
)
