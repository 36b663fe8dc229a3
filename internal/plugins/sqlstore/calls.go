package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dkeye/Callhub/internal/domain"
	"github.com/google/uuid"
)

type CallRepo struct {
	db *DB
}

func NewCallRepo(db *DB) *CallRepo {
	return &CallRepo{db: db}
}

func (r *CallRepo) CreateCallRecord(ctx context.Context, p domain.CallRecordParams) (domain.CallRecordID, error) {
	id := domain.CallRecordID(uuid.NewString())
	status := p.Status
	if status == "" {
		status = domain.RecordOngoing
	}
	started := p.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO call_records (id, caller_id, receiver_id, call_type, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		string(id), string(p.CallerID), string(p.ReceiverID), string(p.MediaType), string(status), started.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("create call record: %w", err)
	}
	return id, nil
}

// UpdateCallRecord sets the status; endedAt is only written when given.
func (r *CallRepo) UpdateCallRecord(ctx context.Context, id domain.CallRecordID, status domain.RecordStatus, endedAt *time.Time) error {
	var ended sql.NullInt64
	if endedAt != nil {
		ended = sql.NullInt64{Int64: endedAt.UnixMilli(), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, r.db.rebind(`
		UPDATE call_records SET status = ?, ended_at = COALESCE(?, ended_at)
		WHERE id = ?`),
		string(status), ended, string(id),
	)
	if err != nil {
		return fmt.Errorf("update call record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update call record %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

func (r *CallRepo) GetCallRecord(ctx context.Context, id domain.CallRecordID) (*domain.CallRecord, error) {
	var (
		rec     domain.CallRecord
		caller  string
		recv    string
		media   string
		status  string
		started int64
		ended   sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, r.db.rebind(`
		SELECT caller_id, receiver_id, call_type, status, started_at, ended_at
		FROM call_records WHERE id = ?`), string(id),
	).Scan(&caller, &recv, &media, &status, &started, &ended)
	if err != nil {
		return nil, err
	}
	rec.ID = id
	rec.CallerID = domain.UserID(caller)
	rec.ReceiverID = domain.UserID(recv)
	rec.MediaType = domain.MediaType(media)
	rec.Status = domain.RecordStatus(status)
	rec.StartedAt = time.UnixMilli(started)
	if ended.Valid {
		t := time.UnixMilli(ended.Int64)
		rec.EndedAt = &t
	}
	return &rec, nil
}
