package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dkeye/Callhub/internal/domain"
)

// ReceiptRepo flips delivery/read markers on message_receipts. Rows are
// written by the message service; this side only updates them.
type ReceiptRepo struct {
	db  *DB
	now func() time.Time
}

func NewReceiptRepo(db *DB) *ReceiptRepo {
	return &ReceiptRepo{db: db, now: time.Now}
}

// MarkRead marks every unread message of conv addressed to reader as read
// (and delivered), grouped per sender in first-seen order.
func (r *ReceiptRepo) MarkRead(ctx context.Context, conv domain.ConversationID, reader domain.UserID) ([]domain.ReadReceipt, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, r.db.rebind(`
		SELECT message_id, sender_id FROM message_receipts
		WHERE conversation_id = ? AND recipient_id = ? AND read_at IS NULL
		ORDER BY created_at, message_id`),
		string(conv), string(reader),
	)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	var out []domain.ReadReceipt
	idx := make(map[domain.UserID]int)
	for rows.Next() {
		var msgID, sender string
		if err := rows.Scan(&msgID, &sender); err != nil {
			rows.Close()
			return nil, fmt.Errorf("mark read scan: %w", err)
		}
		s := domain.UserID(sender)
		i, ok := idx[s]
		if !ok {
			i = len(out)
			idx[s] = i
			out = append(out, domain.ReadReceipt{ConversationID: conv, SenderID: s, ReaderID: reader})
		}
		out[i].MessageIDs = append(out[i].MessageIDs, msgID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}

	var ids []string
	for _, rr := range out {
		ids = append(ids, rr.MessageIDs...)
	}
	now := r.now().UnixMilli()
	if err := r.stamp(ctx, tx, "read_at = ?, delivered_at = COALESCE(delivered_at, ?)", []any{now, now}, reader, ids); err != nil {
		return nil, fmt.Errorf("mark read update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("mark read commit: %w", err)
	}
	return out, nil
}

// MarkDelivered marks every undelivered message addressed to recipient.
func (r *ReceiptRepo) MarkDelivered(ctx context.Context, recipient domain.UserID) ([]domain.DeliveredMessage, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, r.db.rebind(`
		SELECT message_id, conversation_id, sender_id FROM message_receipts
		WHERE recipient_id = ? AND delivered_at IS NULL
		ORDER BY created_at, message_id`),
		string(recipient),
	)
	if err != nil {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}
	var out []domain.DeliveredMessage
	for rows.Next() {
		var m domain.DeliveredMessage
		var conv, sender string
		if err := rows.Scan(&m.MessageID, &conv, &sender); err != nil {
			rows.Close()
			return nil, fmt.Errorf("mark delivered scan: %w", err)
		}
		m.ConversationID = domain.ConversationID(conv)
		m.SenderID = domain.UserID(sender)
		m.RecipientID = recipient
		out = append(out, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}

	ids := make([]string, len(out))
	for i, m := range out {
		ids[i] = m.MessageID
	}
	if err := r.stamp(ctx, tx, "delivered_at = ?", []any{r.now().UnixMilli()}, recipient, ids); err != nil {
		return nil, fmt.Errorf("mark delivered update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("mark delivered commit: %w", err)
	}
	return out, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// stamp applies set to exactly the listed messages of recipient. Rows that
// showed up after they were selected are left for the next call, which will
// report them.
func (r *ReceiptRepo) stamp(ctx context.Context, ex execer, set string, setArgs []any, recipient domain.UserID, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(setArgs)+1+len(ids))
	args = append(args, setArgs...)
	args = append(args, string(recipient))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := ex.ExecContext(ctx, r.db.rebind(
		`UPDATE message_receipts SET `+set+` WHERE recipient_id = ? AND message_id IN (`+placeholders(len(ids))+`)`), args...)
	return err
}

// AddPending records that msgID from sender is awaiting recipient. Used by
// the message service and by tests.
func (r *ReceiptRepo) AddPending(ctx context.Context, msgID string, conv domain.ConversationID, sender, recipient domain.UserID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO message_receipts (message_id, conversation_id, sender_id, recipient_id, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		msgID, string(conv), string(sender), string(recipient), at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("add pending receipt: %w", err)
	}
	return nil
}
