package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Callhub/internal/domain"
)

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) UpsertUser(ctx context.Context, u domain.UserProfile) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO users (id, name, avatar) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, avatar = excluded.avatar`),
		string(u.ID), u.Name, u.Avatar,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (r *UserRepo) AddDeviceToken(ctx context.Context, user domain.UserID, token string) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO device_tokens (user_id, token, created_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, token) DO NOTHING`),
		string(user), token, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("add device token: %w", err)
	}
	return nil
}

func (r *UserRepo) RemoveDeviceToken(ctx context.Context, user domain.UserID, token string) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		DELETE FROM device_tokens WHERE user_id = ? AND token = ?`),
		string(user), token,
	)
	if err != nil {
		return fmt.Errorf("remove device token: %w", err)
	}
	return nil
}

// LookupUsers returns the known users among ids, in the order of ids,
// with their device tokens. Unknown ids are skipped.
func (r *UserRepo) LookupUsers(ctx context.Context, ids []domain.UserID) ([]domain.UserProfile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}

	rows, err := r.db.QueryContext(ctx, r.db.rebind(
		`SELECT id, name, avatar FROM users WHERE id IN (`+placeholders(len(ids))+`)`), args...)
	if err != nil {
		return nil, fmt.Errorf("lookup users: %w", err)
	}
	byID := make(map[domain.UserID]*domain.UserProfile, len(ids))
	for rows.Next() {
		var p domain.UserProfile
		var id string
		if err := rows.Scan(&id, &p.Name, &p.Avatar); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan user: %w", err)
		}
		p.ID = domain.UserID(id)
		byID[p.ID] = &p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lookup users: %w", err)
	}

	rows, err = r.db.QueryContext(ctx, r.db.rebind(
		`SELECT user_id, token FROM device_tokens WHERE user_id IN (`+placeholders(len(ids))+`) ORDER BY created_at, token`), args...)
	if err != nil {
		return nil, fmt.Errorf("lookup device tokens: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var uid, tok string
		if err := rows.Scan(&uid, &tok); err != nil {
			return nil, fmt.Errorf("scan device token: %w", err)
		}
		if p, ok := byID[domain.UserID(uid)]; ok {
			p.DeviceTokens = append(p.DeviceTokens, tok)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lookup device tokens: %w", err)
	}

	out := make([]domain.UserProfile, 0, len(byID))
	seen := make(map[domain.UserID]bool, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, *p)
		}
	}
	return out, nil
}
