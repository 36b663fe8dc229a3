package sqlstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dkeye/Callhub/internal/config"
	"github.com/dkeye/Callhub/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         ":memory:",
		PingTimeout: time.Second,
		Migrate:     true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: Postgres}
	lite := &DB{dialect: SQLite}
	q := "SELECT a FROM t WHERE x = ? AND y IN (?,?)"

	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y IN ($2,$3)", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
	assert.Equal(t, "?,?,?", placeholders(3))
	assert.Equal(t, "", placeholders(0))
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))
}

func TestCallRepo_CreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewCallRepo(openTestDB(t))

	started := time.UnixMilli(1_700_000_000_000)
	id, err := repo.CreateCallRecord(ctx, domain.CallRecordParams{
		CallerID:   "alice",
		ReceiverID: "bob",
		MediaType:  domain.MediaVideo,
		Status:     domain.RecordOngoing,
		StartedAt:  started,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := repo.GetCallRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordOngoing, rec.Status)
	assert.Equal(t, domain.MediaVideo, rec.MediaType)
	assert.True(t, rec.StartedAt.Equal(started))
	assert.Nil(t, rec.EndedAt)

	// Status-only update keeps ended_at empty.
	require.NoError(t, repo.UpdateCallRecord(ctx, id, domain.RecordOngoing, nil))

	ended := started.Add(90 * time.Second)
	require.NoError(t, repo.UpdateCallRecord(ctx, id, domain.RecordCompleted, &ended))

	rec, err = repo.GetCallRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordCompleted, rec.Status)
	require.NotNil(t, rec.EndedAt)
	assert.True(t, rec.EndedAt.Equal(ended))
}

func TestCallRepo_UpdateUnknown(t *testing.T) {
	repo := NewCallRepo(openTestDB(t))
	err := repo.UpdateCallRecord(context.Background(), "missing", domain.RecordMissed, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUserRepo_LookupWithTokens(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepo(openTestDB(t))

	require.NoError(t, repo.UpsertUser(ctx, domain.UserProfile{ID: "alice", Name: "Alice", Avatar: "a.png"}))
	require.NoError(t, repo.UpsertUser(ctx, domain.UserProfile{ID: "bob", Name: "Bob"}))
	require.NoError(t, repo.UpsertUser(ctx, domain.UserProfile{ID: "bob", Name: "Bobby"}))
	require.NoError(t, repo.AddDeviceToken(ctx, "bob", "tok-1"))
	require.NoError(t, repo.AddDeviceToken(ctx, "bob", "tok-2"))
	require.NoError(t, repo.AddDeviceToken(ctx, "bob", "tok-2"))

	users, err := repo.LookupUsers(ctx, []domain.UserID{"bob", "ghost", "alice"})
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, domain.UserID("bob"), users[0].ID)
	assert.Equal(t, "Bobby", users[0].Name)
	assert.ElementsMatch(t, []string{"tok-1", "tok-2"}, users[0].DeviceTokens)
	assert.Equal(t, "Alice", users[1].Name)
	assert.Empty(t, users[1].DeviceTokens)

	require.NoError(t, repo.RemoveDeviceToken(ctx, "bob", "tok-1"))
	users, err = repo.LookupUsers(ctx, []domain.UserID{"bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-2"}, users[0].DeviceTokens)
}

func TestUserRepo_LookupEmpty(t *testing.T) {
	users, err := NewUserRepo(openTestDB(t)).LookupUsers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestReceiptRepo_MarkReadGroupsBySender(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewReceiptRepo(db)
	base := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, repo.AddPending(ctx, "m1", "c1", "alice", "carol", base))
	require.NoError(t, repo.AddPending(ctx, "m2", "c1", "bob", "carol", base.Add(time.Second)))
	require.NoError(t, repo.AddPending(ctx, "m3", "c1", "alice", "carol", base.Add(2*time.Second)))
	require.NoError(t, repo.AddPending(ctx, "m4", "c2", "alice", "carol", base.Add(3*time.Second)))

	got, err := repo.MarkRead(ctx, "c1", "carol")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.UserID("alice"), got[0].SenderID)
	assert.Equal(t, []string{"m1", "m3"}, got[0].MessageIDs)
	assert.Equal(t, domain.UserID("bob"), got[1].SenderID)
	assert.Equal(t, []string{"m2"}, got[1].MessageIDs)
	assert.Equal(t, domain.UserID("carol"), got[0].ReaderID)

	delivered, read := receiptState(t, db, "m1", "carol")
	assert.True(t, delivered.Valid)
	assert.True(t, read.Valid)
	_, read = receiptState(t, db, "m4", "carol")
	assert.False(t, read.Valid)

	again, err := repo.MarkRead(ctx, "c1", "carol")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestReceiptRepo_MarkDelivered(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewReceiptRepo(db)
	base := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, repo.AddPending(ctx, "m1", "c1", "alice", "bob", base))
	require.NoError(t, repo.AddPending(ctx, "m2", "c2", "carol", "bob", base.Add(time.Second)))
	require.NoError(t, repo.AddPending(ctx, "m3", "c1", "bob", "alice", base.Add(2*time.Second)))

	got, err := repo.MarkDelivered(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].MessageID)
	assert.Equal(t, domain.UserID("alice"), got[0].SenderID)
	assert.Equal(t, domain.ConversationID("c2"), got[1].ConversationID)
	assert.Equal(t, domain.UserID("bob"), got[1].RecipientID)

	delivered, read := receiptState(t, db, "m2", "bob")
	assert.True(t, delivered.Valid)
	assert.False(t, read.Valid)
	delivered, _ = receiptState(t, db, "m3", "alice")
	assert.False(t, delivered.Valid)

	again, err := repo.MarkDelivered(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestReceiptRepo_StampTouchesOnlySelectedMessages(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewReceiptRepo(db)
	base := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, repo.AddPending(ctx, "m1", "c1", "alice", "bob", base))
	// m2 arrives after the pending set was read.
	require.NoError(t, repo.AddPending(ctx, "m2", "c1", "alice", "bob", base.Add(time.Second)))

	require.NoError(t, repo.stamp(ctx, db, "delivered_at = ?", []any{base.UnixMilli()}, "bob", []string{"m1"}))

	delivered, _ := receiptState(t, db, "m1", "bob")
	assert.True(t, delivered.Valid)
	delivered, _ = receiptState(t, db, "m2", "bob")
	assert.False(t, delivered.Valid)

	// The late message is still reported on the next pass.
	got, err := repo.MarkDelivered(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m2", got[0].MessageID)
}

func TestReceiptRepo_MarkReadLeavesOtherRecipients(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewReceiptRepo(db)
	base := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, repo.AddPending(ctx, "m1", "c1", "alice", "bob", base))
	require.NoError(t, repo.AddPending(ctx, "m1", "c1", "alice", "carol", base))

	got, err := repo.MarkRead(ctx, "c1", "bob")
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, read := receiptState(t, db, "m1", "carol")
	assert.False(t, read.Valid)
	_, read = receiptState(t, db, "m1", "bob")
	assert.True(t, read.Valid)
}

func receiptState(t *testing.T, db *DB, msgID string, recipient domain.UserID) (sql.NullInt64, sql.NullInt64) {
	t.Helper()
	var delivered, read sql.NullInt64
	err := db.QueryRowContext(context.Background(), db.rebind(`
		SELECT delivered_at, read_at FROM message_receipts WHERE message_id = ? AND recipient_id = ?`),
		msgID, string(recipient),
	).Scan(&delivered, &read)
	require.NoError(t, err)
	return delivered, read
}
