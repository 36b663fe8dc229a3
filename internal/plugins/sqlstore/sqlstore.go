// Package sqlstore implements the persistence collaborators (call history,
// user directory, message receipts) on database/sql. It runs on Postgres
// through pgx, or on an embedded SQLite file for single-node setups and tests.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/dkeye/Callhub/internal/config"
	"github.com/rs/zerolog/log"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// DB is a *sql.DB that knows which placeholder style its driver wants.
type DB struct {
	*sql.DB
	dialect Dialect
}

func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	dialect := Postgres
	if cfg.Driver == "sqlite" {
		dialect = SQLite
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	// Pool tuning
	if dialect == SQLite {
		// One writer; an in-memory database also lives on a single connection.
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if dialect != SQLite {
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
		if cfg.ConnMaxIdleTime > 0 {
			db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
		}
	}
	// Health check
	pingCtx := ctx
	if cfg.PingTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.PingTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	log.Info().Str("module", "plugins.sqlstore").Str("driver", cfg.Driver).Msg("database connected")

	out := &DB{DB: db, dialect: dialect}
	if cfg.Migrate {
		if err := out.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return out, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		avatar TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS device_tokens (
		user_id TEXT NOT NULL,
		token TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		PRIMARY KEY (user_id, token)
	)`,
	`CREATE TABLE IF NOT EXISTS call_records (
		id TEXT PRIMARY KEY,
		caller_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		call_type TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at BIGINT NOT NULL,
		ended_at BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS call_records_caller_idx ON call_records (caller_id, started_at)`,
	`CREATE INDEX IF NOT EXISTS call_records_receiver_idx ON call_records (receiver_id, started_at)`,
	`CREATE TABLE IF NOT EXISTS message_receipts (
		message_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		delivered_at BIGINT,
		read_at BIGINT,
		PRIMARY KEY (message_id, recipient_id)
	)`,
	`CREATE INDEX IF NOT EXISTS message_receipts_recipient_idx ON message_receipts (recipient_id, conversation_id)`,
}

// Migrate creates the tables this service owns if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites '?' placeholders into $n for Postgres.
func (db *DB) rebind(query string) string {
	if db.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
