// Package store migrations. The schema is created idempotently on open;
// pendingMigrations handles databases created before newer columns existed.
package store

import (
	"database/sql"
	"fmt"

	"adforge/internal/logging"
)

// Schema versions:
// v1: campaigns, campaign_versions, messages tables
// v2: generation_cache table
// v3: campaigns.status column surfaced for listing without JSON decode
const CurrentSchemaVersion = 3

var schema = []string{
	`CREATE TABLE IF NOT EXISTS campaigns (
		campaign_id TEXT PRIMARY KEY,
		version     INTEGER NOT NULL,
		status      TEXT NOT NULL DEFAULT '',
		data        TEXT NOT NULL,
		created_at  DATETIME,
		updated_at  DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS campaign_versions (
		campaign_id TEXT NOT NULL,
		version     INTEGER NOT NULL,
		data        TEXT NOT NULL,
		saved_at    DATETIME,
		PRIMARY KEY (campaign_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id     TEXT NOT NULL,
		campaign_id    TEXT NOT NULL,
		sender         TEXT NOT NULL,
		message_type   TEXT NOT NULL,
		correlation_id TEXT,
		payload        TEXT,
		sent_at        DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_campaign ON messages(campaign_id)`,
	`CREATE TABLE IF NOT EXISTS generation_cache (
		cache_key    TEXT PRIMARY KEY,
		campaign_id  TEXT NOT NULL,
		post_id      TEXT NOT NULL,
		kind         TEXT NOT NULL,
		status       TEXT NOT NULL,
		asset_ref    TEXT,
		mime_type    TEXT,
		provider     TEXT,
		error_detail TEXT,
		permanent    INTEGER NOT NULL DEFAULT 0,
		generated_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_campaign ON generation_cache(campaign_id)`,
}

// Migration defines a column added after the original schema shipped.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists column additions for databases created before the
// column existed. Tables missing entirely are skipped (created above).
var pendingMigrations = []Migration{
	{"campaigns", "status", "TEXT NOT NULL DEFAULT ''"},
	{"generation_cache", "permanent", "INTEGER NOT NULL DEFAULT 0"},
}

// RunMigrations creates the schema and applies pending column migrations.
func RunMigrations(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	applied := 0
	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed migration %s.%s: %w", m.Table, m.Column, err)
		}
		applied++
	}
	if applied > 0 {
		logging.Store("applied %d schema migrations", applied)
	}
	return nil
}

func tableExists(db *sql.DB, table string) bool {
	var name string
	err := db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, table).Scan(&name)
	return err == nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
