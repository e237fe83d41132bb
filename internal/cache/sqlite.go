package cache

import (
	"context"
	"database/sql"
	"fmt"

	"adforge/internal/campaign"
	"adforge/internal/logging"
)

// SQLiteCache persists cache entries in the generation_cache table. It
// shares the database handle with the context store so one file carries all
// campaign state.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache wraps an open database. The schema is owned by the store
// package's migrations.
func NewSQLiteCache(db *sql.DB) *SQLiteCache {
	return &SQLiteCache{db: db}
}

// Get returns the entry for key, if present.
func (c *SQLiteCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	var (
		e    Entry
		kind string
		stat string
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT cache_key, campaign_id, post_id, kind, status, asset_ref, mime_type,
		        provider, error_detail, permanent, generated_at
		 FROM generation_cache WHERE cache_key = ?`, key).
		Scan(&e.Key, &e.CampaignID, &e.PostID, &kind, &stat, &e.AssetRef, &e.MIMEType,
			&e.Provider, &e.ErrorDetail, &e.Permanent, &e.GeneratedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	e.Kind = campaign.AssetKind(kind)
	e.Status = EntryStatus(stat)
	return &e, true, nil
}

// Put upserts an entry. Idempotent: writing the same key twice is safe.
func (c *SQLiteCache) Put(ctx context.Context, e Entry) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO generation_cache
		   (cache_key, campaign_id, post_id, kind, status, asset_ref, mime_type,
		    provider, error_detail, permanent, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
		   status = excluded.status,
		   asset_ref = excluded.asset_ref,
		   mime_type = excluded.mime_type,
		   provider = excluded.provider,
		   error_detail = excluded.error_detail,
		   permanent = excluded.permanent,
		   generated_at = excluded.generated_at`,
		e.Key, e.CampaignID, e.PostID, string(e.Kind), string(e.Status), e.AssetRef,
		e.MIMEType, e.Provider, e.ErrorDetail, e.Permanent, e.GeneratedAt)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	logging.CacheLog("cached %s result for post %s (status=%s)", e.Kind, e.PostID, e.Status)
	return nil
}

// Invalidate removes an entry so the next generation attempt misses.
func (c *SQLiteCache) Invalidate(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM generation_cache WHERE cache_key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return nil
}
