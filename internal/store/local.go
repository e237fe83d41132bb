package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"adforge/internal/bus"
	"adforge/internal/campaign"
	"adforge/internal/logging"
)

// LocalStore implements ContextStore and MessageStore on SQLite. One
// database file holds the current contexts, the per-version snapshot log,
// the message history, and (via the shared handle) the generation cache.
type LocalStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// NewLocalStore opens (or creates) the SQLite database at path.
func NewLocalStore(path string) (*LocalStore, error) {
	logging.Store("opening local store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &LocalStore{db: db, dbPath: path}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// DB exposes the underlying handle so the generation cache can share the
// database file.
func (s *LocalStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LocalStore) Close() error { return s.db.Close() }

// Load returns the latest version of a campaign context.
func (s *LocalStore) Load(ctx context.Context, campaignID string) (*campaign.CampaignContext, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM campaigns WHERE campaign_id = ?`, campaignID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, &campaign.NotFoundError{CampaignID: campaignID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign %s: %w", campaignID, err)
	}

	var c campaign.CampaignContext
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("failed to decode campaign %s: %w", campaignID, err)
	}
	return &c, nil
}

// Save persists a context under the optimistic-versioning protocol. The
// write and the version snapshot commit in one transaction, so a crash can
// never leave the snapshot log out of step with the current row.
func (s *LocalStore) Save(ctx context.Context, c *campaign.CampaignContext) error {
	if err := c.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode campaign %s: %w", c.CampaignID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save: %w", err)
	}
	defer tx.Rollback()

	var stored int64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM campaigns WHERE campaign_id = ?`, c.CampaignID).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		if c.Version != 1 {
			return &campaign.VersionConflictError{CampaignID: c.CampaignID, Attempted: c.Version, Stored: 0}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO campaigns (campaign_id, version, status, data, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.CampaignID, c.Version, string(c.Status), string(data), c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert campaign %s: %w", c.CampaignID, err)
		}
	case err != nil:
		return fmt.Errorf("failed to read stored version for %s: %w", c.CampaignID, err)
	default:
		if stored != c.Version-1 {
			return &campaign.VersionConflictError{CampaignID: c.CampaignID, Attempted: c.Version, Stored: stored}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE campaigns SET version = ?, status = ?, data = ?, updated_at = ?
			 WHERE campaign_id = ? AND version = ?`,
			c.Version, string(c.Status), string(data), c.UpdatedAt, c.CampaignID, stored)
		if err != nil {
			return fmt.Errorf("failed to update campaign %s: %w", c.CampaignID, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return &campaign.VersionConflictError{CampaignID: c.CampaignID, Attempted: c.Version, Stored: stored}
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO campaign_versions (campaign_id, version, data, saved_at) VALUES (?, ?, ?, ?)`,
		c.CampaignID, c.Version, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to snapshot campaign %s v%d: %w", c.CampaignID, c.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit save for %s: %w", c.CampaignID, err)
	}

	logging.StoreDebug("saved campaign %s v%d (status=%s)", c.CampaignID, c.Version, c.Status)
	return nil
}

// ListVersions returns all stored versions of a campaign, oldest first.
func (s *LocalStore) ListVersions(ctx context.Context, campaignID string) ([]VersionSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, data, saved_at FROM campaign_versions
		 WHERE campaign_id = ? ORDER BY version ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions for %s: %w", campaignID, err)
	}
	defer rows.Close()

	var out []VersionSnapshot
	for rows.Next() {
		var (
			version int64
			data    string
			savedAt time.Time
		)
		if err := rows.Scan(&version, &data, &savedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		var c campaign.CampaignContext
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("failed to decode %s v%d: %w", campaignID, version, err)
		}
		out = append(out, VersionSnapshot{
			CampaignID: campaignID,
			Version:    version,
			SavedAt:    savedAt,
			Context:    &c,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &campaign.NotFoundError{CampaignID: campaignID}
	}
	return out, nil
}

// ListCampaigns returns a summary row per stored campaign, most recently
// updated first.
func (s *LocalStore) ListCampaigns(ctx context.Context) ([]CampaignSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT campaign_id, version, status, data, updated_at
		 FROM campaigns ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var out []CampaignSummary
	for rows.Next() {
		var (
			row  CampaignSummary
			stat string
			data string
		)
		if err := rows.Scan(&row.CampaignID, &row.Version, &stat, &data, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan campaign row: %w", err)
		}
		row.Status = campaign.Status(stat)
		var c campaign.CampaignContext
		if err := json.Unmarshal([]byte(data), &c); err == nil {
			row.Company = c.Input.CompanyName
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// RecordMessage persists one bus message. Implements bus.Recorder.
func (s *LocalStore) RecordMessage(msg bus.Message) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode message payload: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO messages (message_id, campaign_id, sender, message_type, correlation_id, payload, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.CampaignID, msg.Sender, string(msg.Type), msg.CorrelationID, string(payload), msg.SentAt)
	if err != nil {
		return fmt.Errorf("failed to record message %s: %w", msg.ID, err)
	}
	return nil
}

// MessageHistory returns the recorded messages for a campaign in insertion
// order. Payloads come back as json.RawMessage; the message type tells the
// caller which payload struct to decode into.
func (s *LocalStore) MessageHistory(ctx context.Context, campaignID string) ([]bus.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, sender, message_type, correlation_id, payload, sent_at
		 FROM messages WHERE campaign_id = ? ORDER BY id ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load message history for %s: %w", campaignID, err)
	}
	defer rows.Close()

	var out []bus.Message
	for rows.Next() {
		var (
			msg     bus.Message
			mtype   string
			payload string
		)
		msg.CampaignID = campaignID
		if err := rows.Scan(&msg.ID, &msg.Sender, &mtype, &msg.CorrelationID, &payload, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.Type = bus.MessageType(mtype)
		if payload != "" && payload != "null" {
			msg.Payload = json.RawMessage(payload)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
