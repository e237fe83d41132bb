// Package store persists campaign contexts durably, keyed by campaign ID,
// with optimistic versioning: a Save whose version is not exactly one above
// the stored version fails with a VersionConflictError and the caller must
// reload and retry. The contract, not the backend, is load-bearing; the
// default backend is SQLite.
package store

import (
	"context"
	"time"

	"adforge/internal/bus"
	"adforge/internal/campaign"
)

// VersionSnapshot is one historical version of a campaign context.
type VersionSnapshot struct {
	CampaignID string
	Version    int64
	SavedAt    time.Time
	Context    *campaign.CampaignContext
}

// CampaignSummary is a listing row.
type CampaignSummary struct {
	CampaignID string
	Status     campaign.Status
	Version    int64
	Company    string
	UpdatedAt  time.Time
}

// ContextStore is the durable persistence contract for campaign contexts.
type ContextStore interface {
	// Load returns the latest version of a context, or a NotFoundError.
	Load(ctx context.Context, campaignID string) (*campaign.CampaignContext, error)

	// Save persists a context. Fails with VersionConflictError when the
	// stored version does not match c.Version-1 (or when a fresh context
	// collides with an existing campaign ID).
	Save(ctx context.Context, c *campaign.CampaignContext) error

	// ListVersions returns all persisted versions of a campaign, oldest
	// first, for audit and debugging.
	ListVersions(ctx context.Context, campaignID string) ([]VersionSnapshot, error)

	// ListCampaigns returns a summary row per stored campaign.
	ListCampaigns(ctx context.Context) ([]CampaignSummary, error)
}

// MessageStore persists bus messages for the audit surface.
type MessageStore interface {
	bus.Recorder

	// MessageHistory returns all recorded messages for a campaign in
	// insertion order.
	MessageHistory(ctx context.Context, campaignID string) ([]bus.Message, error)
}
