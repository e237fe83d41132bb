package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"adforge/internal/bus"
	"adforge/internal/campaign"
)

// MemoryStore implements ContextStore and MessageStore in memory. It obeys
// the same optimistic-versioning contract as LocalStore and backs unit tests
// that do not want a database file.
type MemoryStore struct {
	mu       sync.Mutex
	latest   map[string]*campaign.CampaignContext
	versions map[string][]VersionSnapshot
	messages map[string][]bus.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		latest:   make(map[string]*campaign.CampaignContext),
		versions: make(map[string][]VersionSnapshot),
		messages: make(map[string][]bus.Message),
	}
}

// Load returns a deep copy of the latest context.
func (s *MemoryStore) Load(ctx context.Context, campaignID string) (*campaign.CampaignContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.latest[campaignID]
	if !ok {
		return nil, &campaign.NotFoundError{CampaignID: campaignID}
	}
	return c.Clone(), nil
}

// Save applies the optimistic-versioning protocol.
func (s *MemoryStore) Save(ctx context.Context, c *campaign.CampaignContext) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.latest[c.CampaignID]
	if !ok {
		if c.Version != 1 {
			return &campaign.VersionConflictError{CampaignID: c.CampaignID, Attempted: c.Version, Stored: 0}
		}
	} else if stored.Version != c.Version-1 {
		return &campaign.VersionConflictError{CampaignID: c.CampaignID, Attempted: c.Version, Stored: stored.Version}
	}

	cp := c.Clone()
	s.latest[c.CampaignID] = cp
	s.versions[c.CampaignID] = append(s.versions[c.CampaignID], VersionSnapshot{
		CampaignID: c.CampaignID,
		Version:    c.Version,
		SavedAt:    time.Now().UTC(),
		Context:    cp,
	})
	return nil
}

// ListVersions returns the snapshot log, oldest first.
func (s *MemoryStore) ListVersions(ctx context.Context, campaignID string) ([]VersionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snaps, ok := s.versions[campaignID]
	if !ok {
		return nil, &campaign.NotFoundError{CampaignID: campaignID}
	}
	out := make([]VersionSnapshot, len(snaps))
	copy(out, snaps)
	return out, nil
}

// ListCampaigns returns summaries sorted by most recent update.
func (s *MemoryStore) ListCampaigns(ctx context.Context) ([]CampaignSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CampaignSummary
	for id, c := range s.latest {
		out = append(out, CampaignSummary{
			CampaignID: id,
			Status:     c.Status,
			Version:    c.Version,
			Company:    c.Input.CompanyName,
			UpdatedAt:  c.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// RecordMessage implements bus.Recorder.
func (s *MemoryStore) RecordMessage(msg bus.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.CampaignID] = append(s.messages[msg.CampaignID], msg)
	return nil
}

// MessageHistory returns recorded messages in insertion order.
func (s *MemoryStore) MessageHistory(ctx context.Context, campaignID string) ([]bus.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[campaignID]
	out := make([]bus.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}
