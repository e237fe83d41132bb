// Package cache implements the content-addressed generation cache. Entries
// are keyed by a stable hash of the campaign, post, normalized prompt, and
// the brand fields that influence generation, so identical work is never
// sent to an external provider twice. Terminal failures are cached too:
// a permanent error (content policy) is not retried unless the caller
// explicitly forces regeneration.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"adforge/internal/campaign"
)

// EntryStatus marks a cache entry as a success or a terminal error.
type EntryStatus string

const (
	StatusSuccess EntryStatus = "success"
	StatusError   EntryStatus = "error"
)

// Entry is one cached generation outcome.
type Entry struct {
	Key         string
	CampaignID  string
	PostID      string
	Kind        campaign.AssetKind
	Status      EntryStatus
	AssetRef    string
	MIMEType    string
	Provider    string
	ErrorDetail string
	// Permanent marks an error that will not succeed on retry (content
	// policy). Permanent errors short-circuit regeneration unless forced.
	Permanent   bool
	GeneratedAt time.Time
}

// Cache is the generation cache contract. Puts are idempotent upserts:
// content is deterministic per key, so last-writer-wins on an identical key
// is safe under concurrent writers.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Put(ctx context.Context, e Entry) error
	Invalidate(ctx context.Context, key string) error
}

// KeyInput collects the fields that determine a cache key. Two inputs that
// normalize identically share one key.
type KeyInput struct {
	CampaignID string
	PostID     string
	Kind       campaign.AssetKind
	Prompt     string
	BrandVoice string
	BrandTone  string
	Keywords   []string
	Audience   string
}

// Key computes the stable content hash for an input: SHA-256 over the
// unit-separator-joined normalized fields, hex encoded.
func Key(in KeyInput) string {
	h := sha256.New()
	parts := []string{
		in.CampaignID,
		in.PostID,
		string(in.Kind),
		normalizePrompt(in.Prompt),
		normalizePrompt(in.BrandVoice),
		normalizePrompt(in.BrandTone),
		normalizePrompt(strings.Join(in.Keywords, " ")),
		normalizePrompt(in.Audience),
	}
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// normalizePrompt lowercases and collapses whitespace so cosmetic prompt
// edits do not defeat deduplication.
func normalizePrompt(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
