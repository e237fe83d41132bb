package campaign

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CampaignContext is the root aggregate for one campaign. Version is the
// optimistic-concurrency token: the store rejects a Save whose version is
// not exactly one above the stored version.
type CampaignContext struct {
	CampaignID string    `json:"campaign_id"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Input            BusinessInput          `json:"input"`
	BusinessAnalysis *BusinessAnalysis      `json:"business_analysis,omitempty"`
	ContentStrategy  *ContentStrategy       `json:"content_strategy,omitempty"`
	VisualAssets     map[string]VisualAsset `json:"visual_assets"`

	GenerationHistory []GenerationEvent `json:"generation_history"`
	CompletedStages   []Stage           `json:"completed_stages,omitempty"`
	Status            Status            `json:"status"`
}

// NewContext creates a fresh context at version 1 in the Created state.
func NewContext(input BusinessInput) *CampaignContext {
	now := time.Now().UTC()
	return &CampaignContext{
		CampaignID:   uuid.NewString(),
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
		Input:        input,
		VisualAssets: make(map[string]VisualAsset),
		GenerationHistory: []GenerationEvent{{
			Type:      EventCampaignCreated,
			Payload:   map[string]string{"company": input.CompanyName},
			Timestamp: now,
		}},
		Status: StatusCreated,
	}
}

// ValidateInput rejects malformed business input before any agent runs.
func ValidateInput(input BusinessInput) error {
	if input.CompanyName == "" {
		return &ValidationError{Field: "company_name", Reason: "required"}
	}
	if input.Description == "" {
		return &ValidationError{Field: "description", Reason: "required"}
	}
	return nil
}

// Validate checks the aggregate invariants.
func (c *CampaignContext) Validate() error {
	if c.CampaignID == "" {
		return &ValidationError{Field: "campaign_id", Reason: "required"}
	}
	if c.Version < 1 {
		return &ValidationError{Field: "version", Reason: fmt.Sprintf("must be >= 1, got %d", c.Version)}
	}
	switch c.Status {
	case StatusCreated, StatusAnalyzingBusiness, StatusStrategyReady,
		StatusGeneratingVisuals, StatusFinalized, StatusFailed, StatusCancelled:
	default:
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", c.Status)}
	}
	if c.ContentStrategy != nil && c.BusinessAnalysis == nil {
		return &ValidationError{Field: "content_strategy", Reason: "set before business analysis"}
	}
	// Visual asset keys must be a subset of the strategy's post IDs.
	for postID := range c.VisualAssets {
		if c.ContentStrategy == nil {
			return &ValidationError{Field: "visual_assets", Reason: "present without a content strategy"}
		}
		if _, ok := c.ContentStrategy.PostByID(postID); !ok {
			return &ValidationError{Field: "visual_assets", Reason: fmt.Sprintf("unknown post %q", postID)}
		}
	}
	for _, a := range c.VisualAssets {
		if a.Status == AssetStatusError && a.Error == "" {
			return &ValidationError{Field: "visual_assets", Reason: fmt.Sprintf("error entry for post %q has no reason", a.PostID)}
		}
	}
	return nil
}

// Clone returns a deep copy safe for concurrent readers.
func (c *CampaignContext) Clone() *CampaignContext {
	cp := *c

	cp.Input.Goals = append([]string(nil), c.Input.Goals...)

	if c.BusinessAnalysis != nil {
		ba := *c.BusinessAnalysis
		ba.Audience.Segments = cloneSegments(c.BusinessAnalysis.Audience.Segments)
		ba.Brand.Keywords = append([]string(nil), c.BusinessAnalysis.Brand.Keywords...)
		ba.Brand.Palette = append([]string(nil), c.BusinessAnalysis.Brand.Palette...)
		ba.Brand.Avoid = append([]string(nil), c.BusinessAnalysis.Brand.Avoid...)
		ba.Competitive.Competitors = append([]Competitor(nil), c.BusinessAnalysis.Competitive.Competitors...)
		ba.Competitive.Differentiators = append([]string(nil), c.BusinessAnalysis.Competitive.Differentiators...)
		ba.Objectives.Secondary = append([]string(nil), c.BusinessAnalysis.Objectives.Secondary...)
		cp.BusinessAnalysis = &ba
	}

	if c.ContentStrategy != nil {
		cs := *c.ContentStrategy
		cs.Posts = append([]SocialPost(nil), c.ContentStrategy.Posts...)
		cp.ContentStrategy = &cs
	}

	cp.VisualAssets = make(map[string]VisualAsset, len(c.VisualAssets))
	for k, v := range c.VisualAssets {
		cp.VisualAssets[k] = v
	}

	cp.GenerationHistory = make([]GenerationEvent, len(c.GenerationHistory))
	for i, ev := range c.GenerationHistory {
		cp.GenerationHistory[i] = ev
		if ev.Payload != nil {
			p := make(map[string]string, len(ev.Payload))
			for k, v := range ev.Payload {
				p[k] = v
			}
			cp.GenerationHistory[i].Payload = p
		}
	}

	cp.CompletedStages = append([]Stage(nil), c.CompletedStages...)
	return &cp
}

func cloneSegments(in []AudienceSegment) []AudienceSegment {
	out := make([]AudienceSegment, len(in))
	for i, s := range in {
		out[i] = s
		out[i].Interests = append([]string(nil), s.Interests...)
		out[i].PainPoints = append([]string(nil), s.PainPoints...)
	}
	return out
}

// Apply returns a new context with the event appended, the version bumped by
// one, and UpdatedAt advanced. The receiver is never mutated; the returned
// copy is what the orchestrator fills in further and hands to the store.
func (c *CampaignContext) Apply(ev GenerationEvent) *CampaignContext {
	next := c.Clone()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	next.GenerationHistory = append(next.GenerationHistory, ev)
	next.Version = c.Version + 1
	next.UpdatedAt = ev.Timestamp
	return next
}

// Transition moves the context to a new status, enforcing monotonicity.
func (c *CampaignContext) Transition(next Status) error {
	if !c.Status.CanTransition(next) {
		return &ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("illegal transition %s -> %s", c.Status, next),
		}
	}
	c.Status = next
	return nil
}

// MarkStageComplete records a stage as done. Completed stages survive later
// failures; partial progress is never discarded.
func (c *CampaignContext) MarkStageComplete(stage Stage) {
	if c.StageComplete(stage) {
		return
	}
	c.CompletedStages = append(c.CompletedStages, stage)
}

// StageComplete reports whether a stage has been completed.
func (c *CampaignContext) StageComplete(stage Stage) bool {
	for _, s := range c.CompletedStages {
		if s == stage {
			return true
		}
	}
	return false
}

// RequiredVisualPosts returns the strategy posts that need a visual asset.
func (c *CampaignContext) RequiredVisualPosts() []SocialPost {
	if c.ContentStrategy == nil {
		return nil
	}
	var posts []SocialPost
	for _, p := range c.ContentStrategy.Posts {
		if p.VisualKind() != "" {
			posts = append(posts, p)
		}
	}
	return posts
}

// ProgressPercent estimates overall completion for status reporting.
// Analysis is worth 30%, strategy 20%, visuals the remaining 50%.
func (c *CampaignContext) ProgressPercent() int {
	switch c.Status {
	case StatusFinalized:
		return 100
	case StatusCreated:
		return 0
	}
	pct := 0
	if c.StageComplete(StageBusinessAnalysis) {
		pct += 30
	}
	if c.StageComplete(StageContentStrategy) {
		pct += 20
	}
	required := c.RequiredVisualPosts()
	if len(required) > 0 {
		done := 0
		for _, p := range required {
			if _, ok := c.VisualAssets[p.PostID]; ok {
				done++
			}
		}
		pct += 50 * done / len(required)
	} else if c.StageComplete(StageVisualGeneration) {
		pct += 50
	}
	return pct
}
