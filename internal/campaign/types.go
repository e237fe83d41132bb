// Package campaign defines the versioned campaign context: the single source
// of truth for one campaign's business analysis, content strategy, and
// generated assets.
//
// The context is mutated exclusively through the campaign orchestrator.
// Agents propose changes over the message bus; the orchestrator applies them
// and persists a new version. Every persisted mutation bumps Version by
// exactly one, which is the optimistic-concurrency token the store enforces.
package campaign

import (
	"time"
)

// Status represents the lifecycle state of a campaign.
type Status string

const (
	StatusCreated           Status = "created"
	StatusAnalyzingBusiness Status = "analyzing_business"
	StatusStrategyReady     Status = "strategy_ready"
	StatusGeneratingVisuals Status = "generating_visuals"
	StatusFinalized         Status = "finalized"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusFinalized || s == StatusFailed || s == StatusCancelled
}

// forward lists the allowed forward transitions. Failed and Cancelled are
// reachable from any non-terminal state; backward transitions never happen
// (regeneration bumps the version instead of rolling the status back).
var forward = map[Status][]Status{
	StatusCreated:           {StatusAnalyzingBusiness},
	StatusAnalyzingBusiness: {StatusStrategyReady},
	StatusStrategyReady:     {StatusGeneratingVisuals},
	StatusGeneratingVisuals: {StatusFinalized},
}

// CanTransition reports whether s may move to next.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed || next == StatusCancelled {
		return true
	}
	for _, allowed := range forward[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Stage identifies one pipeline stage for completion tracking.
type Stage string

const (
	StageBusinessAnalysis Stage = "business_analysis"
	StageContentStrategy  Stage = "content_strategy"
	StageVisualGeneration Stage = "visual_generation"
)

// Platform identifies the social platform a post targets.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformX         Platform = "x"
	PlatformTikTok    Platform = "tiktok"
	PlatformFacebook  Platform = "facebook"
)

// AssetKind distinguishes generated visual asset types.
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindVideo AssetKind = "video"
)

// AssetStatus marks a visual asset entry as a success or an explicit error.
// A failed generation is always recorded as an error entry; it is never
// papered over with placeholder content.
type AssetStatus string

const (
	AssetStatusSuccess AssetStatus = "success"
	AssetStatusError   AssetStatus = "error"
)

// BusinessInput is the raw business description a campaign starts from.
type BusinessInput struct {
	CompanyName  string   `json:"company_name"`
	Industry     string   `json:"industry"`
	Description  string   `json:"description"`
	Website      string   `json:"website,omitempty"`
	TargetMarket string   `json:"target_market,omitempty"`
	Goals        []string `json:"goals,omitempty"`
}

// CompanyIdentity captures who the business is.
type CompanyIdentity struct {
	Name        string `json:"name"`
	Industry    string `json:"industry"`
	Description string `json:"description"`
	UniqueValue string `json:"unique_value"`
}

// AudienceSegment describes one slice of the target audience.
type AudienceSegment struct {
	Name       string   `json:"name"`
	AgeRange   string   `json:"age_range,omitempty"`
	Interests  []string `json:"interests,omitempty"`
	PainPoints []string `json:"pain_points,omitempty"`
}

// TargetAudience aggregates the audience segments the campaign addresses.
type TargetAudience struct {
	Primary  string            `json:"primary"`
	Segments []AudienceSegment `json:"segments,omitempty"`
}

// BrandGuidelines constrain generated content to the brand.
type BrandGuidelines struct {
	Voice    string   `json:"voice"`
	Tone     string   `json:"tone"`
	Keywords []string `json:"keywords,omitempty"`
	Palette  []string `json:"palette,omitempty"`
	Avoid    []string `json:"avoid,omitempty"`
}

// Competitor describes one competitor's positioning.
type Competitor struct {
	Name        string `json:"name"`
	Positioning string `json:"positioning,omitempty"`
}

// CompetitiveContext situates the business among its competitors.
type CompetitiveContext struct {
	Competitors     []Competitor `json:"competitors,omitempty"`
	Differentiators []string     `json:"differentiators,omitempty"`
}

// CampaignObjectives state what the campaign should achieve.
type CampaignObjectives struct {
	Primary      string   `json:"primary"`
	Secondary    []string `json:"secondary,omitempty"`
	CallToAction string   `json:"call_to_action,omitempty"`
}

// BusinessAnalysis is the analyst agent's structured output. Downstream
// agents get compile-time-checked access to every field; nothing is ever
// flattened into an untyped map.
type BusinessAnalysis struct {
	Company     CompanyIdentity    `json:"company"`
	Audience    TargetAudience     `json:"audience"`
	Brand       BrandGuidelines    `json:"brand"`
	Competitive CompetitiveContext `json:"competitive"`
	Objectives  CampaignObjectives `json:"objectives"`
}

// SocialPost describes one planned post and its generation prompts.
type SocialPost struct {
	PostID        string   `json:"post_id"`
	Platform      Platform `json:"platform"`
	Headline      string   `json:"headline,omitempty"`
	TextPrompt    string   `json:"text_prompt"`
	RequiresImage bool     `json:"requires_image"`
	RequiresVideo bool     `json:"requires_video"`
	VisualPrompt  string   `json:"visual_prompt,omitempty"`
}

// VisualKind returns the asset kind this post needs, or "" when the post is
// text-only. Video wins when a post asks for both; one asset entry per post.
func (p SocialPost) VisualKind() AssetKind {
	if p.RequiresVideo {
		return AssetKindVideo
	}
	if p.RequiresImage {
		return AssetKindImage
	}
	return ""
}

// ContentStrategy is the strategist agent's structured output: the ordered
// list of posts to produce, with business-aware prompts already derived.
type ContentStrategy struct {
	Theme string       `json:"theme"`
	Posts []SocialPost `json:"posts"`
}

// PostByID returns the post with the given ID, if present.
func (s *ContentStrategy) PostByID(postID string) (SocialPost, bool) {
	for _, p := range s.Posts {
		if p.PostID == postID {
			return p, true
		}
	}
	return SocialPost{}, false
}

// VisualAsset records the outcome of one post's visual generation: either a
// reference to the produced asset or an explicit error with the reason.
type VisualAsset struct {
	PostID      string      `json:"post_id"`
	Kind        AssetKind   `json:"kind"`
	Status      AssetStatus `json:"status"`
	Ref         string      `json:"ref,omitempty"`
	MIMEType    string      `json:"mime_type,omitempty"`
	Provider    string      `json:"provider,omitempty"`
	Error       string      `json:"error,omitempty"`
	FromCache   bool        `json:"from_cache,omitempty"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// EventType enumerates generation audit-trail events.
type EventType string

const (
	EventCampaignCreated       EventType = "campaign_created"
	EventStageStarted          EventType = "stage_started"
	EventStageCompleted        EventType = "stage_completed"
	EventStageFailed           EventType = "stage_failed"
	EventAssetGenerated        EventType = "asset_generated"
	EventAssetFailed           EventType = "asset_failed"
	EventDeliveryFailed        EventType = "delivery_failed"
	EventRegenerationRequested EventType = "regeneration_requested"
	EventCampaignFinalized     EventType = "campaign_finalized"
	EventCampaignCancelled     EventType = "campaign_cancelled"
)

// GenerationEvent is one entry in the append-only campaign audit trail.
// Events are never mutated after being appended.
type GenerationEvent struct {
	Type      EventType         `json:"type"`
	PostID    string            `json:"post_id,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
