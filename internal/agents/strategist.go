package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"adforge/internal/bus"
	"adforge/internal/campaign"
	"adforge/internal/capability"
	"adforge/internal/logging"
	"adforge/internal/prompt"
)

// StrategistID is the content strategist's bus identity.
const StrategistID = "content-strategist"

// DefaultPostCount is how many posts a strategy plans when not configured.
const DefaultPostCount = 5

// Strategist turns a business analysis into a content strategy: the post
// plan with copy and visual prompts derived from the brand.
type Strategist struct {
	text      capability.TextGenerator
	scheduler *capability.Scheduler
	registry  *prompt.Registry
	opts      capability.Options
	postCount int
}

// NewStrategist creates the content strategist agent. postCount <= 0 uses
// DefaultPostCount.
func NewStrategist(text capability.TextGenerator, scheduler *capability.Scheduler, registry *prompt.Registry, opts capability.Options, postCount int) *Strategist {
	if postCount <= 0 {
		postCount = DefaultPostCount
	}
	return &Strategist{text: text, scheduler: scheduler, registry: registry, opts: opts, postCount: postCount}
}

func (s *Strategist) ID() string            { return StrategistID }
func (s *Strategist) Stage() campaign.Stage { return campaign.StageContentStrategy }

func (s *Strategist) Handles() []bus.MessageType {
	return []bus.MessageType{bus.TypeBusinessAnalysisComplete}
}

// strategyResponse is the LLM's output contract for the strategy stage.
type strategyResponse struct {
	Theme string `json:"theme"`
	Posts []struct {
		Platform      string `json:"platform"`
		Headline      string `json:"headline"`
		Copy          string `json:"copy"`
		VisualBrief   string `json:"visual_brief"`
		RequiresImage bool   `json:"requires_image"`
		RequiresVideo bool   `json:"requires_video"`
	} `json:"posts"`
}

// HandleMessage plans the campaign's posts and emits content_strategy_ready.
func (s *Strategist) HandleMessage(ctx context.Context, msg bus.Message) ([]bus.Message, error) {
	payload, err := analysisPayload(msg)
	if err != nil {
		return nil, err
	}
	analysis := payload.Analysis

	analysisJSON, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis: %w", err)
	}
	rendered, err := s.registry.Render(prompt.TemplateContentStrategy, map[string]any{
		"AnalysisJSON": string(analysisJSON),
		"PostCount":    s.postCount,
	})
	if err != nil {
		return nil, err
	}

	logging.Agents("planning strategy for %q (campaign=%s, posts=%d)",
		analysis.Company.Name, msg.CampaignID, s.postCount)
	brand := capability.BrandFromAnalysis(&analysis)

	var raw string
	err = capability.Retry(ctx, "content strategy", s.opts.MaxRetries, func(ctx context.Context) error {
		return s.scheduler.Do(ctx, capability.KindText, func(ctx context.Context) error {
			var callErr error
			raw, callErr = s.text.GenerateText(ctx, rendered, brand, s.opts)
			return callErr
		})
	})
	if err != nil {
		return nil, err
	}

	var resp strategyResponse
	if err := decodeJSON(raw, &resp); err != nil {
		return nil, fmt.Errorf("strategist produced unparseable output: %w", err)
	}
	if len(resp.Posts) == 0 {
		return nil, fmt.Errorf("strategy contains no posts")
	}

	strategy, err := s.buildStrategy(resp)
	if err != nil {
		return nil, err
	}

	return []bus.Message{{
		Type:       bus.TypeContentStrategyReady,
		CampaignID: msg.CampaignID,
		Payload:    bus.StrategyPayload{Strategy: strategy},
	}}, nil
}

// buildStrategy maps the LLM response onto the typed strategy, assigning
// post IDs and deriving each visual prompt from its brief.
func (s *Strategist) buildStrategy(resp strategyResponse) (campaign.ContentStrategy, error) {
	strategy := campaign.ContentStrategy{
		Theme: resp.Theme,
		Posts: make([]campaign.SocialPost, 0, len(resp.Posts)),
	}
	for i, p := range resp.Posts {
		if p.Copy == "" {
			return campaign.ContentStrategy{}, fmt.Errorf("post %d has no copy", i+1)
		}
		post := campaign.SocialPost{
			PostID:        uuid.NewString(),
			Platform:      campaign.Platform(p.Platform),
			Headline:      p.Headline,
			TextPrompt:    p.Copy,
			RequiresImage: p.RequiresImage,
			RequiresVideo: p.RequiresVideo,
		}
		if kind := post.VisualKind(); kind != "" {
			if p.VisualBrief == "" {
				return campaign.ContentStrategy{}, fmt.Errorf("post %d requires a visual but has no brief", i+1)
			}
			visualPrompt, err := s.registry.Render(prompt.TemplateVisualPrompt, map[string]any{
				"VisualBrief": p.VisualBrief,
				"Theme":       resp.Theme,
				"Kind":        string(kind),
				"Platform":    p.Platform,
			})
			if err != nil {
				return campaign.ContentStrategy{}, err
			}
			post.VisualPrompt = visualPrompt
		}
		strategy.Posts = append(strategy.Posts, post)
	}
	return strategy, nil
}

func analysisPayload(msg bus.Message) (bus.AnalysisPayload, error) {
	switch p := msg.Payload.(type) {
	case bus.AnalysisPayload:
		return p, nil
	case *bus.AnalysisPayload:
		return *p, nil
	default:
		return bus.AnalysisPayload{}, fmt.Errorf("unexpected payload %T for %s", msg.Payload, msg.Type)
	}
}
