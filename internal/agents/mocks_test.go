package agents

import (
	"context"
	"sync"

	"adforge/internal/capability"
)

// stubText replays scripted responses in order and records prompts.
type stubText struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	prompts   []string
	brands    []capability.BrandContext
}

func (s *stubText) GenerateText(ctx context.Context, prompt string, brand capability.BrandContext, opts capability.Options) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, prompt)
	s.brands = append(s.brands, brand)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	if len(s.responses) > 0 {
		return s.responses[len(s.responses)-1], nil
	}
	return "", nil
}

func (s *stubText) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

const analysisJSON = "```json\n" + `{
  "company": {"name": "", "industry": "specialty coffee", "description": "Small-batch roaster", "unique_value": "single-origin beans"},
  "audience": {"primary": "urban coffee drinkers aged 25-40", "segments": [{"name": "remote workers", "interests": ["coffee", "productivity"]}]},
  "brand": {"voice": "warm and knowledgeable", "tone": "inviting", "keywords": ["craft", "local"], "avoid": ["corporate jargon"]},
  "competitive": {"competitors": [{"name": "BigBean", "positioning": "mass market"}], "differentiators": ["roasted to order"]},
  "objectives": {"primary": "grow online subscriptions", "secondary": ["build community"], "call_to_action": "Subscribe today"}
}` + "\n```"

const strategyJSON = `{
  "theme": "craft mornings",
  "posts": [
    {
      "platform": "instagram",
      "headline": "Meet your new morning ritual",
      "copy": "Small-batch. Single-origin. Roasted this week. #craftcoffee",
      "visual_brief": "a fresh latte on a sunlit wooden table",
      "requires_image": true,
      "requires_video": false
    },
    {
      "platform": "x",
      "headline": "",
      "copy": "Why roast dates matter more than brew methods. A thread.",
      "visual_brief": "",
      "requires_image": false,
      "requires_video": false
    }
  ]
}`
