package orchestrator

import (
	"context"
	"sync"
	"time"

	"adforge/internal/capability"
)

// scriptedText replays responses in order across calls.
type scriptedText struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	delay     time.Duration
}

func (s *scriptedText) GenerateText(ctx context.Context, prompt string, brand capability.BrandContext, opts capability.Options) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	if len(s.responses) > 0 {
		return s.responses[len(s.responses)-1], nil
	}
	return "{}", nil
}

// fakeImage returns deterministic assets, optionally slowly or failing.
type fakeImage struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	err   error
}

func (f *fakeImage) GenerateImage(ctx context.Context, prompt string, brand capability.BrandContext, opts capability.Options) (*capability.Asset, error) {
	f.mu.Lock()
	f.calls++
	delay, err := f.delay, f.err
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &capability.Asset{
		Kind: capability.KindImage, Ref: "/assets/fake.png",
		MIMEType: "image/png", Provider: "fake", GeneratedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeImage) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeVideo struct{}

func (fakeVideo) GenerateVideo(ctx context.Context, prompt string, brand capability.BrandContext, opts capability.Options) (*capability.Asset, error) {
	return &capability.Asset{
		Kind: capability.KindVideo, Ref: "/assets/fake.mp4",
		MIMEType: "video/mp4", Provider: "fake", GeneratedAt: time.Now().UTC(),
	}, nil
}

const analysisJSON = `{
  "company": {"name": "Driftwood Coffee", "industry": "specialty coffee", "description": "Small-batch roaster", "unique_value": "single-origin"},
  "audience": {"primary": "urban coffee drinkers"},
  "brand": {"voice": "warm", "tone": "inviting", "keywords": ["craft"]},
  "objectives": {"primary": "grow subscriptions"}
}`

const strategyJSON = `{
  "theme": "craft mornings",
  "posts": [
    {"platform": "instagram", "copy": "post one", "visual_brief": "latte art close-up", "requires_image": true},
    {"platform": "x", "copy": "post two"},
    {"platform": "tiktok", "copy": "post three", "visual_brief": "pour-over timelapse", "requires_video": true}
  ]
}`
