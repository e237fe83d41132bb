// Package visual runs the visual generation stage: a bounded fan-out over
// every post that needs an image or video, with the generation cache
// consulted before any external call. Each post resolves to exactly one
// VisualAsset, success or explicit error; one post's failure never blocks
// the others.
package visual

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"adforge/internal/bus"
	"adforge/internal/cache"
	"adforge/internal/campaign"
	"adforge/internal/capability"
	"adforge/internal/logging"
)

// OrchestratorID is the visual orchestrator's bus sender identity.
const OrchestratorID = "visual-orchestrator"

// Config tunes the visual generation stage.
type Config struct {
	// MaxConcurrent bounds in-flight post generations across all kinds.
	// Per-kind API concurrency is bounded separately by the scheduler.
	MaxConcurrent int
	ImageOpts     capability.Options
	VideoOpts     capability.Options
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 5,
		ImageOpts:     capability.Options{Timeout: 30 * time.Second, MaxRetries: 2},
		VideoOpts:     capability.Options{Timeout: 120 * time.Second, MaxRetries: 2},
	}
}

// Orchestrator fans visual generation out over the strategy's posts.
type Orchestrator struct {
	image     capability.ImageGenerator
	video     capability.VideoGenerator
	scheduler *capability.Scheduler
	cache     cache.Cache
	bus       *bus.Bus
	cfg       Config
}

// New creates a visual orchestrator. The bus is optional; without it no
// progress messages are published.
func New(image capability.ImageGenerator, video capability.VideoGenerator, scheduler *capability.Scheduler, c cache.Cache, b *bus.Bus, cfg Config) *Orchestrator {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Orchestrator{
		image:     image,
		video:     video,
		scheduler: scheduler,
		cache:     c,
		bus:       b,
		cfg:       cfg,
	}
}

// GenerateAll produces one visual asset per post that requires one. Per-post
// failures are captured as error assets in the result, not returned as an
// error; the returned error is non-nil only when the context is cancelled
// before all posts resolve. Results are ordered by the strategy's post order.
//
// onAsset, if non-nil, is invoked for each asset as soon as it resolves and
// before the asset message is published. The caller persists assets there so
// a cancellation mid-stage cannot lose work that already completed.
func (o *Orchestrator) GenerateAll(ctx context.Context, cc *campaign.CampaignContext, onAsset func(campaign.VisualAsset)) ([]campaign.VisualAsset, error) {
	posts := cc.RequiredVisualPosts()
	if len(posts) == 0 {
		return nil, nil
	}

	logging.Generation("visual stage: %d post(s) to generate (campaign=%s, max_concurrent=%d)",
		len(posts), cc.CampaignID, o.cfg.MaxConcurrent)

	sem := semaphore.NewWeighted(int64(o.cfg.MaxConcurrent))
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	assets := make(map[string]campaign.VisualAsset, len(posts))
	completed := 0
	total := len(posts)

	for _, post := range posts {
		post := post
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			asset := o.GeneratePost(gctx, cc, post, false)

			mu.Lock()
			assets[post.PostID] = asset
			completed++
			done := completed
			mu.Unlock()

			if onAsset != nil {
				onAsset(asset)
			}
			o.publishAsset(cc.CampaignID, asset)
			o.publishProgress(cc.CampaignID, post.PostID, done, total)
			return nil
		})
	}

	err := g.Wait()

	// Results follow the strategy's post order regardless of completion order.
	out := make([]campaign.VisualAsset, 0, len(assets))
	for _, post := range posts {
		if a, ok := assets[post.PostID]; ok {
			out = append(out, a)
		}
	}
	return out, err
}

// GeneratePost resolves one post's visual: cache first, then a scheduled,
// retried provider call. The result is always a concrete asset; a failed
// generation yields an error asset with the reason, never placeholder
// content. force bypasses and invalidates the cache entry.
func (o *Orchestrator) GeneratePost(ctx context.Context, cc *campaign.CampaignContext, post campaign.SocialPost, force bool) campaign.VisualAsset {
	kind := post.VisualKind()
	key := o.cacheKey(cc, post, kind)

	if force {
		if err := o.cache.Invalidate(ctx, key); err != nil {
			logging.Get(logging.CategoryCache).Error("invalidate failed for post %s: %v", post.PostID, err)
		}
	} else if entry, ok, err := o.cache.Get(ctx, key); err != nil {
		logging.Get(logging.CategoryCache).Error("cache lookup failed for post %s: %v", post.PostID, err)
	} else if ok {
		if entry.Status == cache.StatusSuccess {
			logging.CacheLog("hit for post %s (campaign=%s)", post.PostID, cc.CampaignID)
			return cachedAsset(entry)
		}
		if entry.Permanent {
			// A content-policy rejection will fail again on an identical
			// prompt; surface the cached error instead of repeating it.
			logging.CacheLog("permanent error hit for post %s: %s", post.PostID, entry.ErrorDetail)
			return cachedAsset(entry)
		}
		// Transient error entries do not block a fresh attempt.
	}

	brand := capability.BrandFromAnalysis(cc.BusinessAnalysis)
	asset, genErr := o.generate(ctx, kind, post.VisualPrompt, brand)

	now := time.Now().UTC()
	if genErr != nil {
		logging.Get(logging.CategoryGeneration).Error("post %s %s generation failed: %v",
			post.PostID, kind, genErr)
		result := campaign.VisualAsset{
			PostID:      post.PostID,
			Kind:        kind,
			Status:      campaign.AssetStatusError,
			Error:       genErr.Error(),
			GeneratedAt: now,
		}
		if campaign.IsContentPolicy(genErr) {
			if err := o.cache.Put(ctx, cache.Entry{
				Key:         key,
				CampaignID:  cc.CampaignID,
				PostID:      post.PostID,
				Kind:        kind,
				Status:      cache.StatusError,
				ErrorDetail: genErr.Error(),
				Permanent:   true,
				GeneratedAt: now,
			}); err != nil {
				logging.Get(logging.CategoryCache).Error("failed to cache policy error for post %s: %v", post.PostID, err)
			}
		}
		return result
	}

	result := campaign.VisualAsset{
		PostID:      post.PostID,
		Kind:        kind,
		Status:      campaign.AssetStatusSuccess,
		Ref:         asset.Ref,
		MIMEType:    asset.MIMEType,
		Provider:    asset.Provider,
		GeneratedAt: now,
	}
	if err := o.cache.Put(ctx, cache.Entry{
		Key:         key,
		CampaignID:  cc.CampaignID,
		PostID:      post.PostID,
		Kind:        kind,
		Status:      cache.StatusSuccess,
		AssetRef:    asset.Ref,
		MIMEType:    asset.MIMEType,
		Provider:    asset.Provider,
		GeneratedAt: now,
	}); err != nil {
		logging.Get(logging.CategoryCache).Error("failed to cache asset for post %s: %v", post.PostID, err)
	}
	logging.Generation("post %s %s generated by %s (campaign=%s)",
		post.PostID, kind, asset.Provider, cc.CampaignID)
	return result
}

func (o *Orchestrator) generate(ctx context.Context, kind campaign.AssetKind, visualPrompt string, brand capability.BrandContext) (*capability.Asset, error) {
	var (
		opts    capability.Options
		capKind capability.Kind
		call    func(context.Context) (*capability.Asset, error)
	)
	switch kind {
	case campaign.AssetKindVideo:
		opts, capKind = o.cfg.VideoOpts, capability.KindVideo
		call = func(ctx context.Context) (*capability.Asset, error) {
			return o.video.GenerateVideo(ctx, visualPrompt, brand, opts)
		}
	default:
		opts, capKind = o.cfg.ImageOpts, capability.KindImage
		call = func(ctx context.Context) (*capability.Asset, error) {
			return o.image.GenerateImage(ctx, visualPrompt, brand, opts)
		}
	}

	var asset *capability.Asset
	err := capability.Retry(ctx, string(kind)+" generation", opts.MaxRetries, func(ctx context.Context) error {
		return o.scheduler.Do(ctx, capKind, func(ctx context.Context) error {
			var callErr error
			asset, callErr = call(ctx)
			return callErr
		})
	})
	if err != nil {
		return nil, err
	}
	return asset, nil
}

func (o *Orchestrator) cacheKey(cc *campaign.CampaignContext, post campaign.SocialPost, kind campaign.AssetKind) string {
	in := cache.KeyInput{
		CampaignID: cc.CampaignID,
		PostID:     post.PostID,
		Kind:       kind,
		Prompt:     post.VisualPrompt,
	}
	if cc.BusinessAnalysis != nil {
		in.BrandVoice = cc.BusinessAnalysis.Brand.Voice
		in.BrandTone = cc.BusinessAnalysis.Brand.Tone
		in.Keywords = cc.BusinessAnalysis.Brand.Keywords
		in.Audience = cc.BusinessAnalysis.Audience.Primary
	}
	return cache.Key(in)
}

func cachedAsset(entry *cache.Entry) campaign.VisualAsset {
	a := campaign.VisualAsset{
		PostID:      entry.PostID,
		Kind:        entry.Kind,
		FromCache:   true,
		GeneratedAt: entry.GeneratedAt,
	}
	if entry.Status == cache.StatusSuccess {
		a.Status = campaign.AssetStatusSuccess
		a.Ref = entry.AssetRef
		a.MIMEType = entry.MIMEType
		a.Provider = entry.Provider
	} else {
		a.Status = campaign.AssetStatusError
		a.Error = entry.ErrorDetail
	}
	return a
}

func (o *Orchestrator) publishAsset(campaignID string, asset campaign.VisualAsset) {
	if o.bus == nil {
		return
	}
	msgType := bus.TypeVisualAssetGenerated
	if asset.Status == campaign.AssetStatusError {
		msgType = bus.TypeVisualAssetFailed
	}
	if err := o.bus.Publish(bus.Message{
		Sender:     OrchestratorID,
		Type:       msgType,
		CampaignID: campaignID,
		Payload:    bus.AssetPayload{Asset: asset},
	}); err != nil {
		logging.Get(logging.CategoryGeneration).Error("failed to publish asset message: %v", err)
	}
}

func (o *Orchestrator) publishProgress(campaignID, postID string, completed, total int) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(bus.Message{
		Sender:     OrchestratorID,
		Type:       bus.TypeProgressUpdate,
		CampaignID: campaignID,
		Payload:    bus.ProgressPayload{Completed: completed, Total: total, PostID: postID},
	}); err != nil {
		logging.Get(logging.CategoryGeneration).Error("failed to publish progress: %v", err)
	}
}
