package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"adforge/internal/agents"
	"adforge/internal/bus"
	"adforge/internal/cache"
	"adforge/internal/campaign"
	"adforge/internal/capability"
	"adforge/internal/prompt"
	"adforge/internal/store"
	"adforge/internal/visual"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

type pipeline struct {
	orch  *Orchestrator
	store *store.MemoryStore
	bus   *bus.Bus
	image *fakeImage
}

// newPipeline wires a complete in-memory pipeline: store, bus, agents,
// visual orchestrator, campaign orchestrator.
func newPipeline(t *testing.T, text *scriptedText, image *fakeImage) *pipeline {
	t.Helper()

	st := store.NewMemoryStore()
	b := bus.New(bus.WithRecorder(st))
	t.Cleanup(b.Close)

	registry, err := prompt.NewRegistry("")
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	sched := capability.NewScheduler(capability.DefaultSchedulerConfig())
	t.Cleanup(sched.Stop)

	runner := agents.NewRunner(b,
		agents.NewAnalyst(text, sched, registry, capability.Options{}),
		agents.NewStrategist(text, sched, registry, capability.Options{}, 3),
	)

	cfg := visual.DefaultConfig()
	cfg.ImageOpts.MaxRetries = 0
	cfg.VideoOpts.MaxRetries = 0
	vis := visual.New(image, fakeVideo{}, sched, cache.NewMemoryCache(), b, cfg)

	orch := New(st, st, b, vis)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := runner.Start(ctx); err != nil {
		t.Fatalf("runner.Start() error = %v", err)
	}
	t.Cleanup(runner.Stop)
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("orch.Start() error = %v", err)
	}
	t.Cleanup(orch.Stop)

	return &pipeline{orch: orch, store: st, bus: b, image: image}
}

func input() campaign.BusinessInput {
	return campaign.BusinessInput{
		CompanyName: "Driftwood Coffee",
		Industry:    "specialty coffee",
		Description: "Small-batch roaster in Portland",
	}
}

func waitStatus(t *testing.T, p *pipeline, campaignID string, want campaign.Status) StatusReport {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	var last StatusReport
	for time.Now().Before(deadline) {
		report, err := p.orch.GetStatus(context.Background(), campaignID)
		if err != nil {
			t.Fatalf("GetStatus() error = %v", err)
		}
		if report.Status == want {
			return report
		}
		last = report
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("campaign never reached %s (last: %+v)", want, last)
	return StatusReport{}
}

func TestPipeline_EndToEnd(t *testing.T) {
	text := &scriptedText{responses: []string{analysisJSON, strategyJSON}}
	p := newPipeline(t, text, &fakeImage{})

	cc, err := p.orch.CreateCampaign(context.Background(), input())
	if err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}

	report := waitStatus(t, p, cc.CampaignID, campaign.StatusFinalized)
	if report.ProgressPercent != 100 {
		t.Fatalf("ProgressPercent = %d, want 100", report.ProgressPercent)
	}
	if report.Posts != 3 || report.AssetsSucceeded != 2 || report.AssetsFailed != 0 {
		t.Fatalf("report = %+v", report)
	}

	final, err := p.orch.GetContext(context.Background(), cc.CampaignID)
	if err != nil {
		t.Fatalf("GetContext() error = %v", err)
	}
	for _, stage := range []campaign.Stage{
		campaign.StageBusinessAnalysis, campaign.StageContentStrategy, campaign.StageVisualGeneration,
	} {
		if !final.StageComplete(stage) {
			t.Fatalf("stage %s not complete", stage)
		}
	}
	if final.BusinessAnalysis == nil || final.BusinessAnalysis.Brand.Voice != "warm" {
		t.Fatalf("BusinessAnalysis = %+v", final.BusinessAnalysis)
	}
	if final.ContentStrategy == nil || len(final.ContentStrategy.Posts) != 3 {
		t.Fatalf("ContentStrategy = %+v", final.ContentStrategy)
	}

	// One image post, one video post, one text-only post.
	if len(final.VisualAssets) != 2 {
		t.Fatalf("VisualAssets = %+v", final.VisualAssets)
	}
	kinds := map[campaign.AssetKind]int{}
	for _, a := range final.VisualAssets {
		if a.Status != campaign.AssetStatusSuccess {
			t.Fatalf("asset %s failed: %s", a.PostID, a.Error)
		}
		kinds[a.Kind]++
	}
	if kinds[campaign.AssetKindImage] != 1 || kinds[campaign.AssetKindVideo] != 1 {
		t.Fatalf("asset kinds = %v", kinds)
	}

	// Every persisted mutation bumped the version by exactly one.
	versions, err := p.store.ListVersions(context.Background(), cc.CampaignID)
	if err != nil {
		t.Fatalf("ListVersions() error = %v", err)
	}
	if int64(len(versions)) != final.Version {
		t.Fatalf("versions = %d, final version = %d", len(versions), final.Version)
	}
	for i, v := range versions {
		if v.Version != int64(i+1) {
			t.Fatalf("version %d at index %d", v.Version, i)
		}
	}

	// Audit trail captured the lifecycle.
	history, err := p.orch.MessageHistory(context.Background(), cc.CampaignID)
	if err != nil {
		t.Fatalf("MessageHistory() error = %v", err)
	}
	seen := map[bus.MessageType]bool{}
	for _, m := range history {
		seen[m.Type] = true
	}
	for _, want := range []bus.MessageType{
		bus.TypeCampaignCreated, bus.TypeBusinessAnalysisComplete,
		bus.TypeContentStrategyReady, bus.TypeCampaignFinalized,
	} {
		if !seen[want] {
			t.Fatalf("message history missing %s (history: %d messages)", want, len(history))
		}
	}
}

func TestPipeline_AnalysisFailureFailsCampaign(t *testing.T) {
	text := &scriptedText{errs: []error{
		&campaign.ContentPolicyError{Provider: "fake", Reason: "rejected"},
	}}
	p := newPipeline(t, text, &fakeImage{})

	cc, err := p.orch.CreateCampaign(context.Background(), input())
	if err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}

	waitStatus(t, p, cc.CampaignID, campaign.StatusFailed)
	final, _ := p.orch.GetContext(context.Background(), cc.CampaignID)
	if len(final.CompletedStages) != 0 {
		t.Fatalf("CompletedStages = %v, want none", final.CompletedStages)
	}

	var sawFailure bool
	for _, ev := range final.GenerationHistory {
		if ev.Type == campaign.EventStageFailed {
			sawFailure = true
			if ev.Payload["reason"] == "" {
				t.Fatalf("stage_failed event has no reason: %+v", ev)
			}
		}
	}
	if !sawFailure {
		t.Fatalf("no stage_failed event in history: %+v", final.GenerationHistory)
	}
}

func TestPipeline_VisualFailureStillFinalizes(t *testing.T) {
	text := &scriptedText{responses: []string{analysisJSON, strategyJSON}}
	image := &fakeImage{err: &campaign.ExternalServiceError{
		Provider: "fake", Operation: "image generation",
		Transient: false, Err: errors.New("boom"),
	}}
	p := newPipeline(t, text, image)

	cc, err := p.orch.CreateCampaign(context.Background(), input())
	if err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}

	report := waitStatus(t, p, cc.CampaignID, campaign.StatusFinalized)
	if report.AssetsSucceeded != 1 || report.AssetsFailed != 1 {
		t.Fatalf("report = %+v, want 1 success (video) + 1 explicit error (image)", report)
	}

	final, _ := p.orch.GetContext(context.Background(), cc.CampaignID)
	for _, a := range final.VisualAssets {
		if a.Kind == campaign.AssetKindImage {
			if a.Status != campaign.AssetStatusError || a.Error == "" || a.Ref != "" {
				t.Fatalf("image asset = %+v, want explicit error without content", a)
			}
		}
	}
}

func TestPipeline_CancelMidGeneration(t *testing.T) {
	text := &scriptedText{responses: []string{analysisJSON, strategyJSON}}
	image := &fakeImage{delay: 2 * time.Second}
	p := newPipeline(t, text, image)

	cc, err := p.orch.CreateCampaign(context.Background(), input())
	if err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}

	waitStatus(t, p, cc.CampaignID, campaign.StatusGeneratingVisuals)

	// The video post resolves immediately while the image hangs on its
	// delay; wait until the video asset is persisted before cancelling.
	deadline := time.Now().Add(5 * time.Second)
	for {
		cur, err := p.orch.GetContext(context.Background(), cc.CampaignID)
		if err != nil {
			t.Fatalf("GetContext() error = %v", err)
		}
		if len(cur.VisualAssets) >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("video asset was never persisted mid-stage")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := p.orch.Cancel(context.Background(), cc.CampaignID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	waitStatus(t, p, cc.CampaignID, campaign.StatusCancelled)

	// The cancelled state is stable: the interrupted visual stage must not
	// finalize over it.
	time.Sleep(200 * time.Millisecond)
	final, _ := p.orch.GetContext(context.Background(), cc.CampaignID)
	if final.Status != campaign.StatusCancelled {
		t.Fatalf("Status = %s after cancel, want cancelled", final.Status)
	}
	// Completed stages survive cancellation.
	if !final.StageComplete(campaign.StageBusinessAnalysis) || !final.StageComplete(campaign.StageContentStrategy) {
		t.Fatalf("CompletedStages = %v", final.CompletedStages)
	}
	// The asset that finished before the cancel stays in the stored context;
	// the interrupted image never lands.
	if len(final.VisualAssets) != 1 {
		t.Fatalf("VisualAssets = %+v, want only the completed video", final.VisualAssets)
	}
	for _, a := range final.VisualAssets {
		if a.Kind != campaign.AssetKindVideo || a.Status != campaign.AssetStatusSuccess {
			t.Fatalf("surviving asset = %+v, want completed video", a)
		}
	}

	// Cancelling a terminal campaign is an error.
	if err := p.orch.Cancel(context.Background(), cc.CampaignID); err == nil {
		t.Fatalf("Cancel() on terminal campaign succeeded")
	}
}

func TestRegeneratePost_AfterFinalize(t *testing.T) {
	text := &scriptedText{responses: []string{analysisJSON, strategyJSON}}
	image := &fakeImage{}
	p := newPipeline(t, text, image)

	cc, err := p.orch.CreateCampaign(context.Background(), input())
	if err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}
	waitStatus(t, p, cc.CampaignID, campaign.StatusFinalized)

	final, _ := p.orch.GetContext(context.Background(), cc.CampaignID)
	var imagePost campaign.SocialPost
	for _, post := range final.ContentStrategy.Posts {
		if post.VisualKind() == campaign.AssetKindImage {
			imagePost = post
		}
	}
	baseVersion := final.Version
	baseCalls := image.callCount()

	// Without force, the cache answers and no provider call happens.
	asset, err := p.orch.RegeneratePost(context.Background(), cc.CampaignID, imagePost.PostID, false)
	if err != nil {
		t.Fatalf("RegeneratePost() error = %v", err)
	}
	if !asset.FromCache {
		t.Fatalf("asset = %+v, want cache hit", asset)
	}
	if image.callCount() != baseCalls {
		t.Fatalf("image calls = %d, want %d", image.callCount(), baseCalls)
	}

	// With force, the provider is called again.
	asset, err = p.orch.RegeneratePost(context.Background(), cc.CampaignID, imagePost.PostID, true)
	if err != nil {
		t.Fatalf("RegeneratePost(force) error = %v", err)
	}
	if asset.FromCache || asset.Status != campaign.AssetStatusSuccess {
		t.Fatalf("asset = %+v, want fresh success", asset)
	}
	if image.callCount() != baseCalls+1 {
		t.Fatalf("image calls = %d, want %d", image.callCount(), baseCalls+1)
	}

	// Regeneration bumped the version without reopening the status.
	after, _ := p.orch.GetContext(context.Background(), cc.CampaignID)
	if after.Status != campaign.StatusFinalized {
		t.Fatalf("Status = %s, want finalized", after.Status)
	}
	if after.Version <= baseVersion {
		t.Fatalf("Version = %d, want > %d", after.Version, baseVersion)
	}

	// Unknown post and text-only post are rejected.
	if _, err := p.orch.RegeneratePost(context.Background(), cc.CampaignID, "nope", false); err == nil {
		t.Fatalf("RegeneratePost(unknown) succeeded")
	}
	for _, post := range final.ContentStrategy.Posts {
		if post.VisualKind() == "" {
			if _, err := p.orch.RegeneratePost(context.Background(), cc.CampaignID, post.PostID, false); err == nil {
				t.Fatalf("RegeneratePost(text-only) succeeded")
			}
		}
	}
}

func TestRegeneratePost_ConcurrentWritersReconcile(t *testing.T) {
	text := &scriptedText{responses: []string{analysisJSON, strategyJSON}}
	p := newPipeline(t, text, &fakeImage{})

	cc, err := p.orch.CreateCampaign(context.Background(), input())
	if err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}
	waitStatus(t, p, cc.CampaignID, campaign.StatusFinalized)

	final, _ := p.orch.GetContext(context.Background(), cc.CampaignID)
	var postIDs []string
	for _, post := range final.ContentStrategy.Posts {
		if post.VisualKind() != "" {
			postIDs = append(postIDs, post.PostID)
		}
	}
	if len(postIDs) < 2 {
		t.Fatalf("need at least 2 visual posts, have %d", len(postIDs))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(postIDs))
	for i, postID := range postIDs {
		wg.Add(1)
		go func(i int, postID string) {
			defer wg.Done()
			_, errs[i] = p.orch.RegeneratePost(context.Background(), cc.CampaignID, postID, true)
		}(i, postID)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent RegeneratePost(%s) error = %v", postIDs[i], err)
		}
	}

	after, _ := p.orch.GetContext(context.Background(), cc.CampaignID)
	if after.Version != final.Version+int64(2*len(postIDs)) {
		t.Fatalf("Version = %d, want %d (+2 per regeneration)", after.Version, final.Version+int64(2*len(postIDs)))
	}
}

func TestWatchProgress_StreamsLifecycle(t *testing.T) {
	// The text delay keeps the pipeline from finishing before the watch
	// subscription is in place.
	text := &scriptedText{responses: []string{analysisJSON, strategyJSON}, delay: 100 * time.Millisecond}
	p := newPipeline(t, text, &fakeImage{})

	cc, err := p.orch.CreateCampaign(context.Background(), input())
	if err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}
	watch, stop, err := p.orch.WatchProgress(cc.CampaignID)
	if err != nil {
		t.Fatalf("WatchProgress() error = %v", err)
	}
	defer stop()

	var sawProgress, sawFinalized bool
	timeout := time.After(10 * time.Second)
	for !sawFinalized {
		select {
		case msg := <-watch:
			switch msg.Type {
			case bus.TypeProgressUpdate:
				sawProgress = true
			case bus.TypeCampaignFinalized:
				sawFinalized = true
			}
		case <-timeout:
			t.Fatalf("progress=%v finalized=%v after timeout", sawProgress, sawFinalized)
		}
	}
	if !sawProgress {
		t.Fatalf("no progress updates before finalization")
	}
}

func TestCreateCampaign_RejectsInvalidInput(t *testing.T) {
	text := &scriptedText{}
	p := newPipeline(t, text, &fakeImage{})

	if _, err := p.orch.CreateCampaign(context.Background(), campaign.BusinessInput{}); err == nil {
		t.Fatalf("CreateCampaign() accepted empty input")
	}
}

func TestGetStatus_UnknownCampaign(t *testing.T) {
	p := newPipeline(t, &scriptedText{}, &fakeImage{})
	if _, err := p.orch.GetStatus(context.Background(), "missing"); !campaign.IsNotFound(err) {
		t.Fatalf("GetStatus(missing) error = %v, want NotFoundError", err)
	}
}
