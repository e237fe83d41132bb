// Package orchestrator owns the campaign lifecycle. It is the only writer to
// the context store: agents publish results on the bus, and a per-campaign
// actor goroutine applies them to the versioned context one persisted
// mutation at a time. Every save goes through the optimistic-concurrency
// retry loop, so a concurrent writer (cancel, regeneration) surfaces as a
// version conflict and is reconciled against fresh state instead of
// overwriting it.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"adforge/internal/bus"
	"adforge/internal/campaign"
	"adforge/internal/logging"
	"adforge/internal/store"
	"adforge/internal/visual"
)

// SenderID is the orchestrator's bus identity.
const SenderID = "campaign-orchestrator"

// maxSaveRetries bounds the reload-and-reapply loop on version conflicts.
const maxSaveRetries = 5

// actorBuffer is the per-campaign mailbox depth.
const actorBuffer = 16

// Orchestrator drives campaigns through the pipeline state machine.
type Orchestrator struct {
	store  store.ContextStore
	msgs   store.MessageStore
	bus    *bus.Bus
	visual *visual.Orchestrator

	mu      sync.Mutex
	actors  map[string]*actor
	baseCtx context.Context
	sub     *bus.Subscription
	wg      sync.WaitGroup
	started bool
}

// actor serializes all pipeline work for one campaign. Its context is
// cancelled by Cancel, which aborts in-flight generation.
type actor struct {
	campaignID string
	ch         chan bus.Message
	ctx        context.Context
	cancel     context.CancelFunc
}

// New creates a campaign orchestrator. msgs may be nil; message history then
// falls back to the bus's in-memory history.
func New(st store.ContextStore, msgs store.MessageStore, b *bus.Bus, vis *visual.Orchestrator) *Orchestrator {
	return &Orchestrator{
		store:  st,
		msgs:   msgs,
		bus:    b,
		visual: vis,
		actors: make(map[string]*actor),
	}
}

// Start subscribes to the pipeline messages and begins dispatching.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return nil
	}

	sub, err := o.bus.Subscribe(SenderID,
		bus.TypeBusinessAnalysisComplete,
		bus.TypeContentStrategyReady,
		bus.TypeStageFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe orchestrator: %w", err)
	}
	o.sub = sub
	o.baseCtx = ctx
	o.started = true

	o.wg.Add(1)
	go o.dispatch(ctx, sub)
	logging.Campaign("orchestrator online")
	return nil
}

// Stop tears down the dispatcher and all campaign actors.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	sub := o.sub
	actors := o.actors
	o.actors = make(map[string]*actor)
	o.mu.Unlock()

	o.bus.Unsubscribe(sub)
	for _, a := range actors {
		a.cancel()
	}
	o.wg.Wait()
}

// dispatch routes bus messages to per-campaign actors so campaigns progress
// independently while each campaign's mutations stay serialized.
func (o *Orchestrator) dispatch(ctx context.Context, sub *bus.Subscription) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			a := o.actorFor(msg.CampaignID)
			if a == nil {
				return // shutting down
			}
			select {
			case a.ch <- msg:
			case <-a.ctx.Done():
				logging.CampaignDebug("dropping %s for cancelled campaign %s", msg.Type, msg.CampaignID)
			case <-ctx.Done():
				return
			}
		}
	}
}

// actorFor returns the campaign's actor, creating it on first use.
func (o *Orchestrator) actorFor(campaignID string) *actor {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		return nil
	}
	if a, ok := o.actors[campaignID]; ok {
		return a
	}
	actorCtx, cancel := context.WithCancel(o.baseCtx)
	a := &actor{
		campaignID: campaignID,
		ch:         make(chan bus.Message, actorBuffer),
		ctx:        actorCtx,
		cancel:     cancel,
	}
	o.actors[campaignID] = a

	o.wg.Add(1)
	go o.run(a)
	return a
}

func (o *Orchestrator) run(a *actor) {
	defer o.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case msg := <-a.ch:
			o.handle(a, msg)
		}
	}
}

func (o *Orchestrator) handle(a *actor, msg bus.Message) {
	var err error
	switch msg.Type {
	case bus.TypeBusinessAnalysisComplete:
		err = o.applyAnalysis(a.ctx, msg)
	case bus.TypeContentStrategyReady:
		err = o.applyStrategy(a.ctx, msg)
		if err == nil {
			err = o.runVisualStage(a.ctx, msg.CampaignID)
		}
	case bus.TypeStageFailed:
		err = o.applyStageFailure(a.ctx, msg)
	default:
		logging.CampaignDebug("ignoring %s", msg.Type)
	}
	if err != nil && a.ctx.Err() == nil {
		logging.Get(logging.CategoryCampaign).Error("handling %s for campaign %s failed: %v",
			msg.Type, msg.CampaignID, err)
	}
}

// mutate loads the campaign, applies fn, and saves, retrying on version
// conflicts with fresh state. fn returning (nil, nil) means "nothing to do"
// (typically because the campaign reached a terminal state concurrently).
func (o *Orchestrator) mutate(ctx context.Context, campaignID string, fn func(cur *campaign.CampaignContext) (*campaign.CampaignContext, error)) (*campaign.CampaignContext, error) {
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		cur, err := o.store.Load(ctx, campaignID)
		if err != nil {
			return nil, err
		}
		next, err := fn(cur)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return cur, nil
		}
		if err := o.store.Save(ctx, next); err != nil {
			if campaign.IsVersionConflict(err) {
				logging.CampaignDebug("version conflict on campaign %s (attempt %d), reloading", campaignID, attempt+1)
				continue
			}
			return nil, err
		}
		return next, nil
	}
	return nil, fmt.Errorf("campaign %s: gave up after %d version conflicts", campaignID, maxSaveRetries)
}

// CreateCampaign validates the input, persists a fresh context, and kicks
// off the analysis stage.
func (o *Orchestrator) CreateCampaign(ctx context.Context, input campaign.BusinessInput) (*campaign.CampaignContext, error) {
	if err := campaign.ValidateInput(input); err != nil {
		return nil, err
	}

	cc := campaign.NewContext(input)
	if err := o.store.Save(ctx, cc); err != nil {
		return nil, fmt.Errorf("failed to persist new campaign: %w", err)
	}
	logging.Campaign("campaign %s created for %q", cc.CampaignID, input.CompanyName)

	// Materialize the actor before the first message can arrive.
	if o.actorFor(cc.CampaignID) == nil {
		return nil, fmt.Errorf("orchestrator is not running")
	}

	next, err := o.mutate(ctx, cc.CampaignID, func(cur *campaign.CampaignContext) (*campaign.CampaignContext, error) {
		n := cur.Apply(campaign.GenerationEvent{
			Type:    campaign.EventStageStarted,
			Payload: map[string]string{"stage": string(campaign.StageBusinessAnalysis)},
		})
		if err := n.Transition(campaign.StatusAnalyzingBusiness); err != nil {
			return nil, err
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}

	if err := o.bus.Publish(bus.Message{
		Sender:     SenderID,
		Type:       bus.TypeCampaignCreated,
		CampaignID: cc.CampaignID,
		Payload:    bus.CreatedPayload{Input: input},
	}); err != nil {
		return nil, fmt.Errorf("failed to announce campaign: %w", err)
	}
	return next, nil
}

func (o *Orchestrator) applyAnalysis(ctx context.Context, msg bus.Message) error {
	payload, ok := msg.Payload.(bus.AnalysisPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", msg.Payload, msg.Type)
	}

	_, err := o.mutate(ctx, msg.CampaignID, func(cur *campaign.CampaignContext) (*campaign.CampaignContext, error) {
		if cur.Status.Terminal() {
			return nil, nil
		}
		analysis := payload.Analysis
		n := cur.Apply(campaign.GenerationEvent{
			Type:    campaign.EventStageCompleted,
			Payload: map[string]string{"stage": string(campaign.StageBusinessAnalysis)},
		})
		n.BusinessAnalysis = &analysis
		n.MarkStageComplete(campaign.StageBusinessAnalysis)
		if err := n.Transition(campaign.StatusStrategyReady); err != nil {
			return nil, err
		}
		return n, nil
	})
	if err == nil {
		logging.Campaign("campaign %s: business analysis applied", msg.CampaignID)
	}
	return err
}

func (o *Orchestrator) applyStrategy(ctx context.Context, msg bus.Message) error {
	payload, ok := msg.Payload.(bus.StrategyPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", msg.Payload, msg.Type)
	}

	_, err := o.mutate(ctx, msg.CampaignID, func(cur *campaign.CampaignContext) (*campaign.CampaignContext, error) {
		if cur.Status.Terminal() {
			return nil, nil
		}
		strategy := payload.Strategy
		n := cur.Apply(campaign.GenerationEvent{
			Type:    campaign.EventStageCompleted,
			Payload: map[string]string{"stage": string(campaign.StageContentStrategy), "posts": fmt.Sprint(len(strategy.Posts))},
		})
		n.ContentStrategy = &strategy
		n.MarkStageComplete(campaign.StageContentStrategy)
		if err := n.Transition(campaign.StatusGeneratingVisuals); err != nil {
			return nil, err
		}
		return n, nil
	})
	if err == nil {
		logging.Campaign("campaign %s: content strategy applied (%d posts)",
			msg.CampaignID, len(payload.Strategy.Posts))
	}
	return err
}

// runVisualStage fans out visual generation and records each outcome as its
// own persisted version, then finalizes. A post's failure is recorded as an
// explicit error asset and never blocks finalization; only cancellation
// stops the stage.
func (o *Orchestrator) runVisualStage(ctx context.Context, campaignID string) error {
	cc, err := o.store.Load(ctx, campaignID)
	if err != nil {
		return err
	}

	// Each asset is persisted the moment it resolves, not after the whole
	// fan-out returns, so a cancellation mid-stage keeps every asset that
	// finished before it. The mutex serializes the saves; assets resolving
	// after a terminal write are skipped inside mutate.
	var (
		persistMu  sync.Mutex
		persistErr error
	)
	persist := func(asset campaign.VisualAsset) {
		persistMu.Lock()
		defer persistMu.Unlock()
		evType := campaign.EventAssetGenerated
		payload := map[string]string{"kind": string(asset.Kind), "provider": asset.Provider}
		if asset.Status == campaign.AssetStatusError {
			evType = campaign.EventAssetFailed
			payload = map[string]string{"kind": string(asset.Kind), "error": asset.Error}
		}
		if _, err := o.mutate(ctx, campaignID, func(cur *campaign.CampaignContext) (*campaign.CampaignContext, error) {
			if cur.Status.Terminal() {
				return nil, nil
			}
			n := cur.Apply(campaign.GenerationEvent{Type: evType, PostID: asset.PostID, Payload: payload})
			n.VisualAssets[asset.PostID] = asset
			return n, nil
		}); err != nil && persistErr == nil {
			persistErr = err
		}
	}

	_, genErr := o.visual.GenerateAll(ctx, cc, persist)
	if genErr != nil {
		// Generation was interrupted (cancel or shutdown); the terminal
		// state, if any, was written by whoever interrupted us.
		logging.CampaignDebug("campaign %s: visual stage interrupted: %v", campaignID, genErr)
		return nil
	}
	if persistErr != nil {
		return persistErr
	}

	final, err := o.mutate(ctx, campaignID, func(cur *campaign.CampaignContext) (*campaign.CampaignContext, error) {
		if cur.Status.Terminal() {
			return nil, nil
		}
		n := cur.Apply(campaign.GenerationEvent{Type: campaign.EventCampaignFinalized})
		n.MarkStageComplete(campaign.StageVisualGeneration)
		if err := n.Transition(campaign.StatusFinalized); err != nil {
			return nil, err
		}
		return n, nil
	})
	if err != nil {
		return err
	}
	if final.Status != campaign.StatusFinalized {
		return nil // reached a terminal state concurrently
	}

	logging.Campaign("campaign %s finalized at version %d (%d assets)",
		campaignID, final.Version, len(final.VisualAssets))
	return o.bus.Publish(bus.Message{
		Sender:     SenderID,
		Type:       bus.TypeCampaignFinalized,
		CampaignID: campaignID,
	})
}

func (o *Orchestrator) applyStageFailure(ctx context.Context, msg bus.Message) error {
	payload, ok := msg.Payload.(bus.StageFailedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", msg.Payload, msg.Type)
	}

	_, err := o.mutate(ctx, msg.CampaignID, func(cur *campaign.CampaignContext) (*campaign.CampaignContext, error) {
		if cur.Status.Terminal() {
			return nil, nil
		}
		n := cur.Apply(campaign.GenerationEvent{
			Type:    campaign.EventStageFailed,
			Payload: map[string]string{"stage": string(payload.Stage), "reason": payload.Reason},
		})
		if err := n.Transition(campaign.StatusFailed); err != nil {
			return nil, err
		}
		return n, nil
	})
	if err == nil {
		logging.Campaign("campaign %s failed at stage %s: %s", msg.CampaignID, payload.Stage, payload.Reason)
	}
	return err
}

// RecordDeliveryFailure appends a delivery_failed event to the campaign's
// audit trail. Wired as the bus's delivery-failure handler.
func (o *Orchestrator) RecordDeliveryFailure(msg bus.Message, agentID string) {
	ctx := o.baseCtx
	if ctx == nil {
		return
	}
	if _, err := o.mutate(ctx, msg.CampaignID, func(cur *campaign.CampaignContext) (*campaign.CampaignContext, error) {
		return cur.Apply(campaign.GenerationEvent{
			Type: campaign.EventDeliveryFailed,
			Payload: map[string]string{
				"message_type": string(msg.Type),
				"subscriber":   agentID,
			},
		}), nil
	}); err != nil {
		logging.Get(logging.CategoryCampaign).Error("could not record delivery failure for %s: %v",
			msg.CampaignID, err)
	}
}
