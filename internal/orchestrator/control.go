package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"adforge/internal/bus"
	"adforge/internal/campaign"
	"adforge/internal/logging"
)

// StatusReport is the operator-facing view of a campaign.
type StatusReport struct {
	CampaignID      string           `json:"campaign_id"`
	Status          campaign.Status  `json:"status"`
	ProgressPercent int              `json:"progress_percent"`
	CompletedStages []campaign.Stage `json:"completed_stages,omitempty"`
	Version         int64            `json:"version"`
	Posts           int              `json:"posts"`
	AssetsSucceeded int              `json:"assets_succeeded"`
	AssetsFailed    int              `json:"assets_failed"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// GetStatus summarizes a campaign's progress.
func (o *Orchestrator) GetStatus(ctx context.Context, campaignID string) (StatusReport, error) {
	cc, err := o.store.Load(ctx, campaignID)
	if err != nil {
		return StatusReport{}, err
	}

	report := StatusReport{
		CampaignID:      cc.CampaignID,
		Status:          cc.Status,
		ProgressPercent: cc.ProgressPercent(),
		CompletedStages: cc.CompletedStages,
		Version:         cc.Version,
		UpdatedAt:       cc.UpdatedAt,
	}
	if cc.ContentStrategy != nil {
		report.Posts = len(cc.ContentStrategy.Posts)
	}
	for _, a := range cc.VisualAssets {
		if a.Status == campaign.AssetStatusSuccess {
			report.AssetsSucceeded++
		} else {
			report.AssetsFailed++
		}
	}
	return report, nil
}

// GetContext returns the full campaign context at its latest version.
func (o *Orchestrator) GetContext(ctx context.Context, campaignID string) (*campaign.CampaignContext, error) {
	return o.store.Load(ctx, campaignID)
}

// MessageHistory returns the campaign's bus traffic, from the persistent
// store when one is attached, otherwise from the bus's in-memory history.
func (o *Orchestrator) MessageHistory(ctx context.Context, campaignID string) ([]bus.Message, error) {
	if o.msgs != nil {
		return o.msgs.MessageHistory(ctx, campaignID)
	}
	return o.bus.History(campaignID), nil
}

// Cancel moves a campaign to the Cancelled terminal state and aborts any
// in-flight generation. Cancelling a terminal campaign is an error.
func (o *Orchestrator) Cancel(ctx context.Context, campaignID string) error {
	next, err := o.mutate(ctx, campaignID, func(cur *campaign.CampaignContext) (*campaign.CampaignContext, error) {
		if cur.Status.Terminal() {
			return nil, &campaign.ValidationError{
				Field:  "status",
				Reason: fmt.Sprintf("campaign is already %s", cur.Status),
			}
		}
		n := cur.Apply(campaign.GenerationEvent{Type: campaign.EventCampaignCancelled})
		if err := n.Transition(campaign.StatusCancelled); err != nil {
			return nil, err
		}
		return n, nil
	})
	if err != nil {
		return err
	}

	// Stop whatever the campaign's actor is doing right now.
	o.mu.Lock()
	if a, ok := o.actors[campaignID]; ok {
		a.cancel()
	}
	o.mu.Unlock()

	logging.Campaign("campaign %s cancelled at version %d", campaignID, next.Version)
	return o.bus.Publish(bus.Message{
		Sender:     SenderID,
		Type:       bus.TypeCampaignCancelled,
		CampaignID: campaignID,
	})
}

// RegeneratePost regenerates one post's visual asset. The campaign may be
// Finalized: regeneration reopens only that post's entry and bumps the
// version; the status never rolls back. force bypasses the generation cache,
// including cached permanent errors.
func (o *Orchestrator) RegeneratePost(ctx context.Context, campaignID, postID string, force bool) (campaign.VisualAsset, error) {
	cc, err := o.store.Load(ctx, campaignID)
	if err != nil {
		return campaign.VisualAsset{}, err
	}
	if cc.Status == campaign.StatusCancelled {
		return campaign.VisualAsset{}, &campaign.ValidationError{Field: "status", Reason: "campaign is cancelled"}
	}
	if cc.ContentStrategy == nil {
		return campaign.VisualAsset{}, &campaign.ValidationError{Field: "content_strategy", Reason: "campaign has no strategy yet"}
	}
	post, ok := cc.ContentStrategy.PostByID(postID)
	if !ok {
		return campaign.VisualAsset{}, &campaign.ValidationError{Field: "post_id", Reason: fmt.Sprintf("unknown post %q", postID)}
	}
	if post.VisualKind() == "" {
		return campaign.VisualAsset{}, &campaign.ValidationError{Field: "post_id", Reason: "post does not require a visual"}
	}

	if _, err := o.mutate(ctx, campaignID, func(cur *campaign.CampaignContext) (*campaign.CampaignContext, error) {
		if cur.Status == campaign.StatusCancelled {
			return nil, &campaign.ValidationError{Field: "status", Reason: "campaign is cancelled"}
		}
		return cur.Apply(campaign.GenerationEvent{
			Type:    campaign.EventRegenerationRequested,
			PostID:  postID,
			Payload: map[string]string{"force": fmt.Sprint(force)},
		}), nil
	}); err != nil {
		return campaign.VisualAsset{}, err
	}

	if err := o.bus.Publish(bus.Message{
		Sender:     SenderID,
		Type:       bus.TypeRegenerateRequested,
		CampaignID: campaignID,
		Payload:    bus.RegeneratePayload{PostID: postID, Force: force},
	}); err != nil {
		return campaign.VisualAsset{}, err
	}

	logging.Campaign("campaign %s: regenerating post %s (force=%v)", campaignID, postID, force)
	asset := o.visual.GeneratePost(ctx, cc, post, force)

	evType := campaign.EventAssetGenerated
	payload := map[string]string{"kind": string(asset.Kind), "provider": asset.Provider, "regenerated": "true"}
	if asset.Status == campaign.AssetStatusError {
		evType = campaign.EventAssetFailed
		payload = map[string]string{"kind": string(asset.Kind), "error": asset.Error, "regenerated": "true"}
	}
	if _, err := o.mutate(ctx, campaignID, func(cur *campaign.CampaignContext) (*campaign.CampaignContext, error) {
		if cur.Status == campaign.StatusCancelled {
			return nil, &campaign.ValidationError{Field: "status", Reason: "campaign is cancelled"}
		}
		n := cur.Apply(campaign.GenerationEvent{Type: evType, PostID: postID, Payload: payload})
		n.VisualAssets[postID] = asset
		return n, nil
	}); err != nil {
		return campaign.VisualAsset{}, err
	}
	return asset, nil
}

// WatchProgress streams one campaign's progress and lifecycle messages.
// The returned stop function must be called to release the subscription.
func (o *Orchestrator) WatchProgress(campaignID string) (<-chan bus.Message, func(), error) {
	sub, err := o.bus.Subscribe("watch-"+uuid.NewString(),
		bus.TypeProgressUpdate,
		bus.TypeVisualAssetGenerated,
		bus.TypeVisualAssetFailed,
		bus.TypeStageFailed,
		bus.TypeCampaignFinalized,
		bus.TypeCampaignCancelled,
	)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan bus.Message, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case msg, ok := <-sub.C():
				if !ok {
					return
				}
				if msg.CampaignID != campaignID {
					continue
				}
				select {
				case out <- msg:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			o.bus.Unsubscribe(sub)
		})
	}
	return out, stop, nil
}
