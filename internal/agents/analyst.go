package agents

import (
	"context"
	"fmt"

	"adforge/internal/bus"
	"adforge/internal/campaign"
	"adforge/internal/capability"
	"adforge/internal/logging"
	"adforge/internal/prompt"
)

// AnalystID is the business analyst's bus identity.
const AnalystID = "business-analyst"

// Analyst turns the raw business input into a structured business analysis.
// It is the first reasoning stage of the pipeline.
type Analyst struct {
	text      capability.TextGenerator
	scheduler *capability.Scheduler
	registry  *prompt.Registry
	opts      capability.Options
}

// NewAnalyst creates the business analyst agent.
func NewAnalyst(text capability.TextGenerator, scheduler *capability.Scheduler, registry *prompt.Registry, opts capability.Options) *Analyst {
	return &Analyst{text: text, scheduler: scheduler, registry: registry, opts: opts}
}

func (a *Analyst) ID() string            { return AnalystID }
func (a *Analyst) Stage() campaign.Stage { return campaign.StageBusinessAnalysis }

func (a *Analyst) Handles() []bus.MessageType {
	return []bus.MessageType{bus.TypeCampaignCreated}
}

// HandleMessage analyzes the campaign's business input and emits
// business_analysis_complete.
func (a *Analyst) HandleMessage(ctx context.Context, msg bus.Message) ([]bus.Message, error) {
	payload, err := createdPayload(msg)
	if err != nil {
		return nil, err
	}
	input := payload.Input

	rendered, err := a.registry.Render(prompt.TemplateBusinessAnalysis, map[string]any{
		"CompanyName":  input.CompanyName,
		"Industry":     input.Industry,
		"Description":  input.Description,
		"Goals":        input.Goals,
		"TargetMarket": input.TargetMarket,
	})
	if err != nil {
		return nil, err
	}

	logging.Agents("analyzing business %q (campaign=%s)", input.CompanyName, msg.CampaignID)
	brand := capability.BrandContext{Company: input.CompanyName}

	var raw string
	err = capability.Retry(ctx, "business analysis", a.opts.MaxRetries, func(ctx context.Context) error {
		return a.scheduler.Do(ctx, capability.KindText, func(ctx context.Context) error {
			var callErr error
			raw, callErr = a.text.GenerateText(ctx, rendered, brand, a.opts)
			return callErr
		})
	})
	if err != nil {
		return nil, err
	}

	var analysis campaign.BusinessAnalysis
	if err := decodeJSON(raw, &analysis); err != nil {
		return nil, fmt.Errorf("analyst produced unparseable output: %w", err)
	}
	if err := validateAnalysis(&analysis, input); err != nil {
		return nil, err
	}

	return []bus.Message{{
		Type:       bus.TypeBusinessAnalysisComplete,
		CampaignID: msg.CampaignID,
		Payload:    bus.AnalysisPayload{Analysis: analysis},
	}}, nil
}

// validateAnalysis rejects structurally empty analyses before they poison
// downstream stages, and backfills identity fields the model omitted.
func validateAnalysis(a *campaign.BusinessAnalysis, input campaign.BusinessInput) error {
	if a.Company.Name == "" {
		a.Company.Name = input.CompanyName
	}
	if a.Company.Industry == "" {
		a.Company.Industry = input.Industry
	}
	if a.Brand.Voice == "" && a.Brand.Tone == "" {
		return fmt.Errorf("analysis missing brand voice and tone")
	}
	if a.Audience.Primary == "" {
		return fmt.Errorf("analysis missing primary audience")
	}
	if a.Objectives.Primary == "" {
		return fmt.Errorf("analysis missing primary objective")
	}
	return nil
}

func createdPayload(msg bus.Message) (bus.CreatedPayload, error) {
	switch p := msg.Payload.(type) {
	case bus.CreatedPayload:
		return p, nil
	case *bus.CreatedPayload:
		return *p, nil
	default:
		return bus.CreatedPayload{}, fmt.Errorf("unexpected payload %T for %s", msg.Payload, msg.Type)
	}
}
