package agents

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"adforge/internal/bus"
	"adforge/internal/campaign"
	"adforge/internal/capability"
	"adforge/internal/prompt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func testRegistry(t *testing.T) *prompt.Registry {
	t.Helper()
	r, err := prompt.NewRegistry("")
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r
}

func testScheduler(t *testing.T) *capability.Scheduler {
	t.Helper()
	s := capability.NewScheduler(capability.DefaultSchedulerConfig())
	t.Cleanup(s.Stop)
	return s
}

func createdMsg() bus.Message {
	return bus.Message{
		ID:         "msg-1",
		Sender:     "orchestrator",
		Type:       bus.TypeCampaignCreated,
		CampaignID: "camp-1",
		Payload: bus.CreatedPayload{Input: campaign.BusinessInput{
			CompanyName: "Driftwood Coffee",
			Industry:    "specialty coffee",
			Description: "Small-batch roaster in Portland",
		}},
	}
}

func TestAnalyst_ProducesStructuredAnalysis(t *testing.T) {
	text := &stubText{responses: []string{analysisJSON}}
	a := NewAnalyst(text, testScheduler(t), testRegistry(t), capability.Options{})

	out, err := a.HandleMessage(context.Background(), createdMsg())
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(out) != 1 || out[0].Type != bus.TypeBusinessAnalysisComplete {
		t.Fatalf("HandleMessage() out = %+v, want one business_analysis_complete", out)
	}

	payload, ok := out[0].Payload.(bus.AnalysisPayload)
	if !ok {
		t.Fatalf("payload type = %T", out[0].Payload)
	}
	// The model left the name blank; the input backfills it.
	if payload.Analysis.Company.Name != "Driftwood Coffee" {
		t.Fatalf("Company.Name = %q", payload.Analysis.Company.Name)
	}
	if payload.Analysis.Brand.Voice != "warm and knowledgeable" {
		t.Fatalf("Brand.Voice = %q", payload.Analysis.Brand.Voice)
	}
	if len(payload.Analysis.Audience.Segments) != 1 {
		t.Fatalf("Segments = %+v", payload.Analysis.Audience.Segments)
	}

	// The rendered prompt carried the business input.
	if !strings.Contains(text.prompts[0], "Driftwood Coffee") {
		t.Fatalf("prompt missing company name:\n%s", text.prompts[0])
	}
}

func TestAnalyst_RejectsUnparseableOutput(t *testing.T) {
	text := &stubText{responses: []string{"I cannot produce JSON today."}}
	a := NewAnalyst(text, testScheduler(t), testRegistry(t), capability.Options{})

	if _, err := a.HandleMessage(context.Background(), createdMsg()); err == nil {
		t.Fatalf("HandleMessage() accepted unparseable output")
	}
}

func TestAnalyst_RejectsEmptyAnalysis(t *testing.T) {
	text := &stubText{responses: []string{`{"company": {"name": "X"}}`}}
	a := NewAnalyst(text, testScheduler(t), testRegistry(t), capability.Options{})

	if _, err := a.HandleMessage(context.Background(), createdMsg()); err == nil {
		t.Fatalf("HandleMessage() accepted analysis with no brand or audience")
	}
}

func TestAnalyst_ContentPolicyNotRetried(t *testing.T) {
	policyErr := &campaign.ContentPolicyError{Provider: "gemini", Reason: "blocked"}
	text := &stubText{errs: []error{policyErr, policyErr, policyErr}}
	a := NewAnalyst(text, testScheduler(t), testRegistry(t), capability.Options{MaxRetries: 2})

	_, err := a.HandleMessage(context.Background(), createdMsg())
	if err == nil {
		t.Fatalf("HandleMessage() succeeded on policy error")
	}
	if got := text.callCount(); got != 1 {
		t.Fatalf("text calls = %d, want 1", got)
	}
}

func TestAnalyst_TransientErrorRetried(t *testing.T) {
	transient := &campaign.ExternalServiceError{
		Provider: "gemini", Operation: "text generation", Transient: true,
		Err: context.DeadlineExceeded,
	}
	text := &stubText{
		errs:      []error{transient, nil},
		responses: []string{"", analysisJSON},
	}
	a := NewAnalyst(text, testScheduler(t), testRegistry(t), capability.Options{MaxRetries: 2})

	if _, err := a.HandleMessage(context.Background(), createdMsg()); err != nil {
		t.Fatalf("HandleMessage() error = %v after transient failure", err)
	}
	if got := text.callCount(); got != 2 {
		t.Fatalf("text calls = %d, want 2", got)
	}
}

func TestAnalyst_WrongPayloadType(t *testing.T) {
	a := NewAnalyst(&stubText{}, testScheduler(t), testRegistry(t), capability.Options{})
	msg := createdMsg()
	msg.Payload = "garbage"
	if _, err := a.HandleMessage(context.Background(), msg); err == nil {
		t.Fatalf("HandleMessage() accepted wrong payload type")
	}
}
