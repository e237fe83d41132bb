package bus

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"adforge/internal/campaign"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublish_RejectsMalformedMessages(t *testing.T) {
	b := New()
	defer b.Close()

	tests := []struct {
		name string
		msg  Message
	}{
		{"missing type", Message{Sender: "a", CampaignID: "c"}},
		{"missing sender", Message{Type: TypeProgressUpdate, CampaignID: "c"}},
		{"missing campaign", Message{Type: TypeProgressUpdate, Sender: "a"}},
	}
	for _, tt := range tests {
		if err := b.Publish(tt.msg); err == nil {
			t.Errorf("Publish(%s) expected error", tt.name)
		}
	}
}

func TestPublish_NoSubscribersIsNotAnError(t *testing.T) {
	b := New()
	defer b.Close()

	err := b.Publish(Message{Type: TypeProgressUpdate, Sender: "orchestrator", CampaignID: "c1"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got := len(b.History("c1")); got != 1 {
		t.Fatalf("History() len = %d, want 1", got)
	}
}

func TestPublish_DeliversInPublishOrderPerSender(t *testing.T) {
	b := New()
	defer b.Close()

	sub, err := b.Subscribe("strategist", TypeProgressUpdate)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	const n = 20
	for i := 0; i < n; i++ {
		msg := Message{
			Type:       TypeProgressUpdate,
			Sender:     "visual",
			CampaignID: "c1",
			Payload:    ProgressPayload{Completed: i, Total: n},
		}
		if err := b.Publish(msg); err != nil {
			t.Fatalf("Publish(%d) error = %v", i, err)
		}
	}

	for i := 0; i < n; i++ {
		select {
		case msg := <-sub.C():
			p, ok := msg.Payload.(ProgressPayload)
			if !ok {
				t.Fatalf("payload type = %T, want ProgressPayload", msg.Payload)
			}
			if p.Completed != i {
				t.Fatalf("message %d out of order: got completed=%d", i, p.Completed)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
	b.Unsubscribe(sub)
}

func TestPublish_FiltersByTypeAndRecipient(t *testing.T) {
	b := New()
	defer b.Close()

	analyst, _ := b.Subscribe("analyst", TypeCampaignCreated)
	strategist, _ := b.Subscribe("strategist", TypeBusinessAnalysisComplete)

	if err := b.Publish(Message{
		Type:       TypeBusinessAnalysisComplete,
		Sender:     "analyst",
		CampaignID: "c1",
		Recipients: []string{"strategist"},
		Payload:    AnalysisPayload{Analysis: campaign.BusinessAnalysis{}},
	}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-strategist.C():
	case <-time.After(time.Second):
		t.Fatalf("strategist never received the message")
	}
	select {
	case msg := <-analyst.C():
		t.Fatalf("analyst received unexpected message %s", msg.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHistory_IsPerCampaignAndOrdered(t *testing.T) {
	b := New()
	defer b.Close()

	for i := 0; i < 3; i++ {
		_ = b.Publish(Message{Type: TypeProgressUpdate, Sender: "v", CampaignID: "c1",
			CorrelationID: fmt.Sprintf("m%d", i)})
	}
	_ = b.Publish(Message{Type: TypeProgressUpdate, Sender: "v", CampaignID: "c2"})

	h1 := b.History("c1")
	if len(h1) != 3 {
		t.Fatalf("History(c1) len = %d, want 3", len(h1))
	}
	for i, msg := range h1 {
		if msg.CorrelationID != fmt.Sprintf("m%d", i) {
			t.Fatalf("history out of order at %d: %s", i, msg.CorrelationID)
		}
	}
	if len(b.History("c2")) != 1 {
		t.Fatalf("History(c2) len = %d, want 1", len(b.History("c2")))
	}
	if len(b.History("unknown")) != 0 {
		t.Fatalf("History(unknown) should be empty")
	}
}

func TestPublish_FullSubscriberReportsDeliveryFailure(t *testing.T) {
	var mu sync.Mutex
	var failed []string

	b := New(
		WithDeliveryTimeout(20*time.Millisecond),
		WithDeliveryFailureHandler(func(msg Message, agentID string) {
			mu.Lock()
			failed = append(failed, agentID)
			mu.Unlock()
		}),
	)
	defer b.Close()

	sub, _ := b.Subscribe("slowpoke", TypeProgressUpdate)
	_ = sub // never drained

	// Fill the buffer, then one more to trigger the timeout path.
	for i := 0; i < subscriberBuffer+1; i++ {
		_ = b.Publish(Message{Type: TypeProgressUpdate, Sender: "v", CampaignID: "c1"})
	}

	mu.Lock()
	defer mu.Unlock()
	if len(failed) != 1 || failed[0] != "slowpoke" {
		t.Fatalf("delivery failures = %v, want one for slowpoke", failed)
	}
}

func TestPublish_RecorderReceivesMessages(t *testing.T) {
	rec := &memRecorder{}
	b := New(WithRecorder(rec))
	defer b.Close()

	_ = b.Publish(Message{Type: TypeCampaignFinalized, Sender: "orchestrator", CampaignID: "c1"})

	if len(rec.msgs) != 1 || rec.msgs[0].Type != TypeCampaignFinalized {
		t.Fatalf("recorder msgs = %+v, want one finalized message", rec.msgs)
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	b := New()
	defer b.Close()

	sub, _ := b.Subscribe("analyst", TypeCampaignCreated)
	b.Unsubscribe(sub)

	if _, ok := <-sub.C(); ok {
		t.Fatalf("expected closed channel after Unsubscribe")
	}
	// Publishing after unsubscribe must not panic or deliver.
	if err := b.Publish(Message{Type: TypeCampaignCreated, Sender: "o", CampaignID: "c1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
}

type memRecorder struct {
	msgs []Message
}

func (r *memRecorder) RecordMessage(msg Message) error {
	r.msgs = append(r.msgs, msg)
	return nil
}
