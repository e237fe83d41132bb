// Package bus implements the typed publish/subscribe channel that connects
// the pipeline agents. Agents never call each other directly: every stage
// hand-off travels through the bus as a structured message, so each agent can
// be tested in isolation against recorded messages.
//
// Delivery semantics: at-least-once per subscriber, in publish order per
// sender. There is no global total order across senders. Nothing is dropped
// silently: a subscriber that cannot accept a message within the delivery
// timeout triggers the delivery-failure handler, which records the loss in
// the campaign audit trail.
package bus

import (
	"fmt"
	"sync"
	"time"

	"adforge/internal/campaign"
	"adforge/internal/logging"

	"github.com/google/uuid"
)

// MessageType enumerates the messages that flow between agents.
type MessageType string

const (
	TypeCampaignCreated          MessageType = "campaign_created"
	TypeBusinessAnalysisComplete MessageType = "business_analysis_complete"
	TypeContentStrategyReady     MessageType = "content_strategy_ready"
	TypeVisualAssetGenerated     MessageType = "visual_asset_generated"
	TypeVisualAssetFailed        MessageType = "visual_asset_failed"
	TypeProgressUpdate           MessageType = "progress_update"
	TypeStageFailed              MessageType = "stage_failed"
	TypeCampaignFinalized        MessageType = "campaign_finalized"
	TypeCampaignCancelled        MessageType = "campaign_cancelled"
	TypeRegenerateRequested      MessageType = "regenerate_requested"
)

// Message is the bus envelope. Payload holds one of the typed payload
// structs below, keyed by Type.
type Message struct {
	ID               string      `json:"id"`
	Sender           string      `json:"sender"`
	Recipients       []string    `json:"recipients,omitempty"`
	Type             MessageType `json:"type"`
	CampaignID       string      `json:"campaign_id"`
	Payload          any         `json:"payload,omitempty"`
	RequiresResponse bool        `json:"requires_response,omitempty"`
	CorrelationID    string      `json:"correlation_id,omitempty"`
	SentAt           time.Time   `json:"sent_at"`
}

// Typed payloads, one per message type that carries data.

// CreatedPayload announces a new campaign and carries its raw input.
type CreatedPayload struct {
	Input campaign.BusinessInput `json:"input"`
}

// AnalysisPayload carries the analyst's completed business analysis.
type AnalysisPayload struct {
	Analysis campaign.BusinessAnalysis `json:"analysis"`
}

// StrategyPayload carries the strategist's completed content strategy.
type StrategyPayload struct {
	Strategy campaign.ContentStrategy `json:"strategy"`
}

// AssetPayload carries one generated (or failed) visual asset.
type AssetPayload struct {
	Asset campaign.VisualAsset `json:"asset"`
}

// ProgressPayload reports visual generation progress.
type ProgressPayload struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	PostID    string `json:"post_id,omitempty"`
}

// StageFailedPayload reports a stage-level failure.
type StageFailedPayload struct {
	Stage  campaign.Stage `json:"stage"`
	Reason string         `json:"reason"`
}

// RegeneratePayload requests regeneration of a single post's visual.
type RegeneratePayload struct {
	PostID string `json:"post_id"`
	Force  bool   `json:"force"`
}

// Subscription is one subscriber's receive handle.
type Subscription struct {
	AgentID string
	Types   []MessageType

	ch     chan Message
	closed bool
	mu     sync.Mutex
}

// C returns the receive channel. Closed when the subscription is removed.
func (s *Subscription) C() <-chan Message { return s.ch }

func (s *Subscription) wants(t MessageType) bool {
	for _, mt := range s.Types {
		if mt == t {
			return true
		}
	}
	return false
}

// deliver sends msg to the subscriber, waiting up to timeout for buffer
// space. Returns false if the subscription is closed or the send timed out.
// The per-subscription lock serializes against Unsubscribe, so the channel
// is never closed mid-send.
func (s *Subscription) deliver(msg Message, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Recorder persists delivered messages for the audit surface. Optional.
type Recorder interface {
	RecordMessage(msg Message) error
}

// DeliveryFailureFunc is notified when a message could not be handed to a
// subscriber before the delivery timeout. The orchestrator uses this to
// append a delivery_failed event to the campaign audit trail.
type DeliveryFailureFunc func(msg Message, agentID string)

// Bus routes messages to subscribers and keeps per-campaign history.
type Bus struct {
	mu              sync.RWMutex
	subs            []*Subscription
	history         map[string][]Message
	limit           int
	recorder        Recorder
	deliveryTimeout time.Duration
	onFailure       DeliveryFailureFunc
	closed          bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithRecorder attaches a persistent message recorder.
func WithRecorder(r Recorder) Option {
	return func(b *Bus) { b.recorder = r }
}

// WithHistoryLimit caps in-memory history per campaign (default 1000).
func WithHistoryLimit(n int) Option {
	return func(b *Bus) { b.limit = n }
}

// WithDeliveryTimeout bounds how long Publish waits on a full subscriber
// buffer before reporting a delivery failure (default 5s).
func WithDeliveryTimeout(d time.Duration) Option {
	return func(b *Bus) { b.deliveryTimeout = d }
}

// WithDeliveryFailureHandler registers a delivery-failure callback.
func WithDeliveryFailureHandler(fn DeliveryFailureFunc) Option {
	return func(b *Bus) { b.onFailure = fn }
}

// New creates a message bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		history:         make(map[string][]Message),
		limit:           1000,
		deliveryTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// subscriberBuffer is the per-subscriber channel depth. A full buffer blocks
// the publisher rather than dropping messages.
const subscriberBuffer = 64

// Subscribe registers an agent for the given message types.
func (b *Bus) Subscribe(agentID string, types ...MessageType) (*Subscription, error) {
	if agentID == "" {
		return nil, fmt.Errorf("subscriber agent ID required")
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("subscription needs at least one message type")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	sub := &Subscription{
		AgentID: agentID,
		Types:   types,
		ch:      make(chan Message, subscriberBuffer),
	}
	b.subs = append(b.subs, sub)
	logging.BusDebug("subscribed %s to %d message types", agentID, len(types))
	return sub, nil
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	sub.mu.Lock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
	sub.mu.Unlock()
}

// Publish validates and delivers a message. Publishing with no subscribers
// is not an error; only a malformed message is.
func (b *Bus) Publish(msg Message) error {
	if msg.Type == "" {
		return fmt.Errorf("message type required")
	}
	if msg.Sender == "" {
		return fmt.Errorf("message sender required")
	}
	if msg.CampaignID == "" {
		return fmt.Errorf("message campaign ID required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("bus is closed")
	}

	hist := append(b.history[msg.CampaignID], msg)
	if b.limit > 0 && len(hist) > b.limit {
		hist = hist[len(hist)-b.limit:]
	}
	b.history[msg.CampaignID] = hist

	// Snapshot matching subscribers under the lock, deliver outside it so a
	// slow subscriber cannot block Subscribe/History.
	var targets []*Subscription
	for _, sub := range b.subs {
		if !sub.wants(msg.Type) {
			continue
		}
		if len(msg.Recipients) > 0 && !contains(msg.Recipients, sub.AgentID) {
			continue
		}
		targets = append(targets, sub)
	}
	recorder := b.recorder
	b.mu.Unlock()

	if recorder != nil {
		if err := recorder.RecordMessage(msg); err != nil {
			// Persistence failure must not lose the in-flight delivery, but
			// it is never swallowed silently either.
			logging.Get(logging.CategoryBus).Error("failed to record message %s: %v", msg.ID, err)
		}
	}

	for _, sub := range targets {
		if !sub.deliver(msg, b.deliveryTimeout) {
			logging.Get(logging.CategoryBus).Error("delivery of %s to %s failed (campaign=%s)",
				msg.Type, sub.AgentID, msg.CampaignID)
			if b.onFailure != nil {
				b.onFailure(msg, sub.AgentID)
			}
		}
	}

	logging.BusDebug("published %s from %s (campaign=%s, subscribers=%d)",
		msg.Type, msg.Sender, msg.CampaignID, len(targets))
	return nil
}

// History returns a copy of the delivered messages for one campaign, in
// publish order.
func (b *Bus) History(campaignID string) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hist := b.history[campaignID]
	out := make([]Message, len(hist))
	copy(out, hist)
	return out
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		sub.mu.Lock()
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
		sub.mu.Unlock()
	}
	b.subs = nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
