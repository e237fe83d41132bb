// Package agents holds the pipeline's reasoning agents. Each agent consumes
// one message type from the bus, does its LLM work, and emits the next
// message in the pipeline. Agents never touch the context store: the
// orchestrator owns persistence and applies agent output to the campaign
// context.
package agents

import (
	"context"
	"fmt"
	"sync"

	"adforge/internal/bus"
	"adforge/internal/campaign"
	"adforge/internal/logging"
)

// Agent is one pipeline worker driven by bus messages.
type Agent interface {
	// ID is the bus subscriber identity.
	ID() string
	// Stage is the pipeline stage this agent implements, used to attribute
	// failures.
	Stage() campaign.Stage
	// Handles lists the message types the agent consumes.
	Handles() []bus.MessageType
	// HandleMessage processes one message and returns the messages to
	// publish in response. A returned error fails the agent's stage for
	// that campaign.
	HandleMessage(ctx context.Context, msg bus.Message) ([]bus.Message, error)
}

// Runner subscribes agents to the bus and pumps messages into them. Each
// agent gets one goroutine, so an agent processes its messages in order
// while different agents run concurrently.
type Runner struct {
	bus    *bus.Bus
	agents []Agent

	mu      sync.Mutex
	subs    []*bus.Subscription
	wg      sync.WaitGroup
	running bool
}

// NewRunner creates a runner for the given agents.
func NewRunner(b *bus.Bus, agents ...Agent) *Runner {
	return &Runner{bus: b, agents: agents}
}

// Start subscribes every agent and begins dispatching.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	for _, agent := range r.agents {
		sub, err := r.bus.Subscribe(agent.ID(), agent.Handles()...)
		if err != nil {
			return fmt.Errorf("failed to subscribe agent %s: %w", agent.ID(), err)
		}
		r.subs = append(r.subs, sub)

		r.wg.Add(1)
		go r.pump(ctx, agent, sub)
		logging.Agents("agent %s online (stage=%s)", agent.ID(), agent.Stage())
	}
	r.running = true
	return nil
}

// Stop unsubscribes all agents and waits for in-flight handling to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, sub := range subs {
		r.bus.Unsubscribe(sub)
	}
	r.wg.Wait()
}

func (r *Runner) pump(ctx context.Context, agent Agent, sub *bus.Subscription) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			r.dispatch(ctx, agent, msg)
		}
	}
}

func (r *Runner) dispatch(ctx context.Context, agent Agent, msg bus.Message) {
	out, err := agent.HandleMessage(ctx, msg)
	if err != nil {
		logging.Get(logging.CategoryAgents).Error("agent %s failed on %s (campaign=%s): %v",
			agent.ID(), msg.Type, msg.CampaignID, err)
		failure := bus.Message{
			Sender:        agent.ID(),
			Type:          bus.TypeStageFailed,
			CampaignID:    msg.CampaignID,
			CorrelationID: msg.ID,
			Payload: bus.StageFailedPayload{
				Stage:  agent.Stage(),
				Reason: err.Error(),
			},
		}
		if pubErr := r.bus.Publish(failure); pubErr != nil {
			logging.Get(logging.CategoryAgents).Error("agent %s could not report failure: %v",
				agent.ID(), pubErr)
		}
		return
	}

	for _, m := range out {
		if m.Sender == "" {
			m.Sender = agent.ID()
		}
		if m.CampaignID == "" {
			m.CampaignID = msg.CampaignID
		}
		if m.CorrelationID == "" {
			m.CorrelationID = msg.ID
		}
		if err := r.bus.Publish(m); err != nil {
			logging.Get(logging.CategoryAgents).Error("agent %s could not publish %s: %v",
				agent.ID(), m.Type, err)
		}
	}
}
