package capability

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"adforge/internal/logging"
)

// Scheduler manages API-call slots per capability class. Many generation
// tasks may be in flight, but only a bounded number of external calls per
// class run concurrently, matching each provider's quota. Workers acquire a
// slot before calling out and release it the moment the call returns, so a
// worker processing a response never starves one waiting to call.
type Scheduler struct {
	slots map[Kind]chan struct{}

	// Metrics
	totalCalls   int64
	totalWaitNs  int64
	waitingCount int32

	limits map[Kind]int
	stopCh chan struct{}
	once   sync.Once
}

// SchedulerConfig sets the per-class slot limits.
type SchedulerConfig struct {
	TextSlots  int
	ImageSlots int
	VideoSlots int
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TextSlots:  5,
		ImageSlots: 5,
		VideoSlots: 2,
	}
}

// NewScheduler creates a scheduler with the given slot limits.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	limits := map[Kind]int{
		KindText:  cfg.TextSlots,
		KindImage: cfg.ImageSlots,
		KindVideo: cfg.VideoSlots,
	}
	slots := make(map[Kind]chan struct{}, len(limits))
	for kind, n := range limits {
		if n < 1 {
			n = 1
		}
		slots[kind] = make(chan struct{}, n)
	}
	return &Scheduler{
		slots:  slots,
		limits: limits,
		stopCh: make(chan struct{}),
	}
}

// Acquire blocks until a slot for the class is free or the context is done.
func (s *Scheduler) Acquire(ctx context.Context, kind Kind) error {
	ch, ok := s.slots[kind]
	if !ok {
		return fmt.Errorf("unknown capability class %q", kind)
	}

	start := time.Now()
	atomic.AddInt32(&s.waitingCount, 1)
	defer atomic.AddInt32(&s.waitingCount, -1)

	select {
	case ch <- struct{}{}:
		wait := time.Since(start)
		atomic.AddInt64(&s.totalWaitNs, int64(wait))
		if wait > 100*time.Millisecond {
			logging.APIDebug("scheduler: %s slot acquired after %v", kind, wait)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return fmt.Errorf("scheduler stopped")
	}
}

// Release frees a slot for the class.
func (s *Scheduler) Release(kind Kind) {
	ch, ok := s.slots[kind]
	if !ok {
		return
	}
	select {
	case <-ch:
		atomic.AddInt64(&s.totalCalls, 1)
	default:
		// Releasing without holding a slot indicates a bug in the caller.
		logging.Get(logging.CategoryAPI).Error("scheduler: released %s slot that was not held", kind)
	}
}

// Do runs fn while holding a slot of the given class.
func (s *Scheduler) Do(ctx context.Context, kind Kind, fn func(context.Context) error) error {
	if err := s.Acquire(ctx, kind); err != nil {
		return fmt.Errorf("failed to acquire %s slot: %w", kind, err)
	}
	defer s.Release(kind)
	return fn(ctx)
}

// Stop shuts down the scheduler; blocked Acquire calls return an error.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
}

// SchedulerMetrics is a point-in-time view of scheduler load.
type SchedulerMetrics struct {
	ActiveByKind map[Kind]int
	LimitByKind  map[Kind]int
	Waiting      int
	TotalCalls   int64
	TotalWaitNs  int64
}

// Metrics returns current scheduler metrics.
func (s *Scheduler) Metrics() SchedulerMetrics {
	m := SchedulerMetrics{
		ActiveByKind: make(map[Kind]int, len(s.slots)),
		LimitByKind:  make(map[Kind]int, len(s.limits)),
		Waiting:      int(atomic.LoadInt32(&s.waitingCount)),
		TotalCalls:   atomic.LoadInt64(&s.totalCalls),
		TotalWaitNs:  atomic.LoadInt64(&s.totalWaitNs),
	}
	for kind, ch := range s.slots {
		m.ActiveByKind[kind] = len(ch)
	}
	for kind, n := range s.limits {
		m.LimitByKind[kind] = n
	}
	return m
}

// String returns a human-readable summary.
func (m SchedulerMetrics) String() string {
	avgWait := time.Duration(0)
	if m.TotalCalls > 0 {
		avgWait = time.Duration(m.TotalWaitNs / m.TotalCalls)
	}
	return fmt.Sprintf("text=%d/%d image=%d/%d video=%d/%d waiting=%d calls=%d avg_wait=%v",
		m.ActiveByKind[KindText], m.LimitByKind[KindText],
		m.ActiveByKind[KindImage], m.LimitByKind[KindImage],
		m.ActiveByKind[KindVideo], m.LimitByKind[KindVideo],
		m.Waiting, m.TotalCalls, avgWait)
}
