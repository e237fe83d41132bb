package capability

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_BoundsConcurrencyPerClass(t *testing.T) {
	s := NewScheduler(SchedulerConfig{TextSlots: 5, ImageSlots: 2, VideoSlots: 1})
	defer s.Stop()

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Do(context.Background(), KindImage, func(ctx context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			if err != nil {
				t.Errorf("Do() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Fatalf("peak concurrent image calls = %d, want <= 2", got)
	}
	if m := s.Metrics(); m.TotalCalls != 10 {
		t.Fatalf("TotalCalls = %d, want 10", m.TotalCalls)
	}
}

func TestScheduler_AcquireRespectsContext(t *testing.T) {
	s := NewScheduler(SchedulerConfig{TextSlots: 1, ImageSlots: 1, VideoSlots: 1})
	defer s.Stop()

	if err := s.Acquire(context.Background(), KindVideo); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer s.Release(KindVideo)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Acquire(ctx, KindVideo); err == nil {
		t.Fatalf("Acquire() with full slots and expired context succeeded")
	}
}

func TestScheduler_StopUnblocksWaiters(t *testing.T) {
	s := NewScheduler(SchedulerConfig{TextSlots: 1, ImageSlots: 1, VideoSlots: 1})

	if err := s.Acquire(context.Background(), KindText); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Acquire(context.Background(), KindText) }()

	time.Sleep(10 * time.Millisecond)
	s.Stop()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("Acquire() succeeded after Stop()")
		}
	case <-time.After(time.Second):
		t.Fatalf("Acquire() still blocked after Stop()")
	}
}

func TestScheduler_UnknownKind(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	defer s.Stop()
	if err := s.Acquire(context.Background(), Kind("audio")); err == nil {
		t.Fatalf("Acquire(unknown kind) succeeded")
	}
}
