package provider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const slotWaitInterval = 5 * time.Second

// SlotTable hands out one exclusive inference slot per model name, so a
// session's whole multi-turn run finishes before another session's starts.
// Distinct models run fully concurrently.
type SlotTable struct {
	mu    sync.Mutex
	slots map[string]*semaphore.Weighted
}

func NewSlotTable() *SlotTable {
	return &SlotTable{slots: make(map[string]*semaphore.Weighted)}
}

func (s *SlotTable) slot(model string) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.slots[model]
	if !ok {
		sem = semaphore.NewWeighted(1)
		s.slots[model] = sem
	}
	return sem
}

func (s *SlotTable) AcquireSlot(ctx context.Context, model string, onWait func()) error {
	sem := s.slot(model)
	if sem.TryAcquire(1) {
		return nil
	}
	if onWait != nil {
		onWait()
	}
	acquired := make(chan error, 1)
	go func() { acquired <- sem.Acquire(ctx, 1) }()
	ticker := time.NewTicker(slotWaitInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-acquired:
			return err
		case <-ticker.C:
			if onWait != nil {
				onWait()
			}
		}
	}
}

func (s *SlotTable) ReleaseSlot(model string) {
	s.slot(model).Release(1)
}
