package agent

import (
	"context"
	"sync"
	"time"

	"github.com/wardenhq/warden/bus"
)

const (
	heartbeatInterval = 15 * time.Second
	extendDebounce    = time.Minute
	extendAmount      = 2 * time.Minute
)

// startHeartbeat re-emits thinking while a turn runs and extends the
// session's inactivity timeout, so a long tool execution cannot cause
// external reaping. Extension is debounced to once per minute.
func (l *Loop) startHeartbeat(ctx context.Context, r *runner) func() {
	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(heartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				l.bus.Emit(r.session.ID, bus.Event{Type: bus.EventThinking})
				r.maybeExtend()
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}

func (r *runner) maybeExtend() {
	r.extendMu.Lock()
	defer r.extendMu.Unlock()
	if r.extend == nil {
		return
	}
	now := time.Now()
	if now.Sub(r.lastExtend) < extendDebounce {
		return
	}
	r.lastExtend = now
	r.extend(extendAmount)
}
