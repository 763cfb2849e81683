package resiliency

import (
	"context"
	"sync"
	"time"
)

// DebounceAction calls an action (function with no return value) after the specified delay,
// but only if no new Run calls arrive in the meantime. New calls delay the action further,
// but by no more than maxDelay. The action is executed in a separate goroutine, fully asynchronously.
type DebounceAction struct {
	delay     time.Duration
	maxDelay  time.Duration
	timer     *time.Timer
	threshold time.Time
	active    bool
	m         sync.Mutex
	action    func()
}

func NewDebounceAction(action func(), delay, maxDelay time.Duration) *DebounceAction {
	if maxDelay < delay {
		maxDelay = delay
	}

	return &DebounceAction{
		delay:    delay,
		maxDelay: maxDelay,
		action:   action,
	}
}

func (da *DebounceAction) Run(ctx context.Context) {
	da.m.Lock()
	defer da.m.Unlock()

	if !da.active {
		// New run
		da.timer = time.NewTimer(da.delay)
		da.active = true
		da.threshold = time.Now().Add(da.maxDelay)
		go da.execWhenTimerFires(ctx)
	} else {
		if time.Now().Add(da.delay).Before(da.threshold) {
			da.timer.Reset(da.delay)
		}
	}
}

func (da *DebounceAction) execWhenTimerFires(ctx context.Context) {
	select {
	case <-da.timer.C:
		da.stopCurrentRun()
		da.action()
	case <-ctx.Done():
		da.stopCurrentRun()
	}
}

func (da *DebounceAction) stopCurrentRun() {
	da.m.Lock()
	defer da.m.Unlock()
	da.timer.Stop()
	da.active = false
	da.threshold = time.Time{}
}
