package surface

import (
	"context"
	"sync"
)

// Exclusive serializes all Capture/Perform calls on one underlying surface.
// The screen and input devices are a process-wide resource: concurrent
// injection from two sessions would make observations unattributable.
type Exclusive struct {
	mu    sync.Mutex
	inner Surface
}

func NewExclusive(inner Surface) *Exclusive {
	return &Exclusive{inner: inner}
}

func (e *Exclusive) Capture(ctx context.Context) (*Observation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inner.Capture(ctx)
}

func (e *Exclusive) Perform(ctx context.Context, cmd Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inner.Perform(ctx, cmd)
}
