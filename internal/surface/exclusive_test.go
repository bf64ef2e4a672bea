package surface

import (
	"context"
	"sync"
	"testing"
	"time"
)

// countingSurface fails the test if two calls ever overlap.
type countingSurface struct {
	mu    sync.Mutex
	inUse bool
	calls int
	seq   uint64
	t     *testing.T
}

func (c *countingSurface) enter() {
	c.mu.Lock()
	if c.inUse {
		c.t.Error("Concurrent surface access detected")
	}
	c.inUse = true
	c.calls++
	c.mu.Unlock()
	time.Sleep(time.Millisecond)
	c.mu.Lock()
	c.inUse = false
	c.mu.Unlock()
}

func (c *countingSurface) Capture(ctx context.Context) (*Observation, error) {
	c.enter()
	c.mu.Lock()
	c.seq++
	obs := &Observation{Seq: c.seq, TakenAt: time.Now()}
	c.mu.Unlock()
	return obs, nil
}

func (c *countingSurface) Perform(ctx context.Context, cmd Command) error {
	c.enter()
	return nil
}

func TestExclusive_Serializes(t *testing.T) {
	inner := &countingSurface{t: t}
	ex := NewExclusive(inner)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ex.Capture(ctx); err != nil {
				t.Errorf("Capture failed: %v", err)
			}
			if err := ex.Perform(ctx, Command{Kind: KindWait, Seconds: 0.001}); err != nil {
				t.Errorf("Perform failed: %v", err)
			}
		}()
	}
	wg.Wait()

	inner.mu.Lock()
	defer inner.mu.Unlock()
	if inner.calls != 16 {
		t.Errorf("Expected 16 serialized calls, got %d", inner.calls)
	}
}
