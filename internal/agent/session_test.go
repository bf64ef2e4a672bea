package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GML-FMGroup/cappuccino/internal/surface"
)

// gatePlanner blocks inside Plan until it receives a token, which keeps an
// instruction deterministically in flight while the test pokes the manager.
type gatePlanner struct {
	release chan struct{}
	calls   int32
}

func (p *gatePlanner) Plan(ctx context.Context, instr Instruction, history []TaskRecord, obs *surface.Observation) ([]*Task, error) {
	atomic.AddInt32(&p.calls, 1)
	select {
	case <-ctx.Done():
		return nil, PlanningError(ctx.Err())
	case <-p.release:
	}
	return []*Task{NewTask("handle: "+instr.Text, 0)}, nil
}

func (p *gatePlanner) planCalls() int32 {
	return atomic.LoadInt32(&p.calls)
}

func newSessionDriver(p Planner) *Driver {
	return &Driver{
		Planner: p,
		Dispatcher: &fakeDispatcher{script: []dispatchStep{
			{dec: Decision{State: DispatchComplete}},
		}},
		Executor: &fakeExecutor{cmd: clickCmd()},
		Verifier: &fakeVerifier{verdicts: []Verdict{VerdictSatisfied}},
		Surface:  &fakeSurface{},
		Limits:   testLimits(),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestManager_RejectPolicy(t *testing.T) {
	planner := &gatePlanner{release: make(chan struct{})}
	m := NewManager(newSessionDriver(planner), BusyReject)
	ctx := context.Background()

	if err := m.Submit(ctx, "chatA", "first"); err != nil {
		t.Fatalf("First submit failed: %v", err)
	}
	waitFor(t, "first instruction to start", func() bool { return planner.planCalls() == 1 })

	if err := m.Submit(ctx, "chatA", "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	// A different session is unaffected by chatA being busy.
	if err := m.Submit(ctx, "chatB", "other"); err != nil {
		t.Errorf("Second session rejected: %v", err)
	}

	planner.release <- struct{}{}
	planner.release <- struct{}{}
	waitFor(t, "both sessions to go idle", func() bool {
		return !m.Busy("chatA") && !m.Busy("chatB")
	})
}

func TestManager_QueuePolicy(t *testing.T) {
	planner := &gatePlanner{release: make(chan struct{})}
	m := NewManager(newSessionDriver(planner), BusyQueue)
	ctx := context.Background()

	if err := m.Submit(ctx, "chatA", "first"); err != nil {
		t.Fatalf("First submit failed: %v", err)
	}
	waitFor(t, "first instruction to start", func() bool { return planner.planCalls() == 1 })

	if err := m.Submit(ctx, "chatA", "second"); err != nil {
		t.Fatalf("Queued submit failed: %v", err)
	}
	if planner.planCalls() != 1 {
		t.Error("Queued instruction must not start while one is in flight")
	}

	planner.release <- struct{}{}
	waitFor(t, "queued instruction to start", func() bool { return planner.planCalls() == 2 })
	planner.release <- struct{}{}
	waitFor(t, "session to go idle", func() bool { return !m.Busy("chatA") })

	s := m.session("chatA")
	if got := s.Turns(); got != 2 {
		t.Errorf("Expected 2 turns, got %d", got)
	}
}

func TestManager_Cancel(t *testing.T) {
	planner := &gatePlanner{release: make(chan struct{})}
	m := NewManager(newSessionDriver(planner), BusyQueue)

	var mu sync.Mutex
	var messages []string
	m.SetNotifier(func(chatID, text string) {
		mu.Lock()
		messages = append(messages, text)
		mu.Unlock()
	})

	if m.Cancel("unknown") {
		t.Error("Cancel on an unknown session should report false")
	}

	if err := m.Submit(context.Background(), "chatA", "first"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitFor(t, "instruction to start", func() bool { return planner.planCalls() == 1 })

	// Park a second instruction; cancellation must drop it too.
	if err := m.Submit(context.Background(), "chatA", "second"); err != nil {
		t.Fatalf("Queued submit failed: %v", err)
	}

	if !m.Cancel("chatA") {
		t.Fatal("Cancel should report true for an in-flight instruction")
	}
	waitFor(t, "session to go idle", func() bool { return !m.Busy("chatA") })

	if planner.planCalls() != 1 {
		t.Errorf("Queued instruction ran after cancellation, plan calls = %d", planner.planCalls())
	}
	mu.Lock()
	joined := strings.Join(messages, "\n")
	mu.Unlock()
	if !strings.Contains(joined, "Cancelled") {
		t.Errorf("Expected a cancellation notice, got %q", joined)
	}
}
