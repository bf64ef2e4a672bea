package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// BusyPolicy decides what happens to an instruction that arrives while one
// is already in flight for the same session.
type BusyPolicy string

const (
	BusyReject BusyPolicy = "reject"
	BusyQueue  BusyPolicy = "queue"
)

// Session is the aggregate root for one chat identity: the in-flight
// instruction, a monotonic turn counter and the pending queue. All fields
// behind mu; the pipeline itself runs on a single goroutine per session.
type Session struct {
	ID string

	mu      sync.Mutex
	active  bool
	turns   int
	pending []Instruction
	cancel  context.CancelFunc
}

// Turns reports how many instructions this session has accepted.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// Manager owns all sessions and fans instructions into per-session driver
// goroutines. Distinct sessions run concurrently; within a session at most
// one instruction is in flight.
type Manager struct {
	driver *Driver
	policy BusyPolicy
	notify Notifier

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(driver *Driver, policy BusyPolicy) *Manager {
	if policy != BusyQueue {
		policy = BusyReject
	}
	return &Manager{
		driver:   driver,
		policy:   policy,
		sessions: make(map[string]*Session),
	}
}

// SetNotifier installs the status stream sink. Also wired into the driver
// so intermediate task/action updates reach the same channel.
func (m *Manager) SetNotifier(n Notifier) {
	m.notify = n
	m.driver.Notify = n
}

func (m *Manager) session(chatID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[chatID]
	if !ok {
		s = &Session{ID: chatID}
		m.sessions[chatID] = s
	}
	return s
}

// Submit accepts one instruction for a session. Returns ErrBusy under the
// reject policy when one is already running; under the queue policy the
// instruction is parked and picked up when the current one ends.
func (m *Manager) Submit(ctx context.Context, chatID, text string) error {
	s := m.session(chatID)
	instr := NewInstruction(chatID, text)

	s.mu.Lock()
	if s.active {
		if m.policy == BusyReject {
			s.mu.Unlock()
			return ErrBusy
		}
		s.pending = append(s.pending, instr)
		s.turns++
		s.mu.Unlock()
		return nil
	}
	s.active = true
	s.turns++
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go m.run(runCtx, s, instr)
	return nil
}

func (m *Manager) run(ctx context.Context, s *Session, instr Instruction) {
	outcome := m.driver.Run(ctx, instr)
	m.report(s.ID, instr, outcome)

	wasCancelled := ctx.Err() != nil

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if len(s.pending) > 0 && !wasCancelled {
		next := s.pending[0]
		s.pending = s.pending[1:]
		runCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.mu.Unlock()
		go m.run(runCtx, s, next)
		return
	}
	s.active = false
	s.pending = nil
	s.mu.Unlock()
}

func (m *Manager) report(chatID string, instr Instruction, o Outcome) {
	if m.notify == nil {
		return
	}
	switch o.Status {
	case OutcomeCompleted:
		m.notify(chatID, o.Message)
	case OutcomeCancelled:
		m.notify(chatID, "🛑 Cancelled.")
	case OutcomeFailed:
		msg := fmt.Sprintf("❌ Failed: %s", o.Reason)
		if o.Err != nil {
			msg += fmt.Sprintf("\n(%s)", o.Err)
		}
		if o.TaskID != "" {
			msg += fmt.Sprintf("\ntask: %s", o.TaskID)
		}
		if o.LastObs != 0 {
			msg += fmt.Sprintf("\nlast observation: #%d", o.LastObs)
		}
		m.notify(chatID, msg)
		log.Printf("instruction %s failed: %v", instr.ID, o.Err)
	}
}

// Cancel aborts the in-flight instruction for a session, if any. The abort
// lands at the next oracle/surface boundary; an in-flight injection always
// finishes first.
func (m *Manager) Cancel(chatID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[chatID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.pending = nil
	return true
}

// Busy reports whether a session has an instruction in flight.
func (m *Manager) Busy(chatID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[chatID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Screenshot captures the controlled screen for direct delivery over the
// control channel.
func (m *Manager) Screenshot(ctx context.Context) ([]byte, error) {
	obs, err := m.driver.Surface.Capture(ctx)
	if err != nil {
		return nil, err
	}
	return obs.Data, nil
}
