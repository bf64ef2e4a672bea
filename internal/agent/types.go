package agent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/GML-FMGroup/cappuccino/internal/surface"
)

// Instruction is the user's original request. Immutable once accepted.
type Instruction struct {
	ID         string
	ChatID     string
	Text       string
	ReceivedAt time.Time
}

func NewInstruction(chatID, text string) Instruction {
	return Instruction{
		ID:         uuid.NewString()[:8],
		ChatID:     chatID,
		Text:       text,
		ReceivedAt: time.Now(),
	}
}

// TaskStatus tracks a task through its lifecycle.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskActive    TaskStatus = "active"
	TaskVerifying TaskStatus = "verifying"
	TaskDone      TaskStatus = "done"
	TaskFailed    TaskStatus = "failed"
)

// ActionStatus tracks an atomic action through its lifecycle.
type ActionStatus string

const (
	ActionQueued    ActionStatus = "queued"
	ActionExecuting ActionStatus = "executing"
	ActionExecuted  ActionStatus = "executed"
	ActionErrored   ActionStatus = "errored"
)

// AtomicAction is the smallest unit the dispatcher hands to the executor:
// a short imperative like "click the Save button". Owned by exactly one
// task and consumed in FIFO order.
type AtomicAction struct {
	ID     string
	Goal   string
	Status ActionStatus
	Detail string // error or result note
}

// Task is one coarse step of a plan: a goal, a retry budget and an owned
// queue of atomic actions.
type Task struct {
	ID      string
	Goal    string
	Status  TaskStatus
	Retries int // remaining full dispatch→execute→verify cycles
	Actions []*AtomicAction
}

func NewTask(goal string, retries int) *Task {
	return &Task{
		ID:      uuid.NewString()[:8],
		Goal:    goal,
		Status:  TaskPending,
		Retries: retries,
	}
}

// Enqueue appends a new action to the tail of the queue.
func (t *Task) Enqueue(goal string) *AtomicAction {
	a := &AtomicAction{
		ID:     uuid.NewString()[:8],
		Goal:   goal,
		Status: ActionQueued,
	}
	t.Actions = append(t.Actions, a)
	return a
}

// NextAction returns the first queued action, or nil when the queue has
// drained.
func (t *Task) NextAction() *AtomicAction {
	for _, a := range t.Actions {
		if a.Status == ActionQueued {
			return a
		}
	}
	return nil
}

// ClearQueue discards all still-queued actions; used when the dispatcher
// re-decomposes a task part-way through.
func (t *Task) ClearQueue() {
	kept := t.Actions[:0]
	for _, a := range t.Actions {
		if a.Status != ActionQueued {
			kept = append(kept, a)
		}
	}
	t.Actions = kept
}

// Drained reports whether no queued actions remain.
func (t *Task) Drained() bool {
	return t.NextAction() == nil
}

// Plan is the ordered task list for one instruction. Only one plan is
// active per instruction; regeneration replaces it wholesale but the
// already-verified tasks are preserved by the driver's done log.
type Plan struct {
	ID     string
	Tasks  []*Task
	cursor int
}

func NewPlan(tasks []*Task) *Plan {
	return &Plan{ID: uuid.NewString()[:8], Tasks: tasks}
}

// Current returns the task under the cursor, or nil when the plan is
// exhausted.
func (p *Plan) Current() *Task {
	if p.cursor >= len(p.Tasks) {
		return nil
	}
	return p.Tasks[p.cursor]
}

// Advance moves the cursor past the current task.
func (p *Plan) Advance() {
	p.cursor++
}

// DispatchState is the dispatcher's judgment about the active task.
type DispatchState string

const (
	// DispatchContinue means the decision carries one more atomic action.
	DispatchContinue DispatchState = "continue"
	// DispatchComplete means the action queue is exhausted. It does NOT
	// mean the goal is met; that judgment belongs to the verifier.
	DispatchComplete DispatchState = "complete"
	// DispatchReplan means the task's premise no longer holds and the
	// plan must be regenerated.
	DispatchReplan DispatchState = "replan"
)

// Decision is one dispatcher verdict for the active task.
type Decision struct {
	State    DispatchState
	Action   string // imperative for the next atomic action, when State == DispatchContinue
	Thinking string
}

// Verdict is the verifier's judgment of a task against its goal.
type Verdict string

const (
	VerdictSatisfied Verdict = "satisfied"
	VerdictPending   Verdict = "pending"
	VerdictFailed    Verdict = "failed"
)

// OutcomeStatus is the terminal result of one instruction.
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Outcome is reported to the control channel when an instruction ends.
// Failed outcomes carry the originating error and the task that sank them,
// plus the sequence of the last observation for diagnosis.
type Outcome struct {
	Status  OutcomeStatus
	TaskID  string
	Reason  string
	Err     error
	LastObs uint64
	Message string // final user-facing reply, when the plan completed
}

// TaskRecord is the persisted, observation-free trace of one task outcome.
type TaskRecord struct {
	Instruction string
	TaskGoal    string
	Status      string
	Detail      string
}

// HistoryStore persists task-level outcomes per chat identity, used only to
// seed later planner context.
type HistoryStore interface {
	AddTaskRecord(chatID string, rec TaskRecord) error
	RecentRecords(chatID string, limit int) ([]TaskRecord, error)
}

// The four pipeline roles. Each is consulted with a fresh observation and
// answers one question; the driver owns all control flow between them.

type Planner interface {
	Plan(ctx context.Context, instr Instruction, history []TaskRecord, obs *surface.Observation) ([]*Task, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, task *Task, obs *surface.Observation, instr Instruction, planText string) (Decision, error)
}

type Executor interface {
	Ground(ctx context.Context, action *AtomicAction, obs *surface.Observation) (surface.Command, error)
}

type Verifier interface {
	Verify(ctx context.Context, task *Task, before, after *surface.Observation) (Verdict, string, error)
}
