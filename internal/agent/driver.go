package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GML-FMGroup/cappuccino/internal/observability"
	"github.com/GML-FMGroup/cappuccino/internal/surface"
)

// Limits bounds every loop in the pipeline.
type Limits struct {
	MaxIterations   int           // dispatch cycles per instruction
	TaskRetries     int           // full dispatch→execute→verify cycles per task
	SurfaceAttempts int           // capture/perform attempts before escalation
	Replans         int           // plan regenerations per instruction
	StageTimeout    time.Duration // per oracle/surface round-trip
	TaskTimeout     time.Duration // cumulative wall clock per task
}

func (l Limits) withDefaults() Limits {
	if l.MaxIterations <= 0 {
		l.MaxIterations = 30
	}
	if l.TaskRetries <= 0 {
		l.TaskRetries = 3
	}
	if l.SurfaceAttempts <= 0 {
		l.SurfaceAttempts = 2
	}
	if l.Replans < 0 {
		l.Replans = 0
	} else if l.Replans == 0 {
		l.Replans = 1
	}
	if l.StageTimeout <= 0 {
		l.StageTimeout = 2 * time.Minute
	}
	if l.TaskTimeout <= 0 {
		l.TaskTimeout = 10 * time.Minute
	}
	return l
}

// CommandPolicy vets a grounded command before it reaches the surface.
type CommandPolicy interface {
	Check(ctx context.Context, chatID string, cmd surface.Command) error
}

// Notifier streams intermediate status to the controlling channel.
type Notifier func(chatID, text string)

// Driver runs one instruction through the planner/dispatcher/executor/
// verifier pipeline. All session state is mutated by exactly one Run call
// at a time; the only blocking points are oracle and surface calls, which
// are also the only cancellation points.
type Driver struct {
	Planner    Planner
	Dispatcher Dispatcher
	Executor   Executor
	Verifier   Verifier
	Surface    surface.Surface
	Policy     CommandPolicy
	History    HistoryStore
	Log        *observability.Logger
	Notify     Notifier
	Limits     Limits
}

type taskResult int

const (
	taskDone taskResult = iota
	taskPending // budget consumed, task requeued
	taskReplan
	taskFailed
	taskCancelled
)

// Run drives one instruction to a terminal outcome.
func (d *Driver) Run(ctx context.Context, instr Instruction) Outcome {
	lim := d.Limits.withDefaults()
	defer observability.SetStatus(observability.PhaseIdle, "")

	plan, err := d.plan(ctx, instr, nil)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{Status: OutcomeCancelled}
		}
		return Outcome{Status: OutcomeFailed, Reason: "planning failed", Err: err}
	}
	d.notify(instr.ChatID, describePlan(plan))

	replansLeft := lim.Replans
	iterations := 0
	var lastObs uint64
	var doneLog []*Task

	for {
		if ctx.Err() != nil {
			return Outcome{Status: OutcomeCancelled, LastObs: lastObs}
		}
		task := plan.Current()
		if task == nil {
			return Outcome{
				Status:  OutcomeCompleted,
				LastObs: lastObs,
				Message: summarize(doneLog),
			}
		}

		res, terr := d.runTask(ctx, instr, task, plan, lim, &iterations, &lastObs)
		d.record(instr, task)

		switch res {
		case taskDone:
			doneLog = append(doneLog, task)
			d.notify(instr.ChatID, fmt.Sprintf("✅ %s", task.Goal))
			plan.Advance()

		case taskReplan:
			if replansLeft <= 0 {
				err := BudgetExhausted(task.ID, terr)
				return Outcome{Status: OutcomeFailed, TaskID: task.ID, Reason: "replan budget exhausted", Err: err, LastObs: lastObs}
			}
			replansLeft--
			d.notify(instr.ChatID, fmt.Sprintf("🔄 Re-planning: %s", task.Goal))
			newPlan, perr := d.plan(ctx, instr, doneLog)
			if perr != nil {
				if ctx.Err() != nil {
					return Outcome{Status: OutcomeCancelled, LastObs: lastObs}
				}
				return Outcome{Status: OutcomeFailed, TaskID: task.ID, Reason: "re-planning failed", Err: perr, LastObs: lastObs}
			}
			plan = newPlan
			d.notify(instr.ChatID, describePlan(plan))

		case taskFailed:
			return Outcome{
				Status:  OutcomeFailed,
				TaskID:  task.ID,
				Reason:  fmt.Sprintf("task failed: %s", task.Goal),
				Err:     terr,
				LastObs: lastObs,
			}

		case taskCancelled:
			return Outcome{Status: OutcomeCancelled, TaskID: task.ID, LastObs: lastObs}
		}
	}
}

// plan consults the planner against a fresh observation. Planner errors are
// surfaced immediately: they indicate oracle or prompt trouble, not
// transient UI state, so a blind retry would only hide them.
func (d *Driver) plan(ctx context.Context, instr Instruction, done []*Task) (*Plan, error) {
	observability.SetStatus(observability.PhasePlanning, instr.Text)
	lim := d.Limits.withDefaults()

	obs, err := d.capture(ctx, "")
	if err != nil {
		return nil, PlanningError(err)
	}

	history := d.recentHistory(instr.ChatID)
	for _, t := range done {
		history = append(history, TaskRecord{
			Instruction: instr.Text,
			TaskGoal:    t.Goal,
			Status:      string(t.Status),
			Detail:      "verified in the current plan; do not repeat",
		})
	}

	stageCtx, cancel := context.WithTimeout(ctx, lim.StageTimeout)
	defer cancel()

	tasks, err := d.Planner.Plan(stageCtx, instr, history, obs)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, PlanningError(fmt.Errorf("planner produced an empty task list"))
	}
	for _, t := range tasks {
		if t.Retries <= 0 {
			t.Retries = lim.TaskRetries
		}
	}

	plan := NewPlan(tasks)
	if d.Log != nil {
		d.Log.LogPlan(instr.ChatID, instr.ID, describePlan(plan))
	}
	return plan, nil
}

// runTask drives one task through its dispatch↔execute↔verify cycles until
// it is done, failed, or demands a replan.
func (d *Driver) runTask(ctx context.Context, instr Instruction, task *Task, plan *Plan, lim Limits, iterations *int, lastObs *uint64) (taskResult, error) {
	taskCtx, cancel := context.WithTimeout(ctx, lim.TaskTimeout)
	defer cancel()

	task.Status = TaskActive
	planText := describePlan(plan)
	var before *surface.Observation

	for {
		if ctx.Err() != nil {
			return taskCancelled, nil
		}
		if taskCtx.Err() != nil {
			// Wall clock beats any retry budget remaining.
			task.Status = TaskFailed
			return taskFailed, BudgetExhausted(task.ID, fmt.Errorf("task wall clock exceeded"))
		}
		*iterations++
		if *iterations > lim.MaxIterations {
			task.Status = TaskFailed
			return taskFailed, BudgetExhausted(task.ID, fmt.Errorf("instruction iteration ceiling reached"))
		}

		// An undrained queue is always consumed before asking the
		// dispatcher for more: queued actions may not be reordered.
		if next := task.NextAction(); next != nil {
			obs, res, err := d.executeAction(taskCtx, instr, task, next, lim)
			if obs != nil {
				before = obs
				*lastObs = obs.Seq
			}
			switch res {
			case taskCancelled, taskFailed:
				return res, err
			case taskPending: // grounding/policy miss consumed the budget
				if task.Retries <= 0 {
					task.Status = TaskFailed
					return taskFailed, BudgetExhausted(task.ID, err)
				}
			}
			continue
		}

		observability.SetStatus(observability.PhaseDispatching, task.Goal)
		obs, err := d.capture(taskCtx, task.ID)
		if err != nil {
			if ctx.Err() != nil {
				return taskCancelled, nil
			}
			task.Status = TaskFailed
			return taskFailed, err
		}
		*lastObs = obs.Seq

		stageCtx, stageCancel := context.WithTimeout(taskCtx, lim.StageTimeout)
		dec, err := d.Dispatcher.Dispatch(stageCtx, task, obs, instr, planText)
		stageCancel()
		if err != nil {
			if ctx.Err() != nil {
				return taskCancelled, nil
			}
			if taskCtx.Err() != nil {
				task.Status = TaskFailed
				return taskFailed, BudgetExhausted(task.ID, fmt.Errorf("task wall clock exceeded"))
			}
			// Dispatcher retries internally; a surviving error escalates.
			return taskReplan, DispatchError(task.ID, err)
		}
		if d.Log != nil {
			d.Log.LogDispatch(instr.ChatID, task.ID, string(dec.State), dec.Action)
		}

		switch dec.State {
		case DispatchReplan:
			return taskReplan, nil

		case DispatchContinue:
			if dec.Action == "" {
				continue
			}
			task.Enqueue(dec.Action)
			d.notify(instr.ChatID, "▶ "+dec.Action)

		case DispatchComplete:
			if before == nil {
				before = obs
			}
			res, verr := d.verifyTask(taskCtx, instr, task, before, lastObs)
			if res == taskDone || res == taskFailed || res == taskCancelled {
				return res, verr
			}
			// pending: dispatcher resumes with the budget decremented

		default:
			return taskReplan, DispatchError(task.ID, fmt.Errorf("unknown dispatch state %q", dec.State))
		}
	}
}

// executeAction grounds one atomic action against a fresh observation and
// performs the resulting command. The returned observation is the one the
// command was grounded on (the verifier's "before" image).
func (d *Driver) executeAction(ctx context.Context, instr Instruction, task *Task, act *AtomicAction, lim Limits) (*surface.Observation, taskResult, error) {
	observability.SetStatus(observability.PhaseExecuting, act.Goal)
	act.Status = ActionExecuting

	obs, err := d.capture(ctx, task.ID)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, taskCancelled, nil
		}
		act.Status = ActionErrored
		act.Detail = err.Error()
		task.Status = TaskFailed
		return nil, taskFailed, err
	}

	stageCtx, stageCancel := context.WithTimeout(ctx, lim.StageTimeout)
	cmd, err := d.Executor.Ground(stageCtx, act, obs)
	stageCancel()
	if err != nil {
		gerr := GroundingError(task.ID, act.ID, err)
		return obs, d.actionMiss(task, act, gerr), gerr
	}

	if d.Policy != nil {
		if err := d.Policy.Check(ctx, instr.ChatID, cmd); err != nil {
			gerr := GroundingError(task.ID, act.ID, err)
			return obs, d.actionMiss(task, act, gerr), gerr
		}
	}
	if d.Log != nil {
		d.Log.LogCommand(instr.ChatID, task.ID, cmd)
	}

	// Cancellation never interrupts an in-flight injection; it takes
	// effect at the next boundary.
	performErr := d.perform(context.WithoutCancel(ctx), cmd, lim)
	if performErr != nil {
		act.Status = ActionErrored
		act.Detail = performErr.Error()
		task.Status = TaskFailed
		return obs, taskFailed, AutomationError(task.ID, performErr)
	}

	act.Status = ActionExecuted
	return obs, taskDone, nil
}

// actionMiss books a grounding or policy miss against the task's retry
// budget and clears the stale remainder of the queue so the dispatcher
// re-decomposes from a fresh screen.
func (d *Driver) actionMiss(task *Task, act *AtomicAction, err error) taskResult {
	act.Status = ActionErrored
	act.Detail = err.Error()
	task.Retries--
	task.ClearQueue()
	return taskPending
}

// verifyTask asks the verifier whether the task goal is met. A failed
// verdict with budget remaining is treated as pending with the counter
// decremented, so every task gets a bounded number of full cycles.
func (d *Driver) verifyTask(ctx context.Context, instr Instruction, task *Task, before *surface.Observation, lastObs *uint64) (taskResult, error) {
	observability.SetStatus(observability.PhaseVerifying, task.Goal)
	task.Status = TaskVerifying
	lim := d.Limits.withDefaults()

	after, err := d.capture(ctx, task.ID)
	if err != nil {
		task.Status = TaskFailed
		return taskFailed, err
	}
	*lastObs = after.Seq

	stageCtx, cancel := context.WithTimeout(ctx, lim.StageTimeout)
	verdict, reason, err := d.Verifier.Verify(stageCtx, task, before, after)
	cancel()
	if err != nil {
		// Verifier transport trouble is retried at the task scope like
		// any other negative verdict.
		verdict, reason = VerdictPending, err.Error()
	}
	if d.Log != nil {
		d.Log.LogVerdict(instr.ChatID, task.ID, string(verdict), reason)
	}

	switch verdict {
	case VerdictSatisfied:
		task.Status = TaskDone
		return taskDone, nil
	default: // pending or failed
		task.Retries--
		if task.Retries <= 0 {
			task.Status = TaskFailed
			return taskFailed, BudgetExhausted(task.ID, fmt.Errorf("verification: %s", reason))
		}
		task.Status = TaskActive
		return taskPending, nil
	}
}

// capture obtains a fresh observation with bounded retries.
func (d *Driver) capture(ctx context.Context, taskID string) (*surface.Observation, error) {
	lim := d.Limits.withDefaults()
	var lastErr error
	for attempt := 0; attempt < lim.SurfaceAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, AutomationError(taskID, ctx.Err())
		}
		stageCtx, cancel := context.WithTimeout(ctx, lim.StageTimeout)
		obs, err := d.Surface.Capture(stageCtx)
		cancel()
		if err == nil {
			return obs, nil
		}
		lastErr = err
	}
	return nil, AutomationError(taskID, lastErr)
}

// perform injects one command with bounded retries. The context passed in
// is already detached from user cancellation.
func (d *Driver) perform(ctx context.Context, cmd surface.Command, lim Limits) error {
	var lastErr error
	for attempt := 0; attempt < lim.SurfaceAttempts; attempt++ {
		stageCtx, cancel := context.WithTimeout(ctx, lim.StageTimeout)
		err := d.Surface.Perform(stageCtx, cmd)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (d *Driver) record(instr Instruction, task *Task) {
	if d.History == nil {
		return
	}
	detail := ""
	for _, a := range task.Actions {
		if a.Status == ActionErrored {
			detail = a.Detail
		}
	}
	_ = d.History.AddTaskRecord(instr.ChatID, TaskRecord{
		Instruction: instr.Text,
		TaskGoal:    task.Goal,
		Status:      string(task.Status),
		Detail:      detail,
	})
}

func (d *Driver) recentHistory(chatID string) []TaskRecord {
	if d.History == nil {
		return nil
	}
	recs, err := d.History.RecentRecords(chatID, 10)
	if err != nil {
		return nil
	}
	return recs
}

func (d *Driver) notify(chatID, text string) {
	if d.Notify != nil {
		d.Notify(chatID, text)
	}
}

func describePlan(p *Plan) string {
	var b strings.Builder
	b.WriteString("Plan:\n")
	for i, t := range p.Tasks {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.Goal)
	}
	return strings.TrimSpace(b.String())
}

func summarize(done []*Task) string {
	if len(done) == 0 {
		return "Done."
	}
	var b strings.Builder
	b.WriteString("Done. Completed steps:\n")
	for i, t := range done {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.Goal)
	}
	return strings.TrimSpace(b.String())
}
