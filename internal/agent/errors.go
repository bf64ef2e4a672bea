package agent

import (
	"errors"
	"fmt"
)

// ErrorKind labels every failure with the scope that produced it. Terminal
// outcomes always carry a kind plus the task/action identifier; nothing is
// silently dropped.
type ErrorKind string

const (
	KindPlanning        ErrorKind = "planning_error"
	KindDispatch        ErrorKind = "dispatch_error"
	KindGrounding       ErrorKind = "grounding_error"
	KindAutomation      ErrorKind = "automation_error"
	KindBudgetExhausted ErrorKind = "budget_exhausted"
)

// PipelineError is the one error shape the pipeline produces.
type PipelineError struct {
	Kind     ErrorKind
	TaskID   string
	ActionID string
	Err      error
}

func (e *PipelineError) Error() string {
	s := string(e.Kind)
	if e.TaskID != "" {
		s += " task=" + e.TaskID
	}
	if e.ActionID != "" {
		s += " action=" + e.ActionID
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *PipelineError) Unwrap() error { return e.Err }

// PlanningError: the oracle was unreachable or returned unparsable plan
// structure. Surfaced immediately, never silently retried.
func PlanningError(err error) error {
	return &PipelineError{Kind: KindPlanning, Err: err}
}

// DispatchError: transient dispatcher trouble, retried with backoff before
// escalating to a replan.
func DispatchError(taskID string, err error) error {
	return &PipelineError{Kind: KindDispatch, TaskID: taskID, Err: err}
}

// GroundingError: the executor could not locate the described target on the
// observation. Retried at the task level, never by re-invoking the executor
// on the same stale screen.
func GroundingError(taskID, actionID string, err error) error {
	return &PipelineError{Kind: KindGrounding, TaskID: taskID, ActionID: actionID, Err: err}
}

// AutomationError: the capture/perform surface failed.
func AutomationError(taskID string, err error) error {
	return &PipelineError{Kind: KindAutomation, TaskID: taskID, Err: err}
}

// BudgetExhausted: a task or instruction retry ceiling was reached.
func BudgetExhausted(taskID string, err error) error {
	return &PipelineError{Kind: KindBudgetExhausted, TaskID: taskID, Err: err}
}

// KindOf extracts the error kind, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// ErrBusy is returned when an instruction arrives while one is already
// in flight and the busy policy is "reject".
var ErrBusy = fmt.Errorf("an instruction is already running for this session")
