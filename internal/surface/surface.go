package surface

import (
	"context"
	"fmt"
	"time"
)

// CommandKind classifies the concrete input operation a command performs.
type CommandKind string

const (
	KindPointer CommandKind = "pointer"
	KindKey     CommandKind = "key"
	KindText    CommandKind = "text"
	KindWait    CommandKind = "wait"
	KindScript  CommandKind = "script"
)

// Command is the concrete, directly executable output of grounding: one
// pointer action, key sequence, text payload, wait or script. It is handed
// to the surface once and discarded.
type Command struct {
	Kind CommandKind `json:"kind"`

	// pointer
	Action string `json:"action,omitempty"` // left_click, double_click, right_click, middle_click, move, scroll
	X      int    `json:"x,omitempty"`
	Y      int    `json:"y,omitempty"`
	Amount int    `json:"amount,omitempty"` // scroll clicks, positive = up

	// key
	Keys []string `json:"keys,omitempty"`

	// text
	Text string `json:"text,omitempty"`

	// wait
	Seconds float64 `json:"seconds,omitempty"`

	// script
	Script string `json:"script,omitempty"`
}

// Validate checks that the kind-specific parameters are present.
func (c Command) Validate() error {
	switch c.Kind {
	case KindPointer:
		if c.Action == "" {
			return fmt.Errorf("pointer command requires an action")
		}
	case KindKey:
		if len(c.Keys) == 0 {
			return fmt.Errorf("key command requires keys")
		}
	case KindText:
		if c.Text == "" {
			return fmt.Errorf("text command requires text")
		}
	case KindWait:
		if c.Seconds <= 0 {
			return fmt.Errorf("wait command requires a positive duration")
		}
	case KindScript:
		if c.Script == "" {
			return fmt.Errorf("script command requires a script")
		}
	default:
		return fmt.Errorf("unknown command kind: %s", c.Kind)
	}
	return nil
}

// Payload returns the free-text portion of the command that safety policy
// rules evaluate (script body, typed text, key sequence).
func (c Command) Payload() string {
	switch c.Kind {
	case KindScript:
		return c.Script
	case KindText:
		return c.Text
	case KindKey:
		out := ""
		for i, k := range c.Keys {
			if i > 0 {
				out += "+"
			}
			out += k
		}
		return out
	}
	return ""
}

// Observation is a timestamped capture of the controlled screen. Seq is
// assigned monotonically by the surface, so a capture taken after an
// acknowledged Perform always carries a higher sequence than any capture
// taken before it.
type Observation struct {
	Seq     uint64
	Data    []byte // PNG
	Path    string // on-disk copy, empty for in-memory surfaces
	TakenAt time.Time
}

// Surface is the automation boundary: it captures screen observations and
// injects input. Capture must reflect state strictly after the previously
// acknowledged Perform.
type Surface interface {
	Capture(ctx context.Context) (*Observation, error)
	Perform(ctx context.Context, cmd Command) error
}

// Wait is the one command every surface handles identically.
func sleep(ctx context.Context, seconds float64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(seconds * float64(time.Second))):
		return nil
	}
}
