package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/GML-FMGroup/cappuccino/internal/agent"
	"github.com/GML-FMGroup/cappuccino/internal/surface"
)

// Dispatcher decides the next atomic action for the active task. Transient
// oracle failures are retried with bounded exponential backoff; an error
// that survives the ceiling escalates to a replan in the driver.
type Dispatcher struct {
	Client   *Client
	Prompts  *PromptManager
	Attempts int // total tries per decision, min 1
}

type dispatchResponse struct {
	Thinking string `json:"thinking"`
	Decision string `json:"decision"`
	Action   string `json:"action"`
}

func (d *Dispatcher) Dispatch(ctx context.Context, task *agent.Task, obs *surface.Observation, instr agent.Instruction, planText string) (agent.Decision, error) {
	user := buildDispatchPrompt(task, instr, planText)
	system := d.Prompts.Get("dispatcher")

	attempts := d.Attempts
	if attempts < 1 {
		attempts = 3
	}

	var resp dispatchResponse
	operation := func() error {
		content, err := d.Client.Generate(ctx, instr.ChatID, system, user, obs)
		if err != nil {
			return err
		}
		return decode(content, &resp)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(attempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return agent.Decision{}, err
	}

	switch resp.Decision {
	case "continue":
		if strings.TrimSpace(resp.Action) == "" {
			return agent.Decision{}, fmt.Errorf("dispatcher chose continue without an action")
		}
		return agent.Decision{State: agent.DispatchContinue, Action: resp.Action, Thinking: resp.Thinking}, nil
	case "complete":
		return agent.Decision{State: agent.DispatchComplete, Thinking: resp.Thinking}, nil
	case "replan":
		return agent.Decision{State: agent.DispatchReplan, Thinking: resp.Thinking}, nil
	}
	return agent.Decision{}, fmt.Errorf("dispatcher returned unknown decision %q", resp.Decision)
}

func buildDispatchPrompt(task *agent.Task, instr agent.Instruction, planText string) string {
	var b strings.Builder
	b.WriteString("## Original request\n")
	b.WriteString(instr.Text)
	b.WriteString("\n\n## ")
	b.WriteString(planText)
	b.WriteString("\n\n## Current task\n")
	b.WriteString(task.Goal)

	if len(task.Actions) > 0 {
		b.WriteString("\n\n## Actions already issued for this task\n")
		for i, a := range task.Actions {
			fmt.Fprintf(&b, "%d. [%s] %s", i+1, a.Status, a.Goal)
			if a.Detail != "" {
				fmt.Fprintf(&b, " — %s", a.Detail)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
