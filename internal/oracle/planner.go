package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/GML-FMGroup/cappuccino/internal/agent"
	"github.com/GML-FMGroup/cappuccino/internal/surface"
)

// Planner decomposes an instruction into an ordered task list using the
// planning model. Consulted once per instruction and again on replan.
type Planner struct {
	Client  *Client
	Prompts *PromptManager
	Retries int // task retry budget stamped on produced tasks
}

type planResponse struct {
	Thinking string `json:"thinking"`
	Tasks    []struct {
		Goal string `json:"goal"`
	} `json:"tasks"`
}

func (p *Planner) Plan(ctx context.Context, instr agent.Instruction, history []agent.TaskRecord, obs *surface.Observation) ([]*agent.Task, error) {
	user := buildPlanPrompt(instr, history)

	content, err := p.Client.Generate(ctx, instr.ChatID, p.Prompts.Get("planner"), user, obs)
	if err != nil {
		return nil, agent.PlanningError(err)
	}

	var resp planResponse
	if err := decode(content, &resp); err != nil {
		return nil, agent.PlanningError(err)
	}
	if len(resp.Tasks) == 0 {
		return nil, agent.PlanningError(fmt.Errorf("planner returned no tasks"))
	}

	tasks := make([]*agent.Task, 0, len(resp.Tasks))
	for _, t := range resp.Tasks {
		goal := strings.TrimSpace(t.Goal)
		if goal == "" {
			continue
		}
		tasks = append(tasks, agent.NewTask(goal, p.Retries))
	}
	if len(tasks) == 0 {
		return nil, agent.PlanningError(fmt.Errorf("planner returned only empty goals"))
	}
	return tasks, nil
}

func buildPlanPrompt(instr agent.Instruction, history []agent.TaskRecord) string {
	var b strings.Builder
	b.WriteString("## Request\n")
	b.WriteString(instr.Text)

	if len(history) > 0 {
		b.WriteString("\n\n## Prior task outcomes\n")
		for _, rec := range history {
			fmt.Fprintf(&b, "- [%s] %s", rec.Status, rec.TaskGoal)
			if rec.Detail != "" {
				fmt.Fprintf(&b, " (%s)", rec.Detail)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
