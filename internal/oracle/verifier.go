package oracle

import (
	"context"
	"fmt"

	"github.com/GML-FMGroup/cappuccino/internal/agent"
	"github.com/GML-FMGroup/cappuccino/internal/surface"
)

// Verifier compares before/after observations against the task goal.
type Verifier struct {
	Client  *Client
	Prompts *PromptManager
}

type verifyResponse struct {
	Verdict string `json:"verdict"`
	Reason  string `json:"reason"`
}

func (v *Verifier) Verify(ctx context.Context, task *agent.Task, before, after *surface.Observation) (agent.Verdict, string, error) {
	user := fmt.Sprintf("## Task goal\n%s\n\nThe first image is the screen before the last action, the second is the screen after it.", task.Goal)

	content, err := v.Client.Generate(ctx, "", v.Prompts.Get("verifier"), user, before, after)
	if err != nil {
		return "", "", err
	}

	var resp verifyResponse
	if err := decode(content, &resp); err != nil {
		return "", "", err
	}

	switch resp.Verdict {
	case "satisfied":
		return agent.VerdictSatisfied, resp.Reason, nil
	case "pending":
		return agent.VerdictPending, resp.Reason, nil
	case "failed":
		return agent.VerdictFailed, resp.Reason, nil
	}
	return "", "", fmt.Errorf("verifier returned unknown verdict %q", resp.Verdict)
}
