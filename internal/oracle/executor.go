package oracle

import (
	"context"
	"fmt"

	"github.com/GML-FMGroup/cappuccino/internal/agent"
	"github.com/GML-FMGroup/cappuccino/internal/surface"
)

// Executor grounds one atomic action against a screenshot using the
// grounding (vision) model. Pure translation: it never touches the
// automation surface itself.
type Executor struct {
	Client  *Client
	Prompts *PromptManager
}

type groundResponse struct {
	surface.Command
	Error string `json:"error,omitempty"`
}

func (e *Executor) Ground(ctx context.Context, action *agent.AtomicAction, obs *surface.Observation) (surface.Command, error) {
	content, err := e.Client.Generate(ctx, "", e.Prompts.Get("grounder"), action.Goal, obs)
	if err != nil {
		return surface.Command{}, err
	}

	var resp groundResponse
	if err := decode(content, &resp); err != nil {
		return surface.Command{}, err
	}
	if resp.Error != "" || resp.Kind == "" {
		if resp.Error == "" {
			resp.Error = "no command produced"
		}
		return surface.Command{}, fmt.Errorf("cannot ground %q: %s", action.Goal, resp.Error)
	}
	if err := resp.Command.Validate(); err != nil {
		return surface.Command{}, fmt.Errorf("grounded command invalid: %v", err)
	}
	return resp.Command, nil
}
