package governance

import (
	"context"
	"fmt"
	"regexp"

	"github.com/GML-FMGroup/cappuccino/internal/surface"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a grounded command to be evaluated
// before it reaches the automation surface.
type Request struct {
	Kind    string
	Payload string
	ChatID  string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates grounded commands against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine is a basic implementation of PolicyEngine.
type DefaultPolicyEngine struct {
	DeniedKinds map[string]bool
	DeniedRegex []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedKinds: make(map[string]bool),
		DeniedRegex: make([]*regexp.Regexp, 0),
	}
}

func (e *DefaultPolicyEngine) DenyKind(kind string) {
	e.DeniedKinds[kind] = true
}

func (e *DefaultPolicyEngine) DenyPayload(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedKinds[req.Kind] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Command kind '%s' is restricted by system policy", req.Kind),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Payload) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Payload matches restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}

// CommandGate adapts a PolicyEngine to the pipeline's pre-injection check.
type CommandGate struct {
	Engine PolicyEngine
}

// Check returns an error when the engine denies the command.
func (g *CommandGate) Check(ctx context.Context, chatID string, cmd surface.Command) error {
	res, err := g.Engine.Evaluate(ctx, Request{
		Kind:    string(cmd.Kind),
		Payload: cmd.Payload(),
		ChatID:  chatID,
	})
	if err != nil {
		return err
	}
	if res.Effect == EffectDeny {
		return fmt.Errorf("blocked by policy: %s", res.Reason)
	}
	return nil
}
