package oracle

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"

	"github.com/GML-FMGroup/cappuccino/internal/observability"
	"github.com/GML-FMGroup/cappuccino/internal/surface"
)

// Client wraps one model endpoint behind the shared call scaffold: rate
// limit, observation attachment, generation, logging. All four roles go
// through Generate; they differ only in prompts and parsing.
type Client struct {
	model   llms.Model
	label   string // "planning" or "grounding"
	limiter *rate.Limiter
	log     *observability.Logger
}

func NewClient(model llms.Model, label string, rps float64, logger *observability.Logger) *Client {
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		model:   model,
		label:   label,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     logger,
	}
}

// Generate sends a system + user prompt with zero or more screen
// observations attached and returns the model's text response.
func (c *Client) Generate(ctx context.Context, chatID, system, user string, images ...*surface.Observation) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	humanParts := []llms.ContentPart{llms.TextPart(user)}
	for _, obs := range images {
		if obs != nil && len(obs.Data) > 0 {
			humanParts = append(humanParts, llms.BinaryPart("image/png", obs.Data))
		}
	}

	messages := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: humanParts,
		},
	}

	resp, err := c.model.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%s model: %w", c.label, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s model: empty response", c.label)
	}

	content := resp.Choices[0].Content
	if c.log != nil {
		c.log.LogLLM(chatID, c.label, user, content, resp.Choices[0].GenerationInfo)
	}
	return content, nil
}
