// Package openai adapts the OpenAI chat completion API to the Completer
// port. Output is requested as a single JSON object and decoded before it
// reaches the engine.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	sdk "github.com/sashabaranov/go-openai"

	"github.com/riverbedai/riverbed/pkg/domain"
)

const defaultModel = "gpt-4o-mini"

// Completer implements ports.Completer against the OpenAI API.
type Completer struct {
	client      *sdk.Client
	model       string
	temperature float32
	system      string
	logger      *slog.Logger
}

type Option func(*Completer)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *Completer) {
		c.model = model
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(c *Completer) {
		c.temperature = t
	}
}

// WithSystemPrompt replaces the default system message.
func WithSystemPrompt(prompt string) Option {
	return func(c *Completer) {
		c.system = prompt
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Completer) {
		c.logger = logger
	}
}

// New creates a Completer with a fresh client for the given API key.
func New(apiKey string, opts ...Option) *Completer {
	return NewFromClient(sdk.NewClient(apiKey), opts...)
}

// NewFromClient creates a Completer from an existing client. Useful for
// pointing at compatible local servers via a custom client config.
func NewFromClient(client *sdk.Client, opts ...Option) *Completer {
	c := &Completer{
		client: client,
		model:  defaultModel,
		system: "You are a structured reasoning worker. Respond with a single JSON object and nothing else.",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete renders one chat completion and decodes the reply as JSON.
func (c *Completer) Complete(ctx context.Context, prompt string, schema *domain.OutputSchema) (map[string]any, error) {
	user := prompt
	if schema != nil {
		contract, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("failed to encode output contract: %w", err)
		}
		user = fmt.Sprintf("%s\n\nRespond with a JSON object matching this schema:\n%s", prompt, contract)
	}

	req := sdk.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []sdk.ChatCompletionMessage{
			{Role: sdk.ChatMessageRoleSystem, Content: c.system},
			{Role: sdk.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &sdk.ChatCompletionResponseFormat{
			Type: sdk.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error("completion call failed", "model", c.model, "err", err)
		return nil, fmt.Errorf("completion call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}

	content := resp.Choices[0].Message.Content
	c.logger.Debug("completion received",
		"model", c.model,
		"finish_reason", resp.Choices[0].FinishReason,
		"tokens", resp.Usage.TotalTokens)

	output, err := decodeObject(content)
	if err != nil {
		return nil, err
	}
	return output, nil
}

// decodeObject parses a JSON object out of the model reply, tolerating
// markdown fences some models wrap around their output.
func decodeObject(content string) (map[string]any, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var output map[string]any
	if err := json.Unmarshal([]byte(trimmed), &output); err != nil {
		return nil, fmt.Errorf("model reply is not a JSON object: %w", err)
	}
	return output, nil
}
