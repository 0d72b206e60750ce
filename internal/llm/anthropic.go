package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultClaudeMaxTokens = 2048

// ClaudeClient implements Generator on the Anthropic API. It is the
// alternative generative backend when no Gemini key is configured; it
// does not provide embeddings.
type ClaudeClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	log       *slog.Logger
}

func NewClaudeClient(apiKey string, model anthropic.Model, log *slog.Logger) *ClaudeClient {
	if log == nil {
		log = slog.Default()
	}
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_5
	}
	return &ClaudeClient{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: defaultClaudeMaxTokens,
		log:       log,
	}
}

func (c *ClaudeClient) Name() string { return "claude" }

// Generate sends one prompt and returns the first text block.
func (c *ClaudeClient) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic generate: %w", err)
	}
	c.log.Debug("claude generation completed", "model", c.model, "duration", time.Since(start), "stopReason", msg.StopReason)

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic generate: no text content in response")
}
