package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

const (
	defaultGeminiModel    = "gemini-2.0-flash"
	defaultEmbeddingModel = "text-embedding-004"

	// EmbeddingDimension is text-embedding-004's native output size. The
	// vector collection is created with this dimensionality at startup.
	EmbeddingDimension = 768
)

// GeminiClient serves both roles: generation and embeddings.
type GeminiClient struct {
	client     *genai.Client
	model      string
	embedModel string
	log        *slog.Logger
}

// NewGeminiClient dials the Gemini API. Model names fall back to the
// package defaults when empty.
func NewGeminiClient(ctx context.Context, apiKey, model, embedModel string, log *slog.Logger) (*GeminiClient, error) {
	if log == nil {
		log = slog.Default()
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if embedModel == "" {
		embedModel = defaultEmbeddingModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model, embedModel: embedModel, log: log}, nil
}

func (c *GeminiClient) Name() string { return "gemini" }

// Generate sends one prompt and returns the concatenated text answer.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini generate: empty response")
	}
	c.log.Debug("gemini generation completed", "model", c.model, "duration", time.Since(start))
	return text, nil
}

// Embed produces the embedding vector for one text projection. No
// retries here; embedding failures degrade pattern analysis and the
// caller records a diagnostic.
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Models.EmbedContent(ctx, c.embedModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini embed: empty embedding")
	}
	vec := resp.Embeddings[0].Values
	if len(vec) != EmbeddingDimension {
		return nil, fmt.Errorf("gemini embed: got %d dims, want %d", len(vec), EmbeddingDimension)
	}
	return vec, nil
}

func (c *GeminiClient) Dimension() int { return EmbeddingDimension }
