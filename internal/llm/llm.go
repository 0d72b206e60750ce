// Package llm abstracts the external model calls the engine depends on:
// text generation for risk explanations and embeddings for the session
// vector index. Both are optional collaborators; callers must tolerate a
// nil client.
package llm

import "context"

// Generator produces free-form text for a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder turns a text projection into a dense vector of fixed
// dimensionality.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
