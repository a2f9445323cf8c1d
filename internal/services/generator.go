package services

import "context"

// Result is the outcome of a text-generation call.
type Result struct {
	OK    bool
	Text  string
	Error string
}

// Generator is the text-generation collaborator used for subject metadata.
// A non-OK Result and a returned error are handled identically.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Result, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (Result, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (Result, error) {
	return f(ctx, prompt)
}
