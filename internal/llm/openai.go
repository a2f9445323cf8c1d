// Package llm provides text-generation collaborators for subject metadata.
//
// OpenAIGenerator talks to any OpenAI-compatible chat completion endpoint.
// Transport and API failures are reported as a non-OK Result rather than an
// error so callers can treat every failure the same way.
package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/tbourn/go-subject-engine/internal/services"
)

// Options configures an OpenAIGenerator.
type Options struct {
	APIKey      string
	BaseURL     string // empty uses the public OpenAI endpoint
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// OpenAIGenerator implements services.Generator with go-openai.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	log         zerolog.Logger
}

// NewOpenAIGenerator builds a generator from opts.
func NewOpenAIGenerator(opts Options, log zerolog.Logger) (*OpenAIGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("llm: api key is required")
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: float32(opts.Temperature),
		timeout:     opts.Timeout,
		log:         log,
	}, nil
}

// Generate sends prompt as a single user message and returns the first choice.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (services.Result, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		g.log.Warn().Err(err).Str("model", g.model).Msg("chat completion failed")
		return services.Result{OK: false, Error: err.Error()}, nil
	}
	if len(resp.Choices) == 0 {
		return services.Result{OK: false, Error: "no choices returned"}, nil
	}
	return services.Result{OK: true, Text: strings.TrimSpace(resp.Choices[0].Message.Content)}, nil
}

// Noop is the generator used when no model is configured: every call
// reports a failure, which the synthesizer records and backs off from.
type Noop struct{}

// Generate always returns a non-OK Result.
func (Noop) Generate(context.Context, string) (services.Result, error) {
	return services.Result{OK: false, Error: "text generation disabled"}, nil
}

var (
	_ services.Generator = (*OpenAIGenerator)(nil)
	_ services.Generator = Noop{}
)
