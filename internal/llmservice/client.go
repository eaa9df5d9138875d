package llmservice

import (
	"context"
	"fmt"
	"strings"

	"report-rag/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/huggingface"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Resolver turns request identifiers into ready generation clients.
type Resolver struct {
	cfg config.BackendsConfig
	est *Estimator
}

func NewResolver(cfg config.BackendsConfig, est *Estimator) *Resolver {
	return &Resolver{cfg: cfg, est: est}
}

// Resolve parses choice and binds the matching backend. The identifier is
// resolved once per request; a bad one fails here, before any work runs.
func (r *Resolver) Resolve(choice string) (*Client, error) {
	backend, err := ParseBackend(choice)
	if err != nil {
		return nil, err
	}

	var lc config.LLMConfig
	switch backend {
	case BackendPhi:
		lc = r.cfg.Phi
	case BackendLlama31:
		lc = r.cfg.Llama31
	case BackendMixtral:
		lc = r.cfg.Mixtral
	}

	model, err := newModel(&lc)
	if err != nil {
		return nil, fmt.Errorf("init %s backend: %w", backend, err)
	}
	return NewClient(backend, model, lc.Temperature, lc.MaxTokens, r.est), nil
}

func newModel(lc *config.LLMConfig) (llms.Model, error) {
	switch lc.Provider {
	case "huggingface":
		opts := []huggingface.Option{
			huggingface.WithToken(lc.Key),
			huggingface.WithModel(lc.Model),
		}
		if lc.BaseURL != "" {
			opts = append(opts, huggingface.WithURL(lc.BaseURL))
		}
		return huggingface.New(opts...)
	case "openai":
		return openai.New(
			openai.WithBaseURL(lc.BaseURL),
			openai.WithToken(strings.TrimPrefix(lc.Key, "Bearer ")),
			openai.WithModel(lc.Model),
		)
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(lc.BaseURL),
			ollama.WithModel(lc.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", lc.Provider)
	}
}

// Client is a bound backend with its sampling parameters applied.
type Client struct {
	backend     Backend
	model       llms.Model
	temperature float64
	maxTokens   int
	est         *Estimator
}

func NewClient(backend Backend, model llms.Model, temperature float64, maxTokens int, est *Estimator) *Client {
	return &Client{
		backend:     backend,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		est:         est,
	}
}

func (c *Client) Backend() Backend { return c.backend }

// Generate runs one chat completion and returns the first choice.
func (c *Client) Generate(ctx context.Context, messages []llms.MessageContent) (string, error) {
	if c.est != nil {
		c.est.LogPromptSize(c.backend, messages)
	}
	log.Debug().Str("backend", string(c.backend)).Int("messages", len(messages)).Msg("Generating content")

	resp, err := c.model.GenerateContent(ctx, messages,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("%s generation failed: %w", c.backend, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", c.backend)
	}
	return resp.Choices[0].Content, nil
}

// Prompt generates from a single human message.
func (c *Client) Prompt(ctx context.Context, prompt string) (string, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}
	return c.Generate(ctx, messages)
}
