// Package openai provides an OpenAI-backed responder using the official
// github.com/openai/openai-go SDK.
package openai

import (
	"context"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voxsense/voxsense/pkg/provider/responder"
)

const (
	defaultModel   = oai.ChatModelGPT4o
	defaultTimeout = 30 * time.Second
)

// Compile-time assertion that Provider implements responder.Provider.
var _ responder.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*config)

type config struct {
	model        string
	baseURL      string
	organization string
	timeout      time.Duration
}

// WithModel sets the chat model. Defaults to gpt-4o.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithBaseURL overrides the API endpoint, e.g. for an OpenAI-compatible
// server or a test double.
func WithBaseURL(baseURL string) Option {
	return func(c *config) { c.baseURL = baseURL }
}

// WithOrganization sets the OpenAI organization ID.
func WithOrganization(org string) Option {
	return func(c *config) { c.organization = org }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// Provider implements responder.Provider against the OpenAI chat API.
type Provider struct {
	client oai.Client
	model  string
}

// New creates an OpenAI Provider. An empty apiKey is allowed only when the
// OPENAI_API_KEY environment variable is set, which the SDK reads itself.
func New(apiKey string, opts ...Option) (*Provider, error) {
	cfg := config{
		model:   defaultModel,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(&cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}),
	}
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
	}, nil
}

// Generate sends one chat completion request and returns the reply text.
func (p *Provider) Generate(ctx context.Context, turn responder.Turn) (string, error) {
	if err := responder.Validate(turn); err != nil {
		return "", err
	}

	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(responder.Prompt(turn)),
		},
	})
	if err != nil {
		return "", &responder.UpstreamError{Provider: "openai", Detail: "chat completion failed", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &responder.UpstreamError{Provider: "openai", Detail: "empty choices in response"}
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &responder.UpstreamError{Provider: "openai", Detail: "empty reply text"}
	}
	return text, nil
}
