// Package cohere provides a Cohere-backed responder using the Cohere v1 chat
// REST API. It is the default reply backend.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxsense/voxsense/pkg/provider/responder"
)

const (
	defaultBaseURL = "https://api.cohere.com"
	defaultModel   = "command-r-plus"
	defaultTimeout = 30 * time.Second
)

// Compile-time assertion that Provider implements responder.Provider.
var _ responder.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Cohere model identifier. Defaults to "command-r-plus".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the API endpoint, e.g. for a proxy or test server.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient replaces the HTTP client. The default has a 30 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements responder.Provider against the Cohere chat API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a Cohere Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("cohere: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// chatRequest is the Cohere v1 chat request body.
type chatRequest struct {
	Model   string `json:"model"`
	Message string `json:"message"`
}

// chatResponse is the subset of the Cohere v1 chat response we consume.
type chatResponse struct {
	Text    string `json:"text"`
	Message string `json:"message"` // error detail on non-2xx responses
}

// Generate sends one chat request to Cohere and returns the reply text.
func (p *Provider) Generate(ctx context.Context, turn responder.Turn) (string, error) {
	if err := responder.Validate(turn); err != nil {
		return "", err
	}

	body, err := json.Marshal(chatRequest{
		Model:   p.model,
		Message: responder.Prompt(turn),
	})
	if err != nil {
		return "", fmt.Errorf("cohere: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("cohere: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &responder.UpstreamError{Provider: "cohere", Detail: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &responder.UpstreamError{Provider: "cohere", Detail: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		detail := resp.Status
		var parsed chatResponse
		if json.Unmarshal(raw, &parsed) == nil && parsed.Message != "" {
			detail = parsed.Message
		}
		return "", &responder.UpstreamError{Provider: "cohere", Detail: detail}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &responder.UpstreamError{Provider: "cohere", Detail: "malformed response payload", Err: err}
	}

	text := strings.TrimSpace(parsed.Text)
	if text == "" {
		return "", &responder.UpstreamError{Provider: "cohere", Detail: "empty reply text"}
	}
	return text, nil
}
