// Package openai provides an LLM provider backed by the OpenAI chat completions
// API. The same provider talks to Azure OpenAI deployments when configured with
// [WithAzure]; requests are then routed to the deployment named by the model.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/llm"
)

// DefaultAzureAPIVersion is the Azure OpenAI REST API version used when
// [WithAzure] is given an empty version.
const DefaultAzureAPIVersion = "2023-09-01-preview"

// Provider implements llm.Provider using the OpenAI SDK.
type Provider struct {
	client oai.Client
	model  string
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	maxRetries   int

	azureEndpoint   string
	azureAPIVersion string
	credential      azcore.TokenCredential
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Ignored in Azure mode.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout bounds how long the service may take to start answering a
// request. A stream that has started is never cut off by it; its lifetime is
// governed by the context passed to StreamCompletion.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the SDK retries a failed request before the
// stream is reported as failed. Negative values keep the SDK default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// WithAzure switches the provider to an Azure OpenAI resource. endpoint is the
// resource URL (https://<name>.openai.azure.com) and the model passed to [New]
// is interpreted as the deployment name.
func WithAzure(endpoint, apiVersion string) Option {
	return func(c *config) {
		c.azureEndpoint = endpoint
		c.azureAPIVersion = apiVersion
	}
}

// WithTokenCredential authenticates Azure requests with an Azure AD token
// credential instead of an API key. Only meaningful together with [WithAzure].
func WithTokenCredential(cred azcore.TokenCredential) Option {
	return func(c *config) {
		c.credential = cred
	}
}

// New constructs a new Provider. apiKey may be empty only when an Azure token
// credential is configured.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}

	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts, err := requestOptions(apiKey, cfg)
	if err != nil {
		return nil, err
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// requestOptions translates cfg into SDK request options.
func requestOptions(apiKey string, cfg *config) ([]option.RequestOption, error) {
	var reqOpts []option.RequestOption

	if cfg.azureEndpoint != "" {
		version := cfg.azureAPIVersion
		if version == "" {
			version = DefaultAzureAPIVersion
		}
		reqOpts = append(reqOpts, azure.WithEndpoint(cfg.azureEndpoint, version))
		switch {
		case cfg.credential != nil:
			reqOpts = append(reqOpts, azure.WithTokenCredential(cfg.credential))
		case apiKey != "":
			reqOpts = append(reqOpts, azure.WithAPIKey(apiKey))
		default:
			return nil, errors.New("openai: azure requires an api key or a token credential")
		}
	} else {
		if apiKey == "" {
			return nil, errors.New("openai: apiKey must not be empty")
		}
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
		if cfg.baseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
		}
		if cfg.organization != "" {
			reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
		}
	}

	if cfg.timeout > 0 {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = cfg.timeout
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Transport: transport}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}
	return reqOpts, nil
}

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			// Azure emits prompt-filter chunks with no choices.
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.Delta.Content == "" && choice.FinishReason == "" {
				continue
			}

			select {
			case ch <- llm.Chunk{Text: choice.Delta.Content, FinishReason: choice.FinishReason}:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil && ctx.Err() == nil {
			select {
			case ch <- llm.Chunk{FinishReason: llm.FinishError, Text: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// buildParams converts a CompletionRequest into OpenAI SDK params.
func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	var messages []oai.ChatCompletionMessageParamUnion

	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}

	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return oai.ChatCompletionNewParams{}, errors.New("no messages")
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}

	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(req.MaxTokens))
	}

	return params, nil
}

// convertMessage converts an llm.Message to an OpenAI SDK message param.
func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case llm.RoleUser:
		return oai.UserMessage(m.Content), nil
	case llm.RoleAssistant:
		return oai.AssistantMessage(m.Content), nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
	}
}
