// Package openai provides a TTS provider backed by the OpenAI speech endpoint
// (/v1/audio/speech). Like the LLM provider of the same name it can target an
// Azure OpenAI speech deployment through [WithAzure].
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/tts"
)

const (
	defaultModel  = "tts-1"
	defaultFormat = "mp3"

	// DefaultAzureAPIVersion is the Azure OpenAI API version that serves the
	// speech route.
	DefaultAzureAPIVersion = "2024-06-01"
)

// Option is a functional option for configuring the Provider.
type Option func(*config)

type config struct {
	model           string
	format          string
	baseURL         string
	maxRetries      int
	azureEndpoint   string
	azureAPIVersion string
	credential      azcore.TokenCredential
}

// WithModel sets the speech model ("tts-1", "tts-1-hd", "gpt-4o-mini-tts").
// In Azure mode this is the deployment name.
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithResponseFormat sets the audio container ("mp3", "opus", "aac", "flac", "wav", "pcm").
func WithResponseFormat(format string) Option {
	return func(c *config) {
		c.format = format
	}
}

// WithBaseURL overrides the OpenAI API base URL. Ignored in Azure mode.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithMaxRetries sets the SDK retry budget. Negative values keep the default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// WithAzure targets an Azure OpenAI resource.
func WithAzure(endpoint, apiVersion string) Option {
	return func(c *config) {
		c.azureEndpoint = endpoint
		c.azureAPIVersion = apiVersion
	}
}

// WithTokenCredential authenticates Azure requests with Azure AD.
func WithTokenCredential(cred azcore.TokenCredential) Option {
	return func(c *config) {
		c.credential = cred
	}
}

// Provider implements tts.Provider using the OpenAI SDK.
type Provider struct {
	client oai.Client
	model  string
	format string
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// New constructs a new Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	cfg := &config{model: defaultModel, format: defaultFormat, maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

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
			return nil, errors.New("openai tts: azure requires an api key or a token credential")
		}
	} else {
		if apiKey == "" {
			return nil, errors.New("openai tts: apiKey must not be empty")
		}
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
		if cfg.baseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
		}
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
		format: cfg.format,
	}, nil
}

// Synthesize implements tts.Provider. voice.ID is an OpenAI voice name such as
// "alloy" or "nova".
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	if voice.ID == "" {
		return nil, errors.New("openai tts: voice.ID must not be empty")
	}

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice.ID),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormat(p.format),
	})
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	return audio, nil
}
