// Package azure provides a TTS provider backed by the Azure AI Speech
// text-to-speech REST API. Each call posts one SSML document and returns the
// complete encoded clip.
package azure

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/tts"
)

const (
	endpointFmt      = "https://%s.tts.speech.microsoft.com/cognitiveservices/v1"
	defaultOutputFmt = "audio-24khz-48kbitrate-mono-mp3"
	defaultLanguage  = "en-US"
	userAgent        = "AzureHandsOnLab-relay"
	defaultTimeout   = 30 * time.Second

	// maxErrorBody bounds how much of a failed response is quoted in errors.
	maxErrorBody = 512
)

// Option is a functional option for configuring the Azure Provider.
type Option func(*Provider)

// WithEndpoint overrides the regional endpoint URL. Used for sovereign clouds,
// private endpoints and tests.
func WithEndpoint(url string) Option {
	return func(p *Provider) {
		p.endpoint = url
	}
}

// WithOutputFormat sets the X-Microsoft-OutputFormat value
// (e.g. "riff-24khz-16bit-mono-pcm", "audio-16khz-32kbitrate-mono-mp3").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithTimeout sets the HTTP timeout for a single synthesis request. It applies
// to a copy of the client, so a client passed with [WithHTTPClient] is never
// modified.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by Azure AI Speech.
type Provider struct {
	key          string
	endpoint     string
	outputFormat string
	timeout      time.Duration
	httpClient   *http.Client
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// New creates a new Azure Speech Provider for the given subscription key and
// region. region may be empty when [WithEndpoint] is supplied.
func New(key, region string, opts ...Option) (*Provider, error) {
	if key == "" {
		return nil, errors.New("azure tts: key must not be empty")
	}
	p := &Provider{
		key:          key,
		outputFormat: defaultOutputFmt,
		timeout:      defaultTimeout,
		httpClient:   http.DefaultClient,
	}
	if region != "" {
		p.endpoint = fmt.Sprintf(endpointFmt, region)
	}
	for _, o := range opts {
		o(p)
	}
	client := *p.httpClient
	client.Timeout = p.timeout
	p.httpClient = &client

	if p.endpoint == "" {
		return nil, errors.New("azure tts: region or endpoint must be set")
	}
	return p, nil
}

// OutputFormat reports the configured audio output format.
func (p *Provider) OutputFormat() string {
	return p.outputFormat
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	if voice.ID == "" {
		return nil, errors.New("azure tts: voice.ID must not be empty")
	}

	body, err := buildSSML(text, voice)
	if err != nil {
		return nil, fmt.Errorf("azure tts: build ssml: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("azure tts: new request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", p.key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", p.outputFormat)
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("azure tts: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("azure tts: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("azure tts: read audio: %w", err)
	}
	return audio, nil
}

// buildSSML renders the SSML document for one synthesis request. Text and
// attribute values are XML-escaped.
func buildSSML(text string, voice tts.VoiceProfile) ([]byte, error) {
	lang := voice.Language
	if lang == "" {
		lang = languageFromVoice(voice.ID)
	}

	var buf bytes.Buffer
	buf.WriteString("<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='")
	if err := xml.EscapeText(&buf, []byte(lang)); err != nil {
		return nil, err
	}
	buf.WriteString("'><voice name='")
	if err := xml.EscapeText(&buf, []byte(voice.ID)); err != nil {
		return nil, err
	}
	buf.WriteString("'>")
	if err := xml.EscapeText(&buf, []byte(text)); err != nil {
		return nil, err
	}
	buf.WriteString("</voice></speak>")
	return buf.Bytes(), nil
}

// languageFromVoice extracts the locale prefix of an Azure voice name
// ("en-US-JennyNeural" → "en-US").
func languageFromVoice(id string) string {
	parts := strings.SplitN(id, "-", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" {
		return defaultLanguage
	}
	return parts[0] + "-" + parts[1]
}
