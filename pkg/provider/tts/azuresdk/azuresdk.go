// Package azuresdk provides a TTS provider backed by the Azure AI Speech SDK
// (github.com/Microsoft/cognitive-services-speech-sdk-go). It needs the native
// Speech SDK library at build and run time; see the package README of the SDK
// for the CGO_CFLAGS and LD_LIBRARY_PATH setup.
//
// Every Synthesize call builds its own SpeechConfig and SpeechSynthesizer so
// concurrent sessions can speak with different voices in parallel. The
// synthesizer has no audio output attached and the clip is read from the
// result.
package azuresdk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"

	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/tts"
)

const defaultOutputFmt = "audio-24khz-48kbitrate-mono-mp3"

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithEndpoint connects to a custom endpoint instead of the regional one.
func WithEndpoint(url string) Option {
	return func(p *Provider) {
		p.endpoint = url
	}
}

// WithOutputFormat sets the synthesis output format by its service name
// (e.g. "riff-24khz-16bit-mono-pcm").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// Provider implements tts.Provider on top of the Speech SDK.
type Provider struct {
	key          string
	region       string
	endpoint     string
	outputFormat string
}

var _ tts.Provider = (*Provider)(nil)

// New creates a Provider for the given subscription key and region. region may
// be empty when [WithEndpoint] is supplied.
func New(key, region string, opts ...Option) (*Provider, error) {
	if key == "" {
		return nil, errors.New("azuresdk tts: key must not be empty")
	}
	p := &Provider{key: key, region: region, outputFormat: defaultOutputFmt}
	for _, o := range opts {
		o(p)
	}
	if p.region == "" && p.endpoint == "" {
		return nil, errors.New("azuresdk tts: region or endpoint must be set")
	}
	return p, nil
}

// OutputFormat reports the configured audio output format.
func (p *Provider) OutputFormat() string {
	return p.outputFormat
}

// Synthesize implements tts.Provider. When ctx ends first the call returns
// ctx.Err() and the in-flight synthesis is released in the background.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	if voice.ID == "" {
		return nil, errors.New("azuresdk tts: voice.ID must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, err := p.speechConfig(voice)
	if err != nil {
		return nil, err
	}
	synth, err := speech.NewSpeechSynthesizerFromConfig(cfg, nil)
	if err != nil {
		cfg.Close()
		return nil, fmt.Errorf("azuresdk tts: new synthesizer: %w", err)
	}
	release := func() {
		synth.Close()
		cfg.Close()
	}

	task := synth.SpeakTextAsync(text)
	select {
	case outcome := <-task:
		defer release()
		return clip(outcome)
	case <-ctx.Done():
		go func() {
			outcome := <-task
			if outcome.Result != nil {
				outcome.Result.Close()
			}
			release()
		}()
		return nil, ctx.Err()
	}
}

func (p *Provider) speechConfig(voice tts.VoiceProfile) (*speech.SpeechConfig, error) {
	var (
		cfg *speech.SpeechConfig
		err error
	)
	if p.endpoint != "" {
		cfg, err = speech.NewSpeechConfigFromEndpointWithSubscription(p.endpoint, p.key)
	} else {
		cfg, err = speech.NewSpeechConfigFromSubscription(p.key, p.region)
	}
	if err != nil {
		return nil, fmt.Errorf("azuresdk tts: speech config: %w", err)
	}

	settings := []struct {
		what string
		set  func() error
	}{
		{"voice", func() error { return cfg.SetSpeechSynthesisVoiceName(voice.ID) }},
		{"language", func() error { return cfg.SetSpeechSynthesisLanguage(language(voice)) }},
		{"output format", func() error {
			return cfg.SetProperty(common.SpeechServiceConnectionSynthOutputFormat, p.outputFormat)
		}},
	}
	for _, s := range settings {
		if err := s.set(); err != nil {
			cfg.Close()
			return nil, fmt.Errorf("azuresdk tts: set %s: %w", s.what, err)
		}
	}
	return cfg, nil
}

// clip extracts the audio of a finished synthesis and closes the result.
func clip(outcome speech.SpeechSynthesisOutcome) ([]byte, error) {
	if outcome.Error != nil {
		return nil, fmt.Errorf("azuresdk tts: synthesize: %w", outcome.Error)
	}
	result := outcome.Result
	defer result.Close()

	if result.Reason == common.Canceled {
		details, err := speech.NewCancellationDetailsFromSpeechSynthesisResult(result)
		if err != nil {
			return nil, fmt.Errorf("azuresdk tts: synthesis canceled: %w", err)
		}
		return nil, fmt.Errorf("azuresdk tts: synthesis canceled (%v): %s", details.ErrorCode, details.ErrorDetails)
	}
	if result.Reason != common.SynthesizingAudioCompleted {
		return nil, fmt.Errorf("azuresdk tts: unexpected result reason %v", result.Reason)
	}
	return append([]byte(nil), result.AudioData...), nil
}

// language returns voice.Language or the locale prefix of the voice name
// ("en-US-JennyNeural" → "en-US").
func language(voice tts.VoiceProfile) string {
	if voice.Language != "" {
		return voice.Language
	}
	parts := strings.SplitN(voice.ID, "-", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" {
		return "en-US"
	}
	return parts[0] + "-" + parts[1]
}
