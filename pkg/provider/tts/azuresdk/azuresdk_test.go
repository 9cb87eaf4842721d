package azuresdk

import (
	"context"
	"errors"
	"testing"

	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/tts"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "eastus"); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := New("key", ""); err == nil {
		t.Error("expected error without region or endpoint")
	}
	if _, err := New("key", "", WithEndpoint("wss://example.invalid/tts")); err != nil {
		t.Errorf("endpoint only: %v", err)
	}

	p, err := New("key", "westeurope", WithOutputFormat("riff-24khz-16bit-mono-pcm"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.OutputFormat() != "riff-24khz-16bit-mono-pcm" {
		t.Errorf("output format = %q", p.OutputFormat())
	}
	if p.region != "westeurope" || p.endpoint != "" {
		t.Errorf("region = %q endpoint = %q", p.region, p.endpoint)
	}
}

func TestNew_DefaultOutputFormat(t *testing.T) {
	t.Parallel()

	p, err := New("key", "eastus")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.OutputFormat() != defaultOutputFmt {
		t.Errorf("output format = %q, want %q", p.OutputFormat(), defaultOutputFmt)
	}
}

func TestSynthesize_RejectsBeforeConnecting(t *testing.T) {
	t.Parallel()

	p, err := New("key", "eastus")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Synthesize(context.Background(), "Hi.", tts.VoiceProfile{}); err == nil {
		t.Error("expected error for empty voice")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Synthesize(ctx, "Hi.", tts.VoiceProfile{ID: "en-US-JennyNeural"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		voice tts.VoiceProfile
		want  string
	}{
		{tts.VoiceProfile{ID: "en-US-JennyNeural"}, "en-US"},
		{tts.VoiceProfile{ID: "es-MX-DaliaNeural"}, "es-MX"},
		{tts.VoiceProfile{ID: "en-US-JennyNeural", Language: "en-GB"}, "en-GB"},
		{tts.VoiceProfile{ID: "custom"}, "en-US"},
	}
	for _, tt := range tests {
		if got := language(tt.voice); got != tt.want {
			t.Errorf("language(%+v) = %q, want %q", tt.voice, got, tt.want)
		}
	}
}
