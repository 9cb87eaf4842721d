package relay

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/tts"
	ttsmock "github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/tts/mock"
)

var testVoice = tts.VoiceProfile{ID: "en-US-JennyNeural", Provider: "mock"}

func TestGateway_Synthesize(t *testing.T) {
	t.Parallel()

	p := &ttsmock.Provider{Audio: []byte("mp3-bytes")}
	g := NewGateway(p, testVoice, WithProviderName("mock"))

	res := g.Synthesize(context.Background(), "The sky is blue.")
	if !res.OK() {
		t.Fatalf("unexpected failure %q", res.Failure)
	}
	if !bytes.Equal(res.Audio, []byte("mp3-bytes")) {
		t.Errorf("audio = %q, want provider bytes", res.Audio)
	}
	if len(p.SynthesizeCalls) != 1 {
		t.Fatalf("calls = %d, want 1", len(p.SynthesizeCalls))
	}
	if c := p.SynthesizeCalls[0]; c.Text != "The sky is blue." || c.Voice != testVoice {
		t.Errorf("call = %+v", c)
	}
}

func TestGateway_Failures(t *testing.T) {
	t.Parallel()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name     string
		provider tts.Provider
		voice    tts.VoiceProfile
		ctx      context.Context
		wantSub  string
	}{
		{
			name:     "provider error",
			provider: &ttsmock.Provider{Err: errors.New("401 unauthorized")},
			voice:    testVoice,
			ctx:      context.Background(),
			wantSub:  "401 unauthorized",
		},
		{
			name:     "empty voice",
			provider: &ttsmock.Provider{Audio: []byte("x")},
			voice:    tts.VoiceProfile{},
			ctx:      context.Background(),
			wantSub:  "no voice configured",
		},
		{
			name:     "nil provider",
			provider: nil,
			voice:    testVoice,
			ctx:      context.Background(),
			wantSub:  "not configured",
		},
		{
			name:     "empty audio",
			provider: &ttsmock.Provider{},
			voice:    testVoice,
			ctx:      context.Background(),
			wantSub:  "no audio",
		},
		{
			name: "cancelled",
			provider: &ttsmock.Provider{SynthesizeFunc: func(ctx context.Context, _ string) ([]byte, error) {
				return nil, ctx.Err()
			}},
			voice:   testVoice,
			ctx:     cancelled,
			wantSub: "cancelled",
		},
		{
			name: "panic",
			provider: &ttsmock.Provider{SynthesizeFunc: func(context.Context, string) ([]byte, error) {
				panic("decoder exploded")
			}},
			voice:   testVoice,
			ctx:     context.Background(),
			wantSub: "decoder exploded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGateway(tt.provider, tt.voice)
			res := g.Synthesize(tt.ctx, "Hello.")
			if res.OK() {
				t.Fatal("expected a failure")
			}
			if res.Audio != nil {
				t.Errorf("failure should carry no audio, got %d bytes", len(res.Audio))
			}
			if !strings.Contains(res.Failure, tt.wantSub) {
				t.Errorf("failure = %q, want it to mention %q", res.Failure, tt.wantSub)
			}
		})
	}
}

func TestGateway_SharedAcrossGoroutines(t *testing.T) {
	t.Parallel()

	p := &ttsmock.Provider{Audio: []byte("a")}
	g := NewGateway(p, testVoice)

	done := make(chan AudioResult, 8)
	for i := 0; i < 8; i++ {
		go func() { done <- g.Synthesize(context.Background(), "Hi.") }()
	}
	for i := 0; i < 8; i++ {
		if res := <-done; !res.OK() {
			t.Errorf("unexpected failure %q", res.Failure)
		}
	}
}
