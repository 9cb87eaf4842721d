package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/tts"
	ttsmock "github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/tts/mock"
)

var testVoice = tts.VoiceProfile{ID: "en-US-JennyNeural"}

func TestTTSFallback_Synthesize_PrimarySuccess(t *testing.T) {
	primary := &ttsmock.Provider{Audio: []byte("primary-audio")}
	secondary := &ttsmock.Provider{Audio: []byte("secondary-audio")}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	audio, err := fb.Synthesize(context.Background(), "Hello.", testVoice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "primary-audio" {
		t.Fatalf("audio = %q, want primary-audio", audio)
	}
	if len(secondary.Texts()) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.Texts()))
	}
}

func TestTTSFallback_Synthesize_Failover(t *testing.T) {
	primary := &ttsmock.Provider{Err: errors.New("primary down")}
	secondary := &ttsmock.Provider{Audio: []byte("secondary-audio")}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	audio, err := fb.Synthesize(context.Background(), "Hello.", testVoice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "secondary-audio" {
		t.Fatalf("audio = %q, want secondary-audio", audio)
	}
	calls := secondary.SynthesizeCalls
	if len(calls) != 1 || calls[0].Text != "Hello." || calls[0].Voice.ID != testVoice.ID {
		t.Fatalf("secondary calls = %+v, want the full segment and voice", calls)
	}
}

func TestTTSFallback_Synthesize_AllFail(t *testing.T) {
	primary := &ttsmock.Provider{Err: errors.New("primary down")}
	secondary := &ttsmock.Provider{Err: errors.New("secondary down")}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Synthesize(context.Background(), "Hello.", testVoice)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTTSFallback_CancelledCallSkipsFallbacks(t *testing.T) {
	primary := &ttsmock.Provider{
		SynthesizeFunc: func(ctx context.Context, _ string) ([]byte, error) {
			return nil, ctx.Err()
		},
	}
	secondary := &ttsmock.Provider{Audio: []byte("late")}
	fb := NewTTSFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fb.Synthesize(ctx, "Hello.", testVoice)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(secondary.Texts()) != 0 {
		t.Fatal("secondary must not be tried after cancellation")
	}
	if !fb.Healthy() {
		t.Fatal("cancellation must not trip breakers")
	}
}
