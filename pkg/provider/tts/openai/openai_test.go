package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/tts"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("", WithAzure("https://example.openai.azure.com", "")); err == nil {
		t.Error("expected error for azure without key or credential")
	}
}

func TestSynthesize_SendsParams(t *testing.T) {
	t.Parallel()

	bodies := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		bodies <- body
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	t.Cleanup(srv.Close)

	p, err := New("key", WithBaseURL(srv.URL), WithModel("tts-1-hd"), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	audio, err := p.Synthesize(context.Background(), "It is a nice day.", tts.VoiceProfile{ID: "nova"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(audio, []byte("ID3-audio")) {
		t.Errorf("audio = %q", audio)
	}

	body := <-bodies
	want := map[string]any{
		"input":           "It is a nice day.",
		"model":           "tts-1-hd",
		"voice":           "nova",
		"response_format": "mp3",
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("%s = %v, want %v", k, body[k], v)
		}
	}
}

func TestSynthesize_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad voice","type":"invalid_request_error"}}`)
	}))
	t.Cleanup(srv.Close)

	p, err := New("key", WithBaseURL(srv.URL), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "Hi.", tts.VoiceProfile{ID: "nova"}); err == nil {
		t.Error("expected error for 400 response")
	}
}

func TestSynthesize_EmptyVoice(t *testing.T) {
	t.Parallel()

	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "Hi.", tts.VoiceProfile{}); err == nil {
		t.Error("expected error for empty voice")
	}
}
