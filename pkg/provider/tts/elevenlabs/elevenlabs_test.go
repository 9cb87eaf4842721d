package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/tts"
)

// fakeService emulates the stream-input endpoint: it records every text
// message and replies with the given audio chunks once the flush arrives.
func fakeService(t *testing.T, chunks [][]byte, failWith string) (*httptest.Server, <-chan []string) {
	t.Helper()
	got := make(chan []string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		var texts []string
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			var msg map[string]any
			_ = json.Unmarshal(data, &msg)
			text, _ := msg["text"].(string)
			texts = append(texts, text)
			if text == "" {
				break
			}
		}
		got <- texts

		ctx := r.Context()
		if failWith != "" {
			b, _ := json.Marshal(audioResponse{Error: failWith, Message: "rejected"})
			_ = conn.Write(ctx, websocket.MessageText, b)
			return
		}
		for _, c := range chunks {
			b, _ := json.Marshal(audioResponse{Audio: base64.StdEncoding.EncodeToString(c)})
			_ = conn.Write(ctx, websocket.MessageText, b)
		}
		b, _ := json.Marshal(audioResponse{IsFinal: true})
		_ = conn.Write(ctx, websocket.MessageText, b)
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty api key")
	}
}

func TestSynthesize_CollectsChunks(t *testing.T) {
	t.Parallel()

	srv, got := fakeService(t, [][]byte{[]byte("abc"), []byte("def")}, "")
	p, err := New("xi-key", WithBaseURL(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	audio, err := p.Synthesize(context.Background(), "The sky is blue.", tts.VoiceProfile{ID: "voice-1"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(audio, []byte("abcdef")) {
		t.Errorf("audio = %q, want abcdef", audio)
	}

	texts := <-got
	if len(texts) != 3 {
		t.Fatalf("texts = %q, want BOI, segment and flush", texts)
	}
	if texts[1] != "The sky is blue. " {
		t.Errorf("segment message = %q", texts[1])
	}
}

func TestSynthesize_ServiceError(t *testing.T) {
	t.Parallel()

	srv, _ := fakeService(t, nil, "quota_exceeded")
	p, err := New("xi-key", WithBaseURL(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Synthesize(context.Background(), "Hi.", tts.VoiceProfile{ID: "voice-1"})
	if err == nil || !strings.Contains(err.Error(), "quota_exceeded") {
		t.Errorf("err = %v, want quota_exceeded", err)
	}
}

func TestSynthesize_EmptyVoice(t *testing.T) {
	t.Parallel()

	p, err := New("xi-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "Hi.", tts.VoiceProfile{}); err == nil {
		t.Error("expected error for empty voice ID")
	}
}

func TestStreamURL(t *testing.T) {
	t.Parallel()

	p, err := New("k", WithModel("eleven_turbo_v2"), WithOutputFormat("pcm_16000"), WithBaseURL("wss://example.test/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := p.streamURL("voice abc")
	for _, want := range []string{
		"wss://example.test/v1/text-to-speech/voice%20abc/stream-input?",
		"model_id=eleven_turbo_v2",
		"output_format=pcm_16000",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("url %q missing %q", got, want)
		}
	}
}

func TestTextMessage_FlushShape(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(inputMessage{Text: ""})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"text":""}` {
		t.Errorf("flush message = %s, want {\"text\":\"\"}", data)
	}
}

func TestSynthesize_OpeningMessage(t *testing.T) {
	t.Parallel()

	first := make(chan inputMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		var msg inputMessage
		_ = json.Unmarshal(data, &msg)
		first <- msg
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)

	p, err := New("xi-key", WithBaseURL(wsURL(srv)), WithVoiceSettings(0.3, 0.9))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, _ = p.Synthesize(context.Background(), "Hi.", tts.VoiceProfile{ID: "v1"})

	msg := <-first
	if msg.XiAPIKey != "xi-key" || msg.Text != " " {
		t.Errorf("opening message = %+v", msg)
	}
	if msg.VoiceSettings == nil || *msg.VoiceSettings != (VoiceSettings{Stability: 0.3, SimilarityBoost: 0.9}) {
		t.Errorf("voice settings = %+v", msg.VoiceSettings)
	}
}
