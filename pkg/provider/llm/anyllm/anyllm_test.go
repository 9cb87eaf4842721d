package anyllm

import (
	"context"
	"slices"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		vendor  string
		model   string
		wantErr string
	}{
		{"empty model", "ollama", "", "model must not be empty"},
		{"empty vendor", "", "m", "unsupported backend"},
		{"unknown vendor", "not-a-vendor", "m", "supported: anthropic, deepseek"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.vendor, tt.model)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_VendorIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	p, err := New("Ollama", "llama3.2", anyllmlib.WithBaseURL("http://127.0.0.1:11434"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "llama3.2" {
		t.Errorf("model = %q, want llama3.2", p.model)
	}
}

func TestBackends_Sorted(t *testing.T) {
	t.Parallel()

	got := Backends()
	if len(got) != 8 || !slices.IsSorted(got) {
		t.Errorf("Backends() = %v, want 8 sorted names", got)
	}
}

func TestStreamCompletion_RejectsEmptyRequest(t *testing.T) {
	t.Parallel()

	p, err := New("ollama", "llama3.2", anyllmlib.WithBaseURL("http://127.0.0.1:11434"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Error("expected error for a request without messages")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "claude-3-5-haiku-latest"}
	temperature := 0.7
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a narrator.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Tell me about the sky."}},
		Temperature:  &temperature,
		MaxTokens:    256,
	})

	if params.Model != "claude-3-5-haiku-latest" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("max tokens = %v, want 256", params.MaxTokens)
	}
}

func TestBuildParams_ZeroValuesOmitted(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "m"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if params.Temperature != nil {
		t.Error("temperature should be nil when unset")
	}
	if params.MaxTokens != nil {
		t.Error("max tokens should be nil when unset")
	}
}

func TestBuildParams_ExplicitZeroTemperature(t *testing.T) {
	t.Parallel()

	zero := 0.0
	p := &Provider{model: "m"}
	params := p.buildParams(llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature: &zero,
	})
	if params.Temperature == nil || *params.Temperature != 0 {
		t.Errorf("temperature = %v, want explicit 0", params.Temperature)
	}
}
