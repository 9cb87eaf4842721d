// Package llm defines the Provider interface for streaming text-completion
// backends.
//
// An LLM provider wraps a remote model API (OpenAI, Azure OpenAI, Anthropic, a
// local Ollama instance, ...) and exposes the one operation the relay needs:
// open a completion for a message list and receive incremental text deltas.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import "context"

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered message list. The last message is the user prompt.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before
	// Messages as a "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness in the range [0.0, 2.0].
	// nil means use the provider default; a pointer to 0 requests greedy
	// decoding and must be sent as-is.
	Temperature *float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int
}

// Provider is the abstraction over any streaming completion backend.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel
	// that emits Chunk values as they arrive. The channel is closed by the
	// implementation when generation finishes or when ctx is cancelled.
	//
	// The initial error return is non-nil only for failures that prevent the
	// stream from starting (invalid credentials, malformed request, transport
	// failure). Errors after the channel is opened are delivered as a final
	// Chunk whose FinishReason is FinishError.
	//
	// The returned channel must never be nil when error is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
}
