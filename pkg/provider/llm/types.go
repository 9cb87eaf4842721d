package llm

// Roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FinishError is the FinishReason carried by the chunk that reports a failure
// after the stream was opened. The chunk's Text holds the error message.
const FinishError = "error"

// Message represents a single message in a completion request.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text content of the message.
	Content string
}

// Chunk is a single token or fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content of this chunk. May be empty if the
	// chunk only carries a FinishReason. For FinishError chunks it holds the
	// error message instead of generated text.
	Text string

	// FinishReason is set on the final chunk and indicates why generation
	// stopped: "stop", "length", "content_filter" or FinishError.
	FinishReason string
}

// IsError reports whether c signals a mid-stream provider failure.
func (c Chunk) IsError() bool {
	return c.FinishReason == FinishError
}
