// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (Azure Speech, ElevenLabs,
// OpenAI speech) and turns one text segment into one encoded audio clip. The
// relay calls Synthesize once per sentence-sized segment and forwards the bytes
// untouched, so providers return their native encoding (MP3, WAV, ...).
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into a complete audio clip spoken with voice.
	//
	// The returned bytes are in the provider's output format. Implementations
	// return an error when the voice is unknown, the service rejects the request
	// or ctx is cancelled before the audio is complete. An empty clip without
	// an error is allowed; callers decide how to treat it.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)
}
