package tts

// VoiceProfile identifies the voice used for synthesis.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier, e.g. "en-US-JennyNeural"
	// for Azure or a voice ID for ElevenLabs.
	ID string

	// Name is the human-readable voice name. Optional.
	Name string

	// Language is a BCP-47 tag such as "en-US". Providers that need a language
	// (Azure SSML) derive it from ID when it is empty.
	Language string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string
}
