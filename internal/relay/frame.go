package relay

import (
	"encoding/base64"
	"strings"
)

// Wire prefixes that tag non-text frames. Text frames carry no prefix.
const (
	AudioPrefix = "__AUDIO__:"
	ErrorPrefix = "__ERROR__:"
)

// FrameKind discriminates the three outbound frame variants.
type FrameKind int

const (
	// FrameText carries one completion delta verbatim.
	FrameText FrameKind = iota
	// FrameAudio carries one synthesized audio clip.
	FrameAudio
	// FrameError carries a human-readable failure description. The client
	// displays it and keeps the session open.
	FrameError
)

// String returns the lower-case kind name used in logs and metrics.
func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameAudio:
		return "audio"
	case FrameError:
		return "error"
	default:
		return "unknown"
	}
}

// Frame is one outbound message to the client.
type Frame struct {
	Kind  FrameKind
	Text  string // text delta or error message
	Audio []byte // raw provider audio; FrameAudio only
}

// TextFrame returns a frame relaying one completion delta.
func TextFrame(text string) Frame {
	return Frame{Kind: FrameText, Text: text}
}

// AudioFrame returns a frame carrying synthesized audio.
func AudioFrame(audio []byte) Frame {
	return Frame{Kind: FrameAudio, Audio: audio}
}

// ErrorFrame returns a frame describing a non-fatal failure.
func ErrorFrame(message string) Frame {
	return Frame{Kind: FrameError, Text: message}
}

// Encode renders the frame as a WebSocket text message: text verbatim, audio
// as AudioPrefix plus standard base64, errors as ErrorPrefix plus the message.
func (f Frame) Encode() string {
	switch f.Kind {
	case FrameAudio:
		return AudioPrefix + base64.StdEncoding.EncodeToString(f.Audio)
	case FrameError:
		return ErrorPrefix + f.Text
	default:
		return f.Text
	}
}

// ParseFrame is the inverse of [Frame.Encode]. A message with the audio prefix
// but an invalid base64 payload is returned as a text frame.
func ParseFrame(msg string) Frame {
	switch {
	case strings.HasPrefix(msg, AudioPrefix):
		audio, err := base64.StdEncoding.DecodeString(msg[len(AudioPrefix):])
		if err != nil {
			return TextFrame(msg)
		}
		return AudioFrame(audio)
	case strings.HasPrefix(msg, ErrorPrefix):
		return ErrorFrame(msg[len(ErrorPrefix):])
	default:
		return TextFrame(msg)
	}
}
