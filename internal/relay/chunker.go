package relay

import (
	"strings"
	"unicode/utf8"
)

// DefaultFlushThreshold is the buffer length in characters at which a segment
// is flushed even without terminal punctuation.
const DefaultFlushThreshold = 300

// Chunker decides when accumulated completion text becomes a synthesis
// segment. It is a pure function of its inputs; the caller owns the buffer.
type Chunker struct {
	// Threshold is the flush length in characters (runes). Values <= 0 use
	// DefaultFlushThreshold.
	Threshold int
}

// Observe appends text to buffer and reports whether the result should be
// flushed: its length reached the threshold or it ends in '.', '!' or '?'.
func (c Chunker) Observe(buffer, text string) (updated string, flush bool) {
	updated = buffer + text
	return updated, c.shouldFlush(updated)
}

func (c Chunker) shouldFlush(buffer string) bool {
	if buffer == "" {
		return false
	}
	if utf8.RuneCountInString(buffer) >= c.threshold() {
		return true
	}
	switch buffer[len(buffer)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

func (c Chunker) threshold() int {
	if c.Threshold <= 0 {
		return DefaultFlushThreshold
	}
	return c.Threshold
}

// Take returns the whitespace-trimmed buffer as a synthesis segment. ok is
// false when nothing but whitespace remains, in which case no synthesis is
// performed. The caller resets its buffer after Take in both cases.
func (c Chunker) Take(buffer string) (segment string, ok bool) {
	segment = strings.TrimSpace(buffer)
	return segment, segment != ""
}
