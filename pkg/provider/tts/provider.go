// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service and presents both a batch
// call (full buffer for one response) and a streamed variant that emits audio
// chunks as the backend produces them, so the session can start transport
// before synthesis completes. Clients that select the in-browser synthesizer
// bypass this package entirely; the server then ships text only.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"encoding/base64"
)

// SpeechOptions selects voice and language for a synthesis request.
type SpeechOptions struct {
	// Language is the BCP-47 tag of the text ("hi", "ta", "en").
	Language string

	// Voice is the provider-specific voice identifier. Empty selects the
	// provider default.
	Voice string
}

// Result is a fully synthesised utterance.
type Result struct {
	// Audio is the encoded audio buffer.
	Audio []byte

	// Format is the wire format of Audio: "mp3" or "pcm".
	Format string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text into a single audio buffer. Returns an error
	// if the provider cannot be reached or rejects the request; on timeout
	// the caller delivers the text response without audio.
	Synthesize(ctx context.Context, text string, opts SpeechOptions) (*Result, error)

	// SynthesizeStream renders text and emits encoded audio chunks as they
	// become available. The channel is closed when synthesis completes or
	// ctx is cancelled; the caller must drain it. format describes the
	// chunk encoding and is fixed for the stream's lifetime.
	SynthesizeStream(ctx context.Context, text string, opts SpeechOptions) (chunks <-chan []byte, format string, err error)

	// Name identifies the provider in session capability announcements.
	Name() string
}

// Collect drains a synthesis stream into one buffer. Convenience for callers
// that want the streamed variant's pipelining on the provider side but a
// single buffer for transport.
func Collect(chunks <-chan []byte) []byte {
	var buf []byte
	for c := range chunks {
		buf = append(buf, c...)
	}
	return buf
}

// ToBase64 encodes an audio buffer for JSON transport.
func ToBase64(audio []byte) string {
	return base64.StdEncoding.EncodeToString(audio)
}
