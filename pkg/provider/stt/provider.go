// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service and exposes a
// uniform streaming interface. The central abstraction is SessionHandle:
// once opened, a session accepts audio frames and emits two streams of
// Transcript values — low-latency partials for the client's live caption and
// authoritative finals that advance the command pipeline.
//
// Two input variants share this interface: container-framed providers accept
// compressed audio blocks opaquely (the server never decodes them), PCM
// providers require raw 16-bit little-endian mono at 16 kHz downsampled
// client-side. Format reports which variant a provider is so the session can
// announce sampling requirements at connect time.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Format describes the audio encoding a provider expects on SendAudio.
type Format string

const (
	// FormatContainer accepts compressed container blocks (e.g. WebM/Opus)
	// forwarded opaquely to the provider.
	FormatContainer Format = "container"

	// FormatPCM16K accepts raw 16-bit little-endian PCM, mono, 16 kHz.
	FormatPCM16K Format = "pcm16k"
)

// StreamConfig describes the audio and recognition hints for a new session.
type StreamConfig struct {
	// Language is the BCP-47 language tag for recognition (e.g., "hi",
	// "en-IN"). Empty lets the provider auto-detect, if supported.
	Language string

	// SampleRate is the audio sample rate in Hz for PCM providers.
	// Ignored by container providers, which read it from the container.
	SampleRate int

	// Keywords lists vocabulary hints (customer names, product words) that
	// increase recognition probability.
	Keywords []string
}

// SessionHandle represents an open STT streaming session. It is an interface
// so tests can substitute mocks without a live provider connection.
//
// Callers must call Close when the session is no longer needed; failing to
// do so may leak goroutines and network connections inside the provider.
// All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers one audio frame to the provider. The frame encoding
	// must match the provider's Format. Calling SendAudio after Close
	// returns an error.
	SendAudio(frame []byte) error

	// Partials returns a read-only channel emitting low-latency interim
	// Transcript values. Suitable for driving the live caption; must not
	// advance the command pipeline. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals returns a read-only channel emitting authoritative Transcript
	// values. Each final with non-empty text triggers the command pipeline
	// exactly once. Closed when the session ends.
	Finals() <-chan Transcript

	// Errors returns a read-only channel reporting provider failures. A
	// value here means the stream is dead and the caller should tear the
	// handle down; a clean Close emits nothing. Closed when the session
	// ends.
	Errors() <-chan error

	// Close terminates the session, flushes pending audio, and releases all
	// resources. After Close returns, Partials, Finals, and Errors are
	// closed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use; multiple sessions may be
// open simultaneously (one per connected operator).
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// SessionHandle is ready to accept audio immediately. The caller owns
	// the handle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)

	// Format reports the audio encoding this provider expects.
	Format() Format

	// Name identifies the provider in session capability announcements.
	Name() string
}
