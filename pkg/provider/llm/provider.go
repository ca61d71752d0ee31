// Package llm defines the Provider interface for chat-completion backends.
//
// The intent extractor and the response generator both consume this
// interface: the extractor calls Complete with a strict-JSON contract, the
// generator calls StreamCompletion so the session can forward tokens to the
// client before the full reply is known. Implementations wrap a remote API
// (OpenAI, or anything any-llm-go reaches) and must be safe for concurrent
// use. Channels returned by StreamCompletion are closed by the implementation
// when the stream ends or the supplied context is cancelled.
package llm

import "context"

// CompletionRequest carries everything the model needs for one response.
// A zero-value request is invalid; Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is a high-priority instruction injected before the
	// conversation history.
	SystemPrompt string

	// Messages is the ordered conversation history. The last message is
	// typically "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests
	// the provider default.
	Temperature float64

	// MaxTokens caps completion length. Zero means provider default.
	MaxTokens int
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content. May be empty on the final chunk.
	Text string

	// FinishReason is set on the final chunk: "stop", "length", or "error"
	// (with the error text in Text). Empty for non-final chunks.
	FinishReason string
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the model's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any chat-completion backend.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly: when ctx is cancelled, methods return (or close
// their channel) as quickly as possible.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel
	// emitting Chunk values as they arrive. The channel is closed by the
	// implementation when generation finishes or ctx is cancelled.
	//
	// Callers must drain the channel to avoid goroutine leaks. Errors after
	// the stream opens surface as a Chunk with FinishReason "error"; the
	// error return is non-nil only for failures that prevent the stream from
	// starting.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and waits for the full response. Returns an error
	// if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
