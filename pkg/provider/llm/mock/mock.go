// Package mock provides a scripted llm.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/nileshdk/bolikhata/pkg/provider/llm"
)

// Provider is a test double for llm.Provider. Responses are served in FIFO
// order from the scripted queue; when the queue is empty, Response/Err are
// used. All methods are safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// Response is the default completion content.
	Response string

	// Err is returned by Complete and StreamCompletion when set.
	Err error

	// Queue is an ordered list of responses consumed one per call.
	Queue []string

	// Delay optionally blocks each call until the context is cancelled,
	// simulating a slow provider. When true, calls return ctx.Err().
	Hang bool

	// Requests records every request received, in order.
	Requests []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) next(req llm.CompletionRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Queue) > 0 {
		r := p.Queue[0]
		p.Queue = p.Queue[1:]
		return r, nil
	}
	return p.Response, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if p.Hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	content, err := p.next(req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: content}, nil
}

// StreamCompletion implements llm.Provider. The scripted response is split
// into word-sized chunks to exercise streaming consumers.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	if p.Hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	content, err := p.next(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.Chunk, 16)
	go func() {
		defer close(ch)
		for i := 0; i < len(content); {
			end := i + 8
			if end > len(content) {
				end = len(content)
			}
			select {
			case ch <- llm.Chunk{Text: content[i:end]}:
			case <-ctx.Done():
				return
			}
			i = end
		}
		select {
		case ch <- llm.Chunk{FinishReason: "stop"}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// CallCount returns how many requests the mock has served.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

// LastRequest returns the most recent request, or a zero value when none.
func (p *Provider) LastRequest() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Requests) == 0 {
		return llm.CompletionRequest{}
	}
	return p.Requests[len(p.Requests)-1]
}
