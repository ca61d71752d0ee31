// Package mock provides a scripted tts.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/nileshdk/bolikhata/pkg/provider/tts"
)

// Provider is a test double for tts.Provider. It records every synthesis
// request and returns the configured audio bytes.
type Provider struct {
	mu sync.Mutex

	// Audio returned for every request. Defaults to a small marker buffer.
	Audio []byte

	// AudioFormat reported with results. Defaults to "mp3".
	AudioFormat string

	// Err, when set, fails every call.
	Err error

	// Texts records each synthesised text in order.
	Texts []string
}

var _ tts.Provider = (*Provider)(nil)

func (p *Provider) record(text string) ([]byte, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, "", p.Err
	}
	p.Texts = append(p.Texts, text)
	audio := p.Audio
	if audio == nil {
		audio = []byte("audio")
	}
	format := p.AudioFormat
	if format == "" {
		format = "mp3"
	}
	return audio, format, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(_ context.Context, text string, _ tts.SpeechOptions) (*tts.Result, error) {
	audio, format, err := p.record(text)
	if err != nil {
		return nil, err
	}
	return &tts.Result{Audio: audio, Format: format}, nil
}

// SynthesizeStream implements tts.Provider.
func (p *Provider) SynthesizeStream(_ context.Context, text string, _ tts.SpeechOptions) (<-chan []byte, string, error) {
	audio, format, err := p.record(text)
	if err != nil {
		return nil, "", err
	}
	ch := make(chan []byte, 1)
	ch <- audio
	close(ch)
	return ch, format, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "mock" }

// SynthesizedTexts returns all texts synthesised so far.
func (p *Provider) SynthesizedTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Texts))
	copy(out, p.Texts)
	return out
}
