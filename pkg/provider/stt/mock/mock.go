// Package mock provides an in-memory stt.Provider for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/nileshdk/bolikhata/pkg/provider/stt"
)

// Provider is a test double for stt.Provider. Each StartStream returns a new
// Session whose transcript channels the test drives directly.
type Provider struct {
	mu       sync.Mutex
	sessions []*Session

	// StartErr, when set, is returned by StartStream.
	StartErr error

	// ProviderFormat reported by Format. Defaults to FormatPCM16K.
	ProviderFormat stt.Format
}

var _ stt.Provider = (*Provider)(nil)

// StartStream implements stt.Provider.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	s := &Session{
		Config:   cfg,
		partials: make(chan stt.Transcript, 16),
		finals:   make(chan stt.Transcript, 16),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, nil
}

// Format implements stt.Provider.
func (p *Provider) Format() stt.Format {
	if p.ProviderFormat == "" {
		return stt.FormatPCM16K
	}
	return p.ProviderFormat
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return "mock" }

// Sessions returns all sessions opened so far.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Session is a scripted stt.SessionHandle.
type Session struct {
	Config stt.StreamConfig

	mu     sync.Mutex
	Frames [][]byte
	closed bool

	partials chan stt.Transcript
	finals   chan stt.Transcript
	errs     chan error
	done     chan struct{}
	once     sync.Once
}

var _ stt.SessionHandle = (*Session)(nil)

// SendAudio records the frame.
func (s *Session) SendAudio(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock stt: session is closed")
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.Frames = append(s.Frames, cp)
	return nil
}

// Partials implements stt.SessionHandle.
func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

// Finals implements stt.SessionHandle.
func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// Errors implements stt.SessionHandle.
func (s *Session) Errors() <-chan error { return s.errs }

// Close implements stt.SessionHandle.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		close(s.partials)
		close(s.finals)
		close(s.errs)
	})
	return nil
}

// EmitPartial delivers an interim transcript to the consumer.
func (s *Session) EmitPartial(text string) {
	s.partials <- stt.Transcript{Text: text}
}

// EmitFinal delivers a final transcript with the given confidence.
func (s *Session) EmitFinal(text string, confidence float64) {
	s.finals <- stt.Transcript{Text: text, IsFinal: true, Confidence: confidence}
}

// EmitError delivers a stream failure to the consumer.
func (s *Session) EmitError(err error) {
	s.errs <- err
}

// FrameCount returns how many audio frames the session has received.
func (s *Session) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Frames)
}
