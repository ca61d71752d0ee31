// Package sarvam provides a Sarvam AI-backed STT provider using the Sarvam
// streaming WebSocket API. It implements the stt.Provider interface.
//
// This is the raw-PCM variant: the client downsamples microphone input to
// 16-bit little-endian mono at 16 kHz and the server forwards the frames as
// base64-wrapped JSON messages. Sarvam's saarika models are tuned for Indian
// languages and code-mixed Hindi/English speech.
package sarvam

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"

	"github.com/nileshdk/bolikhata/pkg/provider/stt"
)

const (
	sarvamEndpoint  = "wss://api.sarvam.ai/speech-to-text/ws"
	defaultModel    = "saarika:v2"
	defaultLanguage = "hi-IN"
)

// Option is a functional option for configuring the Sarvam Provider.
type Option func(*Provider)

// WithModel sets the Sarvam model (e.g., "saarika:v2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default language code (e.g., "hi-IN", "ta-IN").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// Provider implements stt.Provider backed by the Sarvam streaming API.
type Provider struct {
	apiKey   string
	model    string
	language string
}

// New creates a new Sarvam Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("sarvam: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Format implements stt.Provider.
func (p *Provider) Format() stt.Format { return stt.FormatPCM16K }

// Name implements stt.Provider.
func (p *Provider) Name() string { return "sarvam" }

// StartStream opens a streaming transcription session with Sarvam.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	u, err := url.Parse(sarvamEndpoint)
	if err != nil {
		return nil, fmt.Errorf("sarvam: parse endpoint: %w", err)
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language-code", lang)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("api-subscription-key", p.apiKey)

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("sarvam: dial: %w", err)
	}

	sess := &session{
		conn:     conn,
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		errs:     make(chan error, 1),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// ---- session ----

// audioMessage wraps one PCM frame for the Sarvam wire protocol.
type audioMessage struct {
	Audio struct {
		Data       string `json:"data"` // base64 PCM s16le
		SampleRate int    `json:"sample_rate"`
		Encoding   string `json:"encoding"`
	} `json:"audio"`
}

// sarvamResponse is the JSON structure Sarvam sends for transcript events.
type sarvamResponse struct {
	Type string `json:"type"` // "partial_transcript" | "final_transcript"
	Data struct {
		Transcript   string  `json:"transcript"`
		Confidence   float64 `json:"confidence"`
		LanguageCode string  `json:"language_code"`
	} `json:"data"`
}

// session is a live Sarvam streaming session. It implements stt.SessionHandle.
type session struct {
	conn     *websocket.Conn
	partials chan stt.Transcript
	finals   chan stt.Transcript
	errs     chan error
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues one raw PCM frame for delivery to Sarvam.
func (s *session) SendAudio(frame []byte) error {
	select {
	case <-s.done:
		return errors.New("sarvam: session is closed")
	default:
	}
	select {
	case s.audio <- frame:
		return nil
	case <-s.done:
		return errors.New("sarvam: session is closed")
	}
}

// Partials returns the channel of interim transcripts.
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the channel of final transcripts.
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Errors returns the channel of stream failures.
func (s *session) Errors() <-chan error { return s.errs }

// Close terminates the session cleanly.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"event":"end"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop wraps PCM frames in the Sarvam JSON envelope and sends them.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case frame, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.writeFrame(ctx, frame); err != nil {
				return
			}
		case <-s.done:
			for {
				select {
				case frame, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.writeFrame(ctx, frame)
				default:
					return
				}
			}
		}
	}
}

func (s *session) writeFrame(ctx context.Context, frame []byte) error {
	var msg audioMessage
	msg.Audio.Data = base64.StdEncoding.EncodeToString(frame)
	msg.Audio.SampleRate = 16000
	msg.Audio.Encoding = "audio/wav"
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, payload)
}

// readLoop receives JSON messages from Sarvam and dispatches them to the
// partials and finals channels. A read failure on a session that was not
// closed locally is reported on the error channel.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)
	defer close(s.errs)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
			case <-ctx.Done():
			default:
				s.errs <- fmt.Errorf("sarvam: stream read: %w", err)
			}
			return
		}

		t, ok := parseResponse(msg)
		if !ok {
			continue
		}

		if t.IsFinal {
			select {
			case s.finals <- t:
			case <-s.done:
			}
		} else {
			select {
			case s.partials <- t:
			case <-s.done:
			}
		}
	}
}

// parseResponse parses a raw Sarvam WebSocket message into a Transcript.
func parseResponse(data []byte) (stt.Transcript, bool) {
	var resp sarvamResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false
	}
	switch resp.Type {
	case "partial_transcript", "final_transcript":
	default:
		return stt.Transcript{}, false
	}
	return stt.Transcript{
		Text:       resp.Data.Transcript,
		IsFinal:    resp.Type == "final_transcript",
		Confidence: resp.Data.Confidence,
		Language:   resp.Data.LanguageCode,
	}, true
}
