// Package sarvam provides a Sarvam AI-backed TTS provider. It implements the
// tts.Provider interface using the bulbul voice models, which cover the
// Indian languages the shop assistant replies in.
package sarvam

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nileshdk/bolikhata/pkg/provider/tts"
)

const (
	synthesizeEndpoint = "https://api.sarvam.ai/text-to-speech"
	defaultModel       = "bulbul:v2"
	defaultSpeaker     = "anushka"
)

// Option is a functional option for configuring the Sarvam Provider.
type Option func(*Provider)

// WithModel sets the Sarvam TTS model (e.g., "bulbul:v2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithSpeaker sets the default speaker voice.
func WithSpeaker(speaker string) Option {
	return func(p *Provider) {
		p.speaker = speaker
	}
}

// WithHTTPClient overrides the HTTP client (for timeouts and tests).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by the Sarvam API.
type Provider struct {
	apiKey     string
	model      string
	speaker    string
	httpClient *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new Sarvam Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("sarvam: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		speaker:    defaultSpeaker,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "sarvam" }

// synthesizeRequest is the Sarvam TTS request payload.
type synthesizeRequest struct {
	Text               string `json:"text"`
	TargetLanguageCode string `json:"target_language_code"`
	Speaker            string `json:"speaker"`
	Model              string `json:"model"`
	SampleRate         int    `json:"speech_sample_rate"`
}

// synthesizeResponse carries base64-encoded audio segments.
type synthesizeResponse struct {
	Audios []string `json:"audios"`
}

// Synthesize implements tts.Provider. Sarvam returns 16 kHz PCM (WAV body);
// the result format is "pcm" for the duplex protocol.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.SpeechOptions) (*tts.Result, error) {
	if text == "" {
		return nil, errors.New("sarvam: text must not be empty")
	}

	payload, err := json.Marshal(synthesizeRequest{
		Text:               text,
		TargetLanguageCode: languageCode(opts.Language),
		Speaker:            p.voice(opts),
		Model:              p.model,
		SampleRate:         16000,
	})
	if err != nil {
		return nil, fmt.Errorf("sarvam: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, synthesizeEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("sarvam: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-subscription-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sarvam: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sarvam: status %d: %s", resp.StatusCode, body)
	}

	var sr synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("sarvam: decode response: %w", err)
	}
	if len(sr.Audios) == 0 {
		return nil, errors.New("sarvam: empty audio in response")
	}

	var audio []byte
	for _, seg := range sr.Audios {
		b, err := base64.StdEncoding.DecodeString(seg)
		if err != nil {
			return nil, fmt.Errorf("sarvam: decode audio segment: %w", err)
		}
		audio = append(audio, b...)
	}

	return &tts.Result{Audio: audio, Format: "pcm"}, nil
}

// SynthesizeStream implements tts.Provider. Sarvam's REST API is batch-only,
// so the stream contains a single chunk; the channel shape keeps the caller
// uniform across providers.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, opts tts.SpeechOptions) (<-chan []byte, string, error) {
	res, err := p.Synthesize(ctx, text, opts)
	if err != nil {
		return nil, "", err
	}
	ch := make(chan []byte, 1)
	ch <- res.Audio
	close(ch)
	return ch, res.Format, nil
}

func (p *Provider) voice(opts tts.SpeechOptions) string {
	if opts.Voice != "" {
		return opts.Voice
	}
	return p.speaker
}

// languageCode maps session language tags onto Sarvam's expected form
// ("hi" → "hi-IN").
func languageCode(lang string) string {
	if lang == "" {
		return "hi-IN"
	}
	if strings.Contains(lang, "-") {
		return lang
	}
	return lang + "-IN"
}
