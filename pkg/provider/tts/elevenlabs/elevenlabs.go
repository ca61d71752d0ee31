// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs HTTP API. It implements the tts.Provider interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nileshdk/bolikhata/pkg/provider/tts"
)

const (
	synthesizeEndpointFmt = "https://api.elevenlabs.io/v1/text-to-speech/%s"
	streamEndpointFmt     = "https://api.elevenlabs.io/v1/text-to-speech/%s/stream"
	defaultModel          = "eleven_flash_v2_5"
	defaultVoiceID        = "21m00Tcm4TlvDq8ikWAM"

	// streamChunkSize is the read granularity for the streaming endpoint.
	streamChunkSize = 4096
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
// Flash models trade some quality for the low latency the voice loop needs.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithDefaultVoice sets the voice used when SpeechOptions.Voice is empty.
func WithDefaultVoice(voiceID string) Option {
	return func(p *Provider) {
		p.defaultVoice = voiceID
	}
}

// WithHTTPClient overrides the HTTP client (for timeouts and tests).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by the ElevenLabs API.
type Provider struct {
	apiKey       string
	model        string
	defaultVoice string
	httpClient   *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		defaultVoice: defaultVoiceID,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "elevenlabs" }

// synthesizeRequest is the JSON payload for both endpoints.
type synthesizeRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize implements tts.Provider. The response body is MP3.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.SpeechOptions) (*tts.Result, error) {
	resp, err := p.post(ctx, synthesizeEndpointFmt, text, opts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	return &tts.Result{Audio: audio, Format: "mp3"}, nil
}

// SynthesizeStream implements tts.Provider using the chunked stream endpoint.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, opts tts.SpeechOptions) (<-chan []byte, string, error) {
	resp, err := p.post(ctx, streamEndpointFmt, text, opts)
	if err != nil {
		return nil, "", err
	}

	ch := make(chan []byte, 32)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		for {
			buf := make([]byte, streamChunkSize)
			n, err := resp.Body.Read(buf)
			if n > 0 {
				select {
				case ch <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return ch, "mp3", nil
}

// post issues a synthesis request against the endpoint format and checks the
// HTTP status. The caller owns the response body on success.
func (p *Provider) post(ctx context.Context, endpointFmt, text string, opts tts.SpeechOptions) (*http.Response, error) {
	if text == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}
	voice := opts.Voice
	if voice == "" {
		voice = p.defaultVoice
	}

	payload, err := json.Marshal(synthesizeRequest{
		Text:    text,
		ModelID: p.model,
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf(endpointFmt, voice), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("elevenlabs: status %d: %s", resp.StatusCode, body)
	}
	return resp, nil
}
