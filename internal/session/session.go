package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nileshdk/bolikhata/internal/engine"
	"github.com/nileshdk/bolikhata/internal/intent"
	"github.com/nileshdk/bolikhata/internal/respond"
	"github.com/nileshdk/bolikhata/pkg/provider/stt"
	"github.com/nileshdk/bolikhata/pkg/provider/tts"
)

// Transport delivers outbound messages to the client. The websocket adapter
// in the app layer implements it; tests substitute a recorder.
type Transport interface {
	Send(ctx context.Context, m Message) error
}

// Config wires one Session.
type Config struct {
	ID        string
	Transport Transport

	// STT and TTS may be nil; the session then runs text-only and ships
	// responses without audio.
	STT stt.Provider
	TTS tts.Provider

	Extractor *intent.Extractor
	Engine    *engine.Engine
	Responder *respond.Generator

	// Gate thresholds; zero values take the defaults.
	RejectThreshold  float64
	ConfirmThreshold float64
	LargeAmount      float64

	// MatchThreshold collapses near-duplicate names in the customer ring.
	MatchThreshold float64

	Language respond.Language
	Log      *slog.Logger
}

// Session is one operator conversation over a websocket. One goroutine (the
// connection reader) calls the Handle methods; the STT consumer goroutine
// feeds finals into the same pipeline through an internal lock, so commands
// execute strictly one at a time.
type Session struct {
	id        string
	transport Transport
	sttp      stt.Provider
	ttsp      tts.Provider
	extractor *intent.Extractor
	engine    *engine.Engine
	responder *respond.Generator
	mem       *Memory
	gate      *Gate
	log       *slog.Logger

	// pipeMu serializes the pipeline so commands execute in spoken order;
	// mu guards the mutable session state with short critical sections.
	pipeMu sync.Mutex
	mu     sync.Mutex
	lang   respond.Language
	handle stt.SessionHandle
	wg     sync.WaitGroup
}

// NewSession creates a Session ready to announce itself.
func NewSession(cfg Config) *Session {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	lang := cfg.Language
	if lang == "" {
		lang = respond.Hinglish
	}
	return &Session{
		id:        cfg.ID,
		transport: cfg.Transport,
		sttp:      cfg.STT,
		ttsp:      cfg.TTS,
		extractor: cfg.Extractor,
		engine:    cfg.Engine,
		responder: cfg.Responder,
		mem:       NewMemory(cfg.MatchThreshold),
		gate:      NewGate(cfg.RejectThreshold, cfg.ConfirmThreshold, cfg.LargeAmount),
		log:       log.With("session", cfg.ID),
		lang:      lang,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Announce sends the capability handshake. Called once after connect.
func (s *Session) Announce(ctx context.Context) {
	data := map[string]any{
		"sessionId": s.id,
		"language":  string(s.language()),
	}
	if s.sttp != nil {
		data["stt"] = map[string]any{"provider": s.sttp.Name(), "format": string(s.sttp.Format())}
	}
	if s.ttsp != nil {
		data["tts"] = map[string]any{"provider": s.ttsp.Name()}
	}
	s.send(ctx, New(TypeVoiceStart, data))
}

// HandleControl processes one inbound JSON frame.
func (s *Session) HandleControl(ctx context.Context, m Message) {
	switch m.Type {
	case TypeVoiceStart:
		// The client may re-negotiate capabilities mid-session.
		s.Announce(ctx)
	case TypeVoiceText, TypeTranscript, TypeVoiceFinal:
		if text := m.Text("text"); text != "" {
			s.HandleText(ctx, text)
		}
	case TypeRecordingStart:
		_ = s.StartRecording(ctx)
	case TypeVoiceStop, TypeRecordingStop:
		s.StopRecording(ctx)
	default:
		s.send(ctx, New(TypeError, map[string]any{
			"message": "unknown message type " + m.Type,
		}))
	}
}

// HandleAudio forwards one binary audio frame to the open STT stream,
// opening one lazily on the first frame.
func (s *Session) HandleAudio(ctx context.Context, frame []byte) {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	if handle == nil {
		if err := s.StartRecording(ctx); err != nil {
			return
		}
		s.mu.Lock()
		handle = s.handle
		s.mu.Unlock()
	}
	if handle == nil {
		return
	}
	if err := handle.SendAudio(frame); err != nil {
		s.log.Warn("forwarding audio failed", "error", err)
	}
}

// StartRecording opens the STT stream and starts consuming transcripts.
func (s *Session) StartRecording(ctx context.Context) error {
	if s.sttp == nil {
		s.send(ctx, New(TypeError, map[string]any{
			"message": "speech recognition is not configured",
		}))
		return nil
	}

	s.mu.Lock()
	if s.handle != nil {
		s.mu.Unlock()
		return nil
	}
	handle, err := s.sttp.StartStream(ctx, stt.StreamConfig{
		Language:   string(s.lang),
		SampleRate: 16000,
		Keywords:   s.mem.RingNames(),
	})
	if err != nil {
		s.mu.Unlock()
		s.log.Error("starting STT stream failed", "error", err)
		s.send(ctx, New(TypeError, map[string]any{
			"message": "could not start speech recognition",
		}))
		return err
	}
	s.handle = handle
	s.mu.Unlock()

	s.send(ctx, New(TypeRecordingStarted, nil))

	s.wg.Add(1)
	go s.consumeTranscripts(ctx, handle)
	return nil
}

// StopRecording closes the STT stream, if open.
func (s *Session) StopRecording(ctx context.Context) {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()
	if handle == nil {
		return
	}
	if err := handle.Close(); err != nil {
		s.log.Warn("closing STT stream failed", "error", err)
	}
	s.send(ctx, New(TypeRecordingStopped, nil))
}

// consumeTranscripts relays partials to the live caption and feeds finals
// into the pipeline until the stream closes. A provider failure is reported
// to the client and tears the stream down; the session stays connected so
// the operator can start a fresh recording.
func (s *Session) consumeTranscripts(ctx context.Context, handle stt.SessionHandle) {
	defer s.wg.Done()
	partials, finals, errs := handle.Partials(), handle.Finals(), handle.Errors()
	for partials != nil || finals != nil || errs != nil {
		select {
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			s.send(ctx, New(TypeTranscript, map[string]any{
				"text": t.Text, "isFinal": false,
			}))
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			if t.Text != "" {
				s.process(ctx, t.Text, t.Confidence)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.log.Warn("speech recognition stream failed", "error", err)
			s.send(ctx, New(TypeError, map[string]any{
				"message": "speech recognition error, please try again",
			}))
			s.StopRecording(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// HandleText runs a typed command through the pipeline as if it were a
// final transcript.
func (s *Session) HandleText(ctx context.Context, text string) {
	s.process(ctx, text, 1.0)
}

// process walks one final utterance through the pipeline. Serialized by the
// pipeline lock so the ledger sees commands in spoken order.
func (s *Session) process(ctx context.Context, text string, confidence float64) {
	s.pipeMu.Lock()
	defer s.pipeMu.Unlock()

	s.send(ctx, New(TypeTranscript, map[string]any{
		"text": text, "isFinal": true, "confidence": confidence,
	}))

	// A held command eats the next utterance: yes releases it, no drops it,
	// anything else keeps it held and asks again.
	if s.gate.Pending() {
		held, outcome := s.gate.Resolve(text)
		s.mem.AddTurn("user", text)
		switch outcome {
		case OutcomeYes:
			s.execute(ctx, held)
		case OutcomeNo:
			s.respondText(ctx, cancelledText(s.language()), true, nil, "")
		default:
			s.respondText(ctx, clarifyPrompt(s.language()), false, nil, "CONFIRMATION_PENDING")
		}
		return
	}

	s.send(ctx, New(TypeThinking, map[string]any{"transcript": text}))
	ex := s.extractor.Extract(ctx, text, s.mem.Context())
	s.mem.AddTurn("user", text)

	switch ex.Intent {
	case intent.SwitchLanguage:
		s.switchLanguage(ctx, ex)
		return
	case intent.StartRecording:
		if err := s.StartRecording(ctx); err == nil {
			s.respondText(ctx, "Recording shuru.", true, nil, "")
		}
		return
	case intent.StopRecording:
		s.StopRecording(ctx)
		s.respondText(ctx, "Recording band.", true, nil, "")
		return
	}

	s.send(ctx, New(TypeIntent, map[string]any{
		"intent":     string(ex.Intent),
		"confidence": ex.Confidence,
		"entities":   map[string]any(ex.Entities),
	}))

	decision := s.gate.Evaluate(ex, s.language())
	switch decision.Action {
	case ActionReject:
		s.respondText(ctx, decision.Prompt, false, nil, "LOW_CONFIDENCE")
	case ActionConfirm:
		s.send(ctx, New(TypeConfirmNeeded, map[string]any{
			"prompt":     decision.Prompt,
			"intent":     string(ex.Intent),
			"confidence": ex.Confidence,
		}))
		s.speak(ctx, decision.Prompt)
		s.mem.AddTurn("assistant", decision.Prompt)
	case ActionExecute:
		s.execute(ctx, ex)
	}
}

// execute runs the command and streams the spoken reply back.
func (s *Session) execute(ctx context.Context, ex intent.Extraction) {
	res := s.engine.Execute(ctx, ex, s.id, s.mem)

	text := s.responder.Generate(ctx, respond.Input{
		Intent:  string(ex.Intent),
		Success: res.Success,
		Message: res.Message,
		Code:    res.Error,
		Data:    res.Data,
	}, s.language(), s.mem.Hash(), func(chunk string) {
		s.send(ctx, New(TypeResponseChunk, map[string]any{"text": chunk}))
	})

	s.send(ctx, New(TypeResponse, map[string]any{
		"text":    text,
		"success": res.Success,
		"intent":  string(ex.Intent),
		"data":    res.Data,
		"error":   res.Error,
	}))
	s.mem.AddTurn("assistant", text)
	s.speak(ctx, text)
}

// respondText ships a server-generated sentence through the normal response
// flow without touching the engine.
func (s *Session) respondText(ctx context.Context, text string, success bool, data map[string]any, code string) {
	s.send(ctx, New(TypeResponseChunk, map[string]any{"text": text}))
	s.send(ctx, New(TypeResponse, map[string]any{
		"text":    text,
		"success": success,
		"data":    data,
		"error":   code,
	}))
	s.mem.AddTurn("assistant", text)
	s.speak(ctx, text)
}

// switchLanguage flips the reply language and acknowledges in the new one.
func (s *Session) switchLanguage(ctx context.Context, ex intent.Extraction) {
	lang := respond.NormalizeLanguage(ex.Entities.String("language"))
	s.mu.Lock()
	s.lang = lang
	s.mu.Unlock()
	s.send(ctx, New(TypeLanguageChanged, map[string]any{"language": string(lang)}))

	ack := "Theek hai, ab Hinglish mein baat karenge."
	switch lang {
	case respond.English:
		ack = "Okay, switching to English."
	case respond.Hindi:
		ack = "ठीक है, अब हिंदी में बात करेंगे।"
	}
	s.respondText(ctx, ack, true, map[string]any{"language": string(lang)}, "")
}

// speak synthesizes text and streams the audio chunks to the client. TTS
// failures are logged and swallowed; the text response already went out.
func (s *Session) speak(ctx context.Context, text string) {
	if s.ttsp == nil || text == "" {
		return
	}
	chunks, format, err := s.ttsp.SynthesizeStream(ctx, text, tts.SpeechOptions{
		Language: ttsLanguage(s.language()),
	})
	if err != nil {
		s.log.Warn("speech synthesis failed", "error", err)
		return
	}
	for chunk := range chunks {
		s.send(ctx, New(TypeTTSStream, map[string]any{
			"audio":  tts.ToBase64(chunk),
			"format": format,
		}))
	}
	s.send(ctx, New(TypeTTSStream, map[string]any{"final": true, "format": format}))
}

// Close tears the session down: the STT stream is closed, any held command
// is dropped, and the transcript consumer drains out.
func (s *Session) Close() {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()
	if handle != nil {
		_ = handle.Close()
	}
	s.gate.Drop()
	s.wg.Wait()
}

func (s *Session) language() respond.Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lang
}

func (s *Session) send(ctx context.Context, m Message) {
	if err := s.transport.Send(ctx, m); err != nil {
		s.log.Debug("send failed", "type", m.Type, "error", err)
	}
}

// ttsLanguage maps the reply register to a synthesis language tag.
func ttsLanguage(lang respond.Language) string {
	if lang == respond.English {
		return "en"
	}
	return "hi"
}

func cancelledText(lang respond.Language) string {
	switch lang {
	case respond.English:
		return "Okay, cancelled."
	case respond.Hindi:
		return "ठीक है, cancel कर दिया।"
	default:
		return "Theek hai, cancel kar diya."
	}
}
