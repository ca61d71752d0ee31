// Package respond turns execution results into speakable text. Results with
// a ready template speak instantly; everything else streams through the LLM
// with a brevity contract, degrading to a safe acknowledgement when the
// model is slow or down.
package respond

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nileshdk/bolikhata/internal/cache"
	"github.com/nileshdk/bolikhata/pkg/provider/llm"
)

// Language selects the reply register. The operator can switch mid-session.
type Language string

const (
	Hindi    Language = "hi"
	English  Language = "en"
	Hinglish Language = "hinglish"
)

// NormalizeLanguage maps spoken language names onto a Language, defaulting
// to Hinglish.
func NormalizeLanguage(raw string) Language {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "hi", "hindi":
		return Hindi
	case "en", "english", "angrezi":
		return English
	default:
		return Hinglish
	}
}

// fallback is spoken when generation fails entirely. Never cached.
const fallback = "Theek hai."

// defaultTimeout bounds one generation; a reply slower than this is worse
// than the fallback.
const defaultTimeout = 6 * time.Second

// Input is the execution outcome to verbalize. Kept as plain fields so the
// generator does not depend on the engine's types.
type Input struct {
	Intent  string
	Success bool
	Message string
	Code    string
	Data    map[string]any
}

// Option configures a Generator.
type Option func(*Generator)

// WithTimeout overrides the per-response generation deadline.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Generator) { g.log = log }
}

// Generator produces spoken responses. cache may be nil.
type Generator struct {
	provider llm.Provider
	cache    *cache.ResponseCache
	log      *slog.Logger
	timeout  time.Duration
}

// New creates a Generator. provider may be nil, in which case only the fast
// path and the fallback are available.
func New(provider llm.Provider, c *cache.ResponseCache, opts ...Option) *Generator {
	g := &Generator{
		provider: provider,
		cache:    c,
		log:      slog.Default(),
		timeout:  defaultTimeout,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate produces the spoken reply for one result. onChunk receives text
// fragments as they become available (a single fragment on the fast path);
// the full reply is returned. convoHash identifies the recent conversation
// for conversation-scoped caching. Generate never fails: the worst case is
// the fallback acknowledgement.
func (g *Generator) Generate(ctx context.Context, in Input, lang Language, convoHash string, onChunk func(string)) string {
	if onChunk == nil {
		onChunk = func(string) {}
	}

	// Fast path: the engine's own Hinglish message is already speakable.
	if lang == Hinglish && g.speakDirectly(in) {
		onChunk(in.Message)
		return in.Message
	}

	key, cacheable := "", false
	if g.cache != nil {
		if k, ok := g.cache.Key(in.Intent, in.Success, in.Data, string(lang), convoHash); ok {
			key, cacheable = k, true
			if cached, hit := g.cache.Get(ctx, key); hit {
				onChunk(cached)
				return cached
			}
		}
	}

	text := g.stream(ctx, in, lang, onChunk)
	if text == "" {
		g.log.Warn("response generation degraded to fallback", "intent", in.Intent)
		text = g.degraded(in)
		onChunk(text)
		return text
	}

	if cacheable {
		g.cache.Put(ctx, in.Intent, key, text)
	}
	return text
}

// speakDirectly reports whether the engine message can be spoken verbatim.
// Messages exist for every result, so this is the common case in Hinglish.
func (g *Generator) speakDirectly(in Input) bool {
	return strings.TrimSpace(in.Message) != ""
}

// stream runs the LLM slow path, forwarding chunks as they arrive. Returns
// "" on any failure.
func (g *Generator) stream(ctx context.Context, in Input, lang Language, onChunk func(string)) string {
	if g.provider == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ch, err := g.provider.StreamCompletion(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt(lang),
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: userPrompt(in)},
		},
		Temperature: 0.4,
		MaxTokens:   150,
	})
	if err != nil {
		g.log.Warn("response stream failed to start", "intent", in.Intent, "error", err)
		return ""
	}

	var b strings.Builder
	for chunk := range ch {
		if chunk.FinishReason == "error" {
			g.log.Warn("response stream errored", "intent", in.Intent, "error", chunk.Text)
			return ""
		}
		if chunk.Text != "" {
			b.WriteString(chunk.Text)
			onChunk(chunk.Text)
		}
	}
	if ctx.Err() != nil && b.Len() == 0 {
		return ""
	}
	return strings.TrimSpace(b.String())
}

// degraded picks the best non-LLM reply: the engine message if present,
// else the bare acknowledgement.
func (g *Generator) degraded(in Input) string {
	if strings.TrimSpace(in.Message) != "" {
		return in.Message
	}
	return fallback
}

// systemPrompt is the brevity contract for the slow path.
func systemPrompt(lang Language) string {
	var register string
	switch lang {
	case Hindi:
		register = "Reply in Hindi written in Devanagari."
	case English:
		register = "Reply in simple English."
	default:
		register = "Reply in Hinglish: Hindi sentence structure with Roman script, English business words are fine."
	}
	return "You voice a shopkeeper's assistant. Speak the result below to the shopkeeper. " +
		register + " " +
		"One or two short sentences, speakable aloud. Amounts are rupees. " +
		"Never invent numbers or names that are not in the result. No emoji, no lists."
}

// userPrompt renders the result for the model.
func userPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\nSuccess: %t\n", in.Intent, in.Success)
	if in.Code != "" {
		fmt.Fprintf(&b, "Code: %s\n", in.Code)
	}
	if in.Message != "" {
		fmt.Fprintf(&b, "Summary: %s\n", in.Message)
	}
	for k, v := range in.Data {
		fmt.Fprintf(&b, "%s: %v\n", k, v)
	}
	return b.String()
}
