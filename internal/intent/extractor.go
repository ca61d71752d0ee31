package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nileshdk/bolikhata/pkg/provider/llm"
)

// defaultTimeout bounds one extraction round trip. The gate treats a timed
// out extraction like any other low-confidence result.
const defaultTimeout = 8 * time.Second

// Option configures an Extractor.
type Option func(*Extractor)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) { e.timeout = d }
}

// WithLogger sets the extractor's logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Extractor) { e.log = log }
}

// Extractor extracts commands from transcripts via one chat completion call
// plus deterministic post-processing. Its worst-case return is always
// {intent: UNKNOWN, confidence: 0} — it never fails the turn.
type Extractor struct {
	provider llm.Provider
	timeout  time.Duration
	log      *slog.Logger
}

// New creates an Extractor over the given LLM provider.
func New(provider llm.Provider, opts ...Option) *Extractor {
	e := &Extractor{
		provider: provider,
		timeout:  defaultTimeout,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// unknown is the degraded-mode result.
func unknown(text string) Extraction {
	return Extraction{Normalized: text, Intent: Unknown, Entities: Entities{}, Confidence: 0}
}

// Extract turns one final transcript into a command. convoContext is the
// formatted recent-conversation snippet from session memory; it may be
// empty on the first turn.
func (e *Extractor) Extract(ctx context.Context, utterance, convoContext string) Extraction {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var user strings.Builder
	if convoContext != "" {
		user.WriteString("Conversation so far:\n")
		user.WriteString(convoContext)
		user.WriteString("\n\n")
	}
	user.WriteString("User said: ")
	user.WriteString(utterance)

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: user.String()}},
		Temperature:  0.1,
		MaxTokens:    600,
	})
	if err != nil {
		e.log.Warn("intent extraction call failed", "error", err)
		return unknown(utterance)
	}

	ex, err := parse(resp.Content)
	if err != nil {
		e.log.Warn("intent extraction returned unusable JSON",
			"error", err, "content", truncate(resp.Content, 200))
		return unknown(utterance)
	}

	postProcess(&ex, utterance)
	return ex
}

// parse pulls the first balanced JSON object out of content and decodes it.
// Models occasionally wrap the object in prose or code fences; both are
// tolerated.
func parse(content string) (Extraction, error) {
	obj, ok := balancedObject(content)
	if !ok {
		return Extraction{}, fmt.Errorf("no JSON object in %d bytes of output", len(content))
	}

	var raw struct {
		Normalized string         `json:"normalized"`
		Intent     string         `json:"intent"`
		Entities   map[string]any `json:"entities"`
		Confidence float64        `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return Extraction{}, fmt.Errorf("decode extraction: %w", err)
	}

	ex := Extraction{
		Normalized: raw.Normalized,
		Intent:     Normalize(raw.Intent),
		Entities:   Entities(raw.Entities),
		Confidence: raw.Confidence,
	}
	if ex.Entities == nil {
		ex.Entities = Entities{}
	}
	if ex.Confidence < 0 {
		ex.Confidence = 0
	}
	if ex.Confidence > 1 {
		ex.Confidence = 1
	}
	return ex, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// systemPrompt fixes the extraction contract. The vocabulary and the JSON
// shape are non-negotiable; everything fuzzy is cleaned up afterwards in
// postProcess.
var systemPrompt = buildSystemPrompt()

func buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(`You extract structured commands from a small shop owner's spoken requests.
The shopkeeper speaks Hindi, English, or a mix (Hinglish). Respond with ONE JSON object only, no other text:

{"normalized": "<cleaned transcript>", "intent": "<INTENT>", "entities": {...}, "confidence": <0.0-1.0>}

Valid intents:
`)
	for _, in := range All() {
		b.WriteString("  ")
		b.WriteString(string(in))
		b.WriteString("\n")
	}
	b.WriteString(`
Entity fields by intent:
- CREATE_INVOICE: customer, items (array of {product, quantity, unit}), autoSend (bool), gst (bool)
- RECORD_PAYMENT: customer, amount, paymentMode (cash/upi/card/other)
- ADD_CREDIT: customer, amount, description
- CHECK_BALANCE / GET_CUSTOMER_INFO / DELETE_CUSTOMER_DATA: customer (DELETE may carry otp)
- CHECK_STOCK: product
- CREATE_CUSTOMER / UPDATE_CUSTOMER: customer, phone, email, landmark, area, city, openingBalance
- UPDATE_CUSTOMER_PHONE: customer, phone
- CREATE_REMINDER / MODIFY_REMINDER: customer, amount, time (the spoken phrase, verbatim), message
- CANCEL_INVOICE: customer, cancelAll (bool)
- SEND_INVOICE: customer, channel (email/whatsapp), email
- PROVIDE_EMAIL: email
- SWITCH_LANGUAGE: language (BCP-47 like "hi", "en", "ta")

Rules:
- "likh do", "note karo", "udhaar de do" with only an amount mean ADD_CREDIT, never CREATE_INVOICE.
- A list of products with quantities means CREATE_INVOICE.
- Keep the "time" entity verbatim as spoken ("kal 7 baje"); do not convert it.
- confidence reflects how sure you are of BOTH the intent and its entities.
- If the request matches nothing, use intent UNKNOWN with confidence 0.`)
	return b.String()
}
