package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/nileshdk/bolikhata/internal/intent"
	"github.com/nileshdk/bolikhata/internal/respond"
)

// Action is the gate's verdict on an extracted command.
type Action int

const (
	// ActionExecute runs the command immediately.
	ActionExecute Action = iota

	// ActionConfirm holds the command until the operator says yes or no.
	ActionConfirm

	// ActionReject drops the command and asks the operator to repeat.
	ActionReject
)

// Decision is the gate's output for one extraction.
type Decision struct {
	Action     Action
	Extraction intent.Extraction

	// Prompt is the spoken question for ActionConfirm and ActionReject.
	Prompt string
}

// Outcome classifies the operator's reply while a command is held.
type Outcome int

const (
	// OutcomeYes releases the held command for execution.
	OutcomeYes Outcome = iota

	// OutcomeNo drops the held command.
	OutcomeNo

	// OutcomeUnclear means the reply was neither yes nor no. The command
	// stays held and the operator is asked again.
	OutcomeUnclear
)

// Gate is the confirmation state machine between extraction and execution.
// Low-confidence commands are rejected, uncertain or dangerous ones are held
// for a spoken yes/no, everything else passes straight through.
type Gate struct {
	mu      sync.Mutex
	reject  float64
	confirm float64
	large   float64
	pending *intent.Extraction
}

// NewGate creates a Gate. reject and confirm are extraction-confidence
// thresholds; large is the rupee amount at which money-moving commands
// always require confirmation.
func NewGate(reject, confirm, large float64) *Gate {
	if reject <= 0 {
		reject = 0.65
	}
	if confirm <= 0 {
		confirm = 0.85
	}
	if large <= 0 {
		large = 5000
	}
	return &Gate{reject: reject, confirm: confirm, large: large}
}

// Evaluate decides what to do with a fresh extraction.
func (g *Gate) Evaluate(ex intent.Extraction, lang respond.Language) Decision {
	if ex.Intent == intent.Unknown || ex.Confidence < g.reject {
		return Decision{Action: ActionReject, Extraction: ex, Prompt: rejectPrompt(lang)}
	}
	if g.needsConfirmation(ex) {
		g.mu.Lock()
		g.pending = &ex
		g.mu.Unlock()
		return Decision{Action: ActionConfirm, Extraction: ex, Prompt: confirmPrompt(ex, lang)}
	}
	return Decision{Action: ActionExecute, Extraction: ex}
}

// needsConfirmation applies the three hold rules: dangerous intent,
// uncertain extraction, or an amount strictly above the large-amount line.
func (g *Gate) needsConfirmation(ex intent.Extraction) bool {
	if ex.Intent == intent.SwitchLanguage {
		return false
	}
	if intent.IsRisky(ex.Intent) {
		return true
	}
	if ex.Confidence < g.confirm {
		return true
	}
	return ex.Entities.Float("amount") > g.large
}

// Pending reports whether a command is being held.
func (g *Gate) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending != nil
}

// Resolve consumes the operator's reply to a held command. Yes releases the
// extraction for execution, no drops it; anything else keeps the command
// held so the operator can be asked again.
func (g *Gate) Resolve(text string) (intent.Extraction, Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil {
		return intent.Extraction{}, OutcomeUnclear
	}
	switch {
	case matchesAny(text, yesTokens):
		held := *g.pending
		g.pending = nil
		return held, OutcomeYes
	case matchesAny(text, noTokens):
		g.pending = nil
		return intent.Extraction{}, OutcomeNo
	default:
		return intent.Extraction{}, OutcomeUnclear
	}
}

// Drop clears any held command without executing it. Used on disconnect.
func (g *Gate) Drop() {
	g.mu.Lock()
	g.pending = nil
	g.mu.Unlock()
}

var yesTokens = []string{
	"haan", "haanji", "han", "ha", "yes", "yeah", "bilkul", "ok", "okay",
	"theek hai", "thik hai", "kar do", "confirm", "pakka", "sahi hai",
}

var noTokens = []string{
	"nahi", "nahin", "no", "nope", "cancel", "mat karo", "band karo",
	"ruk jao", "rehne do", "galat",
}

// matchesAny reports whether text contains any token as a whole phrase.
func matchesAny(text string, tokens []string) bool {
	padded := " " + strings.ToLower(strings.TrimSpace(text)) + " "
	padded = strings.NewReplacer(",", " ", ".", " ", "!", " ", "?", " ").Replace(padded)
	for _, tok := range tokens {
		if strings.Contains(padded, " "+tok+" ") {
			return true
		}
	}
	return false
}

// rejectPrompt asks the operator to repeat.
func rejectPrompt(lang respond.Language) string {
	switch lang {
	case respond.English:
		return "I did not catch that, please say it again."
	case respond.Hindi:
		return "समझ नहीं आया, दोबारा बोलिए।"
	default:
		return "Samajh nahi aaya, dobara boliye."
	}
}

// clarifyPrompt asks for a plain yes or no when the reply to a held command
// was neither.
func clarifyPrompt(lang respond.Language) string {
	switch lang {
	case respond.English:
		return "Please say yes or no."
	case respond.Hindi:
		return "हाँ या नहीं बोलिए।"
	default:
		return "Haan ya nahi boliye."
	}
}

// confirmPrompt builds the spoken confirmation question.
func confirmPrompt(ex intent.Extraction, lang respond.Language) string {
	desc := describe(ex)
	switch lang {
	case respond.English:
		return fmt.Sprintf("Please confirm: %s. Yes or no?", desc)
	case respond.Hindi:
		return fmt.Sprintf("पक्का %s? हाँ या नहीं बोलिए।", desc)
	default:
		return fmt.Sprintf("Pakka %s? Haan ya nahi boliye.", desc)
	}
}

// describe renders the held command in plain words for the confirmation
// question.
func describe(ex intent.Extraction) string {
	subject := ex.Entities.String("customer")
	amount := ex.Entities.Float("amount")

	var action string
	switch ex.Intent {
	case intent.DeleteCustomerData:
		action = "customer ka saara data delete"
	case intent.CancelInvoice:
		action = "invoice cancel"
	case intent.CancelReminder:
		action = "reminder cancel"
	case intent.RecordPayment:
		action = "payment record"
	case intent.AddCredit:
		action = "udhaar"
	case intent.CreateInvoice:
		action = "invoice"
	default:
		action = strings.ToLower(strings.ReplaceAll(string(ex.Intent), "_", " "))
	}

	parts := []string{action}
	if subject != "" {
		parts = append(parts, "- "+subject)
	}
	if amount > 0 {
		parts = append(parts, fmt.Sprintf("₹%g", amount))
	}
	return strings.Join(parts, " ")
}
