package session

import (
	"strings"
	"testing"

	"github.com/nileshdk/bolikhata/internal/intent"
	"github.com/nileshdk/bolikhata/internal/respond"
)

func ex(in intent.Intent, confidence float64, ents map[string]any) intent.Extraction {
	if ents == nil {
		ents = map[string]any{}
	}
	return intent.Extraction{Intent: in, Entities: ents, Confidence: confidence}
}

func TestGate_HighConfidencePassesThrough(t *testing.T) {
	g := NewGate(0.65, 0.85, 5000)
	d := g.Evaluate(ex(intent.CheckBalance, 0.92, nil), respond.Hinglish)
	if d.Action != ActionExecute {
		t.Errorf("action = %v, want execute", d.Action)
	}
	if g.Pending() {
		t.Error("nothing should be held after a pass-through")
	}
}

func TestGate_LowConfidenceRejected(t *testing.T) {
	g := NewGate(0.65, 0.85, 5000)
	d := g.Evaluate(ex(intent.RecordPayment, 0.4, nil), respond.Hinglish)
	if d.Action != ActionReject {
		t.Errorf("action = %v, want reject", d.Action)
	}
	if d.Prompt == "" {
		t.Error("reject needs a spoken prompt")
	}
	if g.Pending() {
		t.Error("rejected commands must not be held")
	}
}

func TestGate_MidConfidenceHeld(t *testing.T) {
	g := NewGate(0.65, 0.85, 5000)
	d := g.Evaluate(ex(intent.RecordPayment, 0.75, map[string]any{
		"customer": "Ramesh", "amount": 500.0,
	}), respond.Hinglish)
	if d.Action != ActionConfirm {
		t.Errorf("action = %v, want confirm", d.Action)
	}
	if !g.Pending() {
		t.Error("command should be held")
	}
}

func TestGate_RiskyAlwaysHeld(t *testing.T) {
	g := NewGate(0.65, 0.85, 5000)
	d := g.Evaluate(ex(intent.DeleteCustomerData, 0.99, map[string]any{
		"customer": "Ramesh",
	}), respond.Hinglish)
	if d.Action != ActionConfirm {
		t.Errorf("risky intent at 0.99 = %v, want confirm", d.Action)
	}
}

func TestGate_LargeAmountAlwaysHeld(t *testing.T) {
	g := NewGate(0.65, 0.85, 5000)
	d := g.Evaluate(ex(intent.RecordPayment, 0.99, map[string]any{
		"amount": 12000.0,
	}), respond.Hinglish)
	if d.Action != ActionConfirm {
		t.Errorf("₹12000 at 0.99 = %v, want confirm", d.Action)
	}
}

func TestGate_SwitchLanguageNeverHeld(t *testing.T) {
	g := NewGate(0.65, 0.85, 5000)
	d := g.Evaluate(ex(intent.SwitchLanguage, 0.7, nil), respond.Hinglish)
	if d.Action != ActionExecute {
		t.Errorf("language switch = %v, want execute", d.Action)
	}
}

func TestGate_ResolveYes(t *testing.T) {
	g := NewGate(0.65, 0.85, 5000)
	held := ex(intent.CancelInvoice, 0.95, map[string]any{"customer": "Ramesh"})
	g.Evaluate(held, respond.Hinglish)

	got, outcome := g.Resolve("haan bilkul")
	if outcome != OutcomeYes {
		t.Fatalf("outcome = %v, want yes", outcome)
	}
	if got.Intent != intent.CancelInvoice {
		t.Errorf("released intent = %s, want CANCEL_INVOICE", got.Intent)
	}
	if g.Pending() {
		t.Error("resolving must clear the hold")
	}
}

func TestGate_ResolveNo(t *testing.T) {
	g := NewGate(0.65, 0.85, 5000)
	g.Evaluate(ex(intent.CancelInvoice, 0.95, nil), respond.Hinglish)

	if _, outcome := g.Resolve("nahi rehne do"); outcome != OutcomeNo {
		t.Errorf("outcome = %v, want no", outcome)
	}
	if g.Pending() {
		t.Error("a declined command must be cleared")
	}
}

func TestGate_ResolveUnclearKeepsHold(t *testing.T) {
	g := NewGate(0.65, 0.85, 5000)
	g.Evaluate(ex(intent.CancelInvoice, 0.95, map[string]any{"customer": "Ramesh"}), respond.Hinglish)

	if _, outcome := g.Resolve("suresh ka balance batao"); outcome != OutcomeUnclear {
		t.Errorf("outcome = %v, want unclear", outcome)
	}
	if !g.Pending() {
		t.Fatal("an unclear reply must keep the command held")
	}

	// A clear yes afterwards still releases the original command.
	got, outcome := g.Resolve("haan")
	if outcome != OutcomeYes {
		t.Fatalf("outcome after re-prompt = %v, want yes", outcome)
	}
	if got.Intent != intent.CancelInvoice {
		t.Errorf("released intent = %s, want CANCEL_INVOICE", got.Intent)
	}
}

func TestGate_ExactLargeAmountNotHeld(t *testing.T) {
	g := NewGate(0.65, 0.85, 5000)
	d := g.Evaluate(ex(intent.RecordPayment, 0.99, map[string]any{
		"amount": 5000.0,
	}), respond.Hinglish)
	if d.Action != ActionExecute {
		t.Errorf("₹5000 exactly at 0.99 = %v, want execute", d.Action)
	}
	if g.Pending() {
		t.Error("the boundary amount must not be held")
	}
}

func TestGate_ClarifyPromptPerLanguage(t *testing.T) {
	if p := clarifyPrompt(respond.English); !strings.Contains(p, "yes or no") {
		t.Errorf("english clarify prompt = %q", p)
	}
	if p := clarifyPrompt(respond.Hinglish); !strings.Contains(p, "Haan ya nahi") {
		t.Errorf("hinglish clarify prompt = %q", p)
	}
}

func TestGate_ConfirmPromptPerLanguage(t *testing.T) {
	g := NewGate(0.65, 0.85, 5000)
	d := g.Evaluate(ex(intent.DeleteCustomerData, 0.95, map[string]any{
		"customer": "Ramesh",
	}), respond.English)
	if !strings.Contains(d.Prompt, "Yes or no") {
		t.Errorf("english prompt = %q", d.Prompt)
	}
	if strings.Contains(d.Prompt, "—") {
		t.Errorf("prompt %q contains an em-dash; spoken text uses plain punctuation", d.Prompt)
	}
}
