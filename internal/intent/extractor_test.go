package intent_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nileshdk/bolikhata/internal/intent"
	llmmock "github.com/nileshdk/bolikhata/pkg/provider/llm/mock"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw  string
		want intent.Intent
	}{
		{"CREATE_INVOICE", intent.CreateInvoice},
		{"create_invoice", intent.CreateInvoice},
		{"Create Invoice", intent.CreateInvoice},
		{"record-payment", intent.RecordPayment},
		{" CHECK_BALANCE ", intent.CheckBalance},
		{"MAKE_COFFEE", intent.Unknown},
		{"", intent.Unknown},
	}
	for _, c := range cases {
		if got := intent.Normalize(c.raw); got != c.want {
			t.Errorf("Normalize(%q) = %s, want %s", c.raw, got, c.want)
		}
	}
}

func TestExtract_HappyPath(t *testing.T) {
	provider := &llmmock.Provider{
		Response: `{"normalized": "Ramesh ko 500 ka payment", "intent": "RECORD_PAYMENT",
			"entities": {"customer": "Ramesh", "amount": "500", "paymentMode": "upi"}, "confidence": 0.92}`,
	}
	ex := intent.New(provider).Extract(context.Background(), "ramesh ko paanch sau ka payment upi se", "")

	if ex.Intent != intent.RecordPayment {
		t.Errorf("intent = %s, want RECORD_PAYMENT", ex.Intent)
	}
	if ex.Confidence != 0.92 {
		t.Errorf("confidence = %v, want 0.92", ex.Confidence)
	}
	if got := ex.Entities.Float("amount"); got != 500 {
		t.Errorf("amount coerced = %v, want 500", got)
	}
	if got := ex.Entities.String("customer"); got != "Ramesh" {
		t.Errorf("customer = %q, want Ramesh", got)
	}
}

func TestExtract_JSONEmbeddedInProse(t *testing.T) {
	provider := &llmmock.Provider{
		Response: "Sure! Here is the extraction:\n```json\n" +
			`{"normalized": "balance check", "intent": "check_balance", "entities": {"customer": "Suresh"}, "confidence": 0.8}` +
			"\n```\nLet me know if you need anything else.",
	}
	ex := intent.New(provider).Extract(context.Background(), "suresh ka balance", "")

	if ex.Intent != intent.CheckBalance {
		t.Errorf("intent = %s, want CHECK_BALANCE", ex.Intent)
	}
}

func TestExtract_ProviderErrorDegradesToUnknown(t *testing.T) {
	provider := &llmmock.Provider{Err: errors.New("rate limited")}
	ex := intent.New(provider).Extract(context.Background(), "kuch bhi", "")

	if ex.Intent != intent.Unknown || ex.Confidence != 0 {
		t.Errorf("degraded = %s/%v, want UNKNOWN/0", ex.Intent, ex.Confidence)
	}
}

func TestExtract_TimeoutDegradesToUnknown(t *testing.T) {
	provider := &llmmock.Provider{Hang: true}
	e := intent.New(provider, intent.WithTimeout(10*time.Millisecond))

	ex := e.Extract(context.Background(), "slow request", "")
	if ex.Intent != intent.Unknown || ex.Confidence != 0 {
		t.Errorf("degraded = %s/%v, want UNKNOWN/0", ex.Intent, ex.Confidence)
	}
}

func TestExtract_GarbageJSONDegradesToUnknown(t *testing.T) {
	provider := &llmmock.Provider{Response: "I could not understand the request."}
	ex := intent.New(provider).Extract(context.Background(), "asdf", "")

	if ex.Intent != intent.Unknown {
		t.Errorf("intent = %s, want UNKNOWN", ex.Intent)
	}
}

func TestExtract_TransliteratesDevanagariNames(t *testing.T) {
	provider := &llmmock.Provider{
		Response: `{"normalized": "", "intent": "CHECK_BALANCE", "entities": {"customer": "राहुल"}, "confidence": 0.9}`,
	}
	ex := intent.New(provider).Extract(context.Background(), "rahul ka balance", "")

	if got := ex.Entities.String("customer"); got != "rahul" {
		t.Errorf("customer = %q, want rahul (transliterated)", got)
	}
}

func TestExtract_SpokenDigitPhone(t *testing.T) {
	provider := &llmmock.Provider{
		Response: `{"normalized": "", "intent": "UPDATE_CUSTOMER_PHONE",
			"entities": {"customer": "Mohan", "phone": "nau eight saat six five four teen do ek zero"}, "confidence": 0.9}`,
	}
	ex := intent.New(provider).Extract(context.Background(), "mohan ka number nau eight saat...", "")

	if got := ex.Entities.String("phone"); got != "9876543210" {
		t.Errorf("phone = %q, want 9876543210", got)
	}
}

func TestExtract_ActiveCustomerBackReference(t *testing.T) {
	provider := &llmmock.Provider{
		Response: `{"normalized": "", "intent": "CHECK_BALANCE", "entities": {}, "confidence": 0.88}`,
	}
	ex := intent.New(provider).Extract(context.Background(), "uska balance kitna hai", "")

	if got := ex.Entities.String("customerRef"); got != "active" {
		t.Errorf("customerRef = %q, want active", got)
	}
}

func TestExtract_CustomerFilledFromName(t *testing.T) {
	provider := &llmmock.Provider{
		Response: `{"normalized": "", "intent": "CREATE_CUSTOMER", "entities": {"name": "Kavita"}, "confidence": 0.9}`,
	}
	ex := intent.New(provider).Extract(context.Background(), "kavita naam ka customer banao", "")

	if got := ex.Entities.String("customer"); got != "Kavita" {
		t.Errorf("customer = %q, want Kavita (filled from name)", got)
	}
}

func TestEntities_Items(t *testing.T) {
	provider := &llmmock.Provider{
		Response: `{"normalized": "", "intent": "CREATE_INVOICE",
			"entities": {"customer": "Anita", "items": [
				{"product": "chawal", "quantity": "5", "unit": "kg"},
				{"product": "cheeni"},
				{"quantity": 2}
			]}, "confidence": 0.9}`,
	}
	ex := intent.New(provider).Extract(context.Background(), "anita ko 5 kilo chawal aur cheeni", "")

	items := ex.Entities.Items()
	if len(items) != 2 {
		t.Fatalf("items = %+v, want 2 (entry without product dropped)", items)
	}
	if items[0].Product != "chawal" || items[0].Quantity != 5 || items[0].Unit != "kg" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Product != "cheeni" || items[1].Quantity != 1 {
		t.Errorf("items[1] = %+v, want default quantity 1", items[1])
	}
}

func TestExtract_ConfidenceClamped(t *testing.T) {
	provider := &llmmock.Provider{
		Response: `{"normalized": "", "intent": "CHECK_BALANCE", "entities": {}, "confidence": 1.7}`,
	}
	ex := intent.New(provider).Extract(context.Background(), "balance", "")
	if ex.Confidence != 1 {
		t.Errorf("confidence = %v, want clamped to 1", ex.Confidence)
	}
}

func TestParseSpokenDigits(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"nau eight saat six five four teen do ek zero", "9876543210"},
		{"98765 43210", "9876543210"},
		{"nau-eight-7", "987"},
		{"koi number nahi", ""},
	}
	for _, c := range cases {
		if got := intent.ParseSpokenDigits(c.in); got != c.want {
			t.Errorf("ParseSpokenDigits(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIsRisky(t *testing.T) {
	for _, in := range []intent.Intent{intent.DeleteCustomerData, intent.CancelInvoice, intent.CancelReminder} {
		if !intent.IsRisky(in) {
			t.Errorf("%s should be risky", in)
		}
	}
	if intent.IsRisky(intent.CheckBalance) {
		t.Error("CHECK_BALANCE should not be risky")
	}
}
