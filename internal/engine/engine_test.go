package engine_test

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nileshdk/bolikhata/internal/cache"
	"github.com/nileshdk/bolikhata/internal/engine"
	"github.com/nileshdk/bolikhata/internal/engineerr"
	"github.com/nileshdk/bolikhata/internal/intent"
	"github.com/nileshdk/bolikhata/internal/mailer"
	"github.com/nileshdk/bolikhata/internal/queue"
	"github.com/nileshdk/bolikhata/internal/reminder"
	"github.com/nileshdk/bolikhata/internal/store"
	"github.com/nileshdk/bolikhata/pkg/money"
)

// fakeMemory is a hand-rolled CustomerMemory for tests.
type fakeMemory struct {
	activeID   string
	activeName string
	ring       []string
	promoted   []string
}

func (m *fakeMemory) ActiveCustomer() (string, string, bool) {
	return m.activeID, m.activeName, m.activeID != ""
}
func (m *fakeMemory) RingNames() []string { return m.ring }
func (m *fakeMemory) Promote(id, name string) {
	m.activeID, m.activeName = id, name
	m.promoted = append(m.promoted, name)
}

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("BOLIKHATA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BOLIKHATA_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

type testRig struct {
	engine *engine.Engine
	store  *store.Store
	mail   *mailer.Recorder
}

// newTestRig wires an engine against a clean database, a miniredis-backed
// queue, and a recording mail sender.
func newTestRig(t *testing.T, opts ...engine.Option) *testRig {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(cleanPool.Close)
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS deletion_otps CASCADE",
		"DROP TABLE IF EXISTS reminders CASCADE",
		"DROP TABLE IF EXISTS ledger_entries CASCADE",
		"DROP TABLE IF EXISTS line_items CASCADE",
		"DROP TABLE IF EXISTS invoices CASCADE",
		"DROP TABLE IF EXISTS products CASCADE",
		"DROP TABLE IF EXISTS customers CASCADE",
	} {
		if _, err := cleanPool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema %q: %v", stmt, err)
		}
	}

	st, err := store.New(ctx, dsn, 0)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(st.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	mail := &mailer.Recorder{}
	loc, _ := time.LoadLocation("Asia/Kolkata")
	sched := reminder.NewScheduler(st, queue.New(client), mail, loc, log)

	return &testRig{
		engine: engine.New(st, cache.NewTiered(client, log), sched, mail, loc, log, opts...),
		store:  st,
		mail:   mail,
	}
}

func extraction(in intent.Intent, ents map[string]any) intent.Extraction {
	if ents == nil {
		ents = map[string]any{}
	}
	return intent.Extraction{Intent: in, Entities: ents, Confidence: 0.95}
}

func TestExecute_RecordPayment(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	c, err := rig.store.Customers.Create(ctx, store.CustomerInput{
		Name: "Ramesh", Phone: "9876543210", OpeningBalance: money.MustParse("1000"),
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	res := rig.engine.Execute(ctx, extraction(intent.RecordPayment, map[string]any{
		"customer": "Ramesh", "amount": 400.0, "paymentMode": "upi",
	}), "sess-1", &fakeMemory{})

	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}
	if got := res.Data["balance"]; got != 600.0 {
		t.Errorf("balance = %v, want 600", got)
	}

	after, err := rig.store.Customers.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("reload customer: %v", err)
	}
	if !after.Balance.Equal(money.MustParse("600")) {
		t.Errorf("stored balance = %s, want 600", after.Balance)
	}
}

func TestExecute_RecordPaymentNeedsMode(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if _, err := rig.store.Customers.Create(ctx, store.CustomerInput{Name: "Ramesh"}); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	res := rig.engine.Execute(ctx, extraction(intent.RecordPayment, map[string]any{
		"customer": "Ramesh", "amount": 400.0,
	}), "sess-1", &fakeMemory{})

	if res.Success {
		t.Fatal("payment without a mode should not succeed")
	}
}

func TestExecute_InvoiceDraftThenConfirm(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	mem := &fakeMemory{}

	if _, err := rig.store.Customers.Create(ctx, store.CustomerInput{Name: "Anita"}); err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if _, err := rig.store.Products.Create(ctx, "chawal", "kg", money.MustParse("60"), 50); err != nil {
		t.Fatalf("create product: %v", err)
	}

	res := rig.engine.Execute(ctx, extraction(intent.CreateInvoice, map[string]any{
		"customer": "Anita",
		"items":    []any{map[string]any{"product": "chawal", "quantity": 5.0}},
	}), "sess-1", mem)
	if !res.Success {
		t.Fatalf("draft result = %+v, want success", res)
	}
	if got := res.Data["status"]; got != "DRAFT" {
		t.Errorf("status = %v, want DRAFT", got)
	}
	if got := res.Data["total"]; got != 300.0 {
		t.Errorf("total = %v, want 300", got)
	}
	if len(mem.promoted) == 0 || mem.promoted[0] != "Anita" {
		t.Errorf("promoted = %v, want Anita first", mem.promoted)
	}

	res = rig.engine.Execute(ctx, extraction(intent.ConfirmInvoice, nil), "sess-1", mem)
	if !res.Success {
		t.Fatalf("confirm result = %+v, want success", res)
	}
	if got := res.Data["status"]; got != "CONFIRMED" {
		t.Errorf("status after confirm = %v, want CONFIRMED", got)
	}
}

func TestExecute_ConfirmAmbiguousWithoutCustomer(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	mem := &fakeMemory{}

	for _, name := range []string{"Anita", "Suresh"} {
		if _, err := rig.store.Customers.Create(ctx, store.CustomerInput{Name: name}); err != nil {
			t.Fatalf("create customer %s: %v", name, err)
		}
	}
	if _, err := rig.store.Products.Create(ctx, "chawal", "kg", money.MustParse("60"), 50); err != nil {
		t.Fatalf("create product: %v", err)
	}

	for _, name := range []string{"Anita", "Suresh"} {
		res := rig.engine.Execute(ctx, extraction(intent.CreateInvoice, map[string]any{
			"customer": name,
			"items":    []any{map[string]any{"product": "chawal", "quantity": 1.0}},
		}), "sess-1", mem)
		if !res.Success {
			t.Fatalf("draft for %s = %+v", name, res)
		}
	}

	res := rig.engine.Execute(ctx, extraction(intent.ConfirmInvoice, nil), "sess-1", mem)
	if res.Success {
		t.Fatal("confirm with two drafts and no customer should not succeed")
	}
	if res.Error != engineerr.CodeMultiplePendingInvoices {
		t.Errorf("error = %q, want MULTIPLE_PENDING_INVOICES", res.Error)
	}

	// Naming the customer disambiguates.
	res = rig.engine.Execute(ctx, extraction(intent.ConfirmInvoice, map[string]any{
		"customer": "Suresh",
	}), "sess-1", mem)
	if !res.Success {
		t.Fatalf("confirm by name = %+v, want success", res)
	}
}

func TestExecute_ActiveCustomerReference(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	c, err := rig.store.Customers.Create(ctx, store.CustomerInput{
		Name: "Mohan", OpeningBalance: money.MustParse("250"),
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	mem := &fakeMemory{activeID: c.ID, activeName: c.Name}

	res := rig.engine.Execute(ctx, extraction(intent.CheckBalance, map[string]any{
		"customerRef": "active",
	}), "sess-1", mem)

	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}
	if got := res.Data["customer"]; got != "Mohan" {
		t.Errorf("customer = %v, want Mohan", got)
	}
	if got := res.Data["balance"]; got != 250.0 {
		t.Errorf("balance = %v, want 250", got)
	}
}

func TestExecute_ActiveReferenceWithoutActiveCustomer(t *testing.T) {
	rig := newTestRig(t)

	res := rig.engine.Execute(context.Background(), extraction(intent.CheckBalance, map[string]any{
		"customerRef": "active",
	}), "sess-1", &fakeMemory{})

	if res.Success {
		t.Fatal("back-reference with no active customer should not succeed")
	}
	if res.Error != engineerr.CodeCustomerNotFound {
		t.Errorf("error = %q, want CUSTOMER_NOT_FOUND", res.Error)
	}
}

func TestExecute_AmbiguousCustomerOffersCandidates(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	for _, in := range []store.CustomerInput{
		{Name: "Ramesh Kumar", Landmark: "mandir ke paas"},
		{Name: "Ramesh Sharma", Landmark: "school ke samne"},
	} {
		if _, err := rig.store.Customers.Create(ctx, in); err != nil {
			t.Fatalf("create %s: %v", in.Name, err)
		}
	}

	res := rig.engine.Execute(ctx, extraction(intent.CheckBalance, map[string]any{
		"customer": "Ramesh",
	}), "sess-1", &fakeMemory{})

	if res.Success {
		t.Fatal("ambiguous name should not resolve")
	}
	if res.Error != engineerr.CodeMultipleCustomers {
		t.Errorf("error = %q, want MULTIPLE_CUSTOMERS", res.Error)
	}
	candidates, ok := res.Data["candidates"].([]map[string]any)
	if !ok || len(candidates) != 2 {
		t.Fatalf("candidates = %#v, want 2 entries", res.Data["candidates"])
	}
}

func TestExecute_DeleteCustomerDataFlow(t *testing.T) {
	rig := newTestRig(t,
		engine.WithAdminPolicy(func(sessionID string) bool {
			return sessionID == "admin-sess"
		}),
		engine.WithAdminEmail("owner@dukaan.in"),
	)
	ctx := context.Background()
	mem := &fakeMemory{}

	if _, err := rig.store.Customers.Create(ctx, store.CustomerInput{
		Name: "Gopal", Email: "gopal@example.com",
	}); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	ex := extraction(intent.DeleteCustomerData, map[string]any{"customer": "Gopal"})

	res := rig.engine.Execute(ctx, ex, "normal-sess", mem)
	if res.Success || res.Error != engineerr.CodeNotAdmin {
		t.Fatalf("non-admin result = %+v, want NOT_ADMIN failure", res)
	}

	res = rig.engine.Execute(ctx, ex, "admin-sess", mem)
	if res.Success || res.Error != engineerr.CodeOTPSent {
		t.Fatalf("first admin call = %+v, want OTP_SENT", res)
	}

	// The code goes to the shop owner, never to the customer being wiped.
	sent := rig.mail.Sent()
	if len(sent) != 1 {
		t.Fatalf("%d mails sent, want 1", len(sent))
	}
	if sent[0].To != "owner@dukaan.in" {
		t.Errorf("deletion code sent to %q, want owner@dukaan.in", sent[0].To)
	}

	wrong := extraction(intent.DeleteCustomerData, map[string]any{"customer": "Gopal", "otp": "000000"})
	res = rig.engine.Execute(ctx, wrong, "admin-sess", mem)
	if res.Success || res.Error != engineerr.CodeOTPMismatch {
		t.Fatalf("wrong otp result = %+v, want OTP_MISMATCH", res)
	}
}

func TestExecute_GetCustomerInfoSpeaksPhone(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if _, err := rig.store.Customers.Create(ctx, store.CustomerInput{
		Name: "Ramesh", Phone: "9876543210",
	}); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	res := rig.engine.Execute(ctx, extraction(intent.GetCustomerInfo, map[string]any{
		"customer": "Ramesh",
	}), "sess-1", &fakeMemory{})

	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}
	if got := res.Data["phone"]; got != "9876543210" {
		t.Errorf("phone = %v, want raw digits", got)
	}
	want := "nau aath saat chhe paanch, chaar teen do ek shunya"
	if got := res.Data["phoneSpoken"]; got != want {
		t.Errorf("phoneSpoken = %v, want %q", got, want)
	}
	if msg, ok := res.Data["phoneSpoken"].(string); ok && !strings.Contains(res.Message, msg) {
		t.Errorf("message %q should read the number out in words", res.Message)
	}
}

func TestExecute_CancelSingleThenAll(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	c, err := rig.store.Customers.Create(ctx, store.CustomerInput{Name: "Anita", Phone: "9876500002"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if _, err := rig.store.Products.Create(ctx, "chawal", "kg", money.MustParse("60"), 50); err != nil {
		t.Fatalf("create product: %v", err)
	}

	// One confirmed-but-unsent bill plus this session's draft.
	confirmed, err := rig.store.Invoices.CreateDraft(ctx, store.DraftInput{
		CustomerID: c.ID,
		SessionID:  "old-sess",
		Items:      []store.DraftItem{{Product: "chawal", Quantity: 3}},
		AutoSend:   true,
	})
	if err != nil {
		t.Fatalf("create confirmed invoice: %v", err)
	}
	draft, err := rig.store.Invoices.CreateDraft(ctx, store.DraftInput{
		CustomerID: c.ID,
		SessionID:  "sess-1",
		Items:      []store.DraftItem{{Product: "chawal", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}

	// Plain cancel voids only the session's draft.
	res := rig.engine.Execute(ctx, extraction(intent.CancelInvoice, map[string]any{
		"customer": "Anita",
	}), "sess-1", &fakeMemory{})
	if !res.Success {
		t.Fatalf("single cancel = %+v, want success", res)
	}
	cancelled, ok := res.Data["cancelled"].([]map[string]any)
	if !ok || len(cancelled) != 1 {
		t.Fatalf("cancelled = %#v, want exactly 1 entry", res.Data["cancelled"])
	}
	if cancelled[0]["invoiceId"] != draft.ID {
		t.Errorf("cancelled %v, want the session draft %s", cancelled[0]["invoiceId"], draft.ID)
	}
	still, err := rig.store.Invoices.GetByID(ctx, confirmed.ID)
	if err != nil {
		t.Fatalf("reload confirmed invoice: %v", err)
	}
	if still.Status != store.InvoiceConfirmed {
		t.Errorf("confirmed invoice status = %s after single cancel, want CONFIRMED", still.Status)
	}

	// "sab cancel karo" widens to every open invoice.
	res = rig.engine.Execute(ctx, extraction(intent.CancelInvoice, map[string]any{
		"customer": "Anita", "cancelAll": true,
	}), "sess-1", &fakeMemory{})
	if !res.Success {
		t.Fatalf("cancel all = %+v, want success", res)
	}
	after, err := rig.store.Invoices.GetByID(ctx, confirmed.ID)
	if err != nil {
		t.Fatalf("reload confirmed invoice: %v", err)
	}
	if after.Status != store.InvoiceCancelled {
		t.Errorf("status = %s after cancel all, want CANCELLED", after.Status)
	}
}

func TestExecute_CreateReminderDefaultsToBalance(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if _, err := rig.store.Customers.Create(ctx, store.CustomerInput{
		Name: "Sunita", Phone: "9876500001", OpeningBalance: money.MustParse("750"),
	}); err != nil {
		t.Fatalf("create customer: %v", err)
	}

	res := rig.engine.Execute(ctx, extraction(intent.CreateReminder, map[string]any{
		"customer": "Sunita", "time": "kal",
	}), "sess-1", &fakeMemory{})

	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}
	if got := res.Data["amount"]; got != 750.0 {
		t.Errorf("amount = %v, want full balance 750", got)
	}
}

func TestExecute_UnknownIntent(t *testing.T) {
	rig := newTestRig(t)

	res := rig.engine.Execute(context.Background(),
		extraction(intent.Unknown, nil), "sess-1", &fakeMemory{})

	if res.Success {
		t.Fatal("UNKNOWN should not succeed")
	}
	if res.Error != "UNKNOWN_INTENT" {
		t.Errorf("error = %q, want UNKNOWN_INTENT", res.Error)
	}
}
