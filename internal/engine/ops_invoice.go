package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/nileshdk/bolikhata/internal/engineerr"
	"github.com/nileshdk/bolikhata/internal/intent"
	"github.com/nileshdk/bolikhata/internal/namematch"
	"github.com/nileshdk/bolikhata/internal/store"
)

// createInvoice drafts an invoice for the resolved customer. Stock and
// ledger move now; the confirmation step only flips the status, so the
// operator hears the total before anything becomes final-looking.
func (e *Engine) createInvoice(ctx context.Context, ents intent.Entities, sessionID string, customer *store.Customer) ExecutionResult {
	spoken := ents.Items()
	if len(spoken) == 0 {
		return ExecutionResult{
			Success: false,
			Message: "Kaunsa saman? Item aur quantity boliye.",
			Error:   string(engineerr.KindValidation),
		}
	}

	in := store.DraftInput{
		CustomerID: customer.ID,
		SessionID:  sessionID,
		GST:        ents.Bool("gst"),
		AutoSend:   ents.Bool("autoSend") || ents.Bool("send"),
	}
	for _, it := range spoken {
		in.Items = append(in.Items, store.DraftItem{
			Product:  it.Product,
			Quantity: it.Quantity,
			Unit:     it.Unit,
		})
	}

	inv, err := e.store.Invoices.CreateDraft(ctx, in)
	if err != nil {
		return fail(err)
	}
	e.invalidateCustomer(ctx)

	items := make([]map[string]any, 0, len(inv.Items))
	var unpriced []string
	for _, line := range inv.Items {
		items = append(items, map[string]any{
			"product":   line.Product,
			"quantity":  line.Quantity,
			"unitPrice": line.UnitPrice.Float64(),
			"lineTotal": line.LineTotal.Float64(),
		})
		if line.UnitPrice.IsZero() {
			unpriced = append(unpriced, line.Product)
		}
	}
	data := map[string]any{
		"invoiceId": inv.ID,
		"customer":  customer.Name,
		"total":     inv.Total.Float64(),
		"gst":       inv.GST,
		"status":    string(inv.Status),
		"items":     items,
	}
	if len(unpriced) > 0 {
		data["unpricedProducts"] = unpriced
	}

	var msg string
	switch {
	case inv.Status == store.InvoiceConfirmed:
		msg = fmt.Sprintf("%s ke liye %s ka invoice ban gaya.", customer.Name, inv.Total.Rupees())
		if derr := e.deliverInvoice(ctx, customer, inv, ents.String("channel")); derr != nil {
			e.log.Warn("auto-send delivery failed", "invoice", inv.ID, "error", derr)
			msg += " Bhejne mein dikkat aayi, baad mein bhej dijiye."
		} else {
			msg += " Bhej diya."
		}
	case len(unpriced) > 0:
		msg = fmt.Sprintf("%s ke liye invoice draft ho gaya, lekin %s ka rate set nahi hai. Pehle rate batayein, phir confirm karein.",
			customer.Name, strings.Join(unpriced, ", "))
	default:
		msg = fmt.Sprintf("%s ke liye %s ka invoice draft ho gaya. Confirm karun?", customer.Name, inv.Total.Rupees())
	}

	return ExecutionResult{Success: true, Message: msg, Data: data}
}

// confirmInvoice finalizes a session draft. With several drafts open the
// operator has to name the customer, otherwise we would be guessing which
// bill they meant.
func (e *Engine) confirmInvoice(ctx context.Context, ents intent.Entities, sessionID string) ExecutionResult {
	drafts, err := e.store.Invoices.DraftsForSession(ctx, sessionID)
	if err != nil {
		return fail(err)
	}
	if len(drafts) == 0 {
		return ExecutionResult{
			Success: false,
			Message: "Koi draft invoice nahi hai.",
			Error:   string(engineerr.KindNotFound),
		}
	}

	target := drafts[0]
	if query := strings.TrimSpace(ents.String("customer")); query != "" {
		picked, res := e.pickDraftByCustomer(ctx, drafts, query)
		if res != nil {
			return *res
		}
		target = *picked
	} else if len(drafts) > 1 {
		return e.multiplePendingResult(ctx, drafts)
	}

	inv, err := e.store.Invoices.Confirm(ctx, target.ID)
	if err != nil {
		return fail(err)
	}
	e.invalidateCustomer(ctx)

	name := e.customerName(ctx, inv.CustomerID)
	return ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("%s ka %s ka invoice confirm ho gaya.", name, inv.Total.Rupees()),
		Data: map[string]any{
			"invoiceId": inv.ID,
			"customer":  name,
			"total":     inv.Total.Float64(),
			"status":    string(inv.Status),
		},
	}
}

// showPendingInvoices lists the session's open drafts.
func (e *Engine) showPendingInvoices(ctx context.Context, sessionID string) ExecutionResult {
	drafts, err := e.store.Invoices.DraftsForSession(ctx, sessionID)
	if err != nil {
		return fail(err)
	}
	if len(drafts) == 0 {
		return ExecutionResult{
			Success: true,
			Message: "Koi pending invoice nahi hai.",
			Data:    map[string]any{"invoices": []map[string]any{}},
		}
	}

	entries := make([]map[string]any, 0, len(drafts))
	var parts []string
	for _, d := range drafts {
		name := e.customerName(ctx, d.CustomerID)
		entries = append(entries, map[string]any{
			"invoiceId": d.ID,
			"customer":  name,
			"total":     d.Total.Float64(),
		})
		parts = append(parts, fmt.Sprintf("%s ka %s", name, d.Total.Rupees()))
	}
	return ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("%d pending invoice: %s.", len(drafts), strings.Join(parts, ", ")),
		Data:    map[string]any{"invoices": entries},
	}
}

// cancelInvoice voids one open invoice for the customer, or every open one
// when the operator said "sab cancel karo". Open means a draft or a confirmed
// bill that was never delivered. Stock and ledger are compensated by the
// store.
func (e *Engine) cancelInvoice(ctx context.Context, ents intent.Entities, sessionID string, customer *store.Customer) ExecutionResult {
	if ents.Bool("cancelAll") {
		return e.cancelAllInvoices(ctx, customer)
	}

	target, res := e.invoiceToCancel(ctx, sessionID, customer)
	if res != nil {
		return *res
	}
	inv, err := e.store.Invoices.Cancel(ctx, target.ID)
	if err != nil {
		return fail(err)
	}
	e.invalidateCustomer(ctx)

	return ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("%s ka %s ka invoice cancel ho gaya. Stock aur balance wapas adjust kar diya.",
			customer.Name, inv.Total.Rupees()),
		Data: map[string]any{
			"customer": customer.Name,
			"cancelled": []map[string]any{
				{"invoiceId": inv.ID, "total": inv.Total.Float64()},
			},
		},
	}
}

// cancelAllInvoices is the wide variant of cancelInvoice.
func (e *Engine) cancelAllInvoices(ctx context.Context, customer *store.Customer) ExecutionResult {
	cancelled, err := e.store.Invoices.CancelOpenForCustomer(ctx, customer.ID)
	if err != nil {
		return fail(err)
	}
	if len(cancelled) == 0 {
		return ExecutionResult{
			Success: false,
			Message: fmt.Sprintf("%s ka koi open invoice nahi hai.", customer.Name),
			Error:   string(engineerr.KindNotFound),
		}
	}
	e.invalidateCustomer(ctx)

	entries := make([]map[string]any, 0, len(cancelled))
	for _, inv := range cancelled {
		entries = append(entries, map[string]any{
			"invoiceId": inv.ID,
			"total":     inv.Total.Float64(),
		})
	}
	msg := fmt.Sprintf("%s ka %s ka invoice cancel ho gaya. Stock aur balance wapas adjust kar diya.",
		customer.Name, cancelled[0].Total.Rupees())
	if len(cancelled) > 1 {
		msg = fmt.Sprintf("%s ke %d invoice cancel ho gaye. Stock aur balance wapas adjust kar diya.",
			customer.Name, len(cancelled))
	}
	return ExecutionResult{
		Success: true,
		Message: msg,
		Data:    map[string]any{"customer": customer.Name, "cancelled": entries},
	}
}

// invoiceToCancel finds the invoice "cancel karo" refers to: the session's
// draft for this customer, else the customer's latest open invoice.
func (e *Engine) invoiceToCancel(ctx context.Context, sessionID string, customer *store.Customer) (*store.Invoice, *ExecutionResult) {
	drafts, err := e.store.Invoices.DraftsForSession(ctx, sessionID)
	if err != nil {
		res := fail(err)
		return nil, &res
	}
	for i, d := range drafts {
		if d.CustomerID == customer.ID {
			return &drafts[i], nil
		}
	}

	inv, err := e.store.Invoices.LatestOpenForCustomer(ctx, customer.ID)
	if err != nil {
		if engineerr.KindOf(err) == engineerr.KindNotFound {
			res := ExecutionResult{
				Success: false,
				Message: fmt.Sprintf("%s ka koi open invoice nahi hai.", customer.Name),
				Error:   string(engineerr.KindNotFound),
			}
			return nil, &res
		}
		res := fail(err)
		return nil, &res
	}
	return inv, nil
}

// toggleGST flips GST on the session's single open draft.
func (e *Engine) toggleGST(ctx context.Context, sessionID string) ExecutionResult {
	drafts, err := e.store.Invoices.DraftsForSession(ctx, sessionID)
	if err != nil {
		return fail(err)
	}
	if len(drafts) == 0 {
		return ExecutionResult{
			Success: false,
			Message: "Koi draft invoice nahi hai jisme GST badla ja sake.",
			Error:   string(engineerr.KindNotFound),
		}
	}
	if len(drafts) > 1 {
		return e.multiplePendingResult(ctx, drafts)
	}

	inv, err := e.store.Invoices.ToggleGST(ctx, drafts[0].ID)
	if err != nil {
		return fail(err)
	}
	e.invalidateCustomer(ctx)

	msg := fmt.Sprintf("GST hata diya. Naya total %s.", inv.Total.Rupees())
	if inv.GST {
		msg = fmt.Sprintf("18%% GST laga diya. Naya total %s.", inv.Total.Rupees())
	}
	return ExecutionResult{
		Success: true,
		Message: msg,
		Data: map[string]any{
			"invoiceId": inv.ID,
			"gst":       inv.GST,
			"total":     inv.Total.Float64(),
		},
	}
}

// sendInvoice delivers the customer's invoice now, or schedules delivery
// when a time was spoken. A still-draft invoice is confirmed on the way out:
// "bhej do" implies the operator is done reviewing.
func (e *Engine) sendInvoice(ctx context.Context, ents intent.Entities, sessionID string, customer *store.Customer) ExecutionResult {
	inv, res := e.invoiceToSend(ctx, sessionID, customer)
	if res != nil {
		return *res
	}

	if whenText := strings.TrimSpace(ents.String("time")); whenText != "" {
		r, err := e.scheduler.Schedule(ctx, customer.ID, inv.Total,
			whenText, fmt.Sprintf("Invoice %s bhejna hai (%s).", inv.ID, inv.Total.Rupees()))
		if err != nil {
			return fail(err)
		}
		return ExecutionResult{
			Success: true,
			Message: fmt.Sprintf("Theek hai, %s ka invoice %s bhej denge.",
				customer.Name, r.ScheduledTime.In(e.loc).Format("2 Jan 3:04 PM")),
			Data: map[string]any{
				"invoiceId":  inv.ID,
				"reminderId": r.ID,
				"sendAt":     r.ScheduledTime.In(e.loc).Format("2006-01-02 15:04"),
			},
		}
	}

	channel := strings.ToLower(ents.String("channel"))
	if err := e.deliverInvoice(ctx, customer, inv, channel); err != nil {
		return fail(err)
	}
	e.invalidateCustomer(ctx)

	if channel == "" {
		channel = e.defaultChannel(customer)
	}
	return ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("%s ka %s ka invoice %s pe bhej diya.", customer.Name, inv.Total.Rupees(), channel),
		Data: map[string]any{
			"invoiceId": inv.ID,
			"customer":  customer.Name,
			"channel":   channel,
			"total":     inv.Total.Float64(),
		},
	}
}

// provideEmail attaches a just-spoken email address to the customer of the
// invoice that is waiting to go out, then completes the delivery.
func (e *Engine) provideEmail(ctx context.Context, ents intent.Entities, sessionID string) ExecutionResult {
	email := strings.TrimSpace(ents.String("email"))
	if email == "" || !strings.Contains(email, "@") {
		return ExecutionResult{
			Success: false,
			Message: "Email address samajh nahi aaya, dobara boliye.",
			Error:   string(engineerr.KindValidation),
		}
	}

	inv, err := e.store.Invoices.LatestUnsent(ctx, sessionID)
	if err != nil {
		return fail(err)
	}
	customer, err := e.store.Customers.Update(ctx, inv.CustomerID, store.CustomerUpdate{Email: &email})
	if err != nil {
		return fail(err)
	}
	e.invalidateCustomer(ctx)

	if err := e.deliverInvoice(ctx, customer, inv, "email"); err != nil {
		return fail(err)
	}
	return ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("Email save kar liya aur %s ka invoice bhej diya.", customer.Name),
		Data: map[string]any{
			"invoiceId": inv.ID,
			"customer":  customer.Name,
			"email":     email,
		},
	}
}

// invoiceToSend finds the invoice "bhej do" refers to: the session's draft
// for this customer (confirmed on the spot), else the latest confirmed
// undelivered one.
func (e *Engine) invoiceToSend(ctx context.Context, sessionID string, customer *store.Customer) (*store.Invoice, *ExecutionResult) {
	drafts, err := e.store.Invoices.DraftsForSession(ctx, sessionID)
	if err != nil {
		res := fail(err)
		return nil, &res
	}
	for _, d := range drafts {
		if d.CustomerID != customer.ID {
			continue
		}
		inv, err := e.store.Invoices.Confirm(ctx, d.ID)
		if err != nil {
			res := fail(err)
			return nil, &res
		}
		return inv, nil
	}

	inv, err := e.store.Invoices.LatestUnsent(ctx, sessionID)
	if err != nil || inv.CustomerID != customer.ID {
		res := ExecutionResult{
			Success: false,
			Message: fmt.Sprintf("%s ka koi invoice bhejne ke liye taiyaar nahi hai.", customer.Name),
			Error:   string(engineerr.KindNotFound),
		}
		return nil, &res
	}
	return inv, nil
}

// deliverInvoice pushes the rendered invoice out on channel ("" picks the
// best available) and marks it sent. Email needs an address and a mail
// sender; WhatsApp is handed to the gateway via the log until that
// integration lands.
func (e *Engine) deliverInvoice(ctx context.Context, customer *store.Customer, inv *store.Invoice, channel string) error {
	if channel == "" {
		channel = e.defaultChannel(customer)
	}
	switch channel {
	case "email":
		if customer.Email == "" {
			return engineerr.Newf(engineerr.KindValidation, "",
				"%s ka email nahi hai. Email address boliye.", customer.Name)
		}
		if e.sender == nil {
			return engineerr.New(engineerr.KindExternalService, "",
				"Email bhejne ki suvidha abhi available nahi hai.")
		}
		subject := fmt.Sprintf("Invoice: %s", inv.Total.Rupees())
		if err := e.sender.Send(ctx, customer.Email, subject, renderInvoiceText(customer, inv)); err != nil {
			return engineerr.Wrap(engineerr.KindExternalService, "", "Invoice email nahi ja paya.", err)
		}
	case "whatsapp":
		if customer.Phone == "" {
			return engineerr.Newf(engineerr.KindValidation, engineerr.CodeMissingPhone,
				"%s ka phone number nahi hai.", customer.Name)
		}
		e.log.Info("whatsapp invoice ready for gateway",
			"invoice", inv.ID, "phone", customer.Phone)
	default:
		return engineerr.Newf(engineerr.KindValidation, "",
			"%q channel nahi samjha; email ya whatsapp boliye.", channel)
	}
	return e.store.Invoices.MarkSent(ctx, inv.ID)
}

// defaultChannel prefers WhatsApp (every customer with a phone has it in
// practice) and falls back to email.
func (e *Engine) defaultChannel(customer *store.Customer) string {
	if customer.Phone != "" {
		return "whatsapp"
	}
	return "email"
}

// renderInvoiceText is the plain-text invoice body for email delivery.
func renderInvoiceText(customer *store.Customer, inv *store.Invoice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Namaste %s,\n\nAapka invoice:\n\n", customer.Name)
	for _, line := range inv.Items {
		fmt.Fprintf(&b, "  %s x%d @ %s = %s\n",
			line.Product, line.Quantity, line.UnitPrice.Rupees(), line.LineTotal.Rupees())
	}
	if inv.GST {
		b.WriteString("\n(18% GST included)\n")
	}
	fmt.Fprintf(&b, "\nTotal: %s\n\nDhanyavaad.\n", inv.Total.Rupees())
	return b.String()
}

// pickDraftByCustomer matches a spoken customer name against the drafts'
// customers.
func (e *Engine) pickDraftByCustomer(ctx context.Context, drafts []store.Invoice, query string) (*store.Invoice, *ExecutionResult) {
	bestScore := 0.0
	bestIdx := -1
	for i, d := range drafts {
		name := e.customerName(ctx, d.CustomerID)
		if strings.EqualFold(name, query) {
			return &drafts[i], nil
		}
		if r, ok := namematch.Match(query, name, 0); ok && r.Score > bestScore {
			bestScore, bestIdx = r.Score, i
		}
	}
	if bestIdx < 0 || bestScore < e.matchThreshold {
		res := fail(engineerr.Newf(engineerr.KindNotFound, engineerr.CodeCustomerNotFound,
			"%s ka koi draft invoice nahi mila.", query))
		return nil, &res
	}
	return &drafts[bestIdx], nil
}

// multiplePendingResult asks the operator to name the customer when more
// than one draft is open.
func (e *Engine) multiplePendingResult(ctx context.Context, drafts []store.Invoice) ExecutionResult {
	options := make([]map[string]any, 0, len(drafts))
	var parts []string
	for _, d := range drafts {
		name := e.customerName(ctx, d.CustomerID)
		options = append(options, map[string]any{
			"invoiceId": d.ID,
			"customer":  name,
			"total":     d.Total.Float64(),
		})
		parts = append(parts, fmt.Sprintf("%s ka %s", name, d.Total.Rupees()))
	}
	return ExecutionResult{
		Success: false,
		Message: fmt.Sprintf("%d invoice pending hain: %s. Kiska confirm karun?",
			len(drafts), strings.Join(parts, ", ")),
		Data:    map[string]any{"invoices": options},
		Error:   engineerr.CodeMultiplePendingInvoices,
	}
}

// customerName resolves a customer id to a display name, degrading to the id
// when the row is gone.
func (e *Engine) customerName(ctx context.Context, customerID string) string {
	c, err := e.store.Customers.GetByID(ctx, customerID)
	if err != nil {
		return customerID
	}
	return c.Name
}
