package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nileshdk/bolikhata/internal/engineerr"
	"github.com/nileshdk/bolikhata/internal/intent"
	"github.com/nileshdk/bolikhata/internal/store"
	"github.com/nileshdk/bolikhata/pkg/money"
)

// balancesCacheKey snapshots the customer balance overview. Lives under the
// customer: prefix so every customer/ledger write invalidates it.
const balancesCacheKey = "customer:balances"

// recordPayment appends a payment to the customer's ledger. The mode is
// mandatory: the daily summary splits by it, and "pata nahi kaise aaya"
// is not a ledger entry.
func (e *Engine) recordPayment(ctx context.Context, ents intent.Entities, customer *store.Customer) ExecutionResult {
	amount := ents.Float("amount")
	if amount <= 0 {
		return ExecutionResult{
			Success: false,
			Message: "Kitne ka payment aaya? Amount boliye.",
			Error:   string(engineerr.KindValidation),
		}
	}
	mode := store.PaymentMode(strings.ToLower(strings.TrimSpace(ents.String("paymentMode"))))
	if mode == "" {
		return ExecutionResult{
			Success: false,
			Message: "Payment kaise aaya? Cash, UPI ya card boliye.",
			Data:    map[string]any{"customer": customer.Name, "amount": amount},
			Error:   string(engineerr.KindValidation),
		}
	}

	balance, err := e.store.Ledger.RecordPayment(ctx, customer.ID,
		money.FromFloat(amount), mode, ents.String("description"))
	if err != nil {
		return fail(err)
	}
	e.invalidateCustomer(ctx)

	return ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("%s ka %s ka payment record ho gaya. Naya balance %s.",
			customer.Name, money.FromFloat(amount).Rupees(), balance.Rupees()),
		Data: map[string]any{
			"customer":    customer.Name,
			"amount":      amount,
			"paymentMode": string(mode),
			"balance":     balance.Float64(),
		},
	}
}

// addCredit records goods given on credit outside an invoice. The ledger
// stays auditable, so a description of what was given is required.
func (e *Engine) addCredit(ctx context.Context, ents intent.Entities, customer *store.Customer) ExecutionResult {
	amount := ents.Float("amount")
	if amount <= 0 {
		return ExecutionResult{
			Success: false,
			Message: "Kitne ka udhaar? Amount boliye.",
			Error:   string(engineerr.KindValidation),
		}
	}
	description := strings.TrimSpace(ents.String("description"))
	if description == "" {
		description = strings.TrimSpace(ents.String("item"))
	}
	if description == "" {
		return ExecutionResult{
			Success: false,
			Message: "Kis cheez ka udhaar hai? Thoda detail boliye.",
			Data:    map[string]any{"customer": customer.Name, "amount": amount},
			Error:   string(engineerr.KindValidation),
		}
	}

	balance, err := e.store.Ledger.AddCredit(ctx, customer.ID, money.FromFloat(amount), description)
	if err != nil {
		return fail(err)
	}
	e.invalidateCustomer(ctx)

	return ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("%s ke naam %s likh diya (%s). Total baki %s.",
			customer.Name, money.FromFloat(amount).Rupees(), description, balance.Rupees()),
		Data: map[string]any{
			"customer":    customer.Name,
			"amount":      amount,
			"description": description,
			"balance":     balance.Float64(),
		},
	}
}

// checkBalance reports what the resolved customer owes.
func (e *Engine) checkBalance(ctx context.Context, customer *store.Customer) ExecutionResult {
	var msg string
	switch {
	case customer.Balance.IsPositive():
		msg = fmt.Sprintf("%s ka balance %s baki hai.", customer.Name, customer.Balance.Rupees())
	case customer.Balance.IsNegative():
		msg = fmt.Sprintf("%s ka %s advance jama hai.", customer.Name, customer.Balance.Neg().Rupees())
	default:
		msg = fmt.Sprintf("%s ka hisaab clear hai, kuch baki nahi.", customer.Name)
	}
	return ExecutionResult{
		Success: true,
		Message: msg,
		Data: map[string]any{
			"customer": customer.Name,
			"balance":  customer.Balance.Float64(),
		},
	}
}

// checkStock reports stock of one product, or sweeps the catalog when no
// product was named.
func (e *Engine) checkStock(ctx context.Context, ents intent.Entities) ExecutionResult {
	name := strings.TrimSpace(ents.String("product"))
	if name != "" {
		p, err := e.store.Products.GetByName(ctx, name)
		if err != nil {
			return fail(err)
		}
		msg := fmt.Sprintf("%s ka stock %d %s hai.", p.Name, p.Stock, p.Unit)
		if p.LowStock() {
			msg += " Stock kam hai, mangwa lijiye."
		}
		return ExecutionResult{
			Success: true,
			Message: msg,
			Data: map[string]any{
				"product":  p.Name,
				"stock":    p.Stock,
				"unit":     p.Unit,
				"lowStock": p.LowStock(),
			},
		}
	}

	products, err := e.store.Products.List(ctx)
	if err != nil {
		return fail(err)
	}
	entries := make([]map[string]any, 0, len(products))
	var low []string
	for _, p := range products {
		entries = append(entries, map[string]any{
			"product":  p.Name,
			"stock":    p.Stock,
			"unit":     p.Unit,
			"lowStock": p.LowStock(),
		})
		if p.LowStock() {
			low = append(low, p.Name)
		}
	}
	msg := fmt.Sprintf("%d product hain.", len(products))
	if len(low) > 0 {
		msg = fmt.Sprintf("%d product hain; %s ka stock kam hai.", len(products), strings.Join(low, ", "))
	}
	return ExecutionResult{
		Success: true,
		Message: msg,
		Data:    map[string]any{"products": entries},
	}
}

// listCustomerBalances reads the balance overview, served from the tiered
// cache when a snapshot is fresh.
func (e *Engine) listCustomerBalances(ctx context.Context) ExecutionResult {
	type row struct {
		Name    string  `json:"name"`
		Balance float64 `json:"balance"`
	}

	var entries []row
	cached := false
	if e.cache != nil {
		if v, ok := e.cache.Get(ctx, balancesCacheKey); ok {
			cached = json.Unmarshal([]byte(v), &entries) == nil
		}
	}
	if !cached {
		customers, err := e.store.Customers.List(ctx)
		if err != nil {
			return fail(err)
		}
		for _, c := range customers {
			if !c.Balance.IsPositive() {
				continue
			}
			entries = append(entries, row{Name: c.Name, Balance: c.Balance.Float64()})
		}
		if e.cache != nil {
			if body, err := json.Marshal(entries); err == nil {
				e.cache.Set(ctx, balancesCacheKey, string(body))
			}
		}
	}

	if len(entries) == 0 {
		return ExecutionResult{
			Success: true,
			Message: "Kisi ka kuch baki nahi hai, sab hisaab clear hai.",
			Data:    map[string]any{"customers": []row{}},
		}
	}

	var total money.Amount
	var parts []string
	for _, r := range entries {
		total = total.Add(money.FromFloat(r.Balance))
		if len(parts) < 5 {
			parts = append(parts, fmt.Sprintf("%s %s", r.Name, money.FromFloat(r.Balance).Rupees()))
		}
	}
	msg := fmt.Sprintf("%d customer se total %s baki hai: %s.",
		len(entries), total.Rupees(), strings.Join(parts, ", "))
	if len(entries) > len(parts) {
		msg += fmt.Sprintf(" Aur %d baki.", len(entries)-len(parts))
	}
	return ExecutionResult{
		Success: true,
		Message: msg,
		Data:    map[string]any{"customers": entries, "total": total.Float64()},
	}
}

// totalPending sums the outstanding amount across all customers.
func (e *Engine) totalPending(ctx context.Context) ExecutionResult {
	total, count, err := e.store.Ledger.TotalPending(ctx)
	if err != nil {
		return fail(err)
	}
	msg := fmt.Sprintf("Total %s baki hai, %d customer se.", total.Rupees(), count)
	if count == 0 {
		msg = "Kuch bhi baki nahi hai."
	}
	return ExecutionResult{
		Success: true,
		Message: msg,
		Data: map[string]any{
			"total":     total.Float64(),
			"customers": count,
		},
	}
}

// dailySummary aggregates today's business in the shop's timezone.
func (e *Engine) dailySummary(ctx context.Context) ExecutionResult {
	now := e.now().In(e.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.loc)
	dayEnd := dayStart.Add(24 * time.Hour)

	sum, err := e.store.Invoices.DailySummary(ctx, dayStart, dayEnd)
	if err != nil {
		return fail(err)
	}

	byMode := make(map[string]float64, len(sum.ByMode))
	var modeParts []string
	for mode, amount := range sum.ByMode {
		byMode[string(mode)] = amount.Float64()
		modeParts = append(modeParts, fmt.Sprintf("%s %s", mode, amount.Rupees()))
	}

	msg := fmt.Sprintf("Aaj %d invoice, bikri %s, payment %s aaya",
		sum.InvoiceCount, sum.TotalSales.Rupees(), sum.TotalPayments.Rupees())
	if len(modeParts) > 0 {
		msg += " (" + strings.Join(modeParts, ", ") + ")"
	}
	msg += fmt.Sprintf(". Aaj ka baki %s.", sum.PendingAmount.Rupees())

	return ExecutionResult{
		Success: true,
		Message: msg,
		Data: map[string]any{
			"date":          dayStart.Format("2006-01-02"),
			"totalSales":    sum.TotalSales.Float64(),
			"totalPayments": sum.TotalPayments.Float64(),
			"byMode":        byMode,
			"pendingAmount": sum.PendingAmount.Float64(),
			"invoiceCount":  sum.InvoiceCount,
		},
	}
}
