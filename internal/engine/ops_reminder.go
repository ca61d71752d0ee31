package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/nileshdk/bolikhata/internal/engineerr"
	"github.com/nileshdk/bolikhata/internal/intent"
	"github.com/nileshdk/bolikhata/internal/store"
	"github.com/nileshdk/bolikhata/pkg/money"
)

// createReminder schedules a payment reminder. Without a spoken amount the
// customer's full outstanding balance is used.
func (e *Engine) createReminder(ctx context.Context, ents intent.Entities, customer *store.Customer) ExecutionResult {
	amount := money.FromFloat(ents.Float("amount"))
	if !amount.IsPositive() {
		if !customer.Balance.IsPositive() {
			return ExecutionResult{
				Success: false,
				Message: fmt.Sprintf("%s ka kuch baki nahi hai, reminder kis baat ka?", customer.Name),
				Error:   string(engineerr.KindValidation),
			}
		}
		amount = customer.Balance
	}

	whenText := strings.TrimSpace(ents.String("time"))
	if whenText == "" {
		return ExecutionResult{
			Success: false,
			Message: "Kab yaad dilana hai? Time boliye, jaise kal subah ya 2 din baad.",
			Data:    map[string]any{"customer": customer.Name, "amount": amount.Float64()},
			Error:   string(engineerr.KindValidation),
		}
	}

	r, err := e.scheduler.Schedule(ctx, customer.ID, amount, whenText, ents.String("message"))
	if err != nil {
		return fail(err)
	}

	return ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("%s ko %s ka reminder %s set ho gaya.",
			customer.Name, amount.Rupees(), r.ScheduledTime.In(e.loc).Format("2 Jan 3:04 PM")),
		Data: map[string]any{
			"reminderId":    r.ID,
			"customer":      customer.Name,
			"amount":        amount.Float64(),
			"scheduledTime": r.ScheduledTime.In(e.loc).Format("2006-01-02 15:04"),
			"channels":      r.Channels,
		},
	}
}

// modifyReminder reschedules the customer's next pending reminder.
func (e *Engine) modifyReminder(ctx context.Context, ents intent.Entities, customer *store.Customer) ExecutionResult {
	pending, err := e.scheduler.List(ctx, customer.ID, true)
	if err != nil {
		return fail(err)
	}
	if len(pending) == 0 {
		return ExecutionResult{
			Success: false,
			Message: fmt.Sprintf("%s ka koi pending reminder nahi hai.", customer.Name),
			Error:   string(engineerr.KindNotFound),
		}
	}

	target := pending[0]
	r, err := e.scheduler.Modify(ctx, target.ID,
		ents.String("time"), money.FromFloat(ents.Float("amount")), ents.String("message"))
	if err != nil {
		return fail(err)
	}

	return ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("%s ka reminder ab %s ka hai, %s.",
			customer.Name, r.Amount.Rupees(), r.ScheduledTime.In(e.loc).Format("2 Jan 3:04 PM")),
		Data: map[string]any{
			"reminderId":    r.ID,
			"customer":      customer.Name,
			"amount":        r.Amount.Float64(),
			"scheduledTime": r.ScheduledTime.In(e.loc).Format("2006-01-02 15:04"),
		},
	}
}

// cancelReminder cancels the customer's pending reminders.
func (e *Engine) cancelReminder(ctx context.Context, ents intent.Entities, customer *store.Customer) ExecutionResult {
	pending, err := e.scheduler.List(ctx, customer.ID, true)
	if err != nil {
		return fail(err)
	}
	if len(pending) == 0 {
		return ExecutionResult{
			Success: false,
			Message: fmt.Sprintf("%s ka koi pending reminder nahi hai.", customer.Name),
			Error:   string(engineerr.KindNotFound),
		}
	}

	cancelled := 0
	for _, r := range pending {
		if err := e.scheduler.Cancel(ctx, r.ID); err != nil {
			return fail(err)
		}
		cancelled++
	}

	msg := fmt.Sprintf("%s ka reminder cancel ho gaya.", customer.Name)
	if cancelled > 1 {
		msg = fmt.Sprintf("%s ke %d reminder cancel ho gaye.", customer.Name, cancelled)
	}
	return ExecutionResult{
		Success: true,
		Message: msg,
		Data:    map[string]any{"customer": customer.Name, "cancelled": cancelled},
	}
}

// listReminders reads back the customer's reminders, pending ones by
// default.
func (e *Engine) listReminders(ctx context.Context, customer *store.Customer) ExecutionResult {
	reminders, err := e.scheduler.List(ctx, customer.ID, true)
	if err != nil {
		return fail(err)
	}
	if len(reminders) == 0 {
		return ExecutionResult{
			Success: true,
			Message: fmt.Sprintf("%s ka koi pending reminder nahi hai.", customer.Name),
			Data:    map[string]any{"customer": customer.Name, "reminders": []map[string]any{}},
		}
	}

	entries := make([]map[string]any, 0, len(reminders))
	var parts []string
	for _, r := range reminders {
		when := r.ScheduledTime.In(e.loc).Format("2 Jan 3:04 PM")
		entries = append(entries, map[string]any{
			"reminderId":    r.ID,
			"amount":        r.Amount.Float64(),
			"scheduledTime": r.ScheduledTime.In(e.loc).Format("2006-01-02 15:04"),
			"status":        string(r.Status),
		})
		parts = append(parts, fmt.Sprintf("%s ka %s", r.Amount.Rupees(), when))
	}
	return ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("%s ke %d reminder: %s.", customer.Name, len(reminders), strings.Join(parts, ", ")),
		Data:    map[string]any{"customer": customer.Name, "reminders": entries},
	}
}
