package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/nileshdk/bolikhata/internal/engineerr"
	"github.com/nileshdk/bolikhata/internal/intent"
	"github.com/nileshdk/bolikhata/internal/respond"
	"github.com/nileshdk/bolikhata/internal/store"
	"github.com/nileshdk/bolikhata/pkg/money"
)

// createCustomer registers a new customer and makes them the active one. A
// duplicate phone surfaces the existing customer instead of creating a twin.
func (e *Engine) createCustomer(ctx context.Context, ents intent.Entities, mem CustomerMemory) ExecutionResult {
	name := strings.TrimSpace(ents.String("name"))
	if name == "" {
		name = strings.TrimSpace(ents.String("customer"))
	}
	if name == "" {
		return ExecutionResult{
			Success: false,
			Message: "Customer ka naam boliye.",
			Error:   string(engineerr.KindValidation),
		}
	}

	in := store.CustomerInput{
		Name:     name,
		Nickname: ents.String("nickname"),
		Landmark: ents.String("landmark"),
		Area:     ents.String("area"),
		City:     ents.String("city"),
		Phone:    ents.String("phone"),
		Email:    ents.String("email"),
		GSTIN:    ents.String("gstin"),
	}
	if ob := ents.Float("openingBalance"); ob > 0 {
		in.OpeningBalance = money.FromFloat(ob)
	}

	c, err := e.store.Customers.Create(ctx, in)
	if err != nil {
		return fail(err)
	}
	mem.Promote(c.ID, c.Name)
	e.invalidateCustomer(ctx)

	msg := fmt.Sprintf("%s customer add ho gaye.", c.Name)
	if !in.OpeningBalance.IsZero() {
		msg = fmt.Sprintf("%s customer add ho gaye, purana baki %s likh diya.",
			c.Name, in.OpeningBalance.Rupees())
	}
	return ExecutionResult{
		Success: true,
		Message: msg,
		Data: map[string]any{
			"customerId": c.ID,
			"name":       c.Name,
			"phone":      c.Phone,
			"balance":    c.Balance.Float64(),
		},
	}
}

// updateCustomer applies the spoken field changes to the resolved customer.
// UPDATE_CUSTOMER_PHONE arrives here too; post-processing has already turned
// spoken digits into a digit string.
func (e *Engine) updateCustomer(ctx context.Context, ents intent.Entities, customer *store.Customer) ExecutionResult {
	var upd store.CustomerUpdate
	changed := []string{}
	set := func(field string, dst **string, keys ...string) {
		for _, key := range keys {
			if v := strings.TrimSpace(ents.String(key)); v != "" {
				*dst = &v
				changed = append(changed, field)
				return
			}
		}
	}
	set("naam", &upd.Name, "newName")
	set("nickname", &upd.Nickname, "nickname")
	set("phone", &upd.Phone, "phone")
	set("email", &upd.Email, "email")
	set("landmark", &upd.Landmark, "landmark")
	set("area", &upd.Area, "area")
	set("city", &upd.City, "city")
	set("GSTIN", &upd.GSTIN, "gstin")

	if len(changed) == 0 {
		return ExecutionResult{
			Success: false,
			Message: "Kya update karna hai? Phone, email ya address boliye.",
			Error:   string(engineerr.KindValidation),
		}
	}

	c, err := e.store.Customers.Update(ctx, customer.ID, upd)
	if err != nil {
		return fail(err)
	}
	e.invalidateCustomer(ctx)

	msg := fmt.Sprintf("%s ka %s update ho gaya.", c.Name, strings.Join(changed, ", "))
	if upd.Phone != nil {
		msg = fmt.Sprintf("%s ka number %s save ho gaya.", c.Name, *upd.Phone)
	}
	return ExecutionResult{
		Success: true,
		Message: msg,
		Data: map[string]any{
			"customerId": c.ID,
			"name":       c.Name,
			"updated":    changed,
			"phone":      c.Phone,
		},
	}
}

// getCustomerInfo reads back the resolved customer's record. The phone comes
// back twice: raw digits for the screen and the spoken digit words so TTS
// reads the number out at a pace the listener can follow.
func (e *Engine) getCustomerInfo(customer *store.Customer) ExecutionResult {
	parts := []string{fmt.Sprintf("balance %s", customer.Balance.Rupees())}
	phoneSpoken := ""
	if customer.Phone != "" {
		phoneSpoken = respond.SpeakPhone(customer.Phone, respond.Hinglish)
		parts = append(parts, "phone "+phoneSpoken)
	}
	if customer.Email != "" {
		parts = append(parts, "email "+customer.Email)
	}
	if loc := customerLocation(customer); loc != "" {
		parts = append(parts, loc)
	}

	return ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("%s: %s.", customer.Name, strings.Join(parts, ", ")),
		Data: map[string]any{
			"customerId":  customer.ID,
			"name":        customer.Name,
			"nickname":    customer.Nickname,
			"phone":       customer.Phone,
			"phoneSpoken": phoneSpoken,
			"email":       customer.Email,
			"landmark":    customer.Landmark,
			"area":        customer.Area,
			"city":        customer.City,
			"gstin":       customer.GSTIN,
			"balance":     customer.Balance.Float64(),
		},
	}
}

// deleteCustomerData is the two-phase wipe. Admin-only. The first call
// issues a one-time code and mails it to the shop owner's address; the
// second call, carrying the spoken code, deletes every trace of the
// customer in one transaction. The code never goes to the customer and
// never appears in the result payload.
func (e *Engine) deleteCustomerData(ctx context.Context, ents intent.Entities, sessionID string, customer *store.Customer) ExecutionResult {
	if !e.isAdmin(sessionID) {
		return ExecutionResult{
			Success: false,
			Message: "Customer data delete karna sirf admin ke liye hai.",
			Error:   engineerr.CodeNotAdmin,
		}
	}

	otp := strings.TrimSpace(ents.String("otp"))
	if otp == "" {
		code, err := e.store.OTP.Issue(ctx, customer.ID)
		if err != nil {
			return fail(err)
		}
		if e.sender != nil && e.adminEmail != "" {
			subject := "Data deletion confirmation code"
			body := fmt.Sprintf("Deletion code for %s: %s\nValid for 10 minutes.", customer.Name, code)
			if err := e.sender.Send(ctx, e.adminEmail, subject, body); err != nil {
				e.log.Warn("deletion code email failed", "customer", customer.ID, "error", err)
			}
		} else {
			e.log.Warn("no admin email configured for deletion code", "customer", customer.ID)
		}
		return ExecutionResult{
			Success: false,
			Message: fmt.Sprintf("%s ka data delete karne ke liye admin email pe OTP bheja hai. Code boliye.", customer.Name),
			Data:    map[string]any{"customerId": customer.ID, "customer": customer.Name},
			Error:   engineerr.CodeOTPSent,
		}
	}

	if err := e.store.OTP.Verify(ctx, customer.ID, otp); err != nil {
		return fail(err)
	}
	if err := e.store.Customers.DeleteData(ctx, customer.ID); err != nil {
		return fail(err)
	}
	e.invalidateCustomer(ctx)
	e.log.Info("customer data deleted", "customer", customer.ID, "session", sessionID)

	return ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("%s ka saara data delete ho gaya: invoices, ledger, reminders sab.", customer.Name),
		Data:    map[string]any{"customer": customer.Name},
	}
}

func customerLocation(c *store.Customer) string {
	var parts []string
	for _, p := range []string{c.Landmark, c.Area, c.City} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
