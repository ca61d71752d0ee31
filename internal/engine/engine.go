// Package engine executes extracted commands against the data services. It
// is the only layer that writes business state; the session above it owns
// conversation flow and the store below it owns transactions.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nileshdk/bolikhata/internal/cache"
	"github.com/nileshdk/bolikhata/internal/engineerr"
	"github.com/nileshdk/bolikhata/internal/intent"
	"github.com/nileshdk/bolikhata/internal/mailer"
	"github.com/nileshdk/bolikhata/internal/reminder"
	"github.com/nileshdk/bolikhata/internal/store"
)

// ExecutionResult is the uniform outcome of one command. Business failures
// are results, not errors: the session never crashes on a failed command.
type ExecutionResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// CustomerMemory is the slice of session memory the engine needs: the
// customer ring for reference resolution and promotion of the customer a
// command acted on.
type CustomerMemory interface {
	// ActiveCustomer returns the most recently referenced customer.
	ActiveCustomer() (id, name string, ok bool)

	// RingNames returns the recently referenced customer names, newest
	// first, for fuzzy candidate boosting.
	RingNames() []string

	// Promote records that a command acted on this customer, making it the
	// active one.
	Promote(id, name string)
}

// AdminPolicy reports whether the session's operator may run admin-only
// commands. Channel-level wiring decides what "admin" means.
type AdminPolicy func(sessionID string) bool

// Option configures an Engine.
type Option func(*Engine)

// WithMatchThreshold overrides the fuzzy-resolution score floor.
func WithMatchThreshold(v float64) Option {
	return func(e *Engine) { e.matchThreshold = v }
}

// WithAdminPolicy installs the admin check for DELETE_CUSTOMER_DATA.
func WithAdminPolicy(p AdminPolicy) Option {
	return func(e *Engine) { e.isAdmin = p }
}

// WithAdminEmail sets the shop owner's address for deletion one-time codes.
func WithAdminEmail(addr string) Option {
	return func(e *Engine) { e.adminEmail = addr }
}

// WithClock overrides time for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine dispatches commands. Safe for concurrent use across sessions.
type Engine struct {
	store     *store.Store
	cache     *cache.Tiered
	scheduler *reminder.Scheduler
	sender    mailer.Sender
	loc       *time.Location
	log       *slog.Logger

	matchThreshold float64
	isAdmin        AdminPolicy
	adminEmail     string
	now            func() time.Time
}

// New creates an Engine. sender may be nil (email features degrade with a
// spoken explanation); cache may be nil.
func New(st *store.Store, c *cache.Tiered, sched *reminder.Scheduler, sender mailer.Sender, loc *time.Location, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	e := &Engine{
		store:          st,
		cache:          c,
		scheduler:      sched,
		sender:         sender,
		loc:            loc,
		log:            log,
		matchThreshold: 0.85,
		isAdmin:        func(string) bool { return false },
		now:            time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute runs one command for a session. SWITCH_LANGUAGE and the recording
// markers are consumed by the session before dispatch and never arrive here.
func (e *Engine) Execute(ctx context.Context, ex intent.Extraction, sessionID string, mem CustomerMemory) ExecutionResult {
	var customer *store.Customer
	if intent.NeedsCustomer(ex.Intent) && ex.Intent != intent.CreateCustomer {
		var res *ExecutionResult
		customer, res = e.resolveCustomer(ctx, ex.Entities, mem)
		if res != nil {
			return *res
		}
	}

	switch ex.Intent {
	case intent.CreateInvoice:
		return e.createInvoice(ctx, ex.Entities, sessionID, customer)
	case intent.ConfirmInvoice:
		return e.confirmInvoice(ctx, ex.Entities, sessionID)
	case intent.ShowPendingInvoice:
		return e.showPendingInvoices(ctx, sessionID)
	case intent.CancelInvoice:
		return e.cancelInvoice(ctx, ex.Entities, sessionID, customer)
	case intent.RecordPayment:
		return e.recordPayment(ctx, ex.Entities, customer)
	case intent.AddCredit:
		return e.addCredit(ctx, ex.Entities, customer)
	case intent.CheckBalance:
		return e.checkBalance(ctx, customer)
	case intent.CheckStock:
		return e.checkStock(ctx, ex.Entities)
	case intent.GetCustomerInfo:
		return e.getCustomerInfo(customer)
	case intent.ListCustomerBalances:
		return e.listCustomerBalances(ctx)
	case intent.TotalPendingAmount:
		return e.totalPending(ctx)
	case intent.DailySummary:
		return e.dailySummary(ctx)
	case intent.CreateCustomer:
		return e.createCustomer(ctx, ex.Entities, mem)
	case intent.UpdateCustomer, intent.UpdateCustomerPhone:
		return e.updateCustomer(ctx, ex.Entities, customer)
	case intent.DeleteCustomerData:
		return e.deleteCustomerData(ctx, ex.Entities, sessionID, customer)
	case intent.CreateReminder:
		return e.createReminder(ctx, ex.Entities, customer)
	case intent.ModifyReminder:
		return e.modifyReminder(ctx, ex.Entities, customer)
	case intent.CancelReminder:
		return e.cancelReminder(ctx, ex.Entities, customer)
	case intent.ListReminders:
		return e.listReminders(ctx, customer)
	case intent.ProvideEmail:
		return e.provideEmail(ctx, ex.Entities, sessionID)
	case intent.SendInvoice:
		return e.sendInvoice(ctx, ex.Entities, sessionID, customer)
	case intent.ToggleGST:
		return e.toggleGST(ctx, sessionID)
	default:
		return ExecutionResult{
			Success: false,
			Message: "Samajh nahi aaya, dobara boliye.",
			Error:   "UNKNOWN_INTENT",
		}
	}
}

// fail converts a categorized error into an ExecutionResult.
func fail(err error) ExecutionResult {
	var ee *engineerr.Error
	if errors.As(err, &ee) {
		return ExecutionResult{
			Success: false,
			Message: ee.Msg,
			Data:    ee.Data,
			Error:   ee.Code,
		}
	}
	return ExecutionResult{
		Success: false,
		Message: "Kuch gadbad ho gayi, dobara koshish kijiye.",
		Error:   string(engineerr.KindUnknown),
	}
}

// invalidateCustomer clears every cached value derived from customer state.
func (e *Engine) invalidateCustomer(ctx context.Context) {
	if e.cache != nil {
		e.cache.InvalidatePrefix(ctx, "customer:")
	}
}
