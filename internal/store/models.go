package store

import (
	"time"

	"github.com/nileshdk/bolikhata/pkg/money"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "DRAFT"
	InvoiceConfirmed InvoiceStatus = "CONFIRMED"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

// EntryType classifies a ledger entry.
type EntryType string

const (
	// EntryOpeningBalance seeds a customer's balance when they are first
	// recorded. Counts toward what the customer owes, like a debit.
	EntryOpeningBalance EntryType = "OPENING_BALANCE"

	// EntryDebit increases what the customer owes (sale or credit given).
	EntryDebit EntryType = "DEBIT"

	// EntryCredit decreases what the customer owes (payment received).
	EntryCredit EntryType = "CREDIT"
)

// PaymentMode is how a payment was received. Required on CREDIT entries.
type PaymentMode string

const (
	PayCash  PaymentMode = "cash"
	PayUPI   PaymentMode = "upi"
	PayCard  PaymentMode = "card"
	PayOther PaymentMode = "other"
)

// IsValid reports whether m is a recognised payment mode.
func (m PaymentMode) IsValid() bool {
	switch m {
	case PayCash, PayUPI, PayCard, PayOther:
		return true
	}
	return false
}

// ReminderStatus is the lifecycle state of a payment reminder.
type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderSent      ReminderStatus = "sent"
	ReminderFailed    ReminderStatus = "failed"
	ReminderCancelled ReminderStatus = "cancelled"
)

// Customer is a shop customer. Names are not unique; resolution is fuzzy
// matching at runtime. Balance is signed: positive means the customer owes
// the shop.
type Customer struct {
	ID        string
	Name      string
	Nickname  string
	Landmark  string
	Area      string
	City      string
	Phone     string
	Email     string
	GSTIN     string
	Balance   money.Amount
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Product is a sellable item. Products referenced by an invoice before they
// are priced are auto-created at price 0 and flagged new.
type Product struct {
	ID        string
	Name      string
	Unit      string
	Price     money.Amount
	Stock     int
	IsNew     bool
	CreatedAt time.Time
}

// LowStockThreshold is the stock level at or below which a product is
// reported as running low.
const LowStockThreshold = 5

// LowStock reports whether the product needs restocking.
func (p Product) LowStock() bool { return p.Stock <= LowStockThreshold }

// Invoice is a bill for a customer. Stock and ledger move when the draft row
// is created; confirmation only flips the status.
type Invoice struct {
	ID         string
	CustomerID string
	Total      money.Amount
	Status     InvoiceStatus
	GST        bool
	SessionID  string
	Sent       bool
	Items      []LineItem
	CreatedAt  time.Time
}

// LineItem is one invoice line with the unit price snapshotted at creation.
type LineItem struct {
	ID        string
	InvoiceID string
	ProductID string
	Product   string
	Quantity  int
	UnitPrice money.Amount
	LineTotal money.Amount
}

// LedgerEntry is one append-only row in a customer's ledger. Amount is
// always positive; the type carries the direction.
type LedgerEntry struct {
	ID          string
	CustomerID  string
	Type        EntryType
	Amount      money.Amount
	PaymentMode PaymentMode
	Description string
	CreatedAt   time.Time
}

// Reminder is a scheduled payment nudge delivered by the queue worker.
type Reminder struct {
	ID            string
	CustomerID    string
	Amount        money.Amount
	ScheduledTime time.Time
	Channels      []string
	Message       string
	Notes         string
	Status        ReminderStatus
	RetryCount    int
	LastAttempt   *time.Time
	SentAt        *time.Time
	CreatedAt     time.Time
}

// DailySummary aggregates one calendar day of business.
type DailySummary struct {
	Date          time.Time
	TotalSales    money.Amount
	TotalPayments money.Amount
	ByMode        map[PaymentMode]money.Amount
	PendingAmount money.Amount
	InvoiceCount  int
}
