// Package intent turns final transcripts into structured commands. The LLM
// proposes a JSON extraction; the deterministic post-processing in this
// package is what makes the output reliable.
package intent

import "strings"

// Intent is one command from the closed vocabulary.
type Intent string

const (
	CreateInvoice        Intent = "CREATE_INVOICE"
	ConfirmInvoice       Intent = "CONFIRM_INVOICE"
	ShowPendingInvoice   Intent = "SHOW_PENDING_INVOICE"
	ToggleGST            Intent = "TOGGLE_GST"
	CancelInvoice        Intent = "CANCEL_INVOICE"
	CreateReminder       Intent = "CREATE_REMINDER"
	CancelReminder       Intent = "CANCEL_REMINDER"
	ModifyReminder       Intent = "MODIFY_REMINDER"
	ListReminders        Intent = "LIST_REMINDERS"
	RecordPayment        Intent = "RECORD_PAYMENT"
	AddCredit            Intent = "ADD_CREDIT"
	CheckBalance         Intent = "CHECK_BALANCE"
	CheckStock           Intent = "CHECK_STOCK"
	CreateCustomer       Intent = "CREATE_CUSTOMER"
	UpdateCustomer       Intent = "UPDATE_CUSTOMER"
	UpdateCustomerPhone  Intent = "UPDATE_CUSTOMER_PHONE"
	GetCustomerInfo      Intent = "GET_CUSTOMER_INFO"
	DeleteCustomerData   Intent = "DELETE_CUSTOMER_DATA"
	ListCustomerBalances Intent = "LIST_CUSTOMER_BALANCES"
	TotalPendingAmount   Intent = "TOTAL_PENDING_AMOUNT"
	DailySummary         Intent = "DAILY_SUMMARY"
	SwitchLanguage       Intent = "SWITCH_LANGUAGE"
	ProvideEmail         Intent = "PROVIDE_EMAIL"
	SendInvoice          Intent = "SEND_INVOICE"
	StartRecording       Intent = "START_RECORDING"
	StopRecording        Intent = "STOP_RECORDING"
	Unknown              Intent = "UNKNOWN"
)

// vocabulary is the closed intent set. Anything else normalizes to UNKNOWN.
var vocabulary = map[Intent]bool{
	CreateInvoice: true, ConfirmInvoice: true, ShowPendingInvoice: true,
	ToggleGST: true, CancelInvoice: true,
	CreateReminder: true, CancelReminder: true, ModifyReminder: true, ListReminders: true,
	RecordPayment: true, AddCredit: true, CheckBalance: true, CheckStock: true,
	CreateCustomer: true, UpdateCustomer: true, UpdateCustomerPhone: true,
	GetCustomerInfo: true, DeleteCustomerData: true,
	ListCustomerBalances: true, TotalPendingAmount: true, DailySummary: true,
	SwitchLanguage: true, ProvideEmail: true, SendInvoice: true,
	StartRecording: true, StopRecording: true, Unknown: true,
}

// risky intents always require spoken confirmation regardless of extraction
// confidence.
var risky = map[Intent]bool{
	DeleteCustomerData: true,
	CancelInvoice:      true,
	CancelReminder:     true,
}

// Normalize upper-snake-cases a raw intent string and maps anything outside
// the vocabulary to UNKNOWN.
func Normalize(raw string) Intent {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	in := Intent(strings.ToUpper(s))
	if !vocabulary[in] {
		return Unknown
	}
	return in
}

// IsRisky reports whether in always requires confirmation.
func IsRisky(in Intent) bool { return risky[in] }

// NeedsCustomer reports whether the engine must resolve a customer before
// dispatching in.
func NeedsCustomer(in Intent) bool {
	switch in {
	case CreateInvoice, CancelInvoice, RecordPayment, AddCredit, CheckBalance,
		GetCustomerInfo, CreateReminder, ModifyReminder, CancelReminder, ListReminders,
		UpdateCustomer, UpdateCustomerPhone, DeleteCustomerData, SendInvoice:
		return true
	}
	return false
}

// All returns the vocabulary in prompt order.
func All() []Intent {
	return []Intent{
		CreateInvoice, ConfirmInvoice, ShowPendingInvoice, ToggleGST, CancelInvoice,
		CreateReminder, CancelReminder, ModifyReminder, ListReminders,
		RecordPayment, AddCredit, CheckBalance, CheckStock,
		CreateCustomer, UpdateCustomer, UpdateCustomerPhone, GetCustomerInfo,
		DeleteCustomerData, ListCustomerBalances, TotalPendingAmount, DailySummary,
		SwitchLanguage, ProvideEmail, SendInvoice, StartRecording, StopRecording,
		Unknown,
	}
}
