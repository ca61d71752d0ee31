package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nileshdk/bolikhata/internal/engineerr"
	"github.com/nileshdk/bolikhata/pkg/money"
)

// LedgerService owns the append-only ledger_entries table and keeps the
// denormalized customer balance in lockstep with it. Obtain via
// [Store.Ledger].
//
// Every method writes the entry and the balance delta in one transaction, so
// the invariant balance = Σ(DEBIT) + Σ(OPENING_BALANCE) − Σ(CREDIT) holds
// after every commit.
type LedgerService struct {
	pool *pgxpool.Pool
}

// RecordPayment appends a CREDIT entry and decrements the customer balance.
// mode is mandatory. Returns the new balance.
func (s *LedgerService) RecordPayment(ctx context.Context, customerID string, amount money.Amount, mode PaymentMode, description string) (money.Amount, error) {
	if !amount.IsPositive() {
		return money.Zero, engineerr.New(engineerr.KindValidation, "", "payment amount must be positive")
	}
	if !mode.IsValid() {
		return money.Zero, engineerr.Newf(engineerr.KindValidation, "",
			"payment mode %q is invalid; valid modes: cash, upi, card, other", mode)
	}

	var balance money.Amount
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := insertLedgerEntry(ctx, tx, LedgerEntry{
			ID:          uuid.NewString(),
			CustomerID:  customerID,
			Type:        EntryCredit,
			Amount:      amount,
			PaymentMode: mode,
			Description: description,
		}); err != nil {
			return err
		}
		var err error
		balance, err = adjustBalance(ctx, tx, customerID, amount.Neg())
		return err
	})
	return balance, err
}

// AddCredit appends a DEBIT entry (goods given on credit outside an invoice)
// and increments the customer balance. A non-empty description is mandatory
// so the ledger stays auditable. Returns the new balance.
func (s *LedgerService) AddCredit(ctx context.Context, customerID string, amount money.Amount, description string) (money.Amount, error) {
	if !amount.IsPositive() {
		return money.Zero, engineerr.New(engineerr.KindValidation, "", "credit amount must be positive")
	}
	if strings.TrimSpace(description) == "" {
		return money.Zero, engineerr.New(engineerr.KindValidation, "", "credit entries require a description")
	}

	var balance money.Amount
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := insertLedgerEntry(ctx, tx, LedgerEntry{
			ID:          uuid.NewString(),
			CustomerID:  customerID,
			Type:        EntryDebit,
			Amount:      amount,
			Description: description,
		}); err != nil {
			return err
		}
		var err error
		balance, err = adjustBalance(ctx, tx, customerID, amount)
		return err
	})
	return balance, err
}

// SetOpeningBalance seeds a customer's balance, allowed at most once per
// customer. A second attempt fails with OPENING_BALANCE_EXISTS.
func (s *LedgerService) SetOpeningBalance(ctx context.Context, customerID string, amount money.Amount) (money.Amount, error) {
	if !amount.IsPositive() {
		return money.Zero, engineerr.New(engineerr.KindValidation, "", "opening balance must be positive")
	}

	var balance money.Amount
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE customer_id = $1 AND type = $2)`,
			customerID, EntryOpeningBalance).Scan(&exists)
		if err != nil {
			return engineerr.Wrap(engineerr.KindDatabase, "", "check opening balance", err)
		}
		if exists {
			return engineerr.New(engineerr.KindConflict, engineerr.CodeOpeningBalanceExists,
				"customer already has an opening balance")
		}
		if err := insertLedgerEntry(ctx, tx, LedgerEntry{
			ID:          uuid.NewString(),
			CustomerID:  customerID,
			Type:        EntryOpeningBalance,
			Amount:      amount,
			Description: "opening balance",
		}); err != nil {
			return err
		}
		balance, err = adjustBalance(ctx, tx, customerID, amount)
		return err
	})
	return balance, err
}

// EntriesForCustomer returns a customer's ledger, newest first.
func (s *LedgerService) EntriesForCustomer(ctx context.Context, customerID string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT id, customer_id, type, amount, payment_mode, description, created_at
		FROM   ledger_entries
		WHERE  customer_id = $1
		ORDER  BY created_at DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, customerID, limit)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "fetch ledger entries", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (LedgerEntry, error) {
		var e LedgerEntry
		err := row.Scan(&e.ID, &e.CustomerID, &e.Type, &e.Amount, &e.PaymentMode, &e.Description, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "scan ledger entries", err)
	}
	if entries == nil {
		entries = []LedgerEntry{}
	}
	return entries, nil
}

// TotalPending sums positive balances across all customers.
func (s *LedgerService) TotalPending(ctx context.Context) (money.Amount, int, error) {
	var (
		total money.Amount
		count int
	)
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(balance), 0), COUNT(*) FROM customers WHERE balance > 0`,
	).Scan(&total, &count)
	if err != nil {
		return money.Zero, 0, engineerr.Wrap(engineerr.KindDatabase, "", "total pending", err)
	}
	return total, count, nil
}

// insertLedgerEntry appends one row inside an open transaction. Shared by the
// ledger, invoice, and customer services.
func insertLedgerEntry(ctx context.Context, tx pgx.Tx, e LedgerEntry) error {
	const q = `
		INSERT INTO ledger_entries (id, customer_id, type, amount, payment_mode, description)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.Exec(ctx, q, e.ID, e.CustomerID, e.Type, e.Amount, string(e.PaymentMode), e.Description); err != nil {
		return engineerr.Wrap(engineerr.KindDatabase, "", "insert ledger entry", err)
	}
	return nil
}

// adjustBalance applies a signed delta to the customer balance and returns
// the new value.
func adjustBalance(ctx context.Context, tx pgx.Tx, customerID string, delta money.Amount) (money.Amount, error) {
	var balance money.Amount
	err := tx.QueryRow(ctx,
		`UPDATE customers SET balance = balance + $2, updated_at = now() WHERE id = $1 RETURNING balance`,
		customerID, delta).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return money.Zero, engineerr.Newf(engineerr.KindNotFound, engineerr.CodeCustomerNotFound,
				"customer %s not found", customerID)
		}
		return money.Zero, engineerr.Wrap(engineerr.KindDatabase, "", "adjust balance", err)
	}
	return balance, nil
}
