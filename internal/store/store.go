// Package store provides the PostgreSQL-backed data services for BoliKhata:
// customers, products, invoices, the append-only ledger, payment reminders,
// and the deletion OTP store.
//
// All services share a single [pgxpool.Pool]. Every money-moving intent maps
// to exactly one transactional method here, so the balance invariant — a
// customer's balance equals the sum of DEBIT and OPENING_BALANCE entries
// minus the sum of CREDIT entries — holds after every commit.
//
// Usage:
//
//	st, err := store.New(ctx, dsn, 0)
//	if err != nil { … }
//	defer st.Close()
//
//	inv, err := st.Invoices.CreateDraft(ctx, store.DraftInput{…})
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the central PostgreSQL-backed data layer. Obtain one via [New];
// all services and operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool

	Customers *CustomerService
	Products  *ProductService
	Invoices  *InvoiceService
	Ledger    *LedgerService
	Reminders *ReminderService
	OTP       *OTPService
}

// New creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, and runs [Migrate] to ensure all required tables exist.
// maxConns caps the pool size; 0 keeps the pgx default.
func New(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return newStore(pool), nil
}

func newStore(pool *pgxpool.Pool) *Store {
	s := &Store{pool: pool}
	s.Customers = &CustomerService{pool: pool}
	s.Products = &ProductService{pool: pool}
	s.Invoices = &InvoiceService{pool: pool}
	s.Ledger = &LedgerService{pool: pool}
	s.Reminders = &ReminderService{pool: pool}
	s.OTP = &OTPService{pool: pool}
	return s
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// withTx runs fn inside a transaction, committing on nil and rolling back on
// error or panic.
func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}
	return nil
}
