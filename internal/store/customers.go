package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nileshdk/bolikhata/internal/engineerr"
	"github.com/nileshdk/bolikhata/pkg/money"
)

// CustomerService owns the customers table. Obtain via [Store.Customers].
type CustomerService struct {
	pool *pgxpool.Pool
}

const customerColumns = `id, name, nickname, landmark, area, city, phone, email, gstin, balance, created_at, updated_at`

// CustomerInput holds the writable fields of a customer.
type CustomerInput struct {
	Name     string
	Nickname string
	Landmark string
	Area     string
	City     string
	Phone    string
	Email    string
	GSTIN    string

	// OpeningBalance, when non-zero, seeds the ledger with an
	// OPENING_BALANCE entry in the same transaction as the insert.
	OpeningBalance money.Amount
}

// Create inserts a new customer. A non-empty phone must be unique; a clash
// fails with DUPLICATE_FOUND carrying the existing customer's id.
func (s *CustomerService) Create(ctx context.Context, in CustomerInput) (*Customer, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, engineerr.New(engineerr.KindValidation, "", "customer name is required")
	}
	if in.Phone != "" {
		if existing, err := s.GetByPhone(ctx, in.Phone); err == nil {
			return nil, engineerr.Newf(engineerr.KindConflict, engineerr.CodeDuplicateFound,
				"customer with phone %s already exists", in.Phone).
				WithData(map[string]any{"existingId": existing.ID, "existingName": existing.Name})
		} else if engineerr.KindOf(err) != engineerr.KindNotFound {
			return nil, err
		}
	}

	id := uuid.NewString()
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		const q = `
			INSERT INTO customers (id, name, nickname, landmark, area, city, phone, email, gstin, balance)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		if _, err := tx.Exec(ctx, q,
			id, in.Name, in.Nickname, in.Landmark, in.Area, in.City,
			in.Phone, in.Email, in.GSTIN, in.OpeningBalance,
		); err != nil {
			return engineerr.Wrap(engineerr.KindDatabase, "", "create customer", err)
		}
		if !in.OpeningBalance.IsZero() {
			if err := insertLedgerEntry(ctx, tx, LedgerEntry{
				ID:          uuid.NewString(),
				CustomerID:  id,
				Type:        EntryOpeningBalance,
				Amount:      in.OpeningBalance,
				Description: "opening balance",
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a customer by primary key.
func (s *CustomerService) GetByID(ctx context.Context, id string) (*Customer, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	return scanCustomer(row, "id "+id)
}

// GetByPhone fetches a customer by exact phone digits.
func (s *CustomerService) GetByPhone(ctx context.Context, phone string) (*Customer, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE phone = $1`, phone)
	return scanCustomer(row, "phone "+phone)
}

// Search returns candidate customers for a spoken query. Exact name matches
// come first, then phone substring matches, then a broad name/nickname ILIKE
// sweep. The business engine layers the fuzzy matcher on top of this set.
func (s *CustomerService) Search(ctx context.Context, query string, limit int) ([]Customer, error) {
	if limit <= 0 {
		limit = 25
	}
	const q = `
		SELECT ` + customerColumns + `
		FROM   customers
		WHERE  lower(name) = lower($1)
		   OR  ($1 ~ '^[0-9]+$' AND phone LIKE '%' || $1 || '%')
		   OR  name ILIKE '%' || $1 || '%'
		   OR  nickname ILIKE '%' || $1 || '%'
		ORDER  BY (lower(name) = lower($1)) DESC, updated_at DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "search customers", err)
	}
	return collectCustomers(rows)
}

// List returns all customers ordered by name. Used for the balance overview
// and the customer-list cache snapshot.
func (s *CustomerService) List(ctx context.Context) ([]Customer, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY lower(name)`)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "list customers", err)
	}
	return collectCustomers(rows)
}

// CustomerUpdate holds optional field updates. Nil pointers leave the column
// untouched.
type CustomerUpdate struct {
	Name     *string
	Nickname *string
	Landmark *string
	Area     *string
	City     *string
	Phone    *string
	Email    *string
	GSTIN    *string
}

// Update applies the non-nil fields of upd to the customer. Setting a phone
// that belongs to another customer fails with DUPLICATE_FOUND.
func (s *CustomerService) Update(ctx context.Context, id string, upd CustomerUpdate) (*Customer, error) {
	if upd.Phone != nil && *upd.Phone != "" {
		if existing, err := s.GetByPhone(ctx, *upd.Phone); err == nil && existing.ID != id {
			return nil, engineerr.Newf(engineerr.KindConflict, engineerr.CodeDuplicateFound,
				"phone %s already belongs to %s", *upd.Phone, existing.Name).
				WithData(map[string]any{"existingId": existing.ID, "existingName": existing.Name})
		} else if err != nil && engineerr.KindOf(err) != engineerr.KindNotFound {
			return nil, err
		}
	}

	sets := []string{"updated_at = now()"}
	args := []any{id}
	set := func(col string, v *string) {
		if v != nil {
			args = append(args, *v)
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	set("name", upd.Name)
	set("nickname", upd.Nickname)
	set("landmark", upd.Landmark)
	set("area", upd.Area)
	set("city", upd.City)
	set("phone", upd.Phone)
	set("email", upd.Email)
	set("gstin", upd.GSTIN)

	q := "UPDATE customers SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "update customer", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, engineerr.Newf(engineerr.KindNotFound, engineerr.CodeCustomerNotFound,
			"customer %s not found", id)
	}
	return s.GetByID(ctx, id)
}

// DeleteData removes every trace of a customer in one transaction: invoices
// (line items cascade), ledger entries, reminders, the pending deletion OTP,
// and finally the customer row. Callers gate this behind OTP verification.
func (s *CustomerService) DeleteData(ctx context.Context, id string) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		statements := []string{
			`DELETE FROM invoices WHERE customer_id = $1`,
			`DELETE FROM ledger_entries WHERE customer_id = $1`,
			`DELETE FROM reminders WHERE customer_id = $1`,
			`DELETE FROM deletion_otps WHERE customer_id = $1`,
		}
		for _, q := range statements {
			if _, err := tx.Exec(ctx, q, id); err != nil {
				return engineerr.Wrap(engineerr.KindDatabase, "", "delete customer data", err)
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
		if err != nil {
			return engineerr.Wrap(engineerr.KindDatabase, "", "delete customer", err)
		}
		if tag.RowsAffected() == 0 {
			return engineerr.Newf(engineerr.KindNotFound, engineerr.CodeCustomerNotFound,
				"customer %s not found", id)
		}
		return nil
	})
}

func scanCustomer(row pgx.Row, what string) (*Customer, error) {
	var c Customer
	err := row.Scan(
		&c.ID, &c.Name, &c.Nickname, &c.Landmark, &c.Area, &c.City,
		&c.Phone, &c.Email, &c.GSTIN, &c.Balance, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engineerr.Newf(engineerr.KindNotFound, engineerr.CodeCustomerNotFound,
			"customer with %s not found", what)
	}
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "scan customer", err)
	}
	return &c, nil
}

func collectCustomers(rows pgx.Rows) ([]Customer, error) {
	customers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Customer, error) {
		var c Customer
		err := row.Scan(
			&c.ID, &c.Name, &c.Nickname, &c.Landmark, &c.Area, &c.City,
			&c.Phone, &c.Email, &c.GSTIN, &c.Balance, &c.CreatedAt, &c.UpdatedAt,
		)
		return c, err
	})
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "scan customers", err)
	}
	if customers == nil {
		customers = []Customer{}
	}
	return customers, nil
}
