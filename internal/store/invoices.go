package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nileshdk/bolikhata/internal/engineerr"
	"github.com/nileshdk/bolikhata/pkg/money"
)

// gstNum/gstDen express the 18% GST surcharge as an exact decimal ratio.
const (
	gstNum = 18
	gstDen = 100
)

// InvoiceService owns invoices and line items. Obtain via [Store.Invoices].
//
// Stock and ledger move when the draft row is created; confirmation only
// flips the status and cancellation writes the compensating entries. A
// dropped session therefore leaves recoverable drafts, never half-applied
// stock.
type InvoiceService struct {
	pool *pgxpool.Pool
}

// DraftItem is one requested invoice line.
type DraftItem struct {
	Product  string
	Quantity int
	Unit     string
}

// DraftInput describes an invoice to create.
type DraftInput struct {
	CustomerID string
	SessionID  string
	Items      []DraftItem
	GST        bool

	// AutoSend creates the invoice already CONFIRMED; the caller then
	// dispatches the delivery side effect.
	AutoSend bool
}

// CreateDraft creates an invoice in one transaction: stock is reserved per
// line, unit prices are snapshotted, a DEBIT ledger entry for the total is
// appended, and the customer balance moves by +total. Unknown products are
// auto-created at price 0 and flagged new.
func (s *InvoiceService) CreateDraft(ctx context.Context, in DraftInput) (*Invoice, error) {
	if len(in.Items) == 0 {
		return nil, engineerr.New(engineerr.KindValidation, "", "invoice needs at least one item")
	}
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return nil, engineerr.Newf(engineerr.KindValidation, "",
				"quantity for %q must be a positive integer", it.Product)
		}
	}

	inv := &Invoice{
		ID:         uuid.NewString(),
		CustomerID: in.CustomerID,
		Status:     InvoiceDraft,
		GST:        in.GST,
		SessionID:  in.SessionID,
	}
	if in.AutoSend {
		inv.Status = InvoiceConfirmed
	}

	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		// One draft per (session, customer). A second draft would reserve
		// stock and debit the ledger twice for what the operator thinks of
		// as one bill.
		if inv.Status == InvoiceDraft {
			var existingID string
			err := tx.QueryRow(ctx,
				`SELECT id FROM invoices
				 WHERE session_id = $1 AND customer_id = $2 AND status = $3
				 LIMIT 1`,
				in.SessionID, in.CustomerID, InvoiceDraft).Scan(&existingID)
			if err == nil {
				return engineerr.New(engineerr.KindConflict, engineerr.CodeDuplicateFound,
					"customer already has a draft invoice in this session; confirm or cancel it first").
					WithData(map[string]any{"existingInvoiceId": existingID})
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return engineerr.Wrap(engineerr.KindDatabase, "", "check existing draft", err)
			}
		}

		var subtotal money.Amount
		for _, it := range in.Items {
			p, err := resolveOrCreateProduct(ctx, tx, it.Product, it.Unit)
			if err != nil {
				return err
			}

			tag, err := tx.Exec(ctx,
				`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`,
				p.ID, it.Quantity)
			if err != nil {
				return engineerr.Wrap(engineerr.KindDatabase, "", "reserve stock", err)
			}
			if tag.RowsAffected() == 0 {
				return engineerr.Newf(engineerr.KindBusinessLogic, engineerr.CodeInsufficientStock,
					"not enough stock of %s (have %d, need %d)", p.Name, p.Stock, it.Quantity).
					WithData(map[string]any{"product": p.Name, "available": p.Stock, "requested": it.Quantity})
			}

			line := LineItem{
				ID:        uuid.NewString(),
				InvoiceID: inv.ID,
				ProductID: p.ID,
				Product:   p.Name,
				Quantity:  it.Quantity,
				UnitPrice: p.Price,
				LineTotal: p.Price.MulInt(int64(it.Quantity)),
			}
			inv.Items = append(inv.Items, line)
			subtotal = subtotal.Add(line.LineTotal)
		}

		inv.Total = subtotal
		if in.GST {
			inv.Total = subtotal.Add(subtotal.MulRat(gstNum, gstDen)).Round2()
		}

		const qInv = `
			INSERT INTO invoices (id, customer_id, total, status, gst, session_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at`
		if err := tx.QueryRow(ctx, qInv,
			inv.ID, inv.CustomerID, inv.Total, inv.Status, inv.GST, inv.SessionID,
		).Scan(&inv.CreatedAt); err != nil {
			return engineerr.Wrap(engineerr.KindDatabase, "", "insert invoice", err)
		}

		const qLine = `
			INSERT INTO line_items (id, invoice_id, product_id, product, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
		for _, line := range inv.Items {
			if _, err := tx.Exec(ctx, qLine,
				line.ID, line.InvoiceID, line.ProductID, line.Product,
				line.Quantity, line.UnitPrice, line.LineTotal,
			); err != nil {
				return engineerr.Wrap(engineerr.KindDatabase, "", "insert line item", err)
			}
		}

		if !inv.Total.IsZero() {
			if err := insertLedgerEntry(ctx, tx, LedgerEntry{
				ID:          uuid.NewString(),
				CustomerID:  inv.CustomerID,
				Type:        EntryDebit,
				Amount:      inv.Total,
				Description: "invoice " + inv.ID,
			}); err != nil {
				return err
			}
			if _, err := adjustBalance(ctx, tx, inv.CustomerID, inv.Total); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Confirm flips a draft to CONFIRMED. Stock and ledger already moved at
// draft creation, so this is a pure status change.
func (s *InvoiceService) Confirm(ctx context.Context, invoiceID string) (*Invoice, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE invoices SET status = $2 WHERE id = $1 AND status = $3`,
		invoiceID, InvoiceConfirmed, InvoiceDraft)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "confirm invoice", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, engineerr.Newf(engineerr.KindNotFound, "",
			"no draft invoice %s to confirm", invoiceID)
	}
	return s.GetByID(ctx, invoiceID)
}

// Cancel voids an invoice in one transaction: status flips to CANCELLED, a
// compensating CREDIT ledger entry reverses the total, stock is restored per
// line, and the customer balance moves by −total. Cancelling twice fails
// with ALREADY_CANCELLED.
func (s *InvoiceService) Cancel(ctx context.Context, invoiceID string) (*Invoice, error) {
	var inv *Invoice
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		inv, err = getInvoiceTx(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		return cancelInvoiceTx(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// CancelOpenForCustomer cancels every DRAFT and CONFIRMED-but-unsent invoice
// for a customer in one transaction. Returns the cancelled invoices.
func (s *InvoiceService) CancelOpenForCustomer(ctx context.Context, customerID string) ([]Invoice, error) {
	var cancelled []Invoice
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id FROM invoices
			 WHERE customer_id = $1
			   AND (status = $2 OR (status = $3 AND NOT sent))
			 ORDER BY created_at`,
			customerID, InvoiceDraft, InvoiceConfirmed)
		if err != nil {
			return engineerr.Wrap(engineerr.KindDatabase, "", "find open invoices", err)
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return engineerr.Wrap(engineerr.KindDatabase, "", "scan open invoices", err)
		}
		for _, id := range ids {
			inv, err := getInvoiceTx(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := cancelInvoiceTx(ctx, tx, inv); err != nil {
				return err
			}
			cancelled = append(cancelled, *inv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// cancelInvoiceTx performs the compensating writes for one invoice inside an
// open transaction. inv's status is updated in place.
func cancelInvoiceTx(ctx context.Context, tx pgx.Tx, inv *Invoice) error {
	if inv.Status == InvoiceCancelled {
		return engineerr.Newf(engineerr.KindConflict, engineerr.CodeAlreadyCancelled,
			"invoice %s is already cancelled", inv.ID)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE invoices SET status = $2 WHERE id = $1`, inv.ID, InvoiceCancelled); err != nil {
		return engineerr.Wrap(engineerr.KindDatabase, "", "cancel invoice", err)
	}

	for _, line := range inv.Items {
		if _, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock + $2 WHERE id = $1`,
			line.ProductID, line.Quantity); err != nil {
			return engineerr.Wrap(engineerr.KindDatabase, "", "restore stock", err)
		}
	}

	if !inv.Total.IsZero() {
		if err := insertLedgerEntry(ctx, tx, LedgerEntry{
			ID:          uuid.NewString(),
			CustomerID:  inv.CustomerID,
			Type:        EntryCredit,
			Amount:      inv.Total,
			PaymentMode: PayOther,
			Description: "cancelled invoice " + inv.ID,
		}); err != nil {
			return err
		}
		if _, err := adjustBalance(ctx, tx, inv.CustomerID, inv.Total.Neg()); err != nil {
			return err
		}
	}

	inv.Status = InvoiceCancelled
	return nil
}

// ToggleGST flips the GST flag on a draft and reprices it. The total delta
// is mirrored into the ledger so the balance invariant keeps holding.
func (s *InvoiceService) ToggleGST(ctx context.Context, invoiceID string) (*Invoice, error) {
	var inv *Invoice
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		inv, err = getInvoiceTx(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != InvoiceDraft {
			return engineerr.Newf(engineerr.KindConflict, "",
				"GST can only be changed on a draft invoice, %s is %s", inv.ID, inv.Status)
		}

		var subtotal money.Amount
		for _, line := range inv.Items {
			subtotal = subtotal.Add(line.LineTotal)
		}
		newGST := !inv.GST
		newTotal := subtotal
		if newGST {
			newTotal = subtotal.Add(subtotal.MulRat(gstNum, gstDen)).Round2()
		}
		delta := newTotal.Sub(inv.Total)

		if _, err := tx.Exec(ctx,
			`UPDATE invoices SET gst = $2, total = $3 WHERE id = $1`,
			inv.ID, newGST, newTotal); err != nil {
			return engineerr.Wrap(engineerr.KindDatabase, "", "toggle gst", err)
		}

		if !delta.IsZero() {
			entry := LedgerEntry{
				ID:          uuid.NewString(),
				CustomerID:  inv.CustomerID,
				Description: "gst adjustment invoice " + inv.ID,
			}
			if delta.IsPositive() {
				entry.Type = EntryDebit
				entry.Amount = delta
			} else {
				entry.Type = EntryCredit
				entry.Amount = delta.Neg()
				entry.PaymentMode = PayOther
			}
			if err := insertLedgerEntry(ctx, tx, entry); err != nil {
				return err
			}
			if _, err := adjustBalance(ctx, tx, inv.CustomerID, delta); err != nil {
				return err
			}
		}

		inv.GST = newGST
		inv.Total = newTotal
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// GetByID fetches an invoice with its line items.
func (s *InvoiceService) GetByID(ctx context.Context, invoiceID string) (*Invoice, error) {
	var inv *Invoice
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		inv, err = getInvoiceTx(ctx, tx, invoiceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// DraftsForSession returns the session's open drafts, oldest first.
func (s *InvoiceService) DraftsForSession(ctx context.Context, sessionID string) ([]Invoice, error) {
	return s.collectInvoices(ctx,
		`SELECT id, customer_id, total, status, gst, session_id, sent, created_at
		 FROM invoices WHERE session_id = $1 AND status = $2 ORDER BY created_at`,
		sessionID, InvoiceDraft)
}

// LatestOpenForCustomer returns the customer's most recent open invoice: a
// DRAFT, or a CONFIRMED one that has not been delivered yet.
func (s *InvoiceService) LatestOpenForCustomer(ctx context.Context, customerID string) (*Invoice, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM invoices
		 WHERE customer_id = $1
		   AND (status = $2 OR (status = $3 AND NOT sent))
		 ORDER BY created_at DESC LIMIT 1`,
		customerID, InvoiceDraft, InvoiceConfirmed).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engineerr.New(engineerr.KindNotFound, "", "customer has no open invoice")
	}
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "find open invoice", err)
	}
	return s.GetByID(ctx, id)
}

// MarkSent records that an invoice has been delivered to the customer.
func (s *InvoiceService) MarkSent(ctx context.Context, invoiceID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE invoices SET sent = true WHERE id = $1`, invoiceID)
	if err != nil {
		return engineerr.Wrap(engineerr.KindDatabase, "", "mark invoice sent", err)
	}
	if tag.RowsAffected() == 0 {
		return engineerr.Newf(engineerr.KindNotFound, "", "invoice %s not found", invoiceID)
	}
	return nil
}

// LatestUnsent returns the most recent CONFIRMED invoice that has not been
// delivered yet, for attaching a just-provided email address.
func (s *InvoiceService) LatestUnsent(ctx context.Context, sessionID string) (*Invoice, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM invoices
		 WHERE session_id = $1 AND status = $2 AND NOT sent
		 ORDER BY created_at DESC LIMIT 1`,
		sessionID, InvoiceConfirmed).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engineerr.New(engineerr.KindNotFound, "", "no invoice is waiting to be sent")
	}
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "find unsent invoice", err)
	}
	return s.GetByID(ctx, id)
}

// DailySummary aggregates the business between dayStart (inclusive) and
// dayEnd (exclusive): confirmed sales, payments received with a per-mode
// split, and the resulting pending amount. Empty days return all zeroes.
func (s *InvoiceService) DailySummary(ctx context.Context, dayStart, dayEnd time.Time) (*DailySummary, error) {
	sum := &DailySummary{
		Date:   dayStart,
		ByMode: make(map[PaymentMode]money.Amount),
	}

	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(total), 0), COUNT(*)
		 FROM invoices
		 WHERE status = $1 AND created_at >= $2 AND created_at < $3`,
		InvoiceConfirmed, dayStart, dayEnd,
	).Scan(&sum.TotalSales, &sum.InvoiceCount)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "summarize sales", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT payment_mode, COALESCE(SUM(amount), 0)
		 FROM ledger_entries
		 WHERE type = $1 AND created_at >= $2 AND created_at < $3
		 GROUP BY payment_mode`,
		EntryCredit, dayStart, dayEnd)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "summarize payments", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			mode   string
			amount money.Amount
		)
		if err := rows.Scan(&mode, &amount); err != nil {
			return nil, engineerr.Wrap(engineerr.KindDatabase, "", "scan payment mode", err)
		}
		if mode == "" {
			mode = string(PayOther)
		}
		sum.ByMode[PaymentMode(mode)] = sum.ByMode[PaymentMode(mode)].Add(amount)
		sum.TotalPayments = sum.TotalPayments.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "scan payments", err)
	}

	sum.PendingAmount = sum.TotalSales.Sub(sum.TotalPayments)
	return sum, nil
}

func (s *InvoiceService) collectInvoices(ctx context.Context, q string, args ...any) ([]Invoice, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "fetch invoices", err)
	}
	invoices, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Invoice, error) {
		var inv Invoice
		err := row.Scan(&inv.ID, &inv.CustomerID, &inv.Total, &inv.Status,
			&inv.GST, &inv.SessionID, &inv.Sent, &inv.CreatedAt)
		return inv, err
	})
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "scan invoices", err)
	}
	if invoices == nil {
		invoices = []Invoice{}
	}
	return invoices, nil
}

func getInvoiceTx(ctx context.Context, tx pgx.Tx, invoiceID string) (*Invoice, error) {
	var inv Invoice
	err := tx.QueryRow(ctx,
		`SELECT id, customer_id, total, status, gst, session_id, sent, created_at
		 FROM invoices WHERE id = $1`, invoiceID,
	).Scan(&inv.ID, &inv.CustomerID, &inv.Total, &inv.Status,
		&inv.GST, &inv.SessionID, &inv.Sent, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engineerr.Newf(engineerr.KindNotFound, "", "invoice %s not found", invoiceID)
	}
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "fetch invoice", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT id, invoice_id, product_id, product, quantity, unit_price, line_total
		 FROM line_items WHERE invoice_id = $1`, invoiceID)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "fetch line items", err)
	}
	inv.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (LineItem, error) {
		var li LineItem
		err := row.Scan(&li.ID, &li.InvoiceID, &li.ProductID, &li.Product,
			&li.Quantity, &li.UnitPrice, &li.LineTotal)
		return li, err
	})
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "scan line items", err)
	}
	return &inv, nil
}
