package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// Customers and products
// ─────────────────────────────────────────────────────────────────────────────

const ddlCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id          TEXT         PRIMARY KEY,
    name        TEXT         NOT NULL,
    nickname    TEXT         NOT NULL DEFAULT '',
    landmark    TEXT         NOT NULL DEFAULT '',
    area        TEXT         NOT NULL DEFAULT '',
    city        TEXT         NOT NULL DEFAULT '',
    phone       TEXT         NOT NULL DEFAULT '',
    email       TEXT         NOT NULL DEFAULT '',
    gstin       TEXT         NOT NULL DEFAULT '',
    balance     NUMERIC      NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_customers_name  ON customers (lower(name));
CREATE INDEX IF NOT EXISTS idx_customers_phone ON customers (phone);
CREATE INDEX IF NOT EXISTS idx_customers_email ON customers (email);
`

const ddlProducts = `
CREATE TABLE IF NOT EXISTS products (
    id          TEXT         PRIMARY KEY,
    name        TEXT         NOT NULL,
    unit        TEXT         NOT NULL DEFAULT 'piece',
    price       NUMERIC      NOT NULL DEFAULT 0,
    stock       INTEGER      NOT NULL DEFAULT 0,
    is_new      BOOLEAN      NOT NULL DEFAULT false,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    CONSTRAINT  products_stock_nonneg CHECK (stock >= 0)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_products_name ON products (lower(name));
`

// ─────────────────────────────────────────────────────────────────────────────
// Invoices and ledger
// ─────────────────────────────────────────────────────────────────────────────

const ddlInvoices = `
CREATE TABLE IF NOT EXISTS invoices (
    id          TEXT         PRIMARY KEY,
    customer_id TEXT         NOT NULL REFERENCES customers (id),
    total       NUMERIC      NOT NULL,
    status      TEXT         NOT NULL DEFAULT 'DRAFT',
    gst         BOOLEAN      NOT NULL DEFAULT false,
    session_id  TEXT         NOT NULL DEFAULT '',
    sent        BOOLEAN      NOT NULL DEFAULT false,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_invoices_customer_created
    ON invoices (customer_id, created_at);

CREATE INDEX IF NOT EXISTS idx_invoices_session
    ON invoices (session_id) WHERE status = 'DRAFT';

CREATE TABLE IF NOT EXISTS line_items (
    id          TEXT         PRIMARY KEY,
    invoice_id  TEXT         NOT NULL REFERENCES invoices (id) ON DELETE CASCADE,
    product_id  TEXT         NOT NULL REFERENCES products (id),
    product     TEXT         NOT NULL,
    quantity    INTEGER      NOT NULL CHECK (quantity > 0),
    unit_price  NUMERIC      NOT NULL,
    line_total  NUMERIC      NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_line_items_invoice ON line_items (invoice_id);
`

const ddlLedger = `
CREATE TABLE IF NOT EXISTS ledger_entries (
    id           TEXT         PRIMARY KEY,
    customer_id  TEXT         NOT NULL REFERENCES customers (id),
    type         TEXT         NOT NULL,
    amount       NUMERIC      NOT NULL CHECK (amount > 0),
    payment_mode TEXT         NOT NULL DEFAULT '',
    description  TEXT         NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ledger_customer_created
    ON ledger_entries (customer_id, created_at);
`

// ─────────────────────────────────────────────────────────────────────────────
// Reminders and deletion OTPs
// ─────────────────────────────────────────────────────────────────────────────

const ddlReminders = `
CREATE TABLE IF NOT EXISTS reminders (
    id             TEXT         PRIMARY KEY,
    customer_id    TEXT         NOT NULL REFERENCES customers (id),
    amount         NUMERIC      NOT NULL,
    scheduled_time TIMESTAMPTZ  NOT NULL,
    channels       TEXT[]       NOT NULL DEFAULT '{}',
    message        TEXT         NOT NULL DEFAULT '',
    notes          TEXT         NOT NULL DEFAULT '',
    status         TEXT         NOT NULL DEFAULT 'pending',
    retry_count    INTEGER      NOT NULL DEFAULT 0,
    last_attempt   TIMESTAMPTZ,
    sent_at        TIMESTAMPTZ,
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_reminders_customer_scheduled
    ON reminders (customer_id, scheduled_time);
`

const ddlDeletionOTPs = `
CREATE TABLE IF NOT EXISTS deletion_otps (
    customer_id  TEXT         PRIMARY KEY,
    code         TEXT         NOT NULL,
    expires_at   TIMESTAMPTZ  NOT NULL,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Migrate creates or ensures all required tables and indexes exist. It is
// idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlCustomers,
		ddlProducts,
		ddlInvoices,
		ddlLedger,
		ddlReminders,
		ddlDeletionOTPs,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store migrate: %w", err)
		}
	}
	return nil
}
