package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nileshdk/bolikhata/internal/engineerr"
	"github.com/nileshdk/bolikhata/pkg/money"
)

// ProductService owns the products table. Obtain via [Store.Products].
type ProductService struct {
	pool *pgxpool.Pool
}

const productColumns = `id, name, unit, price, stock, is_new, created_at`

// GetByName fetches a product by case-insensitive name.
func (s *ProductService) GetByName(ctx context.Context, name string) (*Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE lower(name) = lower($1)`, name)
	return scanProduct(row, name)
}

// Create inserts a new product.
func (s *ProductService) Create(ctx context.Context, name, unit string, price money.Amount, stock int) (*Product, error) {
	if strings.TrimSpace(name) == "" {
		return nil, engineerr.New(engineerr.KindValidation, "", "product name is required")
	}
	if unit == "" {
		unit = "piece"
	}
	p := &Product{
		ID:    uuid.NewString(),
		Name:  name,
		Unit:  unit,
		Price: price,
		Stock: stock,
	}
	const q = `
		INSERT INTO products (id, name, unit, price, stock, is_new)
		VALUES ($1, $2, $3, $4, $5, false)`
	if _, err := s.pool.Exec(ctx, q, p.ID, p.Name, p.Unit, p.Price, p.Stock); err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "create product", err)
	}
	return p, nil
}

// UpdateStock sets the absolute stock level of a product.
func (s *ProductService) UpdateStock(ctx context.Context, id string, stock int) error {
	if stock < 0 {
		return engineerr.New(engineerr.KindValidation, "", "stock must not be negative")
	}
	tag, err := s.pool.Exec(ctx, `UPDATE products SET stock = $2 WHERE id = $1`, id, stock)
	if err != nil {
		return engineerr.Wrap(engineerr.KindDatabase, "", "update stock", err)
	}
	if tag.RowsAffected() == 0 {
		return engineerr.Newf(engineerr.KindNotFound, "", "product %s not found", id)
	}
	return nil
}

// SetPrice updates a product's unit price and clears the new flag, since a
// priced product no longer needs operator attention.
func (s *ProductService) SetPrice(ctx context.Context, id string, price money.Amount) error {
	if price.IsNegative() {
		return engineerr.New(engineerr.KindValidation, "", "price must not be negative")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET price = $2, is_new = false WHERE id = $1`, id, price)
	if err != nil {
		return engineerr.Wrap(engineerr.KindDatabase, "", "set price", err)
	}
	if tag.RowsAffected() == 0 {
		return engineerr.Newf(engineerr.KindNotFound, "", "product %s not found", id)
	}
	return nil
}

// List returns all products ordered by name.
func (s *ProductService) List(ctx context.Context) ([]Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY lower(name)`)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "list products", err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Product, error) {
		var p Product
		err := row.Scan(&p.ID, &p.Name, &p.Unit, &p.Price, &p.Stock, &p.IsNew, &p.CreatedAt)
		return p, err
	})
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "scan products", err)
	}
	if products == nil {
		products = []Product{}
	}
	return products, nil
}

// resolveOrCreate fetches a product by name inside tx, auto-creating it at
// price 0 with the new flag when it does not exist yet.
func resolveOrCreateProduct(ctx context.Context, tx pgx.Tx, name, unit string) (*Product, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE lower(name) = lower($1)`, name)
	p, err := scanProduct(row, name)
	if err == nil {
		return p, nil
	}
	if engineerr.KindOf(err) != engineerr.KindNotFound {
		return nil, err
	}

	if unit == "" {
		unit = "piece"
	}
	p = &Product{
		ID:    uuid.NewString(),
		Name:  name,
		Unit:  unit,
		IsNew: true,
	}
	const q = `
		INSERT INTO products (id, name, unit, price, stock, is_new)
		VALUES ($1, $2, $3, 0, 0, true)`
	if _, err := tx.Exec(ctx, q, p.ID, p.Name, p.Unit); err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "auto-create product", err)
	}
	return p, nil
}

func scanProduct(row pgx.Row, name string) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Unit, &p.Price, &p.Stock, &p.IsNew, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engineerr.Newf(engineerr.KindNotFound, "", "product %q not found", name)
	}
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "", "scan product", err)
	}
	return &p, nil
}
