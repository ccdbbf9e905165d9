package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert creates a product row with zero stock and returns its id.
func (r *Repository) Insert(ctx context.Context, product Product) (int64, error) {
	if r == nil {
		return 0, errors.New("catalog repository not initialised")
	}
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO products (name, category, threshold_point, current_stock, created_at, updated_at)
VALUES ($1,$2,$3,0,NOW(),NOW()) RETURNING id`, product.Name, product.Category, product.ThresholdPoint).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateName
		}
		return 0, err
	}
	return id, nil
}

// Delete removes a product row. Used to compensate a failed create.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	if r == nil {
		return errors.New("catalog repository not initialised")
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	return err
}

// Get returns one product by id.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	return r.getBy(ctx, `SELECT id, name, category, threshold_point, current_stock, created_at, updated_at FROM products WHERE id=$1`, id)
}

// GetByName returns one product by its unique name.
func (r *Repository) GetByName(ctx context.Context, name string) (Product, error) {
	return r.getBy(ctx, `SELECT id, name, category, threshold_point, current_stock, created_at, updated_at FROM products WHERE name=$1`, name)
}

func (r *Repository) getBy(ctx context.Context, query string, arg any) (Product, error) {
	if r == nil {
		return Product{}, errors.New("catalog repository not initialised")
	}
	var p Product
	err := r.pool.QueryRow(ctx, query, arg).
		Scan(&p.ID, &p.Name, &p.Category, &p.ThresholdPoint, &p.CurrentStock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// List returns the full catalog ordered by name.
func (r *Repository) List(ctx context.Context) ([]Product, error) {
	if r == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, category, threshold_point, current_stock, created_at, updated_at FROM products ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.ThresholdPoint, &p.CurrentStock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

// ListBelowThreshold returns products whose stock is at or below the
// reorder threshold.
func (r *Repository) ListBelowThreshold(ctx context.Context) ([]Product, error) {
	if r == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, category, threshold_point, current_stock, created_at, updated_at FROM products WHERE current_stock <= threshold_point ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.ThresholdPoint, &p.CurrentStock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}
