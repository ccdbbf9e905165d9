package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storekeeper-erp/storekeeper-erp/internal/platform/db"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
// GetProductForUpdate takes the row lock that serialises concurrent
// writers on the same product.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, productID int64) (ProductStock, error)
	InsertTransaction(ctx context.Context, tx Transaction) (int64, error)
	UpdateProductStock(ctx context.Context, productID, newStock int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// InTx wraps a transaction owned by the caller, so postings can join
// writes the caller must commit or roll back atomically with them.
func (r *Repository) InTx(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// ListByProduct returns movements for a product, newest first.
func (r *Repository) ListByProduct(ctx context.Context, productID int64, limit int) ([]Transaction, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT t.id, t.product_id, p.name, t.order_id, t.department, t.previous_stock, t.new_stock, t.change_stock, t.tx_type, t.note, t.posted_at
FROM stock_transactions t
JOIN products p ON p.id = t.product_id
WHERE t.product_id=$1
ORDER BY t.posted_at DESC, t.id DESC
LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// ListByDepartment returns movements tagged with a department, newest first.
func (r *Repository) ListByDepartment(ctx context.Context, department string, limit int) ([]Transaction, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT t.id, t.product_id, p.name, t.order_id, t.department, t.previous_stock, t.new_stock, t.change_stock, t.tx_type, t.note, t.posted_at
FROM stock_transactions t
JOIN products p ON p.id = t.product_id
WHERE t.department=$1
ORDER BY t.posted_at DESC, t.id DESC
LIMIT $2`, department, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func scanTransactions(rows pgx.Rows) ([]Transaction, error) {
	txs := []Transaction{}
	for rows.Next() {
		var tx Transaction
		var txType string
		if err := rows.Scan(&tx.ID, &tx.ProductID, &tx.ProductName, &tx.OrderID, &tx.Department, &tx.PreviousStock, &tx.NewStock, &tx.ChangeStock, &txType, &tx.Note, &tx.PostedAt); err != nil {
			return nil, err
		}
		tx.Type = TransactionType(txType)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, productID int64) (ProductStock, error) {
	var product ProductStock
	err := r.tx.QueryRow(ctx, `SELECT id, name, current_stock, threshold_point FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&product.ID, &product.Name, &product.CurrentStock, &product.Threshold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductStock{}, ErrProductNotFound
		}
		return ProductStock{}, err
	}
	return product, nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, tx Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_transactions (product_id, order_id, department, previous_stock, new_stock, change_stock, tx_type, note, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`, tx.ProductID, tx.OrderID, tx.Department, tx.PreviousStock, tx.NewStock, tx.ChangeStock, string(tx.Type), tx.Note, tx.PostedAt).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateProductStock(ctx context.Context, productID, newStock int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET current_stock=$1, updated_at=NOW() WHERE id=$2`, newStock, productID)
	return err
}
