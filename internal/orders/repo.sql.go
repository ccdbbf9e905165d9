package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storekeeper-erp/storekeeper-erp/internal/platform/db"
)

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
// SetManagerState and SetRegistrarState are compare-and-set updates;
// they report false when another reviewer claimed the stage first. Tx
// exposes the underlying transaction so fulfillment postings can join
// the review's own commit.
type TxRepository interface {
	InsertOrder(ctx context.Context, order Order) error
	InsertItems(ctx context.Context, orderID uuid.UUID, items []Item) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (Order, error)
	SetManagerState(ctx context.Context, id uuid.UUID, state ApprovalState, reviewerName string, declineRegistrar bool) (bool, error)
	SetRegistrarState(ctx context.Context, id uuid.UUID, state ApprovalState, reviewerName string) (bool, error)
	SetItemManagerAllotment(ctx context.Context, itemID, qty int64, comment string) error
	SetItemRegisterAllotment(ctx context.Context, itemID, qty int64, comment string) error
	Tx() pgx.Tx
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("orders repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const orderColumns = `id, invoice_no, name, dept_id, dept_admin_name, manager_state, register_state, store_manager_name, register_name, manager_reviewed_at, register_reviewed_at, created_at, updated_at`

// Get returns one order with its items.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	if r == nil {
		return Order{}, errors.New("orders repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	order, err := scanOrder(row)
	if err != nil {
		return Order{}, err
	}
	items, err := r.loadItems(ctx, []uuid.UUID{order.ID})
	if err != nil {
		return Order{}, err
	}
	order.Items = items[order.ID]
	return order, nil
}

// List returns recent orders with items, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC LIMIT $1`, limitOrDefault(limit))
}

// ListByDepartment returns a department's orders with items, newest first.
func (r *Repository) ListByDepartment(ctx context.Context, dept string, limit int) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE dept_id=$2 ORDER BY created_at DESC, id DESC LIMIT $1`, limitOrDefault(limit), dept)
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	if r == nil {
		return nil, errors.New("orders repository not initialised")
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Order{}
	ids := []uuid.UUID{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return result, nil
	}
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Items = items[result[i].ID]
	}
	return result, nil
}

func (r *Repository) loadItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.order_id, i.product_id, p.name, i.demand_qty, i.manager_alloted_qty, i.register_alloted_qty, i.manager_comment, i.register_comment
FROM order_items i
JOIN products p ON p.id = i.product_id
WHERE i.order_id = ANY($1)
ORDER BY i.id ASC`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := map[uuid.UUID][]Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.DemandQuantity, &item.ManagerAlloted, &item.RegisterAlloted, &item.ManagerComment, &item.RegisterComment); err != nil {
			return nil, err
		}
		items[item.OrderID] = append(items[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var order Order
	var managerState, registerState string
	err := row.Scan(&order.ID, &order.InvoiceNo, &order.Name, &order.DeptID, &order.DeptAdminName, &managerState, &registerState, &order.StoreManagerName, &order.RegisterName, &order.ManagerReviewedAt, &order.RegisterReviewedAt, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	order.ManagerState = ApprovalState(managerState)
	order.RegisterState = ApprovalState(registerState)
	return order, nil
}

func (r *txRepository) InsertOrder(ctx context.Context, order Order) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO orders (id, invoice_no, name, dept_id, dept_admin_name, manager_state, register_state, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, order.ID, order.InvoiceNo, order.Name, order.DeptID, order.DeptAdminName, string(order.ManagerState), string(order.RegisterState), order.CreatedAt, order.UpdatedAt)
	return err
}

func (r *txRepository) InsertItems(ctx context.Context, orderID uuid.UUID, items []Item) error {
	for _, item := range items {
		if _, err := r.tx.Exec(ctx, `INSERT INTO order_items (order_id, product_id, demand_qty)
VALUES ($1,$2,$3)`, orderID, item.ProductID, item.DemandQuantity); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id)
	order, err := scanOrder(row)
	if err != nil {
		return Order{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT i.id, i.order_id, i.product_id, p.name, i.demand_qty, i.manager_alloted_qty, i.register_alloted_qty, i.manager_comment, i.register_comment
FROM order_items i
JOIN products p ON p.id = i.product_id
WHERE i.order_id=$1
ORDER BY i.id ASC`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.DemandQuantity, &item.ManagerAlloted, &item.RegisterAlloted, &item.ManagerComment, &item.RegisterComment); err != nil {
			return Order{}, err
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (r *txRepository) SetManagerState(ctx context.Context, id uuid.UUID, state ApprovalState, reviewerName string, declineRegistrar bool) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE orders
SET manager_state=$2,
    store_manager_name=$3,
    manager_reviewed_at=NOW(),
    register_state=CASE WHEN $4 THEN 'DECLINED' ELSE register_state END,
    updated_at=NOW()
WHERE id=$1 AND manager_state='PENDING'`, id, string(state), reviewerName, declineRegistrar)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) SetRegistrarState(ctx context.Context, id uuid.UUID, state ApprovalState, reviewerName string) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE orders
SET register_state=$2, register_name=$3, register_reviewed_at=NOW(), updated_at=NOW()
WHERE id=$1 AND register_state='PENDING' AND manager_state='APPROVED'`, id, string(state), reviewerName)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) SetItemManagerAllotment(ctx context.Context, itemID, qty int64, comment string) error {
	_, err := r.tx.Exec(ctx, `UPDATE order_items SET manager_alloted_qty=$2, manager_comment=$3 WHERE id=$1`, itemID, qty, comment)
	return err
}

func (r *txRepository) SetItemRegisterAllotment(ctx context.Context, itemID, qty int64, comment string) error {
	_, err := r.tx.Exec(ctx, `UPDATE order_items SET register_alloted_qty=$2, register_comment=$3 WHERE id=$1`, itemID, qty, comment)
	return err
}

func (r *txRepository) Tx() pgx.Tx {
	return r.tx
}
