package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/storekeeper-erp/storekeeper-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InTx(tx pgx.Tx) TxRepository
	ListByProduct(ctx context.Context, productID int64, limit int) ([]Transaction, error)
	ListByDepartment(ctx context.Context, department string, limit int) ([]Transaction, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LowStockNotifier schedules a reorder scan after outbound movements.
type LowStockNotifier interface {
	EnqueueLowStockScan(ctx context.Context) error
}

// Service posts stock movements. It is the only component that
// mutates product stock; every mutation pairs with exactly one
// appended transaction inside one database transaction.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	notifier    LowStockNotifier
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, notifier LowStockNotifier) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, notifier: notifier}
}

// Post records a single movement as one atomic unit.
func (s *Service) Post(ctx context.Context, input PostInput) (Transaction, error) {
	var posted Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		posted, err = postOne(ctx, tx, input, time.Now().UTC())
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.afterPost(ctx, []Transaction{posted}, input.ActorID)
	return posted, nil
}

// PostBatch records all movements inside one database transaction so a
// multi-line fulfillment is all-or-nothing. The idempotency key guards
// against double-posting on caller retries; it is released again when
// the batch fails.
func (s *Service) PostBatch(ctx context.Context, inputs []PostInput, idemKey string) ([]Transaction, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	insertedKey := false
	if s.idempotency != nil && idemKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "ledger"); err != nil {
			return nil, err
		}
		insertedKey = true
	}

	var posted []Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		posted, err = postOrdered(ctx, tx, inputs)
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return nil, err
	}
	s.afterPost(ctx, posted, inputs[0].ActorID)
	return posted, nil
}

// PostBatchInTx records the movements on a transaction owned by the
// caller, so the postings commit or roll back together with the
// caller's own writes. The idempotency key is claimed on the same
// transaction; a caller rollback releases it again, leaving retries
// free to run. Audit entries and the reorder scan are advisory and may
// outlive a caller rollback; stock itself never does.
func (s *Service) PostBatchInTx(ctx context.Context, tx pgx.Tx, inputs []PostInput, idemKey string) ([]Transaction, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if s.idempotency != nil && idemKey != "" {
		if err := s.idempotency.CheckAndInsertTx(ctx, tx, idemKey, "ledger"); err != nil {
			return nil, err
		}
	}
	posted, err := postOrdered(ctx, s.repo.InTx(tx), inputs)
	if err != nil {
		return nil, err
	}
	s.afterPost(ctx, posted, inputs[0].ActorID)
	return posted, nil
}

func postOrdered(ctx context.Context, tx TxRepository, inputs []PostInput) ([]Transaction, error) {
	// Lock products in ascending id order so concurrent batches cannot
	// deadlock against each other.
	ordered := make([]PostInput, len(inputs))
	copy(ordered, inputs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ProductID < ordered[j].ProductID })

	now := time.Now().UTC()
	posted := make([]Transaction, 0, len(ordered))
	for _, input := range ordered {
		one, err := postOne(ctx, tx, input, now)
		if err != nil {
			return nil, err
		}
		posted = append(posted, one)
	}
	return posted, nil
}

// ListByProduct returns movements for one product, newest first.
func (s *Service) ListByProduct(ctx context.Context, productID int64, limit int) ([]Transaction, error) {
	if productID <= 0 {
		return nil, ErrProductNotFound
	}
	return s.repo.ListByProduct(ctx, productID, limit)
}

// ListByDepartment returns movements tagged with the department, newest first.
func (s *Service) ListByDepartment(ctx context.Context, department string, limit int) ([]Transaction, error) {
	if department == "" {
		return nil, fmt.Errorf("ledger: department required")
	}
	return s.repo.ListByDepartment(ctx, department, limit)
}

func postOne(ctx context.Context, tx TxRepository, input PostInput, now time.Time) (Transaction, error) {
	if input.Type != TransactionTypeIn && input.Type != TransactionTypeOut {
		return Transaction{}, ErrInvalidType
	}
	// Inbound movements carry a signed amount so stock corrections can
	// post downwards without changing type.
	if input.Change < 0 && input.Type != TransactionTypeIn {
		return Transaction{}, ErrNegativeChange
	}

	product, err := tx.GetProductForUpdate(ctx, input.ProductID)
	if err != nil {
		return Transaction{}, err
	}

	previous := product.CurrentStock
	var next int64
	switch input.Type {
	case TransactionTypeIn:
		next = previous + input.Change
	case TransactionTypeOut:
		next = previous - input.Change
	}
	// Checked before anything is written; stock can never go below zero.
	if next < 0 {
		return Transaction{}, ErrNegativeStock
	}

	record := Transaction{
		ProductID:     product.ID,
		ProductName:   product.Name,
		OrderID:       input.OrderID,
		Department:    input.Department,
		PreviousStock: previous,
		NewStock:      next,
		ChangeStock:   input.Change,
		Type:          input.Type,
		Note:          input.Note,
		PostedAt:      now,
	}
	id, err := tx.InsertTransaction(ctx, record)
	if err != nil {
		return Transaction{}, err
	}
	record.ID = id
	if err := tx.UpdateProductStock(ctx, product.ID, next); err != nil {
		return Transaction{}, err
	}
	return record, nil
}

func (s *Service) afterPost(ctx context.Context, posted []Transaction, actorID int64) {
	sawOut := false
	for _, tx := range posted {
		if tx.Type == TransactionTypeOut {
			sawOut = true
		}
		if s.audit != nil {
			meta := map[string]any{
				"product_id":     tx.ProductID,
				"previous_stock": tx.PreviousStock,
				"new_stock":      tx.NewStock,
				"change_stock":   tx.ChangeStock,
			}
			if tx.Department != nil {
				meta["department"] = *tx.Department
			}
			_ = s.audit.Record(ctx, shared.AuditLog{
				ActorID:  actorID,
				Action:   fmt.Sprintf("ledger:%s", tx.Type),
				Entity:   "transaction",
				EntityID: fmt.Sprintf("%d", tx.ID),
				Meta:     meta,
			})
		}
	}
	if sawOut && s.notifier != nil {
		_ = s.notifier.EnqueueLowStockScan(ctx)
	}
}
