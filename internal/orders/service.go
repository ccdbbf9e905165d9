package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/storekeeper-erp/storekeeper-erp/internal/catalog"
	"github.com/storekeeper-erp/storekeeper-erp/internal/ledger"
	"github.com/storekeeper-erp/storekeeper-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	List(ctx context.Context, limit int) ([]Order, error)
	ListByDepartment(ctx context.Context, dept string, limit int) ([]Order, error)
}

// CatalogPort resolves product names to stable catalog rows. Name
// resolution only happens here at order intake; everything downstream
// keys on the product id.
type CatalogPort interface {
	GetByName(ctx context.Context, name string) (catalog.Product, error)
}

// LedgerPort posts the fulfillment issuances on the review's own
// transaction, so the stage claim and the stock movements commit or
// roll back together.
type LedgerPort interface {
	PostBatchInTx(ctx context.Context, tx pgx.Tx, inputs []ledger.PostInput, idemKey string) ([]ledger.Transaction, error)
}

// ApprovalPort records the review trail.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module shared.Module, ref uuid.UUID) ([]shared.ApprovalLog, error)
	EnsureSubmit(ctx context.Context, module shared.Module, ref uuid.UUID, actorID int64, note string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the requisition workflow.
type Service struct {
	repo      RepositoryPort
	catalog   CatalogPort
	ledger    LedgerPort
	approvals ApprovalPort
	audit     AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalogPort CatalogPort, ledgerPort LedgerPort, approvals ApprovalPort, audit AuditPort) *Service {
	return &Service{repo: repo, catalog: catalogPort, ledger: ledgerPort, approvals: approvals, audit: audit}
}

// Create submits a new order with both stages PENDING.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.DeptID = strings.TrimSpace(input.DeptID)
	if input.Name == "" || input.DeptID == "" {
		return Order{}, fmt.Errorf("%w: order name and dept id required", ErrInvalidInput)
	}
	if len(input.Items) == 0 {
		return Order{}, ErrNoItems
	}

	seen := make(map[string]struct{}, len(input.Items))
	items := make([]Item, 0, len(input.Items))
	for _, line := range input.Items {
		name := strings.TrimSpace(line.ProductName)
		if name == "" {
			return Order{}, fmt.Errorf("%w: item product name required", ErrInvalidInput)
		}
		if line.DemandQuantity < 0 {
			return Order{}, fmt.Errorf("%w: demand quantity cannot be negative", ErrInvalidInput)
		}
		if _, dup := seen[name]; dup {
			return Order{}, fmt.Errorf("%w: duplicate item %q", ErrInvalidInput, name)
		}
		seen[name] = struct{}{}
		product, err := s.catalog.GetByName(ctx, name)
		if err != nil {
			return Order{}, err
		}
		items = append(items, Item{ProductID: product.ID, ProductName: product.Name, DemandQuantity: line.DemandQuantity})
	}

	now := time.Now().UTC()
	order := Order{
		ID:            uuid.New(),
		Name:          input.Name,
		DeptID:        input.DeptID,
		DeptAdminName: input.DeptAdminName,
		ManagerState:  ApprovalPending,
		RegisterState: ApprovalPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	order.InvoiceNo = makeInvoiceNo(order.ID, now)

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		return tx.InsertItems(ctx, order.ID, items)
	})
	if err != nil {
		return Order{}, err
	}

	if s.approvals != nil {
		_ = s.approvals.EnsureSubmit(ctx, shared.ModuleOrders, order.ID, input.ActorID, order.InvoiceNo)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "orders:create",
			Entity:   "order",
			EntityID: order.ID.String(),
			Meta:     map[string]any{"invoice_no": order.InvoiceNo, "dept_id": order.DeptID, "items": len(items)},
		})
	}
	return s.repo.Get(ctx, order.ID)
}

// Get returns one order with its items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns recent orders, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]Order, error) {
	return s.repo.List(ctx, limit)
}

// ListByDepartment returns a department's orders, newest first.
func (s *Service) ListByDepartment(ctx context.Context, dept string, limit int) ([]Order, error) {
	if strings.TrimSpace(dept) == "" {
		return nil, fmt.Errorf("%w: dept id required", ErrInvalidInput)
	}
	return s.repo.ListByDepartment(ctx, dept, limit)
}

// Approvals returns the submit/approve/reject trail for one order,
// oldest first.
func (s *Service) Approvals(ctx context.Context, id uuid.UUID) ([]shared.ApprovalLog, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return nil, nil
	}
	return s.approvals.List(ctx, shared.ModuleOrders, id)
}

// ManagerReview decides the first stage. Approval applies the supplied
// allotments within [0, demand]; items absent from the payload keep
// their prior allotment. Declining also declines the registrar stage so
// the order is terminally closed.
func (s *Service) ManagerReview(ctx context.Context, input ReviewInput) (Order, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order.ManagerState != ApprovalPending {
			return ErrAlreadyReviewed
		}
		if input.Approve {
			byItem, err := matchAllotments(order.Items, input.Allotments)
			if err != nil {
				return err
			}
			for _, item := range order.Items {
				a, ok := byItem[item.ID]
				if !ok {
					continue
				}
				if a.Quantity > item.DemandQuantity {
					return fmt.Errorf("%w: item %d alloted %d over demand %d", ErrAllotmentBounds, item.ID, a.Quantity, item.DemandQuantity)
				}
				if err := tx.SetItemManagerAllotment(ctx, item.ID, a.Quantity, a.Comment); err != nil {
					return err
				}
			}
		}
		state := ApprovalDeclined
		if input.Approve {
			state = ApprovalApproved
		}
		// Declining closes the registrar stage too.
		claimed, err := tx.SetManagerState(ctx, input.OrderID, state, input.ReviewerName, !input.Approve)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrAlreadyReviewed
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordDecision(ctx, input, "orders:manager_review")
	return s.repo.Get(ctx, input.OrderID)
}

// RegistrarReview decides the second stage. Approval issues stock for
// every supplied line with a positive final allotment; the postings
// and the claim commit or roll back together. Items absent from the
// payload keep their prior allotment and issue nothing.
func (s *Service) RegistrarReview(ctx context.Context, input ReviewInput) (Order, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order.ManagerState == ApprovalDeclined {
			return ErrManagerDeclined
		}
		if order.ManagerState == ApprovalPending {
			return ErrManagerPending
		}
		if order.RegisterState != ApprovalPending {
			return ErrAlreadyReviewed
		}

		var postings []ledger.PostInput
		if input.Approve {
			byItem, err := matchAllotments(order.Items, input.Allotments)
			if err != nil {
				return err
			}
			for _, item := range order.Items {
				a, ok := byItem[item.ID]
				if !ok {
					continue
				}
				ceiling := int64(0)
				if item.ManagerAlloted != nil {
					ceiling = *item.ManagerAlloted
				}
				if a.Quantity > ceiling {
					return fmt.Errorf("%w: item %d alloted %d over manager grant %d", ErrAllotmentBounds, item.ID, a.Quantity, ceiling)
				}
				if err := tx.SetItemRegisterAllotment(ctx, item.ID, a.Quantity, a.Comment); err != nil {
					return err
				}
				if a.Quantity > 0 {
					orderID := order.ID
					dept := order.DeptID
					postings = append(postings, ledger.PostInput{
						ProductID:  item.ProductID,
						OrderID:    &orderID,
						Department: &dept,
						Change:     a.Quantity,
						Type:       ledger.TransactionTypeOut,
						Note:       order.InvoiceNo,
						ActorID:    input.ActorID,
					})
				}
			}
		}

		state := ApprovalDeclined
		if input.Approve {
			state = ApprovalApproved
		}
		claimed, err := tx.SetRegistrarState(ctx, input.OrderID, state, input.ReviewerName)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrAlreadyReviewed
		}
		if len(postings) > 0 {
			// The postings ride the review transaction, so the claim,
			// the idempotency key and the stock movements commit or
			// roll back as one unit.
			idemKey := fmt.Sprintf("ORDER:%s:FULFILL", order.ID)
			if _, err := s.ledger.PostBatchInTx(ctx, tx.Tx(), postings, idemKey); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordDecision(ctx, input, "orders:registrar_review")
	return s.repo.Get(ctx, input.OrderID)
}

func (s *Service) recordDecision(ctx context.Context, input ReviewInput, action string) {
	if s.approvals != nil {
		act := shared.ApprovalReject
		if input.Approve {
			act = shared.ApprovalApprove
		}
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  shared.ModuleOrders,
			RefID:   input.OrderID,
			ActorID: input.ActorID,
			Action:  act,
			Note:    input.Note,
		})
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   action,
			Entity:   "order",
			EntityID: input.OrderID.String(),
			Meta:     map[string]any{"approved": input.Approve},
		})
	}
}

// matchAllotments pairs supplied decisions with items by item id. A
// partial payload is valid: items without an entry keep their prior
// allotment. Unknown and duplicated item ids are rejected.
func matchAllotments(items []Item, allotments []AllotmentInput) (map[int64]AllotmentInput, error) {
	known := make(map[int64]struct{}, len(items))
	for _, item := range items {
		known[item.ID] = struct{}{}
	}
	byItem := make(map[int64]AllotmentInput, len(allotments))
	for _, a := range allotments {
		if a.Quantity < 0 {
			return nil, fmt.Errorf("%w: item %d alloted negative quantity", ErrAllotmentBounds, a.ItemID)
		}
		if _, ok := known[a.ItemID]; !ok {
			return nil, fmt.Errorf("%w: unknown item %d", ErrItemMismatch, a.ItemID)
		}
		if _, dup := byItem[a.ItemID]; dup {
			return nil, fmt.Errorf("%w: duplicate allotment for item %d", ErrItemMismatch, a.ItemID)
		}
		byItem[a.ItemID] = a
	}
	return byItem, nil
}

func makeInvoiceNo(id uuid.UUID, at time.Time) string {
	frag := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))[:8]
	return fmt.Sprintf("REQ-%s-%s", at.Format("200601"), frag)
}
