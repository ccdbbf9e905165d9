package catalog

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/storekeeper-erp/storekeeper-erp/internal/ledger"
	"github.com/storekeeper-erp/storekeeper-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Insert(ctx context.Context, product Product) (int64, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (Product, error)
	GetByName(ctx context.Context, name string) (Product, error)
	List(ctx context.Context) ([]Product, error)
	ListBelowThreshold(ctx context.Context) ([]Product, error)
}

// LedgerPort posts stock movements. All stock mutations go through it
// so the catalog never touches current_stock directly.
type LedgerPort interface {
	Post(ctx context.Context, input ledger.PostInput) (ledger.Transaction, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the product catalog.
type Service struct {
	repo   RepositoryPort
	ledger LedgerPort
	audit  AuditPort
	cache  *Cache
	flight singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, audit AuditPort, cache *Cache) *Service {
	return &Service{repo: repo, ledger: ledgerPort, audit: audit, cache: cache}
}

// Create registers a product and posts its opening stock as the first
// ledger entry. A failed opening post removes the row again so no
// product exists without a ledger trail.
func (s *Service) Create(ctx context.Context, input CreateInput) (Product, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Category = strings.TrimSpace(input.Category)
	if input.Name == "" {
		return Product{}, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	if input.Category == "" {
		return Product{}, fmt.Errorf("%w: category required", ErrInvalidInput)
	}
	if input.ThresholdPoint < 0 {
		return Product{}, fmt.Errorf("%w: threshold cannot be negative", ErrInvalidInput)
	}
	if input.OpeningStock < 0 {
		return Product{}, fmt.Errorf("%w: opening stock cannot be negative", ErrInvalidInput)
	}

	id, err := s.repo.Insert(ctx, Product{Name: input.Name, Category: input.Category, ThresholdPoint: input.ThresholdPoint})
	if err != nil {
		return Product{}, err
	}
	if _, err := s.ledger.Post(ctx, ledger.PostInput{
		ProductID: id,
		Change:    input.OpeningStock,
		Type:      ledger.TransactionTypeIn,
		Note:      "opening stock",
		ActorID:   input.ActorID,
	}); err != nil {
		_ = s.repo.Delete(ctx, id)
		return Product{}, err
	}

	_ = s.cache.Bump(ctx)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "catalog:create",
			Entity:   "product",
			EntityID: fmt.Sprintf("%d", id),
			Meta:     map[string]any{"name": input.Name, "opening_stock": input.OpeningStock},
		})
	}
	return s.repo.Get(ctx, id)
}

// Get returns one product by id.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	return s.repo.Get(ctx, id)
}

// GetByName resolves a product by its unique name.
func (s *Service) GetByName(ctx context.Context, name string) (Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	return s.repo.GetByName(ctx, name)
}

// List returns the catalog, served from cache when warm. Concurrent
// cold reads collapse into one repository query.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	key, err := s.cache.BuildKey(ctx, "catalog", "list")
	if err != nil {
		return s.repo.List(ctx)
	}
	result, err, _ := s.flight.Do(key, func() (interface{}, error) {
		var products []Product
		err := s.cache.FetchJSON(ctx, key, &products, func(ctx context.Context) (interface{}, error) {
			return s.repo.List(ctx)
		})
		return products, err
	})
	if err != nil {
		return nil, err
	}
	return result.([]Product), nil
}

// LowStock returns products at or below their reorder threshold.
func (s *Service) LowStock(ctx context.Context) ([]Product, error) {
	return s.repo.ListBelowThreshold(ctx)
}

// SetStock moves a product, addressed by name, to an absolute stock
// level by posting the difference as a single ledger movement.
func (s *Service) SetStock(ctx context.Context, name string, newStock, actorID int64) (Product, error) {
	if newStock < 0 {
		return Product{}, fmt.Errorf("%w: stock cannot be negative", ErrInvalidInput)
	}
	product, err := s.GetByName(ctx, name)
	if err != nil {
		return Product{}, err
	}
	delta := newStock - product.CurrentStock
	if delta == 0 {
		return product, nil
	}
	// Corrections always post inbound with the signed delta; the type
	// is not derived from the sign.
	input := ledger.PostInput{
		ProductID: product.ID,
		Change:    delta,
		Type:      ledger.TransactionTypeIn,
		Note:      "manual stock correction",
		ActorID:   actorID,
	}
	if _, err := s.ledger.Post(ctx, input); err != nil {
		return Product{}, err
	}
	_ = s.cache.Bump(ctx)
	return s.repo.Get(ctx, product.ID)
}
