package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/storekeeper-erp/storekeeper-erp/internal/ledger"
)

type mockRepo struct {
	products  map[int64]Product
	byName    map[string]int64
	nextID    int64
	listCalls int
}

func newMockRepo() *mockRepo {
	return &mockRepo{products: map[int64]Product{}, byName: map[string]int64{}}
}

func (m *mockRepo) Insert(ctx context.Context, product Product) (int64, error) {
	if _, exists := m.byName[product.Name]; exists {
		return 0, ErrDuplicateName
	}
	m.nextID++
	product.ID = m.nextID
	product.CreatedAt = time.Now()
	product.UpdatedAt = product.CreatedAt
	m.products[product.ID] = product
	m.byName[product.Name] = product.ID
	return product.ID, nil
}

func (m *mockRepo) Delete(ctx context.Context, id int64) error {
	if p, ok := m.products[id]; ok {
		delete(m.byName, p.Name)
		delete(m.products, id)
	}
	return nil
}

func (m *mockRepo) Get(ctx context.Context, id int64) (Product, error) {
	if p, ok := m.products[id]; ok {
		return p, nil
	}
	return Product{}, ErrNotFound
}

func (m *mockRepo) GetByName(ctx context.Context, name string) (Product, error) {
	if id, ok := m.byName[name]; ok {
		return m.products[id], nil
	}
	return Product{}, ErrNotFound
}

func (m *mockRepo) List(ctx context.Context) ([]Product, error) {
	m.listCalls++
	out := []Product{}
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockRepo) ListBelowThreshold(ctx context.Context) ([]Product, error) {
	out := []Product{}
	for _, p := range m.products {
		if p.CurrentStock <= p.ThresholdPoint {
			out = append(out, p)
		}
	}
	return out, nil
}

// mockLedger applies movements straight onto the repo so catalog reads
// observe the posted stock.
type mockLedger struct {
	repo    *mockRepo
	failure error
	posts   []ledger.PostInput
}

func (m *mockLedger) Post(ctx context.Context, input ledger.PostInput) (ledger.Transaction, error) {
	if m.failure != nil {
		return ledger.Transaction{}, m.failure
	}
	m.posts = append(m.posts, input)
	p, ok := m.repo.products[input.ProductID]
	if !ok {
		return ledger.Transaction{}, ledger.ErrProductNotFound
	}
	previous := p.CurrentStock
	switch input.Type {
	case ledger.TransactionTypeIn:
		p.CurrentStock += input.Change
	case ledger.TransactionTypeOut:
		p.CurrentStock -= input.Change
	}
	if p.CurrentStock < 0 {
		return ledger.Transaction{}, ledger.ErrNegativeStock
	}
	m.repo.products[p.ID] = p
	return ledger.Transaction{ProductID: p.ID, PreviousStock: previous, NewStock: p.CurrentStock, ChangeStock: input.Change, Type: input.Type}, nil
}

func newTestService(t *testing.T, repo *mockRepo, ledgerPort LedgerPort) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewService(repo, ledgerPort, nil, NewCache(client, time.Minute))
}

func TestCreatePostsOpeningStock(t *testing.T) {
	repo := newMockRepo()
	lp := &mockLedger{repo: repo}
	svc := newTestService(t, repo, lp)

	product, err := svc.Create(context.Background(), CreateInput{Name: "A4 Paper", Category: "stationery", ThresholdPoint: 5, OpeningStock: 40})
	require.NoError(t, err)
	require.Equal(t, int64(40), product.CurrentStock)
	require.Len(t, lp.posts, 1)
	require.Equal(t, ledger.TransactionTypeIn, lp.posts[0].Type)
	require.Equal(t, int64(40), lp.posts[0].Change)
}

func TestCreateBlankCategory(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo, &mockLedger{repo: repo})

	_, err := svc.Create(context.Background(), CreateInput{Name: "Eraser", Category: "   "})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.GetByName(context.Background(), "Eraser")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateDuplicateName(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo, &mockLedger{repo: repo})
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "Stapler", Category: "stationery"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Name: "Stapler", Category: "stationery"})
	require.ErrorIs(t, err, ErrDuplicateName)
}

func TestCreateRollsBackOnLedgerFailure(t *testing.T) {
	repo := newMockRepo()
	boom := errors.New("ledger unavailable")
	svc := newTestService(t, repo, &mockLedger{repo: repo, failure: boom})

	_, err := svc.Create(context.Background(), CreateInput{Name: "Toner", Category: "printing", OpeningStock: 3})
	require.ErrorIs(t, err, boom)
	_, err = svc.GetByName(context.Background(), "Toner")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListUsesCache(t *testing.T) {
	repo := newMockRepo()
	lp := &mockLedger{repo: repo}
	svc := newTestService(t, repo, lp)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "Pens", Category: "stationery", OpeningStock: 10})
	require.NoError(t, err)

	first, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	calls := repo.listCalls

	second, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, calls, repo.listCalls)
}

func TestSetStockInvalidatesCache(t *testing.T) {
	repo := newMockRepo()
	lp := &mockLedger{repo: repo}
	svc := newTestService(t, repo, lp)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "Markers", Category: "stationery", OpeningStock: 10})
	require.NoError(t, err)
	_, err = svc.List(ctx)
	require.NoError(t, err)
	calls := repo.listCalls

	product, err := svc.SetStock(ctx, "Markers", 4, 1)
	require.NoError(t, err)
	require.Equal(t, int64(4), product.CurrentStock)

	listed, err := svc.List(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(4), listed[0].CurrentStock)
	require.Equal(t, calls+1, repo.listCalls)
}

func TestSetStockPostsSignedInbound(t *testing.T) {
	repo := newMockRepo()
	lp := &mockLedger{repo: repo}
	svc := newTestService(t, repo, lp)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "Pencil", Category: "stationery", ThresholdPoint: 10, OpeningStock: 100})
	require.NoError(t, err)

	// A downward correction posts inbound with a negative amount, not
	// an issue.
	product, err := svc.SetStock(ctx, "Pencil", 90, 1)
	require.NoError(t, err)
	require.Equal(t, int64(90), product.CurrentStock)
	last := lp.posts[len(lp.posts)-1]
	require.Equal(t, ledger.TransactionTypeIn, last.Type)
	require.Equal(t, int64(-10), last.Change)

	product, err = svc.SetStock(ctx, "Pencil", 95, 1)
	require.NoError(t, err)
	require.Equal(t, int64(95), product.CurrentStock)
	last = lp.posts[len(lp.posts)-1]
	require.Equal(t, ledger.TransactionTypeIn, last.Type)
	require.Equal(t, int64(5), last.Change)
}

func TestSetStockNoOp(t *testing.T) {
	repo := newMockRepo()
	lp := &mockLedger{repo: repo}
	svc := newTestService(t, repo, lp)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "Glue", Category: "stationery", OpeningStock: 7})
	require.NoError(t, err)
	postsBefore := len(lp.posts)

	product, err := svc.SetStock(ctx, "Glue", 7, 1)
	require.NoError(t, err)
	require.Equal(t, int64(7), product.CurrentStock)
	require.Len(t, lp.posts, postsBefore)
}

func TestLowStock(t *testing.T) {
	repo := newMockRepo()
	lp := &mockLedger{repo: repo}
	svc := newTestService(t, repo, lp)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "Paper", Category: "stationery", ThresholdPoint: 5, OpeningStock: 3})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Name: "Ink", Category: "printing", ThresholdPoint: 5, OpeningStock: 20})
	require.NoError(t, err)

	low, err := svc.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	require.Equal(t, "Paper", low[0].Name)
}
