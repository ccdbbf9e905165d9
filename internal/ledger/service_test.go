package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu          sync.Mutex
	products    map[int64]ProductStock
	txs         []Transaction
	nextID      int64
	withTxCalls int
	inTxCalls   int
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]ProductStock)}
}

func (r *memoryRepo) seed(p ProductStock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
}

func (r *memoryRepo) stock(id int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[id].CurrentStock
}

// WithTx serialises writers the way the row lock does, and restores
// the snapshot when the callback fails so partial writes never stick.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.withTxCalls++
	snapshot := make(map[int64]ProductStock, len(r.products))
	for id, p := range r.products {
		snapshot[id] = p
	}
	txCount := len(r.txs)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.products = snapshot
		r.txs = r.txs[:txCount]
		return err
	}
	return nil
}

func (r *memoryRepo) InTx(tx pgx.Tx) TxRepository {
	r.inTxCalls++
	return &memoryTx{repo: r}
}

func (r *memoryRepo) ListByProduct(ctx context.Context, productID int64, limit int) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Transaction{}
	for i := len(r.txs) - 1; i >= 0; i-- {
		if r.txs[i].ProductID == productID {
			out = append(out, r.txs[i])
		}
	}
	return out, nil
}

func (r *memoryRepo) ListByDepartment(ctx context.Context, department string, limit int) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Transaction{}
	for i := len(r.txs) - 1; i >= 0; i-- {
		if r.txs[i].Department != nil && *r.txs[i].Department == department {
			out = append(out, r.txs[i])
		}
	}
	return out, nil
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, productID int64) (ProductStock, error) {
	if p, ok := tx.repo.products[productID]; ok {
		return p, nil
	}
	return ProductStock{}, ErrProductNotFound
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, record Transaction) (int64, error) {
	tx.repo.nextID++
	record.ID = tx.repo.nextID
	tx.repo.txs = append(tx.repo.txs, record)
	return record.ID, nil
}

func (tx *memoryTx) UpdateProductStock(ctx context.Context, productID, newStock int64) error {
	p := tx.repo.products[productID]
	p.CurrentStock = newStock
	tx.repo.products[productID] = p
	return nil
}

func TestPostArithmetic(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(ProductStock{ID: 1, Name: "A4 Paper", CurrentStock: 10})
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	posted, err := svc.Post(ctx, PostInput{ProductID: 1, Change: 5, Type: TransactionTypeIn, Note: "restock"})
	require.NoError(t, err)
	require.Equal(t, int64(10), posted.PreviousStock)
	require.Equal(t, int64(15), posted.NewStock)
	require.Equal(t, int64(15), repo.stock(1))

	posted, err = svc.Post(ctx, PostInput{ProductID: 1, Change: 7, Type: TransactionTypeOut, Note: "issue"})
	require.NoError(t, err)
	require.Equal(t, int64(15), posted.PreviousStock)
	require.Equal(t, int64(8), posted.NewStock)
	require.Equal(t, int64(8), repo.stock(1))
}

func TestPostZeroChangeOpening(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(ProductStock{ID: 1, Name: "Stapler", CurrentStock: 0})
	svc := NewService(repo, nil, nil, nil)

	posted, err := svc.Post(context.Background(), PostInput{ProductID: 1, Change: 0, Type: TransactionTypeIn, Note: "opening"})
	require.NoError(t, err)
	require.Equal(t, int64(0), posted.PreviousStock)
	require.Equal(t, int64(0), posted.NewStock)
}

func TestPostNegativeStockGuard(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(ProductStock{ID: 1, Name: "Toner", CurrentStock: 3})
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Post(context.Background(), PostInput{ProductID: 1, Change: 4, Type: TransactionTypeOut})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.Equal(t, int64(3), repo.stock(1))

	txs, err := svc.ListByProduct(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestPostRejectsBadInput(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(ProductStock{ID: 1, Name: "Toner", CurrentStock: 3})
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, PostInput{ProductID: 1, Change: 1, Type: TransactionType("TRANSFER")})
	require.ErrorIs(t, err, ErrInvalidType)

	_, err = svc.Post(ctx, PostInput{ProductID: 1, Change: -1, Type: TransactionTypeOut})
	require.ErrorIs(t, err, ErrNegativeChange)

	_, err = svc.Post(ctx, PostInput{ProductID: 99, Change: 1, Type: TransactionTypeIn})
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestPostSignedInboundCorrection(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(ProductStock{ID: 1, Name: "Pencil", CurrentStock: 100})
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	// A downward correction stays an inbound movement with a negative
	// amount instead of flipping to an issue.
	posted, err := svc.Post(ctx, PostInput{ProductID: 1, Change: -10, Type: TransactionTypeIn, Note: "manual stock correction"})
	require.NoError(t, err)
	require.Equal(t, TransactionTypeIn, posted.Type)
	require.Equal(t, int64(-10), posted.ChangeStock)
	require.Equal(t, int64(100), posted.PreviousStock)
	require.Equal(t, int64(90), posted.NewStock)
	require.Equal(t, int64(90), repo.stock(1))

	_, err = svc.Post(ctx, PostInput{ProductID: 1, Change: -91, Type: TransactionTypeIn})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.Equal(t, int64(90), repo.stock(1))
}

func TestPostBatchAllOrNothing(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(ProductStock{ID: 1, Name: "Pens", CurrentStock: 20})
	repo.seed(ProductStock{ID: 2, Name: "Markers", CurrentStock: 2})
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.PostBatch(context.Background(), []PostInput{
		{ProductID: 1, Change: 5, Type: TransactionTypeOut},
		{ProductID: 2, Change: 5, Type: TransactionTypeOut},
	}, "")
	require.ErrorIs(t, err, ErrNegativeStock)
	require.Equal(t, int64(20), repo.stock(1))
	require.Equal(t, int64(2), repo.stock(2))

	txs, err := svc.ListByProduct(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestPostBatchSuccess(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(ProductStock{ID: 7, Name: "Pens", CurrentStock: 20})
	repo.seed(ProductStock{ID: 3, Name: "Markers", CurrentStock: 10})
	svc := NewService(repo, nil, nil, nil)

	dept := "finance"
	posted, err := svc.PostBatch(context.Background(), []PostInput{
		{ProductID: 7, Change: 5, Type: TransactionTypeOut, Department: &dept},
		{ProductID: 3, Change: 2, Type: TransactionTypeOut, Department: &dept},
	}, "")
	require.NoError(t, err)
	require.Len(t, posted, 2)
	// Entries are posted in ascending product id order.
	require.Equal(t, int64(3), posted[0].ProductID)
	require.Equal(t, int64(7), posted[1].ProductID)
	require.Equal(t, int64(15), repo.stock(7))
	require.Equal(t, int64(8), repo.stock(3))

	txs, err := svc.ListByDepartment(context.Background(), dept, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
}

func TestPostBatchInTxJoinsCallerTransaction(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(ProductStock{ID: 1, Name: "Pens", CurrentStock: 20})
	repo.seed(ProductStock{ID: 2, Name: "Markers", CurrentStock: 10})
	svc := NewService(repo, nil, nil, nil)

	posted, err := svc.PostBatchInTx(context.Background(), nil, []PostInput{
		{ProductID: 2, Change: 3, Type: TransactionTypeOut},
		{ProductID: 1, Change: 5, Type: TransactionTypeOut},
	}, "")
	require.NoError(t, err)
	require.Len(t, posted, 2)
	require.Equal(t, int64(15), repo.stock(1))
	require.Equal(t, int64(7), repo.stock(2))

	// The postings ride the caller's transaction: no new one is opened.
	require.Equal(t, 0, repo.withTxCalls)
	require.Equal(t, 1, repo.inTxCalls)
}

func TestConcurrentIssuanceExactlyOneFails(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(ProductStock{ID: 1, Name: "Paper", CurrentStock: 10})
	svc := NewService(repo, nil, nil, nil)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Post(context.Background(), PostInput{ProductID: 1, Change: 6, Type: TransactionTypeOut})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrNegativeStock)
			failed++
		}
	}
	require.Equal(t, 1, failed)
	require.Equal(t, int64(4), repo.stock(1))
}
