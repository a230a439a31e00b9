package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/RaikyD/bookstore-orders-service/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(t *testing.T, key string) *domain.Order {
	t.Helper()
	item, err := domain.NewOrderItem("book-a", 2, 25000, "Dune", "fiction", "")
	require.NoError(t, err)
	o, err := domain.NewOrder(domain.NewOrderParams{
		OrderID:        domain.NewBusinessOrderID() + key,
		UserID:         "user-1",
		Items:          []domain.OrderItem{item},
		Subtotal:       50000,
		TotalPrice:     50000,
		Method:         domain.MethodRazorpay,
		Currency:       "INR",
		GatewayOrderID: "order_" + key,
		IdempotencyKey: key,
	})
	require.NoError(t, err)
	return o
}

func TestStore_CreateRejectsDuplicateKey(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Orders().Create(ctx, newOrder(t, "k1")))
	err := s.Orders().Create(ctx, newOrder(t, "k1"))
	assert.ErrorIs(t, err, domain.ErrDuplicateOrder)
	assert.Equal(t, 1, s.OrderCount())
}

func TestStore_UpdateChecksVersion(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	o := newOrder(t, "k1")
	require.NoError(t, s.Orders().Create(ctx, o))

	a, err := s.Orders().FindByOrderID(ctx, o.OrderID)
	require.NoError(t, err)
	b, err := s.Orders().FindByOrderID(ctx, o.OrderID)
	require.NoError(t, err)

	require.NoError(t, a.UpdateStatus(domain.StatusPlaced))
	require.NoError(t, s.Orders().Update(ctx, a))
	assert.Equal(t, 1, a.Version)

	require.NoError(t, b.UpdateStatus(domain.StatusFailed))
	assert.ErrorIs(t, s.Orders().Update(ctx, b), domain.ErrConcurrentUpdate)

	got, err := s.Orders().FindByGatewayOrderID(ctx, "order_k1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPlaced, got.Status)
}

func TestStore_ReturnedOrdersAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	o := newOrder(t, "k1")
	require.NoError(t, s.Orders().Create(ctx, o))

	o.Status = domain.StatusCancelled
	got, err := s.Orders().FindByIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.PutBook(domain.BookDetails{ID: "book-a", Stock: 5})
	s.AddCartItem("user-1", "book-a", 1)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		ok, err := tx.Books().ReduceStock(ctx, "book-a", 3)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tx.Carts().ClearCart(ctx, "user-1"))
		require.NoError(t, tx.Orders().Create(ctx, newOrder(t, "k1")))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, s.Stock("book-a"))
	assert.Equal(t, 1, s.CartSize("user-1"))
	assert.Equal(t, 0, s.OrderCount())

	err = s.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		_, err := tx.Books().ReduceStock(ctx, "book-a", 3)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Stock("book-a"))
}

func TestStore_ReduceStockIsConditional(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.PutBook(domain.BookDetails{ID: "book-a", Stock: 2})

	ok, err := s.Books().ReduceStock(ctx, "book-a", 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, s.Stock("book-a"))

	ok, err = s.Books().ReduceStock(ctx, "missing", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, s.Books().IncreaseStock(ctx, "missing", 1), domain.ErrNotFound)
}

func TestStore_AddressScopedToUser(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.PutAddress("user-1", "addr-1", domain.ShippingAddress{FullName: "Asha"})

	a, err := s.Addresses().FindShippingAddressSnapshot(ctx, "user-1", "addr-1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", a.FullName)

	_, err = s.Addresses().FindShippingAddressSnapshot(ctx, "user-2", "addr-1")
	assert.ErrorIs(t, err, domain.ErrAddressNotFound)
}

func TestStore_ListStalePending(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	old := newOrder(t, "old")
	old.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.Orders().Create(ctx, old))
	require.NoError(t, s.Orders().Create(ctx, newOrder(t, "fresh")))

	stale, err := s.Orders().ListStalePending(ctx, time.Now().Add(-30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].IdempotencyKey)
}

func TestStore_ListOrdersFiltersAndCounts(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	older := newOrder(t, "k1")
	older.CreatedAt = time.Now().Add(-2 * time.Hour)
	older.ShippingAddress.FullName = "Asha Rao"
	newer := newOrder(t, "k2")
	require.NoError(t, newer.UpdateStatus(domain.StatusPlaced))
	require.NoError(t, s.Orders().Create(ctx, older))
	require.NoError(t, s.Orders().Create(ctx, newer))

	got, total, err := s.Orders().ListOrders(ctx, repository.OrderFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, got, 1)
	assert.Equal(t, newer.OrderID, got[0].OrderID)

	got, total, err = s.Orders().ListOrders(ctx, repository.OrderFilter{Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, older.OrderID, got[0].OrderID)

	cutoff := time.Now().Add(-time.Hour)
	_, total, err = s.Orders().ListOrders(ctx, repository.OrderFilter{CreatedTo: &cutoff})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	got, total, err = s.Orders().ListOrders(ctx, repository.OrderFilter{Search: "asha"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, older.OrderID, got[0].OrderID)

	got, _, err = s.Orders().ListOrders(ctx, repository.OrderFilter{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, got)
}
