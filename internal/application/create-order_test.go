package application

import (
	"context"
	"errors"
	"testing"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/RaikyD/bookstore-orders-service/internal/gateway"
	"github.com/RaikyD/bookstore-orders-service/internal/repository"
	"github.com/RaikyD/bookstore-orders-service/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder_COD(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CreateOrder(context.Background(), orderInput("idem-1", domain.MethodCOD, item("book-a", 2, 25000)))
	require.NoError(t, err)
	require.True(t, res.Success)

	o := res.Order
	assert.Equal(t, domain.StatusPlaced, o.Status)
	assert.Equal(t, domain.PaymentPending, o.Payment.Status)
	assert.Equal(t, int64(54000), o.TotalPrice)
	assert.Equal(t, "INR", o.Payment.Currency)
	assert.Equal(t, "Dune", o.Items[0].Title)
	assert.Equal(t, "fiction", o.Items[0].Category)
	assert.Equal(t, testAddress, o.ShippingAddress)
	assert.Empty(t, res.GatewayOrderID)

	assert.Equal(t, 3, f.store.Stock("book-a"))
	assert.Equal(t, 0, f.store.CartSize(userID))
	assert.Equal(t, []EventType{EventOrderCreated, EventOrderPlaced}, f.events.types())
	f.gw.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestCreateOrder_IdempotentRetry(t *testing.T) {
	f := newFixture(t)
	in := orderInput("idem-1", domain.MethodCOD, item("book-a", 2, 25000))

	first, err := f.svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)
	second, err := f.svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, second.Success)
	assert.True(t, second.AlreadyExists)
	assert.Equal(t, first.Order.OrderID, second.Order.OrderID)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 3, f.store.Stock("book-a"), "stock is taken once")
	assert.Equal(t, 1, f.store.OrderCount())
}

func TestCreateOrder_IdempotentRetryReturnsGatewayOrder(t *testing.T) {
	f := newFixture(t)
	first := f.placeOnline(t, "idem-1", "order_rzp_1", item("book-a", 2, 25000))

	res, err := f.svc.CreateOrder(context.Background(), orderInput("idem-1", domain.MethodRazorpay, item("book-a", 2, 25000)))
	require.NoError(t, err)
	assert.True(t, res.AlreadyExists)
	assert.Equal(t, first.OrderID, res.Order.OrderID)
	assert.Equal(t, "order_rzp_1", res.GatewayOrderID)
	f.gw.AssertNumberOfCalls(t, "CreateOrder", 1)
}

func TestCreateOrder_OutOfStockReportsEveryItem(t *testing.T) {
	f := newFixture(t)
	in := orderInput("idem-1", domain.MethodCOD,
		item("book-a", 3, 25000),
		item("book-b", 1, 30000),
		item("book-missing", 1, 100))

	res, err := f.svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, ReasonOutOfStock, res.Reason)
	assert.Equal(t, []string{"book-b", "book-missing"}, res.OutOfStockIDs)
	assert.Nil(t, res.Order)
	assert.Equal(t, 5, f.store.Stock("book-a"))
	assert.Equal(t, 0, f.store.OrderCount())
	assert.Equal(t, 1, f.store.CartSize(userID))
	assert.Empty(t, f.events.types())
}

func TestCreateOrder_RazorpayDefersStock(t *testing.T) {
	f := newFixture(t)
	f.gw.On("CreateOrder", mock.Anything, mock.MatchedBy(func(r gateway.CreateOrderRequest) bool {
		return r.Amount == 54000 && r.Currency == "INR" && r.Notes["userId"] == userID
	})).Return(&gateway.Order{ID: "order_rzp_1"}, nil).Once()

	res, err := f.svc.CreateOrder(context.Background(), orderInput("idem-1", domain.MethodRazorpay, item("book-a", 2, 25000)))
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, "order_rzp_1", res.GatewayOrderID)
	assert.Equal(t, "order_rzp_1", res.Order.Payment.GatewayOrderID)
	assert.Equal(t, domain.StatusPending, res.Order.Status)
	assert.Equal(t, 5, f.store.Stock("book-a"))
	assert.Equal(t, 1, f.store.CartSize(userID))
	f.gw.AssertExpectations(t)
}

func TestCreateOrder_GatewayFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.gw.On("CreateOrder", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset")).Once()

	res, err := f.svc.CreateOrder(context.Background(), orderInput("idem-1", domain.MethodRazorpay, item("book-a", 2, 25000)))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonPaymentInit, res.Reason)
	assert.Equal(t, "Failed to initialize payment", res.Message)
	assert.Equal(t, 0, f.store.OrderCount())
}

func TestCreateOrder_InvalidAddress(t *testing.T) {
	f := newFixture(t)
	in := orderInput("idem-1", domain.MethodCOD, item("book-a", 2, 25000))
	in.AddressID = "addr-someone-else"

	res, err := f.svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonInvalidAddress, res.Reason)
	assert.Equal(t, 0, f.store.OrderCount())
	assert.Equal(t, 5, f.store.Stock("book-a"))
}

func TestCreateOrder_RejectsInconsistentTotals(t *testing.T) {
	f := newFixture(t)
	in := orderInput("idem-1", domain.MethodCOD, item("book-a", 2, 25000))
	in.TotalPrice++

	_, err := f.svc.CreateOrder(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	in = orderInput("", domain.MethodCOD, item("book-a", 2, 25000))
	_, err = f.svc.CreateOrder(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	in = orderInput("idem-2", "UPI", item("book-a", 2, 25000))
	_, err = f.svc.CreateOrder(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestCreateOrder_ConcurrentSameKey(t *testing.T) {
	f := newFixture(t)
	in := orderInput("idem-1", domain.MethodCOD, item("book-a", 1, 25000))

	const n = 8
	results := make(chan *CreateOrderResult, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			res, err := f.svc.CreateOrder(context.Background(), in)
			results <- res
			errs <- err
		}()
	}

	ids := map[string]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
		res := <-results
		require.True(t, res.Success)
		ids[res.Order.OrderID] = true
	}
	assert.Len(t, ids, 1)
	assert.Equal(t, 4, f.store.Stock("book-a"))
	assert.Equal(t, 1, f.store.OrderCount())
}

func TestCreateOrder_KeyOfAnotherUserIsConflict(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), orderInput("idem-1", domain.MethodCOD, item("book-a", 2, 25000)))
	require.NoError(t, err)

	in := orderInput("idem-1", domain.MethodCOD, item("book-a", 1, 25000))
	in.UserID = otherUserID
	res, err := f.svc.CreateOrder(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrDuplicateOrder)
	assert.Nil(t, res)
	assert.Equal(t, 3, f.store.Stock("book-a"))
}

// staleKeyStore hides the first idempotency lookup, as if a concurrent
// request inserted the key right after it.
type staleKeyStore struct {
	*memory.Store
	hidden *int
}

func (s staleKeyStore) Orders() repository.OrderRepo {
	return staleKeyOrders{OrderRepo: s.Store.Orders(), hidden: s.hidden}
}

type staleKeyOrders struct {
	repository.OrderRepo
	hidden *int
}

func (r staleKeyOrders) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	if *r.hidden > 0 {
		*r.hidden--
		return nil, domain.ErrOrderNotFound
	}
	return r.OrderRepo.FindByIdempotencyKey(ctx, key)
}

func TestCreateOrder_LostInsertRaceChecksOwner(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), orderInput("idem-1", domain.MethodCOD, item("book-a", 2, 25000)))
	require.NoError(t, err)

	f.store.PutAddress(otherUserID, "addr-2", testAddress)
	hidden := 1
	svc := NewOrdersService(staleKeyStore{Store: f.store, hidden: &hidden}, f.gw)

	in := orderInput("idem-1", domain.MethodCOD, item("book-c", 1, 30000))
	in.UserID = otherUserID
	in.AddressID = "addr-2"
	res, err := svc.CreateOrder(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrDuplicateOrder)
	assert.Nil(t, res)
	assert.Equal(t, 10, f.store.Stock("book-c"), "rolled back with the failed insert")

	hidden = 1
	res, err = svc.CreateOrder(context.Background(), orderInput("idem-1", domain.MethodCOD, item("book-a", 2, 25000)))
	require.NoError(t, err)
	assert.True(t, res.AlreadyExists)
	assert.Equal(t, userID, res.Order.UserID)
}
