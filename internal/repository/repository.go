package repository

import (
	"context"
	"strings"
	"time"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
)

type OrderRepo interface {
	// Create inserts a new order with its items. A second order with the same
	// idempotency key fails with domain.ErrDuplicateOrder.
	Create(ctx context.Context, order *domain.Order) error
	// Update persists mutable order state if the stored version still matches
	// order.Version, otherwise domain.ErrConcurrentUpdate.
	Update(ctx context.Context, order *domain.Order) error

	FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.Order, error)
	FindByGatewayPaymentID(ctx context.Context, paymentID string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Order, error)
	// ListStalePending returns RAZORPAY orders still PENDING/PENDING created before the cutoff.
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]*domain.Order, error)
	// ListOrders returns one page of matching orders, newest first, and the
	// number of matches across all pages.
	ListOrders(ctx context.Context, f OrderFilter) ([]*domain.Order, int, error)
}

// OrderFilter narrows an admin order listing. Zero fields do not filter.
// CreatedFrom and CreatedTo are both inclusive.
type OrderFilter struct {
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	PaymentMethod domain.PaymentMethod
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	// Search is a case-insensitive substring of the order id, email, or the
	// shipping name or phone.
	Search string
	Limit  int
	Offset int
}

func (f OrderFilter) Matches(o *domain.Order) bool {
	switch {
	case f.Status != "" && o.Status != f.Status:
		return false
	case f.PaymentStatus != "" && o.Payment.Status != f.PaymentStatus:
		return false
	case f.PaymentMethod != "" && o.Payment.Method != f.PaymentMethod:
		return false
	case f.CreatedFrom != nil && o.CreatedAt.Before(*f.CreatedFrom):
		return false
	case f.CreatedTo != nil && o.CreatedAt.After(*f.CreatedTo):
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	if q == "" {
		return true
	}
	for _, field := range []string{o.OrderID, o.Email, o.ShippingAddress.FullName, o.ShippingAddress.Phone} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

type BookRepo interface {
	FindBookDetails(ctx context.Context, bookID string) (*domain.BookDetails, error)
	CheckStock(ctx context.Context, bookID string, quantity int) (bool, error)
	// ReduceStock decrements only if current stock >= quantity and reports
	// whether it did.
	ReduceStock(ctx context.Context, bookID string, quantity int) (bool, error)
	IncreaseStock(ctx context.Context, bookID string, quantity int) error
}

type CartRepo interface {
	ClearCart(ctx context.Context, userID string) error
}

type UserRepo interface {
	FindByID(ctx context.Context, userID string) (*domain.User, error)
}

type AddressRepo interface {
	// FindShippingAddressSnapshot returns a copy of the user's address.
	FindShippingAddressSnapshot(ctx context.Context, userID, addressID string) (*domain.ShippingAddress, error)
}

// Repositories is the set of repositories bound to one connection or transaction.
type Repositories interface {
	Orders() OrderRepo
	Books() BookRepo
	Carts() CartRepo
	Users() UserRepo
	Addresses() AddressRepo
}

// Store is the unit of work. Repositories used directly on the Store run
// outside any transaction; WithinTx commits when fn returns nil and rolls
// back otherwise.
type Store interface {
	Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
}
