// Package memory is an in-process implementation of repository.Store used by
// tests and STORAGE_DRIVER=memory runs. Transactions are serialized: WithinTx
// works on a private copy of the data and swaps it in on commit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/RaikyD/bookstore-orders-service/internal/repository"
)

type address struct {
	userID string
	value  domain.ShippingAddress
}

type dataset struct {
	orders    map[string]*domain.Order
	books     map[string]domain.BookDetails
	users     map[string]domain.User
	addresses map[string]address
	carts     map[string]map[string]int
}

func newDataset() *dataset {
	return &dataset{
		orders:    make(map[string]*domain.Order),
		books:     make(map[string]domain.BookDetails),
		users:     make(map[string]domain.User),
		addresses: make(map[string]address),
		carts:     make(map[string]map[string]int),
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, o := range d.orders {
		c.orders[k] = o.Clone()
	}
	for k, b := range d.books {
		c.books[k] = b
	}
	for k, u := range d.users {
		c.users[k] = u
	}
	for k, a := range d.addresses {
		c.addresses[k] = a
	}
	for u, items := range d.carts {
		m := make(map[string]int, len(items))
		for b, q := range items {
			m[b] = q
		}
		c.carts[u] = m
	}
	return c
}

type Store struct {
	view
	lock sync.Mutex
	data *dataset
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	s := &Store{data: newDataset()}
	s.view = view{mu: &s.lock, data: func() *dataset { return s.data }}
	return s
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()

	work := s.data.clone()
	if err := fn(ctx, view{mu: nopLocker{}, data: func() *dataset { return work }}); err != nil {
		return err
	}
	s.data = work
	return nil
}

// Seed and inspection helpers.

func (s *Store) PutBook(b domain.BookDetails) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.data.books[b.ID] = b
}

func (s *Store) PutUser(u domain.User) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.data.users[u.ID] = u
}

func (s *Store) PutAddress(userID, addressID string, a domain.ShippingAddress) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.data.addresses[addressID] = address{userID: userID, value: a}
}

func (s *Store) AddCartItem(userID, bookID string, quantity int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.data.carts[userID] == nil {
		s.data.carts[userID] = make(map[string]int)
	}
	s.data.carts[userID][bookID] += quantity
}

// Stock returns -1 for unknown books.
func (s *Store) Stock(bookID string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	b, ok := s.data.books[bookID]
	if !ok {
		return -1
	}
	return b.Stock
}

func (s *Store) CartSize(userID string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.data.carts[userID])
}

func (s *Store) OrderCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.data.orders)
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

// view binds repositories to a dataset. Outside a transaction every call
// takes the store lock; inside one the lock is already held.
type view struct {
	mu   sync.Locker
	data func() *dataset
}

func (v view) Orders() repository.OrderRepo       { return orderRepo{v} }
func (v view) Books() repository.BookRepo         { return bookRepo{v} }
func (v view) Carts() repository.CartRepo         { return cartRepo{v} }
func (v view) Users() repository.UserRepo         { return userRepo{v} }
func (v view) Addresses() repository.AddressRepo { return addressRepo{v} }

func (v view) with(fn func(d *dataset) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return fn(v.data())
}

type orderRepo struct{ v view }

func (r orderRepo) Create(_ context.Context, o *domain.Order) error {
	return r.v.with(func(d *dataset) error {
		if _, ok := d.orders[o.OrderID]; ok {
			return domain.ErrDuplicateOrder
		}
		for _, existing := range d.orders {
			if existing.IdempotencyKey == o.IdempotencyKey {
				return domain.ErrDuplicateOrder
			}
		}
		d.orders[o.OrderID] = o.Clone()
		return nil
	})
}

func (r orderRepo) Update(_ context.Context, o *domain.Order) error {
	return r.v.with(func(d *dataset) error {
		cur, ok := d.orders[o.OrderID]
		if !ok || cur.Version != o.Version {
			return domain.ErrConcurrentUpdate
		}
		o.Version++
		d.orders[o.OrderID] = o.Clone()
		return nil
	})
}

func (r orderRepo) FindByOrderID(_ context.Context, orderID string) (*domain.Order, error) {
	return r.findOne(func(o *domain.Order) bool { return o.OrderID == orderID })
}

func (r orderRepo) FindByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	return r.findOne(func(o *domain.Order) bool { return o.IdempotencyKey == key })
}

func (r orderRepo) FindByGatewayOrderID(_ context.Context, gatewayOrderID string) (*domain.Order, error) {
	return r.findOne(func(o *domain.Order) bool {
		return gatewayOrderID != "" && o.Payment.GatewayOrderID == gatewayOrderID
	})
}

func (r orderRepo) FindByGatewayPaymentID(_ context.Context, paymentID string) (*domain.Order, error) {
	return r.findOne(func(o *domain.Order) bool {
		return paymentID != "" && o.Payment.GatewayPaymentID == paymentID
	})
}

func (r orderRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]*domain.Order, error) {
	out := r.filter(func(o *domain.Order) bool { return o.UserID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (r orderRepo) ListStalePending(_ context.Context, before time.Time, limit int) ([]*domain.Order, error) {
	out := r.filter(func(o *domain.Order) bool {
		return o.Status == domain.StatusPending &&
			o.Payment.Status == domain.PaymentPending &&
			o.Payment.Method == domain.MethodRazorpay &&
			o.CreatedAt.Before(before)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, 0), nil
}

func (r orderRepo) ListOrders(_ context.Context, f repository.OrderFilter) ([]*domain.Order, int, error) {
	out := r.filter(f.Matches)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Limit, f.Offset), len(out), nil
}

func (r orderRepo) findOne(match func(*domain.Order) bool) (*domain.Order, error) {
	var found *domain.Order
	_ = r.v.with(func(d *dataset) error {
		for _, o := range d.orders {
			if match(o) {
				found = o.Clone()
				return nil
			}
		}
		return nil
	})
	if found == nil {
		return nil, domain.ErrOrderNotFound
	}
	return found, nil
}

func (r orderRepo) filter(match func(*domain.Order) bool) []*domain.Order {
	var out []*domain.Order
	_ = r.v.with(func(d *dataset) error {
		for _, o := range d.orders {
			if match(o) {
				out = append(out, o.Clone())
			}
		}
		return nil
	})
	return out
}

func page(orders []*domain.Order, limit, offset int) []*domain.Order {
	if offset >= len(orders) {
		return nil
	}
	orders = orders[offset:]
	if limit > 0 && limit < len(orders) {
		orders = orders[:limit]
	}
	return orders
}

type bookRepo struct{ v view }

func (r bookRepo) FindBookDetails(_ context.Context, bookID string) (*domain.BookDetails, error) {
	var out *domain.BookDetails
	err := r.v.with(func(d *dataset) error {
		b, ok := d.books[bookID]
		if !ok {
			return domain.ErrBookNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

func (r bookRepo) CheckStock(_ context.Context, bookID string, quantity int) (bool, error) {
	var ok bool
	_ = r.v.with(func(d *dataset) error {
		b, found := d.books[bookID]
		ok = found && b.Stock >= quantity
		return nil
	})
	return ok, nil
}

func (r bookRepo) ReduceStock(_ context.Context, bookID string, quantity int) (bool, error) {
	var ok bool
	_ = r.v.with(func(d *dataset) error {
		b, found := d.books[bookID]
		if !found || b.Stock < quantity {
			return nil
		}
		b.Stock -= quantity
		d.books[bookID] = b
		ok = true
		return nil
	})
	return ok, nil
}

func (r bookRepo) IncreaseStock(_ context.Context, bookID string, quantity int) error {
	return r.v.with(func(d *dataset) error {
		b, found := d.books[bookID]
		if !found {
			return domain.ErrBookNotFound
		}
		b.Stock += quantity
		d.books[bookID] = b
		return nil
	})
}

type cartRepo struct{ v view }

func (r cartRepo) ClearCart(_ context.Context, userID string) error {
	return r.v.with(func(d *dataset) error {
		delete(d.carts, userID)
		return nil
	})
}

type userRepo struct{ v view }

func (r userRepo) FindByID(_ context.Context, userID string) (*domain.User, error) {
	var out *domain.User
	err := r.v.with(func(d *dataset) error {
		u, ok := d.users[userID]
		if !ok {
			return domain.ErrUserNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

type addressRepo struct{ v view }

func (r addressRepo) FindShippingAddressSnapshot(_ context.Context, userID, addressID string) (*domain.ShippingAddress, error) {
	var out *domain.ShippingAddress
	err := r.v.with(func(d *dataset) error {
		a, ok := d.addresses[addressID]
		if !ok || a.userID != userID {
			return domain.ErrAddressNotFound
		}
		v := a.value
		out = &v
		return nil
	})
	return out, err
}
