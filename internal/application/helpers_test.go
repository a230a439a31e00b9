package application

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/RaikyD/bookstore-orders-service/internal/gateway"
	"github.com/RaikyD/bookstore-orders-service/internal/repository/memory"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error) {
	args := m.Called(ctx, req)
	o, _ := args.Get(0).(*gateway.Order)
	return o, args.Error(1)
}

func (m *mockGateway) InitiateRefund(ctx context.Context, paymentID string, amount int64) (*gateway.Refund, error) {
	args := m.Called(ctx, paymentID, amount)
	r, _ := args.Get(0).(*gateway.Refund)
	return r, args.Error(1)
}

func (m *mockGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return m.Called(orderID, paymentID, signature).Bool(0)
}

func (m *mockGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return m.Called(body, signature).Bool(0)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

const (
	userID      = "user-1"
	otherUserID = "user-2"
	addressID   = "addr-1"
	goodSig     = "good-signature"
	badSig      = "bad-signature"
)

var testAddress = domain.ShippingAddress{
	FullName:     "Asha Rao",
	Phone:        "9876543210",
	AddressLine1: "12 MG Road",
	City:         "Bengaluru",
	State:        "KA",
	Country:      "India",
	ZipCode:      "560001",
}

type fixture struct {
	store  *memory.Store
	gw     *mockGateway
	events *recordingPublisher
	svc    *OrdersService
	hooks  *WebhookReconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.PutUser(domain.User{ID: userID, Email: "asha@example.com"})
	store.PutUser(domain.User{ID: otherUserID, Email: "other@example.com"})
	store.PutAddress(userID, addressID, testAddress)
	store.PutBook(domain.BookDetails{ID: "book-a", Title: "Dune", Category: "fiction", Stock: 5})
	store.PutBook(domain.BookDetails{ID: "book-b", Title: "Emma", Category: "classics", Stock: 0})
	store.PutBook(domain.BookDetails{ID: "book-c", Title: "Ulysses", Category: "classics", Stock: 10})
	store.AddCartItem(userID, "book-a", 2)

	gw := &mockGateway{}
	events := &recordingPublisher{}
	svc := NewOrdersService(store, gw, WithPublisher(events), WithCurrency("INR"))
	return &fixture{
		store:  store,
		gw:     gw,
		events: events,
		svc:    svc,
		hooks:  NewWebhookReconciler(svc),
	}
}

func item(bookID string, qty int, price int64) CreateOrderItem {
	return CreateOrderItem{BookID: bookID, Quantity: qty, UnitPrice: price}
}

func orderInput(key string, method domain.PaymentMethod, items ...CreateOrderItem) CreateOrderInput {
	var subtotal int64
	for _, it := range items {
		subtotal += int64(it.Quantity) * it.UnitPrice
	}
	return CreateOrderInput{
		IdempotencyKey: key,
		UserID:         userID,
		Email:          "asha@example.com",
		AddressID:      addressID,
		Items:          items,
		Subtotal:       subtotal,
		DeliveryCharge: 4000,
		TotalPrice:     subtotal + 4000,
		Method:         method,
	}
}

// placeOnline creates a PENDING online order backed by gatewayOrderID.
func (f *fixture) placeOnline(t *testing.T, key, gatewayOrderID string, items ...CreateOrderItem) *domain.Order {
	t.Helper()
	f.gw.On("CreateOrder", mock.Anything, mock.MatchedBy(func(r gateway.CreateOrderRequest) bool {
		return r.Notes["orderId"] != "" && r.Receipt == r.Notes["orderId"]
	})).Return(&gateway.Order{ID: gatewayOrderID, Status: "created"}, nil).Once()

	res, err := f.svc.CreateOrder(context.Background(), orderInput(key, domain.MethodRazorpay, items...))
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	require.Equal(t, gatewayOrderID, res.GatewayOrderID)
	return res.Order
}

// placePaid creates an online order and settles it through the client path.
func (f *fixture) placePaid(t *testing.T, key, gatewayOrderID, paymentID string, items ...CreateOrderItem) *domain.Order {
	t.Helper()
	o := f.placeOnline(t, key, gatewayOrderID, items...)
	f.gw.On("VerifyPaymentSignature", gatewayOrderID, paymentID, goodSig).Return(true)

	res, err := f.svc.ConfirmPayment(context.Background(), ConfirmPaymentInput{
		OrderID:          o.OrderID,
		GatewayOrderID:   gatewayOrderID,
		GatewayPaymentID: paymentID,
		Signature:        goodSig,
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	return res.Order
}

func (f *fixture) order(t *testing.T, orderID string) *domain.Order {
	t.Helper()
	o, err := f.store.Orders().FindByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	return o
}

func webhookBody(t *testing.T, event string, createdAt int64, payload map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"entity":     "event",
		"event":      event,
		"created_at": createdAt,
		"payload":    payload,
	})
	require.NoError(t, err)
	return b
}

func paymentPayload(paymentID, gatewayOrderID, errorDescription string) map[string]any {
	return map[string]any{
		"payment": map[string]any{
			"entity": map[string]any{
				"id":                paymentID,
				"order_id":          gatewayOrderID,
				"amount":            54000,
				"status":            "captured",
				"error_description": errorDescription,
				"created_at":        1700000000,
			},
		},
	}
}
