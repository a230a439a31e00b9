package application

import (
	"context"
	"errors"
	"time"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/RaikyD/bookstore-orders-service/internal/logger"
	"github.com/RaikyD/bookstore-orders-service/internal/repository"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// errAbort rolls back a transaction whose outcome has already been written
// to the operation result.
var errAbort = errors.New("abort transaction")

const defaultTxRetries = 3

type OrdersService struct {
	store    repository.Store
	gateway  PaymentGateway
	events   EventPublisher
	currency string
	retries  uint64
	tracer   trace.Tracer
	metrics  serviceMetrics
}

type Option func(*OrdersService)

func WithPublisher(p EventPublisher) Option {
	return func(s *OrdersService) {
		if p != nil {
			s.events = p
		}
	}
}

func WithCurrency(currency string) Option {
	return func(s *OrdersService) {
		if currency != "" {
			s.currency = currency
		}
	}
}

// WithMeter records service counters on meter instead of the global provider.
func WithMeter(meter metric.Meter) Option {
	return func(s *OrdersService) { s.metrics = newServiceMetrics(meter) }
}

// WithTxRetries bounds how often a transaction that lost an optimistic
// version check is re-run.
func WithTxRetries(n uint64) Option {
	return func(s *OrdersService) { s.retries = n }
}

func NewOrdersService(store repository.Store, gw PaymentGateway, opts ...Option) *OrdersService {
	s := &OrdersService{
		store:    store,
		gateway:  gw,
		events:   NopPublisher{},
		currency: "INR",
		retries:  defaultTxRetries,
		tracer:   otel.Tracer("bookstore-orders/application"),
		metrics:  defaultMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// inTx runs fn in a transaction and re-runs it from scratch when an order
// update lost a version race. fn must not keep state between attempts.
func (s *OrdersService) inTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) error {
	b := retry.WithMaxRetries(s.retries, retry.NewExponential(20*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := s.store.WithinTx(ctx, fn)
		if errors.Is(err, domain.ErrConcurrentUpdate) {
			logger.Debug("order transaction lost version race, retrying", "err", err)
			s.metrics.txRetries.Add(ctx, 1)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *OrdersService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "orders."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// publish is best effort; the state change is already committed.
func (s *OrdersService) publish(ctx context.Context, typ EventType, o *domain.Order) {
	if o == nil {
		return
	}
	s.metrics.events.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(typ))))
	if err := s.events.Publish(ctx, NewOrderEvent(typ, o)); err != nil {
		logger.Warn("order event publish failed", "orderId", o.OrderID, "type", typ, "err", err)
	}
}
