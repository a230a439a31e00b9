package application

import (
	"context"
	"time"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/RaikyD/bookstore-orders-service/internal/logger"
	"github.com/RaikyD/bookstore-orders-service/internal/repository"
)

const (
	expiredPaymentReason = "payment window expired"
	sweepBatchSize       = 100
)

// ExpireStalePending fails online-payment orders that have waited for
// payment since before cutoff. Nothing was reserved for them, so there is
// nothing to compensate; a capture arriving later is refunded on settlement.
func (s *OrdersService) ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	stale, err := s.store.Orders().ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range stale {
		var order *domain.Order
		err := s.inTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
			order = nil
			o, err := tx.Orders().FindByOrderID(ctx, candidate.OrderID)
			if err != nil {
				return err
			}
			if o.Status != domain.StatusPending || o.Payment.Status != domain.PaymentPending {
				return nil
			}
			if err := o.UpdatePaymentStatus(domain.PaymentFailed, domain.PaymentUpdate{FailureReason: expiredPaymentReason}); err != nil {
				return err
			}
			if err := o.UpdateStatus(domain.StatusFailed); err != nil {
				return err
			}
			order = o
			return tx.Orders().Update(ctx, o)
		})
		if err != nil {
			if ctx.Err() != nil {
				return expired, ctx.Err()
			}
			logger.Warn("expire pending order failed", "orderId", candidate.OrderID, "err", err)
			continue
		}
		if order != nil {
			expired++
			s.publish(ctx, EventOrderExpired, order)
		}
	}
	return expired, nil
}

// PendingSweeper runs ExpireStalePending on a fixed interval.
type PendingSweeper struct {
	orders   *OrdersService
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewPendingSweeper(orders *OrdersService, ttl, interval time.Duration) *PendingSweeper {
	return &PendingSweeper{orders: orders, ttl: ttl, interval: interval, now: time.Now}
}

// Sweep runs one pass and returns the number of expired orders.
func (p *PendingSweeper) Sweep(ctx context.Context) (int, error) {
	return p.orders.ExpireStalePending(ctx, p.now().Add(-p.ttl), sweepBatchSize)
}

// Start runs the sweeper until ctx is done. A zero ttl disables it.
func (p *PendingSweeper) Start(ctx context.Context) {
	if p.ttl <= 0 || p.interval <= 0 {
		logger.Info("pending order sweeper disabled")
		return
	}
	logger.Info("pending order sweeper starting", "ttl", p.ttl, "interval", p.interval)

	go func() {
		t := time.NewTicker(p.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := p.Sweep(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Warn("pending order sweep failed", "err", err)
					continue
				}
				if n > 0 {
					logger.Info("expired stale pending orders", "count", n)
				}
			}
		}
	}()
}
