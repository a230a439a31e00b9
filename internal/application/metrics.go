package application

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type serviceMetrics struct {
	events    metric.Int64Counter
	txRetries metric.Int64Counter
	refunds   metric.Int64Counter
}

// newServiceMetrics falls back to no-op instruments if the meter rejects one.
func newServiceMetrics(meter metric.Meter) serviceMetrics {
	var m serviceMetrics
	var err error
	if m.events, err = meter.Int64Counter("orders.events",
		metric.WithDescription("Order lifecycle events by type")); err != nil {
		m.events = noop.Int64Counter{}
	}
	if m.txRetries, err = meter.Int64Counter("orders.tx.retries",
		metric.WithDescription("Order transactions re-run after losing a version check")); err != nil {
		m.txRetries = noop.Int64Counter{}
	}
	if m.refunds, err = meter.Int64Counter("orders.refunds",
		metric.WithDescription("Refunds initiated at the payment gateway"),
		metric.WithUnit("{refund}")); err != nil {
		m.refunds = noop.Int64Counter{}
	}
	return m
}

func defaultMetrics() serviceMetrics {
	return newServiceMetrics(otel.Meter("bookstore-orders/application"))
}
