package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrOrderNotFound   = fmt.Errorf("order %w", ErrNotFound)
	ErrAddressNotFound = fmt.Errorf("address %w", ErrNotFound)
	ErrBookNotFound    = fmt.Errorf("book %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)

	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrOutOfStock             = errors.New("out of stock")
	ErrVerificationFailed     = errors.New("signature verification failed")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrGateway                = errors.New("payment gateway error")
	ErrDuplicateOrder         = errors.New("order with this idempotency key already exists")
	ErrConcurrentUpdate       = errors.New("order was modified concurrently")
	ErrRefundNotAllowed       = errors.New("refund not allowed")
	ErrDeliveryRequired       = errors.New("delivery details must be added before shipping the order")
	ErrInvalidOrder           = errors.New("invalid order")
	ErrPaymentFieldNotAllowed = errors.New("payment field not allowed for status")
)

// TransitionError is returned when an order status change is not on a legal edge.
type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// OutOfStockError names every book that could not be served.
type OutOfStockError struct {
	BookIDs []string
}

func (e *OutOfStockError) Error() string {
	return "items out of stock: " + strings.Join(e.BookIDs, ", ")
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }
