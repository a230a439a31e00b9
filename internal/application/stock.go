package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/RaikyD/bookstore-orders-service/internal/repository"
)

// reserveStock takes stock for every item with a conditional decrement. When
// any item is short it puts back what it took and returns an
// *domain.OutOfStockError naming every short item.
func reserveStock(ctx context.Context, books repository.BookRepo, items []domain.OrderItem) error {
	var taken []domain.OrderItem
	var short []string
	for _, it := range items {
		ok, err := books.ReduceStock(ctx, it.BookID, it.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			short = append(short, it.BookID)
			continue
		}
		taken = append(taken, it)
	}
	if len(short) == 0 {
		return nil
	}
	if err := restoreStock(ctx, books, taken); err != nil {
		return err
	}
	return &domain.OutOfStockError{BookIDs: short}
}

func restoreStock(ctx context.Context, books repository.BookRepo, items []domain.OrderItem) error {
	for _, it := range items {
		if err := books.IncreaseStock(ctx, it.BookID, it.Quantity); err != nil {
			return fmt.Errorf("restore stock for %s: %w", it.BookID, err)
		}
	}
	return nil
}

// shortItems reports the items that cannot currently be served, without
// touching stock.
func shortItems(ctx context.Context, books repository.BookRepo, items []domain.OrderItem) ([]string, error) {
	var short []string
	for _, it := range items {
		ok, err := books.CheckStock(ctx, it.BookID, it.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			short = append(short, it.BookID)
		}
	}
	return short, nil
}

func asOutOfStock(err error) ([]string, bool) {
	var oos *domain.OutOfStockError
	if errors.As(err, &oos) {
		return oos.BookIDs, true
	}
	return nil, false
}
