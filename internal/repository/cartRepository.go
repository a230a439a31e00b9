package repository

import (
	"context"
	"fmt"
)

type CartRepository struct {
	q Querier
}

func NewCartRepository(q Querier) *CartRepository {
	return &CartRepository{q: q}
}

func (c *CartRepository) ClearCart(ctx context.Context, userID string) error {
	if _, err := c.q.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart %s: %w", userID, err)
	}
	return nil
}
