package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/jackc/pgx/v5"
)

type BookRepository struct {
	q Querier
}

func NewBookRepository(q Querier) *BookRepository {
	return &BookRepository{q: q}
}

func (b *BookRepository) FindBookDetails(ctx context.Context, bookID string) (*domain.BookDetails, error) {
	var d domain.BookDetails
	err := b.q.QueryRow(ctx, `
		SELECT id, title, category, cover_image, stock
		FROM books WHERE id = $1
	`, bookID).Scan(&d.ID, &d.Title, &d.Category, &d.CoverImage, &d.Stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookNotFound
		}
		return nil, fmt.Errorf("find book %s: %w", bookID, err)
	}
	return &d, nil
}

func (b *BookRepository) CheckStock(ctx context.Context, bookID string, quantity int) (bool, error) {
	var ok bool
	err := b.q.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM books WHERE id = $1 AND stock >= $2)
	`, bookID, quantity).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check stock %s: %w", bookID, err)
	}
	return ok, nil
}

// ReduceStock never goes below zero: the guard and the decrement are one statement.
func (b *BookRepository) ReduceStock(ctx context.Context, bookID string, quantity int) (bool, error) {
	tag, err := b.q.Exec(ctx, `
		UPDATE books SET stock = stock - $1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1
	`, quantity, bookID)
	if err != nil {
		return false, fmt.Errorf("reduce stock %s: %w", bookID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (b *BookRepository) IncreaseStock(ctx context.Context, bookID string, quantity int) error {
	tag, err := b.q.Exec(ctx, `
		UPDATE books SET stock = stock + $1, updated_at = NOW()
		WHERE id = $2
	`, quantity, bookID)
	if err != nil {
		return fmt.Errorf("increase stock %s: %w", bookID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookNotFound
	}
	return nil
}
