package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/jackc/pgx/v5"
)

type UserRepository struct {
	q Querier
}

func NewUserRepository(q Querier) *UserRepository {
	return &UserRepository{q: q}
}

func (u *UserRepository) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	var usr domain.User
	err := u.q.QueryRow(ctx, `
		SELECT id, email, is_blocked FROM users WHERE id = $1
	`, userID).Scan(&usr.ID, &usr.Email, &usr.IsBlocked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user %s: %w", userID, err)
	}
	return &usr, nil
}
