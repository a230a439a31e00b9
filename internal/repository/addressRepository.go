package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/jackc/pgx/v5"
)

type AddressRepository struct {
	q Querier
}

func NewAddressRepository(q Querier) *AddressRepository {
	return &AddressRepository{q: q}
}

func (a *AddressRepository) FindShippingAddressSnapshot(ctx context.Context, userID, addressID string) (*domain.ShippingAddress, error) {
	var s domain.ShippingAddress
	err := a.q.QueryRow(ctx, `
		SELECT full_name, phone, address_line1, address_line2, landmark,
		       city, state, country, zip_code
		FROM addresses
		WHERE id = $1 AND user_id = $2
	`, addressID, userID).Scan(
		&s.FullName, &s.Phone, &s.AddressLine1, &s.AddressLine2, &s.Landmark,
		&s.City, &s.State, &s.Country, &s.ZipCode,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAddressNotFound
		}
		return nil, fmt.Errorf("find address %s: %w", addressID, err)
	}
	return &s, nil
}
