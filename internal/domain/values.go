package domain

import (
	"fmt"
	"strings"
	"time"
)

// OrderItem is a line item snapshot taken at checkout.
type OrderItem struct {
	BookID     string `json:"bookId"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unitPrice"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	CoverImage string `json:"coverImage"`
}

func NewOrderItem(bookID string, quantity int, unitPrice int64, title, category, cover string) (OrderItem, error) {
	if strings.TrimSpace(bookID) == "" {
		return OrderItem{}, fmt.Errorf("%w: book id is required", ErrInvalidOrder)
	}
	if quantity <= 0 {
		return OrderItem{}, fmt.Errorf("%w: quantity must be greater than 0", ErrInvalidOrder)
	}
	if unitPrice < 0 {
		return OrderItem{}, fmt.Errorf("%w: price cannot be negative", ErrInvalidOrder)
	}
	return OrderItem{
		BookID:     bookID,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		Title:      title,
		Category:   category,
		CoverImage: cover,
	}, nil
}

func (i OrderItem) Total() int64 {
	return int64(i.Quantity) * i.UnitPrice
}

// ShippingAddress is copied from the address book when the order is placed.
type ShippingAddress struct {
	FullName     string `json:"fullName"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	Landmark     string `json:"landmark,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	ZipCode      string `json:"zipCode"`
}

func (a ShippingAddress) Validate() error {
	if a.FullName == "" || a.Phone == "" || a.AddressLine1 == "" {
		return fmt.Errorf("%w: missing required address fields", ErrInvalidOrder)
	}
	if a.City == "" || a.State == "" || a.Country == "" || a.ZipCode == "" {
		return fmt.Errorf("%w: missing required location fields", ErrInvalidOrder)
	}
	return nil
}

func (a ShippingAddress) Formatted() string {
	parts := make([]string, 0, 7)
	for _, p := range []string{a.AddressLine1, a.AddressLine2, a.Landmark, a.City, a.State, a.Country, a.ZipCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type DeliveryDetails struct {
	Partner               string     `json:"partner"`
	TrackingID            string     `json:"trackingId"`
	EstimatedDeliveryDate *time.Time `json:"estimatedDeliveryDate,omitempty"`
	DeliveredAt           *time.Time `json:"deliveredAt,omitempty"`
}

func (d DeliveryDetails) IsDelivered() bool { return d.DeliveredAt != nil }

type Cancellation struct {
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelledAt"`
}

// BookDetails is the catalog view consumed by order placement.
type BookDetails struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	CoverImage string `json:"coverImage"`
	Stock      int    `json:"stock"`
}

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	IsBlocked bool   `json:"isBlocked"`
}
