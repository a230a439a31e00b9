package domain

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusPlaced    OrderStatus = "PLACED"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusShipped   OrderStatus = "SHIPPED"
	StatusDelivered OrderStatus = "DELIVERED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusFailed    OrderStatus = "FAILED"
)

var validTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusPlaced, StatusFailed, StatusCancelled},
	StatusPlaced:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
	StatusDelivered: {},
	StatusCancelled: {},
	StatusFailed:    {},
}

// AllStatuses lists every order status in lifecycle order.
func AllStatuses() []OrderStatus {
	return []OrderStatus{
		StatusPending, StatusPlaced, StatusConfirmed, StatusShipped,
		StatusDelivered, StatusCancelled, StatusFailed,
	}
}

func (s OrderStatus) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s OrderStatus) IsTerminal() bool {
	return s.Valid() && len(validTransitions[s]) == 0
}

// CanTransition reports whether from -> to is an edge of the status table.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from s in one step.
func NextStatuses(s OrderStatus) []OrderStatus {
	next := validTransitions[s]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}
