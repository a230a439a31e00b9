package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/RaikyD/bookstore-orders-service/internal/domain"
	"github.com/jackc/pgx/v5"
)

type OrderRepository struct {
	q Querier
}

func NewOrderRepository(q Querier) *OrderRepository {
	return &OrderRepository{q: q}
}

const orderColumns = `
	id, order_id, user_id, email, shipping_address,
	subtotal_minor, delivery_charge_minor, total_price_minor, status,
	payment_method, payment_status, payment_amount_minor, payment_currency,
	gateway_order_id, gateway_payment_id, gateway_signature, gateway_refund_id,
	paid_at, payment_failure_reason,
	delivery_partner, delivery_tracking_id, delivery_estimated_at, delivered_at,
	cancellation_reason, cancelled_at,
	idempotency_key, version, created_at, updated_at`

func (p *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	partner, tracking, eta, deliveredAt := deliveryColumns(o.Delivery)
	reason, cancelledAt := cancellationColumns(o.Cancellation)

	_, err = p.q.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES
			($1, $2, $3, $4, $5,
			 $6, $7, $8, $9,
			 $10, $11, $12, $13,
			 $14, $15, $16, $17,
			 $18, $19,
			 $20, $21, $22, $23,
			 $24, $25,
			 $26, $27, $28, $29)
	`,
		o.ID, o.OrderID, o.UserID, o.Email, address,
		o.Subtotal, o.DeliveryCharge, o.TotalPrice, o.Status,
		o.Payment.Method, o.Payment.Status, o.Payment.Amount, o.Payment.Currency,
		nullable(o.Payment.GatewayOrderID), nullable(o.Payment.GatewayPaymentID),
		nullable(o.Payment.GatewaySignature), nullable(o.Payment.RefundID),
		o.Payment.PaidAt, nullable(o.Payment.FailureReason),
		partner, tracking, eta, deliveredAt,
		reason, cancelledAt,
		o.IdempotencyKey, o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}

	// items are immutable, queue them in one round trip
	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items
				(order_id, position, book_id, quantity, unit_price_minor, title, category, cover_image)
			VALUES
				($1, $2, $3, $4, $5, $6, $7, $8)
		`, o.ID, i, it.BookID, it.Quantity, it.UnitPrice, it.Title, it.Category, it.CoverImage)
	}
	br := p.q.SendBatch(ctx, batch)
	if err = br.Close(); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

func (p *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	partner, tracking, eta, deliveredAt := deliveryColumns(o.Delivery)
	reason, cancelledAt := cancellationColumns(o.Cancellation)

	tag, err := p.q.Exec(ctx, `
		UPDATE orders SET
			status = $3,
			payment_status = $4,
			gateway_payment_id = $5,
			gateway_signature = $6,
			gateway_refund_id = $7,
			paid_at = $8,
			payment_failure_reason = $9,
			delivery_partner = $10,
			delivery_tracking_id = $11,
			delivery_estimated_at = $12,
			delivered_at = $13,
			cancellation_reason = $14,
			cancelled_at = $15,
			updated_at = $16,
			version = version + 1
		WHERE id = $1 AND version = $2
	`,
		o.ID, o.Version,
		o.Status,
		o.Payment.Status,
		nullable(o.Payment.GatewayPaymentID),
		nullable(o.Payment.GatewaySignature),
		nullable(o.Payment.RefundID),
		o.Payment.PaidAt,
		nullable(o.Payment.FailureReason),
		partner, tracking, eta, deliveredAt,
		reason, cancelledAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.OrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentUpdate
	}
	o.Version++
	return nil
}

func (p *OrderRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	return p.findOne(ctx, "order_id = $1", orderID)
}

func (p *OrderRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	return p.findOne(ctx, "idempotency_key = $1", key)
}

func (p *OrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.Order, error) {
	return p.findOne(ctx, "gateway_order_id = $1", gatewayOrderID)
}

func (p *OrderRepository) FindByGatewayPaymentID(ctx context.Context, paymentID string) (*domain.Order, error) {
	return p.findOne(ctx, "gateway_payment_id = $1", paymentID)
}

func (p *OrderRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Order, error) {
	return p.findMany(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
}

func (p *OrderRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*domain.Order, error) {
	return p.findMany(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = $1 AND payment_status = $2 AND payment_method = $3 AND created_at < $4
		ORDER BY created_at
		LIMIT $5
	`, domain.StatusPending, domain.PaymentPending, domain.MethodRazorpay, before, limit)
}

func (p *OrderRepository) ListOrders(ctx context.Context, f OrderFilter) ([]*domain.Order, int, error) {
	where, args := filterClause(f)

	var total int
	if err := p.q.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	sql := `SELECT ` + orderColumns + ` FROM orders` + where + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		sql += ` OFFSET $` + strconv.Itoa(len(args))
	}
	orders, err := p.findMany(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func filterClause(f OrderFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	if f.Status != "" {
		add("status = ?", f.Status)
	}
	if f.PaymentStatus != "" {
		add("payment_status = ?", f.PaymentStatus)
	}
	if f.PaymentMethod != "" {
		add("payment_method = ?", f.PaymentMethod)
	}
	if f.CreatedFrom != nil {
		add("created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		add("created_at <= ?", *f.CreatedTo)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		add(`(order_id ILIKE ? OR email ILIKE ?
			OR shipping_address->>'fullName' ILIKE ? OR shipping_address->>'phone' ILIKE ?)`,
			"%"+likeEscaper.Replace(q)+"%")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (p *OrderRepository) findOne(ctx context.Context, where string, arg any) (*domain.Order, error) {
	row := p.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	if err := p.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (p *OrderRepository) findMany(ctx context.Context, sql string, args ...any) ([]*domain.Order, error) {
	rows, err := p.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	rows.Close()

	for _, o := range orders {
		if err := p.loadItems(ctx, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (p *OrderRepository) loadItems(ctx context.Context, o *domain.Order) error {
	rows, err := p.q.Query(ctx, `
		SELECT book_id, quantity, unit_price_minor, title, category, cover_image
		FROM order_items WHERE order_id = $1 ORDER BY position
	`, o.ID)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	o.Items = o.Items[:0]
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.BookID, &it.Quantity, &it.UnitPrice, &it.Title, &it.Category, &it.CoverImage); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var address []byte
	var gwOrder, gwPayment, gwSignature, gwRefund *string
	var failure, partner, tracking, cancelReason *string
	var eta, deliveredAt, cancelledAt *time.Time

	err := row.Scan(
		&o.ID, &o.OrderID, &o.UserID, &o.Email, &address,
		&o.Subtotal, &o.DeliveryCharge, &o.TotalPrice, &o.Status,
		&o.Payment.Method, &o.Payment.Status, &o.Payment.Amount, &o.Payment.Currency,
		&gwOrder, &gwPayment, &gwSignature, &gwRefund,
		&o.Payment.PaidAt, &failure,
		&partner, &tracking, &eta, &deliveredAt,
		&cancelReason, &cancelledAt,
		&o.IdempotencyKey, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	o.Payment.GatewayOrderID = deref(gwOrder)
	o.Payment.GatewayPaymentID = deref(gwPayment)
	o.Payment.GatewaySignature = deref(gwSignature)
	o.Payment.RefundID = deref(gwRefund)
	o.Payment.FailureReason = deref(failure)

	if partner != nil {
		o.Delivery = &domain.DeliveryDetails{
			Partner:               *partner,
			TrackingID:            deref(tracking),
			EstimatedDeliveryDate: eta,
			DeliveredAt:           deliveredAt,
		}
	}
	if cancelledAt != nil {
		o.Cancellation = &domain.Cancellation{Reason: deref(cancelReason), CancelledAt: *cancelledAt}
	}
	return &o, nil
}

func deliveryColumns(d *domain.DeliveryDetails) (partner, tracking *string, eta, deliveredAt *time.Time) {
	if d == nil {
		return nil, nil, nil, nil
	}
	return &d.Partner, &d.TrackingID, d.EstimatedDeliveryDate, d.DeliveredAt
}

func cancellationColumns(c *domain.Cancellation) (*string, *time.Time) {
	if c == nil {
		return nil, nil
	}
	return &c.Reason, &c.CancelledAt
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
