package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

const orderColumns = `
	id, order_number, status, currency, subtotal_minor, shipping_minor, total_minor,
	customer_name, customer_email, customer_phone,
	ship_line1, ship_line2, ship_city, ship_region, ship_postal_code, ship_country,
	payment_method, payment_status, payment_transaction_id, payment_paid_at,
	fulfillment_carrier, fulfillment_tracking, fulfillment_shipped_at, fulfillment_delivered_at,
	admin_notes, stock_decremented, needs_reconciliation, version, created_at, updated_at`

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,
		          $17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30)
	`,
		order.ID, order.OrderNumber, string(order.Status), order.Currency,
		order.SubtotalMinor, order.ShippingMinor, order.TotalMinor,
		order.Customer.Name, order.Customer.Email, order.Customer.Phone,
		order.Shipping.Line1, order.Shipping.Line2, order.Shipping.City,
		order.Shipping.Region, order.Shipping.PostalCode, order.Shipping.Country,
		order.Payment.Method, string(order.Payment.Status), order.Payment.TransactionID,
		nullableTime(order.Payment.PaidAt),
		order.Fulfillment.Carrier, order.Fulfillment.TrackingNumber,
		nullableTime(order.Fulfillment.ShippedAt), nullableTime(order.Fulfillment.DeliveredAt),
		order.AdminNotes, order.StockDecremented, order.NeedsReconciliation,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && strings.Contains(pgErr.ConstraintName, "order_number") {
				return domain.ErrOrderNumberConflict
			}
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, variant_key, product_name, color_name,
				size, qty, unit_price_minor, line_total_minor, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`,
			item.ID, order.ID, item.ProductID, item.VariantKey, item.ProductName,
			item.ColorName, string(item.Size), item.Qty, item.UnitPriceMinor,
			item.LineTotalMinor, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.getByColumn(ctx, "id", id)
}

func (r *orderRepository) GetByNumber(orderNumber string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.getByColumn(ctx, "order_number", orderNumber)
}

func (r *orderRepository) getByColumn(ctx context.Context, column, value string) (domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE `+column+` = $1
	`, value)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order by %s: %w", column, err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) ListByEmail(email string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_email = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", email, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, email)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}

		items, err := r.loadItems(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		order.Items = items
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

// Save обновляет мутируемые поля заказа с optimistic locking.
// Снапшот позиций, номер и денежные поля не переписываются.
func (r *orderRepository) Save(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    payment_method = $2,
		    payment_status = $3,
		    payment_transaction_id = $4,
		    payment_paid_at = $5,
		    fulfillment_carrier = $6,
		    fulfillment_tracking = $7,
		    fulfillment_shipped_at = $8,
		    fulfillment_delivered_at = $9,
		    admin_notes = $10,
		    stock_decremented = $11,
		    needs_reconciliation = $12,
		    version = version + 1,
		    updated_at = $13
		WHERE id = $14
		  AND version = $15
	`,
		string(order.Status),
		order.Payment.Method, string(order.Payment.Status), order.Payment.TransactionID,
		nullableTime(order.Payment.PaidAt),
		order.Fulfillment.Carrier, order.Fulfillment.TrackingNumber,
		nullableTime(order.Fulfillment.ShippedAt), nullableTime(order.Fulfillment.DeliveredAt),
		order.AdminNotes, order.StockDecremented, order.NeedsReconciliation,
		order.UpdatedAt, order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, checkErr := r.orderExistsTx(ctx, tx, order.ID)
		if checkErr != nil {
			err = checkErr
			return err
		}
		if !exists {
			err = domain.ErrOrderNotFound
			return err
		}
		err = domain.ErrOrderVersionConflict
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save order: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order       domain.Order
		status      string
		payStatus   string
		paidAt      sql.NullTime
		shippedAt   sql.NullTime
		deliveredAt sql.NullTime
	)

	err := row.Scan(
		&order.ID, &order.OrderNumber, &status, &order.Currency,
		&order.SubtotalMinor, &order.ShippingMinor, &order.TotalMinor,
		&order.Customer.Name, &order.Customer.Email, &order.Customer.Phone,
		&order.Shipping.Line1, &order.Shipping.Line2, &order.Shipping.City,
		&order.Shipping.Region, &order.Shipping.PostalCode, &order.Shipping.Country,
		&order.Payment.Method, &payStatus, &order.Payment.TransactionID, &paidAt,
		&order.Fulfillment.Carrier, &order.Fulfillment.TrackingNumber, &shippedAt, &deliveredAt,
		&order.AdminNotes, &order.StockDecremented, &order.NeedsReconciliation,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.Payment.Status = domain.PaymentStatus(payStatus)
	if paidAt.Valid {
		order.Payment.PaidAt = paidAt.Time.UTC()
	}
	if shippedAt.Valid {
		order.Fulfillment.ShippedAt = shippedAt.Time.UTC()
	}
	if deliveredAt.Valid {
		order.Fulfillment.DeliveredAt = deliveredAt.Time.UTC()
	}

	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, variant_key, product_name, color_name, size, qty,
		       unit_price_minor, line_total_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		var size string
		if err := rows.Scan(
			&item.ID, &item.ProductID, &item.VariantKey, &item.ProductName,
			&item.ColorName, &size, &item.Qty, &item.UnitPriceMinor,
			&item.LineTotalMinor, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.Size = domain.Size(size)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func (r *orderRepository) orderExistsTx(ctx context.Context, tx *sql.Tx, orderID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
