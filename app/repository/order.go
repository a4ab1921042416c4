package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order already exists")
)

const orderColumns = `
	id, user_id, product_name, product_type, quantity, amount_cents, status, payment_method,
	plan_id_snapshot, plan_period_days, plan_features_snapshot,
	upgrade_credit_cents, upgrade_from_subscription_id,
	created_at, updated_at
`

type OrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	features, err := serializeStrings(order.PlanFeaturesSnapshot)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		order.ProductName,
		order.ProductType,
		order.Quantity,
		order.AmountCents,
		order.Status,
		nullableStringValue(order.PaymentMethod),
		nullableStringValue(order.PlanIDSnapshot),
		nullableInt32Value(order.PlanPeriodDays),
		features,
		nullableInt64Value(order.UpgradeCreditCents),
		nullableStringValue(order.UpgradeFromSubscriptionID),
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrOrderAlreadyExists
		}
		return err
	}
	return nil
}

// TransitionStatus moves the order from one status to another only if it is
// still in the expected status. It reports whether the row was changed.
func (r *OrderRepository) TransitionStatus(ctx context.Context, id, from, to string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, now, id, from,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *OrderRepository) SetPaymentMethod(ctx context.Context, id, method string, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET payment_method = ?, updated_at = ? WHERE id = ?`,
		method, now, id,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`

	order := &entity.Order{}
	if err := scanOrder(r.db.QueryRowContext(ctx, query, id), order); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return order, nil
}

// FindLatestPending returns the newest pending order of the user for the
// product type created at or after since.
func (r *OrderRepository) FindLatestPending(ctx context.Context, userID, productType string, since time.Time) (*entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = ? AND product_type = ? AND status = 'pending' AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	order := &entity.Order{}
	if err := scanOrder(r.db.QueryRowContext(ctx, query, userID, productType, since), order); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) CountPendingSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = ? AND status = 'pending' AND created_at >= ?`,
		userID, since,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *OrderRepository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = 'pending' AND created_at < ?
		ORDER BY created_at ASC
		LIMIT ?
	`
	return r.list(ctx, query, cutoff, limit)
}

// ListHoldingReservations returns closed orders that still own reserved
// session files.
func (r *OrderRepository) ListHoldingReservations(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Order, error) {
	query := `
		SELECT ` + prefixedOrderColumns + `
		FROM orders o
		WHERE o.status IN ('cancelled', 'expired')
			AND o.created_at < ?
			AND EXISTS (
				SELECT 1 FROM session_files sf
				WHERE sf.reserved_for_order = o.id AND sf.status = 'reserved'
			)
		ORDER BY o.created_at ASC
		LIMIT ?
	`
	return r.list(ctx, query, cutoff, limit)
}

const prefixedOrderColumns = `
	o.id, o.user_id, o.product_name, o.product_type, o.quantity, o.amount_cents, o.status, o.payment_method,
	o.plan_id_snapshot, o.plan_period_days, o.plan_features_snapshot,
	o.upgrade_credit_cents, o.upgrade_from_subscription_id,
	o.created_at, o.updated_at
`

func (r *OrderRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*entity.Order, 0)
	for rows.Next() {
		item := &entity.Order{}
		if err := scanOrder(rows, item); err != nil {
			return nil, err
		}
		orders = append(orders, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func scanOrder(scan rowScanner, order *entity.Order) error {
	var paymentMethod sql.NullString
	var planID sql.NullString
	var planPeriod sql.NullInt32
	var features sql.NullString
	var upgradeCredit sql.NullInt64
	var upgradeFrom sql.NullString

	err := scan.Scan(
		&order.ID,
		&order.UserID,
		&order.ProductName,
		&order.ProductType,
		&order.Quantity,
		&order.AmountCents,
		&order.Status,
		&paymentMethod,
		&planID,
		&planPeriod,
		&features,
		&upgradeCredit,
		&upgradeFrom,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return err
	}

	order.PaymentMethod = stringPtrFromNull(paymentMethod)
	order.PlanIDSnapshot = stringPtrFromNull(planID)
	order.PlanPeriodDays = int32PtrFromNull(planPeriod)
	order.UpgradeCreditCents = int64PtrFromNull(upgradeCredit)
	order.UpgradeFromSubscriptionID = stringPtrFromNull(upgradeFrom)

	order.PlanFeaturesSnapshot, err = parseStrings(features)
	return err
}
