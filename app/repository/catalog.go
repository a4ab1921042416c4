package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

const planColumns = `
	id, name, price_cents, promotional_price_cents, period_days, features,
	is_active, max_subscriptions_per_user, created_at, updated_at
`

// CatalogRepository reads the authoritative pricing tables.
type CatalogRepository struct {
	db DBTX
}

func NewCatalogRepository(db DBTX) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) FindPlanByID(ctx context.Context, id string) (*entity.SubscriptionPlan, error) {
	query := `SELECT ` + planColumns + ` FROM subscription_plans WHERE id = ?`

	plan := &entity.SubscriptionPlan{}
	if err := scanPlan(r.db.QueryRowContext(ctx, query, id), plan); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *CatalogRepository) ListActiveCombos(ctx context.Context, sessionType string) ([]*entity.SessionCombo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, quantity, price_cents, is_active, is_popular
		FROM session_combos
		WHERE type = ? AND is_active = 1
		ORDER BY quantity ASC
	`, sessionType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	combos := make([]*entity.SessionCombo, 0)
	for rows.Next() {
		combo := &entity.SessionCombo{}
		if err := rows.Scan(
			&combo.ID,
			&combo.Type,
			&combo.Quantity,
			&combo.PriceCents,
			&combo.IsActive,
			&combo.IsPopular,
		); err != nil {
			return nil, err
		}
		combos = append(combos, combo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return combos, nil
}

func (r *CatalogRepository) FindInventory(ctx context.Context, sessionType string) (*entity.SessionInventory, error) {
	inventory := &entity.SessionInventory{}
	err := r.db.QueryRowContext(ctx, `
		SELECT type, quantity, custom_quantity_enabled, custom_quantity_min, custom_price_per_unit_cents, updated_at
		FROM sessions_inventory
		WHERE type = ?
	`, sessionType).Scan(
		&inventory.Type,
		&inventory.Quantity,
		&inventory.CustomQuantityEnabled,
		&inventory.CustomQuantityMin,
		&inventory.CustomPricePerUnitCents,
		&inventory.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inventory, nil
}

func scanPlan(scan rowScanner, plan *entity.SubscriptionPlan) error {
	var promo sql.NullInt64
	var features sql.NullString
	var maxPerUser sql.NullInt32

	err := scan.Scan(
		&plan.ID,
		&plan.Name,
		&plan.PriceCents,
		&promo,
		&plan.PeriodDays,
		&features,
		&plan.IsActive,
		&maxPerUser,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	)
	if err != nil {
		return err
	}

	plan.PromotionalPriceCents = int64PtrFromNull(promo)
	plan.MaxSubscriptionsPerUser = int32PtrFromNull(maxPerUser)
	plan.Features, err = parseStrings(features)
	return err
}
