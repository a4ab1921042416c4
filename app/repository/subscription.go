package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

type SubscriptionRepository struct {
	db DBTX
}

func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// FindActiveByUser returns the latest active subscription of the user with
// its plan loaded.
func (r *SubscriptionRepository) FindActiveByUser(ctx context.Context, userID string) (*entity.UserSubscription, error) {
	query := `
		SELECT
			us.id, us.user_id, us.plan_id, us.status, us.start_date, us.next_billing_date, us.created_at,
			p.id, p.name, p.price_cents, p.promotional_price_cents, p.period_days, p.features,
			p.is_active, p.max_subscriptions_per_user, p.created_at, p.updated_at
		FROM user_subscriptions us
		JOIN subscription_plans p ON p.id = us.plan_id
		WHERE us.user_id = ? AND us.status = 'active'
		ORDER BY us.created_at DESC
		LIMIT 1
	`

	sub := &entity.UserSubscription{Plan: &entity.SubscriptionPlan{}}
	var nextBilling sql.NullTime
	var promo sql.NullInt64
	var features sql.NullString
	var maxPerUser sql.NullInt32

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&sub.ID,
		&sub.UserID,
		&sub.PlanID,
		&sub.Status,
		&sub.StartDate,
		&nextBilling,
		&sub.CreatedAt,
		&sub.Plan.ID,
		&sub.Plan.Name,
		&sub.Plan.PriceCents,
		&promo,
		&sub.Plan.PeriodDays,
		&features,
		&sub.Plan.IsActive,
		&maxPerUser,
		&sub.Plan.CreatedAt,
		&sub.Plan.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sub.NextBillingDate = timePtrFromNull(nextBilling)
	sub.Plan.PromotionalPriceCents = int64PtrFromNull(promo)
	sub.Plan.MaxSubscriptionsPerUser = int32PtrFromNull(maxPerUser)
	if sub.Plan.Features, err = parseStrings(features); err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *SubscriptionRepository) CountActiveByUserAndPlan(ctx context.Context, userID, planID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_subscriptions WHERE user_id = ? AND plan_id = ? AND status = 'active'`,
		userID, planID,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ExpireDue moves active subscriptions whose billing date has passed to
// expired and reports how many rows changed.
func (r *SubscriptionRepository) ExpireDue(ctx context.Context, now time.Time, limit int32) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE user_subscriptions
		SET status = 'expired', updated_at = ?
		WHERE status = 'active' AND next_billing_date IS NOT NULL AND next_billing_date < ?
		ORDER BY next_billing_date ASC
		LIMIT ?
	`, now, now, limit)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
