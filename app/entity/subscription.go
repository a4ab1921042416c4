package entity

import "time"

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusReplaced = "replaced"
	SubscriptionStatusExpired  = "expired"
)

type UserSubscription struct {
	ID     string
	UserID string
	PlanID string
	Status string

	StartDate       time.Time
	NextBillingDate *time.Time

	Plan *SubscriptionPlan

	CreatedAt time.Time
}
