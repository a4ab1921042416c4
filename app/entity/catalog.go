package entity

import "time"

type SubscriptionPlan struct {
	ID   string
	Name string

	PriceCents            int64
	PromotionalPriceCents *int64

	// PeriodDays is 0 for lifetime plans.
	PeriodDays int32
	Features   []string
	IsActive   bool

	MaxSubscriptionsPerUser *int32

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectivePriceCents is the promotional price when set, else the list price.
func (p *SubscriptionPlan) EffectivePriceCents() int64 {
	if p.PromotionalPriceCents != nil {
		return *p.PromotionalPriceCents
	}
	return p.PriceCents
}

type SessionCombo struct {
	ID         string
	Type       string
	Quantity   int32
	PriceCents int64
	IsActive   bool
	IsPopular  bool
}

type SessionInventory struct {
	Type string

	// Quantity is the number of session files currently available.
	Quantity int32

	CustomQuantityEnabled   bool
	CustomQuantityMin       int32
	CustomPricePerUnitCents int64

	UpdatedAt time.Time
}
