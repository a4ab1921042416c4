package entity

import "time"

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
	OrderStatusExpired   = "expired"
	OrderStatusRefunded  = "refunded"
)

const (
	ProductTypeBrazilian    = "brasileiras"
	ProductTypeForeign      = "estrangeiras"
	ProductTypeSubscription = "subscription"
)

type Order struct {
	ID     string
	UserID string

	ProductName string
	ProductType string
	Quantity    int32
	AmountCents int64

	Status        string
	PaymentMethod *string

	PlanIDSnapshot       *string
	PlanPeriodDays       *int32
	PlanFeaturesSnapshot []string

	UpgradeCreditCents        *int64
	UpgradeFromSubscriptionID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o *Order) IsSessionPurchase() bool {
	return o != nil && o.ProductType != ProductTypeSubscription
}

// Settled reports whether money has been received for the order.
func (o *Order) Settled() bool {
	return o != nil && (o.Status == OrderStatusPaid || o.Status == OrderStatusCompleted)
}

func (o *Order) Terminal() bool {
	if o == nil {
		return false
	}
	switch o.Status {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusExpired, OrderStatusRefunded:
		return true
	default:
		return false
	}
}
