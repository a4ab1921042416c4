package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

type catalogRepository interface {
	FindPlanByID(ctx context.Context, id string) (*entity.SubscriptionPlan, error)
	ListActiveCombos(ctx context.Context, sessionType string) ([]*entity.SessionCombo, error)
	FindInventory(ctx context.Context, sessionType string) (*entity.SessionInventory, error)
}

type subscriptionRepository interface {
	FindActiveByUser(ctx context.Context, userID string) (*entity.UserSubscription, error)
	CountActiveByUserAndPlan(ctx context.Context, userID, planID string) (int, error)
}

// ResolvedProduct is the authoritative description of what is being bought.
type ResolvedProduct struct {
	Purchase    Purchase
	ProductType string
	Quantity    int32

	Title    string
	Subtitle string
	Features []string

	PriceCents                int64
	BasePriceCents            int64
	UpgradeCreditCents        int64
	UpgradeFromSubscriptionID *string
	Renewal                   bool

	Plan *entity.SubscriptionPlan
}

func (p *ResolvedProduct) Free() bool {
	return p.PriceCents == 0
}

type ProductResolver struct {
	catalog       catalogRepository
	subscriptions subscriptionRepository
	tolerance     int64
	now           func() time.Time
}

func NewProductResolver(catalog catalogRepository, subscriptions subscriptionRepository, toleranceCents int64) *ProductResolver {
	if toleranceCents < 0 {
		toleranceCents = 0
	}
	return &ProductResolver{
		catalog:       catalog,
		subscriptions: subscriptions,
		tolerance:     toleranceCents,
		now:           time.Now,
	}
}

func (r *ProductResolver) Resolve(ctx context.Context, userID string, purchase Purchase) (*ResolvedProduct, error) {
	switch purchase.Kind {
	case PurchaseKindSession:
		if purchase.Session == nil {
			return nil, ErrInvalidPurchase
		}
		return r.resolveSession(ctx, purchase)
	case PurchaseKindPlan:
		if purchase.Plan == nil || strings.TrimSpace(userID) == "" {
			return nil, ErrInvalidPurchase
		}
		return r.resolvePlan(ctx, userID, purchase)
	default:
		return nil, ErrInvalidPurchase
	}
}

func (r *ProductResolver) resolveSession(ctx context.Context, purchase Purchase) (*ResolvedProduct, error) {
	req := purchase.Session

	combos, err := r.catalog.ListActiveCombos(ctx, req.Type)
	if err != nil {
		return nil, err
	}
	for _, combo := range combos {
		if combo.Quantity == req.Quantity && r.matches(req.PriceCents, combo.PriceCents) {
			return &ResolvedProduct{
				Purchase:       purchase,
				ProductType:    req.Type,
				Quantity:       req.Quantity,
				Title:          sessionTitle(req.Type, req.Quantity),
				Subtitle:       "Combo",
				PriceCents:     combo.PriceCents,
				BasePriceCents: combo.PriceCents,
			}, nil
		}
	}

	inventory, err := r.catalog.FindInventory(ctx, req.Type)
	if err != nil {
		return nil, err
	}
	if inventory == nil || !inventory.CustomQuantityEnabled {
		return nil, ErrPriceMismatch
	}
	if req.Quantity < inventory.CustomQuantityMin {
		return nil, &QuantityBelowMinimumError{Minimum: inventory.CustomQuantityMin}
	}

	expected := int64(req.Quantity) * inventory.CustomPricePerUnitCents
	if !r.matches(req.PriceCents, expected) {
		return nil, ErrPriceMismatch
	}

	return &ResolvedProduct{
		Purchase:       purchase,
		ProductType:    req.Type,
		Quantity:       req.Quantity,
		Title:          sessionTitle(req.Type, req.Quantity),
		Subtitle:       "Quantidade personalizada",
		PriceCents:     expected,
		BasePriceCents: expected,
	}, nil
}

func (r *ProductResolver) resolvePlan(ctx context.Context, userID string, purchase Purchase) (*ResolvedProduct, error) {
	plan, err := r.catalog.FindPlanByID(ctx, purchase.Plan.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil || !plan.IsActive {
		return nil, ErrPlanUnavailable
	}

	base := plan.EffectivePriceCents()
	product := &ResolvedProduct{
		Purchase:       purchase,
		ProductType:    entity.ProductTypeSubscription,
		Quantity:       1,
		Title:          plan.Name,
		Subtitle:       planSubtitle(plan.PeriodDays),
		Features:       plan.Features,
		PriceCents:     base,
		BasePriceCents: base,
		Plan:           plan,
	}

	active, err := r.subscriptions.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active != nil && active.Plan != nil {
		activeID := active.ID
		pricePaid := active.Plan.EffectivePriceCents()

		switch {
		case active.PlanID == plan.ID:
			product.Renewal = true
			product.UpgradeFromSubscriptionID = &activeID
		case base > pricePaid:
			credit := UpgradeCreditCents(pricePaid, active.Plan.PeriodDays, active.NextBillingDate, r.now())
			product.UpgradeCreditCents = credit
			product.UpgradeFromSubscriptionID = &activeID
			product.PriceCents = applyCredit(base, credit)
		default:
			return nil, fmt.Errorf("%w: current plan %s is worth at least as much", ErrDowngradeNotAllowed, active.Plan.Name)
		}
	}

	if plan.MaxSubscriptionsPerUser != nil {
		count, err := r.subscriptions.CountActiveByUserAndPlan(ctx, userID, plan.ID)
		if err != nil {
			return nil, err
		}
		if product.Renewal && count > 0 {
			count--
		}
		if count >= int(*plan.MaxSubscriptionsPerUser) {
			return nil, ErrPlanLimitReached
		}
	}

	return product, nil
}

func (r *ProductResolver) matches(got, want int64) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff <= r.tolerance
}

func sessionTitle(sessionType string, quantity int32) string {
	label := "brasileiras"
	if sessionType == entity.ProductTypeForeign {
		label = "estrangeiras"
	}
	return fmt.Sprintf("%d sessions %s", quantity, label)
}

func planSubtitle(periodDays int32) string {
	if periodDays <= 0 {
		return "Acesso vitalício"
	}
	return fmt.Sprintf("%d dias", periodDays)
}
