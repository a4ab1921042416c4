package service

import (
	"strings"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

type PurchaseKind string

const (
	PurchaseKindSession PurchaseKind = "session"
	PurchaseKindPlan    PurchaseKind = "plan"
)

type SessionPurchase struct {
	Type       string
	Quantity   int32
	PriceCents int64
}

type PlanPurchase struct {
	PlanID string
}

// Purchase is either a session purchase or a plan purchase, never both.
type Purchase struct {
	Kind    PurchaseKind
	Session *SessionPurchase
	Plan    *PlanPurchase
}

type PurchaseInput interface {
	GetUserId() string
	GetSessionType() string
	GetQuantity() int32
	GetPriceCents() int64
	GetPlanId() string
}

func NewSessionPurchase(sessionType string, quantity int32, priceCents int64) Purchase {
	return Purchase{
		Kind:    PurchaseKindSession,
		Session: &SessionPurchase{Type: sessionType, Quantity: quantity, PriceCents: priceCents},
	}
}

func NewPlanPurchase(planID string) Purchase {
	return Purchase{Kind: PurchaseKindPlan, Plan: &PlanPurchase{PlanID: planID}}
}

// PurchaseFromRequest resolves the request into exactly one purchase kind.
func PurchaseFromRequest(req PurchaseInput) (Purchase, error) {
	sessionType := strings.ToLower(strings.TrimSpace(req.GetSessionType()))
	planID := strings.TrimSpace(req.GetPlanId())

	switch {
	case sessionType != "" && planID != "":
		return Purchase{}, ErrInvalidPurchase
	case sessionType != "":
		if !isSessionType(sessionType) || req.GetQuantity() <= 0 || req.GetPriceCents() < 0 {
			return Purchase{}, ErrInvalidPurchase
		}
		return NewSessionPurchase(sessionType, req.GetQuantity(), req.GetPriceCents()), nil
	case planID != "":
		return NewPlanPurchase(planID), nil
	default:
		return Purchase{}, ErrInvalidPurchase
	}
}

func (p Purchase) ProductType() string {
	if p.Kind == PurchaseKindSession && p.Session != nil {
		return p.Session.Type
	}
	return entity.ProductTypeSubscription
}

func isSessionType(v string) bool {
	return v == entity.ProductTypeBrazilian || v == entity.ProductTypeForeign
}
