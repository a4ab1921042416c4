package service

import (
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

type CheckoutState string

const (
	StateIdle                 CheckoutState = "idle"
	StateOrderCreated         CheckoutState = "order_created"
	StateChargeGenerated      CheckoutState = "charge_generated"
	StateAwaitingConfirmation CheckoutState = "awaiting_confirmation"
	StateCompleted            CheckoutState = "completed"
	StateCancelled            CheckoutState = "cancelled"
	StateExpired              CheckoutState = "expired"
)

func (s CheckoutState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateExpired
}

// DeriveState computes the checkout state from persisted rows so it survives
// restarts and resumes.
func DeriveState(order *entity.Order, payment *entity.Payment, now time.Time, pixLifetime time.Duration) CheckoutState {
	if order == nil {
		return StateIdle
	}

	switch order.Status {
	case entity.OrderStatusCompleted, entity.OrderStatusPaid:
		return StateCompleted
	case entity.OrderStatusCancelled, entity.OrderStatusRefunded:
		return StateCancelled
	case entity.OrderStatusExpired:
		return StateExpired
	}

	if payment == nil {
		return StateOrderCreated
	}

	switch payment.Status {
	case entity.PaymentStatusPaid:
		return StateAwaitingConfirmation
	case entity.PaymentStatusFailed, entity.PaymentStatusCancelled:
		return StateOrderCreated
	}

	switch payment.Method {
	case entity.PaymentMethodPix:
		if !now.Before(PixDeadline(payment, pixLifetime)) {
			return StateExpired
		}
		if payment.HasPixArtifact() {
			return StateChargeGenerated
		}
		return StateOrderCreated
	case entity.PaymentMethodBoleto:
		if payment.BoletoCode != nil && *payment.BoletoCode != "" {
			return StateChargeGenerated
		}
	case entity.PaymentMethodCreditCard:
		if payment.HasTransaction() {
			return StateAwaitingConfirmation
		}
	}
	return StateOrderCreated
}
