package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest           = errors.New("invalid request")
	ErrInvalidPurchase          = errors.New("invalid purchase")
	ErrPriceMismatch            = errors.New("price does not match current catalog")
	ErrQuantityBelowMinimum     = errors.New("quantity below minimum")
	ErrPlanUnavailable          = errors.New("plan is not available")
	ErrDowngradeNotAllowed      = errors.New("downgrade is not allowed")
	ErrPlanLimitReached         = errors.New("plan subscription limit reached")
	ErrPendingOrderLimit        = errors.New("too many pending orders")
	ErrCheckoutInProgress       = errors.New("checkout already in progress")
	ErrCheckoutUnavailable      = errors.New("checkout is unavailable")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrOrderNotFound            = errors.New("order not found")
	ErrInvalidStatus            = errors.New("invalid status")
	ErrAmountMismatch           = errors.New("payment amount does not match order")
	ErrGatewayUnavailable       = errors.New("payment gateway unavailable")
	ErrChargeDeclined           = errors.New("charge declined")
	ErrPaymentMethodUnsupported = errors.New("payment method is not supported")
	ErrCallbackRejected         = errors.New("callback rejected")
)

type QuantityBelowMinimumError struct {
	Minimum int32
}

func (e *QuantityBelowMinimumError) Error() string {
	return fmt.Sprintf("Mínimo: %d sessions", e.Minimum)
}

func (e *QuantityBelowMinimumError) Unwrap() error {
	return ErrQuantityBelowMinimum
}

type InsufficientStockError struct {
	Requested int32
	Available int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %d, available %d", e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
