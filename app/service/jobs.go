package service

import (
	"context"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

// RunReconcileBatch polls gateways for stale pending charges and finishes
// paid payments whose completion did not go through.
func (s *CheckoutService) RunReconcileBatch(ctx context.Context) error {
	now := s.now()
	before := now.Add(-s.cfg.ReconcileStaleAfter)

	items, err := s.payments.ListPendingWithTransaction(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range items {
		if payment == nil || !payment.HasTransaction() || payment.Gateway == nil {
			continue
		}
		order, err := s.orders.FindByID(ctx, payment.OrderID)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if order == nil || order.Status != entity.OrderStatusPending {
			continue
		}

		gateway, err := s.providers.Get(*payment.Gateway)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		status, err := gateway.GetChargeStatus(ctx, *payment.GatewayTransactionID)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if err := s.applyChargeStatus(ctx, order, payment, status, SourceReconcile); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	stranded, err := s.payments.ListPaidWithPendingOrder(ctx, before, s.batchSize())
	if err != nil {
		return keepFirstErr(firstErr, err)
	}
	for _, payment := range stranded {
		order, err := s.orders.FindByID(ctx, payment.OrderID)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if order == nil || order.Status != entity.OrderStatusPending {
			continue
		}
		if _, err := s.finishOrder(ctx, order, payment, SourceReconcile); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// RunExpirePendingBatch expires pending orders older than the pending
// window. Orders with a paid payment or a boleto or card charge still open at
// the gateway are left alone.
func (s *CheckoutService) RunExpirePendingBatch(ctx context.Context) error {
	now := s.now()
	cutoff := now.Add(-s.cfg.PendingWindow)

	items, err := s.orders.ListPendingCreatedBefore(ctx, cutoff, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, order := range items {
		if order == nil {
			continue
		}
		payment, err := s.payments.FindLatestByOrderID(ctx, order.ID)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if !expirable(payment) {
			continue
		}
		if err := s.expireOrder(ctx, order, "pending_timeout"); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// RunReleaseReservationsBatch returns stock held by closed orders.
func (s *CheckoutService) RunReleaseReservationsBatch(ctx context.Context) error {
	items, err := s.orders.ListHoldingReservations(ctx, s.now(), s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, order := range items {
		if order == nil || !order.IsSessionPurchase() {
			continue
		}
		released, err := s.atomic.ReleaseReservation(ctx, order.ID)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if released > 0 {
			detail := "released by cleanup"
			s.recordEvent(ctx, order.ID, nil, "reservation_released", nil, order.Status, &detail)
		}
	}

	return firstErr
}

// RunSyncInventoryBatch rewrites each session counter from the available
// file count.
func (s *CheckoutService) RunSyncInventoryBatch(ctx context.Context) error {
	if s.inventory == nil {
		return nil
	}

	var firstErr error
	for _, sessionType := range []string{entity.ProductTypeBrazilian, entity.ProductTypeForeign} {
		result, err := s.inventory.ResyncInventory(ctx, sessionType)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		drift := result.Drift()
		inventoryDriftTotal.WithLabelValues(sessionType, strconv.FormatBool(drift != 0)).Inc()
		if drift != 0 || result.Created {
			s.logger.WithFields(logrus.Fields{
				"type":     sessionType,
				"previous": result.Previous,
				"counted":  result.Counted,
				"created":  result.Created,
			}).Warn("Inventory counter corrected")
		}
	}

	return firstErr
}

// RunExpireSubscriptionsBatch closes active subscriptions past their next
// billing date.
func (s *CheckoutService) RunExpireSubscriptionsBatch(ctx context.Context) error {
	if s.subscriptions == nil {
		return nil
	}

	expired, err := s.subscriptions.ExpireDue(ctx, s.now(), s.batchSize())
	if err != nil {
		return err
	}
	if expired > 0 {
		subscriptionsExpiredTotal.Add(float64(expired))
		s.logger.WithField("count", expired).Info("Subscriptions expired")
	}
	return nil
}

func expirable(payment *entity.Payment) bool {
	if payment == nil {
		return true
	}
	switch payment.Status {
	case entity.PaymentStatusPaid:
		return false
	case entity.PaymentStatusPending:
		if payment.Method == entity.PaymentMethodBoleto || payment.Method == entity.PaymentMethodCreditCard {
			return !payment.HasTransaction()
		}
	}
	return true
}
