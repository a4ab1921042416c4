package service

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

// GatewayAlerter is told when every gateway of the chain refused a charge.
type GatewayAlerter interface {
	GatewayChainFailed(ctx context.Context, alert entity.GatewayAlert) error
}

type logAlerter struct {
	logger logrus.FieldLogger
}

func (a logAlerter) GatewayChainFailed(_ context.Context, alert entity.GatewayAlert) error {
	a.logger.WithFields(logrus.Fields{
		"order_id": alert.OrderID,
		"method":   alert.Method,
		"amount":   alert.AmountCents,
		"attempts": len(alert.Failures),
	}).Error("All gateways failed")
	return nil
}

func (s *CheckoutService) alertGatewayFailure(ctx context.Context, order *entity.Order, payment *entity.Payment, failures []entity.GatewayFailure) {
	gatewayAlertsTotal.WithLabelValues(payment.Method).Inc()
	err := s.alerter.GatewayChainFailed(ctx, entity.GatewayAlert{
		OrderID:     order.ID,
		UserID:      order.UserID,
		ProductName: order.ProductName,
		Method:      payment.Method,
		AmountCents: payment.AmountCents,
		Failures:    failures,
		At:          s.now(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("Send gateway alert failed")
	}
}
