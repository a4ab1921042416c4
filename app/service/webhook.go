package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
)

var errPaidNotCompleted = errors.New("payment reported paid but order not completed")

type GatewayCallbackInput interface {
	GetGateway() string
	GetPayload() []byte
	GetHeaders() http.Header
}

type WebhookResult struct {
	Duplicate bool
	Ignored   bool
	Order     *entity.Order
	State     CheckoutState
}

// HandleGatewayCallback verifies a gateway notification and applies it. A
// callback is only marked processed after it was applied, so redeliveries
// of a failed one are retried. A paid notification that did not complete
// the order is kept as ignored for the same reason.
func (s *CheckoutService) HandleGatewayCallback(ctx context.Context, req GatewayCallbackInput) (*WebhookResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.HandleGatewayCallback")
	defer span.End()

	gatewayCode := strings.ToLower(strings.TrimSpace(req.GetGateway()))
	gateway, err := s.providers.Get(gatewayCode)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown gateway %q", ErrInvalidRequest, gatewayCode)
	}

	payload := req.GetPayload()
	event, err := gateway.VerifyAndParseCallback(ctx, payload, req.GetHeaders())
	if err != nil {
		s.saveCallback(ctx, gatewayCode, "", nil, "", payload, entity.GatewayCallbackRejected, err)
		webhooksTotal.WithLabelValues(gatewayCode, "rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrCallbackRejected, err)
	}

	duplicate, err := s.callbacks.HasProcessed(ctx, gatewayCode, event.TransactionID, event.EventType)
	if err != nil {
		return nil, err
	}
	if duplicate {
		webhooksTotal.WithLabelValues(gatewayCode, "duplicate").Inc()
		return &WebhookResult{Duplicate: true}, nil
	}

	payment, err := s.payments.FindByGatewayTransaction(ctx, gatewayCode, event.TransactionID)
	if err != nil {
		return nil, err
	}
	if payment == nil && event.OrderID != nil && *event.OrderID != "" {
		payment, err = s.payments.FindLatestByOrderID(ctx, *event.OrderID)
		if err != nil {
			return nil, err
		}
	}

	var order *entity.Order
	if payment != nil {
		order, err = s.orders.FindByID(ctx, payment.OrderID)
		if err != nil {
			return nil, err
		}
	}
	if order == nil {
		s.saveCallback(ctx, gatewayCode, event.TransactionID, event.OrderID, event.EventType, payload, entity.GatewayCallbackIgnored, nil)
		webhooksTotal.WithLabelValues(gatewayCode, "ignored").Inc()
		return &WebhookResult{Ignored: true}, nil
	}

	if err := s.applyChargeStatus(ctx, order, payment, event.Status, SourceWebhook); err != nil {
		webhooksTotal.WithLabelValues(gatewayCode, "failed").Inc()
		return nil, err
	}

	orderID := order.ID
	result := &WebhookResult{
		Order: order,
		State: DeriveState(order, payment, s.now(), s.cfg.PixLifetime),
	}

	// A paid notification counts as processed only once the order completed.
	if event.Status == provider.ChargeStatusPaid && !order.Settled() {
		s.saveCallback(ctx, gatewayCode, event.TransactionID, &orderID, event.EventType, payload, entity.GatewayCallbackIgnored, errPaidNotCompleted)
		webhooksTotal.WithLabelValues(gatewayCode, "ignored").Inc()
		result.Ignored = true
		return result, nil
	}

	s.saveCallback(ctx, gatewayCode, event.TransactionID, &orderID, event.EventType, payload, entity.GatewayCallbackProcessed, nil)
	webhooksTotal.WithLabelValues(gatewayCode, "processed").Inc()
	return result, nil
}

func (s *CheckoutService) saveCallback(ctx context.Context, gateway, transactionID string, orderID *string, eventType string, payload []byte, status int32, callbackErr error) {
	var errMsg *string
	if callbackErr != nil {
		trimmed := truncate(callbackErr.Error(), maxErrorLength)
		errMsg = &trimmed
	}
	_ = s.callbacks.Create(ctx, &entity.GatewayCallback{
		Gateway:       gateway,
		TransactionID: transactionID,
		OrderID:       orderID,
		EventType:     eventType,
		PayloadJSON:   truncate(string(payload), 65535),
		Status:        status,
		Error:         errMsg,
		CreatedAt:     s.now(),
	})
}
