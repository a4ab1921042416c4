package service

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
)

func paidCallback(transactionID string) func(context.Context, []byte, http.Header) (*provider.CallbackEvent, error) {
	return func(_ context.Context, _ []byte, _ http.Header) (*provider.CallbackEvent, error) {
		return &provider.CallbackEvent{
			TransactionID: transactionID,
			EventType:     "PAYMENT_RECEIVED",
			Status:        provider.ChargeStatusPaid,
		}, nil
	}
}

func TestWebhookCompletesOrderOnce(t *testing.T) {
	h := newHarness(t)

	started, err := h.svc.StartCheckout(context.Background(), comboRequest("user-1", "pix"))
	require.NoError(t, err)
	h.gateway.callbackFn = paidCallback(*started.Payment.GatewayTransactionID)

	req := callbackRequest{gateway: "ASAAS", payload: []byte(`{"event":"PAYMENT_RECEIVED"}`), headers: http.Header{}}
	result, err := h.svc.HandleGatewayCallback(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, 1, h.store.completions())

	again, err := h.svc.HandleGatewayCallback(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, 1, h.store.completions())

	update, err := h.svc.pollOnce(context.Background(), started.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, update.State)
	assert.Equal(t, 1, h.store.completions())

	require.Len(t, h.store.callbacks, 1)
	assert.Equal(t, entity.GatewayCallbackProcessed, h.store.callbacks[0].Status)
	require.NotNil(t, h.store.callbacks[0].OrderID)
	assert.Equal(t, started.Order.ID, *h.store.callbacks[0].OrderID)
}

func TestWebhookFallsBackToOrderReference(t *testing.T) {
	h := newHarness(t)

	started, err := h.svc.StartCheckout(context.Background(), comboRequest("user-1", "pix"))
	require.NoError(t, err)

	orderID := started.Order.ID
	h.gateway.callbackFn = func(_ context.Context, _ []byte, _ http.Header) (*provider.CallbackEvent, error) {
		return &provider.CallbackEvent{TransactionID: "unknown-tx", OrderID: &orderID, EventType: "PAYMENT_CONFIRMED", Status: provider.ChargeStatusPaid}, nil
	}

	result, err := h.svc.HandleGatewayCallback(context.Background(), callbackRequest{gateway: "asaas", payload: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
}

func TestWebhookRejectedIsRecorded(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.HandleGatewayCallback(context.Background(), callbackRequest{gateway: "asaas", payload: []byte(`{}`)})
	require.ErrorIs(t, err, ErrCallbackRejected)

	require.Len(t, h.store.callbacks, 1)
	assert.Equal(t, entity.GatewayCallbackRejected, h.store.callbacks[0].Status)
	require.NotNil(t, h.store.callbacks[0].Error)
	assert.Zero(t, h.store.completions())
}

func TestWebhookUnknownGateway(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.HandleGatewayCallback(context.Background(), callbackRequest{gateway: "paypal"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, h.store.callbacks)
}

func TestWebhookForUnknownPaymentIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.gateway.callbackFn = paidCallback("missing-tx")

	result, err := h.svc.HandleGatewayCallback(context.Background(), callbackRequest{gateway: "asaas", payload: []byte(`{}`)})
	require.NoError(t, err)
	assert.True(t, result.Ignored)

	require.Len(t, h.store.callbacks, 1)
	assert.Equal(t, entity.GatewayCallbackIgnored, h.store.callbacks[0].Status)
}

func TestWebhookFailureMarksPaymentFailed(t *testing.T) {
	h := newHarness(t)

	started, err := h.svc.StartCheckout(context.Background(), comboRequest("user-1", "pix"))
	require.NoError(t, err)
	tx := *started.Payment.GatewayTransactionID
	h.gateway.callbackFn = func(_ context.Context, _ []byte, _ http.Header) (*provider.CallbackEvent, error) {
		return &provider.CallbackEvent{TransactionID: tx, EventType: "PAYMENT_REFUSED", Status: provider.ChargeStatusFailed}, nil
	}

	result, err := h.svc.HandleGatewayCallback(context.Background(), callbackRequest{gateway: "asaas", payload: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, StateOrderCreated, result.State)
	assert.Equal(t, entity.PaymentStatusFailed, h.store.payment(started.Payment.ID).Status)
	assert.Equal(t, entity.OrderStatusPending, h.store.order(started.Order.ID).Status)
	assert.Equal(t, int32(5), h.store.reservedFor(started.Order.ID))
}

func TestWebhookPaidForSupersededChargeCompletesOrder(t *testing.T) {
	h := newHarness(t)
	var issued atomic.Int32
	h.gateway.createPixFn = func(_ context.Context, _ *provider.PixInput) (*provider.PixOutput, error) {
		n := issued.Add(1)
		return &provider.PixOutput{TransactionID: fmt.Sprintf("tx-%d", n), PixCode: "000201pix", QRCodeBase64: "qr"}, nil
	}

	started, err := h.svc.StartCheckout(context.Background(), comboRequest("user-1", "pix"))
	require.NoError(t, err)
	require.Equal(t, "tx-1", *started.Payment.GatewayTransactionID)

	h.clock.Advance(16 * time.Minute)
	regenerated, err := h.svc.GenerateCharge(context.Background(), testRequest{userID: "user-1", orderID: started.Order.ID, method: "pix"})
	require.NoError(t, err)
	require.Equal(t, "tx-2", *regenerated.Payment.GatewayTransactionID)
	require.Equal(t, entity.PaymentStatusCancelled, h.store.payment(started.Payment.ID).Status)

	h.gateway.callbackFn = paidCallback("tx-1")
	result, err := h.svc.HandleGatewayCallback(context.Background(), callbackRequest{gateway: "asaas", payload: []byte(`{}`)})
	require.NoError(t, err)
	assert.False(t, result.Ignored)
	assert.Equal(t, StateCompleted, result.State)

	assert.Equal(t, entity.OrderStatusCompleted, h.store.order(started.Order.ID).Status)
	assert.Equal(t, entity.PaymentStatusPaid, h.store.payment(started.Payment.ID).Status)
	assert.Equal(t, entity.PaymentStatusCancelled, h.store.payment(regenerated.Payment.ID).Status)
	assert.Equal(t, int32(5), h.store.sold[started.Order.ID])
	assert.Equal(t, 1, h.store.eventCount("order_completed"))

	require.Len(t, h.store.callbacks, 1)
	assert.Equal(t, entity.GatewayCallbackProcessed, h.store.callbacks[0].Status)
}

func TestWebhookPaidWithoutCompletionIsNotProcessed(t *testing.T) {
	h := newHarness(t)

	started, err := h.svc.StartCheckout(context.Background(), comboRequest("user-1", "pix"))
	require.NoError(t, err)
	_, err = h.svc.Cancel(context.Background(), testRequest{userID: "user-1", orderID: started.Order.ID})
	require.NoError(t, err)
	h.gateway.callbackFn = paidCallback(*started.Payment.GatewayTransactionID)

	req := callbackRequest{gateway: "asaas", payload: []byte(`{}`)}
	first, err := h.svc.HandleGatewayCallback(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, first.Ignored)
	assert.Equal(t, StateCancelled, first.State)

	again, err := h.svc.HandleGatewayCallback(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, again.Duplicate, "a paid notification that did not complete must be re-evaluated")

	require.Len(t, h.store.callbacks, 2)
	for _, c := range h.store.callbacks {
		assert.Equal(t, entity.GatewayCallbackIgnored, c.Status)
		require.NotNil(t, c.Error)
	}
	assert.Zero(t, h.store.completions())
}
