package mapper

import (
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
)

func TestCheckoutToProto(t *testing.T) {
	created := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	method := entity.PaymentMethodPix
	code := "000201"
	gateway := "asaas"

	resp := CheckoutToProto(&service.CheckoutResult{
		Order: &entity.Order{
			ID: "ord-1", UserID: "u1", ProductType: entity.ProductTypeBrazilian, Quantity: 5,
			AmountCents: 1990, Status: entity.OrderStatusPending, PaymentMethod: &method,
			CreatedAt: created, UpdatedAt: created,
		},
		Payment: &entity.Payment{
			ID: "pay-1", OrderID: "ord-1", AmountCents: 1990, Method: method,
			Status: entity.PaymentStatusPending, Gateway: &gateway, PixCode: &code, CreatedAt: created,
		},
		State:        service.StateChargeGenerated,
		PixRemaining: 4*time.Minute + 30*time.Second,
	})

	if resp.State != "charge_generated" || resp.PixRemainingSeconds != 270 {
		t.Fatalf("unexpected checkout response: %+v", resp)
	}
	if resp.Order.PaymentMethod != "pix" || resp.Order.CreatedAt != "2026-01-10T12:00:00Z" {
		t.Fatalf("unexpected order: %+v", resp.Order)
	}
	if resp.Payment.PixCode != code || resp.Payment.Gateway != gateway || resp.Payment.PaidAt != "" {
		t.Fatalf("unexpected payment: %+v", resp.Payment)
	}
}

func TestResumeToProtoWithoutOrder(t *testing.T) {
	resp := ResumeToProto(&service.ResumeResult{Kind: service.ResumeNone})
	if resp.Kind != "none" || resp.Checkout != nil {
		t.Fatalf("unexpected resume response: %+v", resp)
	}
}

func TestWebhookToProtoDuplicate(t *testing.T) {
	resp := WebhookToProto(&service.WebhookResult{Duplicate: true})
	if !resp.Duplicate || resp.Message != "Gateway callback already processed" {
		t.Fatalf("unexpected webhook response: %+v", resp)
	}
}
