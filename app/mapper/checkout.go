package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
)

func ProductToProto(item *service.ResolvedProduct) *types.Product {
	if item == nil {
		return nil
	}

	product := &types.Product{
		ProductType:               item.ProductType,
		Quantity:                  item.Quantity,
		Title:                     item.Title,
		Subtitle:                  item.Subtitle,
		Features:                  cloneStrings(item.Features),
		PriceCents:                item.PriceCents,
		BasePriceCents:            item.BasePriceCents,
		UpgradeCreditCents:        item.UpgradeCreditCents,
		UpgradeFromSubscriptionId: derefString(item.UpgradeFromSubscriptionID),
		Renewal:                   item.Renewal,
	}
	if item.Plan != nil {
		product.PlanId = item.Plan.ID
	}
	return product
}

func OrderToProto(item *entity.Order) *types.Order {
	if item == nil {
		return nil
	}

	return &types.Order{
		Id:                 item.ID,
		UserId:             item.UserID,
		ProductName:        item.ProductName,
		ProductType:        item.ProductType,
		Quantity:           item.Quantity,
		AmountCents:        item.AmountCents,
		Status:             item.Status,
		PaymentMethod:      derefString(item.PaymentMethod),
		PlanId:             derefString(item.PlanIDSnapshot),
		UpgradeCreditCents: derefInt64(item.UpgradeCreditCents),
		CreatedAt:          item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func PaymentToProto(item *entity.Payment) *types.Payment {
	if item == nil {
		return nil
	}

	payment := &types.Payment{
		Id:                   item.ID,
		OrderId:              item.OrderID,
		AmountCents:          item.AmountCents,
		Method:               item.Method,
		Status:               item.Status,
		Gateway:              derefString(item.Gateway),
		GatewayTransactionId: derefString(item.GatewayTransactionID),
		PixCode:              derefString(item.PixCode),
		QrCodeBase64:         derefString(item.QRCodeBase64),
		BoletoCode:           derefString(item.BoletoCode),
		BoletoUrl:            derefString(item.BoletoURL),
		BoletoDueDate:        derefString(item.BoletoDueDate),
		CreatedAt:            item.CreatedAt.UTC().Format(time.RFC3339),
	}
	if item.PaidAt != nil {
		payment.PaidAt = item.PaidAt.UTC().Format(time.RFC3339)
	}
	return payment
}

func CheckoutToProto(item *service.CheckoutResult) *types.CheckoutResponse {
	if item == nil {
		return nil
	}

	return &types.CheckoutResponse{
		Order:               OrderToProto(item.Order),
		Payment:             PaymentToProto(item.Payment),
		State:               string(item.State),
		PixRemainingSeconds: int64(item.PixRemaining / time.Second),
		InReview:            item.InReview,
	}
}

func ResumeToProto(item *service.ResumeResult) *types.ResumeResponse {
	if item == nil {
		return nil
	}

	resp := &types.ResumeResponse{Kind: string(item.Kind)}
	if item.Kind != service.ResumeNone {
		resp.Checkout = CheckoutToProto(&item.CheckoutResult)
	}
	return resp
}

func WebhookToProto(item *service.WebhookResult) *types.WebhookResponse {
	resp := &types.WebhookResponse{Message: "Gateway callback processed"}
	if item == nil {
		return resp
	}

	resp.Duplicate = item.Duplicate
	resp.Ignored = item.Ignored
	resp.State = string(item.State)
	if item.Duplicate {
		resp.Message = "Gateway callback already processed"
	}
	if item.Ignored {
		resp.Message = "Gateway callback ignored"
	}
	return resp
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func cloneStrings(src []string) []string {
	if len(src) == 0 {
		return []string{}
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}
