package types

import (
	"net/http"

	"github.com/vibast-solutions/ms-go-checkout/app/provider"
)

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type CustomerInfo struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	CpfCnpj       string `json:"cpf_cnpj"`
	Phone         string `json:"phone"`
	PostalCode    string `json:"postal_code"`
	AddressNumber string `json:"address_number"`
}

type CardInfo struct {
	HolderName  string `json:"holder_name"`
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	Cvv         string `json:"cvv"`
}

// PurchaseRequest names either a session purchase or a plan.
type PurchaseRequest struct {
	UserId      string `json:"user_id"`
	SessionType string `json:"session_type,omitempty"`
	Quantity    int32  `json:"quantity,omitempty"`
	PriceCents  int64  `json:"price_cents,omitempty"`
	PlanId      string `json:"plan_id,omitempty"`
}

func (r *PurchaseRequest) GetUserId() string      { return r.UserId }
func (r *PurchaseRequest) GetSessionType() string { return r.SessionType }
func (r *PurchaseRequest) GetQuantity() int32     { return r.Quantity }
func (r *PurchaseRequest) GetPriceCents() int64   { return r.PriceCents }
func (r *PurchaseRequest) GetPlanId() string      { return r.PlanId }

type PaymentDetails struct {
	PaymentMethod string        `json:"payment_method"`
	Installments  int32         `json:"installments,omitempty"`
	RemoteIp      string        `json:"remote_ip,omitempty"`
	Customer      *CustomerInfo `json:"customer,omitempty"`
	Card          *CardInfo     `json:"card,omitempty"`
}

func (d *PaymentDetails) GetPaymentMethod() string { return d.PaymentMethod }
func (d *PaymentDetails) GetInstallments() int32   { return d.Installments }
func (d *PaymentDetails) GetRemoteIp() string      { return d.RemoteIp }

func (d *PaymentDetails) GetCustomer() provider.Customer {
	if d.Customer == nil {
		return provider.Customer{}
	}
	return provider.Customer{
		Name:          d.Customer.Name,
		Email:         d.Customer.Email,
		CPFCNPJ:       d.Customer.CpfCnpj,
		Phone:         d.Customer.Phone,
		PostalCode:    d.Customer.PostalCode,
		AddressNumber: d.Customer.AddressNumber,
	}
}

func (d *PaymentDetails) GetCard() provider.Card {
	if d.Card == nil {
		return provider.Card{}
	}
	return provider.Card{
		HolderName:  d.Card.HolderName,
		Number:      d.Card.Number,
		ExpiryMonth: d.Card.ExpiryMonth,
		ExpiryYear:  d.Card.ExpiryYear,
		CVV:         d.Card.Cvv,
	}
}

type StartCheckoutRequest struct {
	PurchaseRequest
	PaymentDetails
}

type OrderRequest struct {
	UserId  string `json:"user_id"`
	OrderId string `json:"order_id"`
}

func (r *OrderRequest) GetUserId() string  { return r.UserId }
func (r *OrderRequest) GetOrderId() string { return r.OrderId }

type GenerateChargeRequest struct {
	OrderRequest
	PaymentDetails
}

type GatewayCallbackRequest struct {
	Gateway string
	Payload []byte
	Headers http.Header
}

func (r *GatewayCallbackRequest) GetGateway() string      { return r.Gateway }
func (r *GatewayCallbackRequest) GetPayload() []byte      { return r.Payload }
func (r *GatewayCallbackRequest) GetHeaders() http.Header { return r.Headers }

type Product struct {
	ProductType               string   `json:"product_type"`
	Quantity                  int32    `json:"quantity"`
	Title                     string   `json:"title"`
	Subtitle                  string   `json:"subtitle"`
	Features                  []string `json:"features"`
	PriceCents                int64    `json:"price_cents"`
	BasePriceCents            int64    `json:"base_price_cents"`
	UpgradeCreditCents        int64    `json:"upgrade_credit_cents"`
	UpgradeFromSubscriptionId string   `json:"upgrade_from_subscription_id,omitempty"`
	Renewal                   bool     `json:"renewal"`
	PlanId                    string   `json:"plan_id,omitempty"`
}

type ProductResponse struct {
	Product *Product `json:"product"`
}

type Order struct {
	Id                 string `json:"id"`
	UserId             string `json:"user_id"`
	ProductName        string `json:"product_name"`
	ProductType        string `json:"product_type"`
	Quantity           int32  `json:"quantity"`
	AmountCents        int64  `json:"amount_cents"`
	Status             string `json:"status"`
	PaymentMethod      string `json:"payment_method,omitempty"`
	PlanId             string `json:"plan_id,omitempty"`
	UpgradeCreditCents int64  `json:"upgrade_credit_cents,omitempty"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
}

type Payment struct {
	Id                   string `json:"id"`
	OrderId              string `json:"order_id"`
	AmountCents          int64  `json:"amount_cents"`
	Method               string `json:"method"`
	Status               string `json:"status"`
	Gateway              string `json:"gateway,omitempty"`
	GatewayTransactionId string `json:"gateway_transaction_id,omitempty"`
	PixCode              string `json:"pix_code,omitempty"`
	QrCodeBase64         string `json:"qr_code_base64,omitempty"`
	BoletoCode           string `json:"boleto_code,omitempty"`
	BoletoUrl            string `json:"boleto_url,omitempty"`
	BoletoDueDate        string `json:"boleto_due_date,omitempty"`
	PaidAt               string `json:"paid_at,omitempty"`
	CreatedAt            string `json:"created_at"`
}

type CheckoutResponse struct {
	Order               *Order   `json:"order"`
	Payment             *Payment `json:"payment,omitempty"`
	State               string   `json:"state"`
	PixRemainingSeconds int64    `json:"pix_remaining_seconds"`
	InReview            bool     `json:"in_review"`
}

type ResumeResponse struct {
	Kind     string            `json:"kind"`
	Checkout *CheckoutResponse `json:"checkout,omitempty"`
}

type WebhookResponse struct {
	Message   string `json:"message"`
	Duplicate bool   `json:"duplicate"`
	Ignored   bool   `json:"ignored"`
	State     string `json:"state,omitempty"`
}
