package types

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// HeaderUserID carries the buyer id forwarded by the calling service.
const HeaderUserID = "X-User-Id"

const maxCallbackBody = 1 << 20

var (
	validSessionTypes = map[string]bool{"brasileiras": true, "estrangeiras": true}
	validMethods      = map[string]bool{"pix": true, "boleto": true, "credit_card": true, "card": true}
)

func NewPurchaseRequestFromContext(ctx echo.Context) (*PurchaseRequest, error) {
	var body PurchaseRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.normalize(ctx)
	return &body, nil
}

func (r *PurchaseRequest) normalize(ctx echo.Context) {
	r.Normalize()
	if r.UserId == "" {
		r.UserId = strings.TrimSpace(ctx.Request().Header.Get(HeaderUserID))
	}
}

func (r *PurchaseRequest) Normalize() {
	r.UserId = strings.TrimSpace(r.UserId)
	r.SessionType = strings.ToLower(strings.TrimSpace(r.SessionType))
	r.PlanId = strings.TrimSpace(r.PlanId)
}

func (r *PurchaseRequest) Validate() error {
	if r.GetUserId() == "" {
		return errors.New("user_id is required")
	}
	hasSession := r.GetSessionType() != ""
	hasPlan := r.GetPlanId() != ""
	switch {
	case hasSession && hasPlan:
		return errors.New("session_type and plan_id are mutually exclusive")
	case hasSession:
		if !validSessionTypes[r.GetSessionType()] {
			return errors.New("session_type must be brasileiras or estrangeiras")
		}
		if r.GetQuantity() <= 0 {
			return errors.New("quantity must be > 0")
		}
		if r.GetPriceCents() < 0 {
			return errors.New("price_cents must be >= 0")
		}
	case hasPlan:
	default:
		return errors.New("session_type or plan_id is required")
	}
	return nil
}

func (d *PaymentDetails) normalize(ctx echo.Context) {
	d.Normalize()
	if d.RemoteIp == "" {
		d.RemoteIp = ctx.RealIP()
	}
}

func (d *PaymentDetails) Normalize() {
	d.PaymentMethod = strings.ToLower(strings.TrimSpace(d.PaymentMethod))
	d.RemoteIp = strings.TrimSpace(d.RemoteIp)
	if d.Customer != nil {
		d.Customer.Name = strings.TrimSpace(d.Customer.Name)
		d.Customer.Email = strings.TrimSpace(d.Customer.Email)
		d.Customer.CpfCnpj = digitsOnly(d.Customer.CpfCnpj)
		d.Customer.Phone = digitsOnly(d.Customer.Phone)
		d.Customer.PostalCode = digitsOnly(d.Customer.PostalCode)
	}
	if d.Card != nil {
		d.Card.Number = digitsOnly(d.Card.Number)
	}
}

// Validate checks the fields a charge needs. An empty method is allowed
// only when the purchase turns out to be free.
func (d *PaymentDetails) Validate() error {
	method := d.GetPaymentMethod()
	if method != "" && !validMethods[method] {
		return errors.New("payment_method must be pix, boleto or credit_card")
	}
	if method == "credit_card" || method == "card" {
		if d.Card == nil || d.Card.Number == "" || d.Card.Cvv == "" {
			return errors.New("card details are required")
		}
		if d.GetInstallments() < 0 || d.GetInstallments() > 12 {
			return errors.New("installments must be between 1 and 12")
		}
	}
	return nil
}

func NewStartCheckoutRequestFromContext(ctx echo.Context) (*StartCheckoutRequest, error) {
	var body StartCheckoutRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.PurchaseRequest.normalize(ctx)
	body.PaymentDetails.normalize(ctx)
	return &body, nil
}

func (r *StartCheckoutRequest) Validate() error {
	if err := r.PurchaseRequest.Validate(); err != nil {
		return err
	}
	return r.PaymentDetails.Validate()
}

// NewOrderRequestFromContext reads the order id from the path and the user
// id from the header, falling back to the user_id query parameter.
func NewOrderRequestFromContext(ctx echo.Context) (*OrderRequest, error) {
	req := &OrderRequest{
		OrderId: strings.TrimSpace(ctx.Param("id")),
		UserId:  strings.TrimSpace(ctx.Request().Header.Get(HeaderUserID)),
	}
	if req.UserId == "" {
		req.UserId = strings.TrimSpace(ctx.QueryParam("user_id"))
	}
	return req, nil
}

func (r *OrderRequest) Normalize() {
	r.UserId = strings.TrimSpace(r.UserId)
	r.OrderId = strings.TrimSpace(r.OrderId)
}

func (r *OrderRequest) Validate() error {
	if r.GetUserId() == "" {
		return errors.New("user_id is required")
	}
	if r.GetOrderId() == "" {
		return errors.New("invalid order id")
	}
	return nil
}

func NewGenerateChargeRequestFromContext(ctx echo.Context) (*GenerateChargeRequest, error) {
	var body GenerateChargeRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.OrderId = strings.TrimSpace(ctx.Param("id"))
	body.UserId = strings.TrimSpace(body.UserId)
	if body.UserId == "" {
		body.UserId = strings.TrimSpace(ctx.Request().Header.Get(HeaderUserID))
	}
	body.PaymentDetails.normalize(ctx)
	return &body, nil
}

func (r *GenerateChargeRequest) Validate() error {
	if err := r.OrderRequest.Validate(); err != nil {
		return err
	}
	if r.GetPaymentMethod() == "" {
		return errors.New("payment_method is required")
	}
	return r.PaymentDetails.Validate()
}

func NewGatewayCallbackRequestFromContext(ctx echo.Context) (*GatewayCallbackRequest, error) {
	payload, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxCallbackBody))
	if err != nil {
		return nil, err
	}
	return &GatewayCallbackRequest{
		Gateway: strings.ToLower(strings.TrimSpace(ctx.Param("gateway"))),
		Payload: payload,
		Headers: ctx.Request().Header.Clone(),
	}, nil
}

func (r *GatewayCallbackRequest) Validate() error {
	if r.GetGateway() == "" {
		return errors.New("gateway is required")
	}
	if len(r.GetPayload()) == 0 {
		return errors.New("payload is required")
	}
	if r.Headers == nil {
		r.Headers = http.Header{}
	}
	return nil
}

func digitsOnly(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
