package provider

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	AsaasCode = "asaas"

	asaasDateLayout = "2006-01-02"
)

type AsaasConfig struct {
	APIKey       string
	BaseURL      string
	WebhookToken string
	HTTPTimeout  time.Duration
}

type AsaasProvider struct {
	cfg    AsaasConfig
	client *resty.Client
	now    func() time.Time
}

func NewAsaasProvider(cfg AsaasConfig) *AsaasProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("access_token", cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "ms-go-checkout")

	return &AsaasProvider{cfg: cfg, client: client, now: time.Now}
}

func (p *AsaasProvider) Code() string {
	return AsaasCode
}

type asaasErrorBody struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

func (b *asaasErrorBody) message() string {
	if len(b.Errors) == 0 {
		return ""
	}
	return b.Errors[0].Description
}

type asaasPayment struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	DueDate           string `json:"dueDate"`
	BankSlipURL       string `json:"bankSlipUrl"`
	NossoNumero       string `json:"nossoNumero"`
	ExternalReference string `json:"externalReference"`
	BillingType       string `json:"billingType"`
}

type asaasCustomer struct {
	ID      string `json:"id"`
	CPFCNPJ string `json:"cpfCnpj"`
}

func (p *AsaasProvider) CreatePix(ctx context.Context, input *PixInput) (*PixOutput, error) {
	payment, err := p.createPayment(ctx, "PIX", input.OrderID, input.AmountCents, input.Description, input.Customer, p.today(), nil)
	if err != nil {
		return nil, err
	}

	var qr struct {
		Payload      string `json:"payload"`
		EncodedImage string `json:"encodedImage"`
	}
	if err := p.get(ctx, "/payments/{id}/pixQrCode", payment.ID, &qr); err != nil {
		return nil, err
	}
	if strings.TrimSpace(qr.Payload) == "" {
		return nil, &GatewayError{Gateway: AsaasCode, StatusCode: http.StatusOK, Message: "pix payload missing"}
	}

	return &PixOutput{
		TransactionID: payment.ID,
		PixCode:       qr.Payload,
		QRCodeBase64:  qr.EncodedImage,
	}, nil
}

func (p *AsaasProvider) CreateBoleto(ctx context.Context, input *BoletoInput) (*BoletoOutput, error) {
	if onlyDigits(input.Customer.CPFCNPJ) == "" {
		return nil, ErrDocumentRequired
	}
	dueDays := input.DueDays
	if dueDays <= 0 {
		dueDays = 3
	}
	dueDate := p.now().AddDate(0, 0, dueDays).Format(asaasDateLayout)

	payment, err := p.createPayment(ctx, "BOLETO", input.OrderID, input.AmountCents, input.Description, input.Customer, dueDate, nil)
	if err != nil {
		return nil, err
	}

	var ident struct {
		IdentificationField string `json:"identificationField"`
		NossoNumero         string `json:"nossoNumero"`
	}
	if err := p.get(ctx, "/payments/{id}/identificationField", payment.ID, &ident); err != nil {
		return nil, err
	}

	code := ident.IdentificationField
	if code == "" {
		code = ident.NossoNumero
	}
	if code == "" {
		code = payment.NossoNumero
	}
	if payment.DueDate != "" {
		dueDate = payment.DueDate
	}

	return &BoletoOutput{
		TransactionID: payment.ID,
		BoletoCode:    code,
		BoletoURL:     payment.BankSlipURL,
		DueDate:       dueDate,
	}, nil
}

func (p *AsaasProvider) ChargeCard(ctx context.Context, input *CardInput) (*CardOutput, error) {
	extra := map[string]interface{}{
		"creditCard": map[string]string{
			"holderName":  input.Card.HolderName,
			"number":      onlyDigits(input.Card.Number),
			"expiryMonth": input.Card.ExpiryMonth,
			"expiryYear":  input.Card.ExpiryYear,
			"ccv":         input.Card.CVV,
		},
		"creditCardHolderInfo": map[string]string{
			"name":          input.Customer.Name,
			"email":         input.Customer.Email,
			"cpfCnpj":       onlyDigits(input.Customer.CPFCNPJ),
			"phone":         onlyDigits(input.Customer.Phone),
			"postalCode":    onlyDigits(input.Customer.PostalCode),
			"addressNumber": input.Customer.AddressNumber,
		},
		"remoteIp": input.RemoteIP,
	}
	// Installments must sum to the order amount; Asaas splits totalValue.
	if input.Installments > 1 {
		extra["installmentCount"] = input.Installments
		extra["totalValue"] = centsToReais(input.AmountCents)
	}

	payment, err := p.createPayment(ctx, "CREDIT_CARD", input.OrderID, input.AmountCents, input.Description, input.Customer, p.today(), extra)
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) && gwErr.StatusCode >= 400 && gwErr.StatusCode < 500 {
			return &CardOutput{Status: ChargeStatusFailed, DeclineReason: gwErr.Message}, nil
		}
		return nil, err
	}

	status := mapAsaasStatus(payment.Status)
	if status == ChargeStatusPending {
		status = ChargeStatusReview
	}
	return &CardOutput{TransactionID: payment.ID, Status: status}, nil
}

func (p *AsaasProvider) GetChargeStatus(ctx context.Context, transactionID string) (string, error) {
	if strings.TrimSpace(transactionID) == "" {
		return ChargeStatusPending, nil
	}

	var payment asaasPayment
	if err := p.get(ctx, "/payments/{id}", transactionID, &payment); err != nil {
		return "", err
	}
	return mapAsaasStatus(payment.Status), nil
}

func (p *AsaasProvider) VerifyAndParseCallback(_ context.Context, payload []byte, headers http.Header) (*CallbackEvent, error) {
	if token := strings.TrimSpace(p.cfg.WebhookToken); token != "" {
		got := headers.Get("asaas-access-token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return nil, ErrInvalidCallback
		}
	}

	var event struct {
		Event   string       `json:"event"`
		Payment asaasPayment `json:"payment"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	if strings.TrimSpace(event.Payment.ID) == "" {
		return nil, ErrInvalidCallback
	}

	result := &CallbackEvent{
		TransactionID: event.Payment.ID,
		EventType:     event.Event,
		Status:        mapAsaasStatus(event.Payment.Status),
	}
	if ref := strings.TrimSpace(event.Payment.ExternalReference); ref != "" {
		result.OrderID = &ref
	}

	switch event.Event {
	case "PAYMENT_RECEIVED", "PAYMENT_CONFIRMED":
		result.Status = ChargeStatusPaid
	case "PAYMENT_DELETED":
		result.Status = ChargeStatusCancelled
	}
	return result, nil
}

func (p *AsaasProvider) createPayment(
	ctx context.Context,
	billingType string,
	orderID string,
	amountCents int64,
	description string,
	customer Customer,
	dueDate string,
	extra map[string]interface{},
) (*asaasPayment, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}

	customerID, err := p.ensureCustomer(ctx, customer)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"customer":          customerID,
		"billingType":       billingType,
		"value":             centsToReais(amountCents),
		"dueDate":           dueDate,
		"description":       description,
		"externalReference": orderID,
	}
	for k, v := range extra {
		body[k] = v
	}

	var payment asaasPayment
	var apiErr asaasErrorBody
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&payment).
		SetError(&apiErr).
		Post("/payments")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, p.gatewayError(resp, &apiErr)
	}
	if payment.ID == "" {
		return nil, &GatewayError{Gateway: AsaasCode, StatusCode: resp.StatusCode(), Message: "payment id missing"}
	}
	return &payment, nil
}

// ensureCustomer finds the customer by email or creates it. A document
// missing on an existing customer is backfilled.
func (p *AsaasProvider) ensureCustomer(ctx context.Context, customer Customer) (string, error) {
	document := onlyDigits(customer.CPFCNPJ)

	var list struct {
		Data []asaasCustomer `json:"data"`
	}
	var apiErr asaasErrorBody
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("email", customer.Email).
		SetResult(&list).
		SetError(&apiErr).
		Get("/customers")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", p.gatewayError(resp, &apiErr)
	}

	if len(list.Data) > 0 {
		existing := list.Data[0]
		if document != "" && existing.CPFCNPJ == "" {
			resp, err := p.client.R().
				SetContext(ctx).
				SetPathParam("id", existing.ID).
				SetBody(map[string]string{"cpfCnpj": document}).
				SetError(&apiErr).
				Post("/customers/{id}")
			if err != nil {
				return "", err
			}
			if resp.IsError() {
				return "", p.gatewayError(resp, &apiErr)
			}
		}
		return existing.ID, nil
	}

	body := map[string]string{
		"name":  customer.Name,
		"email": customer.Email,
	}
	if phone := onlyDigits(customer.Phone); phone != "" {
		body["mobilePhone"] = phone
	}
	if document != "" {
		body["cpfCnpj"] = document
	}

	var created asaasCustomer
	resp, err = p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&created).
		SetError(&apiErr).
		Post("/customers")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", p.gatewayError(resp, &apiErr)
	}
	if created.ID == "" {
		return "", &GatewayError{Gateway: AsaasCode, StatusCode: resp.StatusCode(), Message: "customer id missing"}
	}
	return created.ID, nil
}

func (p *AsaasProvider) get(ctx context.Context, path, id string, out interface{}) error {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return ErrNotConfigured
	}

	var apiErr asaasErrorBody
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(out).
		SetError(&apiErr).
		Get(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return p.gatewayError(resp, &apiErr)
	}
	return nil
}

func (p *AsaasProvider) gatewayError(resp *resty.Response, body *asaasErrorBody) error {
	msg := body.message()
	if msg == "" {
		msg = strings.TrimSpace(string(resp.Body()))
	}
	return &GatewayError{Gateway: AsaasCode, StatusCode: resp.StatusCode(), Message: msg}
}

func (p *AsaasProvider) today() string {
	return p.now().Format(asaasDateLayout)
}

func mapAsaasStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "CONFIRMED", "RECEIVED", "RECEIVED_IN_CASH":
		return ChargeStatusPaid
	case "AWAITING_RISK_ANALYSIS":
		return ChargeStatusReview
	case "OVERDUE":
		return ChargeStatusExpired
	case "REFUNDED", "REFUND_REQUESTED", "REFUND_IN_PROGRESS",
		"CHARGEBACK_REQUESTED", "CHARGEBACK_DISPUTE", "AWAITING_CHARGEBACK_REVERSAL",
		"DUNNING_REQUESTED", "DUNNING_RECEIVED":
		return ChargeStatusFailed
	case "DELETED":
		return ChargeStatusCancelled
	default:
		return ChargeStatusPending
	}
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
