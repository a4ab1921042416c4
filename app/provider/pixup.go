package provider

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	PixUpCode = "pixup"

	pixUpTokenHeader = "X-Webhook-Token"
)

type PixUpConfig struct {
	ProxyURL     string
	ProxySecret  string
	ClientID     string
	ClientSecret string
	WebhookToken string
	HTTPTimeout  time.Duration
}

// PixUpProvider issues PIX charges through the PixUp proxy. The proxy has
// no status lookup, so payments are only confirmed by callback.
type PixUpProvider struct {
	cfg    PixUpConfig
	client *resty.Client
}

func NewPixUpProvider(cfg PixUpConfig) *PixUpProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("X-Proxy-Secret", cfg.ProxySecret).
		SetHeader("Content-Type", "application/json")

	return &PixUpProvider{cfg: cfg, client: client}
}

func (p *PixUpProvider) Code() string {
	return PixUpCode
}

func (p *PixUpProvider) configured() bool {
	return strings.TrimSpace(p.cfg.ProxyURL) != "" &&
		strings.TrimSpace(p.cfg.ProxySecret) != "" &&
		strings.TrimSpace(p.cfg.ClientID) != "" &&
		strings.TrimSpace(p.cfg.ClientSecret) != ""
}

// pixUpCharge accepts the field spellings the proxy answers with.
type pixUpCharge struct {
	ID                string `json:"id"`
	TransactionID     string `json:"transactionId"`
	PixCode           string `json:"pixCode"`
	QRCode            string `json:"qrcode"`
	PixCodeSnake      string `json:"pix_code"`
	QRCodeBase64      string `json:"qrCodeBase64"`
	QRCodeBase64Snake string `json:"qrcode_base64"`
	Status            string `json:"status"`
}

func (c *pixUpCharge) transactionID() string {
	return firstNonEmpty(c.TransactionID, c.ID)
}

func (c *pixUpCharge) pixCode() string {
	return firstNonEmpty(c.PixCode, c.QRCode, c.PixCodeSnake)
}

func (c *pixUpCharge) qrCodeBase64() string {
	return firstNonEmpty(c.QRCodeBase64, c.QRCodeBase64Snake)
}

type pixUpResponse struct {
	pixUpCharge
	Data  *pixUpCharge `json:"data"`
	Error string       `json:"error"`
}

func (r *pixUpResponse) charge() *pixUpCharge {
	if r.Data != nil {
		return r.Data
	}
	return &r.pixUpCharge
}

func (p *PixUpProvider) CreatePix(ctx context.Context, input *PixInput) (*PixOutput, error) {
	if !p.configured() {
		return nil, ErrNotConfigured
	}

	description := input.Description
	if strings.TrimSpace(description) == "" {
		description = "Payment"
	}

	var out pixUpResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"action":         "create_pix",
			"client_id":      p.cfg.ClientID,
			"client_secret":  p.cfg.ClientSecret,
			"amount":         centsToReais(input.AmountCents),
			"description":    description,
			"external_id":    input.OrderID,
			"payer_name":     input.Customer.Name,
			"payer_document": onlyDigits(input.Customer.CPFCNPJ),
		}).
		SetResult(&out).
		SetError(&out).
		Post(p.cfg.ProxyURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() || out.Error != "" {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(resp.Body()))
		}
		return nil, &GatewayError{Gateway: PixUpCode, StatusCode: resp.StatusCode(), Message: msg}
	}

	charge := out.charge()
	if charge.transactionID() == "" || charge.pixCode() == "" {
		return nil, &GatewayError{Gateway: PixUpCode, StatusCode: resp.StatusCode(), Message: "pix payload missing"}
	}
	return &PixOutput{
		TransactionID: charge.transactionID(),
		PixCode:       charge.pixCode(),
		QRCodeBase64:  charge.qrCodeBase64(),
	}, nil
}

func (p *PixUpProvider) GetChargeStatus(_ context.Context, _ string) (string, error) {
	return ChargeStatusPending, nil
}

// VerifyAndParseCallback requires the shared webhook token. Without it a
// notification cannot be trusted since it cannot be confirmed by lookup.
func (p *PixUpProvider) VerifyAndParseCallback(_ context.Context, payload []byte, headers http.Header) (*CallbackEvent, error) {
	token := strings.TrimSpace(p.cfg.WebhookToken)
	if token == "" {
		return nil, ErrInvalidCallback
	}
	if subtle.ConstantTimeCompare([]byte(headers.Get(pixUpTokenHeader)), []byte(token)) != 1 {
		return nil, ErrInvalidCallback
	}

	var event struct {
		TransactionID string `json:"transactionId"`
		ExternalID    string `json:"externalId"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	if strings.TrimSpace(event.TransactionID) == "" {
		return nil, ErrInvalidCallback
	}

	result := &CallbackEvent{
		TransactionID: strings.TrimSpace(event.TransactionID),
		EventType:     strings.ToUpper(strings.TrimSpace(event.Status)),
		Status:        mapPixUpStatus(event.Status),
	}
	if ref := strings.TrimSpace(event.ExternalID); ref != "" {
		result.OrderID = &ref
	}
	return result, nil
}

func mapPixUpStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid", "confirmed", "approved":
		return ChargeStatusPaid
	case "expired":
		return ChargeStatusExpired
	case "cancelled", "canceled", "refunded":
		return ChargeStatusCancelled
	default:
		return ChargeStatusPending
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
