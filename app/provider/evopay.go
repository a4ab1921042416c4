package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const EvoPayCode = "evopay"

type EvoPayConfig struct {
	APIKey      string
	BaseURL     string
	CallbackURL string
	HTTPTimeout time.Duration
}

// EvoPayProvider issues PIX charges only.
type EvoPayProvider struct {
	cfg    EvoPayConfig
	client *resty.Client
}

func NewEvoPayProvider(cfg EvoPayConfig) *EvoPayProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("API-Key", cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &EvoPayProvider{cfg: cfg, client: client}
}

func (p *EvoPayProvider) Code() string {
	return EvoPayCode
}

type evoPayError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (p *EvoPayProvider) CreatePix(ctx context.Context, input *PixInput) (*PixOutput, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}

	var created struct {
		ID           string  `json:"id"`
		QRCodeText   string  `json:"qrCodeText"`
		QRCodeBase64 string  `json:"qrCodeBase64"`
		Amount       float64 `json:"amount"`
	}
	var apiErr evoPayError
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"amount":      centsToReais(input.AmountCents),
			"callbackUrl": p.cfg.CallbackURL,
		}).
		SetResult(&created).
		SetError(&apiErr).
		Post("/pix")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, p.gatewayError(resp, &apiErr)
	}
	if created.ID == "" || created.QRCodeText == "" {
		return nil, &GatewayError{Gateway: EvoPayCode, StatusCode: resp.StatusCode(), Message: "pix payload missing"}
	}

	return &PixOutput{
		TransactionID: created.ID,
		PixCode:       created.QRCodeText,
		QRCodeBase64:  created.QRCodeBase64,
	}, nil
}

func (p *EvoPayProvider) GetChargeStatus(ctx context.Context, transactionID string) (string, error) {
	if strings.TrimSpace(transactionID) == "" {
		return ChargeStatusPending, nil
	}
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return "", ErrNotConfigured
	}

	var payload struct {
		Status string `json:"status"`
	}
	var apiErr evoPayError
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("id", transactionID).
		SetResult(&payload).
		SetError(&apiErr).
		Get("/pix/{id}")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", p.gatewayError(resp, &apiErr)
	}
	return mapEvoPayStatus(payload.Status), nil
}

// VerifyAndParseCallback parses the notification. EvoPay does not sign its
// callbacks, so a paid notification is confirmed against the API before it
// is trusted.
func (p *EvoPayProvider) VerifyAndParseCallback(ctx context.Context, payload []byte, _ http.Header) (*CallbackEvent, error) {
	var event struct {
		ID         string `json:"id"`
		ExternalID string `json:"externalId"`
		Status     string `json:"status"`
		Type       string `json:"type"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, ErrInvalidCallback
	}

	result := &CallbackEvent{
		TransactionID: event.ID,
		EventType:     strings.ToUpper(strings.TrimSpace(event.Status)),
		Status:        mapEvoPayStatus(event.Status),
	}
	if ref := strings.TrimSpace(event.ExternalID); ref != "" {
		result.OrderID = &ref
	}

	if result.Status == ChargeStatusPaid {
		confirmed, err := p.GetChargeStatus(ctx, event.ID)
		if err != nil {
			return nil, err
		}
		if confirmed != ChargeStatusPaid {
			return nil, ErrInvalidCallback
		}
	}
	return result, nil
}

func (p *EvoPayProvider) gatewayError(resp *resty.Response, body *evoPayError) error {
	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	if msg == "" {
		msg = strings.TrimSpace(string(resp.Body()))
	}
	return &GatewayError{Gateway: EvoPayCode, StatusCode: resp.StatusCode(), Message: msg}
}

func mapEvoPayStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED", "PAID", "APPROVED":
		return ChargeStatusPaid
	case "EXPIRED":
		return ChargeStatusExpired
	case "CANCELED", "CANCELLED":
		return ChargeStatusFailed
	default:
		return ChargeStatusPending
	}
}
