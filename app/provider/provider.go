package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Charge statuses reported by gateways, normalized.
const (
	ChargeStatusPending   = "pending"
	ChargeStatusPaid      = "paid"
	ChargeStatusReview    = "review"
	ChargeStatusFailed    = "failed"
	ChargeStatusExpired   = "expired"
	ChargeStatusCancelled = "cancelled"
)

var (
	ErrProviderNotSupported = errors.New("provider is not supported")
	ErrNotConfigured        = errors.New("gateway is not configured")
	ErrInvalidCallback      = errors.New("invalid gateway callback")
	ErrDocumentRequired     = errors.New("customer cpf/cnpj is required")
)

// GatewayError is a non-2xx answer from a gateway API.
type GatewayError struct {
	Gateway    string
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s request failed: status=%d message=%s", e.Gateway, e.StatusCode, e.Message)
}

type Customer struct {
	Name          string
	Email         string
	CPFCNPJ       string
	Phone         string
	PostalCode    string
	AddressNumber string
}

type PixInput struct {
	OrderID     string
	AmountCents int64
	Description string
	Customer    Customer
}

type PixOutput struct {
	TransactionID string
	PixCode       string
	QRCodeBase64  string
}

type BoletoInput struct {
	OrderID     string
	AmountCents int64
	Description string
	Customer    Customer
	DueDays     int
}

type BoletoOutput struct {
	TransactionID string
	BoletoCode    string
	BoletoURL     string
	DueDate       string
}

type Card struct {
	HolderName  string
	Number      string
	ExpiryMonth string
	ExpiryYear  string
	CVV         string
}

type CardInput struct {
	OrderID      string
	AmountCents  int64
	Description  string
	Customer     Customer
	Card         Card
	Installments int
	RemoteIP     string
}

// CardOutput carries the synchronous card result. Status is paid, review,
// pending or failed; a failed charge has a DeclineReason.
type CardOutput struct {
	TransactionID string
	Status        string
	DeclineReason string
}

type CallbackEvent struct {
	TransactionID string
	OrderID       *string
	EventType     string
	Status        string
}

type Provider interface {
	Code() string
	CreatePix(ctx context.Context, input *PixInput) (*PixOutput, error)
	GetChargeStatus(ctx context.Context, transactionID string) (string, error)
	VerifyAndParseCallback(ctx context.Context, payload []byte, headers http.Header) (*CallbackEvent, error)
}

type BoletoCreator interface {
	CreateBoleto(ctx context.Context, input *BoletoInput) (*BoletoOutput, error)
}

type CardCharger interface {
	ChargeCard(ctx context.Context, input *CardInput) (*CardOutput, error)
}

func centsToReais(cents int64) float64 {
	return float64(cents) / 100
}
