package entity

import "time"

const (
	PaymentMethodPix        = "pix"
	PaymentMethodBoleto     = "boleto"
	PaymentMethodCreditCard = "credit_card"
	PaymentMethodFree       = "free"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusPaid      = "paid"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusFailed    = "failed"
)

type Payment struct {
	ID      string
	OrderID string
	UserID  string

	AmountCents int64
	Method      string
	Status      string

	Gateway              *string
	GatewayTransactionID *string

	PixCode      *string
	QRCodeBase64 *string

	BoletoCode    *string
	BoletoURL     *string
	BoletoDueDate *string

	PaidAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPixArtifact reports whether the payment still carries a usable PIX code.
func (p *Payment) HasPixArtifact() bool {
	return p != nil && p.Method == PaymentMethodPix && p.PixCode != nil && *p.PixCode != ""
}

func (p *Payment) HasTransaction() bool {
	return p != nil && p.GatewayTransactionID != nil && *p.GatewayTransactionID != ""
}

// ClearPixArtifact drops the PIX code and QR image from the payment.
func (p *Payment) ClearPixArtifact() {
	p.PixCode = nil
	p.QRCodeBase64 = nil
}
