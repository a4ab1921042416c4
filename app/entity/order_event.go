package entity

import "time"

type OrderEvent struct {
	ID uint64

	OrderID   string
	PaymentID *string

	EventType string

	OldStatus *string
	NewStatus string

	Detail *string

	CreatedAt time.Time
}
