package entity

import "time"

const (
	GatewayCallbackProcessed int32 = 10
	GatewayCallbackIgnored   int32 = 15
	GatewayCallbackRejected  int32 = 20
)

type GatewayCallback struct {
	ID uint64

	Gateway       string
	TransactionID string
	OrderID       *string
	EventType     string

	PayloadJSON string
	Status      int32
	Error       *string

	CreatedAt time.Time
}

type GatewayAttempt struct {
	ID uint64

	Gateway   string
	OrderID   string
	Method    string
	Attempt   int32
	Success   bool
	Error     *string
	LatencyMS int64

	CreatedAt time.Time
}

type GatewayFailure struct {
	Gateway   string
	Error     string
	LatencyMS int64
}

// GatewayAlert describes a charge no gateway in the chain could issue.
type GatewayAlert struct {
	OrderID     string
	UserID      string
	ProductName string
	Method      string
	AmountCents int64
	Failures    []GatewayFailure

	At time.Time
}
