package models

import "github.com/shopspring/decimal"

// PaymentOrder records a payment attempt started for one member of a split.
// It is written for audit when the processor order is created; reconciliation
// never reads it.
type PaymentOrder struct {
	// OrderRef is the encoded order reference and the primary key.
	OrderRef string

	SplitID  string
	MemberID string
	Amount   decimal.Decimal
	Currency string

	// ProcessorOrderID is the processor's own identifier for the order.
	ProcessorOrderID string

	// PaymentSessionID is handed to the client to complete checkout.
	PaymentSessionID string

	// Status is the order status reported by the processor at creation.
	Status string

	CreatedAt int64
}
