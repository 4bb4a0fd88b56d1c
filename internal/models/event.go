package models

import "encoding/json"

// PaymentStatus is the processor-reported state of a payment.
type PaymentStatus string

const (
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
	PaymentPending PaymentStatus = "PENDING"
)

// Event types that announce a successful payment. The second form is what
// the processor sends for its versioned webhook API.
const (
	EventPaymentSuccess        = "PAYMENT.SUCCESS"
	EventPaymentSuccessWebhook = "PAYMENT_SUCCESS_WEBHOOK"
)

// WebhookEvent is a payment notification after it has been authenticated
// and parsed. It is consumed once and never persisted as-is.
type WebhookEvent struct {
	EventType string
	Payment   Payment
}

// Payment is the payment section of a webhook event.
type Payment struct {
	// OrderRef is the order reference echoed back by the processor.
	OrderRef  string
	Status    PaymentStatus
	PaymentID string

	// Raw is the payment object exactly as it appeared in the request body.
	Raw json.RawMessage
}

// IsSuccess reports whether the event announces a successful payment.
// An explicit payment status wins; the event type is only consulted when the
// status is missing.
func (e WebhookEvent) IsSuccess() bool {
	if e.Payment.Status != "" {
		return e.Payment.Status == PaymentSuccess
	}
	return e.EventType == EventPaymentSuccess || e.EventType == EventPaymentSuccessWebhook
}
