package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/mmynk/splitwiser-pay/internal/models"
)

// payload mirrors the processor's webhook body. Only the fields the
// reconciliation needs are decoded; the payment object is kept raw.
type payload struct {
	Event string `json:"event"`
	Type  string `json:"type"`
	Data  struct {
		Payment json.RawMessage `json:"payment"`
	} `json:"data"`
}

type paymentFields struct {
	OrderID       string          `json:"order_id"`
	OrderIDLegacy string          `json:"orderId"`
	PaymentStatus string          `json:"payment_status"`
	PaymentID     json.RawMessage `json:"payment_id"`
}

// parseEvent decodes a verified request body into a WebhookEvent.
func parseEvent(body []byte) (models.WebhookEvent, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return models.WebhookEvent{}, fmt.Errorf("failed to decode webhook body: %w", err)
	}

	ev := models.WebhookEvent{EventType: p.Event}
	if ev.EventType == "" {
		ev.EventType = p.Type
	}
	if len(p.Data.Payment) == 0 || string(p.Data.Payment) == "null" {
		return ev, nil
	}

	var f paymentFields
	if err := json.Unmarshal(p.Data.Payment, &f); err != nil {
		return models.WebhookEvent{}, fmt.Errorf("failed to decode payment: %w", err)
	}

	ev.Payment = models.Payment{
		OrderRef:  f.OrderID,
		Status:    models.PaymentStatus(f.PaymentStatus),
		PaymentID: scalarString(f.PaymentID),
		Raw:       p.Data.Payment,
	}
	if ev.Payment.OrderRef == "" {
		ev.Payment.OrderRef = f.OrderIDLegacy
	}
	return ev, nil
}

// scalarString renders a JSON string or number as plain text.
// The processor sends payment_id as a number on some API versions.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
