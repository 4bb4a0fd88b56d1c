// Package processor creates payment orders with the payment processor.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the processor API credentials.
type Config struct {
	BaseURL    string
	AppID      string
	Secret     string
	APIVersion string
	Timeout    time.Duration
}

// Customer identifies the payer to the processor.
type Customer struct {
	ID    string `json:"customer_id"`
	Email string `json:"customer_email,omitempty"`
	Phone string `json:"customer_phone,omitempty"`
}

// OrderRequest describes the order to create. OrderID must be an order
// reference produced by orderref.
type OrderRequest struct {
	OrderID   string
	Amount    decimal.Decimal
	Currency  string
	Customer  Customer
	NotifyURL string
	Note      string
}

// Order is the processor's view of a created order.
type Order struct {
	CFOrderID        string `json:"cf_order_id"`
	OrderID          string `json:"order_id"`
	OrderStatus      string `json:"order_status"`
	PaymentSessionID string `json:"payment_session_id"`
}

type orderPayload struct {
	OrderID         string      `json:"order_id"`
	OrderAmount     json.Number `json:"order_amount"`
	OrderCurrency   string      `json:"order_currency"`
	CustomerDetails Customer    `json:"customer_details"`
	OrderMeta       orderMeta   `json:"order_meta"`
	OrderNote       string      `json:"order_note,omitempty"`
}

type orderMeta struct {
	NotifyURL string `json:"notify_url"`
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
}

// Client talks to the processor's order API.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a processor client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// CreateOrder registers a new order and returns the processor's order record.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if c.cfg.AppID == "" || c.cfg.Secret == "" {
		return nil, fmt.Errorf("processor credentials are not configured")
	}

	payload := orderPayload{
		OrderID:         req.OrderID,
		OrderAmount:     json.Number(req.Amount.StringFixed(2)),
		OrderCurrency:   req.Currency,
		CustomerDetails: req.Customer,
		OrderMeta:       orderMeta{NotifyURL: req.NotifyURL},
		OrderNote:       req.Note,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/orders", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-client-id", c.cfg.AppID)
	httpReq.Header.Set("x-client-secret", c.cfg.Secret)
	httpReq.Header.Set("x-api-version", c.cfg.APIVersion)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("order request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read order response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.Unmarshal(body, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("processor API error (%d): %s", resp.StatusCode, msg)
	}

	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}
	return &order, nil
}
