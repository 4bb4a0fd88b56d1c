package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitwiser-pay/internal/models"
	"github.com/mmynk/splitwiser-pay/internal/storage"
)

// RecordOrder persists a payment order.
func (s *SQLiteStore) RecordOrder(ctx context.Context, order *models.PaymentOrder) error {
	if order.CreatedAt == 0 {
		order.CreatedAt = time.Now().Unix()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payment_orders (order_ref, split_id, member_id, amount, currency,
		     processor_order_id, payment_session_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.OrderRef, order.SplitID, order.MemberID, order.Amount.String(), order.Currency,
		nullable(order.ProcessorOrderID), nullable(order.PaymentSessionID), nullable(order.Status),
		order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment order: %w", err)
	}

	return nil
}

// GetOrder retrieves a payment order by its reference.
func (s *SQLiteStore) GetOrder(ctx context.Context, orderRef string) (*models.PaymentOrder, error) {
	order := &models.PaymentOrder{}
	var amount string
	var processorOrderID, sessionID, status sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT order_ref, split_id, member_id, amount, currency,
		     processor_order_id, payment_session_id, status, created_at
		 FROM payment_orders WHERE order_ref = ?`,
		orderRef,
	).Scan(&order.OrderRef, &order.SplitID, &order.MemberID, &amount, &order.Currency,
		&processorOrderID, &sessionID, &status, &order.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment order %s: %w", orderRef, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment order: %w", err)
	}

	if order.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse order amount: %w", err)
	}
	order.ProcessorOrderID = processorOrderID.String
	order.PaymentSessionID = sessionID.String
	order.Status = status.String

	return order, nil
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
