// Package postgres provides a PostgreSQL-backed implementation of the storage.Store interface.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitwiser-pay/internal/models"
	"github.com/mmynk/splitwiser-pay/internal/storage"
)

var _ storage.Store = (*PostgresStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS splits (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    currency TEXT NOT NULL,
    total NUMERIC(14, 2) NOT NULL,
    members JSONB NOT NULL,
    version BIGINT NOT NULL DEFAULT 1,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_orders (
    order_ref TEXT PRIMARY KEY,
    split_id TEXT NOT NULL,
    member_id TEXT NOT NULL,
    amount NUMERIC(14, 2) NOT NULL,
    currency TEXT NOT NULL,
    processor_order_id TEXT,
    payment_session_id TEXT,
    status TEXT,
    created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payment_orders_split_id ON payment_orders(split_id);
`

// PostgresStore implements storage.Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// New connects to the database at connStr, verifies the connection and
// applies the schema.
func New(ctx context.Context, connStr string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CreateSplit persists a new split.
func (s *PostgresStore) CreateSplit(ctx context.Context, split *models.Split) error {
	if split.ID == "" {
		split.ID = uuid.New().String()
	}
	if split.CreatedAt == 0 {
		split.CreatedAt = time.Now().Unix()
	}
	if split.Version == 0 {
		split.Version = 1
	}
	split.UpdatedAt = split.CreatedAt

	members, err := encodeMembers(split.Members)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO splits (id, title, currency, total, members, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7, $8)`,
		split.ID, split.Title, split.Currency, split.Total.String(), members,
		split.Version, split.CreatedAt, split.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert split: %w", err)
	}
	return nil
}

// GetSplit retrieves a split by ID.
func (s *PostgresStore) GetSplit(ctx context.Context, splitID string) (*models.Split, error) {
	split := &models.Split{}
	var total string
	var members []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, title, currency, total::text, members, version, created_at, updated_at
		 FROM splits WHERE id = $1`,
		splitID,
	).Scan(&split.ID, &split.Title, &split.Currency, &total, &members,
		&split.Version, &split.CreatedAt, &split.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("split %s: %w", splitID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get split: %w", err)
	}

	if split.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("failed to parse split total: %w", err)
	}
	if err := json.Unmarshal(members, &split.Members); err != nil {
		return nil, fmt.Errorf("failed to decode members: %w", err)
	}
	return split, nil
}

// CompareAndUpdateMembers writes the member list if the split is still at expectedVersion.
func (s *PostgresStore) CompareAndUpdateMembers(ctx context.Context, splitID string, expectedVersion int64, members []models.Member) (int64, error) {
	encoded, err := encodeMembers(members)
	if err != nil {
		return 0, err
	}

	var version int64
	err = s.pool.QueryRow(ctx,
		`UPDATE splits SET members = $1, version = version + 1, updated_at = $2
		 WHERE id = $3 AND version = $4
		 RETURNING version`,
		encoded, time.Now().Unix(), splitID, expectedVersion,
	).Scan(&version)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to update members: %w", err)
	}

	var exists bool
	err = s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM splits WHERE id = $1)", splitID).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("failed to check split existence: %w", err)
	}
	if !exists {
		return 0, fmt.Errorf("split %s: %w", splitID, storage.ErrNotFound)
	}
	return 0, fmt.Errorf("split %s at version %d: %w", splitID, expectedVersion, storage.ErrVersionConflict)
}

// RecordOrder persists a payment order.
func (s *PostgresStore) RecordOrder(ctx context.Context, order *models.PaymentOrder) error {
	if order.CreatedAt == 0 {
		order.CreatedAt = time.Now().Unix()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO payment_orders (order_ref, split_id, member_id, amount, currency,
		     processor_order_id, payment_session_id, status, created_at)
		 VALUES ($1, $2, $3, $4::text::numeric, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9)`,
		order.OrderRef, order.SplitID, order.MemberID, order.Amount.String(), order.Currency,
		order.ProcessorOrderID, order.PaymentSessionID, order.Status, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment order: %w", err)
	}
	return nil
}

// GetOrder retrieves a payment order by its reference.
func (s *PostgresStore) GetOrder(ctx context.Context, orderRef string) (*models.PaymentOrder, error) {
	order := &models.PaymentOrder{}
	var amount string

	err := s.pool.QueryRow(ctx,
		`SELECT order_ref, split_id, member_id, amount::text, currency,
		     COALESCE(processor_order_id, ''), COALESCE(payment_session_id, ''), COALESCE(status, ''), created_at
		 FROM payment_orders WHERE order_ref = $1`,
		orderRef,
	).Scan(&order.OrderRef, &order.SplitID, &order.MemberID, &amount, &order.Currency,
		&order.ProcessorOrderID, &order.PaymentSessionID, &order.Status, &order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("payment order %s: %w", orderRef, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment order: %w", err)
	}

	if order.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse order amount: %w", err)
	}
	return order, nil
}

func encodeMembers(members []models.Member) ([]byte, error) {
	if members == nil {
		members = []models.Member{}
	}
	b, err := json.Marshal(members)
	if err != nil {
		return nil, fmt.Errorf("failed to encode members: %w", err)
	}
	return b, nil
}
