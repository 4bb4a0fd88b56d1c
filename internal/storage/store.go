// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/splitwiser-pay/internal/models"
)

var (
	// ErrNotFound is returned when the requested split or order does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned by CompareAndUpdateMembers when the split
	// was modified after the caller read it.
	ErrVersionConflict = errors.New("version conflict")
)

// SplitStore defines the operations the reconciliation engine needs.
// Every member write is guarded by the version the writer read.
type SplitStore interface {
	// GetSplit retrieves a split and its members by ID.
	// Returns ErrNotFound if the split does not exist.
	GetSplit(ctx context.Context, splitID string) (*models.Split, error)

	// CompareAndUpdateMembers replaces the member list of a split only if its
	// version still equals expectedVersion, and returns the new version.
	// Returns ErrVersionConflict if the version moved, ErrNotFound if the
	// split does not exist.
	CompareAndUpdateMembers(ctx context.Context, splitID string, expectedVersion int64, members []models.Member) (int64, error)
}

// Store is the full storage backend used by the service.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL)
// without changing the service layer.
type Store interface {
	SplitStore

	// CreateSplit persists a new split. The split.ID, Version and CreatedAt
	// fields are populated by the store when unset.
	CreateSplit(ctx context.Context, split *models.Split) error

	// RecordOrder persists a payment order keyed by its order reference.
	RecordOrder(ctx context.Context, order *models.PaymentOrder) error

	// GetOrder retrieves a payment order by reference.
	// Returns ErrNotFound if there is no such order.
	GetOrder(ctx context.Context, orderRef string) (*models.PaymentOrder, error)

	// Close releases any resources held by the store.
	Close() error
}
