// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/splitwiser-pay/internal/models"
	"github.com/mmynk/splitwiser-pay/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time; a single connection queues writers
	// in the pool instead of failing them with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSplit persists a new split to the database.
func (s *SQLiteStore) CreateSplit(ctx context.Context, split *models.Split) error {
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

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO splits (id, title, currency, total, members, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		split.ID, split.Title, split.Currency, split.Total.String(), members,
		split.Version, split.CreatedAt, split.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert split: %w", err)
	}

	return nil
}

// GetSplit retrieves a split by ID, including its members.
func (s *SQLiteStore) GetSplit(ctx context.Context, splitID string) (*models.Split, error) {
	split := &models.Split{}
	var total, members string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, currency, total, members, version, created_at, updated_at
		 FROM splits WHERE id = ?`,
		splitID,
	).Scan(&split.ID, &split.Title, &split.Currency, &total, &members,
		&split.Version, &split.CreatedAt, &split.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("split %s: %w", splitID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get split: %w", err)
	}

	if split.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("failed to parse split total: %w", err)
	}
	if err := json.Unmarshal([]byte(members), &split.Members); err != nil {
		return nil, fmt.Errorf("failed to decode members: %w", err)
	}

	return split, nil
}

// CompareAndUpdateMembers writes the member list if the split is still at expectedVersion.
func (s *SQLiteStore) CompareAndUpdateMembers(ctx context.Context, splitID string, expectedVersion int64, members []models.Member) (int64, error) {
	encoded, err := encodeMembers(members)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE splits SET members = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		encoded, time.Now().Unix(), splitID, expectedVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update members: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 1 {
		return expectedVersion + 1, nil
	}

	// Nothing matched: either the split is gone or someone else wrote first.
	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM splits WHERE id = ?", splitID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("split %s: %w", splitID, storage.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to check split existence: %w", err)
	}
	return 0, fmt.Errorf("split %s at version %d: %w", splitID, expectedVersion, storage.ErrVersionConflict)
}

func encodeMembers(members []models.Member) (string, error) {
	if members == nil {
		members = []models.Member{}
	}
	b, err := json.Marshal(members)
	if err != nil {
		return "", fmt.Errorf("failed to encode members: %w", err)
	}
	return string(b), nil
}
