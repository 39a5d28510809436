package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type gormRepos struct{ db *gorm.DB }

func (r gormRepos) Products() ProductRepository       { return &productRepo{db: r.db} }
func (r gormRepos) Warehouses() WarehouseRepository   { return &warehouseRepo{db: r.db} }
func (r gormRepos) Allocations() AllocationRepository { return &allocationRepo{db: r.db} }
func (r gormRepos) Transfers() TransferRepository     { return &transferRepo{db: r.db} }
func (r gormRepos) Audit() AuditRepository            { return &auditRepo{db: r.db} }

// GormStore is the Postgres-backed Store. Repositories handed to Atomic are
// bound to the open transaction.
type GormStore struct {
	gormRepos
}

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{gormRepos{db: db}} }

// Atomic also reports a deadlock or serialization failure raised at COMMIT as
// ErrConflict.
func (s *GormStore) Atomic(ctx context.Context, fn func(tx Repositories) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(gormRepos{db: tx})
	})
	if err != nil && !errors.Is(err, ErrConflict) && isConflict(err) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// translate maps gorm errors onto the repository sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	case isConflict(err):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return err
	}
}

// Postgres SQLSTATEs for an aborted unit that is safe to retry.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
}

var _ Store = (*GormStore)(nil)
