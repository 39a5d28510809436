package infra

import (
	"fmt"
	"time"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the Postgres connection, creates or updates the engine
// tables and then applies the CHECK constraints AutoMigrate cannot express.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations is also used by the integration tests against a throwaway
// container.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Product{},
		&model.Warehouse{},
		&model.Allocation{},
		&model.Transfer{},
		&model.AuditEvent{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if err := applySchemaPatches(db); err != nil {
		return fmt.Errorf("schema patches: %w", err)
	}
	return nil
}

// applySchemaPatches adds the ledger and transfer constraints. Each block is
// guarded by an existence check so re-running on a patched schema is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ name, table, check string }{
		{"chk_allocations_allocated_nonneg", "stock_allocations", "allocated_quantity >= 0"},
		{"chk_allocations_safety_nonneg", "stock_allocations", "safety_stock >= 0"},
		{"chk_allocations_safety_le_allocated", "stock_allocations", "safety_stock <= allocated_quantity"},
		{"chk_transfers_distinct_warehouses", "stock_transfers", "from_warehouse_id <> to_warehouse_id"},
		{"chk_transfers_quantity_positive", "stock_transfers", "quantity > 0"},
		{"chk_warehouses_capacity_nonneg", "warehouses", "capacity >= 0"},
	}
	for _, p := range patches {
		sql := fmt.Sprintf(`
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%s') THEN
    ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s);
  END IF;
END $$`, p.name, p.table, p.name, p.check)
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.name, err)
		}
	}

	// partial index for the audit relay poll
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_events_unpublished
		ON audit_events (created_at) WHERE published_at IS NULL`).Error; err != nil {
		return fmt.Errorf("patch %q: %w", "idx_audit_events_unpublished", err)
	}
	return nil
}
