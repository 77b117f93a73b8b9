package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"gorm.io/gorm"
)

func createAuditEventsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_audit_events",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.AuditEventModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_events_record ON audit_events (import_batch_guid_record_index)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.AuditEventModel{})
		},
	}
}
