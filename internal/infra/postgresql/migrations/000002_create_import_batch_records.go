package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"gorm.io/gorm"
)

func createImportBatchRecordsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_import_batch_records",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ImportBatchRecordModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_records_sweep_pending ON import_batch_records (last_updated_at) WHERE record_status = 'pending_processing'`,
				`CREATE INDEX IF NOT EXISTS idx_records_sweep_processing ON import_batch_records (processing_started_at) WHERE record_status = 'processing'`,
				`CREATE INDEX IF NOT EXISTS idx_records_search_key ON import_batch_records (search_key) WHERE search_key IS NOT NULL`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ImportBatchRecordModel{})
		},
	}
}
