package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"gorm.io/gorm"
)

func createImportBatchesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_import_batches",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ImportBatchModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_import_batches_search_key ON import_batches (org_internal_name, batch_source, search_key) WHERE search_key IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_import_batches_status ON import_batches (batch_status)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ImportBatchModel{})
		},
	}
}
