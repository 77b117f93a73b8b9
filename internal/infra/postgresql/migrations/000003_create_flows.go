package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"gorm.io/gorm"
)

func createFlowTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_flows",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(
				&repository.FlowModel{},
				&repository.SystemScriptModel{},
				&repository.BatchTemplateModel{},
			); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_flows_stream ON flows (stream_type, org_internal_name)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&repository.BatchTemplateModel{},
				&repository.SystemScriptModel{},
				&repository.FlowModel{},
			)
		},
	}
}
