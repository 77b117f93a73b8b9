package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"gorm.io/gorm"
)

func createSourceTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_sources",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&repository.FaxLineModel{},
				&repository.FtpSiteModel{},
				&repository.InboundArtifactModel{},
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&repository.InboundArtifactModel{},
				&repository.FtpSiteModel{},
				&repository.FaxLineModel{},
			)
		},
	}
}
