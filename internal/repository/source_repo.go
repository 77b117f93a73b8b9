package repository

import (
	"context"

	"github.com/kursadbilgin/import-engine/internal/domain"
	"gorm.io/gorm"
)

type FaxLineRepository interface {
	GetByID(ctx context.Context, id string) (*domain.FaxLine, error)
}

type FtpSiteRepository interface {
	GetByID(ctx context.Context, id string) (*domain.FtpSite, error)
}

type ArtifactRepository interface {
	Create(ctx context.Context, a *domain.InboundArtifact) error
	AnnotateBatch(ctx context.Context, artifactGUID, importBatchGUID string) error
	AnnotateFailure(ctx context.Context, artifactGUID, reason string) error
	GetByGUID(ctx context.Context, guid string) (*domain.InboundArtifact, error)
}

type GormFaxLineRepo struct {
	db *gorm.DB
}

func NewGormFaxLineRepo(db *gorm.DB) *GormFaxLineRepo {
	return &GormFaxLineRepo{db: db}
}

func (r *GormFaxLineRepo) GetByID(ctx context.Context, id string) (*domain.FaxLine, error) {
	var model FaxLineModel
	if err := r.db.WithContext(ctx).First(&model, "fax_line_id = ?", id).Error; err != nil {
		return nil, translateFirstError(err)
	}
	return faxLineModelToDomain(&model), nil
}

type GormFtpSiteRepo struct {
	db *gorm.DB
}

func NewGormFtpSiteRepo(db *gorm.DB) *GormFtpSiteRepo {
	return &GormFtpSiteRepo{db: db}
}

func (r *GormFtpSiteRepo) GetByID(ctx context.Context, id string) (*domain.FtpSite, error) {
	var model FtpSiteModel
	if err := r.db.WithContext(ctx).First(&model, "ftp_site_id = ?", id).Error; err != nil {
		return nil, translateFirstError(err)
	}
	return ftpSiteModelToDomain(&model), nil
}

type GormArtifactRepo struct {
	db *gorm.DB
}

func NewGormArtifactRepo(db *gorm.DB) *GormArtifactRepo {
	return &GormArtifactRepo{db: db}
}

func (r *GormArtifactRepo) Create(ctx context.Context, a *domain.InboundArtifact) error {
	model := artifactModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateCreateError(err)
	}
	if a != nil {
		*a = *artifactModelToDomain(model)
	}
	return nil
}

func (r *GormArtifactRepo) AnnotateBatch(ctx context.Context, artifactGUID, importBatchGUID string) error {
	return r.annotate(ctx, artifactGUID, map[string]any{
		"import_batch_guid":      importBatchGUID,
		"batch_generation_error": nil,
	})
}

func (r *GormArtifactRepo) AnnotateFailure(ctx context.Context, artifactGUID, reason string) error {
	return r.annotate(ctx, artifactGUID, map[string]any{
		"batch_generation_error": reason,
	})
}

func (r *GormArtifactRepo) annotate(ctx context.Context, artifactGUID string, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&InboundArtifactModel{}).
		Where("artifact_guid = ?", artifactGUID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormArtifactRepo) GetByGUID(ctx context.Context, guid string) (*domain.InboundArtifact, error) {
	var model InboundArtifactModel
	if err := r.db.WithContext(ctx).First(&model, "artifact_guid = ?", guid).Error; err != nil {
		return nil, translateFirstError(err)
	}
	return artifactModelToDomain(&model), nil
}
