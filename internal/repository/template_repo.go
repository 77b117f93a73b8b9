package repository

import (
	"context"

	"github.com/kursadbilgin/import-engine/internal/domain"
	"gorm.io/gorm"
)

type TemplateRepository interface {
	Create(ctx context.Context, t *domain.BatchTemplate) error
	GetByGUID(ctx context.Context, guid string) (*domain.BatchTemplate, error)
}

type GormTemplateRepo struct {
	db *gorm.DB
}

func NewGormTemplateRepo(db *gorm.DB) *GormTemplateRepo {
	return &GormTemplateRepo{db: db}
}

func (r *GormTemplateRepo) Create(ctx context.Context, t *domain.BatchTemplate) error {
	model := templateModelFromDomain(t)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateCreateError(err)
	}
	return nil
}

func (r *GormTemplateRepo) GetByGUID(ctx context.Context, guid string) (*domain.BatchTemplate, error) {
	var model BatchTemplateModel
	if err := r.db.WithContext(ctx).First(&model, "template_guid = ?", guid).Error; err != nil {
		return nil, translateFirstError(err)
	}
	return templateModelToDomain(&model), nil
}
