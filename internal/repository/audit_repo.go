package repository

import (
	"context"

	"github.com/kursadbilgin/import-engine/internal/domain"
	"gorm.io/gorm"
)

type AuditEventRepository interface {
	Create(ctx context.Context, e *domain.AuditEvent) error
	ListByBatch(ctx context.Context, batchGUID string) ([]domain.AuditEvent, error)
}

type GormAuditEventRepo struct {
	db *gorm.DB
}

func NewGormAuditEventRepo(db *gorm.DB) *GormAuditEventRepo {
	return &GormAuditEventRepo{db: db}
}

func (r *GormAuditEventRepo) Create(ctx context.Context, e *domain.AuditEvent) error {
	model := auditEventModelFromDomain(e)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if e != nil {
		*e = *auditEventModelToDomain(model)
	}
	return nil
}

func (r *GormAuditEventRepo) ListByBatch(ctx context.Context, batchGUID string) ([]domain.AuditEvent, error) {
	var models []AuditEventModel
	err := r.db.WithContext(ctx).
		Where("import_batch_guid = ?", batchGUID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	events := make([]domain.AuditEvent, 0, len(models))
	for i := range models {
		events = append(events, *auditEventModelToDomain(&models[i]))
	}
	return events, nil
}
