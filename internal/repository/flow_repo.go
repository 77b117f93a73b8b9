package repository

import (
	"context"

	"github.com/kursadbilgin/import-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FlowRepository interface {
	Save(ctx context.Context, f *domain.Flow) error
	GetByGUID(ctx context.Context, guid string) (*domain.Flow, error)
	FindForStream(ctx context.Context, org, streamType string) ([]domain.Flow, error)
}

type SystemScriptRepository interface {
	Save(ctx context.Context, s *domain.SystemScript) error
	GetByName(ctx context.Context, name string) (*domain.SystemScript, error)
}

type GormFlowRepo struct {
	db *gorm.DB
}

func NewGormFlowRepo(db *gorm.DB) *GormFlowRepo {
	return &GormFlowRepo{db: db}
}

// Save inserts the flow or replaces it when the GUID already exists.
func (r *GormFlowRepo) Save(ctx context.Context, f *domain.Flow) error {
	model := flowModelFromDomain(f)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "flow_guid"}},
			DoUpdates: clause.AssignmentColumns([]string{"flow_name", "flow_type", "flow_content", "stream_type", "version", "config_cipher", "updated_at"}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}
	if f != nil {
		*f = *flowModelToDomain(model)
	}
	return nil
}

func (r *GormFlowRepo) GetByGUID(ctx context.Context, guid string) (*domain.Flow, error) {
	var model FlowModel
	if err := r.db.WithContext(ctx).First(&model, "flow_guid = ?", guid).Error; err != nil {
		return nil, translateFirstError(err)
	}
	return flowModelToDomain(&model), nil
}

// FindForStream lists flows for a stream type visible to org, org-owned first.
func (r *GormFlowRepo) FindForStream(ctx context.Context, org, streamType string) ([]domain.Flow, error) {
	var models []FlowModel
	err := r.db.WithContext(ctx).
		Where("stream_type = ?", streamType).
		Where(r.db.Where("org_internal_name = ?", org).Or("system_global = ?", true)).
		Order("system_global ASC, version DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	flows := make([]domain.Flow, 0, len(models))
	for i := range models {
		flows = append(flows, *flowModelToDomain(&models[i]))
	}
	return flows, nil
}

type GormSystemScriptRepo struct {
	db *gorm.DB
}

func NewGormSystemScriptRepo(db *gorm.DB) *GormSystemScriptRepo {
	return &GormSystemScriptRepo{db: db}
}

func (r *GormSystemScriptRepo) Save(ctx context.Context, s *domain.SystemScript) error {
	model := &SystemScriptModel{Name: s.Name, Content: s.Content, Version: s.Version}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "version", "updated_at"}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}
	s.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *GormSystemScriptRepo) GetByName(ctx context.Context, name string) (*domain.SystemScript, error) {
	var model SystemScriptModel
	if err := r.db.WithContext(ctx).First(&model, "name = ?", name).Error; err != nil {
		return nil, translateFirstError(err)
	}
	return &domain.SystemScript{
		Name:      model.Name,
		Content:   model.Content,
		Version:   model.Version,
		UpdatedAt: model.UpdatedAt,
	}, nil
}
