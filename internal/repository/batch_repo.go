package repository

import (
	"context"
	"time"

	"github.com/kursadbilgin/import-engine/internal/domain"
	"gorm.io/gorm"
)

// BatchAggregate is the derived state written back after a status rescan.
type BatchAggregate struct {
	StatusCounts  domain.StatusCounts
	BatchStatus   domain.BatchStatus
	CompletedAt   *time.Time
	ClearAssignee bool
}

type BatchRepository interface {
	Create(ctx context.Context, b *domain.ImportBatch) error
	GetByGUID(ctx context.Context, guid string) (*domain.ImportBatch, error)
	FindOpenBySearchKey(ctx context.Context, org string, source domain.BatchSource, searchKey string) (*domain.ImportBatch, error)
	AllocateRecordIndex(ctx context.Context, guid string) (int, error)
	UpdateAggregate(ctx context.Context, guid string, agg BatchAggregate) error
	Discard(ctx context.Context, guid string) error
}

type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

func (r *GormBatchRepo) Create(ctx context.Context, b *domain.ImportBatch) error {
	model := batchModelFromDomain(b)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateCreateError(err)
	}
	if b != nil {
		*b = *batchModelToDomain(model)
	}
	return nil
}

func (r *GormBatchRepo) GetByGUID(ctx context.Context, guid string) (*domain.ImportBatch, error) {
	var model ImportBatchModel
	err := r.db.WithContext(ctx).First(&model, "import_batch_guid = ?", guid).Error
	if err != nil {
		return nil, translateFirstError(err)
	}
	return batchModelToDomain(&model), nil
}

// FindOpenBySearchKey returns the most recent non-terminal batch for the key.
func (r *GormBatchRepo) FindOpenBySearchKey(ctx context.Context, org string, source domain.BatchSource, searchKey string) (*domain.ImportBatch, error) {
	var model ImportBatchModel
	err := r.db.WithContext(ctx).
		Where("org_internal_name = ? AND batch_source = ? AND search_key = ?", org, source, searchKey).
		Where("batch_status IN ?", []domain.BatchStatus{domain.BatchStatusProcessing, domain.BatchStatusPendingReview}).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		return nil, translateFirstError(err)
	}
	return batchModelToDomain(&model), nil
}

// AllocateRecordIndex atomically reserves the next record index for a batch.
// Concurrent callers always receive distinct indices.
func (r *GormBatchRepo) AllocateRecordIndex(ctx context.Context, guid string) (int, error) {
	var index int
	result := r.db.WithContext(ctx).Raw(
		`UPDATE import_batches
		    SET next_record_index = next_record_index + 1, last_updated_at = ?
		  WHERE import_batch_guid = ? AND batch_status <> ?
		RETURNING next_record_index - 1`,
		time.Now().UTC(), guid, domain.BatchStatusDiscarded,
	).Scan(&index)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, domain.ErrNotFound
	}
	return index, nil
}

// UpdateAggregate writes derived counts and status. A discarded or complete
// batch keeps its status even if it changed after the caller read it, and
// completedAt is only stamped the first time.
func (r *GormBatchRepo) UpdateAggregate(ctx context.Context, guid string, agg BatchAggregate) error {
	updates := map[string]any{
		"status_counts": encodeJSON(agg.StatusCounts.AsMap()),
		"batch_status": gorm.Expr("CASE WHEN batch_status IN (?, ?) THEN batch_status ELSE ? END",
			domain.BatchStatusDiscarded, domain.BatchStatusComplete, agg.BatchStatus),
		"last_updated_at": time.Now().UTC(),
	}
	if agg.CompletedAt != nil {
		updates["completed_at"] = gorm.Expr("COALESCE(completed_at, ?)", *agg.CompletedAt)
	}
	if agg.ClearAssignee {
		updates["assigned_to"] = nil
	}

	result := r.db.WithContext(ctx).
		Model(&ImportBatchModel{}).
		Where("import_batch_guid = ?", guid).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Discard moves a batch to the terminal discarded status. Discarding an
// already discarded batch is a conflict.
func (r *GormBatchRepo) Discard(ctx context.Context, guid string) error {
	result := r.db.WithContext(ctx).
		Model(&ImportBatchModel{}).
		Where("import_batch_guid = ? AND batch_status <> ?", guid, domain.BatchStatusDiscarded).
		Updates(map[string]any{
			"batch_status":    domain.BatchStatusDiscarded,
			"last_updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByGUID(ctx, guid); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	return nil
}
