package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kursadbilgin/import-engine/internal/domain"
	"gorm.io/gorm"
)

// DataEntryUpdate is the metadata change applied after a data-entry submission.
type DataEntryUpdate struct {
	ImportBatchGUID string
	RecordIndex     int
	Page            string
	PageResult      domain.PageUpdateResult
	InvalidFields   []string
	ErrorFields     []string
}

// SweepCandidate identifies a record the sweeper should hand back to the worker.
type SweepCandidate struct {
	ImportBatchGUID string `gorm:"column:import_batch_guid"`
	RecordIndex     int    `gorm:"column:record_index"`
	OrgInternalName string `gorm:"column:org_internal_name"`
}

type RecordRepository interface {
	Create(ctx context.Context, r *domain.ImportBatchRecord) error
	Get(ctx context.Context, batchGUID string, index int) (*domain.ImportBatchRecord, error)
	ListStatuses(ctx context.Context, batchGUID string) ([]domain.RecordStatusResult, error)
	Claim(ctx context.Context, batchGUID string, index int, now, staleBefore time.Time) (*domain.ImportBatchRecord, error)
	MarkComplete(ctx context.Context, batchGUID string, index int, encounterIDs []string, now time.Time) error
	MarkFailed(ctx context.Context, batchGUID string, index int, reason string) error
	MarkPendingReview(ctx context.Context, batchGUID string, index int, encounterIDs []string) error
	UpdateDataEntry(ctx context.Context, update DataEntryUpdate) error
	SetStatus(ctx context.Context, batchGUID string, index int, status domain.RecordStatus, reason *string, now time.Time) error
	DiscardAll(ctx context.Context, batchGUID string, reason string, now time.Time) (int64, error)
	ListSweepable(ctx context.Context, pendingBefore, staleBefore time.Time, limit int) ([]SweepCandidate, error)
}

type GormRecordRepo struct {
	db *gorm.DB
}

func NewGormRecordRepo(db *gorm.DB) *GormRecordRepo {
	return &GormRecordRepo{db: db}
}

func (r *GormRecordRepo) Create(ctx context.Context, rec *domain.ImportBatchRecord) error {
	model := recordModelFromDomain(rec)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateCreateError(err)
	}
	if rec != nil {
		payload, entry := rec.RecordData, rec.DataEntryData
		*rec = *recordModelToDomain(model)
		rec.RecordData, rec.DataEntryData = payload, entry
	}
	return nil
}

func (r *GormRecordRepo) Get(ctx context.Context, batchGUID string, index int) (*domain.ImportBatchRecord, error) {
	var model ImportBatchRecordModel
	err := r.db.WithContext(ctx).
		First(&model, "import_batch_guid = ? AND record_index = ?", batchGUID, index).Error
	if err != nil {
		return nil, translateFirstError(err)
	}
	return recordModelToDomain(&model), nil
}

// ListStatuses reads the status projection of every record in a batch,
// ordered by index. Only the projection columns are selected.
func (r *GormRecordRepo) ListStatuses(ctx context.Context, batchGUID string) ([]domain.RecordStatusResult, error) {
	var rows []struct {
		ImportBatchGUID       string              `gorm:"column:import_batch_guid"`
		ImportBatchRecordGUID string              `gorm:"column:import_batch_record_guid"`
		RecordIndex           int                 `gorm:"column:record_index"`
		RecordStatus          domain.RecordStatus `gorm:"column:record_status"`
	}
	err := r.db.WithContext(ctx).
		Model(&ImportBatchRecordModel{}).
		Select("import_batch_guid", "import_batch_record_guid", "record_index", "record_status").
		Where("import_batch_guid = ?", batchGUID).
		Order("record_index ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	results := make([]domain.RecordStatusResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, domain.RecordStatusResult{
			ImportBatchGUID:       row.ImportBatchGUID,
			ImportBatchRecordGUID: row.ImportBatchRecordGUID,
			RecordIndex:           row.RecordIndex,
			RecordStatus:          row.RecordStatus,
		})
	}
	return results, nil
}

// Claim marks a processable record as processing in a single conditional
// update. It returns ErrNotProcessable when the record exists but another
// dispatch holds a fresh claim or the record is in a non-processable state.
// The WHERE clause must stay equivalent to domain.ImportBatchRecord.IsProcessable
// with staleAfter = now - staleBefore.
func (r *GormRecordRepo) Claim(ctx context.Context, batchGUID string, index int, now, staleBefore time.Time) (*domain.ImportBatchRecord, error) {
	result := r.db.WithContext(ctx).
		Model(&ImportBatchRecordModel{}).
		Where("import_batch_guid = ? AND record_index = ?", batchGUID, index).
		Where(
			r.db.Where("record_status IN ?", domain.ClaimableStatuses()).Or("record_status = ? AND (processing_started_at IS NULL OR processing_started_at < ?)",
				domain.RecordStatusProcessing, staleBefore),
		).
		Updates(map[string]any{
			"record_status":         domain.RecordStatusProcessing,
			"processing_started_at": now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if err := r.ensureExists(ctx, batchGUID, index); err != nil {
			return nil, err
		}
		return nil, domain.ErrNotProcessable
	}
	return r.Get(ctx, batchGUID, index)
}

func (r *GormRecordRepo) MarkComplete(ctx context.Context, batchGUID string, index int, encounterIDs []string, now time.Time) error {
	return r.finishProcessing(ctx, batchGUID, index, map[string]any{
		"record_status":             domain.RecordStatusProcessingComplete,
		"linked_encounter_ids":      encodeJSON(encounterIDs),
		"processing_failure_reason": nil,
		"completed_at":              now,
	})
}

func (r *GormRecordRepo) MarkFailed(ctx context.Context, batchGUID string, index int, reason string) error {
	return r.finishProcessing(ctx, batchGUID, index, map[string]any{
		"record_status":             domain.RecordStatusProcessingFailed,
		"processing_failure_reason": reason,
	})
}

func (r *GormRecordRepo) MarkPendingReview(ctx context.Context, batchGUID string, index int, encounterIDs []string) error {
	return r.finishProcessing(ctx, batchGUID, index, map[string]any{
		"record_status":             domain.RecordStatusPendingReview,
		"linked_encounter_ids":      encodeJSON(encounterIDs),
		"processing_failure_reason": nil,
	})
}

// finishProcessing writes a processing outcome. The record must still be in
// processing, otherwise the claim was lost and ErrConflict is returned.
func (r *GormRecordRepo) finishProcessing(ctx context.Context, batchGUID string, index int, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&ImportBatchRecordModel{}).
		Where("import_batch_guid = ? AND record_index = ? AND record_status = ?", batchGUID, index, domain.RecordStatusProcessing).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if err := r.ensureExists(ctx, batchGUID, index); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	return nil
}

// UpdateDataEntry records a data-entry submission on an existing record and
// moves it to pending_processing. Discarded and ignored records are rejected.
func (r *GormRecordRepo) UpdateDataEntry(ctx context.Context, update DataEntryUpdate) error {
	pageResult, err := json.Marshal(update.PageResult)
	if err != nil {
		return fmt.Errorf("failed to encode page result: %w", err)
	}

	updates := map[string]any{
		"data_entry_data_indicated": true,
		"record_status":             domain.RecordStatusPendingProcessing,
		"page_update_results": gorm.Expr(
			"jsonb_set(COALESCE(NULLIF(page_update_results, 'null'::jsonb), '{}'::jsonb), ARRAY[?]::text[], ?::jsonb, true)",
			update.Page, string(pageResult),
		),
	}
	if update.InvalidFields != nil {
		updates["data_entry_invalid_fields"] = encodeJSON(update.InvalidFields)
	}
	if update.ErrorFields != nil {
		updates["data_entry_error_fields"] = encodeJSON(update.ErrorFields)
	}

	result := r.db.WithContext(ctx).
		Model(&ImportBatchRecordModel{}).
		Where("import_batch_guid = ? AND record_index = ?", update.ImportBatchGUID, update.RecordIndex).
		Where("record_status NOT IN ?", []domain.RecordStatus{domain.RecordStatusDiscarded, domain.RecordStatusIgnored}).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if err := r.ensureExists(ctx, update.ImportBatchGUID, update.RecordIndex); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	return nil
}

func (r *GormRecordRepo) SetStatus(ctx context.Context, batchGUID string, index int, status domain.RecordStatus, reason *string, now time.Time) error {
	updates := map[string]any{"record_status": status}
	switch status {
	case domain.RecordStatusDiscarded:
		updates["discard_reason"] = reason
		updates["completed_at"] = now
	case domain.RecordStatusIgnored, domain.RecordStatusProcessingComplete:
		updates["completed_at"] = now
	}
	if reason != nil && status != domain.RecordStatusDiscarded {
		updates["notes"] = *reason
	}

	result := r.db.WithContext(ctx).
		Model(&ImportBatchRecordModel{}).
		Where("import_batch_guid = ? AND record_index = ?", batchGUID, index).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DiscardAll discards every non-terminal record of a batch.
func (r *GormRecordRepo) DiscardAll(ctx context.Context, batchGUID string, reason string, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&ImportBatchRecordModel{}).
		Where("import_batch_guid = ?", batchGUID).
		Where("record_status NOT IN ?", []domain.RecordStatus{
			domain.RecordStatusProcessingComplete,
			domain.RecordStatusDiscarded,
			domain.RecordStatusIgnored,
		}).
		Updates(map[string]any{
			"record_status":  domain.RecordStatusDiscarded,
			"discard_reason": reason,
			"completed_at":   now,
		})
	return result.RowsAffected, result.Error
}

// ListSweepable returns pending_processing records untouched since
// pendingBefore and processing records claimed before staleBefore. Failed
// records are never returned.
func (r *GormRecordRepo) ListSweepable(ctx context.Context, pendingBefore, staleBefore time.Time, limit int) ([]SweepCandidate, error) {
	if limit <= 0 {
		limit = 100
	}

	var candidates []SweepCandidate
	err := r.db.WithContext(ctx).
		Model(&ImportBatchRecordModel{}).
		Select("import_batch_guid", "record_index", "org_internal_name").
		Where(
			r.db.Where("record_status = ? AND last_updated_at < ?", domain.RecordStatusPendingProcessing, pendingBefore).
				Or("record_status = ? AND processing_started_at < ?", domain.RecordStatusProcessing, staleBefore),
		).
		Order("last_updated_at ASC").
		Limit(limit).
		Scan(&candidates).Error
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

func (r *GormRecordRepo) ensureExists(ctx context.Context, batchGUID string, index int) error {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ImportBatchRecordModel{}).
		Where("import_batch_guid = ? AND record_index = ?", batchGUID, index).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return nil
}

