package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/observability"
	"github.com/kursadbilgin/import-engine/internal/queue"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"go.uber.org/zap"
)

type CreateRecordInput struct {
	ImportBatchGUID    string
	OrgInternalName    string
	FacilityID         *string
	RecordData         map[string]any
	RecordDataType     domain.RecordDataType
	SearchKey          *string
	SecondarySearchKey *string
}

type SaveDataEntryInput struct {
	ImportBatchGUID   string
	RecordIndex       int
	Page              string
	FieldValues       map[string]any
	ReporterName      string
	TotalFieldCount   int
	InvalidFieldCount int
	AppendingFields   []string
	InvalidFields     []string
	ErrorFields       []string
}

// settableRecordStatuses are the statuses an operator may assign directly.
// processing and processing_failed are only reached through dispatch.
var settableRecordStatuses = map[domain.RecordStatus]struct{}{
	domain.RecordStatusPendingProcessing:  {},
	domain.RecordStatusPendingReview:      {},
	domain.RecordStatusProcessingComplete: {},
	domain.RecordStatusDiscarded:          {},
	domain.RecordStatusIgnored:            {},
}

// CreateRecord appends a record to a batch under the next free index.
func (s *ImportBatchService) CreateRecord(ctx context.Context, in CreateRecordInput) (*domain.ImportBatchRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(in.ImportBatchGUID) == "" {
		return nil, fmt.Errorf("%w: importBatchGuid is required", domain.ErrValidation)
	}

	batch, err := s.batches.GetByGUID(ctx, in.ImportBatchGUID)
	if err != nil {
		return nil, err
	}
	if batch.OrgInternalName != strings.TrimSpace(in.OrgInternalName) {
		return nil, fmt.Errorf("%w: batch %s", domain.ErrCrossTenant, batch.ImportBatchGUID)
	}
	if batch.BatchStatus == domain.BatchStatusDiscarded || batch.BatchStatus == domain.BatchStatusComplete {
		return nil, fmt.Errorf("%w: batch %s is %s", domain.ErrConflict, batch.ImportBatchGUID, batch.BatchStatus)
	}

	record, err := s.createRecord(ctx, batch, in)
	if err != nil {
		return nil, err
	}

	if _, err := s.aggregator.RecalculateBatchStatus(ctx, batch.ImportBatchGUID); err != nil {
		observability.WithContextLogger(s.logger, ctx).Error("failed to recalculate batch status",
			append(observability.RecordFields(record.ImportBatchGUID, record.RecordIndex), zap.Error(err))...,
		)
	}
	s.trigger(ctx, record, queue.TriggerCreated)

	return record, nil
}

// createRecord validates, reserves an index and persists payload then metadata.
func (s *ImportBatchService) createRecord(ctx context.Context, batch *domain.ImportBatch, in CreateRecordInput) (*domain.ImportBatchRecord, error) {
	now := s.now().UTC()
	recordData := in.RecordData
	if recordData == nil {
		recordData = map[string]any{}
	}

	record := &domain.ImportBatchRecord{
		ImportBatchGUID:       batch.ImportBatchGUID,
		ImportBatchRecordGUID: uuid.NewString(),
		OrgInternalName:       batch.OrgInternalName,
		FacilityID:            in.FacilityID,
		RecordDataType:        in.RecordDataType,
		RecordData:            recordData,
		RecordStatus:          batch.InitialRecordStatus(),
		SearchKey:             in.SearchKey,
		SecondarySearchKey:    in.SecondarySearchKey,
		CreatedAt:             now,
		LastUpdatedAt:         now,
	}
	if record.FacilityID == nil {
		record.FacilityID = batch.FacilityID
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	index, err := s.batches.AllocateRecordIndex(ctx, batch.ImportBatchGUID)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate record index: %w", err)
	}
	record.RecordIndex = index
	record.RecordOrder = index

	if err := storeRecordData(ctx, s.blobs, record); err != nil {
		return nil, err
	}
	if err := s.records.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}

	observability.WithContextLogger(s.logger, ctx).Debug("record created",
		append(observability.RecordFields(record.ImportBatchGUID, record.RecordIndex),
			zap.String("recordStatus", record.RecordStatus.String()),
			zap.String("recordDataType", record.RecordDataType.String()),
		)...,
	)
	return record, nil
}

// GetRecord returns a record with its stored payloads loaded.
func (s *ImportBatchService) GetRecord(ctx context.Context, importBatchGUID string, recordIndex int) (*domain.ImportBatchRecord, error) {
	record, err := s.records.Get(ctx, importBatchGUID, recordIndex)
	if err != nil {
		return nil, err
	}

	record.RecordData, err = loadRecordData(ctx, s.blobs, record)
	if err != nil {
		return nil, err
	}
	entry, err := loadDataEntry(ctx, s.blobs, record)
	if err != nil {
		return nil, err
	}
	if record.DataEntryDataIndicated {
		record.DataEntryData = entry.FieldValues
	}
	return record, nil
}

// SaveDataEntry merges a data-entry submission into the record's stored
// data-entry payload and queues the record for processing.
func (s *ImportBatchService) SaveDataEntry(ctx context.Context, in SaveDataEntryInput) (*domain.ImportBatchRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	switch {
	case strings.TrimSpace(in.ImportBatchGUID) == "":
		return nil, fmt.Errorf("%w: importBatchGuid is required", domain.ErrValidation)
	case in.RecordIndex < 0:
		return nil, fmt.Errorf("%w: recordIndex must be >= 0", domain.ErrValidation)
	case strings.TrimSpace(in.Page) == "":
		return nil, fmt.Errorf("%w: page is required", domain.ErrValidation)
	case strings.TrimSpace(in.ReporterName) == "":
		return nil, fmt.Errorf("%w: reporterName is required", domain.ErrValidation)
	case in.TotalFieldCount < 0 || in.InvalidFieldCount < 0:
		return nil, fmt.Errorf("%w: field counts must be >= 0", domain.ErrValidation)
	}

	record, err := s.records.Get(ctx, in.ImportBatchGUID, in.RecordIndex)
	if err != nil {
		return nil, err
	}
	if record.RecordStatus == domain.RecordStatusDiscarded || record.RecordStatus == domain.RecordStatusIgnored {
		return nil, fmt.Errorf("%w: record is %s", domain.ErrConflict, record.RecordStatus)
	}

	existing, err := loadDataEntry(ctx, s.blobs, record)
	if err != nil {
		return nil, err
	}

	merged := domain.MergeDataEntry(existing.FieldValues, in.FieldValues, in.AppendingFields, in.ReporterName)
	err = storeDataEntry(ctx, s.blobs, record, dataEntryDocument{
		FieldValues:       merged,
		TotalFieldCount:   in.TotalFieldCount,
		InvalidFieldCount: in.InvalidFieldCount,
	})
	if err != nil {
		return nil, err
	}

	pageResult := domain.PageUpdateResult{
		LastUpdated:  s.now().UTC(),
		ReporterName: in.ReporterName,
	}
	err = s.records.UpdateDataEntry(ctx, repository.DataEntryUpdate{
		ImportBatchGUID: in.ImportBatchGUID,
		RecordIndex:     in.RecordIndex,
		Page:            in.Page,
		PageResult:      pageResult,
		InvalidFields:   in.InvalidFields,
		ErrorFields:     in.ErrorFields,
	})
	if err != nil {
		return nil, err
	}

	record.DataEntryData = merged
	record.DataEntryDataIndicated = true
	record.RecordStatus = domain.RecordStatusPendingProcessing
	if record.PageUpdateResults == nil {
		record.PageUpdateResults = map[string]domain.PageUpdateResult{}
	}
	record.PageUpdateResults[in.Page] = pageResult
	if in.InvalidFields != nil {
		record.DataEntryInvalidFields = in.InvalidFields
	}
	if in.ErrorFields != nil {
		record.DataEntryErrorFields = in.ErrorFields
	}

	if _, err := s.aggregator.RecalculateBatchStatus(ctx, record.ImportBatchGUID); err != nil {
		observability.WithContextLogger(s.logger, ctx).Error("failed to recalculate batch status",
			append(observability.RecordFields(record.ImportBatchGUID, record.RecordIndex), zap.Error(err))...,
		)
	}
	s.trigger(ctx, record, queue.TriggerDataEntry)

	return record, nil
}

// SetRecordStatus applies an operator decision to a record and recomputes the
// batch aggregate. Moving a record back to pending_processing queues it again.
func (s *ImportBatchService) SetRecordStatus(
	ctx context.Context,
	importBatchGUID string,
	recordIndex int,
	status domain.RecordStatus,
	reason *string,
) (*domain.ImportBatch, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := settableRecordStatuses[status]; !ok {
		return nil, fmt.Errorf("%w: record status %q cannot be set directly", domain.ErrValidation, status)
	}
	if status == domain.RecordStatusDiscarded && (reason == nil || strings.TrimSpace(*reason) == "") {
		return nil, fmt.Errorf("%w: discard reason is required", domain.ErrValidation)
	}

	record, err := s.records.Get(ctx, importBatchGUID, recordIndex)
	if err != nil {
		return nil, err
	}
	if record.RecordStatus == domain.RecordStatusProcessing {
		return nil, fmt.Errorf("%w: record is being processed", domain.ErrConflict)
	}

	if err := s.records.SetStatus(ctx, importBatchGUID, recordIndex, status, reason, s.now().UTC()); err != nil {
		return nil, err
	}
	record.RecordStatus = status

	batch, err := s.aggregator.RecalculateBatchStatus(ctx, importBatchGUID)
	if err != nil {
		return nil, err
	}
	s.trigger(ctx, record, queue.TriggerManual)

	return batch, nil
}
