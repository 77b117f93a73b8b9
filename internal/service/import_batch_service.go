package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/infra/blob"
	"github.com/kursadbilgin/import-engine/internal/observability"
	"github.com/kursadbilgin/import-engine/internal/queue"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"go.uber.org/zap"
)

// ImportBatchService owns batch and record creation, data entry and the
// status changes that feed batch aggregation.
type ImportBatchService struct {
	batches    repository.BatchRepository
	records    repository.RecordRepository
	templates  repository.TemplateRepository
	flows      repository.FlowRepository
	blobs      blob.Store
	aggregator *BatchAggregator
	dispatcher RecordDispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// ExternalWebFormBatchInput describes an empty batch that web form submissions
// are appended to.
type ExternalWebFormBatchInput struct {
	BatchName       string
	OrgInternalName string
	FacilityID      *string
	BatchSourceIDs  map[string]string
	FlowGUID        string
	SearchKey       *string
	ReceivedAt      *time.Time
}

// CreateBatchInput describes a batch generated from a raw payload. Data type
// settings come from the template when TemplateGUID is set; FlowGUID
// overrides the template's flow.
type CreateBatchInput struct {
	OrgInternalName      string
	FacilityID           *string
	BatchName            string
	BatchSource          domain.BatchSource
	BatchSourceIDs       map[string]string
	TemplateGUID         *string
	FlowGUID             *string
	BatchDataType        domain.BatchDataType
	BatchDataTypeOptions map[string]any
	RequiresDataEntry    bool
	Data                 []byte
	ReceivedAt           time.Time
	SearchKey            *string
}

func NewImportBatchService(
	batches repository.BatchRepository,
	records repository.RecordRepository,
	templates repository.TemplateRepository,
	flows repository.FlowRepository,
	blobs blob.Store,
	aggregator *BatchAggregator,
	dispatcher RecordDispatcher,
	logger *zap.Logger,
) (*ImportBatchService, error) {
	switch {
	case batches == nil:
		return nil, fmt.Errorf("batch repository is required")
	case records == nil:
		return nil, fmt.Errorf("record repository is required")
	case templates == nil:
		return nil, fmt.Errorf("template repository is required")
	case flows == nil:
		return nil, fmt.Errorf("flow repository is required")
	case blobs == nil:
		return nil, fmt.Errorf("blob store is required")
	case aggregator == nil:
		return nil, fmt.Errorf("batch aggregator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ImportBatchService{
		batches:    batches,
		records:    records,
		templates:  templates,
		flows:      flows,
		blobs:      blobs,
		aggregator: aggregator,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// CreateExternalWebFormBatch persists a new empty batch for web form records.
func (s *ImportBatchService) CreateExternalWebFormBatch(ctx context.Context, in ExternalWebFormBatchInput) (*domain.ImportBatch, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(in.FlowGUID) == "" {
		return nil, fmt.Errorf("%w: flowGuid is required", domain.ErrValidation)
	}

	now := s.now().UTC()
	receivedAt := now
	if in.ReceivedAt != nil && !in.ReceivedAt.IsZero() {
		receivedAt = in.ReceivedAt.UTC()
	}
	flowGUID := in.FlowGUID

	batch := &domain.ImportBatch{
		ImportBatchGUID: uuid.NewString(),
		OrgInternalName: strings.TrimSpace(in.OrgInternalName),
		FacilityID:      in.FacilityID,
		BatchName:       strings.TrimSpace(in.BatchName),
		BatchSource:     domain.BatchSourceExternalWebForm,
		BatchSourceIDs:  in.BatchSourceIDs,
		BatchDataType:   domain.BatchDataTypeNone,
		FlowGUID:        &flowGUID,
		ProcessingType:  domain.ProcessingTypeFlow,
		BatchStatus:     domain.BatchStatusProcessing,
		StatusCounts:    domain.StatusCounts{},
		SearchKey:       in.SearchKey,
		ReceivedAt:      receivedAt,
		CreatedAt:       now,
		LastUpdatedAt:   now,
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkFlowAccess(ctx, batch.OrgInternalName, flowGUID); err != nil {
		return nil, err
	}

	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	observability.WithContextLogger(s.logger, ctx).Info("web form batch created",
		zap.String("importBatchGuid", batch.ImportBatchGUID),
		zap.String("orgInternalName", batch.OrgInternalName),
	)
	return batch, nil
}

// CreateBatch generates a batch and its records from a raw payload. Template
// and flow tenancy and payload shape are checked before anything is written.
func (s *ImportBatchService) CreateBatch(ctx context.Context, in CreateBatchInput) (*domain.ImportBatch, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	org := strings.TrimSpace(in.OrgInternalName)
	if org == "" {
		return nil, fmt.Errorf("%w: orgInternalName is required", domain.ErrValidation)
	}

	now := s.now().UTC()
	receivedAt := in.ReceivedAt.UTC()
	if in.ReceivedAt.IsZero() {
		receivedAt = now
	}

	batch := &domain.ImportBatch{
		ImportBatchGUID:      uuid.NewString(),
		OrgInternalName:      org,
		FacilityID:           in.FacilityID,
		BatchName:            strings.TrimSpace(in.BatchName),
		BatchSource:          in.BatchSource,
		BatchSourceIDs:       in.BatchSourceIDs,
		BatchDataType:        in.BatchDataType,
		BatchDataTypeOptions: in.BatchDataTypeOptions,
		RequiresDataEntry:    in.RequiresDataEntry,
		ProcessingType:       domain.ProcessingTypeFlow,
		BatchStatus:          domain.BatchStatusProcessing,
		StatusCounts:         domain.StatusCounts{},
		SearchKey:            in.SearchKey,
		ReceivedAt:           receivedAt,
		CreatedAt:            now,
		LastUpdatedAt:        now,
	}

	if in.TemplateGUID != nil && strings.TrimSpace(*in.TemplateGUID) != "" {
		template, err := s.templates.GetByGUID(ctx, *in.TemplateGUID)
		if err != nil {
			return nil, err
		}
		if !template.AccessibleBy(org) {
			return nil, fmt.Errorf("%w: template %s", domain.ErrCrossTenant, template.TemplateGUID)
		}
		batch.BatchDataType = template.BatchDataType
		batch.BatchDataTypeOptions = template.BatchDataTypeOptions
		batch.RequiresDataEntry = template.RequiresDataEntry
		batch.FlowGUID = template.FlowGUID
		batch.DataEntryFormDefinitionName = template.DataEntryFormDefinitionName
	}
	if in.FlowGUID != nil && strings.TrimSpace(*in.FlowGUID) != "" {
		batch.FlowGUID = in.FlowGUID
	}
	if batch.BatchDataType == "" {
		batch.BatchDataType = domain.BatchDataTypeNone
	}

	if err := batch.Validate(); err != nil {
		return nil, err
	}
	if batch.HasFlow() {
		if err := s.checkFlowAccess(ctx, org, *batch.FlowGUID); err != nil {
			return nil, err
		}
	}

	var rows []map[string]any
	switch batch.BatchDataType {
	case domain.BatchDataTypePdf:
		if !domain.IsPDF(in.Data) {
			return nil, fmt.Errorf("%w: batch data is not a PDF document", domain.ErrValidation)
		}
	case domain.BatchDataTypeDsv:
		parsed, err := parseDsvRows(in.Data, batch.BatchDataTypeOptions)
		if err != nil {
			return nil, err
		}
		rows = parsed
	}

	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	dataKey := blob.BatchDataKey(batch.OrgInternalName, batch.ImportBatchGUID)
	if len(in.Data) > 0 {
		if err := s.blobs.PutUnique(ctx, dataKey, in.Data); err != nil {
			return nil, fmt.Errorf("failed to store batch data: %w", err)
		}
	}

	inputs := make([]CreateRecordInput, 0, len(rows)+1)
	switch batch.BatchDataType {
	case domain.BatchDataTypePdf:
		inputs = append(inputs, CreateRecordInput{
			RecordDataType: domain.RecordDataTypePdf,
			RecordData: map[string]any{
				"batchDataKey":  dataKey,
				"contentLength": len(in.Data),
				"contentType":   "application/pdf",
			},
		})
	case domain.BatchDataTypeDsv:
		for _, row := range rows {
			inputs = append(inputs, CreateRecordInput{
				RecordDataType: domain.RecordDataTypeDsv,
				RecordData:     row,
			})
		}
	}

	created := make([]*domain.ImportBatchRecord, 0, len(inputs))
	for i := range inputs {
		inputs[i].ImportBatchGUID = batch.ImportBatchGUID
		inputs[i].OrgInternalName = batch.OrgInternalName
		inputs[i].FacilityID = batch.FacilityID

		record, err := s.createRecord(ctx, batch, inputs[i])
		if err != nil {
			return nil, err
		}
		created = append(created, record)
	}

	// A payload that yields no records leaves an empty batch, which is complete.
	updated, err := s.aggregator.RecalculateBatchStatus(ctx, batch.ImportBatchGUID)
	if err != nil {
		return nil, err
	}
	batch = updated
	for _, record := range created {
		s.trigger(ctx, record, queue.TriggerCreated)
	}

	observability.WithContextLogger(s.logger, ctx).Info("batch created",
		zap.String("importBatchGuid", batch.ImportBatchGUID),
		zap.String("orgInternalName", batch.OrgInternalName),
		zap.String("batchSource", batch.BatchSource.String()),
		zap.String("batchDataType", batch.BatchDataType.String()),
		zap.Int("recordCount", len(created)),
	)
	return batch, nil
}

func (s *ImportBatchService) GetBatch(ctx context.Context, importBatchGUID string) (*domain.ImportBatch, error) {
	if strings.TrimSpace(importBatchGUID) == "" {
		return nil, fmt.Errorf("%w: importBatchGuid is required", domain.ErrValidation)
	}
	return s.batches.GetByGUID(ctx, importBatchGUID)
}

// ListBatchRecords returns the status projection of every record in a batch.
func (s *ImportBatchService) ListBatchRecords(ctx context.Context, importBatchGUID string) ([]domain.RecordStatusResult, error) {
	if _, err := s.GetBatch(ctx, importBatchGUID); err != nil {
		return nil, err
	}
	return s.records.ListStatuses(ctx, importBatchGUID)
}

// DiscardBatch terminally discards a batch and all of its unfinished records.
func (s *ImportBatchService) DiscardBatch(ctx context.Context, importBatchGUID, reason string) (*domain.ImportBatch, error) {
	if strings.TrimSpace(importBatchGUID) == "" {
		return nil, fmt.Errorf("%w: importBatchGuid is required", domain.ErrValidation)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: discard reason is required", domain.ErrValidation)
	}

	if err := s.batches.Discard(ctx, importBatchGUID); err != nil {
		return nil, err
	}

	discarded, err := s.records.DiscardAll(ctx, importBatchGUID, reason, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to discard records: %w", err)
	}

	batch, err := s.aggregator.RecalculateBatchStatus(ctx, importBatchGUID)
	if err != nil {
		return nil, err
	}

	observability.WithContextLogger(s.logger, ctx).Info("batch discarded",
		zap.String("importBatchGuid", importBatchGUID),
		zap.Int64("discardedRecords", discarded),
	)
	return batch, nil
}

// RecalculateBatchStatus recomputes the batch aggregate from record statuses.
func (s *ImportBatchService) RecalculateBatchStatus(ctx context.Context, importBatchGUID string) (*domain.ImportBatch, error) {
	return s.aggregator.RecalculateBatchStatus(ctx, importBatchGUID)
}

func (s *ImportBatchService) checkFlowAccess(ctx context.Context, org, flowGUID string) error {
	f, err := s.flows.GetByGUID(ctx, flowGUID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: flow %s", domain.ErrNotFound, flowGUID)
		}
		return fmt.Errorf("failed to load flow: %w", err)
	}
	if !f.AccessibleBy(strings.TrimSpace(org)) {
		return fmt.Errorf("%w: flow %s", domain.ErrCrossTenant, flowGUID)
	}
	return nil
}

// trigger hands a pending_processing record to the dispatcher. Dispatch
// failures leave the record pending for the sweeper to pick up.
func (s *ImportBatchService) trigger(ctx context.Context, record *domain.ImportBatchRecord, trigger queue.Trigger) {
	if s.dispatcher == nil || record.RecordStatus != domain.RecordStatusPendingProcessing {
		return
	}

	correlationID, _ := observability.CorrelationIDFromContext(ctx)
	msg := queue.RecordMessage{
		ImportBatchGUID: record.ImportBatchGUID,
		RecordIndex:     record.RecordIndex,
		OrgInternalName: record.OrgInternalName,
		CorrelationID:   correlationID,
		Trigger:         trigger,
	}
	if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
		observability.WithContextLogger(s.logger, ctx).Error("failed to dispatch record",
			append(observability.RecordFields(record.ImportBatchGUID, record.RecordIndex),
				zap.String("trigger", string(trigger)),
				zap.Error(err),
			)...,
		)
	}
}
