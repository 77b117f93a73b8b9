package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/observability"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"github.com/kursadbilgin/import-engine/internal/service"
	"go.uber.org/zap"
)

// WebFormBatchService is the part of the batch service web form submissions need.
type WebFormBatchService interface {
	CreateExternalWebFormBatch(ctx context.Context, in service.ExternalWebFormBatchInput) (*domain.ImportBatch, error)
	CreateRecord(ctx context.Context, in service.CreateRecordInput) (*domain.ImportBatchRecord, error)
}

var _ WebFormBatchService = (*service.ImportBatchService)(nil)

// WebFormSubmission is one completed external web form.
type WebFormSubmission struct {
	OrgInternalName    string
	FacilityID         *string
	FormName           string
	FlowGUID           string
	SearchKey          *string
	SecondarySearchKey *string
	BatchSourceIDs     map[string]string
	FieldValues        map[string]any
	SubmittedAt        time.Time
}

// WebFormAdapter appends web form submissions to open batches, grouping
// submissions that share a search key.
type WebFormAdapter struct {
	batches repository.BatchRepository
	service WebFormBatchService
	logger  *zap.Logger
}

func NewWebFormAdapter(batches repository.BatchRepository, svc WebFormBatchService, logger *zap.Logger) (*WebFormAdapter, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if svc == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebFormAdapter{batches: batches, service: svc, logger: logger}, nil
}

// Submit records the submission as an ExternalWebForm record. Without a search
// key every submission gets its own batch.
func (a *WebFormAdapter) Submit(ctx context.Context, sub WebFormSubmission) (*domain.ImportBatchRecord, error) {
	org := strings.TrimSpace(sub.OrgInternalName)
	if org == "" {
		return nil, fmt.Errorf("%w: orgInternalName is required", domain.ErrValidation)
	}
	if len(sub.FieldValues) == 0 {
		return nil, fmt.Errorf("%w: submission has no field values", domain.ErrValidation)
	}

	batch, err := a.resolveBatch(ctx, org, sub)
	if err != nil {
		return nil, err
	}

	recordData := make(map[string]any, len(sub.FieldValues)+1)
	for k, v := range sub.FieldValues {
		recordData[k] = v
	}
	if !sub.SubmittedAt.IsZero() {
		recordData["submittedAt"] = sub.SubmittedAt.UTC().Format(time.RFC3339)
	}

	record, err := a.service.CreateRecord(ctx, service.CreateRecordInput{
		ImportBatchGUID:    batch.ImportBatchGUID,
		OrgInternalName:    org,
		FacilityID:         sub.FacilityID,
		RecordData:         recordData,
		RecordDataType:     domain.RecordDataTypeExternalWebForm,
		SearchKey:          sub.SearchKey,
		SecondarySearchKey: sub.SecondarySearchKey,
	})
	if err != nil {
		return nil, err
	}

	observability.WithContextLogger(a.logger, ctx).Info("web form submission recorded",
		observability.RecordFields(record.ImportBatchGUID, record.RecordIndex)...,
	)
	return record, nil
}

func (a *WebFormAdapter) resolveBatch(ctx context.Context, org string, sub WebFormSubmission) (*domain.ImportBatch, error) {
	if sub.SearchKey != nil && strings.TrimSpace(*sub.SearchKey) != "" {
		existing, err := a.batches.FindOpenBySearchKey(ctx, org, domain.BatchSourceExternalWebForm, *sub.SearchKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up web form batch: %w", err)
		}
	}

	name := strings.TrimSpace(sub.FormName)
	if name == "" {
		name = "Web form"
	}
	var receivedAt *time.Time
	if !sub.SubmittedAt.IsZero() {
		receivedAt = &sub.SubmittedAt
	}

	return a.service.CreateExternalWebFormBatch(ctx, service.ExternalWebFormBatchInput{
		BatchName:       name,
		OrgInternalName: org,
		FacilityID:      sub.FacilityID,
		BatchSourceIDs:  sub.BatchSourceIDs,
		FlowGUID:        sub.FlowGUID,
		SearchKey:       sub.SearchKey,
		ReceivedAt:      receivedAt,
	})
}
