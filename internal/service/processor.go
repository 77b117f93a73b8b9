package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/import-engine/internal/audit"
	"github.com/kursadbilgin/import-engine/internal/cipher"
	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/flow"
	"github.com/kursadbilgin/import-engine/internal/infra/blob"
	"github.com/kursadbilgin/import-engine/internal/observability"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	outcomeSucceeded     = "succeeded"
	outcomeFailed        = "failed"
	outcomePendingReview = "pending_review"
)

// FlowResolver loads a flow ready for execution.
type FlowResolver interface {
	GetFlow(ctx context.Context, flowGUID string) (*flow.ResolvedFlow, error)
}

// RecordProcessor runs a single record through its batch's flow.
type RecordProcessor struct {
	batches    repository.BatchRepository
	records    repository.RecordRepository
	blobs      blob.Store
	flows      FlowResolver
	engine     flow.Engine
	aggregator *BatchAggregator
	audit      audit.Sink
	logger     *zap.Logger
	metrics    *observability.Metrics
	staleAfter time.Duration
	now        func() time.Time
}

func NewRecordProcessor(
	batches repository.BatchRepository,
	records repository.RecordRepository,
	blobs blob.Store,
	flows FlowResolver,
	engine flow.Engine,
	aggregator *BatchAggregator,
	auditSink audit.Sink,
	staleAfter time.Duration,
	logger *zap.Logger,
) (*RecordProcessor, error) {
	switch {
	case batches == nil:
		return nil, fmt.Errorf("batch repository is required")
	case records == nil:
		return nil, fmt.Errorf("record repository is required")
	case blobs == nil:
		return nil, fmt.Errorf("blob store is required")
	case flows == nil:
		return nil, fmt.Errorf("flow resolver is required")
	case engine == nil:
		return nil, fmt.Errorf("flow engine is required")
	case aggregator == nil:
		return nil, fmt.Errorf("batch aggregator is required")
	}
	if auditSink == nil {
		auditSink = audit.NopSink{}
	}
	if staleAfter <= 0 {
		staleAfter = domain.DefaultStaleClaimWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RecordProcessor{
		batches:    batches,
		records:    records,
		blobs:      blobs,
		flows:      flows,
		engine:     engine,
		aggregator: aggregator,
		audit:      auditSink,
		logger:     logger,
		staleAfter: staleAfter,
		now:        time.Now,
	}, nil
}

func (p *RecordProcessor) SetMetrics(metrics *observability.Metrics) {
	if p == nil {
		return
	}
	p.metrics = metrics
}

// ProcessImportBatchRecord claims a processable record, runs its flow and
// writes the terminal status. Flow problems (missing flow, cross-tenant flow,
// script failure) produce a failed result with a nil error. Errors are only
// returned when the record could not be claimed or storage is unavailable.
func (p *RecordProcessor) ProcessImportBatchRecord(ctx context.Context, importBatchGUID string, recordIndex int) (*domain.ProcessingResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(importBatchGUID) == "" {
		return nil, fmt.Errorf("%w: importBatchGuid is required", domain.ErrValidation)
	}

	ctx, correlationID := observability.EnsureCorrelationID(ctx)
	logger := observability.WithContextLogger(p.logger, ctx).With(observability.RecordFields(importBatchGUID, recordIndex)...)

	startedAt := p.now().UTC()
	record, err := p.records.Claim(ctx, importBatchGUID, recordIndex, startedAt, startedAt.Add(-p.staleAfter))
	if err != nil {
		return nil, err
	}

	result := &domain.ProcessingResult{
		ImportBatchGUID:       record.ImportBatchGUID,
		ImportBatchRecordGUID: record.ImportBatchRecordGUID,
		RecordIndex:           record.RecordIndex,
		StartedAt:             startedAt,
	}

	batch, err := p.batches.GetByGUID(ctx, importBatchGUID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return p.fail(ctx, logger, record, result, "import batch not found", nil)
		}
		return nil, fmt.Errorf("failed to load batch: %w", err)
	}
	if !batch.HasFlow() {
		return p.fail(ctx, logger, record, result, "import batch has no flow", nil)
	}

	resolved, err := p.flows.GetFlow(ctx, *batch.FlowGUID)
	if err != nil {
		if isFlowDefinitionError(err) {
			return p.fail(ctx, logger, record, result, err.Error(), nil)
		}
		return nil, fmt.Errorf("failed to resolve flow: %w", err)
	}

	result.FlowGUID = resolved.Flow.FlowGUID
	result.FlowName = resolved.Flow.FlowName
	result.FlowType = resolved.FlowType()
	result.FlowVersion = resolved.Version

	if !resolved.Flow.AccessibleBy(record.OrgInternalName) {
		return p.fail(ctx, logger, record, result, domain.ErrCrossTenant.Error(), nil)
	}

	record.RecordData, err = loadRecordData(ctx, p.blobs, record)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return p.fail(ctx, logger, record, result, "record data not found", nil)
		}
		return nil, err
	}
	entry, err := loadDataEntry(ctx, p.blobs, record)
	if err != nil {
		return nil, err
	}
	if record.DataEntryDataIndicated || len(entry.FieldValues) > 0 {
		record.DataEntryData = entry.FieldValues
	}

	runStart := p.now()
	scriptResult, runErr := p.engine.Run(ctx, flow.Input{
		Flow:          resolved,
		Batch:         batch,
		Record:        record,
		CorrelationID: correlationID,
	})
	p.metrics.ObserveFlowExecution(result.FlowType.String(), p.now().Sub(runStart))

	if runErr != nil {
		scriptErr := flow.AsScriptError(runErr)
		result.Output = scriptErr.Result
		return p.fail(ctx, logger, record, result, scriptErr.Reason(), &scriptErr.Stack)
	}

	if scriptResult == nil {
		scriptResult = &flow.ScriptResult{}
	}
	result.Success = true
	result.Output = scriptResult.Output
	result.EncounterIDs = scriptResult.EncounterIDs
	result.FinishedAt = p.now().UTC()

	p.emit(ctx, record, result)

	outcome := outcomeSucceeded
	var writeErr error
	if scriptResult.RequiresReview {
		outcome = outcomePendingReview
		writeErr = p.records.MarkPendingReview(ctx, record.ImportBatchGUID, record.RecordIndex, result.EncounterIDs)
	} else {
		writeErr = p.records.MarkComplete(ctx, record.ImportBatchGUID, record.RecordIndex, result.EncounterIDs, result.FinishedAt)
	}
	if err := p.settle(ctx, logger, record, writeErr); err != nil {
		return nil, err
	}

	p.metrics.IncRecordProcessed(outcome)
	logger.Info("record processed",
		zap.String("flowGuid", result.FlowGUID),
		zap.Int("flowVersion", result.FlowVersion),
		zap.String("outcome", outcome),
		zap.Int("encounterCount", len(result.EncounterIDs)),
	)

	return result, nil
}

// fail records a processing failure for a claimed record.
func (p *RecordProcessor) fail(
	ctx context.Context,
	logger *zap.Logger,
	record *domain.ImportBatchRecord,
	result *domain.ProcessingResult,
	reason string,
	stack *string,
) (*domain.ProcessingResult, error) {
	result.Success = false
	result.FailureReason = reason
	if stack != nil {
		result.FailureStack = *stack
	}
	result.FinishedAt = p.now().UTC()

	p.emit(ctx, record, result)

	writeErr := p.records.MarkFailed(ctx, record.ImportBatchGUID, record.RecordIndex, reason)
	if err := p.settle(ctx, logger, record, writeErr); err != nil {
		return nil, err
	}

	p.metrics.IncRecordProcessed(outcomeFailed)
	logger.Warn("record processing failed",
		zap.String("flowGuid", result.FlowGUID),
		zap.String("reason", reason),
	)

	return result, nil
}

// settle handles the terminal status write and recomputes the batch aggregate.
// A lost claim means another dispatch owns the record and is not an error.
func (p *RecordProcessor) settle(ctx context.Context, logger *zap.Logger, record *domain.ImportBatchRecord, writeErr error) error {
	if writeErr != nil {
		if errors.Is(writeErr, domain.ErrConflict) {
			logger.Warn("record claim lost before terminal status write")
			return nil
		}
		return fmt.Errorf("failed to persist processing outcome: %w", writeErr)
	}

	if _, err := p.aggregator.RecalculateBatchStatus(ctx, record.ImportBatchGUID); err != nil {
		logger.Error("failed to recalculate batch status", zap.Error(err))
	}
	return nil
}

func (p *RecordProcessor) emit(ctx context.Context, record *domain.ImportBatchRecord, result *domain.ProcessingResult) {
	data := map[string]any{
		"flowGuid":    result.FlowGUID,
		"flowName":    result.FlowName,
		"flowType":    result.FlowType.String(),
		"flowVersion": result.FlowVersion,
	}

	eventType := domain.AuditEventRecordProcessingSucceeded
	if result.Success {
		data["output"] = result.Output
		data["encounterIds"] = result.EncounterIDs
	} else {
		eventType = domain.AuditEventRecordProcessingFailed
		data["failureReason"] = result.FailureReason
		data["failureStack"] = result.FailureStack
		if result.Output != nil {
			data["partialResult"] = result.Output
		}
	}

	p.audit.CreateEvent(ctx, domain.AuditEvent{
		EventType:                  eventType,
		ImportBatchGUID:            record.ImportBatchGUID,
		ImportBatchRecordGUID:      record.ImportBatchRecordGUID,
		ImportBatchGUIDRecordIndex: domain.RecordCoordinate(record.ImportBatchGUID, record.RecordIndex),
		OrgInternalName:            record.OrgInternalName,
		EventData:                  data,
	})
}

// isFlowDefinitionError reports whether a flow lookup failed because of the
// flow itself rather than the storage behind it.
func isFlowDefinitionError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, cipher.ErrConfigUnreadable) ||
		errors.Is(err, cipher.ErrDisabled)
}
