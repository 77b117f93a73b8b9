package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/observability"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"go.uber.org/zap"
)

// BatchAggregator recomputes batch status from a full rescan of record statuses.
type BatchAggregator struct {
	batches repository.BatchRepository
	records repository.RecordRepository
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewBatchAggregator(
	batches repository.BatchRepository,
	records repository.RecordRepository,
	logger *zap.Logger,
) (*BatchAggregator, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if records == nil {
		return nil, fmt.Errorf("record repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchAggregator{
		batches: batches,
		records: records,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (a *BatchAggregator) SetMetrics(metrics *observability.Metrics) {
	if a == nil {
		return
	}
	a.metrics = metrics
}

// RecalculateBatchStatus re-derives status counts and batch status from every
// record projection of the batch and writes them back.
func (a *BatchAggregator) RecalculateBatchStatus(ctx context.Context, importBatchGUID string) (*domain.ImportBatch, error) {
	if strings.TrimSpace(importBatchGUID) == "" {
		return nil, fmt.Errorf("%w: importBatchGuid is required", domain.ErrValidation)
	}

	batch, err := a.batches.GetByGUID(ctx, importBatchGUID)
	if err != nil {
		return nil, err
	}

	projections, err := a.records.ListStatuses(ctx, importBatchGUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list record statuses: %w", err)
	}

	counts := domain.CountStatuses(projections)
	next := domain.DeriveBatchStatus(batch.BatchStatus, counts)

	agg := repository.BatchAggregate{
		StatusCounts: counts,
		BatchStatus:  next,
	}
	if next == domain.BatchStatusComplete {
		completedAt := a.now().UTC()
		agg.CompletedAt = &completedAt
		agg.ClearAssignee = true
	}

	if err := a.batches.UpdateAggregate(ctx, importBatchGUID, agg); err != nil {
		return nil, fmt.Errorf("failed to update batch aggregate: %w", err)
	}

	previous := batch.BatchStatus
	batch.StatusCounts = counts
	batch.BatchStatus = next
	if agg.CompletedAt != nil && batch.CompletedAt == nil {
		batch.CompletedAt = agg.CompletedAt
	}
	if agg.ClearAssignee {
		batch.AssignedTo = nil
	}

	if next != previous {
		observability.WithContextLogger(a.logger, ctx).Info("batch status changed",
			zap.String("importBatchGuid", importBatchGUID),
			zap.String("from", previous.String()),
			zap.String("to", next.String()),
			zap.Int("recordCount", counts.Total()),
		)
		a.metrics.IncBatchStatusChanged(next.String())
	}

	return batch, nil
}
