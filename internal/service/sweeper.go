package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/observability"
	"github.com/kursadbilgin/import-engine/internal/queue"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultSweepInterval   = 30 * time.Second
	defaultSweepPendingAge = time.Minute
	defaultSweepLimit      = 100
)

// StaleClaimSweeper periodically re-dispatches records whose processing
// request was lost: pending_processing records that sat untouched and
// processing claims older than the stale window. Failed records are left for
// an explicit retry.
type StaleClaimSweeper struct {
	records    repository.RecordRepository
	dispatcher RecordDispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	interval   time.Duration
	pendingAge time.Duration
	staleAfter time.Duration
	limit      int
	now        func() time.Time
}

func NewStaleClaimSweeper(
	records repository.RecordRepository,
	dispatcher RecordDispatcher,
	interval time.Duration,
	staleAfter time.Duration,
	limit int,
	logger *zap.Logger,
) (*StaleClaimSweeper, error) {
	if records == nil {
		return nil, fmt.Errorf("record repository is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if staleAfter <= 0 {
		staleAfter = domain.DefaultStaleClaimWindow
	}
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StaleClaimSweeper{
		records:    records,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   interval,
		pendingAge: defaultSweepPendingAge,
		staleAfter: staleAfter,
		limit:      limit,
		now:        time.Now,
	}, nil
}

func (s *StaleClaimSweeper) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *StaleClaimSweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("stale claim sweeper initial sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("stale claim sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *StaleClaimSweeper) sweep(ctx context.Context) error {
	now := s.now().UTC()
	candidates, err := s.records.ListSweepable(ctx, now.Add(-s.pendingAge), now.Add(-s.staleAfter), s.limit)
	if err != nil {
		return fmt.Errorf("failed to list sweepable records: %w", err)
	}

	dispatched := 0
	for _, candidate := range candidates {
		msg := queue.RecordMessage{
			ImportBatchGUID: candidate.ImportBatchGUID,
			RecordIndex:     candidate.RecordIndex,
			OrgInternalName: candidate.OrgInternalName,
			Trigger:         queue.TriggerSweep,
		}
		if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
			s.logger.Error("failed to re-dispatch record",
				append(observability.RecordFields(candidate.ImportBatchGUID, candidate.RecordIndex), zap.Error(err))...,
			)
			continue
		}
		dispatched++
	}

	s.metrics.AddSweepRepublished(dispatched)
	if dispatched > 0 {
		s.logger.Info("re-dispatched stale records", zap.Int("count", dispatched))
	}
	return nil
}
