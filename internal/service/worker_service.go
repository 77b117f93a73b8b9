package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/observability"
	"github.com/kursadbilgin/import-engine/internal/queue"
	"github.com/kursadbilgin/import-engine/internal/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// RecordProcessingService processes a single record. RecordProcessor is the
// production implementation.
type RecordProcessingService interface {
	ProcessImportBatchRecord(ctx context.Context, importBatchGUID string, recordIndex int) (*domain.ProcessingResult, error)
}

var _ RecordProcessingService = (*RecordProcessor)(nil)

// WorkerService consumes record processing requests from the broker.
type WorkerService struct {
	consumer    queue.Consumer
	processor   RecordProcessingService
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

func NewWorkerService(
	consumer queue.Consumer,
	processor RecordProcessingService,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if processor == nil {
		return nil, fmt.Errorf("record processor is required")
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.Unlimited{}
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		consumer:    consumer,
		processor:   processor,
		rateLimiter: rateLimiter,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

// Start consumes the work queues and processes record messages until context cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := s.consumer.Consume(groupCtx, queueName, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processMessage(ctx context.Context, msg queue.RecordMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	logger := observability.WithContextLogger(s.logger, ctx).With(
		observability.RecordFields(msg.ImportBatchGUID, msg.RecordIndex)...,
	)

	// Malformed messages can never succeed; ack them.
	if err := msg.Validate(); err != nil {
		logger.Warn("dropping invalid record message", zap.Error(err))
		return nil
	}

	s.metrics.IncWorkerInFlight()
	defer s.metrics.DecWorkerInFlight()

	if err := s.rateLimiter.Wait(ctx, msg.OrgInternalName); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	start := s.now()
	result, err := s.processor.ProcessImportBatchRecord(ctx, msg.ImportBatchGUID, msg.RecordIndex)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			logger.Warn("record not found, skipping", zap.String("trigger", string(msg.Trigger)))
			return nil
		case errors.Is(err, domain.ErrNotProcessable):
			logger.Debug("record not processable, skipping", zap.String("trigger", string(msg.Trigger)))
			return nil
		}
		return fmt.Errorf("failed to process record: %w", err)
	}

	logger.Debug("record message handled",
		zap.String("trigger", string(msg.Trigger)),
		zap.Bool("success", result.Success),
		zap.Duration("elapsed", s.now().Sub(start)),
	)
	return nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}
