package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/observability"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"go.uber.org/zap"
)

// Sink appends structured events to the audit trail. CreateEvent never fails
// the caller; delivery problems are logged.
type Sink interface {
	CreateEvent(ctx context.Context, event domain.AuditEvent)
}

var _ Sink = (*RepositorySink)(nil)

// RepositorySink stores audit events through an AuditEventRepository.
type RepositorySink struct {
	events repository.AuditEventRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewRepositorySink(events repository.AuditEventRepository, logger *zap.Logger) *RepositorySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RepositorySink{events: events, logger: logger, now: time.Now}
}

func (s *RepositorySink) CreateEvent(ctx context.Context, event domain.AuditEvent) {
	if event.EventGUID == "" {
		event.EventGUID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}

	if err := s.events.Create(ctx, &event); err != nil {
		observability.WithContextLogger(s.logger, ctx).Error("failed to write audit event",
			zap.String("eventType", event.EventType.String()),
			zap.String("importBatchGuid", event.ImportBatchGUID),
			zap.String("coordinate", event.ImportBatchGUIDRecordIndex),
			zap.Error(err),
		)
	}
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) CreateEvent(context.Context, domain.AuditEvent) {}
