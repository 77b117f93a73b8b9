package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/queue"
)

// RecordDispatcher hands a record over to per-record processing.
type RecordDispatcher interface {
	Dispatch(ctx context.Context, msg queue.RecordMessage) error
}

var (
	_ RecordDispatcher = (*QueueDispatcher)(nil)
	_ RecordDispatcher = (*InlineDispatcher)(nil)
)

// QueueDispatcher publishes processing requests to the records queue.
type QueueDispatcher struct {
	publisher queue.Publisher
}

func NewQueueDispatcher(publisher queue.Publisher) (*QueueDispatcher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	return &QueueDispatcher{publisher: publisher}, nil
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, msg queue.RecordMessage) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return d.publisher.Publish(ctx, queue.RecordsQueue, msg)
}

// InlineDispatcher processes the record synchronously in the calling goroutine.
type InlineDispatcher struct {
	processor *RecordProcessor
}

func NewInlineDispatcher(processor *RecordProcessor) (*InlineDispatcher, error) {
	if processor == nil {
		return nil, fmt.Errorf("record processor is required")
	}
	return &InlineDispatcher{processor: processor}, nil
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, msg queue.RecordMessage) error {
	_, err := d.processor.ProcessImportBatchRecord(ctx, msg.ImportBatchGUID, msg.RecordIndex)
	if errors.Is(err, domain.ErrNotProcessable) {
		return nil
	}
	return err
}
