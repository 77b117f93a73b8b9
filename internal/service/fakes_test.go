package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/flow"
	"github.com/kursadbilgin/import-engine/internal/queue"
	"github.com/kursadbilgin/import-engine/internal/repository"
)

type memBatchRepo struct {
	mu          sync.Mutex
	batches     map[string]*domain.ImportBatch
	createCalls int
	aggregates  []repository.BatchAggregate
}

func newMemBatchRepo() *memBatchRepo {
	return &memBatchRepo{batches: map[string]*domain.ImportBatch{}}
}

func (r *memBatchRepo) Create(ctx context.Context, b *domain.ImportBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if _, ok := r.batches[b.ImportBatchGUID]; ok {
		return domain.ErrConflict
	}
	copied := *b
	r.batches[b.ImportBatchGUID] = &copied
	return nil
}

func (r *memBatchRepo) GetByGUID(ctx context.Context, guid string) (*domain.ImportBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[guid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (r *memBatchRepo) FindOpenBySearchKey(ctx context.Context, org string, source domain.BatchSource, searchKey string) (*domain.ImportBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.batches {
		if b.OrgInternalName != org || b.BatchSource != source || b.SearchKey == nil || *b.SearchKey != searchKey {
			continue
		}
		if b.BatchStatus == domain.BatchStatusProcessing || b.BatchStatus == domain.BatchStatusPendingReview {
			copied := *b
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memBatchRepo) AllocateRecordIndex(ctx context.Context, guid string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[guid]
	if !ok || b.BatchStatus == domain.BatchStatusDiscarded {
		return 0, domain.ErrNotFound
	}
	index := b.NextRecordIndex
	b.NextRecordIndex++
	return index, nil
}

func (r *memBatchRepo) UpdateAggregate(ctx context.Context, guid string, agg repository.BatchAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[guid]
	if !ok {
		return domain.ErrNotFound
	}
	r.aggregates = append(r.aggregates, agg)
	b.StatusCounts = agg.StatusCounts
	if b.BatchStatus != domain.BatchStatusDiscarded && b.BatchStatus != domain.BatchStatusComplete {
		b.BatchStatus = agg.BatchStatus
	}
	if agg.CompletedAt != nil && b.CompletedAt == nil {
		completedAt := *agg.CompletedAt
		b.CompletedAt = &completedAt
	}
	if agg.ClearAssignee {
		b.AssignedTo = nil
	}
	return nil
}

func (r *memBatchRepo) Discard(ctx context.Context, guid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[guid]
	if !ok {
		return domain.ErrNotFound
	}
	if b.BatchStatus == domain.BatchStatusDiscarded {
		return domain.ErrConflict
	}
	b.BatchStatus = domain.BatchStatusDiscarded
	return nil
}

func (r *memBatchRepo) put(b *domain.ImportBatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *b
	r.batches[b.ImportBatchGUID] = &copied
}

type recordKey struct {
	batch string
	index int
}

type memRecordRepo struct {
	mu          sync.Mutex
	records     map[recordKey]*domain.ImportBatchRecord
	createCalls int
	markFailed  func(batchGUID string, index int) error
	sweepableFn func(pendingBefore, staleBefore time.Time, limit int) ([]repository.SweepCandidate, error)
}

func newMemRecordRepo() *memRecordRepo {
	return &memRecordRepo{records: map[recordKey]*domain.ImportBatchRecord{}}
}

func (r *memRecordRepo) Create(ctx context.Context, rec *domain.ImportBatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	key := recordKey{rec.ImportBatchGUID, rec.RecordIndex}
	if _, ok := r.records[key]; ok {
		return domain.ErrConflict
	}
	copied := *rec
	copied.RecordData = nil
	copied.DataEntryData = nil
	r.records[key] = &copied
	return nil
}

func (r *memRecordRepo) Get(ctx context.Context, batchGUID string, index int) (*domain.ImportBatchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[recordKey{batchGUID, index}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (r *memRecordRepo) ListStatuses(ctx context.Context, batchGUID string) ([]domain.RecordStatusResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.RecordStatusResult, 0)
	for key, rec := range r.records {
		if key.batch == batchGUID {
			out = append(out, rec.Projection())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordIndex < out[j].RecordIndex })
	return out, nil
}

func (r *memRecordRepo) Claim(ctx context.Context, batchGUID string, index int, now, staleBefore time.Time) (*domain.ImportBatchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[recordKey{batchGUID, index}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !rec.IsProcessable(now, now.Sub(staleBefore)) {
		return nil, domain.ErrNotProcessable
	}
	rec.RecordStatus = domain.RecordStatusProcessing
	started := now
	rec.ProcessingStartedAt = &started
	copied := *rec
	return &copied, nil
}

func (r *memRecordRepo) finish(batchGUID string, index int, apply func(rec *domain.ImportBatchRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[recordKey{batchGUID, index}]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.RecordStatus != domain.RecordStatusProcessing {
		return domain.ErrConflict
	}
	apply(rec)
	return nil
}

func (r *memRecordRepo) MarkComplete(ctx context.Context, batchGUID string, index int, encounterIDs []string, now time.Time) error {
	return r.finish(batchGUID, index, func(rec *domain.ImportBatchRecord) {
		rec.RecordStatus = domain.RecordStatusProcessingComplete
		rec.LinkedEncounterIDs = encounterIDs
		rec.ProcessingFailureReason = nil
		rec.CompletedAt = &now
	})
}

func (r *memRecordRepo) MarkFailed(ctx context.Context, batchGUID string, index int, reason string) error {
	if r.markFailed != nil {
		if err := r.markFailed(batchGUID, index); err != nil {
			return err
		}
	}
	return r.finish(batchGUID, index, func(rec *domain.ImportBatchRecord) {
		rec.RecordStatus = domain.RecordStatusProcessingFailed
		rec.ProcessingFailureReason = &reason
	})
}

func (r *memRecordRepo) MarkPendingReview(ctx context.Context, batchGUID string, index int, encounterIDs []string) error {
	return r.finish(batchGUID, index, func(rec *domain.ImportBatchRecord) {
		rec.RecordStatus = domain.RecordStatusPendingReview
		rec.LinkedEncounterIDs = encounterIDs
	})
}

func (r *memRecordRepo) UpdateDataEntry(ctx context.Context, update repository.DataEntryUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[recordKey{update.ImportBatchGUID, update.RecordIndex}]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.RecordStatus == domain.RecordStatusDiscarded || rec.RecordStatus == domain.RecordStatusIgnored {
		return domain.ErrConflict
	}
	rec.DataEntryDataIndicated = true
	rec.RecordStatus = domain.RecordStatusPendingProcessing
	if rec.PageUpdateResults == nil {
		rec.PageUpdateResults = map[string]domain.PageUpdateResult{}
	}
	rec.PageUpdateResults[update.Page] = update.PageResult
	return nil
}

func (r *memRecordRepo) SetStatus(ctx context.Context, batchGUID string, index int, status domain.RecordStatus, reason *string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[recordKey{batchGUID, index}]
	if !ok {
		return domain.ErrNotFound
	}
	rec.RecordStatus = status
	if status == domain.RecordStatusDiscarded {
		rec.DiscardReason = reason
	}
	return nil
}

func (r *memRecordRepo) DiscardAll(ctx context.Context, batchGUID string, reason string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for key, rec := range r.records {
		if key.batch != batchGUID || rec.RecordStatus.IsTerminal() {
			continue
		}
		rec.RecordStatus = domain.RecordStatusDiscarded
		rec.DiscardReason = &reason
		n++
	}
	return n, nil
}

func (r *memRecordRepo) ListSweepable(ctx context.Context, pendingBefore, staleBefore time.Time, limit int) ([]repository.SweepCandidate, error) {
	if r.sweepableFn == nil {
		return nil, fmt.Errorf("not implemented")
	}
	return r.sweepableFn(pendingBefore, staleBefore, limit)
}

func (r *memRecordRepo) put(rec *domain.ImportBatchRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *rec
	r.records[recordKey{rec.ImportBatchGUID, rec.RecordIndex}] = &copied
}

func (r *memRecordRepo) status(batchGUID string, index int) domain.RecordStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[recordKey{batchGUID, index}]
	if !ok {
		return ""
	}
	return rec.RecordStatus
}

type fakeTemplateRepo struct {
	templates map[string]*domain.BatchTemplate
}

func (f *fakeTemplateRepo) Create(ctx context.Context, t *domain.BatchTemplate) error {
	return fmt.Errorf("not implemented")
}

func (f *fakeTemplateRepo) GetByGUID(ctx context.Context, guid string) (*domain.BatchTemplate, error) {
	t, ok := f.templates[guid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

type fakeFlowRepo struct {
	flows map[string]*domain.Flow
}

func (f *fakeFlowRepo) Save(ctx context.Context, fl *domain.Flow) error {
	return fmt.Errorf("not implemented")
}

func (f *fakeFlowRepo) GetByGUID(ctx context.Context, guid string) (*domain.Flow, error) {
	fl, ok := f.flows[guid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *fl
	return &copied, nil
}

func (f *fakeFlowRepo) FindForStream(ctx context.Context, org, streamType string) ([]domain.Flow, error) {
	return nil, fmt.Errorf("not implemented")
}

type fakeFlowResolver struct {
	getFlowFn func(ctx context.Context, flowGUID string) (*flow.ResolvedFlow, error)
}

func (f *fakeFlowResolver) GetFlow(ctx context.Context, flowGUID string) (*flow.ResolvedFlow, error) {
	if f.getFlowFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.getFlowFn(ctx, flowGUID)
}

type fakeEngine struct {
	mu    sync.Mutex
	calls []flow.Input
	runFn func(ctx context.Context, in flow.Input) (*flow.ScriptResult, error)
}

func (f *fakeEngine) Run(ctx context.Context, in flow.Input) (*flow.ScriptResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, in)
	f.mu.Unlock()
	if f.runFn == nil {
		return &flow.ScriptResult{}, nil
	}
	return f.runFn(ctx, in)
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingDispatcher struct {
	mu         sync.Mutex
	messages   []queue.RecordMessage
	dispatchFn func(ctx context.Context, msg queue.RecordMessage) error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, msg queue.RecordMessage) error {
	d.mu.Lock()
	d.messages = append(d.messages, msg)
	d.mu.Unlock()
	if d.dispatchFn != nil {
		return d.dispatchFn(ctx, msg)
	}
	return nil
}

type recordingAuditSink struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (s *recordingAuditSink) CreateEvent(ctx context.Context, event domain.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.RecordMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.RecordMessage) error {
	if f.publishFn == nil {
		return nil
	}
	return f.publishFn(ctx, queueName, msg)
}

func (f *fakePublisher) Close() error {
	return nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn == nil {
		<-ctx.Done()
		return nil
	}
	return f.consumeFn(ctx, queueName, handler)
}

func (f *fakeConsumer) Close() error {
	return nil
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, org string) (bool, error)
	waitFn  func(ctx context.Context, org string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, org string) (bool, error) {
	if f.allowFn == nil {
		return true, nil
	}
	return f.allowFn(ctx, org)
}

func (f *fakeRateLimiter) Wait(ctx context.Context, org string) error {
	if f.waitFn == nil {
		return nil
	}
	return f.waitFn(ctx, org)
}

type fakeProcessingService struct {
	processFn func(ctx context.Context, importBatchGUID string, recordIndex int) (*domain.ProcessingResult, error)
}

func (f *fakeProcessingService) ProcessImportBatchRecord(ctx context.Context, importBatchGUID string, recordIndex int) (*domain.ProcessingResult, error) {
	return f.processFn(ctx, importBatchGUID, recordIndex)
}

func stringPtr(s string) *string {
	return &s
}
