package source

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kursadbilgin/import-engine/internal/cipher"
	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"github.com/kursadbilgin/import-engine/internal/service"
	"go.uber.org/zap"
)

type fakeArtifactRepo struct {
	mu        sync.Mutex
	artifacts map[string]*domain.InboundArtifact
	createFn  func(ctx context.Context, a *domain.InboundArtifact) error
}

func newFakeArtifactRepo() *fakeArtifactRepo {
	return &fakeArtifactRepo{artifacts: map[string]*domain.InboundArtifact{}}
}

func (f *fakeArtifactRepo) Create(ctx context.Context, a *domain.InboundArtifact) error {
	if f.createFn != nil {
		if err := f.createFn(ctx, a); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *a
	f.artifacts[a.ArtifactGUID] = &copied
	return nil
}

func (f *fakeArtifactRepo) AnnotateBatch(ctx context.Context, artifactGUID, importBatchGUID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.artifacts[artifactGUID]
	if !ok {
		return domain.ErrNotFound
	}
	a.ImportBatchGUID = &importBatchGUID
	return nil
}

func (f *fakeArtifactRepo) AnnotateFailure(ctx context.Context, artifactGUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.artifacts[artifactGUID]
	if !ok {
		return domain.ErrNotFound
	}
	a.BatchGenerationError = &reason
	return nil
}

func (f *fakeArtifactRepo) GetByGUID(ctx context.Context, guid string) (*domain.InboundArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.artifacts[guid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeArtifactRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.artifacts)
}

type fakeFaxLineRepo struct {
	lines map[string]*domain.FaxLine
}

func (f *fakeFaxLineRepo) GetByID(ctx context.Context, id string) (*domain.FaxLine, error) {
	line, ok := f.lines[id]
	if !ok {
		return nil, fmt.Errorf("%w: fax line %s", domain.ErrNotFound, id)
	}
	copied := *line
	return &copied, nil
}

type fakeFtpSiteRepo struct {
	sites map[string]*domain.FtpSite
}

func (f *fakeFtpSiteRepo) GetByID(ctx context.Context, id string) (*domain.FtpSite, error) {
	site, ok := f.sites[id]
	if !ok {
		return nil, fmt.Errorf("%w: ftp site %s", domain.ErrNotFound, id)
	}
	copied := *site
	return &copied, nil
}

type fakeBatchCreator struct {
	mu       sync.Mutex
	inputs   []service.CreateBatchInput
	createFn func(ctx context.Context, in service.CreateBatchInput) (*domain.ImportBatch, error)
}

func (f *fakeBatchCreator) CreateBatch(ctx context.Context, in service.CreateBatchInput) (*domain.ImportBatch, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	if f.createFn != nil {
		return f.createFn(ctx, in)
	}
	return &domain.ImportBatch{ImportBatchGUID: "batch-1", OrgInternalName: in.OrgInternalName, BatchName: in.BatchName}, nil
}

// fakeBatchRepo only supports the open-batch lookup web forms rely on.
type fakeBatchRepo struct {
	repository.BatchRepository
	findOpenFn func(ctx context.Context, org string, source domain.BatchSource, searchKey string) (*domain.ImportBatch, error)
}

func (f *fakeBatchRepo) FindOpenBySearchKey(ctx context.Context, org string, source domain.BatchSource, searchKey string) (*domain.ImportBatch, error) {
	if f.findOpenFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.findOpenFn(ctx, org, source, searchKey)
}

type fakeWebFormService struct {
	mu            sync.Mutex
	batchInputs   []service.ExternalWebFormBatchInput
	recordInputs  []service.CreateRecordInput
	createBatchFn func(ctx context.Context, in service.ExternalWebFormBatchInput) (*domain.ImportBatch, error)
}

func (f *fakeWebFormService) CreateExternalWebFormBatch(ctx context.Context, in service.ExternalWebFormBatchInput) (*domain.ImportBatch, error) {
	f.mu.Lock()
	f.batchInputs = append(f.batchInputs, in)
	f.mu.Unlock()
	if f.createBatchFn != nil {
		return f.createBatchFn(ctx, in)
	}
	return &domain.ImportBatch{ImportBatchGUID: "wf-new", OrgInternalName: in.OrgInternalName}, nil
}

func (f *fakeWebFormService) CreateRecord(ctx context.Context, in service.CreateRecordInput) (*domain.ImportBatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordInputs = append(f.recordInputs, in)
	return &domain.ImportBatchRecord{
		ImportBatchGUID: in.ImportBatchGUID,
		RecordIndex:     len(f.recordInputs) - 1,
		OrgInternalName: in.OrgInternalName,
		RecordData:      in.RecordData,
		RecordDataType:  in.RecordDataType,
	}, nil
}

func newTestConfigDecoder(t *testing.T) *cipher.ConfigDecoder {
	t.Helper()

	svc, err := cipher.NewServiceFromKey(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("NewServiceFromKey() error = %v", err)
	}
	return cipher.NewConfigDecoder(svc, true, zap.NewNop(), nil)
}

func encodeConfig(t *testing.T, decoder *cipher.ConfigDecoder, config map[string]any) *string {
	t.Helper()

	ciphertext, err := decoder.Encode(config)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return ciphertext
}

func stringPtr(s string) *string {
	return &s
}
