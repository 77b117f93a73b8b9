package source

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/infra/blob"
	"github.com/kursadbilgin/import-engine/internal/service"
	"go.uber.org/zap"
)

type faxHarness struct {
	artifacts *fakeArtifactRepo
	blobs     *blob.MemoryStore
	creator   *fakeBatchCreator
	lines     *fakeFaxLineRepo
	adapter   *FaxAdapter
}

func newFaxHarness(t *testing.T, lines map[string]*domain.FaxLine) *faxHarness {
	t.Helper()

	h := &faxHarness{
		artifacts: newFakeArtifactRepo(),
		blobs:     blob.NewMemoryStore(),
		creator:   &fakeBatchCreator{},
		lines:     &fakeFaxLineRepo{lines: lines},
	}
	adapter, err := NewFaxAdapter(h.lines, h.artifacts, h.blobs, h.creator, newTestConfigDecoder(t), zap.NewNop())
	if err != nil {
		t.Fatalf("NewFaxAdapter() error = %v", err)
	}
	h.adapter = adapter
	return h
}

func TestNewFaxAdapterValidation(t *testing.T) {
	t.Parallel()

	decoder := newTestConfigDecoder(t)
	if _, err := NewFaxAdapter(nil, newFakeArtifactRepo(), blob.NewMemoryStore(), &fakeBatchCreator{}, decoder, nil); err == nil {
		t.Fatal("expected error when fax line repository is nil")
	}
	if _, err := NewFaxAdapter(&fakeFaxLineRepo{}, nil, blob.NewMemoryStore(), &fakeBatchCreator{}, decoder, nil); err == nil {
		t.Fatal("expected error when artifact repository is nil")
	}
	if _, err := NewFaxAdapter(&fakeFaxLineRepo{}, newFakeArtifactRepo(), blob.NewMemoryStore(), &fakeBatchCreator{}, nil, nil); err == nil {
		t.Fatal("expected error when config decoder is nil")
	}
}

func TestFaxAdapterIngestFaxCreatesBatch(t *testing.T) {
	t.Parallel()

	receivedAt := time.Date(2026, 3, 2, 14, 5, 0, 0, time.UTC)
	decoder := newTestConfigDecoder(t)
	h := newFaxHarness(t, map[string]*domain.FaxLine{
		"line-1": {
			FaxLineID:       "line-1",
			OrgInternalName: "acme",
			PhoneNumber:     "+15550100",
			TemplateGUID:    stringPtr("tpl-fax"),
			ConfigCipher:    encodeConfig(t, decoder, map[string]any{"batchNamePrefix": "Cardiology", "flowGuid": "flow-cardio"}),
		},
	})

	artifact, err := h.adapter.IngestFax(context.Background(), "line-1", []byte("%PDF-1.7 fax"), receivedAt)
	if err != nil {
		t.Fatalf("IngestFax() error = %v", err)
	}

	if artifact.ImportBatchGUID == nil || *artifact.ImportBatchGUID != "batch-1" {
		t.Fatalf("ImportBatchGUID = %v, want batch-1", artifact.ImportBatchGUID)
	}
	if artifact.FileName != "fax-20260302T140500Z.pdf" {
		t.Fatalf("FileName = %q", artifact.FileName)
	}
	data, err := h.blobs.Get(context.Background(), artifact.BlobKey)
	if err != nil || string(data) != "%PDF-1.7 fax" {
		t.Fatalf("stored artifact = (%q, %v)", data, err)
	}

	if len(h.creator.inputs) != 1 {
		t.Fatalf("CreateBatch calls = %d, want 1", len(h.creator.inputs))
	}
	in := h.creator.inputs[0]
	if in.BatchName != "Cardiology Fax +15550100 2026-03-02T14:05:00Z" {
		t.Fatalf("BatchName = %q", in.BatchName)
	}
	if in.BatchSource != domain.BatchSourceFax {
		t.Fatalf("BatchSource = %s, want fax", in.BatchSource)
	}
	if in.FlowGUID == nil || *in.FlowGUID != "flow-cardio" {
		t.Fatalf("FlowGUID = %v, want flow-cardio override", in.FlowGUID)
	}
	if in.BatchSourceIDs["faxLineId"] != "line-1" || in.BatchSourceIDs["artifactGuid"] != artifact.ArtifactGUID {
		t.Fatalf("BatchSourceIDs = %v", in.BatchSourceIDs)
	}

	stored, err := h.artifacts.GetByGUID(context.Background(), artifact.ArtifactGUID)
	if err != nil {
		t.Fatalf("GetByGUID() error = %v", err)
	}
	if stored.ImportBatchGUID == nil || *stored.ImportBatchGUID != "batch-1" {
		t.Fatalf("stored ImportBatchGUID = %v, want batch-1", stored.ImportBatchGUID)
	}
}

func TestFaxAdapterIngestFaxKeepsArtifactWhenBatchFails(t *testing.T) {
	t.Parallel()

	garbage := "not-a-ciphertext"
	tests := []struct {
		name       string
		line       *domain.FaxLine
		createErr  error
		wantReason string
	}{
		{
			name:       "no template",
			line:       &domain.FaxLine{FaxLineID: "line-1", OrgInternalName: "acme", PhoneNumber: "+15550100"},
			wantReason: "has no batch template",
		},
		{
			name:       "unreadable config",
			line:       &domain.FaxLine{FaxLineID: "line-1", OrgInternalName: "acme", PhoneNumber: "+15550100", TemplateGUID: stringPtr("tpl"), ConfigCipher: &garbage},
			wantReason: "encrypted config could not be read",
		},
		{
			name:       "batch rejected",
			line:       &domain.FaxLine{FaxLineID: "line-1", OrgInternalName: "acme", PhoneNumber: "+15550100", TemplateGUID: stringPtr("tpl")},
			createErr:  domain.ErrCrossTenant,
			wantReason: "resource belongs to another organization",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newFaxHarness(t, map[string]*domain.FaxLine{"line-1": tt.line})
			if tt.createErr != nil {
				h.creator.createFn = func(ctx context.Context, in service.CreateBatchInput) (*domain.ImportBatch, error) {
					return nil, tt.createErr
				}
			}

			artifact, err := h.adapter.IngestFax(context.Background(), "line-1", []byte("%PDF-1.4"), time.Time{})
			if err != nil {
				t.Fatalf("IngestFax() error = %v, want nil", err)
			}
			if artifact.ImportBatchGUID != nil {
				t.Fatalf("ImportBatchGUID = %v, want nil", *artifact.ImportBatchGUID)
			}

			stored, err := h.artifacts.GetByGUID(context.Background(), artifact.ArtifactGUID)
			if err != nil {
				t.Fatalf("artifact should be stored, GetByGUID() error = %v", err)
			}
			if stored.BatchGenerationError == nil {
				t.Fatal("BatchGenerationError = nil, want annotation")
			}
			reason := *stored.BatchGenerationError
			if !strings.HasPrefix(reason, "unable to generate batch for file: ") || !strings.Contains(reason, tt.wantReason) {
				t.Fatalf("BatchGenerationError = %q, want %q", reason, tt.wantReason)
			}
			if len(h.blobs.Keys()) != 1 {
				t.Fatalf("blob keys = %v, want the raw artifact", h.blobs.Keys())
			}
		})
	}
}

func TestFaxAdapterIngestFaxRejectsBeforeStoring(t *testing.T) {
	t.Parallel()

	h := newFaxHarness(t, map[string]*domain.FaxLine{
		"line-1": {FaxLineID: "line-1", OrgInternalName: "acme", PhoneNumber: "+15550100"},
	})

	tests := []struct {
		name    string
		lineID  string
		data    []byte
		wantErr error
	}{
		{name: "missing line id", lineID: " ", data: []byte("x"), wantErr: domain.ErrValidation},
		{name: "unknown line", lineID: "line-9", data: []byte("x"), wantErr: domain.ErrNotFound},
		{name: "empty fax", lineID: "line-1", data: nil, wantErr: domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.adapter.IngestFax(context.Background(), tt.lineID, tt.data, time.Time{})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("IngestFax() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if h.artifacts.count() != 0 || len(h.blobs.Keys()) != 0 {
		t.Fatalf("stored artifacts = %d, blobs = %d, want none", h.artifacts.count(), len(h.blobs.Keys()))
	}
}
