package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/import-engine/internal/cipher"
	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/infra/blob"
	"github.com/kursadbilgin/import-engine/internal/observability"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"go.uber.org/zap"
)

// FaxAdapter ingests faxes received on an organization's fax lines.
type FaxAdapter struct {
	lines    repository.FaxLineRepository
	ingestor *artifactIngestor
}

func NewFaxAdapter(
	lines repository.FaxLineRepository,
	artifacts repository.ArtifactRepository,
	blobs blob.Store,
	batches BatchCreator,
	configs *cipher.ConfigDecoder,
	logger *zap.Logger,
) (*FaxAdapter, error) {
	if lines == nil {
		return nil, fmt.Errorf("fax line repository is required")
	}
	ingestor, err := newArtifactIngestor(artifacts, blobs, batches, configs, logger)
	if err != nil {
		return nil, err
	}
	return &FaxAdapter{lines: lines, ingestor: ingestor}, nil
}

func (a *FaxAdapter) SetMetrics(metrics *observability.Metrics) {
	if a == nil {
		return
	}
	a.ingestor.metrics = metrics
}

// IngestFax stores a received fax and generates a batch from the line's template.
func (a *FaxAdapter) IngestFax(ctx context.Context, faxLineID string, data []byte, receivedAt time.Time) (*domain.InboundArtifact, error) {
	if strings.TrimSpace(faxLineID) == "" {
		return nil, fmt.Errorf("%w: faxLineId is required", domain.ErrValidation)
	}

	line, err := a.lines.GetByID(ctx, faxLineID)
	if err != nil {
		return nil, err
	}

	stamp := receivedAt
	if stamp.IsZero() {
		stamp = a.ingestor.now()
	}

	return a.ingestor.ingest(ctx, inboundFile{
		source:       domain.ArtifactSourceFax,
		sourceID:     line.FaxLineID,
		org:          line.OrgInternalName,
		facilityID:   line.FacilityID,
		fileName:     fmt.Sprintf("fax-%s.pdf", stamp.UTC().Format("20060102T150405Z")),
		data:         data,
		receivedAt:   receivedAt,
		templateGUID: line.TemplateGUID,
		configCipher: line.ConfigCipher,
		sourceIDs: map[string]string{
			"faxLineId":   line.FaxLineID,
			"phoneNumber": line.PhoneNumber,
		},
		defaultName: fmt.Sprintf("Fax %s %s", line.PhoneNumber, stamp.UTC().Format(time.RFC3339)),
	})
}
