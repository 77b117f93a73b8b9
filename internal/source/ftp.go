package source

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/kursadbilgin/import-engine/internal/cipher"
	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/infra/blob"
	"github.com/kursadbilgin/import-engine/internal/observability"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"go.uber.org/zap"
)

// FtpAdapter ingests files collected from an organization's FTP sites.
type FtpAdapter struct {
	sites    repository.FtpSiteRepository
	ingestor *artifactIngestor
}

func NewFtpAdapter(
	sites repository.FtpSiteRepository,
	artifacts repository.ArtifactRepository,
	blobs blob.Store,
	batches BatchCreator,
	configs *cipher.ConfigDecoder,
	logger *zap.Logger,
) (*FtpAdapter, error) {
	if sites == nil {
		return nil, fmt.Errorf("ftp site repository is required")
	}
	ingestor, err := newArtifactIngestor(artifacts, blobs, batches, configs, logger)
	if err != nil {
		return nil, err
	}
	return &FtpAdapter{sites: sites, ingestor: ingestor}, nil
}

func (a *FtpAdapter) SetMetrics(metrics *observability.Metrics) {
	if a == nil {
		return
	}
	a.ingestor.metrics = metrics
}

// IngestFile stores a collected file and generates a batch from the site's template.
func (a *FtpAdapter) IngestFile(ctx context.Context, ftpSiteID, fileName string, data []byte, receivedAt time.Time) (*domain.InboundArtifact, error) {
	if strings.TrimSpace(ftpSiteID) == "" {
		return nil, fmt.Errorf("%w: ftpSiteId is required", domain.ErrValidation)
	}
	fileName = path.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		return nil, fmt.Errorf("%w: fileName is required", domain.ErrValidation)
	}

	site, err := a.sites.GetByID(ctx, ftpSiteID)
	if err != nil {
		return nil, err
	}

	return a.ingestor.ingest(ctx, inboundFile{
		source:       domain.ArtifactSourceFtp,
		sourceID:     site.FtpSiteID,
		org:          site.OrgInternalName,
		facilityID:   site.FacilityID,
		fileName:     fileName,
		data:         data,
		receivedAt:   receivedAt,
		templateGUID: site.TemplateGUID,
		configCipher: site.ConfigCipher,
		sourceIDs: map[string]string{
			"ftpSiteId": site.FtpSiteID,
			"fileName":  fileName,
		},
		defaultName: fileName,
	})
}
