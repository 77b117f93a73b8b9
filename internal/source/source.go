// Package source adapts inbound channels (fax lines, FTP sites, web forms)
// into import batches.
package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/import-engine/internal/cipher"
	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/infra/blob"
	"github.com/kursadbilgin/import-engine/internal/observability"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"github.com/kursadbilgin/import-engine/internal/service"
	"go.uber.org/zap"
)

const (
	outcomeBatchCreated = "batch_created"
	outcomeBatchFailed  = "batch_failed"

	configKeyBatchNamePrefix = "batchNamePrefix"
	configKeyFlowGUID        = "flowGuid"
)

// BatchCreator generates batches from raw payloads.
type BatchCreator interface {
	CreateBatch(ctx context.Context, in service.CreateBatchInput) (*domain.ImportBatch, error)
}

var _ BatchCreator = (*service.ImportBatchService)(nil)

// artifactIngestor stores raw inbound files and turns them into batches. The
// artifact is always persisted first; batch generation problems are recorded
// on the artifact instead of failing the ingestion.
type artifactIngestor struct {
	artifacts repository.ArtifactRepository
	blobs     blob.Store
	batches   BatchCreator
	configs   *cipher.ConfigDecoder
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

func newArtifactIngestor(
	artifacts repository.ArtifactRepository,
	blobs blob.Store,
	batches BatchCreator,
	configs *cipher.ConfigDecoder,
	logger *zap.Logger,
) (*artifactIngestor, error) {
	switch {
	case artifacts == nil:
		return nil, fmt.Errorf("artifact repository is required")
	case blobs == nil:
		return nil, fmt.Errorf("blob store is required")
	case batches == nil:
		return nil, fmt.Errorf("batch creator is required")
	case configs == nil:
		return nil, fmt.Errorf("config decoder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &artifactIngestor{
		artifacts: artifacts,
		blobs:     blobs,
		batches:   batches,
		configs:   configs,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// inboundFile is one received file plus the batch settings of its source.
type inboundFile struct {
	source       domain.ArtifactSource
	sourceID     string
	org          string
	facilityID   *string
	fileName     string
	data         []byte
	receivedAt   time.Time
	templateGUID *string
	configCipher *string
	sourceIDs    map[string]string
	defaultName  string
}

func (i *artifactIngestor) ingest(ctx context.Context, in inboundFile) (*domain.InboundArtifact, error) {
	if len(in.data) == 0 {
		return nil, fmt.Errorf("%w: inbound file is empty", domain.ErrValidation)
	}

	receivedAt := in.receivedAt.UTC()
	if in.receivedAt.IsZero() {
		receivedAt = i.now().UTC()
	}

	artifactGUID := uuid.NewString()
	artifact := &domain.InboundArtifact{
		ArtifactGUID:    artifactGUID,
		Source:          in.source,
		SourceID:        in.sourceID,
		OrgInternalName: in.org,
		FileName:        in.fileName,
		BlobKey:         blob.ArtifactKey(in.org, in.source, artifactGUID),
		ContentLength:   int64(len(in.data)),
		ReceivedAt:      receivedAt,
		CreatedAt:       i.now().UTC(),
	}
	if err := artifact.Validate(); err != nil {
		return nil, err
	}

	if err := i.blobs.PutUnique(ctx, artifact.BlobKey, in.data); err != nil {
		return nil, fmt.Errorf("failed to store inbound artifact: %w", err)
	}
	if err := i.artifacts.Create(ctx, artifact); err != nil {
		return nil, fmt.Errorf("failed to record inbound artifact: %w", err)
	}

	logger := observability.WithContextLogger(i.logger, ctx).With(
		zap.String("artifactGuid", artifactGUID),
		zap.String("source", string(in.source)),
		zap.String("sourceId", in.sourceID),
	)

	batch, err := i.generateBatch(ctx, in, artifactGUID, receivedAt)
	if err != nil {
		reason := fmt.Sprintf("unable to generate batch for file: %v", err)
		artifact.BatchGenerationError = &reason
		if annotateErr := i.artifacts.AnnotateFailure(ctx, artifactGUID, reason); annotateErr != nil {
			logger.Error("failed to annotate artifact with batch failure", zap.Error(annotateErr))
		}
		i.metrics.IncArtifactIngested(string(in.source), outcomeBatchFailed)
		logger.Warn("batch generation failed for inbound artifact", zap.Error(err))
		return artifact, nil
	}

	artifact.ImportBatchGUID = &batch.ImportBatchGUID
	if err := i.artifacts.AnnotateBatch(ctx, artifactGUID, batch.ImportBatchGUID); err != nil {
		logger.Error("failed to annotate artifact with batch", zap.Error(err))
	}
	i.metrics.IncArtifactIngested(string(in.source), outcomeBatchCreated)
	logger.Info("inbound artifact ingested", zap.String("importBatchGuid", batch.ImportBatchGUID))

	return artifact, nil
}

func (i *artifactIngestor) generateBatch(ctx context.Context, in inboundFile, artifactGUID string, receivedAt time.Time) (*domain.ImportBatch, error) {
	if in.templateGUID == nil || strings.TrimSpace(*in.templateGUID) == "" {
		return nil, fmt.Errorf("%w: %s %s has no batch template", domain.ErrValidation, in.source, in.sourceID)
	}

	config, err := i.configs.Decode(string(in.source), in.sourceID, in.configCipher)
	if err != nil {
		return nil, err
	}

	name := in.defaultName
	if prefix, ok := config[configKeyBatchNamePrefix].(string); ok && strings.TrimSpace(prefix) != "" {
		name = strings.TrimSpace(prefix) + " " + name
	}

	sourceIDs := make(map[string]string, len(in.sourceIDs)+1)
	for k, v := range in.sourceIDs {
		sourceIDs[k] = v
	}
	sourceIDs["artifactGuid"] = artifactGUID

	input := service.CreateBatchInput{
		OrgInternalName: in.org,
		FacilityID:      in.facilityID,
		BatchName:       name,
		BatchSource:     batchSourceFor(in.source),
		BatchSourceIDs:  sourceIDs,
		TemplateGUID:    in.templateGUID,
		Data:            in.data,
		ReceivedAt:      receivedAt,
	}
	if flowGUID, ok := config[configKeyFlowGUID].(string); ok && strings.TrimSpace(flowGUID) != "" {
		input.FlowGUID = &flowGUID
	}

	return i.batches.CreateBatch(ctx, input)
}

func batchSourceFor(source domain.ArtifactSource) domain.BatchSource {
	if source == domain.ArtifactSourceFtp {
		return domain.BatchSourceFtp
	}
	return domain.BatchSourceFax
}
