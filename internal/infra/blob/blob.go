package blob

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kursadbilgin/import-engine/internal/domain"
)

var (
	ErrObjectNotFound = fmt.Errorf("%w: blob object", domain.ErrNotFound)
	ErrObjectExists   = fmt.Errorf("%w: blob object already exists", domain.ErrConflict)
)

// Store persists opaque payloads under string keys within a single bucket.
type Store interface {
	// PutUnique writes data and fails with ErrObjectExists if the key is taken.
	PutUnique(ctx context.Context, key string, data []byte) error
	// Put writes data, replacing any existing object.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns ErrObjectNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
}

func BatchDataKey(org, importBatchGUID string) string {
	return fmt.Sprintf("%s/%s/batch-data", org, importBatchGUID)
}

func RecordDataKey(org, importBatchGUID string, recordIndex int) string {
	return fmt.Sprintf("%s/%s/%s/record-data.json", org, importBatchGUID, strconv.Itoa(recordIndex))
}

func DataEntryKey(org, importBatchGUID string, recordIndex int) string {
	return fmt.Sprintf("%s/%s/%s/data-entry.json", org, importBatchGUID, strconv.Itoa(recordIndex))
}

func ArtifactKey(org string, source domain.ArtifactSource, artifactGUID string) string {
	return fmt.Sprintf("%s/artifacts/%s/%s", org, source, artifactGUID)
}
