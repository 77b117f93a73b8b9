package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/infra/blob"
)

// dataEntryDocument is the blob representation of a record's data-entry payload.
type dataEntryDocument struct {
	FieldValues       map[string]any `json:"fieldValues"`
	TotalFieldCount   int            `json:"totalFieldCount"`
	InvalidFieldCount int            `json:"invalidFieldCount"`
}

func storeRecordData(ctx context.Context, blobs blob.Store, rec *domain.ImportBatchRecord) error {
	body, err := json.Marshal(rec.RecordData)
	if err != nil {
		return fmt.Errorf("%w: record data is not serializable: %v", domain.ErrValidation, err)
	}
	key := blob.RecordDataKey(rec.OrgInternalName, rec.ImportBatchGUID, rec.RecordIndex)
	if err := blobs.PutUnique(ctx, key, body); err != nil {
		return fmt.Errorf("failed to store record data: %w", err)
	}
	return nil
}

func loadRecordData(ctx context.Context, blobs blob.Store, rec *domain.ImportBatchRecord) (map[string]any, error) {
	body, err := blobs.Get(ctx, blob.RecordDataKey(rec.OrgInternalName, rec.ImportBatchGUID, rec.RecordIndex))
	if err != nil {
		return nil, err
	}
	data := map[string]any{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to decode record data: %w", err)
	}
	return data, nil
}

// loadDataEntry returns the stored data-entry document. A missing object means
// no data has been entered yet and yields an empty document.
func loadDataEntry(ctx context.Context, blobs blob.Store, rec *domain.ImportBatchRecord) (dataEntryDocument, error) {
	doc := dataEntryDocument{FieldValues: map[string]any{}}

	body, err := blobs.Get(ctx, blob.DataEntryKey(rec.OrgInternalName, rec.ImportBatchGUID, rec.RecordIndex))
	if err != nil {
		if errors.Is(err, blob.ErrObjectNotFound) {
			return doc, nil
		}
		return doc, fmt.Errorf("failed to load data entry: %w", err)
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return doc, fmt.Errorf("failed to decode data entry: %w", err)
	}
	if doc.FieldValues == nil {
		doc.FieldValues = map[string]any{}
	}
	return doc, nil
}

func storeDataEntry(ctx context.Context, blobs blob.Store, rec *domain.ImportBatchRecord, doc dataEntryDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: data entry is not serializable: %v", domain.ErrValidation, err)
	}
	key := blob.DataEntryKey(rec.OrgInternalName, rec.ImportBatchGUID, rec.RecordIndex)
	if err := blobs.Put(ctx, key, body); err != nil {
		return fmt.Errorf("failed to store data entry: %w", err)
	}
	return nil
}
