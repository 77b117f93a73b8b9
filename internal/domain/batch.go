package domain

import (
	"fmt"
	"strings"
	"time"
)

// BatchStatus represents the processing state of an import batch.
type BatchStatus string

const (
	BatchStatusProcessing    BatchStatus = "processing"
	BatchStatusPendingReview BatchStatus = "pending_review"
	BatchStatusComplete      BatchStatus = "complete"
	BatchStatusDiscarded     BatchStatus = "discarded"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusProcessing, BatchStatusPendingReview, BatchStatusComplete, BatchStatusDiscarded:
		return true
	}
	return false
}

func ParseBatchStatusFromString(s string) (BatchStatus, error) {
	st := BatchStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid batch status %q", ErrValidation, s)
	}
	return st, nil
}

// BatchSource identifies the ingestion channel a batch arrived through.
type BatchSource string

const (
	BatchSourceFax             BatchSource = "fax"
	BatchSourceFtp             BatchSource = "ftp"
	BatchSourceManual          BatchSource = "manual"
	BatchSourceExternalWebForm BatchSource = "external_web_form"
)

func (s BatchSource) String() string { return string(s) }

func (s BatchSource) IsValid() bool {
	switch s {
	case BatchSourceFax, BatchSourceFtp, BatchSourceManual, BatchSourceExternalWebForm:
		return true
	}
	return false
}

func ParseBatchSourceFromString(s string) (BatchSource, error) {
	src := BatchSource(strings.ToLower(strings.TrimSpace(s)))
	if !src.IsValid() {
		return "", fmt.Errorf("%w: invalid batch source %q", ErrValidation, s)
	}
	return src, nil
}

// BatchDataType describes the shape of the raw payload a batch was created from.
type BatchDataType string

const (
	BatchDataTypePdf  BatchDataType = "pdf"
	BatchDataTypeDsv  BatchDataType = "dsv"
	BatchDataTypeNone BatchDataType = "none"
)

func (t BatchDataType) String() string { return string(t) }

func (t BatchDataType) IsValid() bool {
	switch t {
	case BatchDataTypePdf, BatchDataTypeDsv, BatchDataTypeNone:
		return true
	}
	return false
}

func ParseBatchDataTypeFromString(s string) (BatchDataType, error) {
	t := BatchDataType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid batch data type %q", ErrValidation, s)
	}
	return t, nil
}

// ProcessingTypeFlow is the only processing type batches currently use.
const ProcessingTypeFlow = "flow"

// ImportBatch groups the records produced from one piece of ingested source material.
type ImportBatch struct {
	ImportBatchGUID             string
	OrgInternalName             string
	FacilityID                  *string
	BatchName                   string
	BatchSource                 BatchSource
	BatchSourceIDs              map[string]string
	BatchDataType               BatchDataType
	BatchDataTypeOptions        map[string]any
	RequiresDataEntry           bool
	FlowGUID                    *string
	DataEntryFormDefinitionName *string
	ProcessingType              string
	BatchStatus                 BatchStatus
	StatusCounts                StatusCounts
	SearchKey                   *string
	AssignedTo                  *string
	NextRecordIndex             int
	ReceivedAt                  time.Time
	CreatedAt                   time.Time
	LastUpdatedAt               time.Time
	CompletedAt                 *time.Time
}

func (b *ImportBatch) Validate() error {
	if strings.TrimSpace(b.ImportBatchGUID) == "" {
		return fmt.Errorf("%w: importBatchGuid is required", ErrValidation)
	}
	if strings.TrimSpace(b.OrgInternalName) == "" {
		return fmt.Errorf("%w: orgInternalName is required", ErrValidation)
	}
	if strings.TrimSpace(b.BatchName) == "" {
		return fmt.Errorf("%w: batchName is required", ErrValidation)
	}
	if !b.BatchSource.IsValid() {
		return fmt.Errorf("%w: invalid batch source %q", ErrValidation, b.BatchSource)
	}
	if !b.BatchDataType.IsValid() {
		return fmt.Errorf("%w: invalid batch data type %q", ErrValidation, b.BatchDataType)
	}
	if !b.BatchStatus.IsValid() {
		return fmt.Errorf("%w: invalid batch status %q", ErrValidation, b.BatchStatus)
	}
	if b.ProcessingType != ProcessingTypeFlow {
		return fmt.Errorf("%w: unsupported processing type %q", ErrValidation, b.ProcessingType)
	}
	return nil
}

// HasFlow reports whether the batch references a flow for per-record processing.
func (b *ImportBatch) HasFlow() bool {
	return b != nil && b.FlowGUID != nil && strings.TrimSpace(*b.FlowGUID) != ""
}

// InitialRecordStatus is the status a freshly created record of this batch starts in.
func (b *ImportBatch) InitialRecordStatus() RecordStatus {
	if b.RequiresDataEntry {
		return RecordStatusPendingDataEntry
	}
	return RecordStatusPendingProcessing
}
