package domain

import (
	"fmt"
	"strings"
	"time"
)

// RecordStatus represents the lifecycle state of an import batch record.
type RecordStatus string

const (
	RecordStatusPendingDataEntry   RecordStatus = "pending_data_entry"
	RecordStatusPendingProcessing  RecordStatus = "pending_processing"
	RecordStatusProcessing         RecordStatus = "processing"
	RecordStatusProcessingComplete RecordStatus = "processing_complete"
	RecordStatusProcessingFailed   RecordStatus = "processing_failed"
	RecordStatusPendingReview      RecordStatus = "pending_review"
	RecordStatusDiscarded          RecordStatus = "discarded"
	RecordStatusIgnored            RecordStatus = "ignored"
)

func (s RecordStatus) String() string { return string(s) }

func (s RecordStatus) IsValid() bool {
	switch s {
	case RecordStatusPendingDataEntry,
		RecordStatusPendingProcessing,
		RecordStatusProcessing,
		RecordStatusProcessingComplete,
		RecordStatusProcessingFailed,
		RecordStatusPendingReview,
		RecordStatusDiscarded,
		RecordStatusIgnored:
		return true
	}
	return false
}

// IsTerminal reports whether the status counts toward batch completion.
func (s RecordStatus) IsTerminal() bool {
	switch s {
	case RecordStatusProcessingComplete, RecordStatusDiscarded, RecordStatusIgnored:
		return true
	}
	return false
}

// ClaimableStatuses are the statuses a dispatch may claim regardless of claim
// age. A processing record is claimable only once its claim is stale.
func ClaimableStatuses() []RecordStatus {
	return []RecordStatus{RecordStatusPendingProcessing, RecordStatusProcessingFailed}
}

func (s RecordStatus) isClaimable() bool {
	for _, claimable := range ClaimableStatuses() {
		if s == claimable {
			return true
		}
	}
	return false
}

func ParseRecordStatusFromString(s string) (RecordStatus, error) {
	st := RecordStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid record status %q", ErrValidation, s)
	}
	return st, nil
}

// RecordDataType describes the channel-specific payload carried by a record.
type RecordDataType string

const (
	RecordDataTypeExternalWebForm RecordDataType = "ExternalWebForm"
	RecordDataTypeDsv             RecordDataType = "Dsv"
	RecordDataTypePdf             RecordDataType = "Pdf"
	RecordDataTypePdfBitmapPage   RecordDataType = "PdfBitmapPage"
)

func (t RecordDataType) String() string { return string(t) }

func (t RecordDataType) IsValid() bool {
	switch t {
	case RecordDataTypeExternalWebForm, RecordDataTypeDsv, RecordDataTypePdf, RecordDataTypePdfBitmapPage:
		return true
	}
	return false
}

func ParseRecordDataTypeFromString(s string) (RecordDataType, error) {
	trimmed := strings.TrimSpace(s)
	for _, t := range []RecordDataType{
		RecordDataTypeExternalWebForm,
		RecordDataTypeDsv,
		RecordDataTypePdf,
		RecordDataTypePdfBitmapPage,
	} {
		if strings.EqualFold(trimmed, t.String()) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: invalid record data type %q", ErrValidation, s)
}

// DefaultStaleClaimWindow is how long a record may sit in processing before
// another dispatch is allowed to reclaim it.
const DefaultStaleClaimWindow = 5 * time.Second

// PageUpdateResult records the last data-entry submission for a form page.
type PageUpdateResult struct {
	LastUpdated  time.Time `json:"lastUpdated"`
	ReporterName string    `json:"reporterName"`
}

// ImportBatchRecord is one discrete data item within a batch. RecordData and
// DataEntryData live in blob storage and are only populated when explicitly loaded.
type ImportBatchRecord struct {
	ImportBatchGUID         string
	RecordIndex             int
	ImportBatchRecordGUID   string
	OrgInternalName         string
	FacilityID              *string
	RecordDataType          RecordDataType
	RecordData              map[string]any
	RecordStatus            RecordStatus
	RecordOrder             int
	DataEntryData           map[string]any
	DataEntryDataIndicated  bool
	DataEntryErrorFields    []string
	DataEntryInvalidFields  []string
	Notes                   *string
	DiscardReason           *string
	PageUpdateResults       map[string]PageUpdateResult
	SearchKey               *string
	SecondarySearchKey      *string
	ProcessingFailureReason *string
	LinkedEncounterIDs      []string
	CreatedAt               time.Time
	LastUpdatedAt           time.Time
	CompletedAt             *time.Time
	ProcessingStartedAt     *time.Time
}

func (r *ImportBatchRecord) Validate() error {
	if strings.TrimSpace(r.ImportBatchGUID) == "" {
		return fmt.Errorf("%w: importBatchGuid is required", ErrValidation)
	}
	if strings.TrimSpace(r.ImportBatchRecordGUID) == "" {
		return fmt.Errorf("%w: importBatchRecordGuid is required", ErrValidation)
	}
	if strings.TrimSpace(r.OrgInternalName) == "" {
		return fmt.Errorf("%w: orgInternalName is required", ErrValidation)
	}
	if r.RecordIndex < 0 {
		return fmt.Errorf("%w: recordIndex must be >= 0", ErrValidation)
	}
	if !r.RecordDataType.IsValid() {
		return fmt.Errorf("%w: invalid record data type %q", ErrValidation, r.RecordDataType)
	}
	if !r.RecordStatus.IsValid() {
		return fmt.Errorf("%w: invalid record status %q", ErrValidation, r.RecordStatus)
	}
	return nil
}

// IsProcessable reports whether a dispatch may pick the record up at now.
// A processing record counts as abandoned once its claim is older than staleAfter.
func (r *ImportBatchRecord) IsProcessable(now time.Time, staleAfter time.Duration) bool {
	if r == nil {
		return false
	}
	if r.RecordStatus.isClaimable() {
		return true
	}
	if r.RecordStatus != RecordStatusProcessing {
		return false
	}
	if r.ProcessingStartedAt == nil {
		return true
	}
	return now.Sub(*r.ProcessingStartedAt) > staleAfter
}

// Projection returns the lightweight status view of the record.
func (r *ImportBatchRecord) Projection() RecordStatusResult {
	return RecordStatusResult{
		ImportBatchGUID:       r.ImportBatchGUID,
		ImportBatchRecordGUID: r.ImportBatchRecordGUID,
		RecordIndex:           r.RecordIndex,
		RecordStatus:          r.RecordStatus,
	}
}

// RecordStatusResult is the status-only projection used for aggregation.
type RecordStatusResult struct {
	ImportBatchGUID       string
	ImportBatchRecordGUID string
	RecordIndex           int
	RecordStatus          RecordStatus
}
