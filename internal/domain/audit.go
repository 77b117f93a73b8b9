package domain

import (
	"strconv"
	"time"
)

// AuditEventType names the structured events emitted by record processing.
type AuditEventType string

const (
	AuditEventRecordProcessingSucceeded AuditEventType = "record_processing_succeeded"
	AuditEventRecordProcessingFailed    AuditEventType = "record_processing_failed"
)

func (t AuditEventType) String() string { return string(t) }

// AuditEvent is an append-only entry in the audit trail.
type AuditEvent struct {
	EventGUID                  string
	EventType                  AuditEventType
	ImportBatchGUID            string
	ImportBatchRecordGUID      string
	ImportBatchGUIDRecordIndex string
	OrgInternalName            string
	EventData                  map[string]any
	CreatedAt                  time.Time
}

// RecordCoordinate joins a batch GUID and record index into the key audit
// consumers use to address a single record.
func RecordCoordinate(importBatchGUID string, recordIndex int) string {
	return importBatchGUID + "#" + strconv.Itoa(recordIndex)
}
