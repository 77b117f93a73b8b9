package domain

import "time"

// ProcessingResult is the outcome of dispatching one record through its flow.
// A failed result is a normal return value, not an error.
type ProcessingResult struct {
	ImportBatchGUID       string
	ImportBatchRecordGUID string
	RecordIndex           int
	Success               bool
	FlowGUID              string
	FlowName              string
	FlowType              FlowType
	FlowVersion           int
	Output                map[string]any
	EncounterIDs          []string
	FailureReason         string
	FailureStack          string
	StartedAt             time.Time
	FinishedAt            time.Time
}
