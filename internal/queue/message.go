package queue

import (
	"fmt"
	"strings"
)

// Trigger records why a record was queued for processing.
type Trigger string

const (
	TriggerCreated   Trigger = "created"
	TriggerDataEntry Trigger = "data_entry"
	TriggerManual    Trigger = "manual"
	TriggerSweep     Trigger = "sweep"
)

func (t Trigger) IsValid() bool {
	switch t {
	case TriggerCreated, TriggerDataEntry, TriggerManual, TriggerSweep:
		return true
	}
	return false
}

// RecordMessage is the broker payload for record processing.
type RecordMessage struct {
	ImportBatchGUID string  `json:"importBatchGuid"`
	RecordIndex     int     `json:"recordIndex"`
	OrgInternalName string  `json:"orgInternalName"`
	CorrelationID   string  `json:"correlationId,omitempty"`
	Trigger         Trigger `json:"trigger"`
}

func (m RecordMessage) Validate() error {
	if strings.TrimSpace(m.ImportBatchGUID) == "" {
		return fmt.Errorf("importBatchGuid is required")
	}
	if m.RecordIndex < 0 {
		return fmt.Errorf("recordIndex must be >= 0")
	}
	if strings.TrimSpace(m.OrgInternalName) == "" {
		return fmt.Errorf("orgInternalName is required")
	}
	if !m.Trigger.IsValid() {
		return fmt.Errorf("invalid trigger %q", m.Trigger)
	}
	return nil
}

// MessageID identifies a processing request for a record.
func (m RecordMessage) MessageID() string {
	return fmt.Sprintf("%s#%d", m.ImportBatchGUID, m.RecordIndex)
}
