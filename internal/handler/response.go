package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/observability"
)

type batchResponse struct {
	ImportBatchGUID      string            `json:"importBatchGuid"`
	OrgInternalName      string            `json:"orgInternalName"`
	FacilityID           *string           `json:"facilityId,omitempty"`
	BatchName            string            `json:"batchName"`
	BatchSource          string            `json:"batchSource"`
	BatchSourceIDs       map[string]string `json:"batchSourceIds,omitempty"`
	BatchDataType        string            `json:"batchDataType"`
	BatchDataTypeOptions map[string]any    `json:"batchDataTypeOptions,omitempty"`
	RequiresDataEntry    bool              `json:"requiresDataEntry"`
	FlowGUID             *string           `json:"flowGuid,omitempty"`
	BatchStatus          string            `json:"batchStatus"`
	StatusCounts         map[string]int    `json:"statusCounts"`
	SearchKey            *string           `json:"searchKey,omitempty"`
	AssignedTo           *string           `json:"assignedTo,omitempty"`
	ReceivedAt           time.Time         `json:"receivedAt"`
	CreatedAt            time.Time         `json:"createdAt"`
	LastUpdatedAt        time.Time         `json:"lastUpdatedAt"`
	CompletedAt          *time.Time        `json:"completedAt,omitempty"`
}

type recordResponse struct {
	ImportBatchGUID         string                             `json:"importBatchGuid"`
	RecordIndex             int                                `json:"recordIndex"`
	ImportBatchRecordGUID   string                             `json:"importBatchRecordGuid"`
	OrgInternalName         string                             `json:"orgInternalName"`
	FacilityID              *string                            `json:"facilityId,omitempty"`
	RecordDataType          string                             `json:"recordDataType"`
	RecordData              map[string]any                     `json:"recordData,omitempty"`
	RecordStatus            string                             `json:"recordStatus"`
	RecordOrder             int                                `json:"recordOrder"`
	DataEntryData           map[string]any                     `json:"dataEntryData,omitempty"`
	DataEntryDataIndicated  bool                               `json:"dataEntryDataIndicated"`
	DataEntryErrorFields    []string                           `json:"dataEntryErrorFields,omitempty"`
	DataEntryInvalidFields  []string                           `json:"dataEntryInvalidFields,omitempty"`
	DiscardReason           *string                            `json:"discardReason,omitempty"`
	PageUpdateResults       map[string]domain.PageUpdateResult `json:"pageUpdateResults,omitempty"`
	SearchKey               *string                            `json:"searchKey,omitempty"`
	SecondarySearchKey      *string                            `json:"secondarySearchKey,omitempty"`
	ProcessingFailureReason *string                            `json:"processingFailureReason,omitempty"`
	LinkedEncounterIDs      []string                           `json:"linkedEncounterIds,omitempty"`
	CreatedAt               time.Time                          `json:"createdAt"`
	LastUpdatedAt           time.Time                          `json:"lastUpdatedAt"`
	CompletedAt             *time.Time                         `json:"completedAt,omitempty"`
}

type recordStatusResponse struct {
	ImportBatchRecordGUID string `json:"importBatchRecordGuid"`
	RecordIndex           int    `json:"recordIndex"`
	RecordStatus          string `json:"recordStatus"`
}

type listRecordsResponse struct {
	ImportBatchGUID string                 `json:"importBatchGuid"`
	Data            []recordStatusResponse `json:"data"`
}

type processingResponse struct {
	ImportBatchGUID string         `json:"importBatchGuid"`
	RecordIndex     int            `json:"recordIndex"`
	Success         bool           `json:"success"`
	FlowGUID        string         `json:"flowGuid,omitempty"`
	FlowName        string         `json:"flowName,omitempty"`
	FlowType        string         `json:"flowType,omitempty"`
	FlowVersion     int            `json:"flowVersion,omitempty"`
	Output          map[string]any `json:"output,omitempty"`
	EncounterIDs    []string       `json:"encounterIds,omitempty"`
	FailureReason   string         `json:"failureReason,omitempty"`
	FailureStack    string         `json:"failureStack,omitempty"`
}

type artifactResponse struct {
	ArtifactGUID         string    `json:"artifactGuid"`
	Source               string    `json:"source"`
	SourceID             string    `json:"sourceId"`
	OrgInternalName      string    `json:"orgInternalName"`
	FileName             string    `json:"fileName"`
	ContentLength        int64     `json:"contentLength"`
	ReceivedAt           time.Time `json:"receivedAt"`
	ImportBatchGUID      *string   `json:"importBatchGuid,omitempty"`
	BatchGenerationError *string   `json:"batchGenerationError,omitempty"`
}

func toBatchResponse(b *domain.ImportBatch) batchResponse {
	if b == nil {
		return batchResponse{}
	}

	return batchResponse{
		ImportBatchGUID:      b.ImportBatchGUID,
		OrgInternalName:      b.OrgInternalName,
		FacilityID:           b.FacilityID,
		BatchName:            b.BatchName,
		BatchSource:          b.BatchSource.String(),
		BatchSourceIDs:       b.BatchSourceIDs,
		BatchDataType:        b.BatchDataType.String(),
		BatchDataTypeOptions: b.BatchDataTypeOptions,
		RequiresDataEntry:    b.RequiresDataEntry,
		FlowGUID:             b.FlowGUID,
		BatchStatus:          b.BatchStatus.String(),
		StatusCounts:         b.StatusCounts.AsMap(),
		SearchKey:            b.SearchKey,
		AssignedTo:           b.AssignedTo,
		ReceivedAt:           b.ReceivedAt,
		CreatedAt:            b.CreatedAt,
		LastUpdatedAt:        b.LastUpdatedAt,
		CompletedAt:          b.CompletedAt,
	}
}

func toRecordResponse(r *domain.ImportBatchRecord) recordResponse {
	if r == nil {
		return recordResponse{}
	}

	return recordResponse{
		ImportBatchGUID:         r.ImportBatchGUID,
		RecordIndex:             r.RecordIndex,
		ImportBatchRecordGUID:   r.ImportBatchRecordGUID,
		OrgInternalName:         r.OrgInternalName,
		FacilityID:              r.FacilityID,
		RecordDataType:          r.RecordDataType.String(),
		RecordData:              r.RecordData,
		RecordStatus:            r.RecordStatus.String(),
		RecordOrder:             r.RecordOrder,
		DataEntryData:           r.DataEntryData,
		DataEntryDataIndicated:  r.DataEntryDataIndicated,
		DataEntryErrorFields:    r.DataEntryErrorFields,
		DataEntryInvalidFields:  r.DataEntryInvalidFields,
		DiscardReason:           r.DiscardReason,
		PageUpdateResults:       r.PageUpdateResults,
		SearchKey:               r.SearchKey,
		SecondarySearchKey:      r.SecondarySearchKey,
		ProcessingFailureReason: r.ProcessingFailureReason,
		LinkedEncounterIDs:      r.LinkedEncounterIDs,
		CreatedAt:               r.CreatedAt,
		LastUpdatedAt:           r.LastUpdatedAt,
		CompletedAt:             r.CompletedAt,
	}
}

func toRecordStatusResponses(statuses []domain.RecordStatusResult) []recordStatusResponse {
	responses := make([]recordStatusResponse, 0, len(statuses))
	for _, s := range statuses {
		responses = append(responses, recordStatusResponse{
			ImportBatchRecordGUID: s.ImportBatchRecordGUID,
			RecordIndex:           s.RecordIndex,
			RecordStatus:          s.RecordStatus.String(),
		})
	}
	return responses
}

func toProcessingResponse(r *domain.ProcessingResult) processingResponse {
	if r == nil {
		return processingResponse{}
	}

	return processingResponse{
		ImportBatchGUID: r.ImportBatchGUID,
		RecordIndex:     r.RecordIndex,
		Success:         r.Success,
		FlowGUID:        r.FlowGUID,
		FlowName:        r.FlowName,
		FlowType:        r.FlowType.String(),
		FlowVersion:     r.FlowVersion,
		Output:          r.Output,
		EncounterIDs:    r.EncounterIDs,
		FailureReason:   r.FailureReason,
		FailureStack:    r.FailureStack,
	}
}

func toArtifactResponse(a *domain.InboundArtifact) artifactResponse {
	if a == nil {
		return artifactResponse{}
	}

	return artifactResponse{
		ArtifactGUID:         a.ArtifactGUID,
		Source:               string(a.Source),
		SourceID:             a.SourceID,
		OrgInternalName:      a.OrgInternalName,
		FileName:             a.FileName,
		ContentLength:        a.ContentLength,
		ReceivedAt:           a.ReceivedAt,
		ImportBatchGUID:      a.ImportBatchGUID,
		BatchGenerationError: a.BatchGenerationError,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

// requestContext is the request's user context carrying its correlation id.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if correlationID := requestCorrelationID(c); correlationID != "" {
		ctx = observability.WithCorrelationID(ctx, correlationID)
	}
	return ctx
}
