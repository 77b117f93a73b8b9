package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/service"
)

type BatchService interface {
	CreateExternalWebFormBatch(ctx context.Context, in service.ExternalWebFormBatchInput) (*domain.ImportBatch, error)
	CreateBatch(ctx context.Context, in service.CreateBatchInput) (*domain.ImportBatch, error)
	GetBatch(ctx context.Context, importBatchGUID string) (*domain.ImportBatch, error)
	ListBatchRecords(ctx context.Context, importBatchGUID string) ([]domain.RecordStatusResult, error)
	DiscardBatch(ctx context.Context, importBatchGUID, reason string) (*domain.ImportBatch, error)
	RecalculateBatchStatus(ctx context.Context, importBatchGUID string) (*domain.ImportBatch, error)
	CreateRecord(ctx context.Context, in service.CreateRecordInput) (*domain.ImportBatchRecord, error)
	GetRecord(ctx context.Context, importBatchGUID string, recordIndex int) (*domain.ImportBatchRecord, error)
	SaveDataEntry(ctx context.Context, in service.SaveDataEntryInput) (*domain.ImportBatchRecord, error)
	SetRecordStatus(ctx context.Context, importBatchGUID string, recordIndex int, status domain.RecordStatus, reason *string) (*domain.ImportBatch, error)
}

var _ BatchService = (*service.ImportBatchService)(nil)

type BatchHandler struct {
	service   BatchService
	processor service.RecordProcessingService
}

func NewBatchHandler(svc BatchService, processor service.RecordProcessingService) (*BatchHandler, error) {
	if svc == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	if processor == nil {
		return nil, fmt.Errorf("record processor is required")
	}
	return &BatchHandler{service: svc, processor: processor}, nil
}

func RegisterBatchRoutes(router fiber.Router, svc BatchService, processor service.RecordProcessingService) error {
	h, err := NewBatchHandler(svc, processor)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/batches", h.CreateBatch)
	v1.Post("/batches/web-form", h.CreateWebFormBatch)
	v1.Get("/batches/:batchGuid", h.GetBatch)
	v1.Post("/batches/:batchGuid/discard", h.DiscardBatch)
	v1.Post("/batches/:batchGuid/recalculate", h.RecalculateBatch)
	v1.Get("/batches/:batchGuid/records", h.ListRecords)
	v1.Post("/batches/:batchGuid/records", h.CreateRecord)
	v1.Get("/batches/:batchGuid/records/:recordIndex", h.GetRecord)
	v1.Put("/batches/:batchGuid/records/:recordIndex/data-entry", h.SaveDataEntry)
	v1.Put("/batches/:batchGuid/records/:recordIndex/status", h.SetRecordStatus)
	v1.Post("/batches/:batchGuid/records/:recordIndex/process", h.ProcessRecord)

	return nil
}

type createWebFormBatchRequest struct {
	BatchName       string            `json:"batchName"`
	OrgInternalName string            `json:"orgInternalName"`
	FacilityID      *string           `json:"facilityId"`
	BatchSourceIDs  map[string]string `json:"batchSourceIds"`
	FlowGUID        string            `json:"flowGuid"`
	SearchKey       *string           `json:"searchKey"`
	ReceivedAt      *time.Time        `json:"receivedAt"`
}

// createBatchRequest carries the raw payload base64 encoded in data.
type createBatchRequest struct {
	OrgInternalName      string            `json:"orgInternalName"`
	FacilityID           *string           `json:"facilityId"`
	BatchName            string            `json:"batchName"`
	BatchSource          string            `json:"batchSource"`
	BatchSourceIDs       map[string]string `json:"batchSourceIds"`
	TemplateGUID         *string           `json:"templateGuid"`
	FlowGUID             *string           `json:"flowGuid"`
	BatchDataType        string            `json:"batchDataType"`
	BatchDataTypeOptions map[string]any    `json:"batchDataTypeOptions"`
	RequiresDataEntry    bool              `json:"requiresDataEntry"`
	Data                 []byte            `json:"data"`
	ReceivedAt           *time.Time        `json:"receivedAt"`
	SearchKey            *string           `json:"searchKey"`
}

type discardRequest struct {
	Reason string `json:"reason"`
}

type createRecordRequest struct {
	OrgInternalName    string         `json:"orgInternalName"`
	FacilityID         *string        `json:"facilityId"`
	RecordData         map[string]any `json:"recordData"`
	RecordDataType     string         `json:"recordDataType"`
	SearchKey          *string        `json:"searchKey"`
	SecondarySearchKey *string        `json:"secondarySearchKey"`
}

type saveDataEntryRequest struct {
	Page              string         `json:"page"`
	FieldValues       map[string]any `json:"fieldValues"`
	ReporterName      string         `json:"reporterName"`
	TotalFieldCount   int            `json:"totalFieldCount"`
	InvalidFieldCount int            `json:"invalidFieldCount"`
	AppendingFields   []string       `json:"appendingFields"`
	InvalidFields     []string       `json:"invalidFields"`
	ErrorFields       []string       `json:"errorFields"`
}

type setRecordStatusRequest struct {
	Status string  `json:"status"`
	Reason *string `json:"reason"`
}

func (h *BatchHandler) CreateWebFormBatch(c *fiber.Ctx) error {
	var req createWebFormBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	batch, err := h.service.CreateExternalWebFormBatch(requestContext(c), service.ExternalWebFormBatchInput{
		BatchName:       req.BatchName,
		OrgInternalName: req.OrgInternalName,
		FacilityID:      req.FacilityID,
		BatchSourceIDs:  req.BatchSourceIDs,
		FlowGUID:        req.FlowGUID,
		SearchKey:       req.SearchKey,
		ReceivedAt:      req.ReceivedAt,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) CreateBatch(c *fiber.Ctx) error {
	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	source, err := domain.ParseBatchSourceFromString(req.BatchSource)
	if err != nil {
		return toHTTPError(err)
	}
	in := service.CreateBatchInput{
		OrgInternalName:      req.OrgInternalName,
		FacilityID:           req.FacilityID,
		BatchName:            req.BatchName,
		BatchSource:          source,
		BatchSourceIDs:       req.BatchSourceIDs,
		TemplateGUID:         req.TemplateGUID,
		FlowGUID:             req.FlowGUID,
		BatchDataTypeOptions: req.BatchDataTypeOptions,
		RequiresDataEntry:    req.RequiresDataEntry,
		Data:                 req.Data,
		SearchKey:            req.SearchKey,
	}
	if strings.TrimSpace(req.BatchDataType) != "" {
		dataType, err := domain.ParseBatchDataTypeFromString(req.BatchDataType)
		if err != nil {
			return toHTTPError(err)
		}
		in.BatchDataType = dataType
	}
	if req.ReceivedAt != nil {
		in.ReceivedAt = *req.ReceivedAt
	}

	batch, err := h.service.CreateBatch(requestContext(c), in)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	batch, err := h.service.GetBatch(requestContext(c), strings.TrimSpace(c.Params("batchGuid")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) DiscardBatch(c *fiber.Ctx) error {
	var req discardRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	batch, err := h.service.DiscardBatch(requestContext(c), strings.TrimSpace(c.Params("batchGuid")), req.Reason)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) RecalculateBatch(c *fiber.Ctx) error {
	batch, err := h.service.RecalculateBatchStatus(requestContext(c), strings.TrimSpace(c.Params("batchGuid")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) ListRecords(c *fiber.Ctx) error {
	batchGUID := strings.TrimSpace(c.Params("batchGuid"))
	statuses, err := h.service.ListBatchRecords(requestContext(c), batchGUID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listRecordsResponse{
		ImportBatchGUID: batchGUID,
		Data:            toRecordStatusResponses(statuses),
	})
}

func (h *BatchHandler) CreateRecord(c *fiber.Ctx) error {
	var req createRecordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	dataType, err := domain.ParseRecordDataTypeFromString(req.RecordDataType)
	if err != nil {
		return toHTTPError(err)
	}

	record, err := h.service.CreateRecord(requestContext(c), service.CreateRecordInput{
		ImportBatchGUID:    strings.TrimSpace(c.Params("batchGuid")),
		OrgInternalName:    req.OrgInternalName,
		FacilityID:         req.FacilityID,
		RecordData:         req.RecordData,
		RecordDataType:     dataType,
		SearchKey:          req.SearchKey,
		SecondarySearchKey: req.SecondarySearchKey,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toRecordResponse(record))
}

func (h *BatchHandler) GetRecord(c *fiber.Ctx) error {
	index, err := recordIndexParam(c)
	if err != nil {
		return toHTTPError(err)
	}

	record, err := h.service.GetRecord(requestContext(c), strings.TrimSpace(c.Params("batchGuid")), index)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toRecordResponse(record))
}

func (h *BatchHandler) SaveDataEntry(c *fiber.Ctx) error {
	index, err := recordIndexParam(c)
	if err != nil {
		return toHTTPError(err)
	}
	var req saveDataEntryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	record, err := h.service.SaveDataEntry(requestContext(c), service.SaveDataEntryInput{
		ImportBatchGUID:   strings.TrimSpace(c.Params("batchGuid")),
		RecordIndex:       index,
		Page:              req.Page,
		FieldValues:       req.FieldValues,
		ReporterName:      req.ReporterName,
		TotalFieldCount:   req.TotalFieldCount,
		InvalidFieldCount: req.InvalidFieldCount,
		AppendingFields:   req.AppendingFields,
		InvalidFields:     req.InvalidFields,
		ErrorFields:       req.ErrorFields,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toRecordResponse(record))
}

func (h *BatchHandler) SetRecordStatus(c *fiber.Ctx) error {
	index, err := recordIndexParam(c)
	if err != nil {
		return toHTTPError(err)
	}
	var req setRecordStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	status, err := domain.ParseRecordStatusFromString(req.Status)
	if err != nil {
		return toHTTPError(err)
	}

	batch, err := h.service.SetRecordStatus(requestContext(c), strings.TrimSpace(c.Params("batchGuid")), index, status, req.Reason)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

// ProcessRecord runs the record's flow synchronously. A failed flow is still
// a 200 with success=false.
func (h *BatchHandler) ProcessRecord(c *fiber.Ctx) error {
	index, err := recordIndexParam(c)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.processor.ProcessImportBatchRecord(requestContext(c), strings.TrimSpace(c.Params("batchGuid")), index)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toProcessingResponse(result))
}

func recordIndexParam(c *fiber.Ctx) (int, error) {
	index, err := c.ParamsInt("recordIndex", -1)
	if err != nil || index < 0 {
		return 0, fmt.Errorf("%w: recordIndex must be a non-negative integer", domain.ErrValidation)
	}
	return index, nil
}
