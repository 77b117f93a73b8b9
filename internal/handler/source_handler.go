package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/source"
)

// HeaderReceivedAt optionally carries the RFC3339 time a fax or file arrived.
const HeaderReceivedAt = "X-Received-At"

type FaxIngestor interface {
	IngestFax(ctx context.Context, faxLineID string, data []byte, receivedAt time.Time) (*domain.InboundArtifact, error)
}

type FileIngestor interface {
	IngestFile(ctx context.Context, ftpSiteID, fileName string, data []byte, receivedAt time.Time) (*domain.InboundArtifact, error)
}

type WebFormSubmitter interface {
	Submit(ctx context.Context, sub source.WebFormSubmission) (*domain.ImportBatchRecord, error)
}

var (
	_ FaxIngestor      = (*source.FaxAdapter)(nil)
	_ FileIngestor     = (*source.FtpAdapter)(nil)
	_ WebFormSubmitter = (*source.WebFormAdapter)(nil)
)

type SourceHandler struct {
	fax     FaxIngestor
	ftp     FileIngestor
	webForm WebFormSubmitter
}

func NewSourceHandler(fax FaxIngestor, ftp FileIngestor, webForm WebFormSubmitter) (*SourceHandler, error) {
	switch {
	case fax == nil:
		return nil, fmt.Errorf("fax adapter is required")
	case ftp == nil:
		return nil, fmt.Errorf("ftp adapter is required")
	case webForm == nil:
		return nil, fmt.Errorf("web form adapter is required")
	}
	return &SourceHandler{fax: fax, ftp: ftp, webForm: webForm}, nil
}

func RegisterSourceRoutes(router fiber.Router, fax FaxIngestor, ftp FileIngestor, webForm WebFormSubmitter) error {
	h, err := NewSourceHandler(fax, ftp, webForm)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1/sources")
	v1.Post("/fax-lines/:faxLineId/faxes", h.IngestFax)
	v1.Post("/ftp-sites/:ftpSiteId/files", h.IngestFile)
	v1.Post("/web-forms/submissions", h.SubmitWebForm)

	return nil
}

type webFormSubmissionRequest struct {
	OrgInternalName    string            `json:"orgInternalName"`
	FacilityID         *string           `json:"facilityId"`
	FormName           string            `json:"formName"`
	FlowGUID           string            `json:"flowGuid"`
	SearchKey          *string           `json:"searchKey"`
	SecondarySearchKey *string           `json:"secondarySearchKey"`
	BatchSourceIDs     map[string]string `json:"batchSourceIds"`
	FieldValues        map[string]any    `json:"fieldValues"`
	SubmittedAt        *time.Time        `json:"submittedAt"`
}

// IngestFax accepts the raw fax document as the request body.
func (h *SourceHandler) IngestFax(c *fiber.Ctx) error {
	receivedAt, err := receivedAtHeader(c)
	if err != nil {
		return toHTTPError(err)
	}

	artifact, err := h.fax.IngestFax(requestContext(c), strings.TrimSpace(c.Params("faxLineId")), copyBody(c), receivedAt)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(toArtifactResponse(artifact))
}

// IngestFile accepts the raw file as the request body; the name comes from
// the fileName query parameter.
func (h *SourceHandler) IngestFile(c *fiber.Ctx) error {
	receivedAt, err := receivedAtHeader(c)
	if err != nil {
		return toHTTPError(err)
	}

	artifact, err := h.ftp.IngestFile(
		requestContext(c),
		strings.TrimSpace(c.Params("ftpSiteId")),
		c.Query("fileName"),
		copyBody(c),
		receivedAt,
	)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(toArtifactResponse(artifact))
}

func (h *SourceHandler) SubmitWebForm(c *fiber.Ctx) error {
	var req webFormSubmissionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	sub := source.WebFormSubmission{
		OrgInternalName:    req.OrgInternalName,
		FacilityID:         req.FacilityID,
		FormName:           req.FormName,
		FlowGUID:           req.FlowGUID,
		SearchKey:          req.SearchKey,
		SecondarySearchKey: req.SecondarySearchKey,
		BatchSourceIDs:     req.BatchSourceIDs,
		FieldValues:        req.FieldValues,
	}
	if req.SubmittedAt != nil {
		sub.SubmittedAt = *req.SubmittedAt
	}

	record, err := h.webForm.Submit(requestContext(c), sub)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toRecordResponse(record))
}

// copyBody detaches the body from fasthttp's reusable request buffer.
func copyBody(c *fiber.Ctx) []byte {
	body := c.Body()
	out := make([]byte, len(body))
	copy(out, body)
	return out
}

func receivedAtHeader(c *fiber.Ctx) (time.Time, error) {
	raw := strings.TrimSpace(c.Get(HeaderReceivedAt))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, HeaderReceivedAt)
	}
	return t, nil
}
