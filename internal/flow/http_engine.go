package flow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/import-engine/internal/domain"
)

const defaultEngineTimeout = 30 * time.Second

type runRequest struct {
	CorrelationID string        `json:"correlationId"`
	Flow          runFlow       `json:"flow"`
	Record        runRecord     `json:"record"`
	Batch         runBatchIdent `json:"batch"`
}

type runFlow struct {
	FlowGUID   string          `json:"flowGuid"`
	FlowName   string          `json:"flowName"`
	FlowType   domain.FlowType `json:"flowType"`
	ScriptName string          `json:"scriptName,omitempty"`
	Version    int             `json:"version"`
	Content    string          `json:"content"`
	Config     map[string]any  `json:"config"`
}

type runRecord struct {
	ImportBatchRecordGUID string                `json:"importBatchRecordGuid"`
	RecordIndex           int                   `json:"recordIndex"`
	OrgInternalName       string                `json:"orgInternalName"`
	FacilityID            *string               `json:"facilityId,omitempty"`
	RecordDataType        domain.RecordDataType `json:"recordDataType"`
	RecordData            map[string]any        `json:"recordData"`
	DataEntryData         map[string]any        `json:"dataEntryData,omitempty"`
	SearchKey             *string               `json:"searchKey,omitempty"`
	SecondarySearchKey    *string               `json:"secondarySearchKey,omitempty"`
}

type runBatchIdent struct {
	ImportBatchGUID string             `json:"importBatchGuid"`
	BatchName       string             `json:"batchName"`
	BatchSource     domain.BatchSource `json:"batchSource"`
	BatchSourceIDs  map[string]string  `json:"batchSourceIds,omitempty"`
}

type runResponse struct {
	Output         map[string]any `json:"output"`
	EncounterIDs   []string       `json:"encounterIds"`
	RequiresReview bool           `json:"requiresReview"`
	Error          *runError      `json:"error"`
}

type runError struct {
	Message string         `json:"message"`
	Stack   string         `json:"stack"`
	Result  map[string]any `json:"result"`
}

var _ Engine = (*HTTPEngine)(nil)

// HTTPEngine runs flows on a remote script runner over HTTP.
type HTTPEngine struct {
	client   *resty.Client
	endpoint string
}

func NewHTTPEngine(endpoint string) (*HTTPEngine, error) {
	client := resty.New()
	client.SetTimeout(defaultEngineTimeout)
	client.SetRetryCount(0)

	return NewHTTPEngineWithClient(endpoint, client)
}

func NewHTTPEngineWithClient(endpoint string, client *resty.Client) (*HTTPEngine, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("flow engine endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid flow engine endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultEngineTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPEngine{
		client:   client,
		endpoint: strings.TrimRight(trimmedEndpoint, "/") + "/run",
	}, nil
}

func (e *HTTPEngine) Run(ctx context.Context, in Input) (*ScriptResult, error) {
	if e == nil || e.client == nil {
		return nil, fmt.Errorf("flow engine is not initialized")
	}
	if in.Flow == nil || in.Record == nil || in.Batch == nil {
		return nil, fmt.Errorf("%w: flow, batch and record are required", domain.ErrValidation)
	}

	var body runResponse
	response, err := e.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Correlation-ID", in.CorrelationID).
		SetBody(newRunRequest(in)).
		SetResult(&body).
		SetError(&body).
		Post(e.endpoint)
	if err != nil {
		message := "flow engine request failed"
		if errors.Is(err, context.DeadlineExceeded) {
			message = "flow engine request timed out"
		}
		return nil, &ScriptError{Message: message, Cause: err}
	}
	if response == nil {
		return nil, &ScriptError{Message: "flow engine returned empty response"}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices && body.Error == nil {
		return &ScriptResult{
			Output:         body.Output,
			EncounterIDs:   body.EncounterIDs,
			RequiresReview: body.RequiresReview,
		}, nil
	}

	scriptErr := &ScriptError{StatusCode: statusCode}
	if body.Error != nil {
		scriptErr.Message = body.Error.Message
		scriptErr.Stack = body.Error.Stack
		scriptErr.Result = body.Error.Result
	}
	if strings.TrimSpace(scriptErr.Message) == "" {
		scriptErr.Message = engineErrorMessage(statusCode, strings.TrimSpace(response.String()))
	}
	return nil, scriptErr
}

func newRunRequest(in Input) runRequest {
	return runRequest{
		CorrelationID: in.CorrelationID,
		Flow: runFlow{
			FlowGUID:   in.Flow.Flow.FlowGUID,
			FlowName:   in.Flow.Flow.FlowName,
			FlowType:   in.Flow.FlowType(),
			ScriptName: in.Flow.ScriptName,
			Version:    in.Flow.Version,
			Content:    in.Flow.Content,
			Config:     in.Flow.Config,
		},
		Record: runRecord{
			ImportBatchRecordGUID: in.Record.ImportBatchRecordGUID,
			RecordIndex:           in.Record.RecordIndex,
			OrgInternalName:       in.Record.OrgInternalName,
			FacilityID:            in.Record.FacilityID,
			RecordDataType:        in.Record.RecordDataType,
			RecordData:            in.Record.RecordData,
			DataEntryData:         in.Record.DataEntryData,
			SearchKey:             in.Record.SearchKey,
			SecondarySearchKey:    in.Record.SecondarySearchKey,
		},
		Batch: runBatchIdent{
			ImportBatchGUID: in.Batch.ImportBatchGUID,
			BatchName:       in.Batch.BatchName,
			BatchSource:     in.Batch.BatchSource,
			BatchSourceIDs:  in.Batch.BatchSourceIDs,
		},
	}
}

func engineErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("flow engine returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
