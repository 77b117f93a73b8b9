package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/import-engine/internal/domain"
)

// Input is everything a flow receives for one record.
type Input struct {
	Flow          *ResolvedFlow
	Batch         *domain.ImportBatch
	Record        *domain.ImportBatchRecord
	CorrelationID string
}

// ScriptResult is the outcome of a successful flow run.
type ScriptResult struct {
	Output         map[string]any
	EncounterIDs   []string
	RequiresReview bool
}

// Engine runs a flow against a record.
type Engine interface {
	Run(ctx context.Context, in Input) (*ScriptResult, error)
}

// ScriptError is a failed flow run. Result holds whatever the script produced
// before failing.
type ScriptError struct {
	StatusCode int
	Message    string
	Stack      string
	Result     map[string]any
	Cause      error
}

func (e *ScriptError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "script error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ScriptError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// AsScriptError normalizes any engine error into a ScriptError.
func AsScriptError(err error) *ScriptError {
	if err == nil {
		return nil
	}
	var scriptErr *ScriptError
	if errors.As(err, &scriptErr) {
		return scriptErr
	}
	return &ScriptError{Cause: err}
}

// Reason is the human readable failure reason stored on the record.
func (e *ScriptError) Reason() string {
	if e == nil {
		return ""
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "flow execution failed"
}
