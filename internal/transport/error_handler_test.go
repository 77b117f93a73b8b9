package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
		wantLevel   zapcore.Level
	}{
		{
			name:        "client error keeps message",
			err:         fiber.NewError(fiber.StatusConflict, "conflict: record is being processed"),
			wantStatus:  fiber.StatusConflict,
			wantMessage: "conflict: record is being processed",
			wantLevel:   zapcore.WarnLevel,
		},
		{
			name:        "unexpected error is masked",
			err:         errors.New("pq: connection refused"),
			wantStatus:  fiber.StatusInternalServerError,
			wantMessage: "internal server error",
			wantLevel:   zapcore.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.DebugLevel)
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.New(core))})
			app.Get("/boom", func(c *fiber.Ctx) error {
				c.Set(fiber.HeaderXRequestID, "req-1")
				return tt.err
			})

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/boom", nil))
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var payload map[string]string
			if err := json.Unmarshal(body, &payload); err != nil {
				t.Fatalf("json unmarshal error = %v", err)
			}
			if payload["error"] != tt.wantMessage {
				t.Fatalf("error = %q, want %q", payload["error"], tt.wantMessage)
			}

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("log entries = %d, want 1", len(entries))
			}
			if entries[0].Level != tt.wantLevel {
				t.Fatalf("log level = %s, want %s", entries[0].Level, tt.wantLevel)
			}
			if entries[0].ContextMap()["correlationId"] != "req-1" {
				t.Fatalf("correlationId = %v, want req-1", entries[0].ContextMap()["correlationId"])
			}
		})
	}
}
