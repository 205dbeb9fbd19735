package transport

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/sendqueue/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStatusFor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want int
	}{
		{name: "fiber error", err: fiber.ErrNotFound, want: fiber.StatusNotFound},
		{name: "not found", err: fmt.Errorf("campaign 9: %w", domain.ErrNotFound), want: fiber.StatusNotFound},
		{name: "validation", err: domain.ErrValidation, want: fiber.StatusBadRequest},
		{name: "conflict", err: domain.ErrConflict, want: fiber.StatusConflict},
		{name: "lock held", err: domain.ErrLockNotAcquired, want: fiber.StatusConflict},
		{name: "unknown", err: errors.New("boom"), want: fiber.StatusInternalServerError},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := statusFor(tc.err); got != tc.want {
				t.Fatalf("statusFor() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestErrorHandlerLogsAndResponds(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.New(core))})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return fmt.Errorf("%w: bad input", domain.ErrValidation)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	entries := recorded.FilterMessage("request error").All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["status"]; got != int64(fiber.StatusBadRequest) {
		t.Fatalf("status field = %v, want 400", got)
	}
}
