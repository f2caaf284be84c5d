// Package server provides the OpenAI-compatible HTTP surface over the
// translation gateway.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"bedrockproxy/internal/core"
)

// ChatService is the gateway surface the HTTP layer depends on.
type ChatService interface {
	ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error)
	StreamChatCompletion(ctx context.Context, req *core.ChatRequest) (io.ReadCloser, error)
	ListModels(ctx context.Context) (*core.ModelsResponse, error)
}

// Handler holds the HTTP handlers.
type Handler struct {
	svc ChatService
}

// NewHandler creates a new handler over the given service.
func NewHandler(svc ChatService) *Handler {
	return &Handler{svc: svc}
}

// ChatCompletion handles POST /v1/chat/completions.
func (h *Handler) ChatCompletion(c echo.Context) error {
	var req core.ChatRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	if req.Stream {
		stream, err := h.svc.StreamChatCompletion(c.Request().Context(), &req)
		if err != nil {
			return handleError(c, err)
		}
		defer func() {
			_ = stream.Close() //nolint:errcheck
		}()

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set("Cache-Control", "no-cache")
		c.Response().Header().Set("Connection", "keep-alive")
		c.Response().WriteHeader(http.StatusOK)

		if _, err := io.Copy(c.Response().Writer, stream); err != nil {
			// Headers are already out, so the error can only be logged
			slog.WarnContext(c.Request().Context(), "stream copy aborted", "error", err)
		}
		return nil
	}

	resp, err := h.svc.ChatCompletion(c.Request().Context(), &req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// ListModels handles GET /v1/models.
func (h *Handler) ListModels(c echo.Context) error {
	resp, err := h.svc.ListModels(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Health handles GET /health.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleError converts gateway errors to client-facing responses.
func handleError(c echo.Context, err error) error {
	var gatewayErr *core.GatewayError
	if errors.As(err, &gatewayErr) {
		return c.JSON(gatewayErr.HTTPStatusCode(), gatewayErr.ToJSON())
	}

	slog.ErrorContext(c.Request().Context(), "unhandled error", "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "api_error",
			"message": "an unexpected error occurred",
			"code":    "internal_error",
		},
	})
}
