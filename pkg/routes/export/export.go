// Package export triggers outbound delivery of local content.
package export

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/exporter"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Exporter encodes and delivers one content object to all destinations.
type Exporter interface {
	Export(ctx context.Context, contentID int64) (*exporter.Result, error)
}

// Handler handles export requests
type Handler struct {
	exporter Exporter
}

func NewHandler(exp Exporter) *Handler {
	return &Handler{exporter: exp}
}

// Register registers export routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/:id", h.Export)
}

// Export pushes the content object to every enabled destination
func (h *Handler) Export(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "export_handler.Export")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid id: must be a positive integer")
	}

	result, err := h.exporter.Export(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
