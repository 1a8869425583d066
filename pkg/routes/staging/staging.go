// Package staging exposes the staging queue for inspection and control:
// listing, cancelling, reviving, and manually materializing records.
package staging

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Store is the staging repository surface the routes consume.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*models.StagingRecord, error)
	List(ctx context.Context, status *string, page, pageSize int) (*models.StagingRecordListResponse, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	Revive(ctx context.Context, id uuid.UUID) error
}

// Materializer applies one staged record on demand.
type Materializer interface {
	Materialize(ctx context.Context, id uuid.UUID, targetStatus string) error
}

// MaterializeRequest optionally overrides the policy-derived status.
type MaterializeRequest struct {
	Status string `json:"status,omitempty"`
}

// Handler handles staging queue requests
type Handler struct {
	store        Store
	materializer Materializer

	policy             string
	alwaysPublishTypes []string
}

func NewHandler(store Store, materializer Materializer, policy string, alwaysPublishTypes []string) *Handler {
	return &Handler{
		store:              store,
		materializer:       materializer,
		policy:             policy,
		alwaysPublishTypes: alwaysPublishTypes,
	}
}

// Register registers staging routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/cancel", h.Cancel)
	g.POST("/:id/revive", h.Revive)
	g.POST("/:id/materialize", h.Materialize)
}

// List returns a page of staging records, optionally filtered by status
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "staging_handler.List")
	defer span.End()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var status *string
	if s := c.QueryParam("status"); s != "" {
		status = &s
	}

	result, err := h.store.List(ctx, status, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Get returns a single staging record by ID
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "staging_handler.Get")
	defer span.End()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	record, err := h.store.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, record)
}

// Cancel marks a pending record as cancelled
func (h *Handler) Cancel(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "staging_handler.Cancel")
	defer span.End()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := h.store.Cancel(ctx, id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Revive returns a cancelled record to the pending queue
func (h *Handler) Revive(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "staging_handler.Revive")
	defer span.End()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := h.store.Revive(ctx, id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Materialize applies a staged record immediately. The request body may
// pin the target status; otherwise the publish policy decides, falling
// back to draft under the import-only policy.
func (h *Handler) Materialize(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "staging_handler.Materialize")
	defer span.End()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req MaterializeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Status != "" && req.Status != models.ContentStatusDraft && req.Status != models.ContentStatusPublish {
		return httperror.NewHTTPError(http.StatusBadRequest, "status must be draft or publish")
	}

	record, err := h.store.Get(ctx, id)
	if err != nil {
		return err
	}

	targetStatus := req.Status
	if targetStatus == "" {
		status, ok := importer.TargetStatus(h.policy, h.alwaysPublishTypes, record.Type)
		if !ok {
			status = models.ContentStatusDraft
		}
		targetStatus = status
	}

	if err := h.materializer.Materialize(ctx, id, targetStatus); err != nil {
		return err
	}

	record, err = h.store.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, record)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, httperror.NewHTTPError(http.StatusBadRequest, "invalid id: must be a valid UUID")
	}
	return id, nil
}
