// Package destination manages the set of remote sites content is
// delivered to.
package destination

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Store is the destination repository surface the routes consume.
type Store interface {
	Create(ctx context.Context, dest *models.Destination) (*models.Destination, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Destination, error)
	List(ctx context.Context, enabledOnly bool) ([]models.Destination, error)
	Update(ctx context.Context, dest *models.Destination) (*models.Destination, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CreateRequest is the request body for registering a destination
type CreateRequest struct {
	Name        string `json:"name" validate:"required"`
	URL         string `json:"url" validate:"required,url"`
	AccessToken string `json:"access_token" validate:"required"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// UpdateRequest is the request body for updating a destination
type UpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	URL         *string `json:"url,omitempty" validate:"omitempty,url"`
	AccessToken *string `json:"access_token,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// Handler handles destination management requests
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Register registers destination routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

// List returns all destinations
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "destination_handler.List")
	defer span.End()

	enabledOnly := c.QueryParam("enabled") == "true"

	items, err := h.store.List(ctx, enabledOnly)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, items)
}

// Create registers a new destination
func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "destination_handler.Create")
	defer span.End()

	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	dest, err := h.store.Create(ctx, &models.Destination{
		Name:        req.Name,
		URL:         req.URL,
		AccessToken: req.AccessToken,
		Enabled:     enabled,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, dest)
}

// Get returns a single destination by ID
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "destination_handler.Get")
	defer span.End()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	dest, err := h.store.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dest)
}

// Update modifies a destination
func (h *Handler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "destination_handler.Update")
	defer span.End()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	dest, err := h.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if req.Name != nil {
		dest.Name = *req.Name
	}
	if req.URL != nil {
		dest.URL = *req.URL
	}
	if req.AccessToken != nil {
		dest.AccessToken = *req.AccessToken
	}
	if req.Enabled != nil {
		dest.Enabled = *req.Enabled
	}

	updated, err := h.store.Update(ctx, dest)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, updated)
}

// Delete removes a destination
func (h *Handler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "destination_handler.Delete")
	defer span.End()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := h.store.Delete(ctx, id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, httperror.NewHTTPError(http.StatusBadRequest, "invalid id: must be a valid UUID")
	}
	return id, nil
}
