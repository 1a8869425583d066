// Package intake receives documents pushed by source sites and stages
// them for materialization.
package intake

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/stagingrecord"
	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Stager stages an inbound document by natural key.
type Stager interface {
	Upsert(ctx context.Context, doc *models.ContentDocument) (*stagingrecord.UpsertResult, error)
}

// Materializer applies a staged record immediately when batch scheduling
// is disabled.
type Materializer interface {
	Materialize(ctx context.Context, id uuid.UUID, targetStatus string) error
}

// Emitter publishes a staged event per accepted document.
type Emitter interface {
	EmitDocumentStaged(ctx context.Context, record *models.StagingRecord, inserted bool) error
}

// Config controls what happens to a document right after staging.
type Config struct {
	// SchedulingEnabled defers materialization to the batch scheduler.
	// When false, accepted documents materialize synchronously.
	SchedulingEnabled bool

	PublishPolicy      string
	AlwaysPublishTypes []string
}

// Response reports the staging outcome to the pushing site.
type Response struct {
	ID           uuid.UUID `json:"id"`
	Status       string    `json:"status"`
	Outcome      string    `json:"outcome"`
	Materialized bool      `json:"materialized"`
}

// Handler handles document intake requests
type Handler struct {
	stager       Stager
	materializer Materializer
	emitter      Emitter
	config       Config
	logger       ectologger.Logger
}

func NewHandler(stager Stager, materializer Materializer, emitter Emitter, config Config, logger ectologger.Logger) *Handler {
	return &Handler{
		stager:       stager,
		materializer: materializer,
		emitter:      emitter,
		config:       config,
		logger:       logger,
	}
}

// Register registers intake routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.Receive)
}

// Receive handles POST /intake
func (h *Handler) Receive(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "intake_handler.Receive")
	defer span.End()

	var doc models.ContentDocument
	if err := c.Bind(&doc); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(&doc); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.stager.Upsert(ctx, &doc)
	if err != nil {
		return err
	}

	if h.emitter != nil {
		_ = h.emitter.EmitDocumentStaged(ctx, result.Record, result.IsNew)
	}

	outcome := "staged_update"
	if result.IsNew {
		outcome = "staged_new"
	}

	resp := Response{
		ID:      result.Record.ID,
		Status:  result.Record.Status,
		Outcome: outcome,
	}

	// Without the batch scheduler, materialize in-line per the publish
	// policy. A failure here leaves the record pending and still returns
	// the staging outcome; the next manual or batch run retries it.
	if !h.config.SchedulingEnabled && h.materializer != nil {
		targetStatus, ok := importer.TargetStatus(h.config.PublishPolicy, h.config.AlwaysPublishTypes, doc.Type)
		if ok {
			if err := h.materializer.Materialize(ctx, result.Record.ID, targetStatus); err != nil {
				h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"record_id": result.Record.ID,
					"name":      doc.Name,
					"type":      doc.Type,
				}).Error("Failed to materialize staged document")
			} else {
				resp.Materialized = true
				resp.Status = models.StatusUpToDate
			}
		}
	}

	status := http.StatusOK
	if result.IsNew {
		status = http.StatusCreated
	}
	return c.JSON(status, resp)
}
