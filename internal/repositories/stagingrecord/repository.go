package stagingrecord

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var columns = []string{
	"id", "name", "type", "title", "channel", "canonical_url",
	"status", "raw_document", "materialized_id", "created_at", "updated_at",
}

// Repository handles staging record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new staging record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertResult contains the result of an upsert operation
type UpsertResult struct {
	Record *models.StagingRecord
	IsNew  bool
}

// Upsert stages an inbound document. The first intake of a natural key
// inserts a pending_new row; any later intake updates that same row in
// place, replacing the payload and setting pending_update. A cancelled
// record is revived by re-intake. The existence check and the write are
// one atomic statement, so two concurrent intakes for the same key cannot
// create duplicate rows.
func (r *Repository) Upsert(ctx context.Context, doc *models.ContentDocument) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingrecord.Repository.Upsert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method": "Upsert",
		"name":   doc.Name,
		"type":   doc.Type,
	})

	raw, err := database.NewJSONB(doc)
	if err != nil {
		log.WithError(err).Error("Failed to encode document payload")
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "invalid document payload")
	}

	now := time.Now().UTC()
	id := uuid.New()

	query := `
		INSERT INTO staging_records (
			id, name, type, title, channel, canonical_url,
			status, raw_document, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (name, type)
		DO UPDATE SET
			title = EXCLUDED.title,
			channel = EXCLUDED.channel,
			canonical_url = EXCLUDED.canonical_url,
			status = $11,
			raw_document = EXCLUDED.raw_document,
			updated_at = EXCLUDED.updated_at
		RETURNING
			id, name, type, title, channel, canonical_url,
			status, raw_document, materialized_id, created_at, updated_at,
			(xmax = 0) AS inserted
	`

	var result struct {
		models.StagingRecord
		Inserted bool `db:"inserted"`
	}

	err = r.db.GetContext(ctx, &result, query,
		id, doc.Name, doc.Type, doc.Title, doc.Channel, doc.CanonicalURL,
		models.StatusPendingNew, raw, now, now,
		models.StatusPendingUpdate,
	)
	if err != nil {
		log.WithError(err).Error("Failed to upsert staging record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to stage document")
	}

	if result.Inserted {
		log.WithFields(map[string]any{"id": result.ID}).Info("Staged new document")
	} else {
		log.WithFields(map[string]any{"id": result.ID}).Info("Re-staged existing document")
	}

	return &UpsertResult{Record: &result.StagingRecord, IsNew: result.Inserted}, nil
}

// Get retrieves a staging record by ID
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.StagingRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingrecord.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("staging_records")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var record models.StagingRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "staging record %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get staging record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get staging record")
	}

	return &record, nil
}

// GetByNaturalKey retrieves a staging record by (name, type). Returns nil
// without error when no record exists.
func (r *Repository) GetByNaturalKey(ctx context.Context, name, contentType string) (*models.StagingRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingrecord.Repository.GetByNaturalKey")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("staging_records")
	sb.Where(
		sb.Equal("name", name),
		sb.Equal("type", contentType),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var record models.StagingRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"name": name, "type": contentType}).Error("Failed to get staging record by natural key")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get staging record")
	}

	return &record, nil
}

// ListPending returns up to limit records eligible for materialization,
// oldest first. Cancelled records are never returned.
func (r *Repository) ListPending(ctx context.Context, limit int) ([]models.StagingRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingrecord.Repository.ListPending")
	defer span.End()

	if limit < 1 {
		limit = 1
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("staging_records")
	sb.Where(sb.In("status", models.StatusPendingNew, models.StatusPendingUpdate))
	sb.OrderBy("updated_at ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var records []models.StagingRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"limit": limit}).Error("Failed to list pending staging records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pending staging records")
	}
	return records, nil
}

// List retrieves staging records with filtering and pagination
func (r *Repository) List(ctx context.Context, status *string, page, pageSize int) (*models.StagingRecordListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingrecord.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("staging_records")
	if status != nil {
		countSb.Where(countSb.Equal("status", *status))
	}

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"status": status}).Error("Failed to count staging records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count staging records")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("staging_records")
	if status != nil {
		sb.Where(sb.Equal("status", *status))
	}
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var records []models.StagingRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"status": status, "page": page, "page_size": pageSize}).Error("Failed to list staging records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list staging records")
	}

	return &models.StagingRecordListResponse{
		Items:      records,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Cancel puts a pending record into the cancelled state. Cancelled is only
// reachable from a pending status; anything else is a conflict.
func (r *Repository) Cancel(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, models.StatusCancelled,
		[]string{models.StatusPendingNew, models.StatusPendingUpdate}, "cancel")
}

// Revive returns a cancelled record to pending_update so the next batch
// picks it up again.
func (r *Repository) Revive(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, models.StatusPendingUpdate,
		[]string{models.StatusCancelled}, "revive")
}

func (r *Repository) transition(ctx context.Context, id uuid.UUID, to string, from []string, action string) error {
	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("stagingrecord.Repository.%s", action))
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("staging_records")
	sb.Set(sb.Assign("status", to), sb.Assign("updated_at", now))
	sb.Where(
		sb.Equal("id", id),
		sb.In("status", sqlbuilder.Flatten(from)...),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "to": to}).Errorf("Failed to %s staging record", action)
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to %s staging record", action)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "staging record %s is not in a state that allows %s", id, action)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "status": to}).Info("Transitioned staging record")
	return nil
}

// SetMaterializedID records the local content a run produced without
// touching the record's status. Used when materialization left work
// behind and the record must stay pending for a retry.
func (r *Repository) SetMaterializedID(ctx context.Context, id uuid.UUID, materializedID int64) error {
	ctx, span := tracing.StartSpan(ctx, "stagingrecord.Repository.SetMaterializedID")
	defer span.End()

	query := `UPDATE staging_records SET materialized_id = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, materializedID, id); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to record materialized id")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update staging record")
	}
	return nil
}

// MarkUpToDate records a completed materialization. The update is guarded
// on the updated_at value loaded before materialization began, so an
// intake that re-staged the document mid-flight wins: its pending_update
// status survives and the record returns false.
func (r *Repository) MarkUpToDate(ctx context.Context, id uuid.UUID, materializedID int64, seenUpdatedAt time.Time) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "stagingrecord.Repository.MarkUpToDate")
	defer span.End()

	query := `
		UPDATE staging_records
		SET status = $1, materialized_id = $2, updated_at = $3
		WHERE id = $4 AND updated_at = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		models.StatusUpToDate, materializedID, time.Now().UTC(), id, seenUpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to mark staging record up to date")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update staging record")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// A newer intake replaced the payload while we were materializing.
		// Record the materialized id but leave the pending status alone.
		patch := `UPDATE staging_records SET materialized_id = $1 WHERE id = $2`
		if _, err := r.db.ExecContext(ctx, patch, materializedID, id); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to record materialized id on re-staged record")
			return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update staging record")
		}
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Document re-staged during materialization, leaving pending")
		return false, nil
	}

	return true, nil
}
