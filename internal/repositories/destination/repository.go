// Package destination persists the registry of downstream sites that
// encoded documents are delivered to.
package destination

import (
	"context"
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

var columns = []string{"id", "name", "url", "access_token", "enabled", "created_at", "updated_at"}

// Repository handles destination persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new destination repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create registers a new destination
func (r *Repository) Create(ctx context.Context, dest *models.Destination) (*models.Destination, error) {
	ctx, span := tracing.StartSpan(ctx, "destination.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	dest.ID = uuid.New()
	dest.CreatedAt = now
	dest.UpdatedAt = now

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("destinations")
	ib.Cols(columns...)
	ib.Values(dest.ID, dest.Name, dest.URL, dest.AccessToken, dest.Enabled, dest.CreatedAt, dest.UpdatedAt)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"name": dest.Name}).Error("Failed to create destination")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create destination")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": dest.ID, "name": dest.Name}).Info("Created destination")
	return dest, nil
}

// Get retrieves a destination by ID
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Destination, error) {
	ctx, span := tracing.StartSpan(ctx, "destination.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("destinations")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var dest models.Destination
	if err := r.db.GetContext(ctx, &dest, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "destination %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get destination")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get destination")
	}

	return &dest, nil
}

// List retrieves all destinations. With enabledOnly, disabled entries are
// filtered out.
func (r *Repository) List(ctx context.Context, enabledOnly bool) ([]models.Destination, error) {
	ctx, span := tracing.StartSpan(ctx, "destination.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("destinations")
	if enabledOnly {
		sb.Where(sb.Equal("enabled", true))
	}
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var dests []models.Destination
	if err := r.db.SelectContext(ctx, &dests, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list destinations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list destinations")
	}
	return dests, nil
}

// Update modifies a destination
func (r *Repository) Update(ctx context.Context, dest *models.Destination) (*models.Destination, error) {
	ctx, span := tracing.StartSpan(ctx, "destination.Repository.Update")
	defer span.End()

	dest.UpdatedAt = time.Now().UTC()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("destinations")
	ub.Set(
		ub.Assign("name", dest.Name),
		ub.Assign("url", dest.URL),
		ub.Assign("access_token", dest.AccessToken),
		ub.Assign("enabled", dest.Enabled),
		ub.Assign("updated_at", dest.UpdatedAt),
	)
	ub.Where(ub.Equal("id", dest.ID))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": dest.ID}).Error("Failed to update destination")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update destination")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "destination %s not found", dest.ID)
	}

	return dest, nil
}

// Delete removes a destination
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "destination.Repository.Delete")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("destinations")
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to delete destination")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete destination")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "destination %s not found", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted destination")
	return nil
}
