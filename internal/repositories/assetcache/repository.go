// Package assetcache persists the mapping from remote asset references to
// locally imported assets. Entries are write-once: once a reference is
// recorded it is never re-fetched or re-pointed.
package assetcache

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

// Repository handles asset cache persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new asset cache repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get returns the cache entry for a reference, or nil when the reference
// has never been imported.
func (r *Repository) Get(ctx context.Context, externalRef string) (*models.AssetCacheEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "assetcache.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "external_ref", "local_asset_id", "created_at")
	sb.From("asset_cache_entries")
	sb.Where(sb.Equal("external_ref", externalRef))

	query, args := sb.Build()
	var entry models.AssetCacheEntry
	if err := r.db.GetContext(ctx, &entry, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"external_ref": externalRef}).Error("Failed to get asset cache entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get asset cache entry")
	}

	return &entry, nil
}

// Put records a newly imported asset. The insert does nothing on conflict
// and the winning row is read back, so a concurrent importer of the same
// reference converges on one entry; the asset id already cached always
// wins.
func (r *Repository) Put(ctx context.Context, externalRef string, localAssetID int64) (*models.AssetCacheEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "assetcache.Repository.Put")
	defer span.End()

	ib := database.NewInsertBuilder().
		InsertInto("asset_cache_entries").
		Cols("id", "external_ref", "local_asset_id", "created_at").
		Values(uuid.New(), externalRef, localAssetID, time.Now().UTC()).
		OnConflictDoNothing("external_ref")

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"external_ref":   externalRef,
			"local_asset_id": localAssetID,
		}).Error("Failed to put asset cache entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to put asset cache entry")
	}

	entry, err := r.Get(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "asset cache entry vanished after insert")
	}

	if entry.LocalAssetID != localAssetID {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"external_ref": externalRef,
			"won":          entry.LocalAssetID,
			"lost":         localAssetID,
		}).Warn("Concurrent asset import detected, keeping first entry")
	}

	return entry, nil
}
