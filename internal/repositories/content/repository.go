// Package content is the concrete local content platform: content
// objects, meta, authors, taxonomy terms, and media assets backed by
// Postgres. It implements both the read surface used for encoding and the
// write surface used for materialization.
package content

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/contentstore"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const noRows = "sql: no rows in result set"

// author_id is nullable; scans coalesce it to zero for authorless content.
var contentColumns = []string{"id", "name", "type", "title", "body", "excerpt", "status", "COALESCE(author_id, 0) AS author_id", "created_at", "updated_at"}
var termColumns = []string{"id", "slug", "taxonomy", "name", "parent_id"}
var assetColumns = []string{"id", "url", "path", "mime_type", "title"}

// Repository handles local content persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new content repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

var _ contentstore.Reader = (*Repository)(nil)
var _ contentstore.Store = (*Repository)(nil)

// ContentByID retrieves a content object by its local id
func (r *Repository) ContentByID(ctx context.Context, id int64) (*models.LocalContent, error) {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.ContentByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(contentColumns...)
	sb.From("content_objects")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var content models.LocalContent
	if err := r.db.GetContext(ctx, &content, query, args...); err != nil {
		if err.Error() == noRows {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "content %d not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get content")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get content")
	}
	return &content, nil
}

// FindContent retrieves a content object by natural key. Returns nil
// without error when no object exists.
func (r *Repository) FindContent(ctx context.Context, name, contentType string) (*models.LocalContent, error) {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.FindContent")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(contentColumns...)
	sb.From("content_objects")
	sb.Where(
		sb.Equal("name", name),
		sb.Equal("type", contentType),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var content models.LocalContent
	if err := r.db.GetContext(ctx, &content, query, args...); err != nil {
		if err.Error() == noRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"name": name, "type": contentType}).Error("Failed to find content by natural key")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find content")
	}
	return &content, nil
}

// UpsertDocumentCore resolves the document's author and upserts the
// content object by natural key in one transaction. Authors are idempotent
// by email and always created with the restricted author role. Only the
// allow-listed document fields (title, name, excerpt, body, status, type)
// are copied onto the content row; an existing row keeps its local id.
func (r *Repository) UpsertDocumentCore(ctx context.Context, doc *models.ContentDocument, status string) (*models.LocalContent, error) {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.UpsertDocumentCore")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Authorless documents store a null author_id so the foreign key to
	// authors is never pointed at a row that does not exist.
	var authorID sql.NullInt64
	if doc.Author != nil && doc.Author.Email != "" {
		id, err := r.resolveAuthor(ctx, tx, doc.Author)
		if err != nil {
			return nil, err
		}
		authorID = sql.NullInt64{Int64: id, Valid: true}
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO content_objects (
			name, type, title, body, excerpt, status, author_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (name, type)
		DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			excerpt = EXCLUDED.excerpt,
			status = EXCLUDED.status,
			author_id = EXCLUDED.author_id,
			updated_at = EXCLUDED.updated_at
		RETURNING id, name, type, title, body, excerpt, status, COALESCE(author_id, 0) AS author_id, created_at, updated_at
	`

	var content models.LocalContent
	err = tx.GetContext(ctx, &content, query,
		doc.Name, doc.Type, doc.Title, doc.Body, doc.Excerpt, status, authorID, now, now)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"name": doc.Name, "type": doc.Type}).Error("Failed to upsert content object")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert content")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit content upsert")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"content_id": content.ID,
		"name":       content.Name,
		"type":       content.Type,
		"status":     content.Status,
	}).Info("Upserted content object")

	return &content, nil
}

var authorFields = []string{"login", "email", "display_name", "first_name", "last_name", "nickname", "bio"}

func (r *Repository) resolveAuthor(ctx context.Context, tx database.Tx, author *models.DocumentAuthor) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `SELECT id FROM authors WHERE email = $1`, author.Email)
	if err == nil {
		return id, nil
	}
	if err.Error() != noRows {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"email": author.Email}).Error("Failed to look up author by email")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to look up author")
	}

	// The imported role is never trusted; every synchronized author gets
	// the restricted author role.
	query := `
		INSERT INTO authors (login, email, display_name, first_name, last_name, nickname, bio, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'author')
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id
	`
	err = tx.GetContext(ctx, &id, query,
		author.Login, author.Email, author.DisplayName,
		author.FirstName, author.LastName, author.Nickname, author.Bio)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"email": author.Email}).Error("Failed to create author")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create author")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"author_id": id, "email": author.Email}).Info("Created author")
	return id, nil
}

// UpdateBody replaces a content object's body
func (r *Repository) UpdateBody(ctx context.Context, contentID int64, body string) error {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.UpdateBody")
	defer span.End()

	query := `UPDATE content_objects SET body = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, body, time.Now().UTC(), contentID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"content_id": contentID}).Error("Failed to update content body")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update content body")
	}
	return nil
}

// ContentMeta returns a content object's meta entries in stored order
func (r *Repository) ContentMeta(ctx context.Context, contentID int64) ([]models.MetaEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.ContentMeta")
	defer span.End()

	query := `SELECT key, value FROM content_meta WHERE content_id = $1 ORDER BY ord ASC`
	var meta []models.MetaEntry
	if err := r.db.SelectContext(ctx, &meta, query, contentID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"content_id": contentID}).Error("Failed to get content meta")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get content meta")
	}
	return meta, nil
}

// SetMeta writes one meta key/value pair, replacing any existing value
func (r *Repository) SetMeta(ctx context.Context, contentID int64, key, value string) error {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.SetMeta")
	defer span.End()

	query := `
		INSERT INTO content_meta (content_id, key, value, ord)
		VALUES ($1, $2, $3, COALESCE((SELECT MAX(ord) + 1 FROM content_meta WHERE content_id = $1), 0))
		ON CONFLICT (content_id, key) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := r.db.ExecContext(ctx, query, contentID, key, value); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"content_id": contentID, "key": key}).Error("Failed to set content meta")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set content meta")
	}
	return nil
}

// AuthorByID retrieves an author by local id
func (r *Repository) AuthorByID(ctx context.Context, id int64) (*models.LocalAuthor, error) {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.AuthorByID")
	defer span.End()

	query := `SELECT id, login, email, display_name, first_name, last_name, nickname, bio, role FROM authors WHERE id = $1`
	var author models.LocalAuthor
	if err := r.db.GetContext(ctx, &author, query, id); err != nil {
		if err.Error() == noRows {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "author %d not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get author")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get author")
	}
	return &author, nil
}

// TermByID retrieves a taxonomy term by local id
func (r *Repository) TermByID(ctx context.Context, id int64) (*models.LocalTerm, error) {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.TermByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(termColumns...)
	sb.From("terms")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var term models.LocalTerm
	if err := r.db.GetContext(ctx, &term, query, args...); err != nil {
		if err.Error() == noRows {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "term %d not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get term")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get term")
	}
	return &term, nil
}

// TermBySlug retrieves a term by (slug, taxonomy). Returns nil without
// error when the term does not exist.
func (r *Repository) TermBySlug(ctx context.Context, slug, taxonomy string) (*models.LocalTerm, error) {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.TermBySlug")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(termColumns...)
	sb.From("terms")
	sb.Where(
		sb.Equal("slug", slug),
		sb.Equal("taxonomy", taxonomy),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var term models.LocalTerm
	if err := r.db.GetContext(ctx, &term, query, args...); err != nil {
		if err.Error() == noRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"slug": slug, "taxonomy": taxonomy}).Error("Failed to get term by slug")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get term")
	}
	return &term, nil
}

// CreateTerm inserts a term, converging on the existing row when another
// writer created the same (slug, taxonomy) concurrently
func (r *Repository) CreateTerm(ctx context.Context, term *models.LocalTerm) (*models.LocalTerm, error) {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.CreateTerm")
	defer span.End()

	query := `
		INSERT INTO terms (slug, taxonomy, name, parent_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slug, taxonomy) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, slug, taxonomy, name, parent_id
	`
	var created models.LocalTerm
	if err := r.db.GetContext(ctx, &created, query, term.Slug, term.Taxonomy, term.Name, term.ParentID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"slug": term.Slug, "taxonomy": term.Taxonomy}).Error("Failed to create term")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create term")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"term_id": created.ID, "slug": created.Slug, "taxonomy": created.Taxonomy}).Info("Created term")
	return &created, nil
}

// AttachedTerms returns the terms attached to a content object
func (r *Repository) AttachedTerms(ctx context.Context, contentID int64) ([]models.LocalTerm, error) {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.AttachedTerms")
	defer span.End()

	query := `
		SELECT t.id, t.slug, t.taxonomy, t.name, t.parent_id
		FROM terms t
		JOIN content_terms ct ON ct.term_id = t.id
		WHERE ct.content_id = $1
		ORDER BY t.taxonomy, t.id
	`
	var terms []models.LocalTerm
	if err := r.db.SelectContext(ctx, &terms, query, contentID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"content_id": contentID}).Error("Failed to get attached terms")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get attached terms")
	}
	return terms, nil
}

// AttachTerms links terms to a content object. Re-attaching an already
// linked term is a no-op.
func (r *Repository) AttachTerms(ctx context.Context, contentID int64, taxonomy string, termIDs []int64) error {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.AttachTerms")
	defer span.End()

	if len(termIDs) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder().
		InsertInto("content_terms").
		Cols("content_id", "term_id")
	for _, termID := range termIDs {
		ib = ib.Values(contentID, termID)
	}
	ib = ib.OnConflictDoNothing("content_id", "term_id")

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"content_id": contentID, "taxonomy": taxonomy, "term_ids": termIDs}).Error("Failed to attach terms")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to attach terms")
	}
	return nil
}

// AssetByID retrieves an asset by local id
func (r *Repository) AssetByID(ctx context.Context, id int64) (*models.LocalAsset, error) {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.AssetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(assetColumns...)
	sb.From("assets")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var asset models.LocalAsset
	if err := r.db.GetContext(ctx, &asset, query, args...); err != nil {
		if err.Error() == noRows {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "asset %d not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get asset")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get asset")
	}
	return &asset, nil
}

// CreateAsset records a newly imported media asset
func (r *Repository) CreateAsset(ctx context.Context, asset *models.LocalAsset) (*models.LocalAsset, error) {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.CreateAsset")
	defer span.End()

	query := `
		INSERT INTO assets (url, path, mime_type, title)
		VALUES ($1, $2, $3, $4)
		RETURNING id, url, path, mime_type, title
	`
	var created models.LocalAsset
	if err := r.db.GetContext(ctx, &created, query, asset.URL, asset.Path, asset.MimeType, asset.Title); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"url": asset.URL}).Error("Failed to create asset")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create asset")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"asset_id": created.ID, "url": created.URL}).Info("Created asset")
	return &created, nil
}

// AttachedAssets returns the assets attached to a content object
func (r *Repository) AttachedAssets(ctx context.Context, contentID int64) ([]models.LocalAsset, error) {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.AttachedAssets")
	defer span.End()

	query := `
		SELECT a.id, a.url, a.path, a.mime_type, a.title
		FROM assets a
		JOIN content_assets ca ON ca.asset_id = a.id
		WHERE ca.content_id = $1
		ORDER BY a.id
	`
	var assets []models.LocalAsset
	if err := r.db.SelectContext(ctx, &assets, query, contentID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"content_id": contentID}).Error("Failed to get attached assets")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get attached assets")
	}
	return assets, nil
}

// AttachAsset links an asset to a content object. Re-attaching is a no-op.
func (r *Repository) AttachAsset(ctx context.Context, contentID, assetID int64) error {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.AttachAsset")
	defer span.End()

	query := `
		INSERT INTO content_assets (content_id, asset_id)
		VALUES ($1, $2)
		ON CONFLICT (content_id, asset_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, contentID, assetID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"content_id": contentID, "asset_id": assetID}).Error("Failed to attach asset")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to attach asset")
	}
	return nil
}

// SetFeaturedImage records the content object's featured image
func (r *Repository) SetFeaturedImage(ctx context.Context, contentID, assetID int64) error {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.SetFeaturedImage")
	defer span.End()

	return r.SetMeta(ctx, contentID, "_thumbnail_id", strconv.FormatInt(assetID, 10))
}
