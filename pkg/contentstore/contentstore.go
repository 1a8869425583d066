// Package contentstore defines the repository surface of the local content
// platform. The synchronization core reads and writes content objects,
// meta, taxonomy terms, and media exclusively through these interfaces;
// the concrete platform is an external collaborator.
package contentstore

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Reader is the source-side lookup surface used when encoding a local
// content object into a transportable document.
type Reader interface {
	ContentByID(ctx context.Context, id int64) (*models.LocalContent, error)
	ContentMeta(ctx context.Context, contentID int64) ([]models.MetaEntry, error)
	AuthorByID(ctx context.Context, id int64) (*models.LocalAuthor, error)
	AttachedTerms(ctx context.Context, contentID int64) ([]models.LocalTerm, error)
	TermByID(ctx context.Context, id int64) (*models.LocalTerm, error)
	AttachedAssets(ctx context.Context, contentID int64) ([]models.LocalAsset, error)
	AssetByID(ctx context.Context, id int64) (*models.LocalAsset, error)
}

// Store is the destination-side write surface used when materializing a
// staged document into local content.
type Store interface {
	// UpsertDocumentCore resolves the document's author (create-if-missing,
	// idempotent by email, forced author role) and upserts the content
	// object by natural key in a single transaction. Only the allow-listed
	// document fields are copied onto the content object.
	UpsertDocumentCore(ctx context.Context, doc *models.ContentDocument, status string) (*models.LocalContent, error)

	FindContent(ctx context.Context, name, contentType string) (*models.LocalContent, error)
	UpdateBody(ctx context.Context, contentID int64, body string) error
	SetMeta(ctx context.Context, contentID int64, key, value string) error

	TermBySlug(ctx context.Context, slug, taxonomy string) (*models.LocalTerm, error)
	CreateTerm(ctx context.Context, term *models.LocalTerm) (*models.LocalTerm, error)
	AttachTerms(ctx context.Context, contentID int64, taxonomy string, termIDs []int64) error

	CreateAsset(ctx context.Context, asset *models.LocalAsset) (*models.LocalAsset, error)
	AssetByID(ctx context.Context, id int64) (*models.LocalAsset, error)
	AttachAsset(ctx context.Context, contentID, assetID int64) error
	SetFeaturedImage(ctx context.Context, contentID, assetID int64) error
}
