// Package importer materializes staged documents into local content.
// Materialization is idempotent: running it twice for the same record
// converges on the same local content, authors, terms, and assets.
package importer

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/contentstore"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/placeholder"
	"github.com/Ramsey-B/fern/pkg/shortcode"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ChannelTaxonomy is the taxonomy used to tag materialized content with
// the channel of the site it came from.
const ChannelTaxonomy = "channel"

// StagingStore is the staging surface the materializer consumes.
type StagingStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.StagingRecord, error)
	MarkUpToDate(ctx context.Context, id uuid.UUID, materializedID int64, seenUpdatedAt time.Time) (bool, error)
	SetMaterializedID(ctx context.Context, id uuid.UUID, materializedID int64) error
}

// DedupCache maps external asset references to local asset ids so each
// remote asset is downloaded at most once.
type DedupCache interface {
	Get(ctx context.Context, externalRef string) (*models.AssetCacheEntry, error)
	Put(ctx context.Context, externalRef string, localAssetID int64) (*models.AssetCacheEntry, error)
}

// AssetImporter downloads a remote asset and registers it locally.
type AssetImporter interface {
	Import(ctx context.Context, remoteURL string) (*models.LocalAsset, error)
}

// GalleryImporter pulls a gallery bundle from its export URL so the
// referenced gallery exists locally before the embed tag is rendered.
type GalleryImporter interface {
	ImportBundle(ctx context.Context, alias, bundleURL string) error
}

// Locker serializes asset imports for the same external reference across
// concurrent materializations.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Emitter publishes lifecycle events for materialized content.
type Emitter interface {
	EmitContentMaterialized(ctx context.Context, record *models.StagingRecord, contentID int64) error
}

const assetLockTTL = 30 * time.Second

// Materializer applies a staged document to the local content platform.
type Materializer struct {
	staging StagingStore
	store   contentstore.Store
	cache   DedupCache
	assets  AssetImporter

	// Optional collaborators. A nil gallery importer leaves gallery embed
	// tags untouched; a nil locker skips cross-process serialization; a
	// nil emitter skips event publication.
	gallery GalleryImporter
	locker  Locker
	emitter Emitter

	logger ectologger.Logger
}

func NewMaterializer(staging StagingStore, store contentstore.Store, cache DedupCache, assets AssetImporter, logger ectologger.Logger) *Materializer {
	return &Materializer{
		staging: staging,
		store:   store,
		cache:   cache,
		assets:  assets,
		logger:  logger,
	}
}

// WithGalleryImporter enables gallery bundle imports during body decoding.
func (m *Materializer) WithGalleryImporter(gallery GalleryImporter) *Materializer {
	m.gallery = gallery
	return m
}

// WithLocker serializes per-reference asset imports through the locker.
func (m *Materializer) WithLocker(locker Locker) *Materializer {
	m.locker = locker
	return m
}

// WithEmitter publishes a materialized event after each successful run.
func (m *Materializer) WithEmitter(emitter Emitter) *Materializer {
	m.emitter = emitter
	return m
}

// materialization is the state of a single run. Asset references the run
// could not resolve are counted so the record can be left pending for a
// retry instead of being marked up to date with sentinels still in place.
type materialization struct {
	*Materializer
	unresolved int
}

// Materialize loads the staging record and applies it to local content
// with the given target status. A missing record is a no-op, as is a
// cancelled one. Asset and term failures are logged and skipped so a
// single bad reference cannot block the rest of the document; the body
// keeps the unresolvable sentinel verbatim and the record stays pending
// so a later retry can resolve it.
func (m *Materializer) Materialize(ctx context.Context, id uuid.UUID, targetStatus string) error {
	ctx, span := tracing.StartSpan(ctx, "importer.Materializer.Materialize")
	defer span.End()

	record, err := m.staging.Get(ctx, id)
	if err != nil {
		if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound {
			m.logger.WithContext(ctx).WithFields(map[string]any{"record_id": id}).Warn("Staging record not found, skipping materialization")
			return nil
		}
		return err
	}
	if record.Status == models.StatusCancelled {
		m.logger.WithContext(ctx).WithFields(map[string]any{"record_id": id}).Info("Staging record is cancelled, skipping materialization")
		return nil
	}

	doc, err := record.Document()
	if err != nil {
		return fmt.Errorf("failed to decode staged document %s: %w", id, err)
	}

	content, err := m.store.UpsertDocumentCore(ctx, doc, targetStatus)
	if err != nil {
		return err
	}

	run := &materialization{Materializer: m}

	body := run.decodeBody(ctx, doc.Body)
	if body != doc.Body {
		if err := m.store.UpdateBody(ctx, content.ID, body); err != nil {
			return err
		}
	}

	run.applyMeta(ctx, content.ID, doc)
	m.applyProvenance(ctx, content.ID, record)
	m.applyTerms(ctx, content.ID, doc.Terms)
	run.applyImages(ctx, content.ID, doc.Images)

	if run.unresolved > 0 {
		if err := m.staging.SetMaterializedID(ctx, record.ID, content.ID); err != nil {
			return err
		}
		m.logger.WithContext(ctx).WithFields(map[string]any{
			"record_id":  record.ID,
			"content_id": content.ID,
			"name":       record.Name,
			"type":       record.Type,
			"unresolved": run.unresolved,
		}).Warn("Materialization left unresolved asset references, record stays pending for retry")
		return nil
	}

	marked, err := m.staging.MarkUpToDate(ctx, record.ID, content.ID, record.UpdatedAt)
	if err != nil {
		return err
	}
	if !marked {
		m.logger.WithContext(ctx).WithFields(map[string]any{
			"record_id": record.ID,
			"name":      record.Name,
			"type":      record.Type,
		}).Info("Staging record changed during materialization, leaving it pending")
	}

	if m.emitter != nil {
		_ = m.emitter.EmitContentMaterialized(ctx, record, content.ID)
	}

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"record_id":  record.ID,
		"content_id": content.ID,
		"name":       record.Name,
		"type":       record.Type,
		"status":     targetStatus,
	}).Info("Materialized staged document")

	return nil
}

// decodeBody resolves asset sentinels in the body and rewrites gallery
// embed tags. Unresolvable sentinels stay in place verbatim.
func (m *materialization) decodeBody(ctx context.Context, body string) string {
	decoded := placeholder.Resolve(ctx, body, m.resolvePlaceholder)
	return m.decodeGalleryTags(ctx, decoded)
}

// resolvePlaceholder maps a sentinel reference to its local value. Src
// sentinels resolve to the local asset URL, id sentinels to the local
// numeric asset id.
func (m *materialization) resolvePlaceholder(ctx context.Context, f placeholder.Family, ref string) (string, bool) {
	asset, err := m.resolveAsset(ctx, ref)
	if err != nil {
		m.unresolved++
		m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ref": ref}).Warn("Failed to resolve asset reference, keeping sentinel")
		return "", false
	}
	if f == placeholder.IDFamily {
		return strconv.FormatInt(asset.ID, 10), true
	}
	return asset.URL, true
}

// resolveAsset returns the local asset for an external reference,
// importing it on first sight. The dedup cache is write-once, so
// concurrent imports of the same reference converge on one local asset.
func (m *Materializer) resolveAsset(ctx context.Context, externalRef string) (*models.LocalAsset, error) {
	entry, err := m.cache.Get(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return m.store.AssetByID(ctx, entry.LocalAssetID)
	}

	var asset *models.LocalAsset
	importOnce := func() error {
		// Re-check under the lock in case another worker won the import.
		entry, err := m.cache.Get(ctx, externalRef)
		if err != nil {
			return err
		}
		if entry != nil {
			asset, err = m.store.AssetByID(ctx, entry.LocalAssetID)
			return err
		}

		imported, err := m.assets.Import(ctx, externalRef)
		if err != nil {
			return err
		}
		entry, err = m.cache.Put(ctx, externalRef, imported.ID)
		if err != nil {
			return err
		}
		if entry.LocalAssetID != imported.ID {
			asset, err = m.store.AssetByID(ctx, entry.LocalAssetID)
			return err
		}
		asset = imported
		return nil
	}

	if m.locker != nil {
		err = m.locker.WithLock(ctx, "asset:"+externalRef, assetLockTTL, importOnce)
	} else {
		err = importOnce()
	}
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// decodeGalleryTags imports referenced gallery bundles and strips the
// transport-only bundle-url attribute. Tags stay untouched when no
// gallery importer is configured or the bundle import fails.
func (m *materialization) decodeGalleryTags(ctx context.Context, body string) string {
	if m.gallery == nil {
		return body
	}
	return shortcode.ReplaceGalleryTags(body, func(attrs map[string]string, original string) string {
		alias := attrs["alias"]
		bundleURL := attrs["bundle-url"]
		if alias == "" || bundleURL == "" {
			return original
		}
		if err := m.gallery.ImportBundle(ctx, alias, bundleURL); err != nil {
			m.unresolved++
			m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"alias": alias}).Warn("Failed to import gallery bundle, keeping tag as-is")
			return original
		}
		delete(attrs, "bundle-url")
		return shortcode.GalleryTag(attrs)
	})
}

// applyProvenance records where the content came from and tags it with
// the source channel term.
func (m *Materializer) applyProvenance(ctx context.Context, contentID int64, record *models.StagingRecord) {
	if record.CanonicalURL != "" {
		if err := m.store.SetMeta(ctx, contentID, "canonical_url", record.CanonicalURL); err != nil {
			m.logger.WithContext(ctx).WithError(err).Warn("Failed to record canonical url")
		}
	}
	if record.Channel == "" {
		return
	}
	if err := m.store.SetMeta(ctx, contentID, "channel", record.Channel); err != nil {
		m.logger.WithContext(ctx).WithError(err).Warn("Failed to record channel meta")
	}

	term, err := m.store.TermBySlug(ctx, record.Channel, ChannelTaxonomy)
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).Warn("Failed to look up channel term")
		return
	}
	if term == nil {
		term, err = m.store.CreateTerm(ctx, &models.LocalTerm{
			Slug:     record.Channel,
			Taxonomy: ChannelTaxonomy,
			Name:     record.Channel,
		})
		if err != nil {
			m.logger.WithContext(ctx).WithError(err).Warn("Failed to create channel term")
			return
		}
	}
	if err := m.store.AttachTerms(ctx, contentID, ChannelTaxonomy, []int64{term.ID}); err != nil {
		m.logger.WithContext(ctx).WithError(err).Warn("Failed to attach channel term")
	}
}

// applyTerms recreates the document's taxonomy locally. The list is
// ordered ancestor before descendant, so a term's parent is always
// resolvable from an earlier entry. Only terms the document actually
// carries are attached; the rest exist purely as hierarchy.
func (m *Materializer) applyTerms(ctx context.Context, contentID int64, terms []models.DocumentTerm) {
	localBySource := make(map[int64]int64, len(terms))
	attach := make(map[string][]int64)

	for _, term := range terms {
		local := &models.LocalTerm{
			Slug:     term.Slug,
			Taxonomy: term.Taxonomy,
			Name:     term.Name,
		}
		if term.ParentID != 0 {
			if parentID, ok := localBySource[term.ParentID]; ok {
				local.ParentID = parentID
			}
		}

		existing, err := m.store.TermBySlug(ctx, term.Slug, term.Taxonomy)
		if err != nil {
			m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"slug": term.Slug, "taxonomy": term.Taxonomy}).Warn("Failed to look up term, skipping")
			continue
		}
		if existing != nil {
			localBySource[term.SourceID] = existing.ID
		} else {
			created, err := m.store.CreateTerm(ctx, local)
			if err != nil {
				m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"slug": term.Slug, "taxonomy": term.Taxonomy}).Warn("Failed to create term, skipping")
				continue
			}
			localBySource[term.SourceID] = created.ID
		}

		if term.BelongsToDocument {
			attach[term.Taxonomy] = append(attach[term.Taxonomy], localBySource[term.SourceID])
		}
	}

	for taxonomy, ids := range attach {
		if err := m.store.AttachTerms(ctx, contentID, taxonomy, ids); err != nil {
			m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"taxonomy": taxonomy}).Warn("Failed to attach terms")
		}
	}
}

// applyImages imports the document's image manifest through the dedup
// cache and attaches each resulting asset to the content object.
func (m *materialization) applyImages(ctx context.Context, contentID int64, images []models.DocumentImage) {
	for _, image := range images {
		if image.URL == "" {
			continue
		}
		asset, err := m.resolveAsset(ctx, image.URL)
		if err != nil {
			m.unresolved++
			m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"url": image.URL}).Warn("Failed to import image, skipping")
			continue
		}
		if err := m.store.AttachAsset(ctx, contentID, asset.ID); err != nil {
			m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"asset_id": asset.ID}).Warn("Failed to attach asset")
		}
	}
}
