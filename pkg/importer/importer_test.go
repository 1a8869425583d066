package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/placeholder"
	"github.com/Ramsey-B/fern/pkg/testutil"
)

type fakeStaging struct {
	records map[uuid.UUID]*models.StagingRecord
	marked  []int64
	patched []int64
	stale   bool
}

func (f *fakeStaging) Get(ctx context.Context, id uuid.UUID) (*models.StagingRecord, error) {
	record, ok := f.records[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "staging record %s not found", id)
	}
	return record, nil
}

func (f *fakeStaging) MarkUpToDate(ctx context.Context, id uuid.UUID, materializedID int64, seenUpdatedAt time.Time) (bool, error) {
	f.marked = append(f.marked, materializedID)
	if f.stale {
		return false, nil
	}
	if record, ok := f.records[id]; ok {
		record.Status = models.StatusUpToDate
		record.MaterializedID = &materializedID
	}
	return true, nil
}

func (f *fakeStaging) SetMaterializedID(ctx context.Context, id uuid.UUID, materializedID int64) error {
	f.patched = append(f.patched, materializedID)
	if record, ok := f.records[id]; ok {
		record.MaterializedID = &materializedID
	}
	return nil
}

type fakeStore struct {
	nextID   int64
	content  map[string]*models.LocalContent
	meta     map[int64]map[string]string
	terms    map[string]*models.LocalTerm
	attached map[int64][]int64
	assets   map[int64]*models.LocalAsset
	media    map[int64][]int64
	featured map[int64]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		content:  map[string]*models.LocalContent{},
		meta:     map[int64]map[string]string{},
		terms:    map[string]*models.LocalTerm{},
		attached: map[int64][]int64{},
		assets:   map[int64]*models.LocalAsset{},
		media:    map[int64][]int64{},
		featured: map[int64]int64{},
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) UpsertDocumentCore(ctx context.Context, doc *models.ContentDocument, status string) (*models.LocalContent, error) {
	key := doc.Name + ":" + doc.Type
	existing, ok := f.content[key]
	if !ok {
		existing = &models.LocalContent{ID: f.id(), Name: doc.Name, Type: doc.Type}
		f.content[key] = existing
	}
	existing.Title = doc.Title
	existing.Body = doc.Body
	existing.Excerpt = doc.Excerpt
	existing.Status = status
	return existing, nil
}

func (f *fakeStore) FindContent(ctx context.Context, name, contentType string) (*models.LocalContent, error) {
	return f.content[name+":"+contentType], nil
}

func (f *fakeStore) UpdateBody(ctx context.Context, contentID int64, body string) error {
	for _, c := range f.content {
		if c.ID == contentID {
			c.Body = body
		}
	}
	return nil
}

func (f *fakeStore) SetMeta(ctx context.Context, contentID int64, key, value string) error {
	if f.meta[contentID] == nil {
		f.meta[contentID] = map[string]string{}
	}
	f.meta[contentID][key] = value
	return nil
}

func (f *fakeStore) TermBySlug(ctx context.Context, slug, taxonomy string) (*models.LocalTerm, error) {
	return f.terms[slug+":"+taxonomy], nil
}

func (f *fakeStore) CreateTerm(ctx context.Context, term *models.LocalTerm) (*models.LocalTerm, error) {
	created := *term
	created.ID = f.id()
	f.terms[term.Slug+":"+term.Taxonomy] = &created
	return &created, nil
}

func (f *fakeStore) AttachTerms(ctx context.Context, contentID int64, taxonomy string, termIDs []int64) error {
	f.attached[contentID] = append(f.attached[contentID], termIDs...)
	return nil
}

func (f *fakeStore) CreateAsset(ctx context.Context, asset *models.LocalAsset) (*models.LocalAsset, error) {
	created := *asset
	created.ID = f.id()
	f.assets[created.ID] = &created
	return &created, nil
}

func (f *fakeStore) AssetByID(ctx context.Context, id int64) (*models.LocalAsset, error) {
	asset, ok := f.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %d not found", id)
	}
	return asset, nil
}

func (f *fakeStore) AttachAsset(ctx context.Context, contentID, assetID int64) error {
	f.media[contentID] = append(f.media[contentID], assetID)
	return nil
}

func (f *fakeStore) SetFeaturedImage(ctx context.Context, contentID, assetID int64) error {
	f.featured[contentID] = assetID
	return f.SetMeta(ctx, contentID, "_thumbnail_id", fmt.Sprintf("%d", assetID))
}

type fakeCache struct {
	entries map[string]*models.AssetCacheEntry
}

func (f *fakeCache) Get(ctx context.Context, externalRef string) (*models.AssetCacheEntry, error) {
	return f.entries[externalRef], nil
}

func (f *fakeCache) Put(ctx context.Context, externalRef string, localAssetID int64) (*models.AssetCacheEntry, error) {
	if existing, ok := f.entries[externalRef]; ok {
		return existing, nil
	}
	entry := &models.AssetCacheEntry{ID: uuid.New(), ExternalRef: externalRef, LocalAssetID: localAssetID}
	f.entries[externalRef] = entry
	return entry, nil
}

type fakeAssets struct {
	store    *fakeStore
	imports  map[string]int
	failWith error
}

func (f *fakeAssets) Import(ctx context.Context, remoteURL string) (*models.LocalAsset, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	if f.imports == nil {
		f.imports = map[string]int{}
	}
	f.imports[remoteURL]++
	local := strings.Replace(remoteURL, "https://www.acme.com.au", "https://local.site/media", 1)
	return f.store.CreateAsset(ctx, &models.LocalAsset{URL: local, MimeType: "image/jpeg"})
}

func stageRecord(t *testing.T, doc *models.ContentDocument) (*fakeStaging, uuid.UUID) {
	t.Helper()
	raw, err := database.NewJSONB(doc)
	require.NoError(t, err)

	id := uuid.New()
	return &fakeStaging{records: map[uuid.UUID]*models.StagingRecord{
		id: {
			ID:           id,
			Name:         doc.Name,
			Type:         doc.Type,
			Title:        doc.Title,
			Channel:      doc.Channel,
			CanonicalURL: doc.CanonicalURL,
			Status:       models.StatusPendingNew,
			RawDocument:  raw,
			UpdatedAt:    time.Now().UTC(),
		},
	}}, id
}

func eventDocument() *models.ContentDocument {
	heroRef := "https://www.acme.com.au/uploads/hero.jpg"
	logoRef := "https://www.acme.com.au/uploads/logo.png"

	sponsorLogo, _ := json.Marshal(models.SerializedAsset{
		URL: placeholder.SrcFamily.Wrap(logoRef),
		ID:  placeholder.IDFamily.Wrap(logoRef),
	})
	speaker, _ := json.Marshal(models.TermReference{Slug: "jane-doe", Taxonomy: "speaker", Name: "Jane Doe"})

	return &models.ContentDocument{
		Name:         "annual-summit",
		Type:         "event",
		Title:        "Annual Summit",
		Body:         `<p>Welcome</p><img src="` + placeholder.SrcFamily.Wrap(heroRef) + `" />`,
		Excerpt:      "The big one",
		Channel:      "acme",
		CanonicalURL: "https://www.acme.com.au/event/annual-summit",
		Meta: []models.MetaEntry{
			{Key: "_thumbnail_id", Value: placeholder.IDFamily.Wrap(heroRef)},
			{Key: "venue", Value: "Sydney"},
			{Key: "post-sponser-logo", Value: string(sponsorLogo)},
			{Key: "event_speakers", Value: string(speaker)},
		},
		Author: &models.DocumentAuthor{Login: "jdoe", Email: "jdoe@acme.com.au", DisplayName: "J. Doe"},
		Terms: []models.DocumentTerm{
			{SourceID: 10, Slug: "events", Taxonomy: "category", Name: "Events"},
			{SourceID: 11, ParentID: 10, Slug: "conferences", Taxonomy: "category", Name: "Conferences", BelongsToDocument: true},
		},
		Images: []models.DocumentImage{
			{SourceID: 7, URL: heroRef, MimeType: "image/jpeg"},
		},
	}
}

func newTestMaterializer(staging *fakeStaging) (*Materializer, *fakeStore, *fakeCache, *fakeAssets) {
	store := newFakeStore()
	cache := &fakeCache{entries: map[string]*models.AssetCacheEntry{}}
	assets := &fakeAssets{store: store}
	m := NewMaterializer(staging, store, cache, assets, testutil.Logger())
	return m, store, cache, assets
}

func TestMaterializeEventDocument(t *testing.T) {
	doc := eventDocument()
	staging, id := stageRecord(t, doc)
	m, store, cache, assets := newTestMaterializer(staging)

	err := m.Materialize(context.Background(), id, models.ContentStatusDraft)
	require.NoError(t, err)

	content, err := store.FindContent(context.Background(), "annual-summit", "event")
	require.NoError(t, err)
	require.NotNil(t, content)
	assert.Equal(t, models.ContentStatusDraft, content.Status)

	// Hero image appears as a src sentinel in the body, an id sentinel in
	// meta, and an entry in the image manifest; it must be imported once.
	assert.Equal(t, 1, assets.imports["https://www.acme.com.au/uploads/hero.jpg"])
	assert.Len(t, cache.entries, 2)

	assert.Contains(t, content.Body, `src="https://local.site/media/uploads/hero.jpg"`)
	assert.NotContains(t, content.Body, "%imgsrc-start%")

	meta := store.meta[content.ID]
	assert.Equal(t, "Sydney", meta["venue"])
	assert.NotContains(t, meta["_thumbnail_id"], "%imgid-start%")

	hero := store.assets[store.featured[content.ID]]
	require.NotNil(t, hero)
	assert.Equal(t, "https://local.site/media/uploads/hero.jpg", hero.URL)
	assert.Equal(t, fmt.Sprintf("%d", hero.ID), meta["_thumbnail_id"])

	var logo models.SerializedAsset
	require.NoError(t, json.Unmarshal([]byte(meta["post-sponser-logo"]), &logo))
	assert.Equal(t, "https://local.site/media/uploads/logo.png", logo.URL)
	assert.Equal(t, "https://local.site/media/uploads/logo-150x150.png", logo.Thumbnail)

	speaker := store.terms["jane-doe:speaker"]
	require.NotNil(t, speaker)
	assert.Equal(t, fmt.Sprintf("%d", speaker.ID), meta["event_speakers"])

	assert.Equal(t, "https://www.acme.com.au/event/annual-summit", meta["canonical_url"])
	assert.Equal(t, "acme", meta["channel"])

	parent := store.terms["events:category"]
	child := store.terms["conferences:category"]
	require.NotNil(t, parent)
	require.NotNil(t, child)
	assert.Equal(t, parent.ID, child.ParentID)

	channelTerm := store.terms["acme:"+ChannelTaxonomy]
	require.NotNil(t, channelTerm)
	assert.ElementsMatch(t, []int64{channelTerm.ID, child.ID}, store.attached[content.ID])
	assert.NotContains(t, store.attached[content.ID], parent.ID)

	record := staging.records[id]
	assert.Equal(t, models.StatusUpToDate, record.Status)
	require.NotNil(t, record.MaterializedID)
	assert.Equal(t, content.ID, *record.MaterializedID)
}

func TestMaterializeIsIdempotent(t *testing.T) {
	doc := eventDocument()
	staging, id := stageRecord(t, doc)
	m, store, _, assets := newTestMaterializer(staging)

	require.NoError(t, m.Materialize(context.Background(), id, models.ContentStatusDraft))
	require.NoError(t, m.Materialize(context.Background(), id, models.ContentStatusDraft))

	assert.Len(t, store.content, 1)
	assert.Equal(t, 1, assets.imports["https://www.acme.com.au/uploads/hero.jpg"])
	assert.Equal(t, 1, assets.imports["https://www.acme.com.au/uploads/logo.png"])
	assert.Len(t, store.terms, 4)
}

func TestMaterializeKeepsUnresolvableSentinels(t *testing.T) {
	doc := eventDocument()
	staging, id := stageRecord(t, doc)
	m, store, _, assets := newTestMaterializer(staging)
	assets.failWith = fmt.Errorf("upstream gone")

	err := m.Materialize(context.Background(), id, models.ContentStatusDraft)
	require.NoError(t, err)

	content, err := store.FindContent(context.Background(), "annual-summit", "event")
	require.NoError(t, err)
	require.NotNil(t, content)

	// The sentinel survives verbatim and the record stays pending so a
	// later run can resolve it once the upstream recovers.
	assert.Contains(t, content.Body, placeholder.SrcFamily.Wrap("https://www.acme.com.au/uploads/hero.jpg"))

	record := staging.records[id]
	assert.Equal(t, models.StatusPendingNew, record.Status)
	assert.Empty(t, staging.marked)
	require.NotNil(t, record.MaterializedID)
	assert.Equal(t, content.ID, *record.MaterializedID)
}

func TestMaterializeRetriesAfterFailedAssetFetch(t *testing.T) {
	doc := eventDocument()
	staging, id := stageRecord(t, doc)
	m, store, _, assets := newTestMaterializer(staging)
	assets.failWith = fmt.Errorf("upstream gone")

	require.NoError(t, m.Materialize(context.Background(), id, models.ContentStatusDraft))
	assert.Equal(t, models.StatusPendingNew, staging.records[id].Status)

	// The upstream comes back; the next batch picks the record up again
	// and this time the sentinels resolve.
	assets.failWith = nil
	require.NoError(t, m.Materialize(context.Background(), id, models.ContentStatusDraft))

	content, err := store.FindContent(context.Background(), "annual-summit", "event")
	require.NoError(t, err)
	assert.NotContains(t, content.Body, "%imgsrc-start%")
	assert.Equal(t, models.StatusUpToDate, staging.records[id].Status)
}

func TestMaterializeAuthorlessDocument(t *testing.T) {
	doc := eventDocument()
	doc.Author = nil
	staging, id := stageRecord(t, doc)
	m, store, _, _ := newTestMaterializer(staging)

	require.NoError(t, m.Materialize(context.Background(), id, models.ContentStatusDraft))

	content, err := store.FindContent(context.Background(), "annual-summit", "event")
	require.NoError(t, err)
	require.NotNil(t, content)
	assert.Equal(t, models.StatusUpToDate, staging.records[id].Status)
}

func TestMaterializeResolvesLinkedContent(t *testing.T) {
	linked, _ := json.Marshal(models.LinkedIdentity{Name: "summit-template", Type: "template"})
	doc := &models.ContentDocument{
		Name:    "annual-summit",
		Type:    "event",
		Title:   "Annual Summit",
		Channel: "acme",
		Meta: []models.MetaEntry{
			{Key: "event_custom_template", Value: string(linked)},
		},
	}
	staging, id := stageRecord(t, doc)
	m, store, _, _ := newTestMaterializer(staging)

	template, err := store.UpsertDocumentCore(context.Background(), &models.ContentDocument{Name: "summit-template", Type: "template", Title: "Template"}, models.ContentStatusPublish)
	require.NoError(t, err)

	require.NoError(t, m.Materialize(context.Background(), id, models.ContentStatusDraft))

	content, err := store.FindContent(context.Background(), "annual-summit", "event")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d", template.ID), store.meta[content.ID]["event_custom_template"])
}

func TestMaterializeMissingLinkedContentDecodesEmpty(t *testing.T) {
	linked, _ := json.Marshal(models.LinkedIdentity{Name: "nope", Type: "template"})
	doc := &models.ContentDocument{
		Name:    "annual-summit",
		Type:    "event",
		Title:   "Annual Summit",
		Channel: "acme",
		Meta:    []models.MetaEntry{{Key: "event_custom_template", Value: string(linked)}},
	}
	staging, id := stageRecord(t, doc)
	m, store, _, _ := newTestMaterializer(staging)

	require.NoError(t, m.Materialize(context.Background(), id, models.ContentStatusDraft))

	content, _ := store.FindContent(context.Background(), "annual-summit", "event")
	assert.Equal(t, "", store.meta[content.ID]["event_custom_template"])
}

func TestMaterializeSkipsExcludedMeta(t *testing.T) {
	doc := &models.ContentDocument{
		Name:    "post-1",
		Type:    "post",
		Title:   "Post",
		Channel: "acme",
		Meta: []models.MetaEntry{
			{Key: "_edit_lock", Value: "123:1"},
			{Key: "custom", Value: "kept"},
		},
	}
	staging, id := stageRecord(t, doc)
	m, store, _, _ := newTestMaterializer(staging)

	require.NoError(t, m.Materialize(context.Background(), id, models.ContentStatusDraft))

	content, _ := store.FindContent(context.Background(), "post-1", "post")
	meta := store.meta[content.ID]
	assert.Equal(t, "kept", meta["custom"])
	assert.NotContains(t, meta, "_edit_lock")
}

func TestMaterializeMissingRecordIsNoop(t *testing.T) {
	staging := &fakeStaging{records: map[uuid.UUID]*models.StagingRecord{}}
	m, store, _, _ := newTestMaterializer(staging)

	err := m.Materialize(context.Background(), uuid.New(), models.ContentStatusDraft)
	require.NoError(t, err)
	assert.Empty(t, store.content)
}

func TestMaterializeSkipsCancelledRecord(t *testing.T) {
	doc := eventDocument()
	staging, id := stageRecord(t, doc)
	staging.records[id].Status = models.StatusCancelled
	m, store, _, _ := newTestMaterializer(staging)

	err := m.Materialize(context.Background(), id, models.ContentStatusDraft)
	require.NoError(t, err)
	assert.Empty(t, store.content)
	assert.Empty(t, staging.marked)
}

func TestMaterializeStaleRecordStaysPending(t *testing.T) {
	doc := eventDocument()
	staging, id := stageRecord(t, doc)
	staging.stale = true
	m, store, _, _ := newTestMaterializer(staging)

	err := m.Materialize(context.Background(), id, models.ContentStatusDraft)
	require.NoError(t, err)

	// Content is written but the record keeps its pending status for the
	// next batch to pick up the newer payload.
	assert.Len(t, store.content, 1)
	assert.Equal(t, models.StatusPendingNew, staging.records[id].Status)
}

type fakeGallery struct {
	imported map[string]string
	fail     bool
}

func (f *fakeGallery) ImportBundle(ctx context.Context, alias, bundleURL string) error {
	if f.fail {
		return fmt.Errorf("bundle fetch failed")
	}
	if f.imported == nil {
		f.imported = map[string]string{}
	}
	f.imported[alias] = bundleURL
	return nil
}

func TestMaterializeImportsGalleryBundle(t *testing.T) {
	doc := &models.ContentDocument{
		Name:    "gallery-post",
		Type:    "post",
		Title:   "Gallery",
		Channel: "acme",
		Body:    `before [gallery-embed alias="summit" bundle-url="https://www.acme.com.au/export/summit.zip"] after`,
	}
	staging, id := stageRecord(t, doc)
	m, store, _, _ := newTestMaterializer(staging)
	gallery := &fakeGallery{}
	m.WithGalleryImporter(gallery)

	require.NoError(t, m.Materialize(context.Background(), id, models.ContentStatusDraft))

	content, _ := store.FindContent(context.Background(), "gallery-post", "post")
	assert.Equal(t, `before [gallery-embed alias="summit"] after`, content.Body)
	assert.Equal(t, "https://www.acme.com.au/export/summit.zip", gallery.imported["summit"])
}

func TestMaterializeKeepsGalleryTagOnFailure(t *testing.T) {
	body := `[gallery-embed alias="summit" bundle-url="https://www.acme.com.au/export/summit.zip"]`
	doc := &models.ContentDocument{Name: "gallery-post", Type: "post", Title: "Gallery", Channel: "acme", Body: body}
	staging, id := stageRecord(t, doc)
	m, store, _, _ := newTestMaterializer(staging)
	m.WithGalleryImporter(&fakeGallery{fail: true})

	require.NoError(t, m.Materialize(context.Background(), id, models.ContentStatusDraft))

	content, _ := store.FindContent(context.Background(), "gallery-post", "post")
	assert.Equal(t, body, content.Body)
	assert.Equal(t, models.StatusPendingNew, staging.records[id].Status)
}
