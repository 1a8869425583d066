package encoder

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/testutil"
)

type fakeReader struct {
	content map[int64]*models.LocalContent
	meta    map[int64][]models.MetaEntry
	authors map[int64]*models.LocalAuthor
	terms   map[int64]*models.LocalTerm
	tagged  map[int64][]models.LocalTerm
	assets  map[int64]*models.LocalAsset
}

func (f *fakeReader) ContentByID(ctx context.Context, id int64) (*models.LocalContent, error) {
	if c, ok := f.content[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("content %d not found", id)
}

func (f *fakeReader) ContentMeta(ctx context.Context, contentID int64) ([]models.MetaEntry, error) {
	return f.meta[contentID], nil
}

func (f *fakeReader) AuthorByID(ctx context.Context, id int64) (*models.LocalAuthor, error) {
	if a, ok := f.authors[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("author %d not found", id)
}

func (f *fakeReader) AttachedTerms(ctx context.Context, contentID int64) ([]models.LocalTerm, error) {
	return f.tagged[contentID], nil
}

func (f *fakeReader) TermByID(ctx context.Context, id int64) (*models.LocalTerm, error) {
	if t, ok := f.terms[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("term %d not found", id)
}

func (f *fakeReader) AttachedAssets(ctx context.Context, contentID int64) ([]models.LocalAsset, error) {
	return nil, nil
}

func (f *fakeReader) AssetByID(ctx context.Context, id int64) (*models.LocalAsset, error) {
	if a, ok := f.assets[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("asset %d not found", id)
}

func newTestEncoder(reader *fakeReader) *Encoder {
	return New(reader, nil, Config{
		SiteURL:      "https://www.acme.com.au",
		MaxLinkDepth: 3,
	}, testutil.Logger())
}

func TestEncodeBody(t *testing.T) {
	reader := &fakeReader{
		content: map[int64]*models.LocalContent{
			1: {
				ID:    1,
				Name:  "acme-event",
				Type:  "event",
				Title: "Acme Event",
				Body: `<p>intro</p><img src="https://www.acme.com.au/media/x.jpg" />` +
					`[gallery ids="7,8"]`,
				AuthorID: 10,
			},
		},
		authors: map[int64]*models.LocalAuthor{
			10: {
				ID: 10, Login: "jo", Email: "jo@acme.com.au", DisplayName: "Jo",
				FirstName: "Jo", LastName: "Bloggs", Nickname: "jojo", Bio: "Writes things.",
			},
		},
		assets: map[int64]*models.LocalAsset{
			7: {ID: 7, URL: "https://www.acme.com.au/media/a.jpg"},
			8: {ID: 8, URL: "https://www.acme.com.au/media/b.jpg"},
		},
	}

	doc, err := newTestEncoder(reader).Encode(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "acme-event", doc.Name)
	assert.Equal(t, "event", doc.Type)
	assert.Equal(t, "acme", doc.Channel)
	assert.Equal(t, "https://www.acme.com.au/event/acme-event", doc.CanonicalURL)
	assert.Contains(t, doc.Body, `src="%imgsrc-start%https://www.acme.com.au/media/x.jpg%imgsrc-end%"`)
	assert.Contains(t, doc.Body,
		`ids="%imgid-start%https://www.acme.com.au/media/a.jpg%imgid-end%,%imgid-start%https://www.acme.com.au/media/b.jpg%imgid-end%"`)
	require.NotNil(t, doc.Author)
	assert.Equal(t, &models.DocumentAuthor{
		Login:       "jo",
		Email:       "jo@acme.com.au",
		DisplayName: "Jo",
		FirstName:   "Jo",
		LastName:    "Bloggs",
		Nickname:    "jojo",
		Bio:         "Writes things.",
	}, doc.Author)
}

func TestEncodeMeta(t *testing.T) {
	reader := &fakeReader{
		content: map[int64]*models.LocalContent{
			1: {ID: 1, Name: "acme-event", Type: "event", AuthorID: 10},
			2: {ID: 2, Name: "acme-template", Type: "template", AuthorID: 10},
		},
		meta: map[int64][]models.MetaEntry{
			1: {
				{Key: "_thumbnail_id", Value: "7"},
				{Key: "event_custom_template", Value: "2"},
				{Key: "event_speakers", Value: "30"},
				{Key: "custom_note", Value: "unchanged"},
			},
		},
		authors: map[int64]*models.LocalAuthor{10: {ID: 10, Email: "jo@acme.com.au"}},
		terms: map[int64]*models.LocalTerm{
			30: {ID: 30, Slug: "jane-doe", Taxonomy: "speakers", Name: "Jane Doe"},
		},
		assets: map[int64]*models.LocalAsset{
			7: {ID: 7, URL: "https://www.acme.com.au/media/thumb.jpg"},
		},
	}

	docs, err := newTestEncoder(reader).EncodeWithLinked(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, docs, 2, "linked template should be encoded alongside the event")

	// Linked documents come first.
	assert.Equal(t, "acme-template", docs[0].Name)
	doc := docs[1]
	require.Len(t, doc.Meta, 4)

	assert.Equal(t, "%imgid-start%https://www.acme.com.au/media/thumb.jpg%imgid-end%", doc.Meta[0].Value)

	var linked models.LinkedIdentity
	require.NoError(t, json.Unmarshal([]byte(doc.Meta[1].Value), &linked))
	assert.Equal(t, models.LinkedIdentity{Name: "acme-template", Type: "template"}, linked)

	var ref models.TermReference
	require.NoError(t, json.Unmarshal([]byte(doc.Meta[2].Value), &ref))
	assert.Equal(t, models.TermReference{Slug: "jane-doe", Taxonomy: "speakers", Name: "Jane Doe"}, ref)

	assert.Equal(t, "unchanged", doc.Meta[3].Value)
}

func TestEncodeMetaMalformedPassthrough(t *testing.T) {
	reader := &fakeReader{
		content: map[int64]*models.LocalContent{
			1: {ID: 1, Name: "n", Type: "post", AuthorID: 10},
		},
		meta: map[int64][]models.MetaEntry{
			1: {{Key: "_thumbnail_id", Value: "not-a-number"}},
		},
		authors: map[int64]*models.LocalAuthor{10: {ID: 10}},
	}

	doc, err := newTestEncoder(reader).Encode(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "not-a-number", doc.Meta[0].Value)
}

func TestEncodeLinkedCycle(t *testing.T) {
	reader := &fakeReader{
		content: map[int64]*models.LocalContent{
			1: {ID: 1, Name: "a", Type: "event", AuthorID: 10},
			2: {ID: 2, Name: "b", Type: "event", AuthorID: 10},
		},
		meta: map[int64][]models.MetaEntry{
			1: {{Key: "event_sponsers", Value: "2"}},
			2: {{Key: "event_sponsers", Value: "1"}},
		},
		authors: map[int64]*models.LocalAuthor{10: {ID: 10}},
	}

	docs, err := newTestEncoder(reader).EncodeWithLinked(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, docs, 2, "cycle must not recurse infinitely")
}

func TestFlattenTerms(t *testing.T) {
	reader := &fakeReader{
		content: map[int64]*models.LocalContent{
			1: {ID: 1, Name: "n", Type: "post", AuthorID: 10},
		},
		authors: map[int64]*models.LocalAuthor{10: {ID: 10}},
		terms: map[int64]*models.LocalTerm{
			100: {ID: 100, Slug: "grandparent", Taxonomy: "category"},
			101: {ID: 101, Slug: "parent", Taxonomy: "category", ParentID: 100},
			102: {ID: 102, Slug: "child", Taxonomy: "category", ParentID: 101},
		},
		tagged: map[int64][]models.LocalTerm{
			1: {{ID: 102, Slug: "child", Taxonomy: "category", ParentID: 101}},
		},
	}

	doc, err := newTestEncoder(reader).Encode(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, doc.Terms, 3)

	assert.Equal(t, "grandparent", doc.Terms[0].Slug)
	assert.Equal(t, "parent", doc.Terms[1].Slug)
	assert.Equal(t, "child", doc.Terms[2].Slug)
	assert.False(t, doc.Terms[0].BelongsToDocument)
	assert.False(t, doc.Terms[1].BelongsToDocument)
	assert.True(t, doc.Terms[2].BelongsToDocument)

	// Every term's parent appears strictly before it.
	pos := map[int64]int{}
	for i, term := range doc.Terms {
		pos[term.SourceID] = i
	}
	for _, term := range doc.Terms {
		if term.ParentID != 0 {
			assert.Less(t, pos[term.ParentID], pos[term.SourceID])
		}
	}
}

func TestParseChannel(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://www.acme.com.au", "acme"},
		{"https://fern.example.com", "example"},
		{"http://acme.com/path", "acme"},
		{"not a url", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseChannel(tt.url))
		})
	}
}
