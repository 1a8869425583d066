package exporter

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/testutil"
)

type fakeEncoder struct {
	docs []*models.ContentDocument
}

func (f *fakeEncoder) Exportable(contentType string) bool {
	return contentType != "attachment"
}

func (f *fakeEncoder) EncodeWithLinked(ctx context.Context, contentID int64) ([]*models.ContentDocument, error) {
	return f.docs, nil
}

type fakeDestinations struct {
	dests []models.Destination
}

func (f *fakeDestinations) List(ctx context.Context, enabledOnly bool) ([]models.Destination, error) {
	return f.dests, nil
}

type fakeDeliverer struct {
	delivered map[string][]string
	failDest  string
}

func (f *fakeDeliverer) Deliver(ctx context.Context, dest *models.Destination, doc *models.ContentDocument) error {
	if dest.Name == f.failDest {
		return fmt.Errorf("connection refused")
	}
	if f.delivered == nil {
		f.delivered = map[string][]string{}
	}
	f.delivered[dest.Name] = append(f.delivered[dest.Name], doc.Name)
	return nil
}

func testDocs() []*models.ContentDocument {
	return []*models.ContentDocument{
		{Name: "summit-template", Type: "template", Title: "Template", Channel: "acme"},
		{Name: "annual-summit", Type: "event", Title: "Annual Summit", Channel: "acme"},
	}
}

func TestExportDeliversLinkedFirst(t *testing.T) {
	encoder := &fakeEncoder{docs: testDocs()}
	dests := &fakeDestinations{dests: []models.Destination{{Name: "east"}, {Name: "west"}}}
	deliverer := &fakeDeliverer{}
	e := New(encoder, dests, deliverer, testutil.Logger())

	result, err := e.Export(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Documents)
	assert.Equal(t, 2, result.Delivered)
	assert.Empty(t, result.Failed)
	assert.Equal(t, []string{"summit-template", "annual-summit"}, deliverer.delivered["east"])
	assert.Equal(t, []string{"summit-template", "annual-summit"}, deliverer.delivered["west"])
}

func TestExportContinuesPastFailedDestination(t *testing.T) {
	encoder := &fakeEncoder{docs: testDocs()}
	dests := &fakeDestinations{dests: []models.Destination{{Name: "east"}, {Name: "west"}}}
	deliverer := &fakeDeliverer{failDest: "east"}
	e := New(encoder, dests, deliverer, testutil.Logger())

	result, err := e.Export(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, []string{"east"}, result.Failed)
	assert.Equal(t, []string{"summit-template", "annual-summit"}, deliverer.delivered["west"])
}

func TestExportRejectsNonExportableType(t *testing.T) {
	encoder := &fakeEncoder{docs: []*models.ContentDocument{{Name: "file", Type: "attachment"}}}
	e := New(encoder, &fakeDestinations{}, &fakeDeliverer{}, testutil.Logger())

	_, err := e.Export(context.Background(), 1)
	require.Error(t, err)
}
