package scheduler

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/testutil"
)

type fakeLister struct {
	records []models.StagingRecord
}

func (f *fakeLister) ListPending(ctx context.Context, limit int) ([]models.StagingRecord, error) {
	if len(f.records) > limit {
		return f.records[:limit], nil
	}
	return f.records, nil
}

type fakeMaterializer struct {
	calls map[uuid.UUID]string
}

func (f *fakeMaterializer) Materialize(ctx context.Context, id uuid.UUID, targetStatus string) error {
	if f.calls == nil {
		f.calls = map[uuid.UUID]string{}
	}
	f.calls[id] = targetStatus
	return nil
}

func pendingRecord(contentType string) models.StagingRecord {
	return models.StagingRecord{
		ID:     uuid.New(),
		Name:   "some-item",
		Type:   contentType,
		Status: models.StatusPendingNew,
	}
}

func TestRunBatchDraftPolicy(t *testing.T) {
	post := pendingRecord("post")
	event := pendingRecord("event")
	lister := &fakeLister{records: []models.StagingRecord{post, event}}
	mat := &fakeMaterializer{}

	s := NewScheduler(lister, mat, nil, Config{PublishPolicy: models.PublishPolicyDraft}, testutil.Logger())
	s.RunBatch(context.Background())

	require.Len(t, mat.calls, 2)
	assert.Equal(t, models.ContentStatusDraft, mat.calls[post.ID])
	assert.Equal(t, models.ContentStatusDraft, mat.calls[event.ID])
}

func TestRunBatchAlwaysPublishOverridesPolicy(t *testing.T) {
	post := pendingRecord("post")
	alert := pendingRecord("alert")
	lister := &fakeLister{records: []models.StagingRecord{post, alert}}
	mat := &fakeMaterializer{}

	s := NewScheduler(lister, mat, nil, Config{
		PublishPolicy:      models.PublishPolicyDraft,
		AlwaysPublishTypes: []string{"alert"},
	}, testutil.Logger())
	s.RunBatch(context.Background())

	assert.Equal(t, models.ContentStatusDraft, mat.calls[post.ID])
	assert.Equal(t, models.ContentStatusPublish, mat.calls[alert.ID])
}

func TestRunBatchImportOnlySkipsAllButAlwaysPublish(t *testing.T) {
	post := pendingRecord("post")
	alert := pendingRecord("alert")
	lister := &fakeLister{records: []models.StagingRecord{post, alert}}
	mat := &fakeMaterializer{}

	s := NewScheduler(lister, mat, nil, Config{
		PublishPolicy:      models.PublishPolicyImportOnly,
		AlwaysPublishTypes: []string{"alert"},
	}, testutil.Logger())
	s.RunBatch(context.Background())

	require.Len(t, mat.calls, 1)
	assert.Equal(t, models.ContentStatusPublish, mat.calls[alert.ID])
}

func TestRunBatchRespectsBatchSize(t *testing.T) {
	records := make([]models.StagingRecord, 5)
	for i := range records {
		records[i] = pendingRecord("post")
	}
	lister := &fakeLister{records: records}
	mat := &fakeMaterializer{}

	s := NewScheduler(lister, mat, nil, Config{
		PublishPolicy: models.PublishPolicyPublish,
		BatchSize:     3,
	}, testutil.Logger())
	s.RunBatch(context.Background())

	assert.Len(t, mat.calls, 3)
}
