package intake

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/stagingrecord"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/testutil"
)

type fakeStager struct {
	existing map[string]uuid.UUID
	lastDoc  *models.ContentDocument
}

func (f *fakeStager) Upsert(ctx context.Context, doc *models.ContentDocument) (*stagingrecord.UpsertResult, error) {
	f.lastDoc = doc
	key := doc.Name + ":" + doc.Type

	if f.existing == nil {
		f.existing = map[string]uuid.UUID{}
	}
	if id, ok := f.existing[key]; ok {
		return &stagingrecord.UpsertResult{
			Record: &models.StagingRecord{ID: id, Name: doc.Name, Type: doc.Type, Status: models.StatusPendingUpdate, UpdatedAt: time.Now()},
			IsNew:  false,
		}, nil
	}

	id := uuid.New()
	f.existing[key] = id
	return &stagingrecord.UpsertResult{
		Record: &models.StagingRecord{ID: id, Name: doc.Name, Type: doc.Type, Status: models.StatusPendingNew, UpdatedAt: time.Now()},
		IsNew:  true,
	}, nil
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

func docJSON(t *testing.T) string {
	t.Helper()
	doc := models.ContentDocument{
		Name:    "annual-summit",
		Type:    "event",
		Title:   "Annual Summit",
		Channel: "acme",
	}
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(b)
}

func post(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(testutil.Logger())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/intake", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Receive(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestReceiveStagesNewDocument(t *testing.T) {
	stager := &fakeStager{}
	h := NewHandler(stager, nil, nil, Config{SchedulingEnabled: true}, testutil.Logger())

	rec := post(t, h, docJSON(t))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "staged_new", resp.Outcome)
	assert.Equal(t, models.StatusPendingNew, resp.Status)
	assert.False(t, resp.Materialized)
}

func TestReceiveRedeliveryUpdatesInPlace(t *testing.T) {
	stager := &fakeStager{}
	h := NewHandler(stager, nil, nil, Config{SchedulingEnabled: true}, testutil.Logger())

	post(t, h, docJSON(t))
	rec := post(t, h, docJSON(t))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "staged_update", resp.Outcome)
	assert.Equal(t, models.StatusPendingUpdate, resp.Status)
}

func TestReceiveMaterializesSynchronouslyWhenSchedulingDisabled(t *testing.T) {
	stager := &fakeStager{}
	mat := &fakeMaterializer{}
	h := NewHandler(stager, mat, nil, Config{
		SchedulingEnabled: false,
		PublishPolicy:     models.PublishPolicyDraft,
	}, testutil.Logger())

	rec := post(t, h, docJSON(t))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Materialized)
	assert.Equal(t, models.ContentStatusDraft, mat.calls[resp.ID])
}

func TestReceiveImportOnlyPolicySkipsMaterialization(t *testing.T) {
	stager := &fakeStager{}
	mat := &fakeMaterializer{}
	h := NewHandler(stager, mat, nil, Config{
		SchedulingEnabled: false,
		PublishPolicy:     models.PublishPolicyImportOnly,
	}, testutil.Logger())

	rec := post(t, h, docJSON(t))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, mat.calls)
}

func TestReceiveRejectsInvalidDocument(t *testing.T) {
	h := NewHandler(&fakeStager{}, nil, nil, Config{SchedulingEnabled: true}, testutil.Logger())

	// Missing required title and channel
	rec := post(t, h, `{"name":"x","type":"post"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccessTokenMiddleware(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(testutil.Logger())
	e.Use(middleware.AccessTokenMiddleware("secret"))
	e.POST("/intake", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"valid token", "secret", http.StatusOK},
		{"wrong token", "guess", http.StatusUnauthorized},
		{"missing token", "", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/intake", nil)
			if tc.token != "" {
				req.Header.Set(middleware.AccessTokenHeader, tc.token)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
