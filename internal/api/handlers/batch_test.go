package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/athebyme/listing-cloner/internal/adapters/logger"
	postgres "github.com/athebyme/listing-cloner/internal/adapters/storage"
	"github.com/athebyme/listing-cloner/internal/domain/models"
	"github.com/athebyme/listing-cloner/internal/domain/services"
	"github.com/athebyme/listing-cloner/internal/security"
	"github.com/athebyme/listing-cloner/internal/utils"
	pkgutils "github.com/athebyme/listing-cloner/pkg/utils"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloneService struct {
	createReq   services.CreateDraftsRequest
	batch       *models.DraftBatch
	createErr   error
	published   *models.DraftBatch
	publishTok  string
	report      *models.PublishReport
	publishErr  error
	publishCall int
}

func (f *fakeCloneService) CreateDrafts(_ context.Context, req services.CreateDraftsRequest, _ services.ProgressReporter) (*models.DraftBatch, error) {
	f.createReq = req
	return f.batch, f.createErr
}

func (f *fakeCloneService) PublishDrafts(_ context.Context, token string, batch *models.DraftBatch, _ services.ProgressReporter) (*models.PublishReport, error) {
	f.publishCall++
	f.publishTok = token
	f.published = batch
	return f.report, f.publishErr
}

type fakeJournal struct {
	summary *postgres.BatchSummary
	err     error
	page    *pkgutils.Pagination
}

func (f *fakeJournal) GetBatchSummary(_ context.Context, batchID string) (*postgres.BatchSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

func (f *fakeJournal) ListBatchEvents(_ context.Context, batchID string, p *pkgutils.Pagination) ([]*models.CloneEvent, error) {
	f.page = p
	p.SetTotal(1)
	return []*models.CloneEvent{{ID: "e1", Type: models.DraftCreatedEvent, BatchID: batchID}}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Error   string          `json:"error"`
	Code    int             `json:"code"`
}

func newTestRouter(t *testing.T, clones *fakeCloneService, journal BatchJournal, operator string) (http.Handler, *security.TicketManager) {
	t.Helper()

	tickets, err := security.NewTicketManager("test-secret", time.Hour)
	require.NoError(t, err)

	h := NewBatchHandler(clones, tickets, journal, logger.NewNopLogger())

	r := chi.NewRouter()
	if operator != "" {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), "operator", operator)))
			})
		})
	}
	r.Post("/batches", h.CreateBatch)
	r.Post("/batches/publish", h.PublishBatch)
	r.Get("/batches/{id}", h.GetBatch)
	r.Get("/batches/{id}/events", h.ListBatchEvents)
	return r, tickets
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func pending(id string, drafts ...string) *models.DraftBatch {
	return &models.DraftBatch{
		ID:                id,
		ShippingProfileID: 42,
		DraftIDs:          drafts,
		State:             models.StateAwaitingPublishConfirmation,
	}
}

func TestCreateBatchIssuesTicket(t *testing.T) {
	clones := &fakeCloneService{batch: pending("b1", "d1", "d2")}
	router, tickets := newTestRouter(t, clones, nil, "alice")

	for _, shipping := range []string{`42`, `"42"`} {
		code, env := doJSON(t, router, http.MethodPost, "/batches",
			`{"api_token":"tok","shipping_profile_id":`+shipping+`,"urls":"https://reverb.com/item/1-a"}`)
		require.Equal(t, http.StatusOK, code)
		assert.True(t, env.Success)
		assert.Equal(t, int64(42), clones.createReq.ShippingProfileID)
		assert.Equal(t, "tok", clones.createReq.Token)
		assert.Equal(t, "alice", clones.createReq.Operator)

		var batch models.DraftBatch
		require.NoError(t, json.Unmarshal(env.Data, &batch))
		require.NotEmpty(t, batch.Ticket)

		restored, claims, err := tickets.Verify(batch.Ticket)
		require.NoError(t, err)
		assert.Equal(t, []string{"d1", "d2"}, restored.DraftIDs)
		assert.Equal(t, "alice", claims.Operator)
	}
}

func TestCreateBatchWithoutDraftsHasNoTicket(t *testing.T) {
	clones := &fakeCloneService{batch: &models.DraftBatch{ID: "b1", DraftIDs: []string{}, State: models.StateIdle}}
	router, _ := newTestRouter(t, clones, nil, "")

	code, env := doJSON(t, router, http.MethodPost, "/batches",
		`{"api_token":"tok","shipping_profile_id":"7","urls":"x"}`)
	require.Equal(t, http.StatusOK, code)

	var batch models.DraftBatch
	require.NoError(t, json.Unmarshal(env.Data, &batch))
	assert.Empty(t, batch.Ticket)
}

func TestCreateBatchValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		kind string
	}{
		{name: "broken json", body: `{`, kind: "bad_request"},
		{name: "shipping not a number", body: `{"api_token":"t","shipping_profile_id":"abc","urls":"x"}`, kind: "validation_error"},
		{name: "shipping missing", body: `{"api_token":"t","urls":"x"}`, kind: "validation_error"},
		{name: "empty token", body: `{"shipping_profile_id":1,"urls":"x"}`, err: utils.ErrEmptyToken, kind: "validation_error"},
		{name: "no urls", body: `{"api_token":"t","shipping_profile_id":1,"urls":" "}`, err: utils.ErrNoURLs, kind: "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t, &fakeCloneService{createErr: tt.err}, nil, "")

			code, env := doJSON(t, router, http.MethodPost, "/batches", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, tt.kind, env.Error)
			assert.Equal(t, http.StatusBadRequest, env.Code)
		})
	}
}

func TestCreateBatchInterrupted(t *testing.T) {
	clones := &fakeCloneService{batch: pending("b1", "d1"), createErr: context.DeadlineExceeded}
	router, _ := newTestRouter(t, clones, nil, "")

	code, env := doJSON(t, router, http.MethodPost, "/batches",
		`{"api_token":"tok","shipping_profile_id":1,"urls":"x"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Meta), "interrupted")

	var batch models.DraftBatch
	require.NoError(t, json.Unmarshal(env.Data, &batch))
	assert.NotEmpty(t, batch.Ticket)
}

func TestPublishBatch(t *testing.T) {
	clones := &fakeCloneService{report: &models.PublishReport{BatchID: "b1", Published: []string{"d1"}, Failed: []string{}}}
	router, tickets := newTestRouter(t, clones, nil, "alice")

	ticket, err := tickets.Issue(pending("b1", "d1"), "alice")
	require.NoError(t, err)

	code, env := doJSON(t, router, http.MethodPost, "/batches/publish",
		`{"api_token":"tok","ticket":"`+ticket+`"}`)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	require.NotNil(t, clones.published)
	assert.Equal(t, "b1", clones.published.ID)
	assert.Equal(t, []string{"d1"}, clones.published.DraftIDs)
	assert.Equal(t, "tok", clones.publishTok)

	var report models.PublishReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, []string{"d1"}, report.Published)
}

func TestPublishBatchRejectsBadTickets(t *testing.T) {
	clones := &fakeCloneService{}
	router, _ := newTestRouter(t, clones, nil, "")

	code, env := doJSON(t, router, http.MethodPost, "/batches/publish", `{"api_token":"tok","ticket":"garbage"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_ticket", env.Error)

	code, env = doJSON(t, router, http.MethodPost, "/batches/publish", `{"api_token":"tok"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", env.Error)

	assert.Zero(t, clones.publishCall)
}

func TestPublishBatchExpiredTicket(t *testing.T) {
	clones := &fakeCloneService{}
	router, _ := newTestRouter(t, clones, nil, "")

	expired, err := security.NewTicketManager("test-secret", time.Millisecond)
	require.NoError(t, err)
	ticket, err := expired.Issue(pending("b1", "d1"), "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		code, env := doJSON(t, router, http.MethodPost, "/batches/publish",
			`{"api_token":"tok","ticket":"`+ticket+`"}`)
		return code == http.StatusBadRequest && env.Error == "ticket_expired"
	}, 3*time.Second, 100*time.Millisecond)
	assert.Zero(t, clones.publishCall)
}

func TestPublishBatchOtherOperator(t *testing.T) {
	clones := &fakeCloneService{}
	router, tickets := newTestRouter(t, clones, nil, "bob")

	ticket, err := tickets.Issue(pending("b1", "d1"), "alice")
	require.NoError(t, err)

	code, env := doJSON(t, router, http.MethodPost, "/batches/publish",
		`{"api_token":"tok","ticket":"`+ticket+`"}`)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", env.Error)
	assert.Zero(t, clones.publishCall)
}

func TestPublishBatchEmptyToken(t *testing.T) {
	clones := &fakeCloneService{publishErr: utils.ErrEmptyToken}
	router, tickets := newTestRouter(t, clones, nil, "")

	ticket, err := tickets.Issue(pending("b1", "d1"), "")
	require.NoError(t, err)

	code, env := doJSON(t, router, http.MethodPost, "/batches/publish", `{"ticket":"`+ticket+`"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", env.Error)
}

func TestGetBatch(t *testing.T) {
	router, _ := newTestRouter(t, &fakeCloneService{}, nil, "")
	code, env := doJSON(t, router, http.MethodGet, "/batches/b1", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Error)

	journal := &fakeJournal{err: postgres.ErrBatchNotFound}
	router, _ = newTestRouter(t, &fakeCloneService{}, journal, "")
	code, _ = doJSON(t, router, http.MethodGet, "/batches/b1", "")
	assert.Equal(t, http.StatusNotFound, code)

	journal = &fakeJournal{summary: &postgres.BatchSummary{ID: "b1", Drafted: 2, Published: 1}}
	router, _ = newTestRouter(t, &fakeCloneService{}, journal, "")
	code, env = doJSON(t, router, http.MethodGet, "/batches/b1", "")
	require.Equal(t, http.StatusOK, code)

	var summary postgres.BatchSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 2, summary.Drafted)
	assert.Equal(t, 1, summary.Published)
}

func TestListBatchEvents(t *testing.T) {
	journal := &fakeJournal{}
	router, _ := newTestRouter(t, &fakeCloneService{}, journal, "")

	code, env := doJSON(t, router, http.MethodGet, "/batches/b1/events?page=2&page_size=5", "")
	require.Equal(t, http.StatusOK, code)

	require.NotNil(t, journal.page)
	assert.Equal(t, 2, journal.page.Page)
	assert.Equal(t, 5, journal.page.PageSize)

	var result struct {
		Items      []models.CloneEvent `json:"items"`
		Pagination pkgutils.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result.Items, 1)
	assert.Equal(t, "b1", result.Items[0].BatchID)
	assert.Equal(t, int64(1), result.Pagination.TotalItems)
}
