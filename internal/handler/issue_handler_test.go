package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ops-tracker-api/internal/middleware"
	"github.com/noah-isme/ops-tracker-api/internal/models"
	"github.com/noah-isme/ops-tracker-api/internal/service"
	appErrors "github.com/noah-isme/ops-tracker-api/pkg/errors"
)

type responseEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var env responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func newTestContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, rec
}

type fakeIssueSrv struct {
	listParams service.IssueQueryParams
	listResult []models.IssueView
	actorID    string
	created    models.CreateIssueRequest
	issue      *models.IssueView
	deleted    *models.Issue
	err        error
}

func (f *fakeIssueSrv) List(_ context.Context, params service.IssueQueryParams) ([]models.IssueView, *models.Pagination, error) {
	f.listParams = params
	return f.listResult, &models.Pagination{Page: 1, PageSize: 50, TotalCount: len(f.listResult)}, f.err
}

func (f *fakeIssueSrv) Get(context.Context, string) (*models.IssueView, error) {
	return f.issue, f.err
}

func (f *fakeIssueSrv) Create(_ context.Context, actorID string, req models.CreateIssueRequest) (*models.IssueView, error) {
	f.actorID = actorID
	f.created = req
	return f.issue, f.err
}

func (f *fakeIssueSrv) Update(context.Context, string, models.UpdateIssueRequest) (*models.IssueView, error) {
	return f.issue, f.err
}

func (f *fakeIssueSrv) ChangeStatus(context.Context, string, models.UpdateIssueStatusRequest) (*models.IssueView, error) {
	return f.issue, f.err
}

func (f *fakeIssueSrv) Assign(context.Context, string, models.AssignIssueRequest) (*models.IssueView, error) {
	return f.issue, f.err
}

func (f *fakeIssueSrv) Delete(context.Context, string) (*models.Issue, error) {
	return f.deleted, f.err
}

type fakeStatsSrv struct {
	stats *models.IssueStatistics
	err   error
}

func (f fakeStatsSrv) IssueStatistics(context.Context) (*models.IssueStatistics, error) {
	return f.stats, f.err
}

type fakeHistorySrv struct {
	issueID string
	limit   int
	logs    []models.AuditLogDetail
}

func (f *fakeHistorySrv) HistoryFor(_ context.Context, issueID string, limit int) ([]models.AuditLogDetail, error) {
	f.issueID, f.limit = issueID, limit
	return f.logs, nil
}

func TestIssueHandlerListBindsQuery(t *testing.T) {
	srv := &fakeIssueSrv{listResult: []models.IssueView{{Issue: models.Issue{Code: "ISSUE-001"}}}}
	h := NewIssueHandler(srv, fakeStatsSrv{}, &fakeHistorySrv{})

	c, rec := newTestContext(http.MethodGet, "/issues?status=Open&search=login&sortBy=title&order=asc&limit=10", "")
	h.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Open", srv.listParams.Status)
	assert.Equal(t, "login", srv.listParams.Search)
	assert.Equal(t, "title", srv.listParams.SortBy)
	assert.Equal(t, "asc", srv.listParams.Order)
	assert.Equal(t, 10, srv.listParams.PageSize)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
}

func TestIssueHandlerListRejectsBadPage(t *testing.T) {
	h := NewIssueHandler(&fakeIssueSrv{}, fakeStatsSrv{}, &fakeHistorySrv{})

	c, rec := newTestContext(http.MethodGet, "/issues?page=abc", "")
	h.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIssueHandlerCreatePassesActor(t *testing.T) {
	srv := &fakeIssueSrv{issue: &models.IssueView{Issue: models.Issue{ID: "i1", Code: "ISSUE-001"}}}
	h := NewIssueHandler(srv, fakeStatsSrv{}, &fakeHistorySrv{})

	c, rec := newTestContext(http.MethodPost, "/issues", `{"title":"Fix login","description":"500 on submit"}`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})
	h.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user-1", srv.actorID)
	assert.Equal(t, "Fix login", srv.created.Title)
}

func TestIssueHandlerGetNotFound(t *testing.T) {
	h := NewIssueHandler(&fakeIssueSrv{err: appErrors.Clone(appErrors.ErrNotFound, "issue not found")}, fakeStatsSrv{}, &fakeHistorySrv{})

	c, rec := newTestContext(http.MethodGet, "/issues/x", "")
	c.Params = gin.Params{{Key: "id", Value: "x"}}
	h.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestIssueHandlerStatsReportsCache(t *testing.T) {
	h := NewIssueHandler(&fakeIssueSrv{}, fakeStatsSrv{stats: &models.IssueStatistics{Total: 4, Cached: true}}, &fakeHistorySrv{})

	c, rec := newTestContext(http.MethodGet, "/issues/stats", "")
	h.Stats(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get(middleware.CacheHeader))
	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env.Meta["cache_hit"])
}

func TestIssueHandlerStatsUnavailable(t *testing.T) {
	h := NewIssueHandler(&fakeIssueSrv{}, fakeStatsSrv{err: appErrors.Clone(appErrors.ErrAggregation, "")}, &fakeHistorySrv{})

	c, rec := newTestContext(http.MethodGet, "/issues/stats", "")
	h.Stats(c)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIssueHandlerHistory(t *testing.T) {
	history := &fakeHistorySrv{logs: []models.AuditLogDetail{{AuditLog: models.AuditLog{ID: "a1"}}}}
	h := NewIssueHandler(&fakeIssueSrv{}, fakeStatsSrv{}, history)

	c, rec := newTestContext(http.MethodGet, "/issues/i1/history?limit=5", "")
	c.Params = gin.Params{{Key: "id", Value: "i1"}}
	h.History(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "i1", history.issueID)
	assert.Equal(t, 5, history.limit)
}
