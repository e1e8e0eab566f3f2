package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ops-tracker-api/internal/models"
	"github.com/noah-isme/ops-tracker-api/internal/service"
	appErrors "github.com/noah-isme/ops-tracker-api/pkg/errors"
	"github.com/noah-isme/ops-tracker-api/pkg/response"
)

type captureDispatcher struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (d *captureDispatcher) Submit(entry models.AuditLog) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, entry)
}

func (d *captureDispatcher) all() []models.AuditLog {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.AuditLog(nil), d.entries...)
}

type payload struct {
	Title string `json:"title"`
}

func withClaims(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: userID, Role: models.RoleUser})
		c.Next()
	}
}

func describeTitle(req RequestSummary, out OutcomeSummary) string {
	return "Issue updated: " + req.BodyString("title")
}

func newAuditRouter(dispatcher AuditDispatcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withClaims("actor-1"))
	r.PUT("/issues/:id", Audit(dispatcher, models.AuditActionIssueUpdate, describeTitle), func(c *gin.Context) {
		var body payload
		if err := c.ShouldBindJSON(&body); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "bad body"))
			return
		}
		if c.Param("id") == "missing" {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "issue not found"))
			return
		}
		response.JSON(c, http.StatusOK, gin.H{"id": c.Param("id"), "title": body.Title}, nil)
	})
	r.DELETE("/issues/:id", Audit(dispatcher, models.AuditActionIssueDelete, func(req RequestSummary, out OutcomeSummary) string {
		return "Issue deleted: " + req.Param("id")
	}), func(c *gin.Context) {
		response.NoContent(c)
	})
	return r
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "audit-test")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuditRecordsQualifyingOutcome(t *testing.T) {
	dispatcher := &captureDispatcher{}
	r := newAuditRouter(dispatcher)

	rec := doRequest(r, http.MethodPut, "/issues/issue-1?verbose=1", `{"title":"Fix login"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	entries := dispatcher.all()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, models.AuditActionIssueUpdate, entry.Action)
	assert.Equal(t, "Issue updated: Fix login", entry.Description)
	assert.Equal(t, models.AuditStatusSuccess, entry.Status)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "actor-1", *entry.UserID)
	require.NotNil(t, entry.TargetIssueID)
	assert.Equal(t, "issue-1", *entry.TargetIssueID)
	assert.Nil(t, entry.TargetUserID)
	assert.Equal(t, "audit-test", entry.UserAgent)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Metadata, &meta))
	assert.Equal(t, "PUT", meta["method"])
	assert.Equal(t, "/issues/issue-1", meta["path"])
	assert.Equal(t, map[string]interface{}{"verbose": "1"}, meta["query"])
	assert.Equal(t, map[string]interface{}{"id": "issue-1"}, meta["params"])
}

func TestAuditSkipsFailedOutcomes(t *testing.T) {
	dispatcher := &captureDispatcher{}
	r := newAuditRouter(dispatcher)

	assert.Equal(t, http.StatusNotFound, doRequest(r, http.MethodPut, "/issues/missing", `{"title":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(r, http.MethodPut, "/issues/issue-1", `not json`).Code)
	assert.Empty(t, dispatcher.all())
}

func TestAuditInstancesAreIndependent(t *testing.T) {
	dispatcher := &captureDispatcher{}
	r := newAuditRouter(dispatcher)

	doRequest(r, http.MethodPut, "/issues/a", `{"title":"first"}`)
	doRequest(r, http.MethodDelete, "/issues/b", "")
	doRequest(r, http.MethodPut, "/issues/missing", `{"title":"x"}`)

	entries := dispatcher.all()
	require.Len(t, entries, 2)
	assert.Equal(t, models.AuditActionIssueUpdate, entries[0].Action)
	assert.Equal(t, "Issue updated: first", entries[0].Description)
	assert.Equal(t, models.AuditActionIssueDelete, entries[1].Action)
	assert.Equal(t, "Issue deleted: b", entries[1].Description)
	assert.Equal(t, "b", *entries[1].TargetIssueID)
}

func TestAuditRestoresBodyForHandler(t *testing.T) {
	dispatcher := &captureDispatcher{}
	r := newAuditRouter(dispatcher)

	rec := doRequest(r, http.MethodPut, "/issues/issue-1", `{"title":"kept"}`)
	assert.JSONEq(t, `{"data":{"id":"issue-1","title":"kept"}}`, rec.Body.String())
}

type failingAuditRepo struct {
	mu    sync.Mutex
	calls int
}

func (f *failingAuditRepo) Create(ctx context.Context, log *models.AuditLog) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return errors.New("connection refused")
}

func (f *failingAuditRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.AuditLogDetail, error) {
	return nil, nil
}

func (f *failingAuditRepo) ListByIssue(ctx context.Context, issueID string, limit int) ([]models.AuditLogDetail, error) {
	return nil, nil
}

func (f *failingAuditRepo) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogDetail, error) {
	return nil, nil
}

func (f *failingAuditRepo) SummaryCounts(ctx context.Context, start, end time.Time) ([]models.AuditCountRow, error) {
	return nil, nil
}

func (f *failingAuditRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestAuditStoreOutageDoesNotChangeResponse(t *testing.T) {
	baseline := doRequest(newAuditRouter(&captureDispatcher{}), http.MethodPut, "/issues/issue-1", `{"title":"same"}`)

	repo := &failingAuditRepo{}
	metrics := service.NewMetricsService()
	dispatcher := service.NewAuditDispatcher(
		service.NewAuditService(repo, nil, metrics, nil, service.AuditServiceConfig{}),
		metrics, nil, service.AuditDispatcherConfig{Workers: 1, BufferSize: 4},
	)
	dispatcher.Start(context.Background())

	outage := doRequest(newAuditRouter(dispatcher), http.MethodPut, "/issues/issue-1", `{"title":"same"}`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	dispatcher.Shutdown(ctx)

	assert.Equal(t, baseline.Code, outage.Code)
	assert.Equal(t, baseline.Body.String(), outage.Body.String())
	assert.Equal(t, 1, repo.count())
	assert.Equal(t, uint64(1), metrics.Snapshot().AuditFailed)
}

func TestAuditActorOption(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dispatcher := &captureDispatcher{}
	r := gin.New()
	r.POST("/auth/login", Audit(dispatcher, models.AuditActionUserLogin, nil,
		WithActor(func(req RequestSummary, out OutcomeSummary) string {
			if res, ok := out.Data.(*models.LoginResponse); ok {
				return res.User.ID
			}
			return ""
		}),
		WithTargets(func(req RequestSummary, out OutcomeSummary) Targets { return Targets{} }),
	), func(c *gin.Context) {
		response.JSON(c, http.StatusOK, &models.LoginResponse{User: models.UserInfo{ID: "user-9"}}, nil)
	})

	doRequest(r, http.MethodPost, "/auth/login", `{"email":"a@b.c","userId":"ignored"}`)

	entries := dispatcher.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "user-9", *entries[0].UserID)
	assert.Equal(t, string(models.AuditActionUserLogin), entries[0].Description)
	assert.Nil(t, entries[0].TargetUserID)
}

func TestConventionalTargets(t *testing.T) {
	req := RequestSummary{
		Params: map[string]string{"id": "param-issue", "userId": "param-user"},
		Body:   map[string]interface{}{"issue_id": "body-issue"},
	}
	targets := ConventionalTargets(req, OutcomeSummary{})
	assert.Equal(t, "body-issue", targets.IssueID)
	assert.Equal(t, "param-user", targets.UserID)
}

type brokenBody struct {
	served bool
}

func (b *brokenBody) Read(p []byte) (int, error) {
	if !b.served {
		b.served = true
		return copy(p, `{"title":`), nil
	}
	return 0, errors.New("connection reset")
}

func (b *brokenBody) Close() error { return nil }

func TestCaptureBodyKeepsPartialReadOnError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPut, "/issues/issue-1", nil)
	c.Request.Body = &brokenBody{}

	assert.Nil(t, captureBody(c))

	seen, err := io.ReadAll(c.Request.Body)
	assert.Error(t, err)
	assert.Equal(t, `{"title":`, string(seen))
}
