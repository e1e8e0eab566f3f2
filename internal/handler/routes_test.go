package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ops-tracker-api/internal/dto"
	"github.com/noah-isme/ops-tracker-api/internal/models"
	appErrors "github.com/noah-isme/ops-tracker-api/pkg/errors"
)

type staticTokens map[string]*models.JWTClaims

func (s staticTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type recordingDispatcher struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (r *recordingDispatcher) Submit(entry models.AuditLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

type fakeAuthSrv struct {
	login *models.LoginResponse
	err   error
}

func (f fakeAuthSrv) Register(context.Context, models.RegisterRequest) (*models.LoginResponse, error) {
	return f.login, f.err
}

func (f fakeAuthSrv) Login(context.Context, models.LoginRequest) (*models.LoginResponse, error) {
	return f.login, f.err
}

func (f fakeAuthSrv) Me(_ context.Context, userID string) (*models.UserInfo, error) {
	return &models.UserInfo{ID: userID}, nil
}

type fakeDashboardSrv struct{}

func (fakeDashboardSrv) Overview(context.Context, string) (*dto.DashboardOverview, error) {
	return &dto.DashboardOverview{}, nil
}

func newTestRouter(issues *fakeIssueSrv, auth fakeAuthSrv, recorder *recordingDispatcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	Router{
		Auth:      NewAuthHandler(auth),
		Issues:    NewIssueHandler(issues, fakeStatsSrv{stats: &models.IssueStatistics{}}, &fakeHistorySrv{}),
		Audit:     NewAuditHandler(&fakeAuditQuerySrv{}, &fakeExportSrv{}),
		Dashboard: NewDashboardHandler(fakeDashboardSrv{}),
		Metrics:   NewMetricsHandler(nil, nil),
		Tokens: staticTokens{
			"admin-token": {UserID: "admin-1", Role: models.RoleAdmin},
			"user-token":  {UserID: "user-1", Role: models.RoleUser},
		},
		Recorder: recorder,
	}.Register(engine, "/api/v1")
	return engine
}

func serve(engine *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestRoutesAuditIssueCreate(t *testing.T) {
	recorder := &recordingDispatcher{}
	issues := &fakeIssueSrv{issue: &models.IssueView{Issue: models.Issue{ID: "issue-1", Code: "ISSUE-001", Title: "Fix login"}}}
	engine := newTestRouter(issues, fakeAuthSrv{}, recorder)

	rec := serve(engine, http.MethodPost, "/api/v1/issues", "user-token", `{"title":"Fix login","description":"x"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	assert.Equal(t, models.AuditActionIssueCreate, entry.Action)
	assert.Equal(t, "Issue created: Fix login (ISSUE-001)", entry.Description)
	assert.Equal(t, "user-1", *entry.UserID)
	assert.Equal(t, "issue-1", *entry.TargetIssueID)
}

func TestRoutesFailedMutationIsNotAudited(t *testing.T) {
	recorder := &recordingDispatcher{}
	issues := &fakeIssueSrv{err: appErrors.Clone(appErrors.ErrNotFound, "issue not found")}
	engine := newTestRouter(issues, fakeAuthSrv{}, recorder)

	rec := serve(engine, http.MethodDelete, "/api/v1/issues/missing", "user-token", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(engine, http.MethodPost, "/api/v1/issues", "", `{"title":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, recorder.entries)
}

func TestRoutesLoginAuditedWithAccountAsActor(t *testing.T) {
	recorder := &recordingDispatcher{}
	auth := fakeAuthSrv{login: &models.LoginResponse{User: models.UserInfo{ID: "user-3", Email: "jane@example.com"}}}
	engine := newTestRouter(&fakeIssueSrv{}, auth, recorder)

	rec := serve(engine, http.MethodPost, "/api/v1/auth/login", "", `{"email":"jane@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, models.AuditActionUserLogin, recorder.entries[0].Action)
	assert.Equal(t, "user-3", *recorder.entries[0].UserID)
	assert.Equal(t, "User jane@example.com logged in successfully", recorder.entries[0].Description)
}

func TestRoutesPrivilegedAuditEndpoints(t *testing.T) {
	engine := newTestRouter(&fakeIssueSrv{}, fakeAuthSrv{}, &recordingDispatcher{})

	assert.Equal(t, http.StatusForbidden, serve(engine, http.MethodGet, "/api/v1/audit/summary", "user-token", "").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v1/audit/summary", "admin-token", "").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v1/audit/users/user-1", "user-token", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(engine, http.MethodGet, "/api/v1/audit/users/admin-1", "user-token", "").Code)
}
