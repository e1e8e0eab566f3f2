package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ops-tracker-api/internal/models"
	appErrors "github.com/noah-isme/ops-tracker-api/pkg/errors"
)

// memoryIssueRepo mimics the Postgres store, including the code sequence and
// the COALESCE on resolved_at.
type memoryIssueRepo struct {
	mu     sync.Mutex
	seq    int64
	issues map[string]models.Issue
	err    error
}

func newMemoryIssueRepo() *memoryIssueRepo {
	return &memoryIssueRepo{issues: map[string]models.Issue{}}
}

func (m *memoryIssueRepo) Create(ctx context.Context, issue *models.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.seq++
	issue.ID = uuid.NewString()
	issue.Code = models.FormatIssueCode(m.seq)
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now().UTC()
	}
	m.issues[issue.ID] = *issue
	return nil
}

func (m *memoryIssueRepo) FindByID(ctx context.Context, id string) (*models.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue, ok := m.issues[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &issue, nil
}

func (m *memoryIssueRepo) List(ctx context.Context, q models.IssueQuery) ([]models.Issue, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, 0, m.err
	}
	var out []models.Issue
	for _, issue := range m.issues {
		if q.Matches(issue) {
			out = append(out, issue)
		}
	}
	return out, len(out), nil
}

func (m *memoryIssueRepo) Update(ctx context.Context, issue *models.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.issues[issue.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if stored.ResolvedAt != nil {
		issue.ResolvedAt = stored.ResolvedAt
	}
	issue.Code = stored.Code
	m.issues[issue.ID] = *issue
	return nil
}

func (m *memoryIssueRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.issues[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.issues, id)
	return nil
}

type stubUserLookup struct {
	users map[string]*models.User
}

func (s stubUserLookup) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type recordingCacheRepo struct {
	mu          sync.Mutex
	values      map[string]interface{}
	invalidated []string
	getErr      error
}

func (r *recordingCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return r.getErr
	}
	v, ok := r.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if stats, ok := dest.(*models.IssueStatistics); ok {
		*stats = v.(models.IssueStatistics)
	}
	return nil
}

func (r *recordingCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.values == nil {
		r.values = map[string]interface{}{}
	}
	r.values[key] = value
	return nil
}

func (r *recordingCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, pattern)
	r.values = nil
	return nil
}

func newIssueServiceForTest(repo *memoryIssueRepo, cache *recordingCacheRepo) *IssueService {
	users := stubUserLookup{users: map[string]*models.User{
		"5f0c7d7e-7d7b-4f7e-9a42-6a0e1c2b3d4e": {ID: "5f0c7d7e-7d7b-4f7e-9a42-6a0e1c2b3d4e", Name: "Jane Smith"},
	}}
	cacheSvc := NewCacheService(cache, nil, time.Minute, nil, true)
	return NewIssueService(repo, users, cacheSvc, nil, nil)
}

func TestIssueServiceCreateDefaults(t *testing.T) {
	repo := newMemoryIssueRepo()
	cache := &recordingCacheRepo{}
	svc := newIssueServiceForTest(repo, cache)

	view, err := svc.Create(context.Background(), "actor-1", models.CreateIssueRequest{
		Title:       "  Fix Login ",
		Description: "Users cannot log in",
		Tags:        []string{"Auth", "auth"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ISSUE-001", view.Code)
	assert.Equal(t, "Fix Login", view.Title)
	assert.Equal(t, models.IssueStatusOpen, view.Status)
	assert.Equal(t, models.IssuePriorityMedium, view.Priority)
	assert.Equal(t, []string{"auth"}, []string(view.Tags))
	require.NotNil(t, view.CreatedBy)
	assert.Equal(t, "actor-1", *view.CreatedBy)
	assert.Nil(t, view.ResolvedAt)
	assert.Equal(t, []string{cachePatternStatsAll}, cache.invalidated)
}

func TestIssueServiceCreateValidation(t *testing.T) {
	svc := newIssueServiceForTest(newMemoryIssueRepo(), &recordingCacheRepo{})

	_, err := svc.Create(context.Background(), "", models.CreateIssueRequest{Title: "", Description: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(context.Background(), "", models.CreateIssueRequest{Title: "t", Description: "d", Status: "Done"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestIssueServiceSequentialCodes(t *testing.T) {
	svc := newIssueServiceForTest(newMemoryIssueRepo(), &recordingCacheRepo{})

	var codes []string
	for i := 0; i < 3; i++ {
		view, err := svc.Create(context.Background(), "", models.CreateIssueRequest{Title: "t", Description: "d"})
		require.NoError(t, err)
		codes = append(codes, view.Code)
	}
	assert.Equal(t, []string{"ISSUE-001", "ISSUE-002", "ISSUE-003"}, codes)
}

func TestIssueServiceConcurrentCodesAreUnique(t *testing.T) {
	svc := newIssueServiceForTest(newMemoryIssueRepo(), &recordingCacheRepo{})

	const writers = 32
	codes := make(chan string, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			view, err := svc.Create(context.Background(), "", models.CreateIssueRequest{Title: "t", Description: "d"})
			if assert.NoError(t, err) {
				codes <- view.Code
			}
		}()
	}
	wg.Wait()
	close(codes)

	seen := map[string]bool{}
	for code := range codes {
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
	assert.Len(t, seen, writers)
}

func TestIssueServiceStickyResolution(t *testing.T) {
	repo := newMemoryIssueRepo()
	svc := newIssueServiceForTest(repo, &recordingCacheRepo{})
	clock := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	view, err := svc.Create(context.Background(), "", models.CreateIssueRequest{Title: "t", Description: "d"})
	require.NoError(t, err)

	clock = clock.Add(2 * time.Hour)
	closed, err := svc.ChangeStatus(context.Background(), view.ID, models.UpdateIssueStatusRequest{Status: models.IssueStatusClosed})
	require.NoError(t, err)
	firstResolution := *closed.ResolvedAt

	clock = clock.Add(time.Hour)
	reopened := models.IssueStatusOpen
	_, err = svc.Update(context.Background(), view.ID, models.UpdateIssueRequest{Status: &reopened})
	require.NoError(t, err)

	clock = clock.Add(24 * time.Hour)
	again, err := svc.ChangeStatus(context.Background(), view.ID, models.UpdateIssueStatusRequest{Status: models.IssueStatusClosed})
	require.NoError(t, err)

	assert.Equal(t, firstResolution, *again.ResolvedAt)
	assert.Equal(t, 2*time.Hour, again.ResolvedAt.Sub(again.CreatedAt))
}

func TestIssueServiceAssign(t *testing.T) {
	svc := newIssueServiceForTest(newMemoryIssueRepo(), &recordingCacheRepo{})
	view, err := svc.Create(context.Background(), "", models.CreateIssueRequest{Title: "t", Description: "d"})
	require.NoError(t, err)

	assigned, err := svc.Assign(context.Background(), view.ID, models.AssignIssueRequest{AssigneeID: "5f0c7d7e-7d7b-4f7e-9a42-6a0e1c2b3d4e"})
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", assigned.AssignedTo)
	require.NotNil(t, assigned.AssigneeID)

	_, err = svc.Assign(context.Background(), view.ID, models.AssignIssueRequest{AssigneeID: uuid.NewString()})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	cleared, err := svc.Assign(context.Background(), view.ID, models.AssignIssueRequest{})
	require.NoError(t, err)
	assert.Nil(t, cleared.AssigneeID)
	assert.Empty(t, cleared.AssignedTo)
}

func TestIssueServiceNotFound(t *testing.T) {
	svc := newIssueServiceForTest(newMemoryIssueRepo(), &recordingCacheRepo{})

	_, err := svc.Get(context.Background(), "not-a-uuid")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Delete(context.Background(), uuid.NewString())
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestIssueServiceDeleteReturnsIssue(t *testing.T) {
	repo := newMemoryIssueRepo()
	cache := &recordingCacheRepo{}
	svc := newIssueServiceForTest(repo, cache)
	view, err := svc.Create(context.Background(), "", models.CreateIssueRequest{Title: "Printer", Description: "d"})
	require.NoError(t, err)

	deleted, err := svc.Delete(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, "Printer", deleted.Title)
	assert.Empty(t, repo.issues)
	assert.Len(t, cache.invalidated, 2)
}

func TestIssueServiceListUsesQueryBuilder(t *testing.T) {
	repo := newMemoryIssueRepo()
	svc := newIssueServiceForTest(repo, &recordingCacheRepo{})
	ctx := context.Background()
	_, err := svc.Create(ctx, "", models.CreateIssueRequest{Title: "Fix Login", Description: "d"})
	require.NoError(t, err)
	closed, err := svc.Create(ctx, "", models.CreateIssueRequest{Title: "Fix Login", Description: "d", Status: models.IssueStatusClosed})
	require.NoError(t, err)
	require.NotNil(t, closed.ResolvedAt)
	_, err = svc.Create(ctx, "", models.CreateIssueRequest{Title: "Other", Description: "d"})
	require.NoError(t, err)

	views, page, err := svc.List(ctx, IssueQueryParams{Status: "Open", Search: "login"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "ISSUE-001", views[0].Code)
	assert.Equal(t, 1, page.TotalCount)

	repo.err = errors.New("db down")
	_, _, err = svc.List(ctx, IssueQueryParams{})
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}
