package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/ops-tracker-api/internal/models"
	appErrors "github.com/noah-isme/ops-tracker-api/pkg/errors"
)

// Page sizes mirror the store's clamping so pagination reports what was used.
const (
	defaultListPageSize = 50
	maxListPageSize     = 200
)

type issueRepository interface {
	Create(ctx context.Context, issue *models.Issue) error
	FindByID(ctx context.Context, id string) (*models.Issue, error)
	List(ctx context.Context, q models.IssueQuery) ([]models.Issue, int, error)
	Update(ctx context.Context, issue *models.Issue) error
	Delete(ctx context.Context, id string) error
}

type issueUserLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// IssueService implements issue CRUD on top of the store. Every mutation
// drops the cached statistics.
type IssueService struct {
	repo      issueRepository
	users     issueUserLookup
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewIssueService constructs an IssueService.
func NewIssueService(repo issueRepository, users issueUserLookup, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *IssueService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IssueService{repo: repo, users: users, cache: cache, validator: validate, logger: logger, now: time.Now}
}

// List returns a page of issues matching params.
func (s *IssueService) List(ctx context.Context, params IssueQueryParams) ([]models.IssueView, *models.Pagination, error) {
	q := BuildIssueQuery(params)
	issues, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list issues")
	}

	now := s.now()
	views := make([]models.IssueView, len(issues))
	for i, issue := range issues {
		views[i] = models.NewIssueView(issue, now)
	}
	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultListPageSize
	}
	if size > maxListPageSize {
		size = maxListPageSize
	}
	return views, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads one issue.
func (s *IssueService) Get(ctx context.Context, id string) (*models.IssueView, error) {
	issue, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	view := models.NewIssueView(*issue, s.now())
	return &view, nil
}

// Create validates req and stores a new issue authored by actorID.
func (s *IssueService) Create(ctx context.Context, actorID string, req models.CreateIssueRequest) (*models.IssueView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid issue payload")
	}

	now := s.now().UTC()
	issue := &models.Issue{
		CreatedAt:      now,
		Title:          strings.TrimSpace(req.Title),
		Description:    strings.TrimSpace(req.Description),
		Status:         models.IssueStatusOpen,
		Priority:       models.IssuePriorityMedium,
		AssignedTo:     strings.TrimSpace(req.AssignedTo),
		Tags:           models.NormalizeTags(req.Tags),
		DueDate:        req.DueDate,
		EstimatedHours: req.EstimatedHours,
	}
	if req.Priority != "" {
		issue.Priority = req.Priority
	}
	if actorID != "" {
		issue.CreatedBy = &actorID
	}
	if req.AssigneeID != nil && *req.AssigneeID != "" {
		if err := s.applyAssignee(ctx, issue, *req.AssigneeID, issue.AssignedTo); err != nil {
			return nil, err
		}
	}
	if req.Status != "" {
		issue.ApplyStatus(req.Status, now)
	}

	if err := s.repo.Create(ctx, issue); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create issue")
	}
	s.invalidateStats(ctx)

	view := models.NewIssueView(*issue, s.now())
	return &view, nil
}

// Update applies the non-nil fields of req.
func (s *IssueService) Update(ctx context.Context, id string, req models.UpdateIssueRequest) (*models.IssueView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid issue payload")
	}
	issue, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		issue.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		issue.Description = strings.TrimSpace(*req.Description)
	}
	if req.Priority != nil {
		issue.Priority = *req.Priority
	}
	if req.AssignedTo != nil {
		issue.AssignedTo = strings.TrimSpace(*req.AssignedTo)
	}
	if req.Tags != nil {
		issue.Tags = models.NormalizeTags(req.Tags)
	}
	if req.DueDate != nil {
		issue.DueDate = req.DueDate
	}
	if req.EstimatedHours != nil {
		issue.EstimatedHours = req.EstimatedHours
	}
	if req.ActualHours != nil {
		issue.ActualHours = req.ActualHours
	}
	if req.Status != nil {
		issue.ApplyStatus(*req.Status, s.now())
	}

	return s.save(ctx, issue, "failed to update issue")
}

// ChangeStatus moves the issue to a new status.
func (s *IssueService) ChangeStatus(ctx context.Context, id string, req models.UpdateIssueStatusRequest) (*models.IssueView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	issue, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	issue.ApplyStatus(req.Status, s.now())
	return s.save(ctx, issue, "failed to change issue status")
}

// Assign sets or clears the assignee.
func (s *IssueService) Assign(ctx context.Context, id string, req models.AssignIssueRequest) (*models.IssueView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	issue, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	label := strings.TrimSpace(req.AssignedTo)
	if req.AssigneeID == "" {
		issue.AssigneeID = nil
		issue.AssignedTo = label
	} else if err := s.applyAssignee(ctx, issue, req.AssigneeID, label); err != nil {
		return nil, err
	}
	return s.save(ctx, issue, "failed to assign issue")
}

// Delete removes the issue and returns what was deleted.
func (s *IssueService) Delete(ctx context.Context, id string) (*models.Issue, error) {
	issue, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete issue")
	}
	s.invalidateStats(ctx)
	return issue, nil
}

func (s *IssueService) load(ctx context.Context, id string) (*models.Issue, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
	}
	issue, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}
	return issue, nil
}

func (s *IssueService) save(ctx context.Context, issue *models.Issue, failure string) (*models.IssueView, error) {
	if err := s.repo.Update(ctx, issue); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, failure)
	}
	s.invalidateStats(ctx)
	view := models.NewIssueView(*issue, s.now())
	return &view, nil
}

func (s *IssueService) applyAssignee(ctx context.Context, issue *models.Issue, assigneeID, label string) error {
	if s.users == nil {
		issue.AssigneeID = &assigneeID
		issue.AssignedTo = label
		return nil
	}
	user, err := s.users.FindByID(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "assignee not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignee")
	}
	issue.AssigneeID = &user.ID
	issue.AssignedTo = label
	if issue.AssignedTo == "" {
		issue.AssignedTo = user.Name
	}
	return nil
}

func (s *IssueService) invalidateStats(ctx context.Context) {
	s.cache.Invalidate(ctx, cachePatternStatsAll)
}
