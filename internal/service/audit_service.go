package service

import (
	"context"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/ops-tracker-api/internal/models"
	appErrors "github.com/noah-isme/ops-tracker-api/pkg/errors"
)

const (
	defaultAuditLimit   = 50
	maxAuditLimit       = 200
	topActorsLimit      = 10
	defaultAuditWindow  = 30 * 24 * time.Hour
	maxAuditExportLimit = 5000
)

type auditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.AuditLogDetail, error)
	ListByIssue(ctx context.Context, issueID string, limit int) ([]models.AuditLogDetail, error)
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogDetail, error)
	SummaryCounts(ctx context.Context, start, end time.Time) ([]models.AuditCountRow, error)
}

type auditUserLookup interface {
	FindRefs(ctx context.Context, ids []string) (map[string]models.UserRef, error)
}

// AuditServiceConfig tunes read defaults.
type AuditServiceConfig struct {
	SummaryWindow time.Duration
	DefaultLimit  int
}

// AuditService is the only writer of audit records and answers the activity
// and summary queries over them.
type AuditService struct {
	repo    auditRepository
	users   auditUserLookup
	metrics *MetricsService
	logger  *zap.Logger
	config  AuditServiceConfig
	now     func() time.Time
}

// NewAuditService constructs an AuditService.
func NewAuditService(repo auditRepository, users auditUserLookup, metrics *MetricsService, logger *zap.Logger, cfg AuditServiceConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SummaryWindow <= 0 {
		cfg.SummaryWindow = defaultAuditWindow
	}
	if cfg.DefaultLimit <= 0 || cfg.DefaultLimit > maxAuditLimit {
		cfg.DefaultLimit = defaultAuditLimit
	}
	return &AuditService{repo: repo, users: users, metrics: metrics, logger: logger, config: cfg, now: time.Now}
}

// Record persists one entry. It never returns an error: invalid entries and
// storage failures are logged and counted, then dropped.
func (s *AuditService) Record(ctx context.Context, entry models.AuditLog) {
	if !entry.Action.Valid() {
		s.logger.Warn("audit entry rejected", zap.String("action", string(entry.Action)))
		s.metrics.RecordAudit(AuditResultInvalid)
		return
	}
	switch {
	case entry.Status == "":
		entry.Status = models.AuditStatusSuccess
	case !entry.Status.Valid():
		s.logger.Warn("audit status unknown, recording as warning",
			zap.String("action", string(entry.Action)),
			zap.String("status", string(entry.Status)),
		)
		entry.Status = models.AuditStatusWarning
	}
	entry.Description = truncateRunes(entry.Description, models.AuditDescriptionLimit)
	entry.UserID = s.reference(entry, "user_id", entry.UserID)
	entry.TargetUserID = s.reference(entry, "target_user_id", entry.TargetUserID)
	entry.TargetIssueID = s.reference(entry, "target_issue_id", entry.TargetIssueID)

	start := time.Now()
	err := s.repo.Create(ctx, &entry)
	s.metrics.ObserveDBQuery("audit_create", time.Since(start))
	if err != nil {
		s.logger.Error("audit record failed",
			zap.String("action", string(entry.Action)),
			zap.Stringp("user_id", entry.UserID),
			zap.Error(err),
		)
		s.metrics.RecordAudit(AuditResultFailed)
		return
	}
	s.metrics.RecordAudit(AuditResultRecorded)
}

// reference keeps an optional id only when it can be stored. A malformed id is
// dropped on its own so the rest of the record is still written.
func (s *AuditService) reference(entry models.AuditLog, field string, value *string) *string {
	value = nonEmpty(value)
	if value == nil {
		return nil
	}
	if _, err := uuid.Parse(*value); err != nil {
		s.logger.Warn("audit reference dropped",
			zap.String("action", string(entry.Action)),
			zap.String("field", field),
			zap.String("value", *value),
		)
		return nil
	}
	return value
}

// ActivityFor returns the newest records where userID was the actor.
func (s *AuditService) ActivityFor(ctx context.Context, userID string, limit int) ([]models.AuditLogDetail, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	logs, err := s.repo.ListByUser(ctx, userID, s.clampLimit(limit))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	return logs, nil
}

// HistoryFor returns the newest records that targeted issueID.
func (s *AuditService) HistoryFor(ctx context.Context, issueID string, limit int) ([]models.AuditLogDetail, error) {
	if _, err := uuid.Parse(issueID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
	}
	logs, err := s.repo.ListByIssue(ctx, issueID, s.clampLimit(limit))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue history")
	}
	return logs, nil
}

// Export lists records for download, newest first.
func (s *AuditService) Export(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogDetail, error) {
	if filter.UserID != "" {
		if _, err := uuid.Parse(filter.UserID); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "userId must be a UUID")
		}
	}
	if filter.IssueID != "" {
		if _, err := uuid.Parse(filter.IssueID); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "issueId must be a UUID")
		}
	}
	if filter.Limit <= 0 || filter.Limit > maxAuditExportLimit {
		filter.Limit = maxAuditExportLimit
	}
	logs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail")
	}
	return logs, nil
}

// Summarize aggregates the window [start, end). A nil end means now and a nil
// start means the configured window before end.
func (s *AuditService) Summarize(ctx context.Context, start, end *time.Time) (*models.AuditSummary, error) {
	windowEnd := s.now().UTC()
	if end != nil {
		windowEnd = end.UTC()
	}
	windowStart := windowEnd.Add(-s.config.SummaryWindow)
	if start != nil {
		windowStart = start.UTC()
	}
	if !windowStart.Before(windowEnd) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start must be before end")
	}

	rows, err := s.repo.SummaryCounts(ctx, windowStart, windowEnd)
	if err != nil {
		s.logger.Error("audit summary failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrAggregation.Code, appErrors.ErrAggregation.Status, appErrors.ErrAggregation.Message)
	}

	summary := foldAuditSummary(rows)
	summary.Start, summary.End = windowStart, windowEnd

	if len(summary.ByUser) > 0 && s.users != nil {
		ids := make([]string, len(summary.ByUser))
		for i, u := range summary.ByUser {
			ids[i] = u.UserID
		}
		refs, err := s.users.FindRefs(ctx, ids)
		if err != nil {
			s.logger.Error("audit summary user lookup failed", zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrAggregation.Code, appErrors.ErrAggregation.Status, appErrors.ErrAggregation.Message)
		}
		for i := range summary.ByUser {
			if ref, ok := refs[summary.ByUser[i].UserID]; ok {
				summary.ByUser[i].Name = ref.Name
				summary.ByUser[i].Email = ref.Email
			}
		}
	}
	return &summary, nil
}

// foldAuditSummary derives every facet from one grouped result set. Records
// without an actor count towards totals but not towards the user facet.
func foldAuditSummary(rows []models.AuditCountRow) models.AuditSummary {
	byAction := make(map[models.AuditAction]int)
	byStatus := make(map[models.AuditStatus]int)
	byUser := make(map[string]int)
	total := 0

	for _, row := range rows {
		byAction[row.Action] += row.Count
		byStatus[row.Status] += row.Count
		if row.UserID != nil && *row.UserID != "" {
			byUser[*row.UserID] += row.Count
		}
		total += row.Count
	}

	summary := models.AuditSummary{
		ByAction: make([]models.ActionCount, 0, len(byAction)),
		ByStatus: make([]models.StatusCount, 0, len(byStatus)),
		ByUser:   make([]models.UserActivity, 0, len(byUser)),
		Total:    total,
	}
	for action, count := range byAction {
		summary.ByAction = append(summary.ByAction, models.ActionCount{Action: action, Count: count})
	}
	sort.Slice(summary.ByAction, func(i, j int) bool {
		a, b := summary.ByAction[i], summary.ByAction[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Action < b.Action
	})

	for status, count := range byStatus {
		summary.ByStatus = append(summary.ByStatus, models.StatusCount{Status: status, Count: count})
	}
	sort.Slice(summary.ByStatus, func(i, j int) bool {
		a, b := summary.ByStatus[i], summary.ByStatus[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Status < b.Status
	})

	for id, count := range byUser {
		summary.ByUser = append(summary.ByUser, models.UserActivity{UserID: id, Count: count})
	}
	sort.Slice(summary.ByUser, func(i, j int) bool {
		a, b := summary.ByUser[i], summary.ByUser[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.UserID < b.UserID
	})
	if len(summary.ByUser) > topActorsLimit {
		summary.ByUser = summary.ByUser[:topActorsLimit]
	}
	return summary
}

func (s *AuditService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.config.DefaultLimit
	}
	if limit > maxAuditLimit {
		return maxAuditLimit
	}
	return limit
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
