package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/ops-tracker-api/internal/dto"
	"github.com/noah-isme/ops-tracker-api/internal/models"
)

const dashboardRecentLimit = 10

type issueStatisticsProvider interface {
	IssueStatistics(ctx context.Context) (*models.IssueStatistics, error)
}

type activityProvider interface {
	Summarize(ctx context.Context, start, end *time.Time) (*models.AuditSummary, error)
	ActivityFor(ctx context.Context, userID string, limit int) ([]models.AuditLogDetail, error)
}

// DashboardService composes the overview from the statistics and audit
// services.
type DashboardService struct {
	stats    issueStatisticsProvider
	activity activityProvider
	logger   *zap.Logger
	now      func() time.Time
}

// NewDashboardService constructs the service.
func NewDashboardService(stats issueStatisticsProvider, activity activityProvider, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{stats: stats, activity: activity, logger: logger, now: time.Now}
}

// Overview loads every section concurrently. Any failing section fails the
// whole overview; partial dashboards are never returned.
func (s *DashboardService) Overview(ctx context.Context, userID string) (*dto.DashboardOverview, error) {
	var (
		issues  *models.IssueStatistics
		summary *models.AuditSummary
		recent  []models.AuditLogDetail
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		issues, err = s.stats.IssueStatistics(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		summary, err = s.activity.Summarize(gctx, nil, nil)
		return err
	})
	if userID != "" {
		g.Go(func() error {
			var err error
			recent, err = s.activity.ActivityFor(gctx, userID, dashboardRecentLimit)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("dashboard overview failed", zap.Error(err))
		return nil, err
	}

	if recent == nil {
		recent = []models.AuditLogDetail{}
	}
	return &dto.DashboardOverview{
		Issues:         *issues,
		Activity:       *summary,
		RecentActivity: recent,
		GeneratedAt:    s.now().UTC(),
	}, nil
}
