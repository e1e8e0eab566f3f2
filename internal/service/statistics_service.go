package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ops-tracker-api/internal/models"
	appErrors "github.com/noah-isme/ops-tracker-api/pkg/errors"
)

type issueStatsRepository interface {
	Statistics(ctx context.Context) ([]models.IssueStatsRow, error)
}

// StatisticsService computes the issue facets shown on the statistics
// endpoint and the dashboard.
type StatisticsService struct {
	repo    issueStatsRepository
	cache   *CacheService
	ttl     time.Duration
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewStatisticsService constructs the service. ttl governs the cached copy.
func NewStatisticsService(repo issueStatsRepository, cache *CacheService, ttl time.Duration, metrics *MetricsService, logger *zap.Logger) *StatisticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatisticsService{repo: repo, cache: cache, ttl: ttl, metrics: metrics, logger: logger, now: time.Now}
}

// IssueStatistics returns counts by status and priority, the total and the
// average time to first resolution. Either every facet is returned or an
// aggregation error is.
func (s *StatisticsService) IssueStatistics(ctx context.Context) (*models.IssueStatistics, error) {
	var cached models.IssueStatistics
	if s.cache.Get(ctx, cacheKeyIssueStats, &cached) {
		cached.Cached = true
		return &cached, nil
	}

	gen := s.cache.Generation()
	start := time.Now()
	rows, err := s.repo.Statistics(ctx)
	s.metrics.ObserveDBQuery("issue_statistics", time.Since(start))
	if err != nil {
		s.logger.Error("issue statistics failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrAggregation.Code, appErrors.ErrAggregation.Status, appErrors.ErrAggregation.Message)
	}

	stats := foldIssueStatistics(rows)
	stats.GeneratedAt = s.now().UTC()
	s.cache.SetIfCurrent(ctx, cacheKeyIssueStats, stats, s.ttl, gen)
	return &stats, nil
}

func foldIssueStatistics(rows []models.IssueStatsRow) models.IssueStatistics {
	stats := models.IssueStatistics{
		ByStatus: map[models.IssueStatus]int{
			models.IssueStatusOpen:       0,
			models.IssueStatusInProgress: 0,
			models.IssueStatusClosed:     0,
		},
		ByPriority: map[models.IssuePriority]int{
			models.IssuePriorityLow:    0,
			models.IssuePriorityMedium: 0,
			models.IssuePriorityHigh:   0,
		},
	}

	var seconds float64
	for _, row := range rows {
		stats.ByStatus[row.Status] += row.Count
		stats.ByPriority[row.Priority] += row.Count
		stats.Total += row.Count
		stats.Resolved += row.Resolved
		seconds += row.ResolutionSeconds
	}

	if stats.Resolved > 0 {
		avg := seconds / float64(stats.Resolved)
		stats.AvgResolutionTime = time.Duration(avg * float64(time.Second))
		stats.AvgResolutionHours = math.Round(avg/3600*100) / 100
	}
	return stats
}
