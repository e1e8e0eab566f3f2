package dto

import (
	"time"

	"github.com/noah-isme/ops-tracker-api/internal/models"
)

// DashboardOverview is the combined landing payload.
type DashboardOverview struct {
	Issues         models.IssueStatistics  `json:"issues"`
	Activity       models.AuditSummary     `json:"activity"`
	RecentActivity []models.AuditLogDetail `json:"recent_activity"`
	GeneratedAt    time.Time               `json:"generated_at"`
}
