package models

import "time"

// IssueStatsRow is one (status, priority) group returned by the store.
type IssueStatsRow struct {
	Status            IssueStatus   `db:"status"`
	Priority          IssuePriority `db:"priority"`
	Count             int           `db:"count"`
	Resolved          int           `db:"resolved"`
	ResolutionSeconds float64       `db:"resolution_seconds"`
}

// IssueStatistics is the multi-facet view over all issues.
type IssueStatistics struct {
	ByStatus           map[IssueStatus]int   `json:"by_status"`
	ByPriority         map[IssuePriority]int `json:"by_priority"`
	Total              int                   `json:"total"`
	Resolved           int                   `json:"resolved"`
	AvgResolutionTime  time.Duration         `json:"avg_resolution_ns"`
	AvgResolutionHours float64               `json:"avg_resolution_hours"`
	GeneratedAt        time.Time             `json:"generated_at"`
	Cached             bool                  `json:"-"`
}

// SystemMetrics is a lightweight process snapshot served with health checks.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	AuditRecorded            uint64    `json:"audit_recorded"`
	AuditFailed              uint64    `json:"audit_failed"`
	AuditDropped             uint64    `json:"audit_dropped"`
	AuditQueueDepth          int       `json:"audit_queue_depth"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
