package service

import (
	"strings"

	"github.com/noah-isme/ops-tracker-api/internal/models"
)

const (
	filterAll        = "all"
	defaultIssueSort = "createdAt"
	orderDescending  = "desc"
)

// IssueQueryParams are the raw listing parameters as they arrive on the query
// string.
type IssueQueryParams struct {
	Status   string `form:"status"`
	Priority string `form:"priority"`
	Search   string `form:"search"`
	SortBy   string `form:"sortBy"`
	Order    string `form:"order"`
	Page     int    `form:"page"`
	PageSize int    `form:"limit"`
}

// BuildIssueQuery turns loosely typed parameters into a listing query. It does
// no I/O and cannot fail; unknown sort fields are left for the store to map.
func BuildIssueQuery(p IssueQueryParams) models.IssueQuery {
	q := models.IssueQuery{
		SortField:  defaultIssueSort,
		Descending: true,
		Page:       p.Page,
		PageSize:   p.PageSize,
	}

	if status := strings.TrimSpace(p.Status); status != "" && status != filterAll {
		q.Status = models.IssueStatus(status)
	}
	if priority := strings.TrimSpace(p.Priority); priority != "" && priority != filterAll {
		q.Priority = models.IssuePriority(priority)
	}
	q.Search = strings.TrimSpace(p.Search)

	if sortBy := strings.TrimSpace(p.SortBy); sortBy != "" {
		q.SortField = sortBy
	}
	if order := strings.TrimSpace(p.Order); order != "" {
		q.Descending = order == orderDescending
	}
	return q
}
