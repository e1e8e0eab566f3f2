package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// IssueStatus is the workflow state of an issue. Closed is terminal.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "Open"
	IssueStatusInProgress IssueStatus = "In Progress"
	IssueStatusClosed     IssueStatus = "Closed"
)

// Valid reports whether s is a known status.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusClosed:
		return true
	}
	return false
}

// IssuePriority ranks issues for triage.
type IssuePriority string

const (
	IssuePriorityLow    IssuePriority = "Low"
	IssuePriorityMedium IssuePriority = "Medium"
	IssuePriorityHigh   IssuePriority = "High"
)

// Valid reports whether p is a known priority.
func (p IssuePriority) Valid() bool {
	switch p {
	case IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh:
		return true
	}
	return false
}

// Issue is a trackable work item.
type Issue struct {
	ID             string         `db:"id" json:"id"`
	Code           string         `db:"code" json:"code"`
	Title          string         `db:"title" json:"title"`
	Description    string         `db:"description" json:"description"`
	Status         IssueStatus    `db:"status" json:"status"`
	Priority       IssuePriority  `db:"priority" json:"priority"`
	AssignedTo     string         `db:"assigned_to" json:"assigned_to"`
	AssigneeID     *string        `db:"assignee_id" json:"assignee_id,omitempty"`
	CreatedBy      *string        `db:"created_by" json:"created_by,omitempty"`
	Tags           pq.StringArray `db:"tags" json:"tags"`
	DueDate        *time.Time     `db:"due_date" json:"due_date,omitempty"`
	EstimatedHours *float64       `db:"estimated_hours" json:"estimated_hours,omitempty"`
	ActualHours    *float64       `db:"actual_hours" json:"actual_hours,omitempty"`
	ResolvedAt     *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// FormatIssueCode renders the human-readable code for a sequence value.
func FormatIssueCode(seq int64) string {
	return fmt.Sprintf("ISSUE-%03d", seq)
}

// ApplyStatus moves the issue to status. The first transition into Closed
// stamps ResolvedAt; later transitions never clear or move it.
func (i *Issue) ApplyStatus(status IssueStatus, now time.Time) {
	i.Status = status
	if status == IssueStatusClosed && i.ResolvedAt == nil {
		resolved := now.UTC()
		i.ResolvedAt = &resolved
	}
}

// Overdue reports whether the due date has passed on an unfinished issue.
func (i *Issue) Overdue(now time.Time) bool {
	return i.DueDate != nil && i.Status != IssueStatusClosed && i.DueDate.Before(now)
}

// IssueView decorates an issue with derived fields for responses.
type IssueView struct {
	Issue
	IsOverdue bool `json:"is_overdue"`
}

// NewIssueView builds the response projection at the given instant.
func NewIssueView(issue Issue, now time.Time) IssueView {
	return IssueView{Issue: issue, IsOverdue: issue.Overdue(now)}
}

// NormalizeTags lower-cases, trims and de-duplicates tags, keeping order.
func NormalizeTags(tags []string) pq.StringArray {
	out := make(pq.StringArray, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// CreateIssueRequest is the payload for creating an issue.
type CreateIssueRequest struct {
	Title          string        `json:"title" validate:"required,min=1,max=200"`
	Description    string        `json:"description" validate:"required,min=1,max=2000"`
	Status         IssueStatus   `json:"status" validate:"omitempty,oneof=Open 'In Progress' Closed"`
	Priority       IssuePriority `json:"priority" validate:"omitempty,oneof=Low Medium High"`
	AssignedTo     string        `json:"assigned_to" validate:"max=100"`
	AssigneeID     *string       `json:"assignee_id" validate:"omitempty,uuid"`
	Tags           []string      `json:"tags" validate:"max=20,dive,max=30"`
	DueDate        *time.Time    `json:"due_date"`
	EstimatedHours *float64      `json:"estimated_hours" validate:"omitempty,gte=0"`
}

// UpdateIssueRequest replaces the editable fields of an issue. Nil pointers
// leave the stored value untouched.
type UpdateIssueRequest struct {
	Title          *string        `json:"title" validate:"omitempty,min=1,max=200"`
	Description    *string        `json:"description" validate:"omitempty,min=1,max=2000"`
	Status         *IssueStatus   `json:"status" validate:"omitempty,oneof=Open 'In Progress' Closed"`
	Priority       *IssuePriority `json:"priority" validate:"omitempty,oneof=Low Medium High"`
	AssignedTo     *string        `json:"assigned_to" validate:"omitempty,max=100"`
	Tags           []string       `json:"tags" validate:"omitempty,max=20,dive,max=30"`
	DueDate        *time.Time     `json:"due_date"`
	EstimatedHours *float64       `json:"estimated_hours" validate:"omitempty,gte=0"`
	ActualHours    *float64       `json:"actual_hours" validate:"omitempty,gte=0"`
}

// UpdateIssueStatusRequest changes only the status.
type UpdateIssueStatusRequest struct {
	Status IssueStatus `json:"status" validate:"required,oneof=Open 'In Progress' Closed"`
}

// AssignIssueRequest points an issue at a user. An empty AssigneeID clears the
// assignment.
type AssignIssueRequest struct {
	AssigneeID string `json:"assignee_id" validate:"omitempty,uuid"`
	AssignedTo string `json:"assigned_to" validate:"max=100"`
}

// IssueQuery is the filter and ordering applied when listing issues. Empty
// fields mean "no constraint".
type IssueQuery struct {
	Status     IssueStatus
	Priority   IssuePriority
	Search     string
	SortField  string
	Descending bool
	Page       int
	PageSize   int
}

// Matches evaluates the filter part of the query against a single issue.
func (q IssueQuery) Matches(issue Issue) bool {
	if q.Status != "" && issue.Status != q.Status {
		return false
	}
	if q.Priority != "" && issue.Priority != q.Priority {
		return false
	}
	if q.Search == "" {
		return true
	}
	needle := strings.ToLower(q.Search)
	for _, field := range []string{issue.Title, issue.Description, issue.AssignedTo} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
