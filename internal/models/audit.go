package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// AuditAction enumerates the kinds of activity recorded in the audit trail.
type AuditAction string

const (
	AuditActionUserRegister      AuditAction = "USER_REGISTER"
	AuditActionUserLogin         AuditAction = "USER_LOGIN"
	AuditActionUserLogout        AuditAction = "USER_LOGOUT"
	AuditActionUserUpdate        AuditAction = "USER_UPDATE"
	AuditActionUserDelete        AuditAction = "USER_DELETE"
	AuditActionIssueCreate       AuditAction = "ISSUE_CREATE"
	AuditActionIssueUpdate       AuditAction = "ISSUE_UPDATE"
	AuditActionIssueDelete       AuditAction = "ISSUE_DELETE"
	AuditActionIssueStatusChange AuditAction = "ISSUE_STATUS_CHANGE"
	AuditActionIssueAssign       AuditAction = "ISSUE_ASSIGN"
	AuditActionPasswordChange    AuditAction = "PASSWORD_CHANGE"
	AuditActionRoleChange        AuditAction = "ROLE_CHANGE"
	AuditActionOther             AuditAction = "OTHER"
)

// AuditActions lists every recognised action.
var AuditActions = []AuditAction{
	AuditActionUserRegister,
	AuditActionUserLogin,
	AuditActionUserLogout,
	AuditActionUserUpdate,
	AuditActionUserDelete,
	AuditActionIssueCreate,
	AuditActionIssueUpdate,
	AuditActionIssueDelete,
	AuditActionIssueStatusChange,
	AuditActionIssueAssign,
	AuditActionPasswordChange,
	AuditActionRoleChange,
	AuditActionOther,
}

// Valid reports whether a is part of the closed action set.
func (a AuditAction) Valid() bool {
	for _, known := range AuditActions {
		if a == known {
			return true
		}
	}
	return false
}

// AuditStatus classifies the outcome of the audited action.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
	AuditStatusWarning AuditStatus = "warning"
)

// Valid reports whether s is a known outcome.
func (s AuditStatus) Valid() bool {
	switch s {
	case AuditStatusSuccess, AuditStatusFailure, AuditStatusWarning:
		return true
	}
	return false
}

// AuditDescriptionLimit bounds the stored description in runes.
const AuditDescriptionLimit = 500

// AuditLog is one immutable audit trail record.
type AuditLog struct {
	ID            string         `db:"id" json:"id"`
	Action        AuditAction    `db:"action" json:"action"`
	UserID        *string        `db:"user_id" json:"user_id,omitempty"`
	TargetUserID  *string        `db:"target_user_id" json:"target_user_id,omitempty"`
	TargetIssueID *string        `db:"target_issue_id" json:"target_issue_id,omitempty"`
	Description   string         `db:"description" json:"description"`
	Metadata      types.JSONText `db:"metadata" json:"metadata,omitempty"`
	IPAddress     string         `db:"ip_address" json:"ip_address"`
	UserAgent     string         `db:"user_agent" json:"user_agent"`
	Status        AuditStatus    `db:"status" json:"status"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// AuditLogDetail is an audit record joined with display names of the users
// and issue it references.
type AuditLogDetail struct {
	AuditLog
	UserName         *string `db:"user_name" json:"user_name,omitempty"`
	UserEmail        *string `db:"user_email" json:"user_email,omitempty"`
	TargetUserName   *string `db:"target_user_name" json:"target_user_name,omitempty"`
	TargetUserEmail  *string `db:"target_user_email" json:"target_user_email,omitempty"`
	TargetIssueCode  *string `db:"target_issue_code" json:"target_issue_code,omitempty"`
	TargetIssueTitle *string `db:"target_issue_title" json:"target_issue_title,omitempty"`
}

// AuditFilter scopes audit trail exports.
type AuditFilter struct {
	UserID  string
	IssueID string
	Action  AuditAction
	Start   *time.Time
	End     *time.Time
	Limit   int
}

// AuditCountRow is one group of the summary aggregation.
type AuditCountRow struct {
	Action AuditAction `db:"action"`
	Status AuditStatus `db:"status"`
	UserID *string     `db:"user_id"`
	Count  int         `db:"count"`
}

// ActionCount is the by-action facet of a summary.
type ActionCount struct {
	Action AuditAction `json:"action"`
	Count  int         `json:"count"`
}

// StatusCount is the by-status facet of a summary.
type StatusCount struct {
	Status AuditStatus `json:"status"`
	Count  int         `json:"count"`
}

// UserActivity is one entry of the most active users facet.
type UserActivity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Count  int    `json:"count"`
}

// AuditSummary aggregates the audit trail over [Start, End).
type AuditSummary struct {
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end"`
	ByAction []ActionCount  `json:"by_action"`
	ByUser   []UserActivity `json:"by_user"`
	ByStatus []StatusCount  `json:"by_status"`
	Total    int            `json:"total"`
}
