package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ops-tracker-api/internal/models"
)

const auditDetailSelect = `SELECT a.id, a.action, a.user_id, a.target_user_id, a.target_issue_id, a.description, a.metadata, a.ip_address, a.user_agent, a.status, a.created_at,
	u.name AS user_name, u.email AS user_email,
	tu.name AS target_user_name, tu.email AS target_user_email,
	i.code AS target_issue_code, i.title AS target_issue_title
FROM audit_logs a
LEFT JOIN users u ON u.id = a.user_id
LEFT JOIN users tu ON tu.id = a.target_user_id
LEFT JOIN issues i ON i.id = a.target_issue_id`

// AuditRepository is the append-only store for audit records. It deliberately
// has no update or delete.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends one record. created_at is assigned by the database.
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if len(log.Metadata) == 0 {
		log.Metadata = []byte("{}")
	}
	const query = `INSERT INTO audit_logs (id, action, user_id, target_user_id, target_issue_id, description, metadata, ip_address, user_agent, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING created_at`
	if err := r.db.GetContext(ctx, &log.CreatedAt, query,
		log.ID, log.Action, log.UserID, log.TargetUserID, log.TargetIssueID,
		log.Description, log.Metadata, log.IPAddress, log.UserAgent, log.Status,
	); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// ListByUser returns the newest records where userID is the actor.
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.AuditLogDetail, error) {
	query := auditDetailSelect + ` WHERE a.user_id = $1 ORDER BY a.created_at DESC, a.id DESC LIMIT $2`
	logs := []models.AuditLogDetail{}
	if err := r.db.SelectContext(ctx, &logs, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list audit logs by user: %w", err)
	}
	return logs, nil
}

// ListByIssue returns the newest records targeting issueID.
func (r *AuditRepository) ListByIssue(ctx context.Context, issueID string, limit int) ([]models.AuditLogDetail, error) {
	query := auditDetailSelect + ` WHERE a.target_issue_id = $1 ORDER BY a.created_at DESC, a.id DESC LIMIT $2`
	logs := []models.AuditLogDetail{}
	if err := r.db.SelectContext(ctx, &logs, query, issueID, limit); err != nil {
		return nil, fmt.Errorf("list audit logs by issue: %w", err)
	}
	return logs, nil
}

// List returns records matching filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogDetail, error) {
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("a.user_id = $%d", len(args)))
	}
	if filter.IssueID != "" {
		args = append(args, filter.IssueID)
		conditions = append(conditions, fmt.Sprintf("a.target_issue_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conditions = append(conditions, fmt.Sprintf("a.action = $%d", len(args)))
	}
	if filter.Start != nil {
		args = append(args, *filter.Start)
		conditions = append(conditions, fmt.Sprintf("a.created_at >= $%d", len(args)))
	}
	if filter.End != nil {
		args = append(args, *filter.End)
		conditions = append(conditions, fmt.Sprintf("a.created_at < $%d", len(args)))
	}

	query := auditDetailSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY a.created_at DESC, a.id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	logs := []models.AuditLogDetail{}
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}

// SummaryCounts groups the records created in [start, end) by action, status
// and actor. All facets of a summary are folded from this one result set.
func (r *AuditRepository) SummaryCounts(ctx context.Context, start, end time.Time) ([]models.AuditCountRow, error) {
	const query = `SELECT action, status, user_id, COUNT(*) AS count
FROM audit_logs
WHERE created_at >= $1 AND created_at < $2
GROUP BY action, status, user_id`
	var rows []models.AuditCountRow
	if err := r.db.SelectContext(ctx, &rows, query, start, end); err != nil {
		return nil, fmt.Errorf("summarize audit logs: %w", err)
	}
	return rows, nil
}
