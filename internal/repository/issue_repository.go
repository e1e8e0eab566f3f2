package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ops-tracker-api/internal/models"
)

const issueColumns = `id, code, title, description, status, priority, assigned_to, assignee_id, created_by, tags, due_date, estimated_hours, actual_hours, resolved_at, created_at, updated_at`

const (
	defaultIssuePageSize = 50
	maxIssuePageSize     = 200
)

// issueSortColumns maps accepted sort keys to columns. Anything else falls
// back to created_at.
var issueSortColumns = map[string]string{
	"createdAt":  "created_at",
	"created_at": "created_at",
	"updatedAt":  "updated_at",
	"updated_at": "updated_at",
	"dueDate":    "due_date",
	"due_date":   "due_date",
	"title":      "title",
	"status":     "status",
	"priority":   "priority",
	"code":       "code_seq",
}

// IssueRepository persists issues.
type IssueRepository struct {
	db *sqlx.DB
}

// NewIssueRepository constructs the repository.
func NewIssueRepository(db *sqlx.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// Create allocates the next issue code from the database sequence and inserts
// the issue. Concurrent callers never observe the same sequence value.
func (r *IssueRepository) Create(ctx context.Context, issue *models.Issue) error {
	var seq int64
	if err := r.db.GetContext(ctx, &seq, `SELECT nextval('issue_code_seq')`); err != nil {
		return fmt.Errorf("allocate issue code: %w", err)
	}
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	issue.Code = models.FormatIssueCode(seq)
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now().UTC()
	}
	issue.UpdatedAt = issue.CreatedAt

	const query = `INSERT INTO issues (id, code, code_seq, title, description, status, priority, assigned_to, assignee_id, created_by, tags, due_date, estimated_hours, actual_hours, resolved_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	if _, err := r.db.ExecContext(ctx, query,
		issue.ID, issue.Code, seq, issue.Title, issue.Description, issue.Status, issue.Priority,
		issue.AssignedTo, issue.AssigneeID, issue.CreatedBy, issue.Tags, issue.DueDate,
		issue.EstimatedHours, issue.ActualHours, issue.ResolvedAt, issue.CreatedAt, issue.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

// FindByID loads a single issue.
func (r *IssueRepository) FindByID(ctx context.Context, id string) (*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id = $1`
	var issue models.Issue
	if err := r.db.GetContext(ctx, &issue, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find issue: %w", err)
	}
	return &issue, nil
}

// List renders q into SQL and returns the requested page with the total match
// count.
func (r *IssueRepository) List(ctx context.Context, q models.IssueQuery) ([]models.Issue, int, error) {
	where, args := issueWhere(q)

	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size <= 0 {
		size = defaultIssuePageSize
	}
	if size > maxIssuePageSize {
		size = maxIssuePageSize
	}

	column, ok := issueSortColumns[q.SortField]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}

	listQuery := fmt.Sprintf("SELECT %s FROM issues%s ORDER BY %s %s, id %s LIMIT %d OFFSET %d",
		issueColumns, where, column, direction, direction, size, (page-1)*size)
	var issues []models.Issue
	if err := r.db.SelectContext(ctx, &issues, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM issues"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}
	return issues, total, nil
}

func issueWhere(q models.IssueQuery) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if q.Status != "" {
		args = append(args, q.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if q.Priority != "" {
		args = append(args, q.Priority)
		conditions = append(conditions, fmt.Sprintf("priority = $%d", len(args)))
	}
	if q.Search != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(q.Search))+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(description) LIKE $%d OR LOWER(assigned_to) LIKE $%d)", n, n, n))
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Update writes the editable fields. code is never touched and resolved_at
// can only go from NULL to a value.
func (r *IssueRepository) Update(ctx context.Context, issue *models.Issue) error {
	issue.UpdatedAt = time.Now().UTC()
	const query = `UPDATE issues SET title = $2, description = $3, status = $4, priority = $5, assigned_to = $6, assignee_id = $7, tags = $8, due_date = $9, estimated_hours = $10, actual_hours = $11, resolved_at = COALESCE(resolved_at, $12), updated_at = $13
WHERE id = $1 RETURNING resolved_at`
	var resolved sql.NullTime
	err := r.db.GetContext(ctx, &resolved, query,
		issue.ID, issue.Title, issue.Description, issue.Status, issue.Priority, issue.AssignedTo,
		issue.AssigneeID, issue.Tags, issue.DueDate, issue.EstimatedHours, issue.ActualHours,
		issue.ResolvedAt, issue.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("update issue: %w", err)
	}
	issue.ResolvedAt = nil
	if resolved.Valid {
		issue.ResolvedAt = &resolved.Time
	}
	return nil
}

// Delete removes the issue row. Audit records referencing it are kept.
func (r *IssueRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM issues WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Statistics returns per (status, priority) counts together with resolution
// totals for closed issues. One statement, so every group comes from the same
// snapshot.
func (r *IssueRepository) Statistics(ctx context.Context) ([]models.IssueStatsRow, error) {
	const query = `SELECT status, priority, COUNT(*) AS count,
	COUNT(*) FILTER (WHERE status = 'Closed' AND resolved_at IS NOT NULL) AS resolved,
	COALESCE(SUM(EXTRACT(EPOCH FROM (resolved_at - created_at))) FILTER (WHERE status = 'Closed' AND resolved_at IS NOT NULL), 0) AS resolution_seconds
FROM issues
GROUP BY status, priority`
	var rows []models.IssueStatsRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("issue statistics: %w", err)
	}
	return rows, nil
}
