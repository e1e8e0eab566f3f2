package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ops-tracker-api/internal/models"
	"github.com/noah-isme/ops-tracker-api/internal/service"
	appErrors "github.com/noah-isme/ops-tracker-api/pkg/errors"
	"github.com/noah-isme/ops-tracker-api/pkg/response"
)

type auditQueryService interface {
	ActivityFor(ctx context.Context, userID string, limit int) ([]models.AuditLogDetail, error)
	Summarize(ctx context.Context, start, end *time.Time) (*models.AuditSummary, error)
}

type auditExportService interface {
	AuditTrail(ctx context.Context, filter models.AuditFilter, format string) (*service.ExportFile, error)
}

// AuditHandler serves the read side of the audit trail.
type AuditHandler struct {
	audit  auditQueryService
	export auditExportService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(audit auditQueryService, export auditExportService) *AuditHandler {
	return &AuditHandler{audit: audit, export: export}
}

// Mine godoc
// @Summary Own activity
// @Tags Audit
// @Produce json
// @Param limit query int false "Maximum records (default 50, max 200)"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /audit/me [get]
func (h *AuditHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	h.activity(c, claims.UserID)
}

// User godoc
// @Summary User activity
// @Tags Audit
// @Produce json
// @Param userId path string true "User ID"
// @Param limit query int false "Maximum records (default 50, max 200)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /audit/users/{userId} [get]
func (h *AuditHandler) User(c *gin.Context) {
	h.activity(c, c.Param("userId"))
}

func (h *AuditHandler) activity(c *gin.Context, userID string) {
	logs, err := h.audit.ActivityFor(c.Request.Context(), userID, queryInt(c, "limit"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// Summary godoc
// @Summary Activity summary
// @Description Counts by action, status and top actors over [start, end). Defaults to the trailing 30 days.
// @Tags Audit
// @Produce json
// @Param start query string false "RFC3339 window start"
// @Param end query string false "RFC3339 window end"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /audit/summary [get]
func (h *AuditHandler) Summary(c *gin.Context) {
	start, err := parseTimeQuery(c, "start")
	if err != nil {
		response.Error(c, err)
		return
	}
	end, err := parseTimeQuery(c, "end")
	if err != nil {
		response.Error(c, err)
		return
	}

	summary, err := h.audit.Summarize(c.Request.Context(), start, end)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Export godoc
// @Summary Export audit trail
// @Tags Audit
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Param userId query string false "Actor filter"
// @Param issueId query string false "Target issue filter"
// @Param action query string false "Action filter"
// @Param start query string false "RFC3339 window start"
// @Param end query string false "RFC3339 window end"
// @Param limit query int false "Maximum records (max 5000)"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /audit/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	filter := models.AuditFilter{
		UserID:  strings.TrimSpace(c.Query("userId")),
		IssueID: strings.TrimSpace(c.Query("issueId")),
		Action:  models.AuditAction(strings.ToUpper(strings.TrimSpace(c.Query("action")))),
		Limit:   queryInt(c, "limit"),
	}
	if filter.Action != "" && !filter.Action.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown audit action"))
		return
	}
	var err error
	if filter.Start, err = parseTimeQuery(c, "start"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.End, err = parseTimeQuery(c, "end"); err != nil {
		response.Error(c, err)
		return
	}

	file, err := h.export.AuditTrail(c.Request.Context(), filter, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Raw(c, http.StatusOK, file.ContentType, file.Filename, file.Body)
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" must be an RFC3339 timestamp")
	}
	return &parsed, nil
}
