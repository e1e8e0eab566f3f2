package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ops-tracker-api/internal/middleware"
	"github.com/noah-isme/ops-tracker-api/internal/models"
	"github.com/noah-isme/ops-tracker-api/internal/service"
	appErrors "github.com/noah-isme/ops-tracker-api/pkg/errors"
	"github.com/noah-isme/ops-tracker-api/pkg/response"
)

type issueService interface {
	List(ctx context.Context, params service.IssueQueryParams) ([]models.IssueView, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.IssueView, error)
	Create(ctx context.Context, actorID string, req models.CreateIssueRequest) (*models.IssueView, error)
	Update(ctx context.Context, id string, req models.UpdateIssueRequest) (*models.IssueView, error)
	ChangeStatus(ctx context.Context, id string, req models.UpdateIssueStatusRequest) (*models.IssueView, error)
	Assign(ctx context.Context, id string, req models.AssignIssueRequest) (*models.IssueView, error)
	Delete(ctx context.Context, id string) (*models.Issue, error)
}

type issueStatisticsService interface {
	IssueStatistics(ctx context.Context) (*models.IssueStatistics, error)
}

type issueHistoryService interface {
	HistoryFor(ctx context.Context, issueID string, limit int) ([]models.AuditLogDetail, error)
}

// IssueHandler exposes issue CRUD, statistics and history.
type IssueHandler struct {
	issues  issueService
	stats   issueStatisticsService
	history issueHistoryService
}

// NewIssueHandler constructs the handler.
func NewIssueHandler(issues issueService, stats issueStatisticsService, history issueHistoryService) *IssueHandler {
	return &IssueHandler{issues: issues, stats: stats, history: history}
}

// List godoc
// @Summary List issues
// @Tags Issues
// @Produce json
// @Param status query string false "Open, In Progress, Closed or all"
// @Param priority query string false "Low, Medium, High or all"
// @Param search query string false "Substring of title, description or assignee"
// @Param sortBy query string false "createdAt, updatedAt, dueDate, title, status, priority or code"
// @Param order query string false "desc (default) or asc"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /issues [get]
func (h *IssueHandler) List(c *gin.Context) {
	var params service.IssueQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	issues, pagination, err := h.issues.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issues, pagination)
}

// Stats godoc
// @Summary Issue statistics
// @Description Counts by status and priority, total and average time to first resolution
// @Tags Issues
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /issues/stats [get]
func (h *IssueHandler) Stats(c *gin.Context) {
	stats, err := h.stats.IssueStatistics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, stats.Cached)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get issue
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /issues/{id} [get]
func (h *IssueHandler) Get(c *gin.Context) {
	issue, err := h.issues.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}

// History godoc
// @Summary Issue audit history
// @Description Newest audit records that targeted the issue, including deleted issues
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Param limit query int false "Maximum records (default 50, max 200)"
// @Success 200 {object} response.Envelope
// @Router /issues/{id}/history [get]
func (h *IssueHandler) History(c *gin.Context) {
	logs, err := h.history.HistoryFor(c.Request.Context(), c.Param("id"), queryInt(c, "limit"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// Create godoc
// @Summary Create issue
// @Tags Issues
// @Accept json
// @Produce json
// @Param payload body models.CreateIssueRequest true "Issue payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /issues [post]
func (h *IssueHandler) Create(c *gin.Context) {
	var req models.CreateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid issue payload"))
		return
	}

	actorID := ""
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}
	issue, err := h.issues.Create(c.Request.Context(), actorID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, issue)
}

// Update godoc
// @Summary Update issue
// @Tags Issues
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param payload body models.UpdateIssueRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /issues/{id} [put]
func (h *IssueHandler) Update(c *gin.Context) {
	var req models.UpdateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid issue payload"))
		return
	}

	issue, err := h.issues.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}

// ChangeStatus godoc
// @Summary Change issue status
// @Tags Issues
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param payload body models.UpdateIssueStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /issues/{id}/status [patch]
func (h *IssueHandler) ChangeStatus(c *gin.Context) {
	var req models.UpdateIssueStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}

	issue, err := h.issues.ChangeStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}

// Assign godoc
// @Summary Assign issue
// @Tags Issues
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param payload body models.AssignIssueRequest true "Assignee"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /issues/{id}/assign [patch]
func (h *IssueHandler) Assign(c *gin.Context) {
	var req models.AssignIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}

	issue, err := h.issues.Assign(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}

// Delete godoc
// @Summary Delete issue
// @Description The issue row is removed; its audit history remains queryable
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /issues/{id} [delete]
func (h *IssueHandler) Delete(c *gin.Context) {
	issue, err := h.issues.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}
