package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ops-tracker-api/internal/dto"
	"github.com/noah-isme/ops-tracker-api/internal/middleware"
	"github.com/noah-isme/ops-tracker-api/pkg/response"
)

type dashboardService interface {
	Overview(ctx context.Context, userID string) (*dto.DashboardOverview, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Overview godoc
// @Summary Dashboard overview
// @Description Issue statistics, the activity summary and the caller's recent activity
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Overview(c *gin.Context) {
	userID := ""
	if claims := claimsFromContext(c); claims != nil {
		userID = claims.UserID
	}

	overview, err := h.service.Overview(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, overview.Issues.Cached)
	response.JSON(c, http.StatusOK, overview, nil, middleware.ExtractMeta(c))
}
