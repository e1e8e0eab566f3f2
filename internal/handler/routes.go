package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ops-tracker-api/internal/middleware"
	"github.com/noah-isme/ops-tracker-api/internal/models"
)

// Router binds every handler to its route, access rule and audit action.
type Router struct {
	Auth      *AuthHandler
	Issues    *IssueHandler
	Audit     *AuditHandler
	Dashboard *DashboardHandler
	Metrics   *MetricsHandler

	Tokens   middleware.TokenValidator
	Recorder middleware.AuditDispatcher
}

// Register mounts the probes at the root and the API under prefix.
func (rt Router) Register(engine *gin.Engine, prefix string) {
	engine.GET("/health", rt.Metrics.Health)
	engine.GET("/ready", rt.Metrics.Ready)
	engine.GET("/metrics", rt.Metrics.Prometheus)

	api := engine.Group(prefix)
	authenticated := middleware.JWT(rt.Tokens)
	privileged := middleware.RequireRoles(models.RoleAdmin, models.RoleManager)

	auth := api.Group("/auth")
	auth.POST("/register",
		middleware.Audit(rt.Recorder, models.AuditActionUserRegister, describeRegister,
			middleware.WithActor(actorFromLogin), middleware.WithTargets(targetsFromLogin)),
		rt.Auth.Register)
	auth.POST("/login",
		middleware.Audit(rt.Recorder, models.AuditActionUserLogin, describeLogin,
			middleware.WithActor(actorFromLogin), middleware.WithTargets(targetsFromLogin)),
		rt.Auth.Login)
	auth.GET("/me", authenticated, rt.Auth.Me)
	auth.POST("/logout", authenticated,
		middleware.Audit(rt.Recorder, models.AuditActionUserLogout, describeLogout),
		rt.Auth.Logout)

	issues := api.Group("/issues", authenticated)
	issues.GET("", rt.Issues.List)
	issues.GET("/stats", middleware.WithResponseMeta(), rt.Issues.Stats)
	issues.GET("/:id", rt.Issues.Get)
	issues.GET("/:id/history", rt.Issues.History)
	issues.POST("",
		middleware.Audit(rt.Recorder, models.AuditActionIssueCreate, describeIssueCreate, middleware.WithTargets(targetsFromIssue)),
		rt.Issues.Create)
	issues.PUT("/:id",
		middleware.Audit(rt.Recorder, models.AuditActionIssueUpdate, describeIssueUpdate, middleware.WithTargets(targetsFromIssue)),
		rt.Issues.Update)
	issues.PATCH("/:id/status",
		middleware.Audit(rt.Recorder, models.AuditActionIssueStatusChange, describeIssueStatus, middleware.WithTargets(targetsFromIssue)),
		rt.Issues.ChangeStatus)
	issues.PATCH("/:id/assign",
		middleware.Audit(rt.Recorder, models.AuditActionIssueAssign, describeIssueAssign, middleware.WithTargets(targetsFromIssue)),
		rt.Issues.Assign)
	issues.DELETE("/:id",
		middleware.Audit(rt.Recorder, models.AuditActionIssueDelete, describeIssueDelete, middleware.WithTargets(targetsFromIssue)),
		rt.Issues.Delete)

	audit := api.Group("/audit", authenticated)
	audit.GET("/me", rt.Audit.Mine)
	audit.GET("/users/:userId", middleware.RBAC(string(models.RoleAdmin), string(models.RoleManager), middleware.SelfParam), rt.Audit.User)
	audit.GET("/summary", privileged, rt.Audit.Summary)
	audit.GET("/export", privileged, rt.Audit.Export)

	api.GET("/dashboard", authenticated, middleware.WithResponseMeta(), rt.Dashboard.Overview)
	api.GET("/system/metrics", authenticated, middleware.RequireRoles(models.RoleAdmin), rt.Metrics.System)
}
