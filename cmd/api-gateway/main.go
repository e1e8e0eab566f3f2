package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/ops-tracker-api/api/swagger"
	"github.com/noah-isme/ops-tracker-api/internal/handler"
	"github.com/noah-isme/ops-tracker-api/internal/middleware"
	"github.com/noah-isme/ops-tracker-api/internal/repository"
	"github.com/noah-isme/ops-tracker-api/internal/service"
	"github.com/noah-isme/ops-tracker-api/pkg/cache"
	"github.com/noah-isme/ops-tracker-api/pkg/config"
	"github.com/noah-isme/ops-tracker-api/pkg/database"
	"github.com/noah-isme/ops-tracker-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/ops-tracker-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/ops-tracker-api/pkg/middleware/requestid"
)

// @title Ops Tracker API
// @version 1.0.0
// @description Issue tracking with an asynchronous audit trail
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis, cfg.Cache)
	if err != nil {
		logr.Warn("redis unavailable, statistics cache disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.StatsTTL, logr, cfg.Cache.Enabled && redisClient != nil)

	userRepo := repository.NewUserRepository(db)
	issueRepo := repository.NewIssueRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	issueSvc := service.NewIssueService(issueRepo, userRepo, cacheSvc, validate, logr)
	statsSvc := service.NewStatisticsService(issueRepo, cacheSvc, cfg.Cache.StatsTTL, metrics, logr)
	auditSvc := service.NewAuditService(auditRepo, userRepo, metrics, logr, service.AuditServiceConfig{
		SummaryWindow: cfg.Audit.SummaryWindow,
		DefaultLimit:  cfg.Audit.HistoryLimit,
	})
	dashboardSvc := service.NewDashboardService(statsSvc, auditSvc, logr)
	exportSvc := service.NewExportService(auditSvc, logr)

	// Audit workers live for the whole process, independent of any request.
	dispatcher := service.NewAuditDispatcher(auditSvc, metrics, logr, service.AuditDispatcherConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
	})
	dispatcher.Start(context.Background())

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	handler.Router{
		Auth:      handler.NewAuthHandler(authSvc),
		Issues:    handler.NewIssueHandler(issueSvc, statsSvc, auditSvc),
		Audit:     handler.NewAuditHandler(auditSvc, exportSvc),
		Dashboard: handler.NewDashboardHandler(dashboardSvc),
		Metrics: handler.NewMetricsHandler(metrics, func(ctx context.Context) string {
			return database.Status(ctx, db)
		}),
		Tokens:   authSvc,
		Recorder: dispatcher,
	}.Register(r, cfg.APIPrefix)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}

	// Requests are finished; flush what they queued.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Audit.ShutdownGrace)
	defer drainCancel()
	dispatcher.Shutdown(drainCtx)
}
