package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/catams-api/api/swagger"
	"github.com/noah-isme/catams-api/internal/handler"
	"github.com/noah-isme/catams-api/internal/middleware"
	"github.com/noah-isme/catams-api/internal/models"
	"github.com/noah-isme/catams-api/internal/repository"
	"github.com/noah-isme/catams-api/internal/service"
	"github.com/noah-isme/catams-api/internal/workflow"
	"github.com/noah-isme/catams-api/pkg/cache"
	"github.com/noah-isme/catams-api/pkg/config"
	"github.com/noah-isme/catams-api/pkg/database"
	"github.com/noah-isme/catams-api/pkg/jobs"
	"github.com/noah-isme/catams-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/catams-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/catams-api/pkg/middleware/requestid"
)

// @title CATAMS API
// @version 1.0.0
// @description Casual academic timesheet approval and management system
// @BasePath /api/v1
// @schemes http

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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, dashboard caching disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	timesheetRepo := repository.NewTimesheetRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsService := service.NewMetricsService()

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "catams-api",
	})

	dashboardService := service.NewDashboardService(timesheetRepo, cacheRepo, metricsService, cfg.Dashboard.CacheTTL, logr)

	var notifier *service.NotificationService
	if cfg.Notifications.Enabled {
		notifier = service.NewNotificationService(jobs.QueueConfig{
			Workers:    cfg.Notifications.Workers,
			BufferSize: cfg.Notifications.BufferSize,
			MaxRetries: cfg.Notifications.MaxRetries,
			RetryDelay: cfg.Notifications.RetryDelay,
			Logger:     logr,
		}, logr)
		notifier.Start(ctx)
		defer notifier.Stop()
	}

	approvalParams := service.ApprovalServiceParams{
		Timesheets: timesheetRepo,
		Users:      userRepo,
		Courses:    courseRepo,
		Table:      workflow.NewTable(),
		Audit:      userRepo,
		Metrics:    metricsService,
		Dashboards: dashboardService,
		Logger:     logr,
	}
	if notifier != nil {
		approvalParams.Notifier = notifier
	}
	approvalService := service.NewApprovalService(approvalParams)

	timesheetService := service.NewTimesheetService(service.TimesheetServiceParams{
		Timesheets: timesheetRepo,
		Courses:    courseRepo,
		Users:      userRepo,
		Rules: workflow.Rules{
			MinHours:             cfg.Timesheets.MinHours,
			MaxHours:             cfg.Timesheets.MaxHours,
			MinHourlyRate:        cfg.Timesheets.MinHourlyRate,
			MaxHourlyRate:        cfg.Timesheets.MaxHourlyRate,
			MaxDescriptionLength: cfg.Timesheets.MaxDescriptionLength,
			Currency:             cfg.Timesheets.Currency,
		},
		Validator:  validate,
		Audit:      userRepo,
		Dashboards: dashboardService,
		Logger:     logr,
	})

	courseService := service.NewCourseService(courseRepo, userRepo, validate, logr)
	exportService := service.NewExportService(timesheetRepo, courseRepo, logr)

	authHandler := handler.NewAuthHandler(authService)
	timesheetHandler := handler.NewTimesheetHandler(timesheetService)
	approvalHandler := handler.NewApprovalHandler(approvalService)
	courseHandler := handler.NewCourseHandler(courseService)
	dashboardHandler := handler.NewDashboardHandler(dashboardService)
	exportHandler := handler.NewExportHandler(exportService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)

		authed := auth.Group("", middleware.JWT(authService))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	protected := api.Group("", middleware.JWT(authService))

	timesheets := protected.Group("/timesheets")
	{
		timesheets.POST("", timesheetHandler.Create)
		timesheets.GET("", timesheetHandler.List)
		timesheets.GET("/:id", timesheetHandler.Get)
		timesheets.PUT("/:id", timesheetHandler.Update)
		timesheets.DELETE("/:id", timesheetHandler.Delete)

		timesheets.POST("/:id/actions", approvalHandler.PerformAction)
		timesheets.GET("/:id/actions", approvalHandler.AllowedActions)
		timesheets.GET("/:id/history", approvalHandler.History)
	}

	courses := protected.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.POST("", middleware.RequireRoles(models.RoleAdmin), courseHandler.Create)
	}

	protected.GET("/dashboard/summary", dashboardHandler.Summary)

	if cfg.Exports.Enabled {
		protected.GET("/exports/timesheets",
			middleware.RequireRoles(models.RoleLecturer, models.RoleHR, models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionExportDownload, "timesheet_register"),
			exportHandler.Register)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
