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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/marksheet-api/api/swagger"
	"github.com/noah-isme/marksheet-api/internal/handler"
	internalmiddleware "github.com/noah-isme/marksheet-api/internal/middleware"
	"github.com/noah-isme/marksheet-api/internal/repository"
	"github.com/noah-isme/marksheet-api/internal/service"
	"github.com/noah-isme/marksheet-api/pkg/cache"
	"github.com/noah-isme/marksheet-api/pkg/config"
	"github.com/noah-isme/marksheet-api/pkg/database"
	"github.com/noah-isme/marksheet-api/pkg/jobs"
	"github.com/noah-isme/marksheet-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/marksheet-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/marksheet-api/pkg/middleware/requestid"
	"github.com/noah-isme/marksheet-api/pkg/roster"
	"github.com/noah-isme/marksheet-api/pkg/storage"
)

// @title Marksheet API
// @version 1.0.0
// @description Record class test scores and export ranked marks records as XLSX, PDF or CSV.
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsSvc := service.NewMetricsService()
	validate := validator.New()
	var checks []handler.ReadinessCheck

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, export cache disabled", "addr", cache.Addr(cfg.Redis), "error", err)
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)
	if redisClient != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Probe: cacheRepo.Ping})
	}

	var (
		store  *storage.LocalStorage
		signer *storage.SignedURLSigner
		db     *sqlx.DB
	)
	if cfg.Reports.Enabled {
		db, err = database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect postgres", "error", err)
		}
		defer db.Close() //nolint:errcheck
		if cfg.Database.AutoMigrate {
			version, err := database.Migrate(db.DB)
			if err != nil {
				logr.Sugar().Fatalw("failed to migrate database", "error", err)
			}
			logr.Sugar().Infow("database migrated", "version", version)
		}
		checks = append(checks, handler.ReadinessCheck{Name: "postgres", Probe: db.PingContext})

		store, err = storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare report storage", "error", err)
		}
		if cfg.Reports.SignedURLSecret == "" {
			logr.Sugar().Fatalw("REPORTS_SIGNED_URL_SECRET is required when reports are enabled")
		}
		signer = storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	}

	exportSvc := service.NewExportService(store, signer, cacheSvc, metricsSvc, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
		CacheTTL:  cfg.Cache.TTL,
	}, logr)

	sessionRepo := repository.NewSessionRepository(cfg.Sessions.MaxSessions)
	sessionSvc := service.NewSessionService(sessionRepo, roster.NewParser(cfg.Roster.MaxFileSizeBytes), exportSvc, cacheSvc, metricsSvc, validate, service.SessionServiceConfig{
		IdleTTL:         cfg.Sessions.IdleTTL,
		CleanupInterval: cfg.Sessions.CleanupInterval,
		Preamble:        cfg.Export.Preamble,
		MaxInHeader:     cfg.Export.MaxInHeader,
	}, logr)
	sessionSvc.StartCleanup(ctx)

	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks...)
	routes := handler.Routes{
		Sessions: handler.NewSessionHandler(sessionSvc),
		Metrics:  metricsHandler,
	}

	var queue *jobs.Queue
	if cfg.Reports.Enabled {
		reportRepo := repository.NewReportRepository(db)
		worker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr).WithMetrics(metricsSvc)
		queue = jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			RetryDelay: cfg.Reports.RetryDelay,
			Timeout:    cfg.Reports.JobTimeout,
			Logger:     logr,
		})
		queue.Start(ctx)

		reportSvc := service.NewReportService(reportRepo, sessionRepo, queue, exportSvc, validate, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
			Preamble:        cfg.Export.Preamble,
			MaxInHeader:     cfg.Export.MaxInHeader,
		})
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)
		routes.Reports = handler.NewReportHandler(reportSvc, logr)
		metricsHandler.WithQueueStats(queue.Stats)
	}

	r := gin.New()
	r.MaxMultipartMemory = cfg.Roster.MaxFileSizeBytes
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	routes.Register(r.Group(cfg.APIPrefix))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "reports", cfg.Reports.Enabled, "export_cache", cacheSvc.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown failed", zap.Error(err))
	}
	if queue != nil {
		queue.Stop()
	}
}
