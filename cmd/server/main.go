// Package main runs the lecture pipeline admin API with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lecturely/backend/config"
	"github.com/lecturely/backend/internal/admin"
	"github.com/lecturely/backend/internal/audit"
	"github.com/lecturely/backend/internal/auth"
	"github.com/lecturely/backend/internal/middleware"
	"github.com/lecturely/backend/internal/models"
	"github.com/lecturely/backend/internal/observability"
	"github.com/lecturely/backend/internal/recordings"
	"github.com/lecturely/backend/internal/tasks"
	"github.com/lecturely/backend/internal/worker"
	"github.com/lecturely/backend/pkg/database"
	"github.com/lecturely/backend/pkg/queue"
	"github.com/lecturely/backend/pkg/redis"
	"github.com/lecturely/backend/pkg/response"
	"github.com/lecturely/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	shutdownTracing, err := observability.InitOTel(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{MaxConns: cfg.Database.MaxConns}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// Redis is optional: without it failed audit writes are only logged.
	var jobQueue *queue.Queue
	var spool audit.Spool
	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Warn("audit spool disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		jobQueue = queue.NewQueue(rdb.Client, logger)
		spool = jobQueue
	}

	var s3Client *storage.S3
	if cfg.AWS.RecordingsBucket != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			RecordingsBucket:     cfg.AWS.RecordingsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Repositories
	recordingRepo := recordings.NewRepository(pool)
	userRepo := auth.NewRepository(pool)
	auditRepo := audit.NewRepository(pool)

	// Audit
	auditLogger := audit.NewLogger(auditRepo, spool, logger)
	auditLogger.SetWriteTimeout(cfg.Admin.AuditWriteTimeout)

	// Task queue view
	taskService := tasks.NewService(recordingRepo, cfg.Admin.OpTimeout, logger)
	taskService.SetDefaults(tasks.Limits{Pending: cfg.Admin.PendingLimit, Recent: cfg.Admin.RecentLimit})
	taskHandler := tasks.NewHandler(taskService, logger)

	// Admin actions
	adminService := admin.NewService(recordingRepo, userRepo, auditLogger, logger)
	adminService.SetTimeout(cfg.Admin.OpTimeout)
	adminService.SetAuditReader(auditRepo)
	if s3Client != nil {
		adminService.SetAudioSigner(s3Client)
	}
	adminHandler := admin.NewHandler(adminService, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Admin API (JWT + admin/staff role)
	adminGroup := router.Group("/admin")
	adminGroup.Use(middleware.JWT(jwtService), middleware.RequireRole(models.RoleAdmin, models.RoleStaff))
	{
		adminGroup.GET("/tasks", taskHandler.List)
		adminHandler.RegisterRoutes(adminGroup)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Audit replay in-process when no separate worker is deployed
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Admin.InProcessReplayer && jobQueue != nil {
		go worker.NewAuditReplayer(auditRepo, jobQueue, logger).Run(workerCtx)
		logger.Info("audit replayer started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
