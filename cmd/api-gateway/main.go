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

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-clearance-api/api/swagger"
	"github.com/noah-isme/sma-clearance-api/internal/handler"
	"github.com/noah-isme/sma-clearance-api/internal/middleware"
	"github.com/noah-isme/sma-clearance-api/internal/models"
	"github.com/noah-isme/sma-clearance-api/internal/repository"
	"github.com/noah-isme/sma-clearance-api/internal/service"
	"github.com/noah-isme/sma-clearance-api/pkg/cache"
	"github.com/noah-isme/sma-clearance-api/pkg/config"
	"github.com/noah-isme/sma-clearance-api/pkg/database"
	"github.com/noah-isme/sma-clearance-api/pkg/events"
	"github.com/noah-isme/sma-clearance-api/pkg/export"
	"github.com/noah-isme/sma-clearance-api/pkg/jobs"
	"github.com/noah-isme/sma-clearance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-clearance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-clearance-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-clearance-api/pkg/storage"
)

// @title SMA Clearance API
// @version 1.0.0
// @description Student clearance tracking: requirements, approvals, aggregate status and printable documents.
// @BasePath /api/v1
// @schemes http https
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Migrations.AutoMigrate {
		migrator, err := database.NewMigrator(db, logr)
		if err != nil {
			logr.Fatal("failed to init migrator", zap.Error(err))
		}
		if err := migrator.Run(ctx); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, clearance cache disabled", zap.Error(err))
	} else {
		defer redisClient.Close() //nolint:errcheck
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Clearance.CacheTTL, logr, cfg.Clearance.CacheEnabled && cacheRepo != nil)

	fileSvc := newFileService(ctx, cfg.ObjectStore, logr)

	exportStore, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	validate := validator.New()
	hub := events.NewHub(logr)
	clearanceRepo := repository.NewClearanceRepository(db)
	itemRepo := repository.NewApprovalItemRepository(db)
	entityRepo := repository.NewEntityRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	clearanceSvc := service.NewClearanceService(clearanceRepo, itemRepo, entityRepo, validate, logr,
		service.WithClearanceCache(cacheSvc, cfg.Clearance.CacheTTL),
		service.WithClearanceAudit(auditRepo),
	)

	refreshQueue := jobs.NewQueue("clearance-refresh", clearanceSvc.RefreshHandler(), jobs.QueueConfig{
		Workers:    cfg.Clearance.RefreshWorkers,
		MaxRetries: cfg.Clearance.RefreshRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	refreshQueue.Start(ctx)
	defer refreshQueue.Stop()

	approvalSvc := service.NewApprovalService(clearanceRepo, itemRepo, entityRepo, validate, logr,
		service.WithApprovalAudit(auditRepo),
		service.WithApprovalEvents(hub),
		service.WithApprovalRefresh(refreshQueue),
		service.WithApprovalCache(cacheSvc),
		service.WithApprovalMetrics(metricsSvc),
	)

	documentSvc := service.NewDocumentService(clearanceSvc, entityRepo, exportStore, signer,
		service.DocumentConfig{
			APIPrefix:        cfg.APIPrefix,
			ResultTTL:        cfg.Documents.SignedURLTTL,
			CompactMinScale:  cfg.Documents.CompactMinScale,
			DetailedMinScale: cfg.Documents.DetailedMinScale,
		},
		logr,
		service.WithDocumentSignatures(fileSvc),
		service.WithDocumentRenderers(export.NewPDFExporter(), export.NewRasterizer(cfg.Documents.RasterWidthPx)),
		service.WithDocumentMetrics(metricsSvc),
	)
	go runExportCleanup(ctx, documentSvc, cfg.Documents.CleanupInterval, logr)

	tokens := service.NewTokenService(cfg.JWT.Secret)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{
		`.*/events$`,
		`.*/(document|roster)$`,
		`.*/exports/.*`,
		`.*/files/.*`,
	})))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, readinessChecks(db, redisClient))
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routeDeps{
		tokens:     tokens,
		audit:      auditRepo,
		clearances: handler.NewClearanceHandler(clearanceSvc),
		approvals:  handler.NewApprovalHandler(approvalSvc),
		documents:  handler.NewDocumentHandler(documentSvc),
		files:      handler.NewFileHandler(fileSvc),
		events:     handler.NewEventsHandler(hub, cfg.Clearance.StreamOrigins, logr),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

type routeDeps struct {
	tokens     middleware.TokenValidator
	audit      middleware.AuditWriter
	clearances *handler.ClearanceHandler
	approvals  *handler.ApprovalHandler
	documents  *handler.DocumentHandler
	files      *handler.FileHandler
	events     *handler.EventsHandler
}

func registerRoutes(api *gin.RouterGroup, deps routeDeps) {
	api.GET("/exports/:token", deps.documents.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.tokens))
	secured.Use(middleware.WithResponseMeta())

	readers := []string{"SELF", string(models.RoleTeacher), string(models.RoleStaff), string(models.RoleAdmin)}
	approvers := middleware.RequireRoles(models.RoleTeacher, models.RoleStaff, models.RoleAdmin)

	secured.POST("/clearances", middleware.RequireRoles(models.RoleAdmin), deps.clearances.Create)
	secured.GET("/clearances/events", approvers, deps.events.Stream)
	secured.GET("/files/*ref", deps.files.Fetch)
	secured.POST("/approvals/:itemId/respond", approvers, deps.approvals.Respond)

	clearance := secured.Group("/clearances/:studentId/:semester")
	clearance.Use(middleware.RBAC(readers...))
	clearance.GET("", deps.clearances.Get)
	clearance.GET("/items", deps.clearances.Items)
	clearance.GET("/requirements", deps.clearances.Requirements)
	clearance.GET("/events", deps.events.Stream)
	clearance.GET("/document", deps.documents.Document)
	clearance.GET("/roster", middleware.Audit(deps.audit, models.AuditActionRosterDownloaded, "clearance"), deps.documents.Roster)
	clearance.POST("/export", middleware.Audit(deps.audit, models.AuditActionDocumentExported, "clearance"), deps.documents.Export)

	submitters := middleware.RBAC("SELF", string(models.RoleAdmin))
	clearance.POST("/items/:kind/:entityId/validate", submitters, deps.approvals.Validate)
	clearance.POST("/items/:kind/:entityId/request", submitters, deps.approvals.Request)
}

func newFileService(ctx context.Context, cfg config.ObjectStoreConfig, logr *zap.Logger) *service.FileService {
	store, err := storage.NewObjectStore(cfg)
	if err != nil {
		logr.Warn("object store misconfigured, file access disabled", zap.Error(err))
		return service.NewFileService(nil, logr)
	}
	if store == nil {
		logr.Info("object store not configured, file access disabled")
		return service.NewFileService(nil, logr)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		logr.Warn("object store bucket not ready", zap.String("bucket", store.Bucket()), zap.Error(err))
	}
	return service.NewFileService(store, logr)
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}

func runExportCleanup(ctx context.Context, documents *service.DocumentService, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := documents.Cleanup(0)
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired exports removed", zap.Int("count", len(removed)))
			}
		}
	}
}
