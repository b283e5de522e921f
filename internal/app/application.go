package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"form-builder-backend/internal/background"
	"form-builder-backend/internal/config"
	"form-builder-backend/internal/handlers"
	"form-builder-backend/internal/middleware"
	"form-builder-backend/internal/models"
	"form-builder-backend/internal/repository"
	"form-builder-backend/internal/service"
	"form-builder-backend/pkg/cache"
	"form-builder-backend/pkg/logger"
)

type Application struct {
	cfg *config.Config

	db          *gorm.DB
	cache       *cache.Cache
	rateLimiter *middleware.RateLimitManager
	scheduler   *background.Scheduler

	repositories repositoryContainer
	services     serviceContainer
	handlers     handlerContainer

	router *gin.Engine
	server *http.Server
}

type repositoryContainer struct {
	Form repository.FormRepository
}

type serviceContainer struct {
	Upload *service.UploadService
	Form   *service.FormService
	Page   *service.PageService
}

type handlerContainer struct {
	Form *handlers.FormHandler
	Page *handlers.PageHandler
}

func New(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	app := &Application{cfg: cfg}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.runMigrations(); err != nil {
		return nil, err
	}

	if err := app.createIndexes(); err != nil {
		return nil, err
	}

	app.initCache()
	app.initRepositories()
	app.initServices()
	app.initHandlers()
	app.initRouter()

	if err := app.initBackgroundJobs(); err != nil {
		return nil, err
	}

	app.server = &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        app.router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return app, nil
}

func (a *Application) Run() error {
	logger.Info("Server starting", map[string]interface{}{
		"port":        a.cfg.Port,
		"environment": a.cfg.Environment,
	})

	return a.server.ListenAndServe()
}

func (a *Application) Shutdown(ctx context.Context) error {
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			return err
		}
	}

	if a.scheduler != nil {
		if err := a.scheduler.Shutdown(ctx); err != nil {
			logger.Error(err, "Failed to stop background jobs", nil)
		}
	}

	if a.rateLimiter != nil {
		_ = a.rateLimiter.Shutdown()
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logger.Error(err, "Failed to close cache connection", nil)
		}
	}

	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			sqlDB.Close()
		}
	}

	return nil
}

func (a *Application) Router() *gin.Engine {
	return a.router
}

func (a *Application) initDatabase() error {
	logger.Info("Connecting to database", nil)

	db, err := gorm.Open(postgres.Open(a.cfg.DatabaseURL), &gorm.Config{
		Logger:         logger.NewGormLogger(),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(a.cfg.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(a.cfg.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	a.db = db
	return nil
}

func (a *Application) runMigrations() error {
	if a.db == nil {
		return fmt.Errorf("database connection is not initialized")
	}

	logger.Info("Running database migrations", nil)

	if err := a.db.AutoMigrate(
		&models.Form{},
		&models.FormPage{},
		&models.FormField{},
		&models.FormFieldOption{},
		&models.FormFieldGridCell{},
		&models.FormUpload{},
		&models.FormSnapshot{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Database migration completed", nil)
	return nil
}

func (a *Application) createIndexes() error {
	if a.db == nil {
		return fmt.Errorf("database connection is not initialized")
	}

	logger.Info("Creating database indexes", nil)

	statements := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_forms_user_title_ci ON forms(user_id, lower(title))",
		"CREATE INDEX IF NOT EXISTS idx_form_fields_position ON form_fields(form_id, page_id, position)",
		"CREATE INDEX IF NOT EXISTS idx_form_field_options_order ON form_field_options(field_id, sort_order)",
		"CREATE INDEX IF NOT EXISTS idx_form_uploads_scope ON form_uploads(form_id, page_id)",
	}

	for _, stmt := range statements {
		if err := a.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// initCache falls back to a disabled cache when Redis cannot be reached, so
// the service keeps working straight from the database.
func (a *Application) initCache() {
	if a.cfg.EnableCache && a.cfg.EnableRedis {
		c, err := cache.NewCache(a.cfg.RedisURL, true)
		if err == nil {
			a.cache = c
			return
		}
		logger.Warn("Redis unavailable, page cache disabled", map[string]interface{}{
			"error": err.Error(),
			"addr":  a.cfg.RedisURL,
		})
	}
	a.cache, _ = cache.NewCache("", false)
}

func (a *Application) initRepositories() {
	a.repositories = repositoryContainer{
		Form: repository.NewFormRepository(a.db),
	}
}

func (a *Application) initServices() {
	uploadBase := strings.TrimSuffix(a.cfg.UploadURL, "/")
	upload := service.NewUploadService(a.cfg.UploadDir, uploadBase, a.cfg.MaxUploadSize)

	a.services = serviceContainer{
		Upload: upload,
		Form:   service.NewFormService(a.repositories.Form, upload, a.cache, a.cfg.CacheTTL),
		Page:   service.NewPageService(a.repositories.Form, a.cache, a.cfg.JWTSecret),
	}
}

func (a *Application) initHandlers() {
	a.handlers = handlerContainer{
		Form: handlers.NewFormHandler(a.services.Form, a.cfg.MaxUploadSize),
		Page: handlers.NewPageHandler(a.services.Page),
	}
}

// initBackgroundJobs schedules the sweep of upload files left behind by saves
// that never committed. A zero interval disables it.
func (a *Application) initBackgroundJobs() error {
	a.scheduler = background.NewScheduler()
	a.scheduler.Start(context.Background())

	if a.cfg.UploadSweepInterval <= 0 {
		return nil
	}

	repo := a.repositories.Form
	uploads := a.services.Upload
	grace := a.cfg.UploadSweepGrace
	return a.scheduler.Every(background.Job{
		Name:     "upload_sweep",
		Interval: a.cfg.UploadSweepInterval,
		Timeout:  5 * time.Minute,
		Run: func(ctx context.Context) error {
			_, err := uploads.SweepOrphans(ctx, repo, grace)
			return err
		},
	})
}

func (a *Application) initRouter() {
	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	a.rateLimiter = middleware.NewRateLimitManager(context.Background())

	router := gin.New()
	router.MaxMultipartMemory = a.cfg.MaxUploadSize
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(logger.GinLogger())
	router.Use(middleware.SecurityHeadersMiddleware())
	if a.cfg.EnableMetrics {
		router.Use(middleware.MetricsMiddleware())
	}
	router.Use(middleware.RateLimitMiddleware(a.rateLimiter, a.cfg))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	if a.cfg.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	uploads := router.Group("/uploads", middleware.UploadsProtection())
	uploads.StaticFS("/", gin.Dir(a.cfg.UploadDir, false))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(a.cfg.JWTSecret))
	handlers.RegisterRoutes(v1, a.handlers.Form, a.handlers.Page,
		middleware.SaveRateLimitMiddleware(a.rateLimiter, a.cfg))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Route not found",
			"path":  c.Request.URL.Path,
		})
	})

	a.router = router
}
