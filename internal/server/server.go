// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "docket/docs" // swagger docs
	"docket/internal/blob"
	"docket/internal/bootstrap"
	"docket/internal/cache"
	"docket/internal/config"
	"docket/internal/database"
	"docket/internal/docgen"
	"docket/internal/middleware"
	"docket/internal/models"
	"docket/internal/notifications"
	"docket/internal/repository"
	"docket/internal/search"
	"docket/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo   repository.UserRepository
	blobs      blob.Store
	meili      *search.Meili
	notifier   *notifications.Notifier
	hub        *notifications.Hub
	dispatcher *notifications.Dispatcher

	projects      *service.ProjectService
	items         *service.ItemService
	relations     *service.RelationService
	changes       *service.ChangeRequestService
	approvals     *service.ApprovalService
	qc            *service.QCService
	notifications *service.NotificationService
	datafiles     *service.DataFileService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, rdb, err := bootstrap.InitRuntime(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	store, err := blob.Open(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("blob store init failed: %w", err)
	}

	return NewServerWithDeps(cfg, db, rdb, store)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; Redis-backed features then degrade to local or no-op behaviour.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, store blob.Store) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("docket-api"),
		userRepo:       repository.NewUserRepository(db),
		blobs:          store,
		notifier:       notifications.NewNotifier(redisClient),
		hub:            notifications.NewHub(),
	}
	s.dispatcher = notifications.NewDispatcher(repository.NewNotificationRepository(db), s.notifier, s.hub)

	if cfg.MeiliURL != "" {
		s.meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliAPIKey)
	}

	var docs docgen.Generator = docgen.Nop{}
	if cfg.DocgenEnabled {
		timeout := time.Duration(cfg.DocgenTimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		docs = docgen.NewPDFGenerator(store, docgen.WithTimeout(timeout))
	}

	ttl := time.Duration(cfg.ViewCacheTTLSeconds) * time.Second
	collab := service.Collaborators{
		Cache:    cache.NewViewCache(redisClient, ttl),
		Search:   search.NewService(s.meili, repository.NewItemRepository(db)),
		Docs:     docs,
		Notifier: s.dispatcher,
	}

	s.projects = service.NewProjectService(db, collab)
	s.items = service.NewItemService(db, collab)
	s.relations = service.NewRelationService(db, collab)
	s.changes = service.NewChangeRequestService(db)
	s.approvals = service.NewApprovalService(db, service.NewAllocator(), collab)
	s.qc = service.NewQCService(db, collab)
	s.notifications = service.NewNotificationService(db)
	s.datafiles = service.NewDataFileService(db, store, cfg.MaxUploadBytes())

	return s, nil
}

// SetupMiddleware installs the global middleware chain.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())

	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so short-circuited responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/swagger/*", swagger.HandlerDefault)

	auth := api.Group("/auth")
	auth.Post("/login", middleware.RateLimit(s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Get("/me", s.AuthRequired(), s.Me)

	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)
	api.Get("/ws", s.AuthRequired(), s.WebsocketHandler())

	protected := api.Group("", s.AuthRequired())

	projects := protected.Group("/projects")
	projects.Get("/", s.ListProjects)
	projects.Post("/", s.CreateProject)
	projects.Get("/:id/tree", s.GetProjectTree)
	projects.Get("/:id", s.GetProject)
	projects.Put("/:id", s.UpdateProject)
	projects.Delete("/:id", s.DeleteProject)

	// Specific routes before generic /:id
	items := protected.Group("/items")
	items.Get("/lookup", s.LookupItem)
	items.Get("/search", middleware.RateLimit(s.redis, 60, time.Minute, "item_search"), s.SearchItems)
	items.Get("/:id/history", s.GetItemHistory)
	items.Get("/:id/related", s.ListRelatedItems)
	items.Post("/:id/related", s.AddRelatedItem)
	items.Delete("/:id/related/:targetId", s.RemoveRelatedItem)
	items.Get("/:id", s.GetItem)

	changes := protected.Group("/change-requests")
	changes.Post("/", middleware.RateLimit(s.redis, 30, time.Minute, "submit_change"), s.SubmitChangeRequest)
	changes.Get("/rejected", s.ListRejectedChangeRequests)
	changes.Get("/rejected/:id", s.GetRejectedChangeRequest)
	changes.Post("/:id/resubmitted", s.MarkChangeRequestResubmitted)

	admin := protected.Group("/admin/change-requests", s.ReviewerRequired())
	admin.Get("/", s.ListPendingChangeRequests)
	admin.Post("/:id/approve", s.ApproveChangeRequest)
	admin.Post("/:id/reject", s.RejectChangeRequest)

	qc := protected.Group("/qc/approvals")
	qc.Get("/", s.ListQCApprovals)
	qc.Get("/pending-qc", s.ListPendingQC)
	qc.Get("/pending-pm", s.ListPendingPM)
	qc.Get("/count", s.CountPendingQC)
	qc.Get("/revisions", s.ListRevisionRequired)
	qc.Get("/:id", s.GetQCApproval)
	qc.Post("/:id/approve-qc", s.ApproveQC)
	qc.Post("/:id/approve-pm", s.ApprovePM)
	qc.Post("/:id/reject", s.RejectQC)
	qc.Post("/:id/resubmit", s.ResubmitQC)

	notes := protected.Group("/notifications")
	notes.Get("/", s.ListNotifications)
	notes.Post("/:id/read", s.MarkNotificationRead)

	files := protected.Group("/datafiles")
	files.Get("/", s.ListDataFiles)
	files.Post("/", middleware.RateLimit(s.redis, 20, time.Minute, "datafile_upload"), s.UploadDataFile)
	files.Get("/:id/download", s.DownloadDataFile)
	files.Delete("/:id", s.DeleteDataFile)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports database and Redis health. Redis is optional: a server started without it
// is ready with redis reported as "unavailable".
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	searchStatus := "disabled"
	if s.meili != nil {
		searchStatus = "healthy"
		if !s.meili.Healthy() {
			searchStatus = "degraded"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
			"search":   searchStatus,
			"blob":     string(s.blobs.Driver()),
		},
		"time": time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName:   "Docket API",
		BodyLimit: int(s.config.MaxUploadBytes()) + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	if s.notifier.Enabled() {
		go func() {
			if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				middleware.Logger.Error("failed to start notification hub wiring",
					slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
			}
		}()
	}

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down hub", slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
	}

	if s.meili != nil {
		s.meili.Close()
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
