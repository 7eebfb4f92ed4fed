// Package server contains the HTTP handlers for the content API.
package server

import (
	"context"
	"log/slog"
	"time"

	"folio/internal/bootstrap"
	"folio/internal/cache"
	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/featureflags"
	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/notifications"
	"folio/internal/repository"
	"folio/internal/service"
	"folio/internal/worker"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
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
	flags          *featureflags.Set

	store    *repository.Store
	auth     *middleware.Authenticator
	limiter  *middleware.RateLimiter
	notifier *notifications.Notifier

	postService       *service.PostService
	moderationService *service.ModerationService
	commentService    *service.CommentService
	cascadeService    *service.CascadeService
	reconciler        *service.Reconciler
}

// NewServer connects to the database and Redis described by cfg and builds a
// Server on top of them. Redis is optional: without it the list cache,
// events and rate limits are skipped.
func NewServer(cfg *config.Config) (*Server, error) {
	db, rdb, err := bootstrap.InitRuntime(cfg, bootstrap.Options{})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, rdb)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*Server, error) {
	store := repository.NewStore(db)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          rdb,
		promMiddleware: middleware.InitMetrics("folio-api"),
		flags:          featureflags.Parse(cfg.FeatureFlags),
		store:          store,
		limiter:        middleware.NewRateLimiter(rdb, cfg.Env, middleware.FailOpen),
	}
	s.auth = middleware.NewAuthenticator(cfg, middleware.PrincipalResolverFunc(s.resolvePrincipal))

	var (
		listCache *cache.PostListCache
		events    service.EventPublisher
	)
	if rdb != nil {
		if s.flags.Enabled(featureflags.ListCache, true) {
			listCache = cache.NewPostListCache(rdb, time.Duration(cfg.ListCacheTTLSeconds)*time.Second)
		}
		if s.flags.Enabled(featureflags.DomainEvents, true) {
			s.notifier = notifications.NewNotifier(rdb)
			events = s.notifier
		}
	}
	if overrides := s.flags.Overrides(); len(overrides) > 0 {
		middleware.Logger.Info("Feature flag overrides", slog.Any("flags", overrides))
	}

	s.postService = service.NewPostService(store, listCache, events)
	s.moderationService = service.NewModerationService(store, listCache, events)
	s.commentService = service.NewCommentService(store, events)
	s.cascadeService = service.NewCascadeService(store, listCache, events, cfg.CascadeConcurrency)
	s.reconciler = service.NewReconciler(store.Posts)

	return s, nil
}

// resolvePrincipal loads the role and active flag of a token subject.
func (s *Server) resolvePrincipal(ctx context.Context, userID uint) (models.Principal, error) {
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return models.Principal{}, err
	}
	return models.PrincipalFromUser(user), nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so throttled responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
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
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Folio Backend Metrics Dashboard",
	}))

	optional := s.auth.Optional()
	required := s.auth.Required()

	// Posts: reads are public, writes need a principal
	posts := api.Group("/posts")
	posts.Get("/", optional, s.GetPosts)
	posts.Get("/slug/:slug", optional, s.GetPostBySlug)
	posts.Get("/:id/comments", optional, s.GetComments)
	posts.Post("/", required, s.limiter.Limit("create_post", 5, 10*time.Minute), s.CreatePost)
	posts.Post("/:id/like", required, s.limiter.Limit("like", 60, time.Minute), s.LikePost)
	posts.Post("/:id/comments", required, s.limiter.Limit("create_comment", 10, time.Minute), s.CreateComment)
	posts.Put("/:id", required, s.UpdatePost)
	posts.Delete("/:id", required, s.DeletePost)

	comments := api.Group("/comments", required)
	comments.Post("/:id/like", s.limiter.Limit("like", 60, time.Minute), s.LikeComment)
	comments.Put("/:id", s.UpdateComment)
	comments.Delete("/:id", s.DeleteComment)

	users := api.Group("/users", required)
	users.Get("/me/posts", s.GetMyPosts)

	admin := api.Group("/admin", required, middleware.AdminRequired())
	admin.Get("/posts", s.GetModerationQueue)
	admin.Post("/posts/:id/approve", s.ApprovePost)
	admin.Post("/posts/:id/reject", s.RejectPost)
	admin.Post("/posts/:id/reconcile", s.ReconcilePost)
	admin.Delete("/posts/:id", s.AdminDeletePost)
	admin.Post("/users/:id/deactivate", s.DeactivateUser)
	admin.Post("/reconcile", s.ReconcileAll)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports whether the database answers. Redis is reported but
// only degrades readiness, since every Redis-backed feature has a fallback.
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

	status := fiber.StatusOK
	overall := "healthy"
	switch {
	case dbStatus != "healthy":
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	case redisStatus != "healthy":
		overall = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// newApp builds the Fiber app with the error handler every handler relies on.
func (s *Server) newApp() *fiber.App {
	return fiber.New(fiber.Config{
		AppName: "Folio API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			return respondError(c, err)
		},
	})
}

// Start starts the server and the periodic reconciler.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.newApp()
	s.app = app
	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	if s.flags.Enabled(featureflags.ReconcileWorker, true) {
		interval := time.Duration(s.config.ReconcileIntervalMinutes) * time.Minute
		go worker.NewReconcileWorker(s.reconciler, interval).Run(s.shutdownCtx)
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

	if err := database.Close(s.db); err != nil {
		middleware.Logger.Error("error closing database", slog.String("error", err.Error()))
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
