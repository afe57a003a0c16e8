// Package server contains the HTTP handlers for the pixelgram API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "pixelgram/docs" // swagger docs
	"pixelgram/internal/auth"
	"pixelgram/internal/cache"
	"pixelgram/internal/config"
	"pixelgram/internal/database"
	"pixelgram/internal/featureflags"
	"pixelgram/internal/middleware"
	"pixelgram/internal/models"
	"pixelgram/internal/notifications"
	"pixelgram/internal/repository"
	"pixelgram/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
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
	tokens         *auth.TokenManager
	cache          *cache.Cache
	media          *service.LocalMediaStore
	featureFlags   *featureflags.Manager
	notifier       *notifications.Notifier
	userService    *service.UserService
	postService    *service.PostService
	commentService *service.CommentService
	messageService *service.MessageService
}

// NewServerWithDeps creates a Server around an already connected store and
// Redis client. redisClient may be nil; caching, revocation and
// notifications are then disabled.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, fmt.Errorf("server requires a config and a database")
	}

	flags := featureflags.NewManager(cfg.FeatureFlags)
	store := service.StoreOptions{
		Timeout:        cfg.StoreTimeout(),
		RetryAttempts:  cfg.StoreRetryAttempts,
		InitialBackoff: service.DefaultStoreOptions().InitialBackoff,
	}

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	maintenance := repository.NewMaintenanceRepository(db)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("pixelgram-api"),
		tokens:         auth.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL()),
		cache:          cache.New(redisClient),
		media:          service.NewLocalMediaStore(cfg, flags),
		featureFlags:   flags,
		notifier:       notifications.NewNotifier(redisClient, flags),
	}

	s.userService = service.NewUserService(userRepo, repository.NewFollowRepository(db), maintenance,
		s.tokens, s.media, s.cache, s.notifier, store)
	s.postService = service.NewPostService(postRepo, userRepo, repository.NewBookmarkRepository(db), maintenance,
		s.media, s.cache, s.notifier, store)
	s.commentService = service.NewCommentService(repository.NewCommentRepository(db), postRepo, s.notifier, store)
	s.messageService = service.NewMessageService(repository.NewChatRepository(db), userRepo, s.notifier, store)

	return s, nil
}

// NewApp builds the Fiber application with middleware and routes mounted.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "pixelgram API",
		BodyLimit: s.bodyLimit(),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.Response{Success: false, Message: fe.Message})
			}
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// bodyLimit leaves room for multipart framing around the largest upload.
func (s *Server) bodyLimit() int {
	mb := s.config.ImageMaxUploadSizeMB
	if mb <= 0 {
		mb = service.DefaultImageMaxUploadSizeMB
	}
	return (mb + 1) * 1024 * 1024
}

func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestScope())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Static media is embedded cross-origin by the web client.
	app.Use(helmet.New(helmet.Config{CrossOriginResourcePolicy: "cross-origin"}))
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so throttled responses keep CORS headers.
	app.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || s.config.Env == "test"
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.Response{
				Success: false,
				Message: "Too many requests, please try again later.",
			})
		},
	}))
}

func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Media is only served locally when MEDIA_BASE_URL is a path on this host.
	if strings.HasPrefix(s.config.MediaBaseURL, "/") {
		app.Static(s.config.MediaBaseURL, s.media.Dir(), fiber.Static{
			MaxAge: int((24 * time.Hour).Seconds()),
		})
	}

	api := app.Group("/api/v1")
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{Title: "pixelgram metrics"}))
	api.Get("/swagger/*", swagger.HandlerDefault)

	authRequired := middleware.AuthRequired(s.tokens, s.cache)

	user := api.Group("/user")
	user.Post("/register", middleware.RateLimit(s.redis, middleware.RegisterLimit), s.Register)
	user.Post("/login", middleware.RateLimit(s.redis, middleware.LoginLimit), s.Login)
	user.Get("/logout", s.Logout)
	user.Get("/MyProfile/:id", authRequired, s.GetProfile)
	user.Post("/MyProfile/edit", authRequired, s.EditProfile)
	user.Get("/suggested", authRequired, s.SuggestedUsers)
	user.Post("/followorunfollow/:id", authRequired, s.FollowOrUnfollow)

	post := api.Group("/post", authRequired)
	post.Post("/addPost", middleware.RateLimit(s.redis, middleware.AddPostLimit), s.AddPost)
	post.Get("/allPosts", s.ListPosts)
	post.Post("/allPosts", s.ListPosts)
	post.Get("/userpost/all", s.ListMyPosts)
	post.Post("/userpost/all", s.ListMyPosts)
	post.Post("/like/:id", s.LikePost)
	post.Post("/dislike/:id", s.DislikePost)
	post.Post("/comment/all/:id", s.ListComments)
	post.Post("/comment/:id", s.AddComment)
	post.Post("/delete/:id", s.DeletePost)
	post.Post("/bookmark/:id", s.BookmarkPost)

	message := api.Group("/message", authRequired)
	message.Post("/send/:id", middleware.RateLimit(s.redis, middleware.SendMessageLimit), s.SendMessage)
	message.Get("/all/:id", s.GetMessages)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(models.Response{Success: false, Message: "Route not found"})
	})
}

// LivenessCheck answers /health/live while the process is up.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports whether the Entity Store and Redis answer a ping.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis == nil {
		redisStatus = "unavailable"
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "unhealthy"
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus != "healthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
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

// Start builds the app and listens on the configured port.
func (s *Server) Start() error {
	s.app = s.NewApp()
	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops the HTTP server and closes the store and Redis.
func (s *Server) Shutdown(ctx context.Context) error {
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

	middleware.Logger.Info("server shutdown complete")
	return nil
}
