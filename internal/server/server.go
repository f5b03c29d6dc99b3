package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"training-platform/internal/handler"
	"training-platform/internal/middleware"
	"training-platform/internal/models"
	"training-platform/internal/service"
)

// Services are the application services the HTTP API is built on.
type Services struct {
	Auth        service.AuthService
	Annotations service.AnnotationService
	Export      service.ExportService
}

type Options struct {
	ServiceName    string
	Version        string
	AllowedOrigins []string
	Tracing        bool
	LoginRate      float64
	LoginBurst     int
}

type Server struct {
	router *gin.Engine
	db     handler.Pinger
	svc    Services
	opts   Options
	logger *zap.Logger
}

func NewServer(db handler.Pinger, svc Services, opts Options, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router: router,
		db:     db,
		svc:    svc,
		opts:   opts,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	if s.opts.Tracing {
		s.router.Use(otelgin.Middleware(s.opts.ServiceName))
	}
	s.router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(s.logger),
		middleware.CORS(s.opts.AllowedOrigins),
	)

	authHandler := handler.NewAuthHandler(s.svc.Auth, s.logger)
	annotationHandler := handler.NewAnnotationHandler(s.svc.Annotations, s.logger)
	exportHandler := handler.NewExportHandler(s.svc.Export, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.opts.Version)

	s.router.GET("/health", healthHandler.Health)

	loginRate := s.opts.LoginRate
	if loginRate <= 0 {
		loginRate = 1
	}
	loginLimiter := middleware.NewRateLimiter(loginRate, s.opts.LoginBurst)

	api := s.router.Group("/api/v1")
	api.POST("/auth/login", middleware.RateLimit(loginLimiter), authHandler.Login)

	authRequired := api.Group("")
	authRequired.Use(middleware.AuthMiddleware(s.svc.Auth, s.logger))
	{
		authRequired.GET("/auth/me", authHandler.Me)
		authRequired.POST("/auth/logout", authHandler.Logout)
		authRequired.POST("/auth/register", middleware.RequireRole(models.RoleAdmin), authHandler.Register)

		annotations := authRequired.Group("/annotations")
		annotations.POST("", middleware.RequireRole(models.RoleQAAnalyst), annotationHandler.Create)
		annotations.GET("", middleware.RequireRole(models.RoleViewer), annotationHandler.List)
		annotations.GET("/stats", middleware.RequireRole(models.RoleViewer), annotationHandler.Stats)
		annotations.GET("/:id", middleware.RequireRole(models.RoleViewer), annotationHandler.Get)
		annotations.GET("/:id/history", middleware.RequireRole(models.RoleViewer), annotationHandler.History)
		// Ownership is checked by the service.
		annotations.PUT("/:id", annotationHandler.Update)
		annotations.DELETE("/:id", annotationHandler.Delete)
		annotations.POST("/:id/approve", middleware.RequireRole(models.RoleQALead), annotationHandler.Review)

		export := authRequired.Group("/export")
		export.GET("/nlu/preview", middleware.RequireRole(models.RoleQALead), exportHandler.Preview)
		export.GET("/nlu/download", middleware.RequireRole(models.RoleQALead), exportHandler.Download)
		export.GET("/intents", middleware.RequireRole(models.RoleViewer), exportHandler.Intents)
		export.GET("/entities", middleware.RequireRole(models.RoleViewer), exportHandler.Entities)
	}
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests
// for at most shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
