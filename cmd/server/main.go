package main

import (
	"context"
	"time"

	"estate-portal/internal/backend"
	"estate-portal/internal/handler"
	"estate-portal/internal/middleware"
	"estate-portal/internal/profile"
	"estate-portal/internal/project"
	"estate-portal/internal/session"
	"estate-portal/pkg/config"
	"estate-portal/pkg/logger"
	"estate-portal/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting estate portal...", cfg.LogConfig()...)

	// Initialize Prometheus metrics
	prometheus.InitMetrics(version)
	log.Info("Prometheus metrics initialized")

	// Hosted backend clients share one HTTP client
	client := backend.New(cfg.Backend.URL, cfg.Backend.AnonKey, cfg.Backend.Timeout)
	authClient := backend.NewAuthClient(client)
	tables := backend.NewTableClient(client)

	// Portal session store
	store, err := session.NewGormStore(cfg.Session.DBPath)
	if err != nil {
		log.Fatal("Failed to open session store", zap.Error(err))
	}
	log.Info("Session store opened", zap.String("path", cfg.Session.DBPath))

	if err := store.PruneExpired(context.Background(), time.Now()); err != nil {
		log.Warn("Failed to prune expired sessions", zap.Error(err))
	}

	manager := session.NewManager(authClient, store, cfg.Backend.JWTSecret, cfg.Session.TTL, log)
	profiles := profile.NewResolver(tables, log)
	projects := project.NewStore(tables, log)
	gateway := project.NewGateway(tables, log)

	// The one process-wide subscription: an audit trail of session changes.
	// Registered exactly once here; request handling never adds listeners.
	unsubscribe := manager.Subscribe(func(kind session.EventKind, s *session.Session) {
		fields := []zap.Field{zap.String("event", string(kind))}
		if s != nil {
			fields = append(fields, zap.String("user_id", s.UserID), zap.String("email", s.Email))
		}
		log.Info("Session event", fields...)
	})
	defer unsubscribe()

	cookies := session.CookieOptions{Secure: cfg.Session.CookieSecure}

	authHandler := handler.NewAuthHandler(manager, authClient, profiles, cookies, cfg.Server.BaseURL)
	projectHandler := handler.NewProjectHandler(projects, gateway)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(prometheus.GetPrometheusHandler()))

	// Authentication routes - these don't belong under /api since they're for getting access to the API
	auth := e.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/oauth/:provider", authHandler.OAuthRedirect)
	auth.GET("/callback", authHandler.OAuthCallback)
	auth.POST("/forgot-password", authHandler.ForgotPassword)
	auth.POST("/reset-password", authHandler.ResetPassword)
	auth.GET("/session", authHandler.SessionProbe)

	// API routes - all require an authenticated portal session
	api := e.Group("/api")
	api.Use(middleware.SessionMiddleware(manager, profiles, cookies))

	api.GET("/me", authHandler.Me)
	api.GET("/projects", projectHandler.List)
	api.POST("/projects", projectHandler.Create)
	api.DELETE("/projects/:id", projectHandler.Delete)

	// Start server
	log.Info("Starting server", zap.String("port", cfg.Server.Port))
	if err := e.Start(":" + cfg.Server.Port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
