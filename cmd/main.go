package main

import (
	"mealorder-service/internal/authz"
	"mealorder-service/internal/catalog"
	"mealorder-service/internal/handler"
	"mealorder-service/internal/middleware"
	"mealorder-service/internal/model"
	"mealorder-service/internal/notifier"
	"mealorder-service/internal/ordering"
	"mealorder-service/internal/pricing"
	"mealorder-service/internal/session"
	"mealorder-service/pkg/cache"
	"mealorder-service/pkg/config"
	"mealorder-service/pkg/database"
	"mealorder-service/pkg/jwtutil"
	"mealorder-service/pkg/logger"
	"mealorder-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load("mealorder-service")
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting meal order service...", cfg.LogConfig()...)

	// Initialize database
	db, err := database.InitDB(&cfg.DB)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	if err := database.MigrateModels(
		&model.University{},
		&model.User{},
		&model.MenuItem{},
		&model.MenuVariant{},
		&model.AvailabilityRecord{},
		&model.Order{},
		&model.OrderItem{},
		&model.AuthzAuditLog{},
		&model.RevocationEvent{},
	); err != nil {
		log.Fatal("Failed to migrate models", zap.Error(err))
	}
	log.Info("Database migration completed")

	var activeUniversities int64
	db.Model(&model.University{}).Where("active = ?", true).Count(&activeUniversities)
	prometheus.ActiveUniversitiesGauge.Set(float64(activeUniversities))

	// Initialize JWT utility
	jwtutil.Initialize(&cfg.JWT)
	log.Info("JWT utility initialized")

	// Connect the cache; an empty address disables it
	if err := cache.Connect(&cfg.Redis); err != nil {
		log.Warn("Cache unavailable, continuing without it", zap.Error(err))
	} else if cache.Enabled() {
		log.Info("Cache connected", zap.String("addr", cfg.Redis.Addr))
	}

	// Wire domain services
	auth := authz.New(db, log)
	catalogService := catalog.New(db, log,
		cfg.Catalog.ListingCacheTTL, cfg.Catalog.ProvisionDays, cfg.Catalog.DefaultDailyCap)
	calc := pricing.New(catalogService)
	orderNotifier := notifier.New(&cfg.Notifier, log)
	manager := ordering.NewManager(db, catalogService, calc, auth, orderNotifier, log)
	ledger := session.NewLedger(db, auth, log)

	authHandler := handler.NewAuthHandler(db, auth)
	menuHandler := handler.NewMenuHandler(catalogService, auth)
	orderHandler := handler.NewOrderHandler(db, manager)
	adminHandler := handler.NewAdminHandler(db, auth, ledger)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes - these don't belong under /api since they're for getting access to the API
	auth2 := e.Group("/auth")
	auth2.POST("/register", authHandler.Register)
	auth2.POST("/login", authHandler.Login)

	// API routes - all require authentication
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware(ledger))

	// Menu catalog and per-date availability
	menu := api.Group("/menu-items")
	menu.GET("", menuHandler.List)
	menu.POST("", menuHandler.Create)
	menu.PUT("/:id", menuHandler.Update)
	menu.PATCH("/:id/active", menuHandler.SetActive)
	menu.PUT("/:id/availability", menuHandler.SetAvailability)

	// Order lifecycle
	orders := api.Group("/orders")
	orders.POST("", orderHandler.Create)
	orders.GET("", orderHandler.List)
	orders.GET("/:id", orderHandler.Get)
	orders.POST("/:id/transition", orderHandler.Transition)
	orders.POST("/:id/serve", orderHandler.Serve)

	// Ordering window pre-check for client UIs
	api.GET("/ordering-window", orderHandler.CheckWindow)

	// Account approval workflow
	users := api.Group("/users")
	users.PATCH("/:id/status", authHandler.UpdateUserStatus)

	// Operator provisioning and session revocation
	api.POST("/universities", adminHandler.CreateUniversity)
	api.PUT("/universities/:id/ordering-settings", adminHandler.UpdateOrderingSettings)
	api.POST("/admin/force-logout-students", adminHandler.ForceLogoutStudents)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
