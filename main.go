package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"portfolio_api/config"
	"portfolio_api/middleware"
	"portfolio_api/models"
	"portfolio_api/routes"
	"portfolio_api/scheduler"
	"portfolio_api/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	logger, err := config.NewLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Portfolio API starting", zap.String("environment", cfg.Environment))

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database connection
	db, err := config.InitDB(logger)
	if err != nil {
		logger.Fatal("Database connection failed", zap.Error(err))
	}

	// Run database migrations
	logger.Info("Running database migrations...")
	if err := models.Migrate(db); err != nil {
		logger.Fatal("Migration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize services
	portfolio := services.NewPortfolioService(db)
	auth := services.NewAuthService(db, cfg.JWTSecret, cfg.TokenTTL, logger)
	quotes := services.NewQuoteClient(cfg.QuoteAPIURL, cfg.QuoteAPIKey, cfg.QuoteAPIKeyHeader, cfg.QuoteTimeout)
	hub := services.NewPriceHub(logger)

	sinks, closeSinks := initPriceSinks(ctx, cfg, logger)
	sinks = append([]services.PriceSink{hub}, sinks...)
	refresher := services.NewPriceRefresher(portfolio, quotes, logger, sinks...)

	limiter := middleware.NewRateLimiter(5, 15*time.Minute, 30*time.Minute)
	limiter.StartCleanup(ctx, 5*time.Minute)

	// Create Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	router.Use(middleware.RequestLogger(logger))

	setupHealthEndpoints(router, db)
	routes.SetupRoutes(router, routes.Dependencies{
		Auth:      auth,
		Portfolio: portfolio,
		Prices:    quotes,
		Hub:       hub,
		Limiter:   limiter,
		Logger:    logger,
	})

	// Start background scheduler
	jobScheduler, err := scheduler.NewScheduler(refresher, cfg.RefreshInterval, auth, logger)
	if err != nil {
		logger.Fatal("Scheduler setup failed", zap.Error(err))
	}
	if err := jobScheduler.Start(ctx); err != nil {
		logger.Fatal("Scheduler start failed", zap.Error(err))
	}

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		logger.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal, shutting down gracefully...")
	gracefulShutdown(server, jobScheduler, hub, closeSinks, db, logger)
}

// initPriceSinks connects the optional Redis and MongoDB sinks. A sink that fails to
// connect is logged and skipped.
func initPriceSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]services.PriceSink, func()) {
	var sinks []services.PriceSink
	var closers []func() error

	if cfg.RedisAddr != "" {
		client, err := services.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warn("Redis not available, proceeding without price cache", zap.Error(err))
		} else {
			sinks = append(sinks, services.NewRedisPricePublisher(client))
			closers = append(closers, client.Close)
			logger.Info("Redis price publisher enabled", zap.String("addr", cfg.RedisAddr))
		}
	}

	if cfg.MongoURI != "" {
		store, err := services.ConnectMongoPriceStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.Warn("MongoDB not available, proceeding without price store", zap.Error(err))
		} else {
			sinks = append(sinks, store)
			closers = append(closers, store.Close)
			logger.Info("MongoDB price store enabled", zap.String("database", cfg.MongoDatabase))
		}
	}

	return sinks, func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn("Error closing price sink", zap.Error(err))
			}
		}
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Upgrade", "Connection"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

// setupHealthEndpoints sets up liveness and readiness probes
func setupHealthEndpoints(router *gin.Engine, db *gorm.DB) {
	// Liveness probe - always returns OK if server is running
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe - checks the database connection
	router.GET("/ready", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database connection error",
			})
			return
		}

		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})
}

// gracefulShutdown stops background work before the server and the database
func gracefulShutdown(server *http.Server, jobScheduler *scheduler.Scheduler, hub *services.PriceHub, closeSinks func(), db *gorm.DB, logger *zap.Logger) {
	// Stop scheduler first
	jobScheduler.Stop()
	hub.Shutdown()
	closeSinks()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	// Close database connection
	if err := config.CloseDB(db); err != nil {
		logger.Warn("Error closing database", zap.Error(err))
	} else {
		logger.Info("Database connection closed")
	}

	logger.Info("Server shutdown completed")
}
