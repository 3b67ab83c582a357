package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gate-service/internal/config"
	"gate-service/internal/handlers"
	"gate-service/internal/middleware"
	"gate-service/internal/models"
	"gate-service/internal/nats"
	"gate-service/internal/repository"
	"gate-service/internal/services"
)

func main() {
	// Load .env if present (development convenience)
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.App.Environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	// Initialize database
	db, err := initDatabase(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}

	// Auto-migrate database schema
	if err := migrateDatabase(db); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize providers. Push is initialized once per process and
	// injected everywhere; there is no module-level messaging state.
	pushProvider := initPushProvider(cfg)
	visitorNotifier := initVisitorNotifier(cfg)

	// Initialize repositories
	requestRepo := repository.NewVisitorRequestRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)
	deliveryRepo := repository.NewDeliveryLogRepository(db)

	// Initialize NATS (optional - service works without it)
	var (
		natsClient     *nats.Client
		natsSubscriber *nats.Subscriber
		publisher      services.EventPublisher
	)
	natsClient, err = nats.NewClient(cfg.NATS.URL, cfg.NATS.MaxReconnects, cfg.NATS.ReconnectWait)
	if err != nil {
		logrus.Warnf("Failed to connect to NATS: %v - decision events disabled", err)
		natsClient = nil
	} else {
		publisher = nats.NewPublisher(natsClient)
	}

	// Initialize services
	resolver := services.NewTokenResolver(directoryRepo, cfg.App.MinTokenLength)
	composer := services.NewComposer()
	dispatcher := services.NewDispatcher(requestRepo, directoryRepo, deliveryRepo, resolver, composer, pushProvider)
	relay := services.NewDecisionRelay(requestRepo, publisher, visitorNotifier)

	if natsClient != nil {
		natsSubscriber = nats.NewSubscriber(natsClient, dispatcher)
		if err := natsSubscriber.Start(context.Background()); err != nil {
			logrus.Warnf("Failed to start NATS subscriber: %v", err)
		}
	}

	// Initialize Redis for broadcast rate limiting (optional)
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logrus.Warnf("Failed to connect to Redis: %v - rate limiting will use in-memory fallback", err)
			redisClient = nil
		} else {
			logrus.Info("Redis connected for broadcast rate limiting")
		}
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db)
	visitorHandler := handlers.NewVisitorHandler(requestRepo, dispatcher, relay)
	tokenHandler := handlers.NewTokenHandler(directoryRepo)
	sendHandler := handlers.NewSendHandler(resolver, composer, pushProvider, directoryRepo, deliveryRepo)
	if cfg.RateLimit.Enabled {
		rateLimitConfig := middleware.BroadcastRateLimitConfig{
			ResidencyHourlyLimit: cfg.RateLimit.ResidencyHourlyLimit,
			ResidencyDailyLimit:  cfg.RateLimit.ResidencyDailyLimit,
			RedisKeyPrefix:       "broadcast:ratelimit:",
		}
		sendHandler.SetRateLimiter(middleware.NewBroadcastRateLimiterWithConfig(redisClient, logrus.StandardLogger(), rateLimitConfig))
		logrus.Infof("Broadcast rate limiting enabled (%d/hour, %d/day per residency)",
			cfg.RateLimit.ResidencyHourlyLimit, cfg.RateLimit.ResidencyDailyLimit)
	}

	// Setup router
	router := setupRouter(cfg, healthHandler, visitorHandler, tokenHandler, sendHandler)

	// Start server with graceful shutdown
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logrus.Infof("Starting Gate Service on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down Gate Service...")

	if natsSubscriber != nil {
		natsSubscriber.Stop()
	}
	if natsClient != nil {
		natsClient.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Gate Service stopped")
}

// initDatabase initializes the database connection
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{}
	if cfg.App.Environment == "production" {
		gormConfig.Logger = logger.Default.LogMode(logger.Silent)
	} else {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), gormConfig)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	return db, nil
}

// migrateDatabase runs database migrations
func migrateDatabase(db *gorm.DB) error {
	modelsToMigrate := []interface{}{
		&models.Block{},
		&models.Flat{},
		&models.Resident{},
		&models.VisitorRequest{},
		&models.DeliveryLog{},
	}

	for _, model := range modelsToMigrate {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	logrus.Info("Database migration completed")
	return nil
}

// initPushProvider initializes the FCM push provider
func initPushProvider(cfg *config.Config) services.PushSender {
	if cfg.Push.FCMCredentials == "" {
		logrus.Warn("No FCM credentials configured - push notifications disabled")
		return nil
	}

	providerConfig := &services.ProviderConfig{
		FCMCredentials: cfg.Push.FCMCredentials,
		FCMProjectID:   cfg.Push.FCMProjectID,
	}
	provider, err := services.NewFCMProvider(providerConfig)
	if err != nil {
		logrus.Warnf("Failed to initialize FCM provider: %v", err)
		return nil
	}
	logrus.Infof("Push provider configured: %s (project: %s)", provider.GetName(), cfg.Push.FCMProjectID)
	return provider
}

// initVisitorNotifier initializes the SNS SMS provider for visitor
// decision confirmations
func initVisitorNotifier(cfg *config.Config) services.VisitorNotifier {
	if !cfg.SMS.Enabled {
		return nil
	}

	snsConfig := &services.ProviderConfig{
		AWSRegion:          cfg.AWS.Region,
		AWSAccessKeyID:     cfg.AWS.AccessKeyID,
		AWSSecretAccessKey: cfg.AWS.SecretAccessKey,
		SNSFrom:            cfg.SMS.SNSFrom,
	}
	provider, err := services.NewSNSProvider(snsConfig)
	if err != nil {
		logrus.Warnf("Failed to initialize AWS SNS: %v - visitor SMS disabled", err)
		return nil
	}
	logrus.Infof("Visitor SMS configured: AWS SNS (region: %s)", cfg.AWS.Region)
	return provider
}

// setupRouter configures the Gin router with middleware and routes
func setupRouter(
	cfg *config.Config,
	healthHandler *handlers.HealthHandler,
	visitorHandler *handlers.VisitorHandler,
	tokenHandler *handlers.TokenHandler,
	sendHandler *handlers.SendHandler,
) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())

	// Health check endpoints
	router.GET("/health", healthHandler.Health)
	router.GET("/livez", healthHandler.Livez)
	router.GET("/readyz", healthHandler.Readyz)

	// API routes
	api := router.Group("/api")
	{
		api.POST("/visitor-requests", visitorHandler.Submit)
		api.GET("/visitor-requests/:id", visitorHandler.Get)
		api.POST("/visitor-decision", visitorHandler.Decide)
		api.POST("/visitor-action", visitorHandler.Action)
		api.POST("/send-notification", sendHandler.Send)
		api.POST("/residents/:residentId/token", tokenHandler.Register)
	}

	return router
}
