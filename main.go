package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Blackie360/Persona-Studio/api"
	"github.com/Blackie360/Persona-Studio/cache"
	"github.com/Blackie360/Persona-Studio/config"
	"github.com/Blackie360/Persona-Studio/db"
	"github.com/Blackie360/Persona-Studio/middleware"
	"github.com/Blackie360/Persona-Studio/monitoring"
	"github.com/Blackie360/Persona-Studio/providers"
	"github.com/Blackie360/Persona-Studio/security"
	"github.com/Blackie360/Persona-Studio/services"
	"github.com/Blackie360/Persona-Studio/stores"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	database, err := db.Connect(cfg.GetDatabaseURL(), db.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.MaxLifetime,
		ConnMaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Printf("Connected to PostgreSQL at %s:%d", cfg.Database.Host, cfg.Database.Port)

	redisCache, err := cache.CreateRedisCache(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.TTL,
	})
	if err != nil {
		log.Printf("Failed to connect to Redis: %v (continuing without cache)", err)
		redisCache = nil
	} else {
		defer redisCache.Close()
		log.Printf("Connected to Redis at %s:%d", cfg.Redis.Host, cfg.Redis.Port)
	}

	jwtManager := security.CreateJWTManager(cfg.Security.AdminJWTSecret, "persona-studio")
	rateLimiter := security.CreateRateLimiter(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)
	defer rateLimiter.Close()

	paystackProvider := providers.CreatePaystackProvider(cfg.Paystack.SecretKey, cfg.Paystack.WebhookSecret)
	if cfg.IsDevelopment() && cfg.Paystack.WebhookSecret == "" {
		// Config validation rejects this combination outside development.
		log.Printf("WARNING: webhook signature verification disabled (development, no secret)")
		paystackProvider.AllowUnsignedWebhooks()
	}

	generator := providers.CreateOpenRouterGenerator(
		cfg.Generation.APIKey,
		cfg.Generation.Model,
		cfg.Generation.MaxPromptLength,
		cfg.Generation.Timeout,
	)

	userStore := stores.CreateUserStore(database)
	usageStore := stores.CreateUsageStore(database)
	creditStore := stores.CreateCreditStore(database)
	paymentStore := stores.CreatePaymentStore(database)
	blockStore := stores.CreateBlockStore(database)
	webhookStore := stores.CreateWebhookEventStore(database)

	blocklistService := services.CreateBlocklistService(blockStore)
	admissionService := services.CreateAdmissionService(usageStore, creditStore, cfg.Entitlement)
	var usageService *services.UsageService
	if redisCache != nil {
		usageService = services.CreateUsageService(admissionService, redisCache.Client(), redisCache.TTL())
	} else {
		usageService = services.CreateUsageService(admissionService, nil, cfg.Redis.TTL)
	}
	generationService := services.CreateGenerationService(blocklistService, admissionService, usageStore, generator)
	reconciliationService := services.CreateReconciliationService(
		paymentStore, creditStore, userStore, webhookStore, paystackProvider, cfg.Entitlement)
	adminService := services.CreateAdminService(userStore, usageStore, paymentStore, creditStore, blockStore)

	healthChecker := monitoring.CreateHealthChecker()
	healthChecker.AddCheck("database", func(ctx context.Context) error {
		sqlDB, err := database.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	if redisCache != nil {
		healthChecker.AddCheck("redis", redisCache.Ping)
	}

	generationHandler := api.CreateGenerationHandler(generationService, usageService, blocklistService)
	paymentHandler := api.CreatePaymentHandler(reconciliationService)
	adminHandler := api.CreateAdminHandler(adminService, jwtManager)
	healthHandler := api.CreateHealthHandler(healthChecker)

	identityMiddleware := middleware.CreateIdentityMiddleware(userStore)
	adminMiddleware := middleware.CreateAdminMiddleware(jwtManager)

	router := mux.NewRouter()
	router.Use(middleware.RecoveryMiddleware)
	router.Use(middleware.LoggingMiddleware)
	router.Use(middleware.CORSMiddleware)

	router.HandleFunc("/health", healthHandler.HandleHealth).Methods("GET")
	router.HandleFunc("/api/v1/health", healthHandler.HandleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(middleware.RateLimitMiddleware(rateLimiter))
	apiRouter.Use(identityMiddleware.Resolve)

	apiRouter.HandleFunc("/generate", generationHandler.HandleGenerate).Methods("POST")
	apiRouter.HandleFunc("/generation-usage", generationHandler.HandleUsage).Methods("GET")
	apiRouter.HandleFunc("/block-status", generationHandler.HandleBlockStatus).Methods("GET")

	apiRouter.HandleFunc("/payments/initiate", paymentHandler.HandleInitiate).Methods("POST")
	apiRouter.HandleFunc("/payments/callback", paymentHandler.HandleCallback).Methods("GET")
	apiRouter.HandleFunc("/payments/link-credits", paymentHandler.HandleLinkCredits).Methods("POST")

	// Webhook deliveries carry their own authentication via signature and
	// bypass the identity and rate-limit layers.
	router.HandleFunc("/api/v1/payments/webhook", paymentHandler.HandleWebhook).Methods("POST")

	router.HandleFunc("/api/v1/admin/login", adminHandler.HandleLogin).Methods("POST")

	adminRouter := router.PathPrefix("/api/v1/admin").Subrouter()
	adminRouter.Use(adminMiddleware.Require)
	adminRouter.HandleFunc("/stats", adminHandler.HandleStats).Methods("GET")
	adminRouter.HandleFunc("/users", adminHandler.HandleUsers).Methods("GET")
	adminRouter.HandleFunc("/generations", adminHandler.HandleGenerations).Methods("GET")
	adminRouter.HandleFunc("/payments", adminHandler.HandlePayments).Methods("GET")
	adminRouter.HandleFunc("/users/{id}/block", adminHandler.HandleBlock).Methods("POST")
	adminRouter.HandleFunc("/users/{id}/unblock", adminHandler.HandleUnblock).Methods("POST")

	server := &http.Server{
		Addr:           ":" + cfg.Server.Port,
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s (environment: %s)", cfg.Server.Port, cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server stopped gracefully")
}
