package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"custodia/internal/authz"
	"custodia/internal/compliance"
	"custodia/internal/handler"
	"custodia/internal/limits"
	"custodia/internal/middleware"
	"custodia/internal/payment"
	"custodia/internal/repository/postgres"
	"custodia/internal/risk"
	"custodia/internal/scheduler"
	"custodia/internal/txvalidator"
	"custodia/pkg/cache"
	"custodia/pkg/config"
	"custodia/pkg/logger"
	"custodia/pkg/validator"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("complianced")

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting compliance service", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	log.Info("Database connected", nil)

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
	}
	defer redisCache.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	log.Info("Redis connected", nil)

	// Repositories
	txRepo := postgres.NewTransactionRepository(db)
	customerRepo := postgres.NewCustomerRepository(db)
	spendingRepo := postgres.NewSpendingRepository(db)
	sarRepo := postgres.NewSARRepository(db)
	alertRepo := postgres.NewAlertRepository(db)
	walletRepo := postgres.NewWalletRepository(db)

	// Services
	txValidator := txvalidator.New(cfg.Policy, walletRepo, log)

	profiles := risk.NewProfileBuilder(customerRepo, txRepo)
	screener := risk.NewListScreener(cfg.Risk, customerRepo)
	riskEngine := risk.NewEngine(cfg.Risk, txRepo, profiles, screener, log)

	detector := compliance.NewThresholdDetector(cfg.Risk, txRepo)
	guard := redisCache.Guard("compliance")
	complianceService := compliance.NewService(
		cfg.Risk, cfg.Monitoring,
		txRepo, alertRepo, sarRepo, customerRepo,
		guard, detector, log,
	)

	limitService := limits.NewService(cfg.Tiers, spendingRepo, log)

	issuer := os.Getenv("TOTP_ISSUER")
	if issuer == "" {
		issuer = "custodia"
	}
	stepUp := authz.NewTOTPVerifier(issuer, log)

	paymentService := payment.NewService(
		txRepo, customerRepo, txValidator, riskEngine,
		complianceService, limitService, complianceService, stepUp, log,
	)

	// Handlers
	val := validator.New()
	paymentHandler := handler.NewPaymentHandler(paymentService, val, log)
	complianceHandler := handler.NewComplianceHandler(complianceService, txRepo, log)
	authzHandler := handler.NewAuthzHandler(stepUp, customerRepo, log)
	systemHandler := handler.NewSystemHandler(db, redisCache)

	// Router
	r := mux.NewRouter()
	r.Use(middleware.CORS)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)
	r.Use(middleware.BodyLimit(1 << 20))
	r.Use(middleware.NewRateLimiter(redisClient, 150, time.Minute).Limit)

	r.HandleFunc("/health", systemHandler.Health).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/transactions/authorize", paymentHandler.Authorize).Methods("POST")
	api.HandleFunc("/transactions/{id}/confirm", paymentHandler.Confirm).Methods("POST")
	api.HandleFunc("/transactions/{id}/fail", paymentHandler.Fail).Methods("POST")
	api.HandleFunc("/authz/enroll", authzHandler.Enroll).Methods("POST")
	api.HandleFunc("/authz/activate", authzHandler.Activate).Methods("POST")
	api.HandleFunc("/compliance/report", complianceHandler.GenerateReport).Methods("GET")
	api.HandleFunc("/compliance/flagged", complianceHandler.ListFlagged).Methods("GET")

	// Periodic batch sweep
	sweep := scheduler.NewScheduler(complianceService, cfg.Monitoring, log)
	sweep.Start()
	defer sweep.Stop()

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server listening", map[string]interface{}{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}
