package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jbank/backend/docs"
	"github.com/jbank/backend/internal/audit"
	"github.com/jbank/backend/internal/config"
	"github.com/jbank/backend/internal/database"
	"github.com/jbank/backend/internal/handlers"
	"github.com/jbank/backend/internal/metrics"
	"github.com/jbank/backend/internal/services"
)

// @title JBank Ledger API
// @version 1.0
// @description Double-entry ledger and term lending API
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg := config.Load()

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "JBank Ledger API"
	docs.SwaggerInfo.Description = "Double-entry ledger and term lending API"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	ctx := context.Background()

	db := database.InitDatabase(ctx, cfg.Database.AutoMigrate)
	defer db.Close()

	redisClient := database.InitRedis(ctx)
	if redisClient != nil {
		defer redisClient.Close()
	}

	if cfg.JWT.SecretKey == "" {
		log.Println("[MAIN] JWT_SECRET_KEY is not set; customer endpoints will reject every request")
	}
	if cfg.Scheduler.Token == "" {
		log.Println("[MAIN] SCHEDULER_TOKEN is not set; job endpoints are disabled")
	}

	collector := metrics.NewCollector()
	metricsServer := collector.StartMetricsServer(cfg.Metrics.Addr)
	auditLogger := audit.NewLogger()

	// Initialize services
	ledgerService := services.NewDoubleLedgerService(db, auditLogger, collector)
	ledgerService.SetMetadataLimits(cfg.Ledger.MaxMetadataBytes, cfg.Ledger.MaxMetadataKeys)
	registry := services.NewAccountRegistry(db)
	lendingService := services.NewLendingService(db, ledgerService, registry, auditLogger)
	timelineService := services.NewTimelineService(db)
	iso20022Service := services.NewISO20022Service(ledgerService)
	scheduler := services.NewLoanScheduler(db, ledgerService, registry, redisClient, collector, auditLogger,
		services.SchedulerOptions{
			Timezone:    cfg.Scheduler.Timezone,
			LoanTimeout: cfg.Scheduler.LoanTimeout,
			LockTTL:     cfg.Scheduler.LockTTL,
		})

	if err := registry.EnsureBankAccounts(ctx, cfg.Ledger.BankCurrencies); err != nil {
		log.Fatalf("[MAIN] Failed to provision bank accounts: %v", err)
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Ledger:         ledgerService,
		ISO:            iso20022Service,
		Lending:        lendingService,
		Timeline:       timelineService,
		Jobs:           scheduler,
		JWTSecret:      cfg.JWT.SecretKey,
		SchedulerToken: cfg.Scheduler.Token,
		RequestTimeout: cfg.Server.RequestTimeout,
		SwaggerURL:     "http://localhost:" + cfg.Server.Port + "/swagger/doc.json",
	})

	// Start server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Metrics server shutdown: %v", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
