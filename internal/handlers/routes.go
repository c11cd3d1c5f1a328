package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mW "github.com/jbank/backend/internal/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

// RouterConfig carries everything the HTTP surface is wired to
type RouterConfig struct {
	Ledger         LedgerService
	ISO            Pacs008Exporter
	Lending        LendingService
	Timeline       TimelineReader
	Jobs           JobRunner
	JWTSecret      string
	SchedulerToken string
	RequestTimeout time.Duration
	SwaggerURL     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	ledgerHandler := NewLedgerHandler(cfg.Ledger, cfg.ISO)
	productHandler := NewProductHandler(cfg.Lending)
	timelineHandler := NewTimelineHandler(cfg.Timeline)
	jobHandler := NewJobHandler(cfg.Jobs)

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mW.SchedulerTokenHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	if cfg.SwaggerURL != "" {
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(cfg.SwaggerURL)))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Cron dispatcher endpoints
		r.Group(func(r chi.Router) {
			r.Use(mW.SchedulerAuth(cfg.SchedulerToken))

			r.Post("/jobs/loans/{job}", jobHandler.Trigger)
			r.Get("/jobs/{job}/last", jobHandler.LastRun)
		})

		// Customer endpoints
		r.Group(func(r chi.Router) {
			r.Use(mW.JWTAuth(cfg.JWTSecret))

			r.Post("/ledger/postings", ledgerHandler.PostTransaction)
			r.Post("/ledger/transfers", ledgerHandler.Transfer)
			r.Get("/ledger/transactions/{txnId}", ledgerHandler.GetTransaction)
			r.Get("/ledger/transactions/{txnId}/pacs008", ledgerHandler.ExportPacs008)
			r.Get("/ledger/accounts/{accountId}/balance", ledgerHandler.GetBalance)

			r.Post("/deposits", productHandler.CreateDeposit)
			r.Post("/lending/locs", productHandler.CreateLoc)
			r.Get("/lending/locs/{locId}/exposure", productHandler.GetLocExposure)
			r.Post("/lending/loans", productHandler.CreateLoan)
			r.Get("/lending/loans/{loanId}/schedule", productHandler.GetSchedule)
			r.Post("/lending/loans/{loanId}/repayments", productHandler.ApplyRepayment)

			r.Get("/history", timelineHandler.GetHistory)
		})
	})

	return r
}
