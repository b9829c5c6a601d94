package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tempora-hq/be-tt-timesheets/internal/client"
	"github.com/tempora-hq/be-tt-timesheets/internal/handler"
	"github.com/tempora-hq/be-tt-timesheets/internal/repository"
	"github.com/tempora-hq/be-tt-timesheets/internal/service"
	"github.com/tempora-hq/be-tt-timesheets/pkg/config"
	"github.com/tempora-hq/be-tt-timesheets/pkg/database"
	"github.com/tempora-hq/be-tt-timesheets/pkg/jwt"
	"github.com/tempora-hq/be-tt-timesheets/pkg/logger"
	"github.com/tempora-hq/be-tt-timesheets/pkg/middleware"
	natsclient "github.com/tempora-hq/be-tt-timesheets/pkg/nats"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Time Sheets Service (TT-2)")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize JWT manager. Development runs without configured keys fall
	// back to an ephemeral pair so locally issued tokens still validate.
	publicKey := cfg.Auth.JWTPublicKey
	privateKey := cfg.Auth.JWTPrivateKey
	if publicKey == "" {
		privateKey, publicKey, err = jwt.GenerateKeyPair()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to generate development JWT key pair")
		}
		log.Warn().Msg("JWT_PUBLIC_KEY not set; using an ephemeral development key pair")
	}
	jwtManager, err := jwt.NewManager(privateKey, publicKey, 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}

	// Initialize NATS. An empty URL disables event publishing.
	var nats *natsclient.Client
	if cfg.NATS.URL != "" {
		nats, err = natsclient.Connect(cfg.NATS.URL, cfg.Service.Name)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nats.Close()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	} else {
		log.Warn().Msg("NATS_URL not set; notification publishing disabled")
	}
	notifier := client.NewNotificationPublisher(nats, log.Logger)

	// Initialize repositories
	entryRepo := repository.NewTimeEntryRepository(db)
	sheetRepo := repository.NewTimeSheetRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	settingsRepo := repository.NewApprovalSettingsRepository(db)
	messageRepo := repository.NewEntryMessageRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Initialize services
	entryService := service.NewTimeEntryService(entryRepo, sheetRepo, membershipRepo, messageRepo, auditRepo, notifier, log)
	sheetService := service.NewTimeSheetService(sheetRepo, entryRepo, membershipRepo, settingsRepo, messageRepo, auditRepo, notifier, log)
	settingsService := service.NewApprovalSettingsService(settingsRepo, membershipRepo, log)
	membershipService := service.NewMembershipService(membershipRepo, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(entryService, sheetService, settingsService, membershipService, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(&log.Logger))
	r.Use(middleware.Recovery(&log.Logger))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if err := db.Ping(context.Background()); err != nil {
			http.Error(w, `{"status":"unhealthy"}`, http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(jwtManager))
		httpHandler.RegisterRoutes(r)
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Auto-approval sweep: approve pending entries older than their project's
	// configured window.
	go func() {
		ticker := time.NewTicker(cfg.Sweep.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				approved, err := entryService.AutoApproveDue(ctx, now.UTC())
				if err != nil {
					log.Error().Err(err).Msg("Auto-approval sweep failed")
					continue
				}
				if approved > 0 {
					log.Info().Int("approved", approved).Msg("Auto-approval sweep completed")
				}
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
