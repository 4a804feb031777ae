package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"booking-api/internal/auth"
	"booking-api/internal/booking"
	"booking-api/internal/config"
	"booking-api/internal/db"
	"booking-api/internal/maintenance"
	"booking-api/internal/observability"
)

type Options struct {
	LoadDotEnv bool
	// RunMigrations forces migrations on; otherwise RUN_MIGRATIONS_ON_STARTUP decides.
	RunMigrations bool
}

type Runtime struct {
	Config  *config.Config
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	cfg, err := config.Load(config.Options{LoadDotEnv: options.LoadDotEnv})
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger()

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	database.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	database.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DB.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations || cfg.RunMigrationsOnStartup {
		if err := db.RunMigrations(ctx, database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	handler, authService, err := buildHandler(cfg, database, logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	if err := authService.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	return &Runtime{
		Config:  cfg,
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func buildHandler(cfg *config.Config, database *sql.DB, logger *observability.Logger) (http.Handler, *auth.Service, error) {
	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		TTL:      cfg.JWT.TokenTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, issuer)
	authService.WithLockout(cfg.Login.MaxAttempts, cfg.Login.LockDuration)
	authHandler := auth.NewHandler(authService)

	bookingHandler := booking.NewHandler(booking.NewRepository(database))
	cleanupHandler := maintenance.NewCleanupHandler(authRepo, logger, cfg.CronSecret, cfg.LockoutCleanupBatchSize)

	limit := func(h http.HandlerFunc) http.Handler {
		return auth.NewRateLimiter(cfg.Login.RateLimitMax, cfg.Login.RateLimitWindow).Middleware(h)
	}
	guard := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(issuer, h)
	}

	var registerAdmin http.Handler = limit(authHandler.RegisterAdmin)
	if cfg.Login.RegisterAdminRequiresAdmin {
		registerAdmin = auth.Middleware(issuer, auth.RequireRole(auth.RoleAdmin, registerAdmin))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /auth/login", limit(authHandler.Login))
	mux.Handle("POST /auth/register", limit(authHandler.Register))
	mux.Handle("POST /auth/register-admin", registerAdmin)
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))
	mux.Handle("GET /bookings", guard(bookingHandler.ListBookings))
	mux.Handle("POST /bookings", guard(bookingHandler.CreateBooking))
	mux.Handle("GET /bookings/{id}", guard(bookingHandler.GetBooking))
	mux.Handle("PUT /bookings/{id}", guard(bookingHandler.UpdateBooking))
	mux.Handle("DELETE /bookings/{id}", guard(bookingHandler.DeleteBooking))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return handler, authService, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
