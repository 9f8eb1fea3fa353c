// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/olegiv/warden-go/internal/audit"
	"github.com/olegiv/warden-go/internal/config"
	"github.com/olegiv/warden-go/internal/geoip"
	"github.com/olegiv/warden-go/internal/handler/api"
	"github.com/olegiv/warden-go/internal/logging"
	"github.com/olegiv/warden-go/internal/middleware"
	"github.com/olegiv/warden-go/internal/query"
	"github.com/olegiv/warden-go/internal/ratelimit"
	"github.com/olegiv/warden-go/internal/scheduler"
	"github.com/olegiv/warden-go/internal/version"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Warden - Request Observability and Traffic Control\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WARDEN_ADMIN_TOKEN       Bearer token for the admin query API\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WARDEN_SERVER_PORT       Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WARDEN_ENV               Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WARDEN_REDIS_URL         Redis URL for a shared counter store (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WARDEN_GEOIP_DB_PATH     Path to GeoLite2-Country.mmdb (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "\nFor more information, see: https://github.com/olegiv/warden-go\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if *showVersion {
		_, _ = fmt.Printf("warden %s (commit: %s, built: %s)\n", appVersion, appGitCommit, appBuildTime)
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	versionInfo := &version.Info{
		Version:   appVersion,
		GitCommit: appGitCommit,
		BuildTime: appBuildTime,
	}

	// Setup logger
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting warden",
		"version", versionInfo.Version, "commit", versionInfo.GitCommit, "env", cfg.Env)

	// Audit log
	auditLog := audit.NewLog(audit.LogOptions{MaxEntries: cfg.AuditMaxEntries})
	defer func() {
		if err := auditLog.Close(); err != nil {
			slog.Error("error closing audit log", "error", err)
		}
	}()

	// Upgrade logger to also write WARN and ERROR records into the audit log
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger = slog.New(logging.NewAuditLogHandler(textHandler, auditLog))
	slog.SetDefault(logger)
	slog.Info("audit log integration enabled", "min_level", "warn")

	// Counter store: Redis when configured, else in-process memory.
	// Periodic sweeping is owned by the scheduler.
	store, err := ratelimit.NewStore(ratelimit.StoreConfig{
		RedisURL: cfg.RedisURL,
		Prefix:   cfg.RedisPrefix,
	})
	if err != nil {
		return fmt.Errorf("initializing counter store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("error closing counter store", "error", err)
		}
	}()
	slog.Info("counter store ready", "backend", storeBackend(cfg))

	// GeoIP enrichment (optional)
	geo := geoip.NewLookup()
	if err := geo.Init(cfg.GeoIPDBPath); err != nil {
		return fmt.Errorf("initializing GeoIP: %w", err)
	}
	defer func() {
		if err := geo.Close(); err != nil {
			slog.Error("error closing GeoIP database", "error", err)
		}
	}()

	// Rate-limit policies
	limiters, err := buildLimiters(cfg, store)
	if err != nil {
		return err
	}

	// Query engine and admin API
	engine := query.NewEngine(auditLog, query.EngineOptions{})
	apiHandler := api.NewHandler(engine, store, api.HandlerOptions{
		Thresholds: query.Thresholds{
			FailedLogins:  cfg.AnomalyFailedLogins,
			HighFrequency: cfg.AnomalyHighFrequency,
			BotMarkers:    query.DefaultThresholds().BotMarkers,
		},
	})

	// Background maintenance
	sched := scheduler.New(auditLog, store, scheduler.Options{
		Retention: cfg.AuditRetention(),
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	r := buildRouter(cfg, auditLog, geo, limiters, apiHandler)

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// limiterSet holds the per-concern limiters the router wires in.
type limiterSet struct {
	api    *ratelimit.Limiter
	auth   *ratelimit.Limiter
	write  *ratelimit.Limiter
	read   *ratelimit.Limiter
	public *ratelimit.Limiter
	upload *ratelimit.Limiter
	search *ratelimit.Limiter
}

// buildLimiters materializes the configured policies. Invalid policy
// parameters are fatal at startup, never at request time.
func buildLimiters(cfg *config.Config, store ratelimit.Store) (limiterSet, error) {
	var set limiterSet
	specs := []struct {
		name     string
		pc       config.PolicyConfig
		defaults ratelimit.Policy
		dst      **ratelimit.Limiter
	}{
		{"api", cfg.APILimit, ratelimit.Policy{
			Window:      time.Minute,
			Max:         120,
			Message:     "API rate limit exceeded, please slow down.",
			BurstWindow: 10 * time.Second,
			BurstMax:    30,
		}, &set.api},
		{"auth", cfg.AuthLimit, ratelimit.Policy{
			Window:         15 * time.Minute,
			Max:            5,
			Message:        "Too many failed sign-in attempts, please try again later.",
			SkipSuccessful: true,
		}, &set.auth},
		{"write", cfg.WriteLimit, ratelimit.Policy{
			Window:  time.Minute,
			Max:     30,
			Message: "Too many write requests, please slow down.",
			KeyFunc: ratelimit.UserKey(),
		}, &set.write},
		{"read", cfg.ReadLimit, ratelimit.Policy{
			Window:  time.Minute,
			Max:     300,
			Message: "Too many read requests, please slow down.",
			KeyFunc: ratelimit.UserKey(),
		}, &set.read},
		{"public", cfg.PublicLimit, ratelimit.Policy{
			Window:  time.Minute,
			Max:     60,
			Message: "Too many requests, please slow down.",
		}, &set.public},
		{"upload", cfg.UploadLimit, ratelimit.Policy{
			Window:  time.Hour,
			Max:     60,
			Message: "Upload limit reached, please try again later.",
			KeyFunc: ratelimit.UserKey(),
		}, &set.upload},
		{"search", cfg.SearchLimit, ratelimit.Policy{
			Window:  time.Minute,
			Max:     30,
			Message: "Too many search requests, please slow down.",
		}, &set.search},
	}

	for _, spec := range specs {
		if !spec.pc.Enabled {
			continue
		}
		policy := spec.pc.Policy(spec.name, spec.defaults)
		if err := policy.Validate(); err != nil {
			return limiterSet{}, fmt.Errorf("invalid rate-limit policy: %w", err)
		}
		*spec.dst = ratelimit.NewLimiter(store, policy, ratelimit.LimiterOptions{
			FailOpen: cfg.FailOpen,
		})
		slog.Info("rate-limit policy active", "policy", policy.Name,
			"window", policy.Window, "max", policy.Max)
	}
	return set, nil
}

// buildRouter assembles the middleware pipeline and routes.
func buildRouter(cfg *config.Config, auditLog *audit.Log, geo *geoip.Lookup,
	limiters limiterSet, apiHandler *api.Handler) chi.Router {

	interceptor := middleware.NewInterceptor(auditLog, middleware.InterceptorOptions{
		Geo:       geo,
		APIPrefix: cfg.APIPrefix,
	})

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Throttle(cfg.ThrottleRPS, cfg.ThrottleBurst))
	r.Use(middleware.Identity())
	r.Use(interceptor.Middleware())

	placeholder := http.NotFoundHandler().ServeHTTP

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", apiHandler.Health)

		// Admin query surface
		r.Group(func(r chi.Router) {
			r.Use(api.RequireAdminToken(cfg.AdminToken))

			r.Get("/events", apiHandler.ListEvents)
			r.Get("/events/stats", apiHandler.EventStats)
			r.Get("/events/anomalies", apiHandler.EventAnomalies)
			r.Get("/events/export", apiHandler.ExportEvents)
			r.Get("/limits/{key}", apiHandler.GetLimit)
			r.Delete("/limits/{key}", apiHandler.ResetLimit)
		})

		// Proxied application routes, grouped per traffic-control policy
		r.With(limit(limiters.auth)).Post("/auth/login", placeholder)
		r.With(limit(limiters.auth)).Post("/auth/register", placeholder)

		// Audited application surface. Warden fronts an upstream
		// application in deployment; everything the host did not mount
		// answers 404 but still flows through auditing and limits.
		r.Group(func(r chi.Router) {
			r.Use(limit(limiters.api))

			r.With(limit(limiters.search)).Get("/search", placeholder)
			r.With(limit(limiters.upload)).Post("/uploads", placeholder)

			r.Group(func(r chi.Router) {
				r.Use(limit(limiters.write))
				r.Post("/*", placeholder)
				r.Put("/*", placeholder)
				r.Patch("/*", placeholder)
				r.Delete("/*", placeholder)
			})

			r.With(limit(limiters.read)).Get("/*", placeholder)
		})
	})

	// Public, non-API pages get their own per-IP budget.
	r.With(limit(limiters.public)).Get("/*", placeholder)

	return r
}

// limit wraps an optional limiter as route-group middleware; a nil
// limiter (policy disabled via config) passes requests through.
func limit(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimit(l)
}

// storeBackend names the active counter-store backend for logs.
func storeBackend(cfg *config.Config) string {
	if cfg.UseRedisStore() {
		return "redis"
	}
	return "memory"
}
