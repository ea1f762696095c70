package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"bonus-tracker-api/internal/cache"
	"bonus-tracker-api/internal/config"
	"bonus-tracker-api/internal/database"
	"bonus-tracker-api/internal/events"
	"bonus-tracker-api/internal/features"
	"bonus-tracker-api/internal/handler"
	"bonus-tracker-api/internal/middleware"
	"bonus-tracker-api/internal/service"
	"bonus-tracker-api/internal/sweeper"
	tlsconfig "bonus-tracker-api/internal/tls"
	"bonus-tracker-api/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "Path to JSON config file")
	port := flag.String("port", "", "Server port (overrides config)")
	dbPath := flag.String("db", "", "Database file path (overrides config)")
	enableTLS := flag.Bool("tls", false, "Enable HTTPS/TLS")
	certFile := flag.String("cert", "", "TLS certificate file path")
	keyFile := flag.String("key", "", "TLS private key file path")
	sweepOnStart := flag.Bool("sweep-on-start", false, "Run the deadline sweep immediately at startup")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags take precedence over config file and environment
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *enableTLS {
		cfg.Server.EnableTLS = true
	}
	if *certFile != "" {
		cfg.Server.CertFile = *certFile
	}
	if *keyFile != "" {
		cfg.Server.KeyFile = *keyFile
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize tracing
	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
	}); err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	// Initialize database
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Feature flags, seeded from config
	featureMgr := features.NewManager()
	defer featureMgr.Shutdown()
	featureMgr.Register(features.FeatureCacheEnabled, cfg.Cache.Enabled, "Dashboard statistics cache")
	featureMgr.Register(features.FeatureEventHooksEnabled, true, "In-process event hooks")
	featureMgr.Register(features.FeatureAutoExpireSweep, cfg.Sweep.Enabled, "Background deadline sweep")
	featureMgr.Register(features.FeatureTaxReporting, true, "Per-year tax summary endpoint")

	// Initialize dashboard cache
	var dashboardCache cache.Cache
	if featureMgr.IsEnabled(features.FeatureCacheEnabled) {
		if cfg.Cache.RedisAddr != "" {
			redisCache, err := cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
			if err != nil {
				log.Fatalf("Failed to connect to Redis: %v", err)
			}
			defer redisCache.Close()
			dashboardCache = redisCache
		} else {
			dashboardCache = cache.NewInMemoryCache()
		}
	}

	// Initialize events and service
	eventManager := events.NewManager(featureMgr.IsEnabled(features.FeatureEventHooksEnabled))
	defer eventManager.Shutdown()

	svc := service.NewServiceWithOptions(db, service.Options{
		Cache:    dashboardCache,
		CacheTTL: time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		Events:   eventManager,
	})

	// Initialize handlers
	h := handler.NewHandlerWithOptions(svc, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
	})

	// Initialize rate limiter
	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
		defer rateLimiter.Stop()
	}

	// Background deadline sweeper
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sweep *sweeper.Sweeper
	if featureMgr.IsEnabled(features.FeatureAutoExpireSweep) {
		sweep = sweeper.New(ctx, svc)
		if err := sweep.Register(cfg.Sweep.Cron); err != nil {
			log.Fatalf("Failed to register deadline sweep: %v", err)
		}
		sweep.Start()
		defer sweep.Stop()
		if *sweepOnStart {
			sweep.RunNow()
		}
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	if cfg.Tracing.Enabled {
		r.Use(middleware.TracingMiddleware())
	}
	if rateLimiter != nil {
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.Security.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Routes
	h.Routes(r)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Feature flag listing
	r.Get("/features", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(featureMgr.GetAll())
	})

	// Configure TLS if enabled
	var tlsCfg *tls.Config
	if cfg.Server.EnableTLS {
		tlsCfg, err = tlsconfig.LoadTLSConfig(tlsconfig.Config{
			CertFile: cfg.Server.CertFile,
			KeyFile:  cfg.Server.KeyFile,
		})
		if err != nil {
			log.Fatalf("Failed to load TLS configuration: %v", err)
		}
		if cfg.Server.CertFile == "" || cfg.Server.KeyFile == "" {
			log.Println("WARNING: No certificate files provided, using self-signed certificate for development")
		}
	}

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	protocol := "HTTP"
	if cfg.Server.EnableTLS {
		protocol = "HTTPS"
	}
	log.Printf("Starting %s server on %s", protocol, addr)
	log.Printf("Database: %s", cfg.Database.Path)
	if cfg.Sweep.Enabled {
		log.Printf("Deadline sweep: %s", cfg.Sweep.Cron)
	}

	server := &http.Server{
		Addr:      addr,
		Handler:   r,
		TLSConfig: tlsCfg,
	}

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down server: %v", err)
		}
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down tracing: %v", err)
		}
	}()

	if cfg.Server.EnableTLS {
		if cfg.Server.CertFile != "" && cfg.Server.KeyFile != "" {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			// Self-signed cert lives in TLSConfig; serve through a TLS listener
			listener, listenErr := tls.Listen("tcp", addr, tlsCfg)
			if listenErr != nil {
				log.Fatalf("Failed to create TLS listener: %v", listenErr)
			}
			err = server.Serve(listener)
		}
	} else {
		err = server.ListenAndServe()
	}

	if err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}
