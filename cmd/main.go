package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paybridge/paybridge/handler"
	"github.com/paybridge/paybridge/infra/config"
	"github.com/paybridge/paybridge/infra/conn"
	"github.com/paybridge/paybridge/infra/logger"
	"github.com/paybridge/paybridge/infra/middle"
	"github.com/paybridge/paybridge/infra/opensearch"
	"github.com/paybridge/paybridge/provider"
	"github.com/paybridge/paybridge/router"
	v1 "github.com/paybridge/paybridge/router/v1"
)

var (
	cfg              *config.AppConfig
	openSearchClient *opensearch.Client
	openSearchLogger *opensearch.Logger
)

func init() {
	// Load Env
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	// init conf
	_ = config.App()
	cfg = config.GetAppConfig()

	// Initialize OpenSearch client and logger
	if cfg.EnableLogging {
		osClient, err := opensearch.NewClient(cfg)
		if err != nil {
			log.Printf("Failed to initialize OpenSearch client: %v", err)
			log.Println("Continuing without OpenSearch logging...")
		} else {
			openSearchClient = osClient
			openSearchLogger = opensearch.NewLogger(osClient)
			log.Println("OpenSearch logging initialized successfully")
		}
	} else {
		log.Println("OpenSearch logging is disabled")
	}

	logger.InitGlobalLogger(openSearchLogger)
}

func main() {
	// Durable payment state lives in SQLite
	db := &conn.DB{}
	if err := db.ConnectDatabase(cfg.SQLitePath); err != nil {
		log.Fatalf("Failed to open state database: %v", err)
	}
	defer db.CloseDatabase()

	clock := provider.NewClock()
	scheduler := provider.NewScheduler()

	states, err := provider.NewSQLiteStateStore(db.DB, clock)
	if err != nil {
		log.Fatalf("Failed to initialize state store: %v", err)
	}

	// Event bus with optional external sinks
	events := provider.NewEventBus()
	if openSearchLogger != nil {
		events.Subscribe("*", 100, func(ctx context.Context, evt provider.Event) error {
			return openSearchLogger.LogSystemEvent(ctx, evt)
		})
	}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("paybridge"))
		if err != nil {
			log.Printf("Failed to connect to NATS: %v", err)
		} else {
			defer nc.Drain()
			sink := provider.NewNATSSink(nc, "paybridge.events")
			sink.Attach(events)
			log.Println("NATS event sink attached")
		}
	}

	// Provider registry, optionally sharing health state through Redis
	registryOpts := []provider.RegistryOption{provider.WithRegistryEventBus(events)}
	if cfg.RedisURL != "" {
		rdb, err := conn.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Printf("Failed to connect to Redis: %v", err)
		} else {
			defer rdb.Close()
			registryOpts = append(registryOpts, provider.WithHealthStore(provider.NewRedisHealthStore(rdb, 5*time.Minute)))
			log.Println("Redis health store enabled")
		}
	}
	registry := provider.NewRegistry(scheduler, registryOpts...)

	// Register every provider whose credentials are present; a provider
	// configured with unusable credentials aborts startup
	registered, err := registry.DiscoverProviders(config.ProviderCredentials)
	if err != nil {
		log.Fatalf("Provider discovery failed: %v", err)
	}
	if len(registered) == 0 {
		log.Println("No payment providers configured!")
	}
	for _, name := range registered {
		log.Printf("Registered payment provider: %s", name)
	}

	// Metrics on a dedicated Prometheus registry
	promRegistry := prometheus.NewRegistry()
	metrics := provider.NewMetricsCollector(promRegistry, provider.WithMetricsEventBus(events))

	// Orchestration pipeline
	errorHandler := provider.NewErrorHandler(events)
	orchestrator := provider.NewOrchestrator(registry, events, states, provider.OrchestratorConfig{
		MaxRetries:  cfg.MaxRetries,
		HomeCountry: cfg.HomeCountry,
	}, provider.WithErrorHandler(errorHandler), provider.WithMetricsCollector(metrics))
	errorHandler.SetReselector(orchestrator)

	stages := provider.NewValidator(provider.WithHomeCountry(cfg.HomeCountry))
	dispatcher := provider.NewWebhookDispatcher(registry, events)

	// Background loops
	stopHealth := registry.StartHealthChecks(cfg.HealthCheckInterval)
	defer stopHealth()
	stopDecay := orchestrator.StartLoadDecay(scheduler)
	defer stopDecay()
	stopPrune := errorHandler.StartPruning(scheduler)
	defer stopPrune()
	stopStatePrune := scheduler.Every(time.Hour, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		retention := time.Duration(cfg.StateRetentionDays) * 24 * time.Hour
		if _, err := states.PruneOlderThan(ctx, retention); err != nil {
			logger.Warn("State prune failed", logger.LogContext{
				Fields: map[string]any{"error": err.Error()},
			})
		}
	})
	defer stopStatePrune()

	// Handlers
	handlers := &v1.Handlers{
		Payment:   handler.NewPaymentHandler(orchestrator, stages, registry, config.App().Validator),
		Providers: handler.NewProvidersHandler(registry, orchestrator),
		Metrics:   handler.NewMetricsHandler(metrics, errorHandler, events),
	}
	webhookHandler := handler.NewWebhookHandler(dispatcher)
	healthHandler := handler.NewHealthHandler(db.DB, openSearchClient, registry)

	// Chi Define Routes
	r := chi.NewRouter()

	// Basic Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(60 * time.Second))

	// Security Middleware
	rateLimiter := middle.NewRateLimiter()
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.IPWhitelistMiddleware())
	r.Use(middle.RateLimitMiddleware(rateLimiter))
	r.Use(middle.RequestValidationMiddleware())

	// OpenSearch transaction logging
	if openSearchLogger != nil {
		r.Use(middle.PaymentLoggingMiddleware(openSearchLogger))
		log.Println("Payment logging middleware enabled")
	}

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "Content-Length", "Access-Control-Allow-Origin"},
		AllowCredentials: true,
		MaxAge:           300, // Preflight cache time (second)
	}))

	// Health check endpoint (no auth required)
	r.Get("/health", healthHandler.CheckHealth)

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	// Webhook routes for payment notifications (no auth required)
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/{provider}", webhookHandler.HandleWebhook)
	})

	// Versioned API routes
	router.Routes(r, handlers)

	// Create a context that listens for interrupt and terminate signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 60 * time.Second,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatal(err.Error())
		}
	}()

	log.Println("API is running on", cfg.Port)

	// Block until a signal is received
	<-ctx.Done()

	log.Println("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
}
