// Package main is the entry point for the multichat panel host.
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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/multichat/internal/catalog"
	"github.com/capitalize-ai/multichat/internal/config"
	"github.com/capitalize-ai/multichat/internal/connection"
	"github.com/capitalize-ai/multichat/internal/feedback"
	"github.com/capitalize-ai/multichat/internal/handler"
	"github.com/capitalize-ai/multichat/internal/middleware"
	natsclient "github.com/capitalize-ai/multichat/internal/nats"
	"github.com/capitalize-ai/multichat/internal/orchestrator"
	"github.com/capitalize-ai/multichat/pkg/logger"
	"github.com/capitalize-ai/multichat/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting multichat panel", zap.String("endpoint", cfg.WSEndpoint))

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "multichat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	source, err := catalogSource(cfg)
	if err != nil {
		log.Error("invalid catalog configuration", zap.Error(err))
		os.Exit(1)
	}

	// Feedback goes to JetStream when NATS is configured, otherwise to the log
	var sink feedback.Sink = feedback.NewLogSink(log)
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", zap.Error(err))
			os.Exit(1)
		}
		sink = feedback.NewNATSSink(streamManager, log)
	}

	// Mount the panel
	conn := connection.NewManager(&websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.WSHandshakeTimeout,
	}, nil, log)
	panel := orchestrator.New(conn, orchestrator.Options{
		Endpoint:   cfg.WSEndpoint,
		RAGEnabled: cfg.RAGEnabled,
		Catalog:    source,
		Feedback:   sink,
	}, log)
	if err := panel.Mount(ctx); err != nil {
		log.Error("failed to mount panel", zap.Error(err))
		os.Exit(1)
	}

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(panel)
	panelHandler := handler.NewPanelHandler(panel, log)
	streamHandler := handler.NewStreamHandler(panel, cfg.PanelHeartbeatInterval, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/panel", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/", panelHandler.View)
		r.Get("/stream", streamHandler.Stream)
		r.Get("/catalog", panelHandler.Catalog)

		r.Post("/messages", panelHandler.SendMessage)
		r.Post("/clear", panelHandler.ClearAll)
		r.Post("/feedback", panelHandler.Feedback)
		r.Post("/scroll", panelHandler.Scroll)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", panelHandler.AddSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", panelHandler.RemoveSession)
				r.Put("/model", panelHandler.SelectModel)
				r.Put("/workspace", panelHandler.SelectWorkspace)
				r.Put("/configuration", panelHandler.Configure)
			})
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Unmounting first closes every open panel stream
	panel.Unmount()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func catalogSource(cfg *config.Config) (catalog.Source, error) {
	switch cfg.CatalogSource {
	case config.CatalogGraphQL:
		return catalog.NewGraphQLSource(cfg.CatalogURL, cfg.CatalogToken, &http.Client{Timeout: 30 * time.Second}), nil
	case config.CatalogFile:
		return catalog.NewFileSource(cfg.CatalogFile), nil
	case config.CatalogOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the %q catalog source", config.CatalogOpenAI)
		}
		return catalog.NewOpenAISource(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown catalog source %q", cfg.CatalogSource)
	}
}
